package gc

import "sync"

// ThreadState is one execution thread's cooperating state: an identifier
// (threads are locked in ascending id order during collection, per §5), a
// mutex protecting its root vector, and the root vector itself.
type ThreadState struct {
	mu sync.Mutex

	id    uint64
	roots []Handle
}

// NewThreadState creates a ThreadState with the given (collector-unique)
// thread id.
func NewThreadState(id uint64) *ThreadState {
	return &ThreadState{id: id}
}

// PushRoot adds handle to this thread's root vector (e.g. a local variable
// or operand-stack slot the interpreter wants the collector to see).
func (ts *ThreadState) PushRoot(handle Handle) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.roots = append(ts.roots, handle)
}

// SetRoots replaces the thread's entire root vector, e.g. with a fresh
// snapshot of every live frame's operand stack + locals before a safepoint.
func (ts *ThreadState) SetRoots(handles []Handle) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.roots = append(ts.roots[:0], handles...)
}

// Safepoint is the cooperative block point a thread must call at allocation,
// explicit safepoint requests, and collector-mutex acquisition (§5). Since
// Collect() already holds the thread's mutex for the cycle's duration,
// simply acquiring and releasing it here is enough to block until any
// in-progress collection finishes.
func (h *Heap) Safepoint(ts *ThreadState) {
	ts.mu.Lock()
	ts.mu.Unlock()
}
