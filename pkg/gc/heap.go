// Package gc implements the tracing mark-sweep-finalize-sweep collector:
// a generational slot map of Handles over accounting-arena bookkeeping,
// stop-the-world collection cooperating with threads at well-defined
// safepoints, and ref-counted owned roots alongside per-thread root
// vectors.
package gc

import (
	"fmt"
	"sort"
	"sync"

	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

type slot struct {
	header     *Header
	generation uint32
}

// CycleLogger receives one summary per completed collection cycle.
// pkg/jlog.Logger satisfies this; tests and library callers that don't
// want tracing simply never call SetLogger.
type CycleLogger interface {
	GCCycle(index uint64, reclaimed int, freedBytes uint64)
}

// Heap is one collector instance: its own slot map, arena, thread set, and
// owned-root set. Multiple Heaps may coexist (each gets a distinct
// collector ID baked into every Handle it mints), though tinyjvm only ever
// runs one.
type Heap struct {
	mu sync.Mutex

	id              uint16
	slots           []slot
	freeSlots       []uint32
	arena           *arena
	head, tail      *Header // intrusive list of live headers, oldest first
	threads         []*ThreadState
	owned           map[*OwnedRef]struct{}
	CollectionIndex uint64

	logger CycleLogger
}

// SetLogger wires a CycleLogger in so every completed Collect cycle emits a
// trace line (cmd/tinyjvm wires its pkg/jlog.Logger in here).
func (h *Heap) SetLogger(logger CycleLogger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

// NewHeap creates a Heap with the given collector ID and accounting arena
// capacity (in bytes, accounting units — not a real memory limit).
func NewHeap(collectorID uint16, arenaCapacity uint64) *Heap {
	return &Heap{
		id:    collectorID,
		slots: make([]slot, 1), // index 0 reserved, never allocated
		arena: newArena(arenaCapacity),
		owned: make(map[*OwnedRef]struct{}),
	}
}

// Allocate reserves size accounting bytes and a slot for a new object.
// First-fit over the free list; on failure it runs one collection and
// retries once before giving up with ErrOutOfMemory (§5 allocation
// discipline).
func (h *Heap) Allocate(size uint64, meta uint64, vt *VTable, payload any) (Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocateLocked(size, meta, vt, payload, true)
}

func (h *Heap) allocateLocked(size, meta uint64, vt *VTable, payload any, retry bool) (Handle, error) {
	offset, ok := h.arena.alloc(size)
	if !ok {
		if !retry {
			return NilHandle, fmt.Errorf("%w: requested %d bytes, largest free block %d", jvmerr.ErrOutOfMemory, size, h.arena.largestFree())
		}
		h.collectLocked()
		return h.allocateLocked(size, meta, vt, payload, false)
	}

	hdr := &Header{
		Mark:    White,
		Size:    size,
		Meta:    meta,
		VTable:  vt,
		Payload: payload,
		offset:  offset,
	}

	slotIdx, generation := h.reserveSlot(hdr)
	hdr.SlotGeneration = generation
	h.linkLive(hdr)

	return makeHandle(h.id, generation, slotIdx), nil
}

func (h *Heap) reserveSlot(hdr *Header) (uint32, uint32) {
	if n := len(h.freeSlots); n > 0 {
		idx := h.freeSlots[n-1]
		h.freeSlots = h.freeSlots[:n-1]
		gen := h.slots[idx].generation + 1
		h.slots[idx] = slot{header: hdr, generation: gen}
		return idx, gen
	}
	idx := uint32(len(h.slots))
	h.slots = append(h.slots, slot{header: hdr, generation: 0})
	return idx, 0
}

func (h *Heap) linkLive(hdr *Header) {
	hdr.prev = h.tail
	if h.tail != nil {
		h.tail.next = hdr
	} else {
		h.head = hdr
	}
	h.tail = hdr
}

func (h *Heap) unlinkLive(hdr *Header) {
	if hdr.prev != nil {
		hdr.prev.next = hdr.next
	} else {
		h.head = hdr.next
	}
	if hdr.next != nil {
		hdr.next.prev = hdr.prev
	} else {
		h.tail = hdr.prev
	}
	hdr.prev, hdr.next = nil, nil
}

// Load resolves a Handle to its Header, failing ErrUseAfterFree if the
// handle's generation doesn't match the slot's current occupant (the slot
// was freed and reused since the handle was minted).
func (h *Heap) Load(handle Handle) (*Header, error) {
	if handle.IsNil() {
		return nil, fmt.Errorf("%w: nil handle", jvmerr.ErrUseAfterFree)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadLocked(handle)
}

func (h *Heap) loadLocked(handle Handle) (*Header, error) {
	if handle.collectorID() != h.id {
		return nil, fmt.Errorf("%w: handle belongs to collector %d, this heap is %d", jvmerr.ErrUseAfterFree, handle.collectorID(), h.id)
	}
	idx := handle.slotIndex()
	if int(idx) >= len(h.slots) {
		return nil, fmt.Errorf("%w: slot %d never allocated", jvmerr.ErrUseAfterFree, idx)
	}
	s := h.slots[idx]
	if s.header == nil || s.generation != handle.generation() {
		return nil, fmt.Errorf("%w: slot %d generation %d, handle generation %d", jvmerr.ErrUseAfterFree, idx, s.generation, handle.generation())
	}
	return s.header, nil
}

// NewOwned creates a ref-counted global root over handle.
func (h *Heap) NewOwned(handle Handle) *OwnedRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	ref := &OwnedRef{heap: h, handle: handle, count: 1}
	h.owned[ref] = struct{}{}
	return ref
}

func (h *Heap) releaseOwned(ref *OwnedRef) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.owned, ref)
}

// RegisterThread adds a ThreadState to the heap's cooperating-thread set.
func (h *Heap) RegisterThread(ts *ThreadState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.threads = append(h.threads, ts)
	sort.Slice(h.threads, func(i, j int) bool { return h.threads[i].id < h.threads[j].id })
}

// Collect runs one full stop-the-world mark-sweep-finalize-sweep cycle.
func (h *Heap) Collect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collectLocked()
}

func (h *Heap) collectLocked() {
	// Acquire every thread's mutex in id-ascending order (§5 deadlock-free
	// lock discipline), so no thread can mutate its root vector mid-trace.
	for _, ts := range h.threads {
		ts.mu.Lock()
	}
	defer func() {
		for _, ts := range h.threads {
			ts.mu.Unlock()
		}
	}()

	h.mark()
	h.sweepFinalizeRetrace()
	reclaimed, freedBytes := h.sweepReclaim()
	h.CollectionIndex++
	if h.logger != nil {
		h.logger.GCCycle(h.CollectionIndex, reclaimed, freedBytes)
	}
}

func (h *Heap) mark() {
	var stack []*Header
	visit := func(handle Handle) {
		hdr, err := h.loadLocked(handle)
		if err != nil || hdr.Mark == Black {
			return
		}
		hdr.Mark = Black
		stack = append(stack, hdr)
	}

	for _, ts := range h.threads {
		for _, root := range ts.roots {
			visit(root)
		}
	}
	for ref := range h.owned {
		if ref.count > 0 {
			visit(ref.handle)
		}
	}

	for len(stack) > 0 {
		hdr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if hdr.VTable != nil && hdr.VTable.Trace != nil {
			hdr.VTable.Trace(hdr, visit)
		}
	}
}

// sweepFinalizeRetrace runs finalizers on still-White objects. A finalizer
// that revives its object (returns true) gets re-marked Black and retraced
// so anything it newly reaches also survives.
func (h *Heap) sweepFinalizeRetrace() {
	var revived []*Header
	for cur := h.head; cur != nil; cur = cur.next {
		if cur.Mark == White && !cur.finalized && cur.VTable != nil && cur.VTable.Finalize != nil {
			cur.finalized = true
			if cur.VTable.Finalize(cur) {
				cur.Mark = Black
				revived = append(revived, cur)
			}
		}
	}
	if len(revived) == 0 {
		return
	}
	visit := func(handle Handle) {
		hdr, err := h.loadLocked(handle)
		if err != nil || hdr.Mark == Black {
			return
		}
		hdr.Mark = Black
		revived = append(revived, hdr)
	}
	for i := 0; i < len(revived); i++ {
		hdr := revived[i]
		if hdr.VTable != nil && hdr.VTable.Trace != nil {
			hdr.VTable.Trace(hdr, visit)
		}
	}
}

// sweepReclaim unlinks and frees every still-White object, then resets all
// survivors to White for the next cycle (§8: every surviving object ends a
// cycle White).
func (h *Heap) sweepReclaim() (reclaimed int, freedBytes uint64) {
	cur := h.head
	for cur != nil {
		next := cur.next
		if cur.Mark == White {
			freedBytes += cur.Size
			reclaimed++
			h.reclaim(cur)
		} else {
			cur.Mark = White
			cur.finalized = false
		}
		cur = next
	}
	return reclaimed, freedBytes
}

func (h *Heap) reclaim(hdr *Header) {
	h.unlinkLive(hdr)
	if hdr.VTable != nil && hdr.VTable.Drop != nil {
		hdr.VTable.Drop(hdr)
	}
	h.arena.release(hdr.offset, hdr.Size)

	for idx := range h.slots {
		if h.slots[idx].header == hdr {
			h.slots[idx].header = nil
			h.freeSlots = append(h.freeSlots, uint32(idx))
			break
		}
	}
}
