package gc

import "sync"

// Color is an object's tri-color mark state within one collection cycle.
// White is both "never marked yet" and "the resting state between cycles" —
// the §8 invariant that every surviving object ends a cycle White depends on
// that double meaning.
type Color uint8

const (
	White Color = iota
	Gray
	Black
)

// VTable is the set of type-specific operations the collector needs to
// treat a Header generically: how to find its outgoing references, how to
// finalize it, and how to release whatever non-GC resources it holds.
type VTable struct {
	// Trace calls visit once per Handle reachable directly from h's payload.
	Trace func(h *Header, visit func(Handle))
	// Finalize runs in every cycle that finds h unreachable; an object it
	// revives is finalized again if a later cycle finds it unreachable. Returning
	// true means the finalizer revived the object (e.g. by storing h
	// somewhere reachable); the collector retraces before the second sweep.
	Finalize func(h *Header) (revive bool)
	// Drop releases any resource h's payload owns that outlives the Go GC
	// (e.g. native handles). May be nil.
	Drop func(h *Header)
}

// Header is the metadata every heap allocation carries, adjacent to the
// payload in the spec's model; here it carries the payload directly rather
// than pointing at arena bytes (see DESIGN.md's resolved Open Question).
type Header struct {
	mu sync.Mutex

	Mark           Color
	SlotGeneration uint32
	Size           uint64 // accounting size, charged against the arena
	Meta           uint64 // e.g. array length
	VTable         *VTable
	Payload        any

	offset    uint64 // arena accounting offset, not part of the spec's field list
	finalized bool

	prev, next *Header // intrusive list links within the owning Heap
}

// Lock/Unlock serialize reads and writes to Payload that the interpreter
// cannot otherwise make atomic (§5: "a per-object lock used only to
// serialize reads and writes that cannot otherwise be made atomic").
func (h *Header) Lock()   { h.mu.Lock() }
func (h *Header) Unlock() { h.mu.Unlock() }
