package gc

import "github.com/davecgh/go-spew/spew"

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// DumpObject renders a Handle's Header and Payload for debugging: used by
// `cmd/tinyjvm inspect` and by GC tests asserting object-graph shape after
// a collection cycle.
func (h *Heap) DumpObject(handle Handle) string {
	hdr, err := h.Load(handle)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	hdr.Lock()
	defer hdr.Unlock()
	return dumpConfig.Sdump(hdr.Payload)
}
