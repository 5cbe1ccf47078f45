package main

import (
	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/gc"
	"github.com/arfarlow/tinyjvm/pkg/interp"
	"github.com/arfarlow/tinyjvm/pkg/jlog"
	"github.com/arfarlow/tinyjvm/pkg/jvmconfig"
)

// newVM wires up one heap, class loader, and interpreter from cfg,
// closing the loop SPEC_FULL.md §6 describes between pkg/classloader and
// pkg/interp: the loader's <clinit> callback is bound to the interpreter's
// EnsureInitialized only after both exist, and the heap's GC-cycle trace
// is bound to the same logger cmd/tinyjvm prints everything else through.
func newVM(cfg *jvmconfig.Config, logger *jlog.Logger) (*interp.Interp, *classloader.Loader) {
	heap := gc.NewHeap(1, cfg.HeapBytes)
	heap.SetLogger(logger)

	loader := classloader.NewLoader(cfg.Classpath, heap)
	vm := interp.New(heap, loader)

	loader.SetClinitRunner(func(method *classloader.Method, class gc.Handle) error {
		return vm.EnsureInitialized(class)
	})

	return vm, loader
}
