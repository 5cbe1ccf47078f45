package interp

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"unicode/utf16"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/gc"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// ClassLoader is the subset of classloader.Loader the interpreter needs,
// named here (rather than imported as a concrete type) so a test double
// can stand in for it (§6's external-interfaces contract).
type ClassLoader interface {
	LoadClass(name string) (gc.Handle, error)
	FindMethod(class gc.Handle, name, desc string) (*classloader.Method, gc.Handle, error)
	FindMethodSupers(class gc.Handle, name, desc string) (*classloader.Method, gc.Handle, error)
}

// Invoker is what native method stubs and the object/array opcodes call
// back into: running a (possibly recursive) method invocation, or
// materializing an instance/string/array.
type Invoker interface {
	Invoke(method *classloader.Method, class gc.Handle, args []Value) (Value, error)
	BlankInstance(class gc.Handle) (gc.Handle, error)
	NewString(utf8 string) (gc.Handle, error)
	ArrayInstance(elem classloader.ElementKind, length int, init []Value) (gc.Handle, error)
}

const maxFrameDepth = 1024

// Interp is the virtual machine: heap + loader + native dispatch table,
// shared across every Thread it spawns.
type Interp struct {
	Heap   *gc.Heap
	Loader ClassLoader
	Stdout io.Writer

	mu      sync.Mutex
	strings map[gc.Handle]string // interned string contents, keyed by Instance handle

	initMu      sync.Mutex
	initialized map[gc.Handle]bool

	nextThreadID uint64
}

func New(heap *gc.Heap, loader ClassLoader) *Interp {
	vm := &Interp{
		Heap:        heap,
		Loader:      loader,
		Stdout:      os.Stdout,
		strings:     make(map[gc.Handle]string),
		initialized: make(map[gc.Handle]bool),
	}
	return vm
}

// NewThread spawns a Thread with a freshly registered ThreadState, for
// callers (cmd/tinyjvm, tests) that need to start a call stack of their own.
func (vm *Interp) NewThread() *Thread {
	id := atomic.AddUint64(&vm.nextThreadID, 1)
	ts := gc.NewThreadState(id)
	vm.Heap.RegisterThread(ts)
	return NewThread(vm, ts)
}

// Invoke satisfies the Invoker interface at the VM level: it runs method on
// a throwaway Thread of its own, for call sites (native stubs,
// EnsureInitialized) that have a *Interp but no *Thread of their own to
// recurse through.
func (vm *Interp) Invoke(method *classloader.Method, class gc.Handle, args []Value) (Value, error) {
	return vm.NewThread().Invoke(method, class, args)
}

func (vm *Interp) LoadClass(name string) (gc.Handle, error) { return vm.Loader.LoadClass(name) }

func (vm *Interp) FindMethod(class gc.Handle, name, desc string) (*classloader.Method, gc.Handle, error) {
	return vm.Loader.FindMethod(class, name, desc)
}

func (vm *Interp) FindMethodSupers(class gc.Handle, name, desc string) (*classloader.Method, gc.Handle, error) {
	return vm.Loader.FindMethodSupers(class, name, desc)
}

// BlankInstance allocates a zero-valued Instance of class, with every
// field declared by class and its superclasses defaulted per descriptor.
func (vm *Interp) BlankInstance(class gc.Handle) (gc.Handle, error) {
	fields := make(map[string]Value)
	cur := class
	for !cur.IsNil() {
		hdr, err := vm.Heap.Load(cur)
		if err != nil {
			return gc.NilHandle, err
		}
		c := hdr.Payload.(*classloader.Class)
		for _, fd := range c.Fields {
			if _, ok := fields[fd.Name]; !ok {
				fields[fd.Name] = zeroValueFor(fd.Descriptor)
			}
		}
		cur = c.Super
	}
	return vm.Heap.Allocate(0, 0, classloader.InstanceVTable(), &classloader.Instance{Class: class, Fields: fields})
}

func zeroValueFor(descriptor string) Value {
	if descriptor == "" {
		return IntValue(0)
	}
	switch descriptor[0] {
	case 'J':
		return LongValue(0)
	case 'F':
		return FloatValue(0)
	case 'D':
		return DoubleValue(0)
	case 'L', '[':
		return NullValue()
	default:
		return IntValue(0)
	}
}

// NewString allocates a java/lang/String instance whose text is exposed as a
// real `buf:[C]` field (§3/§8: a gettable char array of UTF-16 code units),
// the only spec-sanctioned way decoded bytecode can read it back via
// getfield. The text is additionally cached in the interpreter's string
// table so native String/PrintStream stubs avoid decoding the char array
// back to a Go string on every call.
func (vm *Interp) NewString(utf8 string) (gc.Handle, error) {
	classHandle, err := vm.Loader.LoadClass("java/lang/String")
	if err != nil {
		return gc.NilHandle, err
	}

	units := utf16.Encode([]rune(utf8))
	chars := make([]Value, len(units))
	for i, u := range units {
		chars[i] = CharValue(u)
	}
	bufHandle, err := vm.Heap.Allocate(uint64(len(units))*8, uint64(len(units)), classloader.ArrayVTable(), &classloader.Array{
		ElemKind: classloader.ElementKind{Primitive: classfile.ArrChar},
		Elements: chars,
	})
	if err != nil {
		return gc.NilHandle, err
	}

	handle, err := vm.Heap.Allocate(uint64(len(utf8)), 0, classloader.InstanceVTable(), &classloader.Instance{
		Class: classHandle, Fields: map[string]Value{"buf": RefValue(bufHandle)},
	})
	if err != nil {
		return gc.NilHandle, err
	}
	vm.mu.Lock()
	vm.strings[handle] = utf8
	vm.mu.Unlock()
	return handle, nil
}

// StringValue returns the text an interned String instance was built from.
func (vm *Interp) StringValue(h gc.Handle) (string, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	s, ok := vm.strings[h]
	return s, ok
}

// ArrayInstance allocates an Array of length elements of kind elem,
// defaulted from init (or zero-valued if init is shorter than length).
func (vm *Interp) ArrayInstance(elem classloader.ElementKind, length int, init []Value) (gc.Handle, error) {
	if length < 0 {
		return gc.NilHandle, fmt.Errorf("interp: %w: negative array length %d", jvmerr.ErrArithmetic, length)
	}
	elems := make([]Value, length)
	defaultVal := IntValue(0)
	if elem.IsReference() {
		defaultVal = NullValue()
	}
	for i := range elems {
		if i < len(init) {
			elems[i] = init[i]
		} else {
			elems[i] = defaultVal
		}
	}
	return vm.Heap.Allocate(uint64(length)*8, uint64(length), classloader.ArrayVTable(), &classloader.Array{
		ElemKind: elem, Elements: elems,
	})
}

// EnsureInitialized runs class's <clinit> (and its superclass's, first) if
// it has not already run for this Interp, per §4.5/§9.
func (vm *Interp) EnsureInitialized(class gc.Handle) error {
	vm.initMu.Lock()
	if vm.initialized[class] {
		vm.initMu.Unlock()
		return nil
	}
	vm.initialized[class] = true
	vm.initMu.Unlock()

	hdr, err := vm.Heap.Load(class)
	if err != nil {
		return err
	}
	c := hdr.Payload.(*classloader.Class)

	if !c.Super.IsNil() {
		if err := vm.EnsureInitialized(c.Super); err != nil {
			return err
		}
	}

	clinit, ok := c.Methods[classloader.MethodKey{Name: "<clinit>", Descriptor: "()V"}]
	if !ok || clinit == nil {
		return nil
	}
	_, err = vm.Invoke(clinit, class, nil)
	return err
}
