package interp

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/gc"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// Thread is a single executor thread per invocation (§1/§5): it wraps one
// gc.ThreadState (for GC root cooperation) and a recursion-based call
// stack, the same shape the teacher's VM.executeMethod uses (a Go call
// recurses for every nested invoke*, rather than an explicit frame-stack
// data structure), generalized to the InstructionList/Value model.
type Thread struct {
	vm     *Interp
	ts     *gc.ThreadState
	depth  int
	frames []*Frame
}

func NewThread(vm *Interp, ts *gc.ThreadState) *Thread {
	return &Thread{vm: vm, ts: ts}
}

// Invoke runs method (native or bytecode) with the given class context and
// arguments, returning its return value (zero Value for void methods).
func (t *Thread) Invoke(method *classloader.Method, class gc.Handle, args []Value) (Value, error) {
	if method.IsNative() {
		className := t.classNameOf(class)
		return t.dispatchNative(className, method.Name, method.Descriptor, args)
	}
	if method.Code == nil {
		return Value{}, fmt.Errorf("interp: %s%s has no Code attribute", method.Name, method.Descriptor)
	}

	t.depth++
	if t.depth > maxFrameDepth {
		t.depth--
		return Value{}, jvmerr.ErrStackOverflow
	}
	defer func() { t.depth-- }()

	frame := NewFrame(method, class)
	for i, a := range args {
		frame.Locals[i] = a
	}

	t.frames = append(t.frames, frame)
	defer func() { t.frames = t.frames[:len(t.frames)-1] }()

	return t.runFrame(frame)
}

func (t *Thread) classNameOf(class gc.Handle) string {
	hdr, err := t.vm.Heap.Load(class)
	if err != nil {
		return ""
	}
	return hdr.Payload.(*classloader.Class).Name
}

func (t *Thread) classOf(class gc.Handle) *classloader.Class {
	hdr, err := t.vm.Heap.Load(class)
	if err != nil {
		return nil
	}
	return hdr.Payload.(*classloader.Class)
}

// syncRoots publishes the root set for the thread's *entire* live frame
// chain, not just the innermost frame: Invoke recurses through Go's own call
// stack for every nested invoke*, so a caller's locals/operand-stack
// references must stay visible to the collector for as long as any callee
// (however deeply nested) is still running.
func (t *Thread) syncRoots() {
	var roots []gc.Handle
	for _, f := range t.frames {
		roots = append(roots, f.Roots()...)
	}
	t.ts.SetRoots(roots)
	t.vm.Heap.Safepoint(t.ts)
}

// runFrame is the bytecode dispatch loop: one Go `case` per opcode,
// matching the teacher's executeInstruction switch but indexed over a
// decoded InstructionList (§4.6) instead of stepping raw bytes.
func (t *Thread) runFrame(f *Frame) (Value, error) {
	for f.PC < f.Instructions.Len() {
		instr := f.Instructions.Instructions[f.PC]
		pc := f.PC
		f.PC++

		retVal, hasReturn, err := t.exec(f, instr)
		if err != nil {
			javaExc, isJavaExc := err.(*JavaException)
			if !isJavaExc {
				return Value{}, fmt.Errorf("%s%s at instruction %d: %w", f.Method.Name, f.Method.Descriptor, pc, err)
			}
			handler := t.findHandler(f, pc, javaExc)
			if handler == nil {
				return Value{}, javaExc
			}
			f.ClearStack()
			f.Push(RefValue(javaExc.Object))
			idx, ok := f.Instructions.IndexByOffset(int(handler.HandlerPC))
			if !ok {
				return Value{}, fmt.Errorf("interp: handler PC %d has no instruction", handler.HandlerPC)
			}
			f.PC = idx
			continue
		}
		if hasReturn {
			return retVal, nil
		}

		if pc%64 == 0 {
			t.syncRoots()
		}
	}
	return Value{}, nil
}

func (t *Thread) findHandler(f *Frame, instrIdx int, exc *JavaException) *classfile.ExceptionHandler {
	offset, ok := f.Instructions.OffsetByIndex(instrIdx)
	if !ok {
		return nil
	}
	class := t.classOf(f.Class)
	for i := range f.Method.Handlers {
		h := &f.Method.Handlers[i]
		if offset < int(h.StartPC) || offset >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return h
		}
		if class == nil || class.Pool == nil {
			continue
		}
		entry, ok := class.Pool.At(h.CatchType)
		if !ok || entry.Kind != classloader.RTClass {
			continue
		}
		if t.isInstanceOf(exc.Object, entry.ClassHandle) {
			return h
		}
	}
	return nil
}
