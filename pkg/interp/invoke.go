package interp

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/descriptor"
	"github.com/arfarlow/tinyjvm/pkg/gc"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// execInvoke implements invokevirtual/invokespecial/invokestatic/
// invokeinterface: resolve the Methodref, pop receiver+args off the
// operand stack, dispatch (virtual lookup starting at the receiver's
// runtime class, or direct lookup for static/special), and recurse through
// Thread.Invoke — the same "call is a nested Go call" shape Thread's own
// doc comment describes (§4.6).
func (t *Thread) execInvoke(f *Frame, instr classfile.Instruction, op byte) (Value, bool, error) {
	entry, _, err := t.poolEntry(f, instr)
	if err != nil {
		return Value{}, false, err
	}
	if entry.Kind != classloader.RTMethod {
		return Value{}, false, fmt.Errorf("interp: constant pool index %d is not a Methodref", instr.Index)
	}

	desc, err := descriptor.ParseMethodDescriptor(entry.MethodDescriptor)
	if err != nil {
		return Value{}, false, fmt.Errorf("interp: %s%s: %w", entry.MethodName, entry.MethodDescriptor, err)
	}
	argc := len(desc.Params)

	isStatic := op == classfile.OpInvokestatic
	total := argc
	if !isStatic {
		total++ // receiver
	}
	if f.sp < total {
		return Value{}, false, fmt.Errorf("interp: %s%s: operand stack underflow", entry.MethodName, entry.MethodDescriptor)
	}

	args := make([]Value, argc)
	copy(args, f.Stack[f.sp-argc:f.sp])
	var receiver Value
	if !isStatic {
		receiver = f.Stack[f.sp-total]
	}
	f.sp -= total

	var method *classloader.Method
	var declClass gc.Handle

	switch op {
	case classfile.OpInvokestatic:
		if err := t.vm.EnsureInitialized(entry.MethodClass); err != nil {
			return Value{}, false, err
		}
		method, declClass, err = t.vm.FindMethodSupers(entry.MethodClass, entry.MethodName, entry.MethodDescriptor)

	case classfile.OpInvokespecial:
		if receiver.Ref.IsNil() {
			exc, nerr := t.newException("java/lang/NullPointerException", entry.MethodName)
			if nerr != nil {
				return Value{}, false, nerr
			}
			return Value{}, false, exc
		}
		method, declClass, err = t.vm.FindMethodSupers(entry.MethodClass, entry.MethodName, entry.MethodDescriptor)

	case classfile.OpInvokevirtual, classfile.OpInvokeinterface:
		if receiver.Ref.IsNil() {
			exc, nerr := t.newException("java/lang/NullPointerException", entry.MethodName)
			if nerr != nil {
				return Value{}, false, nerr
			}
			return Value{}, false, exc
		}
		runtimeClass, rerr := t.runtimeClassOf(receiver.Ref)
		if rerr != nil {
			return Value{}, false, rerr
		}
		method, declClass, err = t.vm.FindMethodSupers(runtimeClass, entry.MethodName, entry.MethodDescriptor)

	default:
		return Value{}, false, fmt.Errorf("interp: unreachable invoke opcode 0x%02X", op)
	}
	if err != nil {
		return Value{}, false, fmt.Errorf("interp: %w", err)
	}

	var callArgs []Value
	if isStatic {
		callArgs = args
	} else {
		callArgs = append([]Value{receiver}, args...)
	}

	ret, err := t.Invoke(method, declClass, callArgs)
	if err != nil {
		return Value{}, false, err
	}
	if !desc.IsVoid() {
		f.Push(ret)
	}
	return Value{}, false, nil
}

func (t *Thread) runtimeClassOf(obj gc.Handle) (gc.Handle, error) {
	hdr, err := t.vm.Heap.Load(obj)
	if err != nil {
		return gc.NilHandle, err
	}
	switch p := hdr.Payload.(type) {
	case *classloader.Instance:
		return p.Class, nil
	case *classloader.Array:
		_ = p
		return gc.NilHandle, fmt.Errorf("interp: %w: cannot invoke a method on an array", jvmerr.ErrMethodNotFound)
	}
	return gc.NilHandle, fmt.Errorf("interp: handle does not reference an object")
}
