package interp

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/classloader"
	"github.com/arfarlow/tinyjvm/pkg/gc"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// poolEntry resolves instr's constant-pool index against f's declaring
// class's runtime pool.
func (t *Thread) poolEntry(f *Frame, instr classfile.Instruction) (*classloader.RTPoolEntry, *classloader.Class, error) {
	class := t.classOf(f.Class)
	if class == nil || class.Pool == nil {
		return nil, nil, fmt.Errorf("interp: frame class has no constant pool")
	}
	entry, ok := class.Pool.At(uint16(instr.Index))
	if !ok {
		return nil, nil, fmt.Errorf("interp: constant pool index %d out of range", instr.Index)
	}
	return entry, class, nil
}

// execLdc implements ldc/ldc_w/ldc2_w: push an int/float/long/double
// immediate, or lazily intern and push a String reference (§4.6, grounded
// on the teacher's treatment of LDC as a frame-local constant fetch).
func (t *Thread) execLdc(f *Frame, instr classfile.Instruction) (Value, error) {
	entry, _, err := t.poolEntry(f, instr)
	if err != nil {
		return Value{}, err
	}

	switch entry.Kind {
	case classloader.RTString:
		if entry.StringHandle.IsNil() {
			h, err := t.vm.NewString(entry.StringValue)
			if err != nil {
				return Value{}, err
			}
			entry.StringHandle = h
		}
		return RefValue(entry.StringHandle), nil
	case classloader.RTClass:
		return RefValue(entry.ClassHandle), nil
	case classloader.RTUnresolved:
		switch c := entry.Raw.(type) {
		case *classfile.ConstantInteger:
			return IntValue(c.Value), nil
		case *classfile.ConstantFloat:
			return FloatValue(c.Value), nil
		case *classfile.ConstantLong:
			return LongValue(c.Value), nil
		case *classfile.ConstantDouble:
			return DoubleValue(c.Value), nil
		}
	}
	return Value{}, fmt.Errorf("interp: ldc: unsupported constant pool entry kind %d", entry.Kind)
}

// execAthrow pops the top-of-stack reference and turns it into a
// *JavaException for runFrame's exception-table search to catch.
func (t *Thread) execAthrow(f *Frame) error {
	obj := f.Pop()
	if obj.Ref.IsNil() {
		exc, err := t.newException("java/lang/NullPointerException", "athrow on null")
		if err != nil {
			return err
		}
		return exc
	}
	return NewJavaException(obj.Ref)
}

// execFieldAccess implements getstatic/putstatic/getfield/putfield,
// resolving the constant-pool Fieldref and dispatching to StaticValues or
// the Instance.Fields map accordingly (§4.5/§4.6).
func (t *Thread) execFieldAccess(f *Frame, instr classfile.Instruction, op byte) error {
	entry, _, err := t.poolEntry(f, instr)
	if err != nil {
		return err
	}
	if entry.Kind != classloader.RTField {
		return fmt.Errorf("interp: constant pool index %d is not a Fieldref", instr.Index)
	}

	switch op {
	case classfile.OpGetstatic, classfile.OpPutstatic:
		if err := t.vm.EnsureInitialized(entry.FieldClass); err != nil {
			return err
		}
		owner := t.classOf(entry.FieldClass)
		if owner == nil {
			return fmt.Errorf("interp: getstatic/putstatic: field owner class missing")
		}
		key := classloader.FieldKey{Name: entry.FieldName, Descriptor: entry.FieldDescriptor}
		if op == classfile.OpGetstatic {
			v, ok := owner.StaticValues[key]
			if !ok {
				return fmt.Errorf("interp: %w: %s.%s", jvmerr.ErrMethodNotFound, owner.Name, entry.FieldName)
			}
			f.Push(v)
			return nil
		}
		owner.StaticValues[key] = f.Pop()
		return nil

	case classfile.OpGetfield:
		ref := f.Pop()
		if ref.Ref.IsNil() {
			exc, err := t.newException("java/lang/NullPointerException", "getfield on null")
			if err != nil {
				return err
			}
			return exc
		}
		inst, err := t.instanceAt(ref.Ref)
		if err != nil {
			return err
		}
		v, ok := inst.Fields[entry.FieldName]
		if !ok {
			return fmt.Errorf("interp: %w: %s", jvmerr.ErrMethodNotFound, entry.FieldName)
		}
		f.Push(v)
		return nil

	case classfile.OpPutfield:
		val := f.Pop()
		ref := f.Pop()
		if ref.Ref.IsNil() {
			exc, err := t.newException("java/lang/NullPointerException", "putfield on null")
			if err != nil {
				return err
			}
			return exc
		}
		inst, err := t.instanceAt(ref.Ref)
		if err != nil {
			return err
		}
		inst.Fields[entry.FieldName] = val
		return nil
	}
	return fmt.Errorf("interp: unreachable field opcode 0x%02X", op)
}

func (t *Thread) instanceAt(h gc.Handle) (*classloader.Instance, error) {
	hdr, err := t.vm.Heap.Load(h)
	if err != nil {
		return nil, err
	}
	inst, ok := hdr.Payload.(*classloader.Instance)
	if !ok {
		return nil, fmt.Errorf("interp: handle does not reference an Instance")
	}
	return inst, nil
}

func (t *Thread) arrayAt(h gc.Handle) (*classloader.Array, error) {
	hdr, err := t.vm.Heap.Load(h)
	if err != nil {
		return nil, err
	}
	arr, ok := hdr.Payload.(*classloader.Array)
	if !ok {
		return nil, fmt.Errorf("interp: handle does not reference an Array")
	}
	return arr, nil
}

// execNew implements new/newarray/anewarray/multianewarray.
func (t *Thread) execNew(f *Frame, instr classfile.Instruction, op byte) error {
	switch op {
	case classfile.OpNew:
		entry, _, err := t.poolEntry(f, instr)
		if err != nil {
			return err
		}
		if entry.Kind != classloader.RTClass {
			return fmt.Errorf("interp: constant pool index %d is not a Class", instr.Index)
		}
		if err := t.vm.EnsureInitialized(entry.ClassHandle); err != nil {
			return err
		}
		h, err := t.vm.BlankInstance(entry.ClassHandle)
		if err != nil {
			return err
		}
		f.Push(RefValue(h))
		return nil

	case classfile.OpNewarray:
		length := AsInt(f.Pop())
		h, err := t.vm.ArrayInstance(classloader.ElementKind{Primitive: byte(instr.Index)}, int(length), nil)
		if err != nil {
			return err
		}
		f.Push(RefValue(h))
		return nil

	case classfile.OpAnewarray:
		entry, _, err := t.poolEntry(f, instr)
		if err != nil {
			return err
		}
		if entry.Kind != classloader.RTClass {
			return fmt.Errorf("interp: constant pool index %d is not a Class", instr.Index)
		}
		length := AsInt(f.Pop())
		h, err := t.vm.ArrayInstance(classloader.ElementKind{ElemClass: entry.ClassHandle}, int(length), nil)
		if err != nil {
			return err
		}
		f.Push(RefValue(h))
		return nil

	case classfile.OpMultianewarray:
		entry, _, err := t.poolEntry(f, instr)
		if err != nil {
			return err
		}
		if entry.Kind != classloader.RTClass {
			return fmt.Errorf("interp: constant pool index %d is not a Class", instr.Index)
		}
		dims := int(instr.Index2)
		counts := make([]int32, dims)
		for i := dims - 1; i >= 0; i-- {
			counts[i] = AsInt(f.Pop())
		}
		h, err := t.buildMultiarray(entry.ClassHandle, counts)
		if err != nil {
			return err
		}
		f.Push(RefValue(h))
		return nil
	}
	return fmt.Errorf("interp: unreachable new-family opcode 0x%02X", op)
}

// buildMultiarray recursively allocates a multidimensional array of the
// given (already-loaded) array class, one dimension at a time: the
// outermost dimension holds references to (dims-1)-dimensional arrays.
func (t *Thread) buildMultiarray(arrayClass gc.Handle, counts []int32) (gc.Handle, error) {
	class := t.classOf(arrayClass)
	if class == nil || !class.IsArrayClass {
		return gc.NilHandle, fmt.Errorf("interp: multianewarray: %s is not an array class", t.classNameOf(arrayClass))
	}
	length := int(counts[0])
	if len(counts) == 1 {
		return t.vm.ArrayInstance(class.ArrayElem, length, nil)
	}
	if !class.ArrayElem.IsReference() {
		return gc.NilHandle, fmt.Errorf("interp: multianewarray: dimension mismatch for %s", class.Name)
	}
	elems := make([]Value, length)
	for i := range elems {
		sub, err := t.buildMultiarray(class.ArrayElem.ElemClass, counts[1:])
		if err != nil {
			return gc.NilHandle, err
		}
		elems[i] = RefValue(sub)
	}
	return t.vm.ArrayInstance(class.ArrayElem, length, elems)
}

func (t *Thread) execArrayLength(f *Frame) error {
	ref := f.Pop()
	if ref.Ref.IsNil() {
		exc, err := t.newException("java/lang/NullPointerException", "arraylength on null")
		if err != nil {
			return err
		}
		return exc
	}
	arr, err := t.arrayAt(ref.Ref)
	if err != nil {
		return err
	}
	f.Push(IntValue(int32(arr.Length())))
	return nil
}

func (t *Thread) execArrayLoad(f *Frame) error {
	index := AsInt(f.Pop())
	ref := f.Pop()
	if ref.Ref.IsNil() {
		exc, err := t.newException("java/lang/NullPointerException", "array load on null")
		if err != nil {
			return err
		}
		return exc
	}
	arr, err := t.arrayAt(ref.Ref)
	if err != nil {
		return err
	}
	if index < 0 || int(index) >= len(arr.Elements) {
		exc, err := t.newException("java/lang/ArrayIndexOutOfBoundsException", fmt.Sprintf("index %d", index))
		if err != nil {
			return err
		}
		return exc
	}
	f.Push(arr.Elements[index])
	return nil
}

func (t *Thread) execArrayStore(f *Frame, op byte) error {
	val := f.Pop()
	index := AsInt(f.Pop())
	ref := f.Pop()
	if ref.Ref.IsNil() {
		exc, err := t.newException("java/lang/NullPointerException", "array store on null")
		if err != nil {
			return err
		}
		return exc
	}
	arr, err := t.arrayAt(ref.Ref)
	if err != nil {
		return err
	}
	if index < 0 || int(index) >= len(arr.Elements) {
		exc, err := t.newException("java/lang/ArrayIndexOutOfBoundsException", fmt.Sprintf("index %d", index))
		if err != nil {
			return err
		}
		return exc
	}
	if op == classfile.OpAastore && arr.ElemKind.IsReference() && !val.Ref.IsNil() {
		if !t.isInstanceOf(val.Ref, arr.ElemKind.ElemClass) {
			exc, err := t.newException("java/lang/ArrayStoreException", t.classNameOf(val.Ref))
			if err != nil {
				return err
			}
			return exc
		}
	}
	arr.Elements[index] = val
	return nil
}

// execCastCheck implements checkcast/instanceof, both resting on
// isInstanceOf (§4.6, grounded on the teacher's isInstanceOf).
func (t *Thread) execCastCheck(f *Frame, instr classfile.Instruction, op byte) error {
	entry, _, err := t.poolEntry(f, instr)
	if err != nil {
		return err
	}
	if entry.Kind != classloader.RTClass {
		return fmt.Errorf("interp: constant pool index %d is not a Class", instr.Index)
	}

	if op == classfile.OpInstanceof {
		ref := f.Pop()
		if ref.Ref.IsNil() {
			f.Push(IntValue(0))
			return nil
		}
		f.Push(BoolValue(t.isInstanceOf(ref.Ref, entry.ClassHandle)))
		return nil
	}

	// checkcast leaves the reference on the stack, checked in place.
	top := f.Stack[f.sp-1]
	if top.Ref.IsNil() {
		return nil
	}
	if !t.isInstanceOf(top.Ref, entry.ClassHandle) {
		exc, err := t.newException("java/lang/ClassCastException",
			fmt.Sprintf("%s cannot be cast to %s", t.classNameOf(top.Ref), t.classNameOf(entry.ClassHandle)))
		if err != nil {
			return err
		}
		return exc
	}
	return nil
}

// isInstanceOf reports whether obj's runtime class is target or a
// sub/implementor of it, walking the superclass chain and recursing into
// implemented interfaces. Grounded on the teacher's
// vm.go:isInstanceOf/isInstanceOfWithVisited, generalized from *JObject's
// bare ClassName string to this repository's handle-linked Class graph; a
// visited set guards against a malformed, cyclic interface graph looping
// forever.
func (t *Thread) isInstanceOf(obj gc.Handle, target gc.Handle) bool {
	hdr, err := t.vm.Heap.Load(obj)
	if err != nil {
		return false
	}
	var objClass gc.Handle
	switch p := hdr.Payload.(type) {
	case *classloader.Instance:
		objClass = p.Class
	case *classloader.Array:
		return t.arrayIsInstanceOf(p, target)
	default:
		return false
	}
	return t.classIsInstanceOf(objClass, target, make(map[gc.Handle]bool))
}

func (t *Thread) arrayIsInstanceOf(arr *classloader.Array, target gc.Handle) bool {
	targetClass := t.classOf(target)
	if targetClass == nil {
		return false
	}
	if targetClass.Name == "java/lang/Object" {
		return true
	}
	if !targetClass.IsArrayClass {
		return false
	}
	if arr.ElemKind.IsReference() != targetClass.ArrayElem.IsReference() {
		return false
	}
	if !arr.ElemKind.IsReference() {
		return arr.ElemKind.Primitive == targetClass.ArrayElem.Primitive
	}
	return t.classIsInstanceOf(arr.ElemKind.ElemClass, targetClass.ArrayElem.ElemClass, make(map[gc.Handle]bool))
}

func (t *Thread) classIsInstanceOf(class gc.Handle, target gc.Handle, visited map[gc.Handle]bool) bool {
	cur := class
	for !cur.IsNil() {
		if cur == target {
			return true
		}
		if visited[cur] {
			break
		}
		visited[cur] = true
		c := t.classOf(cur)
		if c == nil {
			break
		}
		for _, iface := range c.Interfaces {
			if t.classIsInstanceOf(iface, target, visited) {
				return true
			}
		}
		cur = c.Super
	}
	return false
}

// newException loads className (best-effort: java.lang.* exception classes
// are expected to be present on any real classpath, but a from-scratch
// bootstrap may be running without them) and returns a *JavaException
// wrapping a blank instance of it with its "message" field set, so callers
// can `return t.newException(...)` directly as the interpreter's error.
func (t *Thread) newException(className, message string) (*JavaException, error) {
	classHandle, err := t.vm.LoadClass(className)
	if err != nil {
		return nil, fmt.Errorf("interp: %s: %w", className, err)
	}
	instHandle, err := t.vm.BlankInstance(classHandle)
	if err != nil {
		return nil, err
	}
	inst, err := t.instanceAt(instHandle)
	if err != nil {
		return nil, err
	}
	msgHandle, err := t.vm.NewString(message)
	if err != nil {
		return nil, err
	}
	inst.Fields["message"] = RefValue(msgHandle)
	return NewJavaException(instHandle), nil
}
