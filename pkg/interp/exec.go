package interp

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// exec dispatches a single decoded Instruction against frame f. It returns
// (value, true, nil) on a *return opcode, (Value{}, false, err) on a
// fault (host error or *JavaException, the latter unwound by runFrame),
// and (Value{}, false, nil) otherwise.
func (t *Thread) exec(f *Frame, instr classfile.Instruction) (Value, bool, error) {
	op := instr.Opcode

	if handled, err := t.execArithmetic(f, op); handled {
		return Value{}, false, err
	}

	switch op {
	case classfile.OpBipush, classfile.OpSipush:
		f.Push(IntValue(instr.Index))
	case classfile.OpIinc:
		idx := int(instr.Index)
		f.Locals[idx] = IntValue(AsInt(f.Locals[idx]) + instr.Index2)

	case classfile.OpLdc, classfile.OpLdcW, classfile.OpLdc2W:
		v, err := t.execLdc(f, instr)
		if err != nil {
			return Value{}, false, err
		}
		f.Push(v)

	case classfile.OpIload, classfile.OpLload, classfile.OpFload, classfile.OpDload, classfile.OpAload:
		f.Push(f.Locals[instr.Index])
	case classfile.OpIload0, classfile.OpIload1, classfile.OpIload2, classfile.OpIload3,
		classfile.OpLload0, classfile.OpLload1, classfile.OpLload2, classfile.OpLload3,
		classfile.OpFload0, classfile.OpFload1, classfile.OpFload2, classfile.OpFload3,
		classfile.OpDload0, classfile.OpDload1, classfile.OpDload2, classfile.OpDload3,
		classfile.OpAload0, classfile.OpAload1, classfile.OpAload2, classfile.OpAload3:
		f.Push(f.Locals[shortLoadIndex(op)])

	case classfile.OpIstore, classfile.OpLstore, classfile.OpFstore, classfile.OpDstore, classfile.OpAstore:
		f.Locals[instr.Index] = f.Pop()
	case classfile.OpIstore0, classfile.OpIstore1, classfile.OpIstore2, classfile.OpIstore3,
		classfile.OpLstore0, classfile.OpLstore1, classfile.OpLstore2, classfile.OpLstore3,
		classfile.OpFstore0, classfile.OpFstore1, classfile.OpFstore2, classfile.OpFstore3,
		classfile.OpDstore0, classfile.OpDstore1, classfile.OpDstore2, classfile.OpDstore3,
		classfile.OpAstore0, classfile.OpAstore1, classfile.OpAstore2, classfile.OpAstore3:
		f.Locals[shortStoreIndex(op)] = f.Pop()

	case classfile.OpIreturn, classfile.OpLreturn, classfile.OpFreturn, classfile.OpDreturn, classfile.OpAreturn:
		return f.Pop(), true, nil
	case classfile.OpReturn:
		return Value{}, true, nil

	case classfile.OpGoto, classfile.OpGotoW:
		idx, ok := f.Instructions.IndexByOffset(int(instr.BranchTarget))
		if !ok {
			return Value{}, false, fmt.Errorf("interp: goto target %d has no instruction", instr.BranchTarget)
		}
		f.PC = idx

	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle:
		if compareZero(op, AsInt(f.Pop())) {
			return Value{}, false, t.branchTo(f, instr)
		}
	case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt, classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		if compareInts(op, a, b) {
			return Value{}, false, t.branchTo(f, instr)
		}
	case classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
		b, a := f.Pop(), f.Pop()
		eq := a.Ref == b.Ref
		if op == classfile.OpIfAcmpne {
			eq = !eq
		}
		if eq {
			return Value{}, false, t.branchTo(f, instr)
		}
	case classfile.OpIfnull, classfile.OpIfnonnull:
		v := f.Pop()
		isNull := v.Ref.IsNil()
		if op == classfile.OpIfnonnull {
			isNull = !isNull
		}
		if isNull {
			return Value{}, false, t.branchTo(f, instr)
		}

	case classfile.OpTableswitch:
		key := AsInt(f.Pop())
		target := instr.DefaultTarget
		if key >= instr.Low && key <= instr.High {
			target = instr.JumpTargets[key-instr.Low]
		}
		idx, ok := f.Instructions.IndexByOffset(int(target))
		if !ok {
			return Value{}, false, fmt.Errorf("interp: tableswitch target %d has no instruction", target)
		}
		f.PC = idx
	case classfile.OpLookupswitch:
		key := AsInt(f.Pop())
		target := instr.DefaultTarget
		for i, m := range instr.Matches {
			if m == key {
				target = instr.JumpTargets[i]
				break
			}
		}
		idx, ok := f.Instructions.IndexByOffset(int(target))
		if !ok {
			return Value{}, false, fmt.Errorf("interp: lookupswitch target %d has no instruction", target)
		}
		f.PC = idx

	case classfile.OpAthrow:
		return Value{}, false, t.execAthrow(f)

	case classfile.OpGetstatic, classfile.OpPutstatic, classfile.OpGetfield, classfile.OpPutfield:
		return Value{}, false, t.execFieldAccess(f, instr, op)

	case classfile.OpInvokevirtual, classfile.OpInvokespecial, classfile.OpInvokestatic, classfile.OpInvokeinterface:
		return t.execInvoke(f, instr, op)
	case classfile.OpInvokedynamic:
		return Value{}, false, unsupportedOpcode("invokedynamic")

	case classfile.OpNew, classfile.OpAnewarray, classfile.OpNewarray, classfile.OpMultianewarray:
		return Value{}, false, t.execNew(f, instr, op)
	case classfile.OpArraylength:
		return Value{}, false, t.execArrayLength(f)
	case classfile.OpIaload, classfile.OpLaload, classfile.OpFaload, classfile.OpDaload, classfile.OpAaload, classfile.OpBaload, classfile.OpCaload, classfile.OpSaload:
		return Value{}, false, t.execArrayLoad(f)
	case classfile.OpIastore, classfile.OpLastore, classfile.OpFastore, classfile.OpDastore, classfile.OpAastore, classfile.OpBastore, classfile.OpCastore, classfile.OpSastore:
		return Value{}, false, t.execArrayStore(f, op)

	case classfile.OpCheckcast, classfile.OpInstanceof:
		return Value{}, false, t.execCastCheck(f, instr, op)

	case classfile.OpMonitorenter, classfile.OpMonitorexit:
		f.Pop() // no real monitor support (Non-goal: Thread/synchronization is out of scope)

	case classfile.OpJsr, classfile.OpJsrW, classfile.OpRet:
		return Value{}, false, unsupportedOpcode("jsr/ret")

	case classfile.OpWide:
		// never dispatched directly: the decoder folds `wide` into the
		// widened instruction it prefixes (§4.2/§4.6).

	default:
		return Value{}, false, fmt.Errorf("interp: %w: opcode 0x%02X", jvmerr.ErrUnknownOpcode, op)
	}

	return Value{}, false, nil
}

func (t *Thread) branchTo(f *Frame, instr classfile.Instruction) error {
	idx, ok := f.Instructions.IndexByOffset(int(instr.BranchTarget))
	if !ok {
		return fmt.Errorf("interp: branch target %d has no instruction", instr.BranchTarget)
	}
	f.PC = idx
	return nil
}

func compareZero(op byte, v int32) bool {
	switch op {
	case classfile.OpIfeq:
		return v == 0
	case classfile.OpIfne:
		return v != 0
	case classfile.OpIflt:
		return v < 0
	case classfile.OpIfge:
		return v >= 0
	case classfile.OpIfgt:
		return v > 0
	case classfile.OpIfle:
		return v <= 0
	}
	return false
}

func compareInts(op byte, a, b int32) bool {
	switch op {
	case classfile.OpIfIcmpeq:
		return a == b
	case classfile.OpIfIcmpne:
		return a != b
	case classfile.OpIfIcmplt:
		return a < b
	case classfile.OpIfIcmpge:
		return a >= b
	case classfile.OpIfIcmpgt:
		return a > b
	case classfile.OpIfIcmple:
		return a <= b
	}
	return false
}

func shortLoadIndex(op byte) int32 {
	switch {
	case op >= classfile.OpIload0 && op <= classfile.OpIload3:
		return int32(op - classfile.OpIload0)
	case op >= classfile.OpLload0 && op <= classfile.OpLload3:
		return int32(op - classfile.OpLload0)
	case op >= classfile.OpFload0 && op <= classfile.OpFload3:
		return int32(op - classfile.OpFload0)
	case op >= classfile.OpDload0 && op <= classfile.OpDload3:
		return int32(op - classfile.OpDload0)
	default: // Aload0..Aload3
		return int32(op - classfile.OpAload0)
	}
}

func shortStoreIndex(op byte) int32 {
	switch {
	case op >= classfile.OpIstore0 && op <= classfile.OpIstore3:
		return int32(op - classfile.OpIstore0)
	case op >= classfile.OpLstore0 && op <= classfile.OpLstore3:
		return int32(op - classfile.OpLstore0)
	case op >= classfile.OpFstore0 && op <= classfile.OpFstore3:
		return int32(op - classfile.OpFstore0)
	case op >= classfile.OpDstore0 && op <= classfile.OpDstore3:
		return int32(op - classfile.OpDstore0)
	default: // Astore0..Astore3
		return int32(op - classfile.OpAstore0)
	}
}

func unsupportedOpcode(name string) error {
	return fmt.Errorf("interp: %s: %w", name, jvmerr.ErrUnsupportedOpcode)
}
