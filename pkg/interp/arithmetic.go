package interp

import (
	"math"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
)

// execArithmetic covers the constant/stack/arithmetic/conversion/comparison
// opcode families: every one of them is a pure function of the operand
// stack (and, for *const*/iinc, a local slot), so they share one dispatch
// point distinct from the stateful families (branches, invocation,
// fields/arrays) in exec.go. Numeric semantics follow spec.md §4.6 exactly:
// modular two's complement, MinInt32/-1 == MinInt32, division/remainder by
// zero is an arithmetic fault, IEEE-754 float/double via math.
func (t *Thread) execArithmetic(f *Frame, op byte) (handled bool, err error) {
	switch op {
	case classfile.OpIconstM1, classfile.OpIconst0, classfile.OpIconst1, classfile.OpIconst2, classfile.OpIconst3, classfile.OpIconst4, classfile.OpIconst5:
		f.Push(IntValue(int32(op) - int32(classfile.OpIconst0)))
	case classfile.OpLconst0, classfile.OpLconst1:
		f.Push(LongValue(int64(op - classfile.OpLconst0)))
	case classfile.OpFconst0, classfile.OpFconst1, classfile.OpFconst2:
		f.Push(FloatValue(float32(op - classfile.OpFconst0)))
	case classfile.OpDconst0, classfile.OpDconst1:
		f.Push(DoubleValue(float64(op - classfile.OpDconst0)))
	case classfile.OpAconstNull:
		f.Push(NullValue())

	case classfile.OpIadd:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a + b))
	case classfile.OpLadd:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a + b))
	case classfile.OpFadd:
		b, a := AsFloat(f.Pop()), AsFloat(f.Pop())
		f.Push(FloatValue(a + b))
	case classfile.OpDadd:
		b, a := AsDouble(f.Pop()), AsDouble(f.Pop())
		f.Push(DoubleValue(a + b))

	case classfile.OpIsub:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a - b))
	case classfile.OpLsub:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a - b))
	case classfile.OpFsub:
		b, a := AsFloat(f.Pop()), AsFloat(f.Pop())
		f.Push(FloatValue(a - b))
	case classfile.OpDsub:
		b, a := AsDouble(f.Pop()), AsDouble(f.Pop())
		f.Push(DoubleValue(a - b))

	case classfile.OpImul:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a * b))
	case classfile.OpLmul:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a * b))
	case classfile.OpFmul:
		b, a := AsFloat(f.Pop()), AsFloat(f.Pop())
		f.Push(FloatValue(a * b))
	case classfile.OpDmul:
		b, a := AsDouble(f.Pop()), AsDouble(f.Pop())
		f.Push(DoubleValue(a * b))

	case classfile.OpIdiv:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		if b == 0 {
			return true, arithmeticException(t, "/ by zero")
		}
		if a == math.MinInt32 && b == -1 {
			f.Push(IntValue(math.MinInt32))
		} else {
			f.Push(IntValue(a / b))
		}
	case classfile.OpLdiv:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		if b == 0 {
			return true, arithmeticException(t, "/ by zero")
		}
		if a == math.MinInt64 && b == -1 {
			f.Push(LongValue(math.MinInt64))
		} else {
			f.Push(LongValue(a / b))
		}
	case classfile.OpFdiv:
		b, a := AsFloat(f.Pop()), AsFloat(f.Pop())
		f.Push(FloatValue(a / b))
	case classfile.OpDdiv:
		b, a := AsDouble(f.Pop()), AsDouble(f.Pop())
		f.Push(DoubleValue(a / b))

	case classfile.OpIrem:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		if b == 0 {
			return true, arithmeticException(t, "/ by zero")
		}
		f.Push(IntValue(a % b))
	case classfile.OpLrem:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		if b == 0 {
			return true, arithmeticException(t, "/ by zero")
		}
		f.Push(LongValue(a % b))
	case classfile.OpFrem:
		b, a := AsFloat(f.Pop()), AsFloat(f.Pop())
		f.Push(FloatValue(float32(math.Mod(float64(a), float64(b)))))
	case classfile.OpDrem:
		b, a := AsDouble(f.Pop()), AsDouble(f.Pop())
		f.Push(DoubleValue(math.Mod(a, b)))

	case classfile.OpIneg:
		f.Push(IntValue(-AsInt(f.Pop())))
	case classfile.OpLneg:
		f.Push(LongValue(-AsLong(f.Pop())))
	case classfile.OpFneg:
		f.Push(FloatValue(-AsFloat(f.Pop())))
	case classfile.OpDneg:
		f.Push(DoubleValue(-AsDouble(f.Pop())))

	case classfile.OpIshl:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a << (uint32(b) & 0x1F)))
	case classfile.OpLshl:
		b, a := AsInt(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a << (uint32(b) & 0x3F)))
	case classfile.OpIshr:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a >> (uint32(b) & 0x1F)))
	case classfile.OpLshr:
		b, a := AsInt(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a >> (uint32(b) & 0x3F)))
	case classfile.OpIushr:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(int32(uint32(a) >> (uint32(b) & 0x1F))))
	case classfile.OpLushr:
		b, a := AsInt(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(int64(uint64(a) >> (uint32(b) & 0x3F))))

	case classfile.OpIand:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a & b))
	case classfile.OpLand:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a & b))
	case classfile.OpIor:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a | b))
	case classfile.OpLor:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a | b))
	case classfile.OpIxor:
		b, a := AsInt(f.Pop()), AsInt(f.Pop())
		f.Push(IntValue(a ^ b))
	case classfile.OpLxor:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		f.Push(LongValue(a ^ b))

	case classfile.OpI2l:
		f.Push(LongValue(int64(AsInt(f.Pop()))))
	case classfile.OpI2f:
		f.Push(FloatValue(float32(AsInt(f.Pop()))))
	case classfile.OpI2d:
		f.Push(DoubleValue(float64(AsInt(f.Pop()))))
	case classfile.OpL2i:
		f.Push(IntValue(int32(AsLong(f.Pop()))))
	case classfile.OpL2f:
		f.Push(FloatValue(float32(AsLong(f.Pop()))))
	case classfile.OpL2d:
		f.Push(DoubleValue(float64(AsLong(f.Pop()))))
	case classfile.OpF2i:
		f.Push(IntValue(floatToInt32(AsFloat(f.Pop()))))
	case classfile.OpF2l:
		f.Push(LongValue(floatToInt64(AsFloat(f.Pop()))))
	case classfile.OpF2d:
		f.Push(DoubleValue(float64(AsFloat(f.Pop()))))
	case classfile.OpD2i:
		f.Push(IntValue(doubleToInt32(AsDouble(f.Pop()))))
	case classfile.OpD2l:
		f.Push(LongValue(doubleToInt64(AsDouble(f.Pop()))))
	case classfile.OpD2f:
		f.Push(FloatValue(float32(AsDouble(f.Pop()))))
	case classfile.OpI2b:
		f.Push(IntValue(int32(int8(AsInt(f.Pop())))))
	case classfile.OpI2c:
		f.Push(IntValue(int32(uint16(AsInt(f.Pop())))))
	case classfile.OpI2s:
		f.Push(IntValue(int32(int16(AsInt(f.Pop())))))

	case classfile.OpLcmp:
		b, a := AsLong(f.Pop()), AsLong(f.Pop())
		f.Push(IntValue(cmp3(a, b)))
	case classfile.OpFcmpl:
		b, a := AsFloat(f.Pop()), AsFloat(f.Pop())
		f.Push(IntValue(fcmp3(float64(a), float64(b), -1)))
	case classfile.OpFcmpg:
		b, a := AsFloat(f.Pop()), AsFloat(f.Pop())
		f.Push(IntValue(fcmp3(float64(a), float64(b), 1)))
	case classfile.OpDcmpl:
		b, a := AsDouble(f.Pop()), AsDouble(f.Pop())
		f.Push(IntValue(fcmp3(a, b, -1)))
	case classfile.OpDcmpg:
		b, a := AsDouble(f.Pop()), AsDouble(f.Pop())
		f.Push(IntValue(fcmp3(a, b, 1)))

	case classfile.OpPop:
		f.Pop()
	case classfile.OpPop2:
		f.Pop()
		f.Pop()
	case classfile.OpDup:
		v := f.Pop()
		f.Push(v)
		f.Push(v)
	case classfile.OpDupX1:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case classfile.OpDupX2:
		v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case classfile.OpDup2:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v2)
		f.Push(v1)
	case classfile.OpDup2X1:
		v1, v2, v3 := f.Pop(), f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case classfile.OpDup2X2:
		v1, v2, v3, v4 := f.Pop(), f.Pop(), f.Pop(), f.Pop()
		f.Push(v2)
		f.Push(v1)
		f.Push(v4)
		f.Push(v3)
		f.Push(v2)
		f.Push(v1)
	case classfile.OpSwap:
		v1, v2 := f.Pop(), f.Pop()
		f.Push(v1)
		f.Push(v2)
	case classfile.OpNop:
		// no-op

	default:
		return false, nil
	}
	return true, nil
}

func cmp3(a, b int64) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// fcmp3 implements fcmpl/fcmpg's NaN handling: nanResult is -1 for the *l
// variants and 1 for the *g variants (JVMS8 §6.5 fcmp<op>).
func fcmp3(a, b float64, nanResult int32) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return nanResult
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

func floatToInt32(f float32) int32 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(f)
}

func floatToInt64(f float32) int64 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

func doubleToInt32(d float64) int32 {
	if math.IsNaN(d) {
		return 0
	}
	if d >= math.MaxInt32 {
		return math.MaxInt32
	}
	if d <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(d)
}

func doubleToInt64(d float64) int64 {
	if math.IsNaN(d) {
		return 0
	}
	if d >= math.MaxInt64 {
		return math.MaxInt64
	}
	if d <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(d)
}

func arithmeticException(t *Thread, msg string) error {
	exc, err := t.newException("java/lang/ArithmeticException", msg)
	if err != nil {
		return err
	}
	return exc
}
