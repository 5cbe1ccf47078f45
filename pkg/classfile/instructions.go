package classfile

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/jvmerr"
)

// Opcodes (JVMS8 chapter 6). Only mnemonics this interpreter dispatches on
// are named; anything absent from this table but present in a class file
// surfaces as ErrUnknownOpcode at decode time.
const (
	OpNop         = 0x00
	OpAconstNull  = 0x01
	OpIconstM1    = 0x02
	OpIconst0     = 0x03
	OpIconst1     = 0x04
	OpIconst2     = 0x05
	OpIconst3     = 0x06
	OpIconst4     = 0x07
	OpIconst5     = 0x08
	OpLconst0     = 0x09
	OpLconst1     = 0x0A
	OpFconst0     = 0x0B
	OpFconst1     = 0x0C
	OpFconst2     = 0x0D
	OpDconst0     = 0x0E
	OpDconst1     = 0x0F
	OpBipush      = 0x10
	OpSipush      = 0x11
	OpLdc         = 0x12
	OpLdcW        = 0x13
	OpLdc2W       = 0x14
	OpIload       = 0x15
	OpLload       = 0x16
	OpFload       = 0x17
	OpDload       = 0x18
	OpAload       = 0x19
	OpIload0      = 0x1A
	OpIload1      = 0x1B
	OpIload2      = 0x1C
	OpIload3      = 0x1D
	OpLload0      = 0x1E
	OpLload1      = 0x1F
	OpLload2      = 0x20
	OpLload3      = 0x21
	OpFload0      = 0x22
	OpFload1      = 0x23
	OpFload2      = 0x24
	OpFload3      = 0x25
	OpDload0      = 0x26
	OpDload1      = 0x27
	OpDload2      = 0x28
	OpDload3      = 0x29
	OpAload0      = 0x2A
	OpAload1      = 0x2B
	OpAload2      = 0x2C
	OpAload3      = 0x2D
	OpIaload      = 0x2E
	OpLaload      = 0x2F
	OpFaload      = 0x30
	OpDaload      = 0x31
	OpAaload      = 0x32
	OpBaload      = 0x33
	OpCaload      = 0x34
	OpSaload      = 0x35
	OpIstore      = 0x36
	OpLstore      = 0x37
	OpFstore      = 0x38
	OpDstore      = 0x39
	OpAstore      = 0x3A
	OpIstore0     = 0x3B
	OpIstore1     = 0x3C
	OpIstore2     = 0x3D
	OpIstore3     = 0x3E
	OpLstore0     = 0x3F
	OpLstore1     = 0x40
	OpLstore2     = 0x41
	OpLstore3     = 0x42
	OpFstore0     = 0x43
	OpFstore1     = 0x44
	OpFstore2     = 0x45
	OpFstore3     = 0x46
	OpDstore0     = 0x47
	OpDstore1     = 0x48
	OpDstore2     = 0x49
	OpDstore3     = 0x4A
	OpAstore0     = 0x4B
	OpAstore1     = 0x4C
	OpAstore2     = 0x4D
	OpAstore3     = 0x4E
	OpIastore     = 0x4F
	OpLastore     = 0x50
	OpFastore     = 0x51
	OpDastore     = 0x52
	OpAastore     = 0x53
	OpBastore     = 0x54
	OpCastore     = 0x55
	OpSastore     = 0x56
	OpPop         = 0x57
	OpPop2        = 0x58
	OpDup         = 0x59
	OpDupX1       = 0x5A
	OpDupX2       = 0x5B
	OpDup2        = 0x5C
	OpDup2X1      = 0x5D
	OpDup2X2      = 0x5E
	OpSwap        = 0x5F
	OpIadd        = 0x60
	OpLadd        = 0x61
	OpFadd        = 0x62
	OpDadd        = 0x63
	OpIsub        = 0x64
	OpLsub        = 0x65
	OpFsub        = 0x66
	OpDsub        = 0x67
	OpImul        = 0x68
	OpLmul        = 0x69
	OpFmul        = 0x6A
	OpDmul        = 0x6B
	OpIdiv        = 0x6C
	OpLdiv        = 0x6D
	OpFdiv        = 0x6E
	OpDdiv        = 0x6F
	OpIrem        = 0x70
	OpLrem        = 0x71
	OpFrem        = 0x72
	OpDrem        = 0x73
	OpIneg        = 0x74
	OpLneg        = 0x75
	OpFneg        = 0x76
	OpDneg        = 0x77
	OpIshl        = 0x78
	OpLshl        = 0x79
	OpIshr        = 0x7A
	OpLshr        = 0x7B
	OpIushr       = 0x7C
	OpLushr       = 0x7D
	OpIand        = 0x7E
	OpLand        = 0x7F
	OpIor         = 0x80
	OpLor         = 0x81
	OpIxor        = 0x82
	OpLxor        = 0x83
	OpIinc        = 0x84
	OpI2l         = 0x85
	OpI2f         = 0x86
	OpI2d         = 0x87
	OpL2i         = 0x88
	OpL2f         = 0x89
	OpL2d         = 0x8A
	OpF2i         = 0x8B
	OpF2l         = 0x8C
	OpF2d         = 0x8D
	OpD2i         = 0x8E
	OpD2l         = 0x8F
	OpD2f         = 0x90
	OpI2b         = 0x91
	OpI2c         = 0x92
	OpI2s         = 0x93
	OpLcmp        = 0x94
	OpFcmpl       = 0x95
	OpFcmpg       = 0x96
	OpDcmpl       = 0x97
	OpDcmpg       = 0x98
	OpIfeq        = 0x99
	OpIfne        = 0x9A
	OpIflt        = 0x9B
	OpIfge        = 0x9C
	OpIfgt        = 0x9D
	OpIfle        = 0x9E
	OpIfIcmpeq    = 0x9F
	OpIfIcmpne    = 0xA0
	OpIfIcmplt    = 0xA1
	OpIfIcmpge    = 0xA2
	OpIfIcmpgt    = 0xA3
	OpIfIcmple    = 0xA4
	OpIfAcmpeq    = 0xA5
	OpIfAcmpne    = 0xA6
	OpGoto        = 0xA7
	OpJsr         = 0xA8
	OpRet         = 0xA9
	OpTableswitch = 0xAA
	OpLookupswitch = 0xAB
	OpIreturn     = 0xAC
	OpLreturn     = 0xAD
	OpFreturn     = 0xAE
	OpDreturn     = 0xAF
	OpAreturn     = 0xB0
	OpReturn      = 0xB1
	OpGetstatic   = 0xB2
	OpPutstatic   = 0xB3
	OpGetfield    = 0xB4
	OpPutfield    = 0xB5
	OpInvokevirtual   = 0xB6
	OpInvokespecial   = 0xB7
	OpInvokestatic    = 0xB8
	OpInvokeinterface = 0xB9
	OpInvokedynamic   = 0xBA
	OpNew         = 0xBB
	OpNewarray    = 0xBC
	OpAnewarray   = 0xBD
	OpArraylength = 0xBE
	OpAthrow      = 0xBF
	OpCheckcast   = 0xC0
	OpInstanceof  = 0xC1
	OpMonitorenter = 0xC2
	OpMonitorexit  = 0xC3
	OpWide         = 0xC4
	OpMultianewarray = 0xC5
	OpIfnull       = 0xC6
	OpIfnonnull    = 0xC7
	OpGotoW        = 0xC8
	OpJsrW         = 0xC9
)

// Array type codes for newarray (JVMS8 §6.5.newarray Table 6.1).
const (
	ArrBoolean = 4
	ArrChar    = 5
	ArrFloat   = 6
	ArrDouble  = 7
	ArrByte    = 8
	ArrShort   = 9
	ArrInt     = 10
	ArrLong    = 11
)

// Instruction is one decoded bytecode instruction. Not every field is
// meaningful for every opcode; callers switch on Opcode first.
type Instruction struct {
	Offset int // byte offset of the opcode itself
	Opcode byte
	Wide   bool // decoded from a preceding "wide" prefix

	// Index covers: local variable slot (*load/*store/ret/iinc), constant
	// pool index (ldc family, field/method refs, new, (a)checkcast,
	// instanceof, multianewarray), bipush/sipush/newarray immediates, and
	// branch displacement storage prior to resolution.
	Index  int32
	Index2 int32 // iinc's const, invokeinterface's count, multianewarray's dimensions

	// BranchTarget is the absolute byte offset of the jump target, already
	// resolved from the instruction's signed displacement.
	BranchTarget int32

	// Switch-only fields.
	DefaultTarget int32
	Low, High     int32   // tableswitch
	JumpTargets   []int32 // tableswitch: dense by (key-Low); lookupswitch: by Matches index
	Matches       []int32 // lookupswitch match keys, ascending
}

// InstructionList is a decoded Code attribute's instruction stream plus the
// bijective code-index <-> byte-offset maps (§8 round-trip law): a branch
// displacement resolves to a byte offset, which must map back to exactly
// one instruction index.
type InstructionList struct {
	Instructions  []Instruction
	offsetToIndex map[int]int
	indexToOffset []int
}

// IndexByOffset maps a byte offset to its instruction index.
func (l *InstructionList) IndexByOffset(offset int) (int, bool) {
	idx, ok := l.offsetToIndex[offset]
	return idx, ok
}

// OffsetByIndex maps an instruction index to its byte offset.
func (l *InstructionList) OffsetByIndex(index int) (int, bool) {
	if index < 0 || index >= len(l.indexToOffset) {
		return 0, false
	}
	return l.indexToOffset[index], true
}

// Len reports the number of decoded instructions.
func (l *InstructionList) Len() int { return len(l.Instructions) }

// DecodeInstructions decodes a Code attribute's raw bytecode array into an
// InstructionList. It performs purely structural decoding: operand byte
// counts, switch padding/alignment, and the wide-prefix widening rule
// (JVMS8 §6.5.wide). It does not validate that constant-pool indices or
// branch targets are meaningful, and pkg/verify checks only the constant
// pool itself: a bad index or target surfaces when pkg/interp or pkg/ssa
// resolves it.
func DecodeInstructions(code []byte) (InstructionList, error) {
	var list InstructionList
	list.offsetToIndex = make(map[int]int)

	pc := 0
	for pc < len(code) {
		start := pc
		opcode := code[pc]
		pc++

		wide := false
		if opcode == OpWide {
			if pc >= len(code) {
				return InstructionList{}, fmt.Errorf("%w: truncated wide prefix at offset %d", jvmerr.ErrUnknownOpcode, start)
			}
			wide = true
			opcode = code[pc]
			pc++
		}

		inst := Instruction{Offset: start, Opcode: opcode, Wide: wide}

		switch opcode {
		case OpNop, OpAconstNull,
			OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5,
			OpLconst0, OpLconst1, OpFconst0, OpFconst1, OpFconst2, OpDconst0, OpDconst1,
			OpIaload, OpLaload, OpFaload, OpDaload, OpAaload, OpBaload, OpCaload, OpSaload,
			OpIastore, OpLastore, OpFastore, OpDastore, OpAastore, OpBastore, OpCastore, OpSastore,
			OpPop, OpPop2, OpDup, OpDupX1, OpDupX2, OpDup2, OpDup2X1, OpDup2X2, OpSwap,
			OpIadd, OpLadd, OpFadd, OpDadd, OpIsub, OpLsub, OpFsub, OpDsub,
			OpImul, OpLmul, OpFmul, OpDmul, OpIdiv, OpLdiv, OpFdiv, OpDdiv,
			OpIrem, OpLrem, OpFrem, OpDrem, OpIneg, OpLneg, OpFneg, OpDneg,
			OpIshl, OpLshl, OpIshr, OpLshr, OpIushr, OpLushr, OpIand, OpLand, OpIor, OpLor, OpIxor, OpLxor,
			OpI2l, OpI2f, OpI2d, OpL2i, OpL2f, OpL2d, OpF2i, OpF2l, OpF2d, OpD2i, OpD2l, OpD2f,
			OpI2b, OpI2c, OpI2s, OpLcmp, OpFcmpl, OpFcmpg, OpDcmpl, OpDcmpg,
			OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn,
			OpArraylength, OpAthrow, OpMonitorenter, OpMonitorexit,
			OpIload0, OpIload1, OpIload2, OpIload3, OpLload0, OpLload1, OpLload2, OpLload3,
			OpFload0, OpFload1, OpFload2, OpFload3, OpDload0, OpDload1, OpDload2, OpDload3,
			OpAload0, OpAload1, OpAload2, OpAload3,
			OpIstore0, OpIstore1, OpIstore2, OpIstore3, OpLstore0, OpLstore1, OpLstore2, OpLstore3,
			OpFstore0, OpFstore1, OpFstore2, OpFstore3, OpDstore0, OpDstore1, OpDstore2, OpDstore3,
			OpAstore0, OpAstore1, OpAstore2, OpAstore3:
			// no operands

		case OpBipush:
			if err := need(code, pc, 1); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(int8(code[pc]))
			pc++

		case OpNewarray:
			if err := need(code, pc, 1); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(code[pc])
			pc++

		case OpLdc:
			if err := need(code, pc, 1); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(code[pc])
			pc++

		case OpSipush:
			if err := need(code, pc, 2); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(int16(u16(code, pc)))
			pc += 2

		case OpLdcW, OpLdc2W, OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
			OpInvokevirtual, OpInvokespecial, OpInvokestatic,
			OpNew, OpAnewarray, OpCheckcast, OpInstanceof:
			if err := need(code, pc, 2); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(u16(code, pc))
			pc += 2

		case OpInvokeinterface:
			if err := need(code, pc, 4); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(u16(code, pc))
			inst.Index2 = int32(code[pc+2]) // count
			if code[pc+3] != 0 {
				return InstructionList{}, &jvmerr.CodeVerificationError{Kind: jvmerr.InvokeInterfaceNotZero, Info: fmt.Sprintf("offset %d", start)}
			}
			pc += 4

		case OpInvokedynamic:
			if err := need(code, pc, 4); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(u16(code, pc))
			if code[pc+2] != 0 || code[pc+3] != 0 {
				return InstructionList{}, &jvmerr.CodeVerificationError{Kind: jvmerr.BadConstantPoolIndex, Info: fmt.Sprintf("invokedynamic trailing bytes at offset %d", start)}
			}
			pc += 4

		case OpMultianewarray:
			if err := need(code, pc, 3); err != nil {
				return InstructionList{}, err
			}
			inst.Index = int32(u16(code, pc))
			inst.Index2 = int32(code[pc+2]) // dimensions
			pc += 3

		case OpIload, OpLload, OpFload, OpDload, OpAload,
			OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpRet:
			if wide {
				if err := need(code, pc, 2); err != nil {
					return InstructionList{}, err
				}
				inst.Index = int32(u16(code, pc))
				pc += 2
			} else {
				if err := need(code, pc, 1); err != nil {
					return InstructionList{}, err
				}
				inst.Index = int32(code[pc])
				pc++
			}

		case OpIinc:
			if wide {
				if err := need(code, pc, 4); err != nil {
					return InstructionList{}, err
				}
				inst.Index = int32(u16(code, pc))
				inst.Index2 = int32(int16(u16(code, pc+2)))
				pc += 4
			} else {
				if err := need(code, pc, 2); err != nil {
					return InstructionList{}, err
				}
				inst.Index = int32(code[pc])
				inst.Index2 = int32(int8(code[pc+1]))
				pc += 2
			}

		case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle,
			OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple,
			OpIfAcmpeq, OpIfAcmpne, OpGoto, OpJsr, OpIfnull, OpIfnonnull:
			if err := need(code, pc, 2); err != nil {
				return InstructionList{}, err
			}
			disp := int32(int16(u16(code, pc)))
			inst.BranchTarget = int32(start) + disp
			pc += 2

		case OpGotoW, OpJsrW:
			if err := need(code, pc, 4); err != nil {
				return InstructionList{}, err
			}
			disp := int32(u32(code, pc))
			inst.BranchTarget = int32(start) + disp
			pc += 4

		case OpTableswitch:
			// pad to 4-byte alignment relative to the start of the code array
			pad := (4 - (pc % 4)) % 4
			if err := need(code, pc, pad+8); err != nil {
				return InstructionList{}, err
			}
			pc += pad
			defaultDisp := int32(u32(code, pc))
			low := int32(u32(code, pc+4))
			high := int32(u32(code, pc+8))
			pc += 12
			if low > high {
				return InstructionList{}, &jvmerr.CodeVerificationError{Kind: jvmerr.TableSwitchLowGtHigh, Info: fmt.Sprintf("low=%d high=%d at offset %d", low, high, start)}
			}
			count := int(high - low + 1)
			if err := need(code, pc, count*4); err != nil {
				return InstructionList{}, err
			}
			targets := make([]int32, count)
			for i := 0; i < count; i++ {
				disp := int32(u32(code, pc))
				targets[i] = int32(start) + disp
				pc += 4
			}
			inst.DefaultTarget = int32(start) + defaultDisp
			inst.Low = low
			inst.High = high
			inst.JumpTargets = targets

		case OpLookupswitch:
			pad := (4 - (pc % 4)) % 4
			if err := need(code, pc, pad+8); err != nil {
				return InstructionList{}, err
			}
			pc += pad
			defaultDisp := int32(u32(code, pc))
			npairs := int32(u32(code, pc+4))
			pc += 8
			if npairs < 0 {
				return InstructionList{}, &jvmerr.CodeVerificationError{Kind: jvmerr.LookupSwitchBadSort, Info: fmt.Sprintf("negative npairs at offset %d", start)}
			}
			if err := need(code, pc, int(npairs)*8); err != nil {
				return InstructionList{}, err
			}
			matches := make([]int32, npairs)
			targets := make([]int32, npairs)
			for i := int32(0); i < npairs; i++ {
				matches[i] = int32(u32(code, pc))
				disp := int32(u32(code, pc+4))
				targets[i] = int32(start) + disp
				pc += 8
				if i > 0 && matches[i] <= matches[i-1] {
					return InstructionList{}, &jvmerr.CodeVerificationError{Kind: jvmerr.LookupSwitchBadSort, Info: fmt.Sprintf("match keys not strictly ascending at offset %d", start)}
				}
			}
			inst.DefaultTarget = int32(start) + defaultDisp
			inst.Matches = matches
			inst.JumpTargets = targets

		default:
			return InstructionList{}, fmt.Errorf("%w: opcode 0x%02X at offset %d", jvmerr.ErrUnknownOpcode, opcode, start)
		}

		idx := len(list.Instructions)
		list.Instructions = append(list.Instructions, inst)
		list.offsetToIndex[start] = idx
		list.indexToOffset = append(list.indexToOffset, start)
	}

	return list, nil
}

func need(code []byte, pc, n int) error {
	if pc+n > len(code) {
		return fmt.Errorf("%w: truncated operand at offset %d, need %d bytes", jvmerr.ErrIO, pc, n)
	}
	return nil
}

func u16(code []byte, pc int) uint16 {
	return uint16(code[pc])<<8 | uint16(code[pc+1])
}

func u32(code []byte, pc int) uint32 {
	return uint32(code[pc])<<24 | uint32(code[pc+1])<<16 | uint32(code[pc+2])<<8 | uint32(code[pc+3])
}
