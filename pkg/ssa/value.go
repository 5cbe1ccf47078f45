package ssa

import (
	"errors"

	"github.com/arfarlow/tinyjvm/pkg/classloader"
)

// ErrUnsupportedOp is returned by Build when it meets bytecode outside the
// narrow subset this lifter lowers (see package doc).
var ErrUnsupportedOp = errors.New("ssa: opcode not supported by the lifter")

// ValueID names one SSA value: every Declare/Add/Sub/Mul/Divide/Phi
// produces exactly one, and ids are never reused (the defining property of
// SSA — each value is assigned exactly once).
type ValueID int

// Op is the SSA instruction kind. Arithmetic is intentionally untyped by
// bit width: Add/Sub/Mul/Divide read whatever numeric payload their operand
// Values carry, the same simplification pkg/interp's one-slot-per-Value
// stack model already makes.
type Op int

const (
	OpDeclare Op = iota
	OpAdd
	OpSub
	OpMul
	OpDivide
	OpCompareLE
	OpReturn
	OpGoto
	OpPhi
)

func (op Op) String() string {
	switch op {
	case OpDeclare:
		return "declare"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDivide:
		return "divide"
	case OpCompareLE:
		return "compare_le"
	case OpReturn:
		return "return"
	case OpGoto:
		return "goto"
	case OpPhi:
		return "phi"
	default:
		return "unknown"
	}
}

// Operand is either a literal constant or a reference to a previously
// defined SSA value.
type Operand struct {
	IsConst bool
	Const   classloader.Value // valid iff IsConst
	Value   ValueID           // valid iff !IsConst
}

func ConstOperand(v classloader.Value) Operand { return Operand{IsConst: true, Const: v} }
func VarOperand(id ValueID) Operand            { return Operand{Value: id} }

// PhiOperand is one (predecessor, value) pair of a Phi instruction.
type PhiOperand struct {
	Pred  BlockID
	Value ValueID
	// Undefined is set when Pred had not yet been lowered at the point this
	// phi was built (a back-edge from a loop body, say): the lifter is a
	// single forward pass over ascending block order, so loop-carried phis
	// only fill in operands for predecessors already visited (§9/§4.7 — the
	// spec calls this lifter's phi insertion "partial ... experimental").
	Undefined bool
}

// Instruction is one lowered SSA instruction. Not every field is
// meaningful for every Op; callers switch on Op first, same convention
// classfile.Instruction uses for bytecode.
type Instruction struct {
	Op  Op
	Dst ValueID // Declare, Add, Sub, Mul, Divide, Phi

	Args []Operand // Declare: [constant]; Add/Sub/Mul/Divide: [a, b]; CompareLE: [a, b]; Return: [v] or nil for void

	Pass, Fail BlockID // CompareLE
	Target     BlockID // Goto

	Phi []PhiOperand // Phi
}
