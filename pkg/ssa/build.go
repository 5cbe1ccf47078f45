package ssa

import (
	"fmt"
	"math"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
	"github.com/arfarlow/tinyjvm/pkg/classloader"
)

// Function is one method's lifted SSA form.
type Function struct {
	Blocks []*Block
	Params []ValueID // the numLocals Build was given, as implicit inputs to Blocks[0]
}

type builder struct {
	list   classfile.InstructionList
	pool   *classloader.RuntimeConstantPool
	blocks []*Block

	next ValueID

	exitStack  map[BlockID][]ValueID
	exitLocals map[BlockID][]ValueID
	visited    map[BlockID]bool
}

func (b *builder) newValue() ValueID {
	id := b.next
	b.next++
	return id
}

// Build lifts list into SSA form: block discovery (§4.7's basic-block
// discovery) followed by a single forward pass over blocks in ascending
// start-offset order, inserting phis at every multi-predecessor join. pool
// resolves ldc's numeric constants; it may be nil for code that never uses
// ldc. numLocals seeds Blocks[0]'s entry locals with fresh, instruction-less
// Params values (the method's incoming arguments and any other declared
// locals, indistinguishable at this level).
func Build(list classfile.InstructionList, pool *classloader.RuntimeConstantPool, numLocals int) (*Function, error) {
	blocks, err := discoverBlocks(list)
	if err != nil {
		return nil, err
	}

	b := &builder{
		list:       list,
		pool:       pool,
		blocks:     blocks,
		exitStack:  make(map[BlockID][]ValueID),
		exitLocals: make(map[BlockID][]ValueID),
		visited:    make(map[BlockID]bool),
	}

	params := make([]ValueID, numLocals)
	for i := range params {
		params[i] = b.newValue()
	}

	entryStack := []ValueID{}
	entryLocals := append([]ValueID(nil), params...)

	for _, block := range blocks {
		var stack, locals []ValueID
		if block.ID == 0 {
			stack, locals = entryStack, entryLocals
		} else {
			stack, locals, err = b.resolveEntry(block, numLocals)
			if err != nil {
				return nil, err
			}
		}
		if err := b.lowerBlock(block, stack, locals); err != nil {
			return nil, err
		}
		b.visited[block.ID] = true
	}

	return &Function{Blocks: blocks, Params: params}, nil
}

// resolveEntry computes a block's entry stack/locals: a straight copy from
// the single predecessor if there is one, or a phi per slot if there are
// several. A predecessor not yet visited (a loop back-edge, since this
// builder makes one forward pass) contributes an Undefined phi operand
// rather than a value — the lifter does not reconcile loop-carried values
// in a second pass (see PhiOperand.Undefined and the package doc).
func (b *builder) resolveEntry(block *Block, numLocals int) ([]ValueID, []ValueID, error) {
	if len(block.Preds) == 0 {
		return nil, nil, fmt.Errorf("ssa: block %d is unreachable from the entry block", block.ID)
	}
	if len(block.Preds) == 1 && b.visited[block.Preds[0]] {
		pred := block.Preds[0]
		return append([]ValueID(nil), b.exitStack[pred]...), append([]ValueID(nil), b.exitLocals[pred]...), nil
	}

	stackLen := -1
	for _, p := range block.Preds {
		if b.visited[p] {
			stackLen = len(b.exitStack[p])
			break
		}
	}
	if stackLen < 0 {
		return nil, nil, fmt.Errorf("ssa: block %d has no already-lowered predecessor", block.ID)
	}

	stack := make([]ValueID, stackLen)
	for i := 0; i < stackLen; i++ {
		stack[i] = b.emitPhi(block, func(p BlockID) (ValueID, bool) {
			s := b.exitStack[p]
			if i >= len(s) {
				return 0, false
			}
			return s[i], true
		})
	}
	locals := make([]ValueID, numLocals)
	for i := 0; i < numLocals; i++ {
		locals[i] = b.emitPhi(block, func(p BlockID) (ValueID, bool) {
			l := b.exitLocals[p]
			if i >= len(l) {
				return 0, false
			}
			return l[i], true
		})
	}
	return stack, locals, nil
}

func (b *builder) emitPhi(block *Block, valueFor func(pred BlockID) (ValueID, bool)) ValueID {
	dst := b.newValue()
	ops := make([]PhiOperand, len(block.Preds))
	for i, p := range block.Preds {
		if b.visited[p] {
			if v, ok := valueFor(p); ok {
				ops[i] = PhiOperand{Pred: p, Value: v}
				continue
			}
		}
		ops[i] = PhiOperand{Pred: p, Undefined: true}
	}
	block.Code = append(block.Code, Instruction{Op: OpPhi, Dst: dst, Phi: ops})
	return dst
}

// lowerBlock symbolically executes block's instructions, emitting one SSA
// Instruction per bytecode instruction (phis, from resolveEntry, already
// sit at the front of block.Code per §4.7's ordering rule: phis first,
// branch last).
func (b *builder) lowerBlock(block *Block, stack, locals []ValueID) error {
	bodyEnd := block.End
	if block.Term != TermFallThrough {
		bodyEnd = block.End - 1
	}
	for i := block.Start; i < bodyEnd; i++ {
		if err := b.lowerInstr(block, b.list.Instructions[i], &stack, locals); err != nil {
			return err
		}
	}
	if block.Term != TermFallThrough {
		if err := b.lowerTerminator(block, b.list.Instructions[block.End-1], &stack); err != nil {
			return err
		}
	}
	b.exitStack[block.ID] = stack
	b.exitLocals[block.ID] = locals
	return nil
}

func pop(stack *[]ValueID) ValueID {
	s := *stack
	v := s[len(s)-1]
	*stack = s[:len(s)-1]
	return v
}

func push(stack *[]ValueID, v ValueID) { *stack = append(*stack, v) }

func (b *builder) lowerInstr(block *Block, instr classfile.Instruction, stack *[]ValueID, locals []ValueID) error {
	switch op := instr.Opcode; {
	case op == classfile.OpNop:
		// no-op

	case op == classfile.OpIconstM1:
		push(stack, b.declare(block, classloader.Value{Tag: classloader.TagInt, Num: uint64(uint32(int32(-1)))}))
	case op >= classfile.OpIconst0 && op <= classfile.OpIconst5:
		push(stack, b.declare(block, classloader.Value{Tag: classloader.TagInt, Num: uint64(op - classfile.OpIconst0)}))
	case op == classfile.OpLconst0 || op == classfile.OpLconst1:
		push(stack, b.declare(block, classloader.Value{Tag: classloader.TagLong, Num: uint64(op - classfile.OpLconst0)}))
	case op == classfile.OpBipush:
		push(stack, b.declare(block, classloader.Value{Tag: classloader.TagInt, Num: uint64(uint32(instr.Index))}))
	case op == classfile.OpSipush:
		push(stack, b.declare(block, classloader.Value{Tag: classloader.TagInt, Num: uint64(uint32(instr.Index))}))

	case op == classfile.OpLdc || op == classfile.OpLdcW || op == classfile.OpLdc2W:
		v, err := b.ldcConstant(instr)
		if err != nil {
			return err
		}
		push(stack, b.declare(block, v))

	case op == classfile.OpIload || op == classfile.OpLload || op == classfile.OpFload || op == classfile.OpDload || op == classfile.OpAload:
		push(stack, locals[instr.Index])
	case isShortLoad(op):
		push(stack, locals[shortSlot(op)])

	case op == classfile.OpIstore || op == classfile.OpLstore || op == classfile.OpFstore || op == classfile.OpDstore || op == classfile.OpAstore:
		locals[instr.Index] = pop(stack)
	case isShortStore(op):
		locals[shortSlot(op)] = pop(stack)

	case op == classfile.OpIadd || op == classfile.OpLadd || op == classfile.OpFadd || op == classfile.OpDadd:
		b.binOp(block, stack, OpAdd)
	case op == classfile.OpIsub || op == classfile.OpLsub || op == classfile.OpFsub || op == classfile.OpDsub:
		b.binOp(block, stack, OpSub)
	case op == classfile.OpImul || op == classfile.OpLmul || op == classfile.OpFmul || op == classfile.OpDmul:
		b.binOp(block, stack, OpMul)
	case op == classfile.OpIdiv || op == classfile.OpLdiv || op == classfile.OpFdiv || op == classfile.OpDdiv:
		b.binOp(block, stack, OpDivide)

	case op == classfile.OpPop:
		pop(stack)
	case op == classfile.OpDup:
		v := pop(stack)
		push(stack, v)
		push(stack, v)
	case op == classfile.OpSwap:
		v2 := pop(stack)
		v1 := pop(stack)
		push(stack, v2)
		push(stack, v1)

	case op == classfile.OpIinc:
		inc := b.declare(block, classloader.Value{Tag: classloader.TagInt, Num: uint64(uint32(instr.Index2))})
		dst := b.newValue()
		block.Code = append(block.Code, Instruction{Op: OpAdd, Dst: dst, Args: []Operand{VarOperand(locals[instr.Index]), VarOperand(inc)}})
		locals[instr.Index] = dst

	default:
		return fmt.Errorf("%w: opcode 0x%02X", ErrUnsupportedOp, instr.Opcode)
	}
	return nil
}

func (b *builder) declare(block *Block, c classloader.Value) ValueID {
	dst := b.newValue()
	block.Code = append(block.Code, Instruction{Op: OpDeclare, Dst: dst, Args: []Operand{ConstOperand(c)}})
	return dst
}

func (b *builder) binOp(block *Block, stack *[]ValueID, op Op) {
	rhs := pop(stack)
	lhs := pop(stack)
	dst := b.newValue()
	block.Code = append(block.Code, Instruction{Op: op, Dst: dst, Args: []Operand{VarOperand(lhs), VarOperand(rhs)}})
	push(stack, dst)
}

func (b *builder) ldcConstant(instr classfile.Instruction) (classloader.Value, error) {
	if b.pool == nil {
		return classloader.Value{}, fmt.Errorf("%w: ldc with no constant pool", ErrUnsupportedOp)
	}
	entry, ok := b.pool.At(uint16(instr.Index))
	if !ok || entry.Kind != classloader.RTUnresolved {
		return classloader.Value{}, fmt.Errorf("%w: ldc of a non-numeric constant", ErrUnsupportedOp)
	}
	switch c := entry.Raw.(type) {
	case *classfile.ConstantInteger:
		return classloader.Value{Tag: classloader.TagInt, Num: uint64(uint32(c.Value))}, nil
	case *classfile.ConstantFloat:
		return classloader.Value{Tag: classloader.TagFloat, Num: uint64(math.Float32bits(c.Value))}, nil
	case *classfile.ConstantLong:
		return classloader.Value{Tag: classloader.TagLong, Num: uint64(c.Value)}, nil
	case *classfile.ConstantDouble:
		return classloader.Value{Tag: classloader.TagDouble, Num: math.Float64bits(c.Value)}, nil
	}
	return classloader.Value{}, fmt.Errorf("%w: ldc of a non-numeric constant", ErrUnsupportedOp)
}

func (b *builder) lowerTerminator(block *Block, instr classfile.Instruction, stack *[]ValueID) error {
	switch block.Term {
	case TermReturn:
		if instr.Opcode == classfile.OpReturn || instr.Opcode == classfile.OpAthrow {
			block.Code = append(block.Code, Instruction{Op: OpReturn})
			return nil
		}
		v := pop(stack)
		block.Code = append(block.Code, Instruction{Op: OpReturn, Args: []Operand{VarOperand(v)}})
		return nil

	case TermUnconditional:
		block.Code = append(block.Code, Instruction{Op: OpGoto, Target: block.Target})
		return nil

	case TermConditional:
		var a, rhs Operand
		switch instr.Opcode {
		case classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt, classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple,
			classfile.OpIfAcmpeq, classfile.OpIfAcmpne:
			b2 := pop(stack)
			a2 := pop(stack)
			a, rhs = VarOperand(a2), VarOperand(b2)
		default: // ifeq..ifle, ifnull, ifnonnull: compare against zero
			a2 := pop(stack)
			a = VarOperand(a2)
			rhs = ConstOperand(classloader.Value{Tag: classloader.TagInt, Num: 0})
		}
		block.Code = append(block.Code, Instruction{
			Op: OpCompareLE, Args: []Operand{a, rhs}, Pass: block.Success, Fail: block.Fail,
		})
		return nil

	case TermSwitch:
		return fmt.Errorf("%w: switch", ErrUnsupportedOp)
	}
	return fmt.Errorf("ssa: unreachable terminator kind %v", block.Term)
}

func isShortLoad(op byte) bool {
	return (op >= classfile.OpIload0 && op <= classfile.OpIload3) ||
		(op >= classfile.OpLload0 && op <= classfile.OpLload3) ||
		(op >= classfile.OpFload0 && op <= classfile.OpFload3) ||
		(op >= classfile.OpDload0 && op <= classfile.OpDload3) ||
		(op >= classfile.OpAload0 && op <= classfile.OpAload3)
}

func isShortStore(op byte) bool {
	return (op >= classfile.OpIstore0 && op <= classfile.OpIstore3) ||
		(op >= classfile.OpLstore0 && op <= classfile.OpLstore3) ||
		(op >= classfile.OpFstore0 && op <= classfile.OpFstore3) ||
		(op >= classfile.OpDstore0 && op <= classfile.OpDstore3) ||
		(op >= classfile.OpAstore0 && op <= classfile.OpAstore3)
}

func shortSlot(op byte) int32 {
	switch {
	case op >= classfile.OpIload0 && op <= classfile.OpIload3:
		return int32(op - classfile.OpIload0)
	case op >= classfile.OpLload0 && op <= classfile.OpLload3:
		return int32(op - classfile.OpLload0)
	case op >= classfile.OpFload0 && op <= classfile.OpFload3:
		return int32(op - classfile.OpFload0)
	case op >= classfile.OpDload0 && op <= classfile.OpDload3:
		return int32(op - classfile.OpDload0)
	case op >= classfile.OpAload0 && op <= classfile.OpAload3:
		return int32(op - classfile.OpAload0)
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
