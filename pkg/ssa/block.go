// Package ssa is an experimental SSA lifter over a decoded
// classfile.InstructionList: basic-block discovery, then construction of an
// SSA form with phi insertion at control-flow joins (§4.7). It shares the
// interpreter's tagged classloader.Value for constants so a lifted Declare
// carries exactly the same numeric payload the interpreter would have
// pushed, but otherwise knows nothing about the heap, classes, or method
// dispatch — the lifter only ever sees one method's bytecode.
//
// This package covers a deliberately narrow opcode subset (constants,
// loads/stores, the four basic integer arithmetic ops, comparisons,
// unconditional/conditional branches, and return) and returns
// ErrUnsupportedOp for anything else, rather than attempting a complete
// lowering. That is the intended contract (§4.7/§9's Open Questions): this
// is a lifter for optimization studies over straight-line arithmetic, not a
// general bytecode-to-SSA compiler.
package ssa

import (
	"fmt"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
)

// BlockID indexes Function.Blocks.
type BlockID int

// Terminator classifies how control leaves a Block (§4.7's jump-target
// annotation: Return, Unconditional, Conditional, or fall-through).
type Terminator int

const (
	TermFallThrough Terminator = iota
	TermReturn
	TermUnconditional
	TermConditional
	TermSwitch
)

func (t Terminator) String() string {
	switch t {
	case TermFallThrough:
		return "fall-through"
	case TermReturn:
		return "return"
	case TermUnconditional:
		return "unconditional"
	case TermConditional:
		return "conditional"
	case TermSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Block is one basic block: a contiguous, non-empty instruction-index range
// [Start, End) from the source InstructionList, plus the SSA instructions
// lowered from it.
type Block struct {
	ID         BlockID
	Start, End int // instruction indices, [Start, End)
	Term       Terminator

	Target        BlockID   // TermUnconditional / TermFallThrough
	Success, Fail BlockID   // TermConditional: branch-taken, branch-not-taken
	SwitchTargets []BlockID // TermSwitch: default first, then dense/sparse targets

	Preds []BlockID

	Code []Instruction
}

// discoverBlocks partitions list into basic blocks per §4.7: a block ends
// at any branching instruction (goto, conditional branches, returns,
// athrow, switches) and begins at the first instruction and at every
// branch target.
func discoverBlocks(list classfile.InstructionList) ([]*Block, error) {
	n := list.Len()
	if n == 0 {
		return nil, fmt.Errorf("ssa: empty instruction list")
	}

	leaders := map[int]bool{0: true}
	for i := 0; i < n; i++ {
		instr := list.Instructions[i]
		targets, isTerm := branchTargets(instr)
		if !isTerm {
			continue
		}
		for _, off := range targets {
			idx, ok := list.IndexByOffset(int(off))
			if !ok {
				return nil, fmt.Errorf("ssa: branch target offset %d has no instruction", off)
			}
			leaders[idx] = true
		}
		if i+1 < n {
			leaders[i+1] = true
		}
	}

	starts := make([]int, 0, len(leaders))
	for idx := range leaders {
		starts = append(starts, idx)
	}
	sortInts(starts)

	blocks := make([]*Block, len(starts))
	for i, start := range starts {
		end := n
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		blocks[i] = &Block{ID: BlockID(i), Start: start, End: end}
	}

	indexToBlock := make(map[int]BlockID, len(blocks))
	for _, b := range blocks {
		indexToBlock[b.Start] = b.ID
	}

	for _, b := range blocks {
		last := list.Instructions[b.End-1]
		targets, isTerm := branchTargets(last)
		if !isTerm {
			if b.ID+1 >= BlockID(len(blocks)) {
				return nil, fmt.Errorf("ssa: block %d falls off the end without a terminator", b.ID)
			}
			b.Term = TermFallThrough
			b.Target = b.ID + 1
			addPred(blocks, b.Target, b.ID)
			continue
		}
		switch last.Opcode {
		case classfile.OpIreturn, classfile.OpLreturn, classfile.OpFreturn, classfile.OpDreturn,
			classfile.OpAreturn, classfile.OpReturn, classfile.OpAthrow:
			b.Term = TermReturn
		case classfile.OpGoto, classfile.OpGotoW:
			b.Term = TermUnconditional
			idx, _ := list.IndexByOffset(int(targets[0]))
			b.Target = indexToBlock[idx]
			addPred(blocks, b.Target, b.ID)
		case classfile.OpTableswitch, classfile.OpLookupswitch:
			b.Term = TermSwitch
			b.SwitchTargets = make([]BlockID, len(targets))
			for i, off := range targets {
				idx, _ := list.IndexByOffset(int(off))
				b.SwitchTargets[i] = indexToBlock[idx]
				addPred(blocks, b.SwitchTargets[i], b.ID)
			}
		default: // every conditional branch family
			b.Term = TermConditional
			idx, _ := list.IndexByOffset(int(targets[0]))
			b.Success = indexToBlock[idx]
			if b.ID+1 >= BlockID(len(blocks)) {
				return nil, fmt.Errorf("ssa: conditional block %d has no fall-through successor", b.ID)
			}
			b.Fail = b.ID + 1
			addPred(blocks, b.Success, b.ID)
			addPred(blocks, b.Fail, b.ID)
		}
	}

	return blocks, nil
}

func addPred(blocks []*Block, to, from BlockID) {
	blocks[to].Preds = append(blocks[to].Preds, from)
}

// branchTargets reports the byte offsets instr can transfer control to, and
// whether instr is a block-ending (terminator) instruction at all.
func branchTargets(instr classfile.Instruction) ([]int32, bool) {
	switch instr.Opcode {
	case classfile.OpIreturn, classfile.OpLreturn, classfile.OpFreturn, classfile.OpDreturn,
		classfile.OpAreturn, classfile.OpReturn, classfile.OpAthrow:
		return nil, true
	case classfile.OpGoto, classfile.OpGotoW:
		return []int32{instr.BranchTarget}, true
	case classfile.OpIfeq, classfile.OpIfne, classfile.OpIflt, classfile.OpIfge, classfile.OpIfgt, classfile.OpIfle,
		classfile.OpIfIcmpeq, classfile.OpIfIcmpne, classfile.OpIfIcmplt, classfile.OpIfIcmpge, classfile.OpIfIcmpgt, classfile.OpIfIcmple,
		classfile.OpIfAcmpeq, classfile.OpIfAcmpne, classfile.OpIfnull, classfile.OpIfnonnull:
		return []int32{instr.BranchTarget}, true
	case classfile.OpTableswitch:
		targets := append([]int32{instr.DefaultTarget}, instr.JumpTargets...)
		return targets, true
	case classfile.OpLookupswitch:
		targets := append([]int32{instr.DefaultTarget}, instr.JumpTargets...)
		return targets, true
	}
	return nil, false
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
