package ssa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arfarlow/tinyjvm/pkg/classfile"
)

func decode(t *testing.T, code []byte) classfile.InstructionList {
	t.Helper()
	list, err := classfile.DecodeInstructions(code)
	require.NoError(t, err)
	return list
}

func TestStraightLineArithmeticLiftsToOneBlock(t *testing.T) {
	// iconst_2, iconst_3, iadd, ireturn
	code := []byte{0x05, 0x06, 0x60, 0xAC}
	list := decode(t, code)

	fn, err := Build(list, nil, 0)
	require.NoError(t, err)
	require.Len(t, fn.Blocks, 1)

	block := fn.Blocks[0]
	assert.Equal(t, TermReturn, block.Term)
	require.Len(t, block.Code, 4)
	assert.Equal(t, OpDeclare, block.Code[0].Op)
	assert.Equal(t, OpDeclare, block.Code[1].Op)
	assert.Equal(t, OpAdd, block.Code[2].Op)
	assert.Equal(t, OpReturn, block.Code[3].Op)
}

func TestConditionalBranchSplitsIntoFourBlocks(t *testing.T) {
	// iload_0, iconst_0, if_icmple L1, iconst_1, goto L2, L1: iconst_2, L2: ireturn
	code := []byte{
		0x1A,             // 0: iload_0
		0x03,             // 1: iconst_0
		0xA4, 0x00, 0x07, // 2: if_icmple -> offset 9 (L1)
		0x04,             // 5: iconst_1 (false arm)
		0xA7, 0x00, 0x04, // 6: goto -> offset 10 (L2)
		0x05, // 9: iconst_2  (L1, true arm)
		0xAC, // 10: ireturn  (L2, joined)
	}
	list := decode(t, code)

	fn, err := Build(list, nil, 1)
	require.NoError(t, err)

	// Blocks: [0,5) cond; [5,9) false-arm; [9,10) true-arm; [10,11) join+return
	require.Len(t, fn.Blocks, 4)

	cond := fn.Blocks[0]
	assert.Equal(t, TermConditional, cond.Term)

	join := fn.Blocks[3]
	assert.Equal(t, TermReturn, join.Term)
	require.Len(t, join.Preds, 2)

	// The join block's entry is a phi: its first emitted instruction is a
	// Phi feeding the Return.
	require.NotEmpty(t, join.Code)
	assert.Equal(t, OpPhi, join.Code[0].Op)
	last := join.Code[len(join.Code)-1]
	assert.Equal(t, OpReturn, last.Op)
}

func TestLoopBackEdgeProducesUndefinedPhiOperand(t *testing.T) {
	// Reuses the interpreter's sum-0..4 loop shape: a back edge into the
	// loop header, which this single-forward-pass lifter cannot fully
	// resolve (see PhiOperand.Undefined).
	code := []byte{
		0x03,             // 0: iconst_0
		0x3B,             // 1: istore_0 (i=0)
		0x03,             // 2: iconst_0
		0x3C,             // 3: istore_1 (sum=0)
		0x1A,             // 4: iload_0
		0x08,             // 5: iconst_5
		0xA2, 0x00, 0x0D, // 6: if_icmpge +13 -> offset 19
		0x1B,             // 9: iload_1
		0x1A,             // 10: iload_0
		0x60,             // 11: iadd
		0x3C,             // 12: istore_1
		0x84, 0x00, 0x01, // 13: iinc 0, 1
		0xA7, 0xFF, 0xF4, // 16: goto -12 -> offset 4
		0x1B, // 19: iload_1
		0xAC, // 20: ireturn
	}
	list := decode(t, code)

	fn, err := Build(list, nil, 2)
	require.NoError(t, err)

	var header *Block
	for _, b := range fn.Blocks {
		if b.Start == 4 {
			header = b
		}
	}
	require.NotNil(t, header, "expected a block starting at the loop condition (offset 4)")
	require.Len(t, header.Preds, 2)

	foundUndefined := false
	for _, instr := range header.Code {
		if instr.Op != OpPhi {
			break
		}
		for _, op := range instr.Phi {
			if op.Undefined {
				foundUndefined = true
			}
		}
	}
	assert.True(t, foundUndefined, "loop header phi should carry an Undefined operand for the not-yet-lowered back edge")
}

func TestUnsupportedOpcodeIsReported(t *testing.T) {
	// getstatic #1, ireturn -- object-model opcodes are out of this lifter's scope.
	code := []byte{0xB2, 0x00, 0x01, 0xAC}
	list := decode(t, code)

	_, err := Build(list, nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedOp)
}
