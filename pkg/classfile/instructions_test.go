package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInstructionsBijective(t *testing.T) {
	code := []byte{
		OpIconst0, // 0
		OpIstore0, // 1
		OpIload0,  // 2
		OpIfeq, 0, 4, // 3: branch to offset 7
		OpIinc, 0, 1, // 6
		OpReturn, // 9
	}
	list, err := DecodeInstructions(code)
	require.NoError(t, err)

	for idx := 0; idx < list.Len(); idx++ {
		offset, ok := list.OffsetByIndex(idx)
		require.True(t, ok)
		backIdx, ok := list.IndexByOffset(offset)
		require.True(t, ok)
		assert.Equal(t, idx, backIdx)
	}
}

func TestDecodeInstructionsBranchTarget(t *testing.T) {
	code := []byte{
		OpIconst0,
		OpIfeq, 0, 4, // offset 1, target = 1+4 = 5
		OpIconst1,
		OpReturn,
	}
	list, err := DecodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, list.Instructions, 4)
	assert.Equal(t, OpIfeq, int(list.Instructions[1].Opcode))
	assert.Equal(t, int32(5), list.Instructions[1].BranchTarget)
}

func TestDecodeTableswitchAlignment(t *testing.T) {
	// tableswitch at offset 1: padding brings operands to 4-byte alignment.
	code := []byte{
		OpNop,
		OpTableswitch,
		0, 0, // padding (pc=2, pad=2 -> aligns to 4)
		0, 0, 0, 20, // default = +20 from offset 1 -> 21
		0, 0, 0, 0, // low = 0
		0, 0, 0, 1, // high = 1
		0, 0, 0, 30, // target[0] = +30 -> 31
		0, 0, 0, 40, // target[1] = +40 -> 41
	}
	list, err := DecodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, list.Instructions, 2)
	sw := list.Instructions[1]
	assert.Equal(t, int32(0), sw.Low)
	assert.Equal(t, int32(1), sw.High)
	assert.Equal(t, int32(21), sw.DefaultTarget)
	require.Len(t, sw.JumpTargets, 2)
	assert.Equal(t, int32(31), sw.JumpTargets[0])
	assert.Equal(t, int32(41), sw.JumpTargets[1])
}

func TestDecodeLookupswitchOrdering(t *testing.T) {
	code := []byte{
		OpLookupswitch,
		0, 0, 0, // padding (pc=1, pad=3 -> aligns to 4)
		0, 0, 0, 10, // default
		0, 0, 0, 2, // npairs = 2
		0, 0, 0, 5, 0, 0, 0, 1, // match=5 -> target +1
		0, 0, 0, 9, 0, 0, 0, 2, // match=9 -> target +2
	}
	list, err := DecodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, list.Instructions, 1)
	sw := list.Instructions[0]
	assert.Equal(t, []int32{5, 9}, sw.Matches)
}

func TestDecodeLookupswitchRejectsUnsortedKeys(t *testing.T) {
	code := []byte{
		OpLookupswitch,
		0, 0, 0,
		0, 0, 0, 10,
		0, 0, 0, 2,
		0, 0, 0, 9, 0, 0, 0, 1,
		0, 0, 0, 5, 0, 0, 0, 2,
	}
	_, err := DecodeInstructions(code)
	assert.Error(t, err)
}

func TestDecodeWideIload(t *testing.T) {
	code := []byte{OpWide, OpIload, 1, 44, OpIreturn}
	list, err := DecodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, list.Instructions, 2)
	assert.True(t, list.Instructions[0].Wide)
	assert.Equal(t, int32(300), list.Instructions[0].Index)
}

func TestDecodeWideIinc(t *testing.T) {
	code := []byte{OpWide, OpIinc, 0, 1, 0xFF, 0xFF, OpReturn} // local 1, const -1
	list, err := DecodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, list.Instructions, 2)
	assert.Equal(t, int32(1), list.Instructions[0].Index)
	assert.Equal(t, int32(-1), list.Instructions[0].Index2)
}

func TestDecodeInvokeinterfaceRejectsNonzeroTrailer(t *testing.T) {
	code := []byte{OpInvokeinterface, 0, 1, 1, 1} // trailing byte must be 0
	_, err := DecodeInstructions(code)
	assert.Error(t, err)
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := DecodeInstructions([]byte{0xFF})
	assert.Error(t, err)
}
