package linker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"accvm/internal/isa"
)

func TestLinkResolvesForwardAndBackwardLabels(t *testing.T) {
	linked, err := Link([]Instr{
		{Op: isa.JMP, Target: "end"},
		{Op: isa.NOP, Label: "start"},
		{Op: isa.JMP, Target: "start"},
		{Op: isa.NOP, Label: "end"},
	})
	require.NoError(t, err)
	require.Len(t, linked, 4)
	require.Equal(t, 3, *linked[0].V, "forward jump to end resolves to index 3")
	require.Equal(t, 1, *linked[2].V, "backward jump to start resolves to index 1")
	require.Nil(t, linked[1].V)
}

func TestLinkStripsLabelsFromOutput(t *testing.T) {
	linked, err := Link([]Instr{{Op: isa.NOP, Label: "l1"}})
	require.NoError(t, err)
	require.Equal(t, isa.Instruction{Instruction: isa.NOP}, linked[0])
}

func TestLinkUnresolvedLabelErrors(t *testing.T) {
	_, err := Link([]Instr{{Op: isa.JMP, Target: "missing"}})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnresolvedLabel)
}

func TestLinkCarriesOperandThrough(t *testing.T) {
	linked, err := Link([]Instr{{Op: isa.LD, Operand: "SP+0"}})
	require.NoError(t, err)
	require.Equal(t, "SP+0", linked[0].Operand)
}
