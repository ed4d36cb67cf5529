package isa

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeOperandForms(t *testing.T) {
	cases := []struct {
		operand string
		mode    Addressing
		v       int16
	}{
		{"5", Immediate, 5},
		{"-5", Immediate, -5},
		{"[5]", Direct, 5},
		{"SP+1", StackRelative, 1},
		{"SP-1", StackRelative, -1},
		{"[SP+0]", StackIndirect, 0},
		{"[SP-2]", StackIndirect, -2},
	}
	for _, c := range cases {
		mode, v, err := DecodeOperand(c.operand)
		require.NoError(t, err, c.operand)
		require.Equal(t, c.mode, mode, c.operand)
		require.Equal(t, c.v, v, c.operand)
	}
}

func TestDecodeOperandInvalid(t *testing.T) {
	_, _, err := DecodeOperand("SP")
	require.Error(t, err)
	_, _, err = DecodeOperand("[SP]")
	require.Error(t, err)
}

func TestOperandFormatRoundTrip(t *testing.T) {
	mode, v, err := DecodeOperand(OperandStackRelative(-3))
	require.NoError(t, err)
	require.Equal(t, StackRelative, mode)
	require.Equal(t, int16(-3), v)

	mode, v, err = DecodeOperand(OperandStackIndirect(4))
	require.NoError(t, err)
	require.Equal(t, StackIndirect, mode)
	require.Equal(t, int16(4), v)
}

func TestInstructionJSONOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Instruction{Instruction: HALT})
	require.NoError(t, err)
	require.JSONEq(t, `{"instruction":"HALT"}`, string(data))

	v := 7
	data, err = json.Marshal(Instruction{Instruction: JMP, V: &v})
	require.NoError(t, err)
	require.JSONEq(t, `{"instruction":"JMP","V":7}`, string(data))
}

func TestOpcodeClassifiers(t *testing.T) {
	require.True(t, CALL.IsJumpOrCall())
	require.False(t, HALT.IsJumpOrCall())
	require.True(t, ADD.IsArithmetic())
	require.False(t, LD.IsArithmetic())
}
