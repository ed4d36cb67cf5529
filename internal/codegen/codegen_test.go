package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"accvm/internal/control"
	"accvm/internal/datapath"
	"accvm/internal/isa"
	"accvm/internal/lexer"
	"accvm/internal/memory"
	"accvm/internal/syntax"
)

// compile lexes, parses, and lowers src, failing the test on any stage error.
func compile(t *testing.T, src string) ([]int32, []isa.Instruction) {
	t.Helper()
	tokens := lexer.Tokenize(src)
	root, err := syntax.Parse(tokens)
	require.NoError(t, err)
	data, instrs, err := New(tokens).Compile(root)
	require.NoError(t, err)
	return data, instrs
}

// run executes a compiled program to completion (HALT, InputEmpty, or
// Fatal) against a fresh memory/datapath/control-unit stack, without
// pulling in internal/sim so this package's tests stay free of an
// import cycle concern and exercise the control unit directly.
func run(t *testing.T, data []int32, instrs []isa.Instruction, input []int32) (*datapath.DataPath, *control.Unit) {
	t.Helper()
	mem := memory.New(256)
	mem.Preload(data)
	dp := datapath.New(mem, input)
	cu := control.New(instrs, dp)

	for i := 0; i < 10000; i++ {
		res := cu.Step()
		switch res.Outcome {
		case control.Halted, control.InputEmpty:
			return dp, cu
		case control.Fatal:
			return dp, cu
		}
	}
	t.Fatal("program did not halt within the test's step budget")
	return nil, nil
}

func TestScenario1_OutStringLiteral(t *testing.T) {
	data, instrs := compile(t, `(OUT "A")`)
	dp, cu := run(t, data, instrs, nil)
	require.NotEmpty(t, dp.OutputString())
	require.Equal(t, byte('A'), dp.OutputString()[0])
	_ = cu
}

func TestScenario2_DefvarSetqArithmetic(t *testing.T) {
	data, instrs := compile(t, `(defvar x 0) (setq x (+ 1 2)) (OUT x)`)
	dp, _ := run(t, data, instrs, nil)
	require.Contains(t, dp.OutputString(), string(rune(3)))
}

func TestScenario3_WhileCountUpChecksInstructionCounter(t *testing.T) {
	data, instrs := compile(t, `(defvar i 0) (while (!= i 5) (setq i (+ i 1))) (OUT i)`)
	mem := memory.New(256)
	mem.Preload(data)
	dp := datapath.New(mem, nil)
	cu := control.New(instrs, dp)

	instrCounter := 0
	for i := 0; i < 10000; i++ {
		res := cu.Step()
		if res.Outcome == control.Continue {
			instrCounter++
			continue
		}
		break
	}
	require.Contains(t, dp.OutputString(), string(rune(5)))
	require.Greater(t, instrCounter, 5, "golden scenario 3 executes more than 5 instructions")
}

func TestScenario4_DefunCallReturnsIncrementedValue(t *testing.T) {
	data, instrs := compile(t, `(defun inc (n) (+ n 1)) (OUT (inc 64))`)
	dp, _ := run(t, data, instrs, nil)
	require.NotEmpty(t, dp.OutputString())
	require.Equal(t, byte('A'), dp.OutputString()[0])
}

func TestScenario5_InOutEchoLoopStopsOnZeroSentinel(t *testing.T) {
	data, instrs := compile(t, `(defvar c (IN)) (while (!= c 0) (OUT c) (setq c (IN)))`)
	input := []int32{'h', 'i', 0}
	dp, _ := run(t, data, instrs, input)
	require.Equal(t, "hi", dp.OutputString())
}

func TestScenario6_DivisionByZeroIsFatal(t *testing.T) {
	data, instrs := compile(t, `(OUT (/ 1 0))`)
	mem := memory.New(256)
	mem.Preload(data)
	dp := datapath.New(mem, nil)
	cu := control.New(instrs, dp)

	var last control.StepResult
	for i := 0; i < 10000; i++ {
		last = cu.Step()
		if last.Outcome != control.Continue {
			break
		}
	}
	require.Equal(t, control.Fatal, last.Outcome)
	require.ErrorIs(t, last.Err, datapath.ErrDivideByZero)
}

func TestUndefinedVariableIsACompileError(t *testing.T) {
	tokens := lexer.Tokenize(`(OUT y)`)
	root, err := syntax.Parse(tokens)
	require.NoError(t, err)
	_, _, err = New(tokens).Compile(root)
	require.Error(t, err)
}

func TestCallWithWrongArityIsACompileError(t *testing.T) {
	tokens := lexer.Tokenize(`(defun inc (n) (+ n 1)) (inc 1 2)`)
	root, err := syntax.Parse(tokens)
	require.NoError(t, err)
	_, _, err = New(tokens).Compile(root)
	require.Error(t, err)
}
