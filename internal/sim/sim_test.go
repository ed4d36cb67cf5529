package sim

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"accvm/internal/codegen"
	"accvm/internal/lexer"
	"accvm/internal/program"
	"accvm/internal/syntax"
)

func compileProgram(t *testing.T, src string) program.Program {
	t.Helper()
	tokens := lexer.Tokenize(src)
	root, err := syntax.Parse(tokens)
	require.NoError(t, err)
	data, instrs, err := codegen.New(tokens).Compile(root)
	require.NoError(t, err)
	return program.Program{GlobalData: data, Instructions: instrs}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRunOutputsLiteralCharacter(t *testing.T) {
	p := compileProgram(t, `(OUT "A")`)
	res, err := Run(p, nil, 256, DefaultLimit, quietLogger())
	require.NoError(t, err)
	require.Equal(t, "A", res.Output)
	require.Greater(t, res.InstrCounter, 0)
	require.Greater(t, res.Ticks, 0)
}

func TestRunEchoesStdinUntilZeroSentinel(t *testing.T) {
	p := compileProgram(t, `(defvar c (IN)) (while (!= c 0) (OUT c) (setq c (IN)))`)
	res, err := Run(p, []int32{'h', 'i', 0}, 256, DefaultLimit, quietLogger())
	require.NoError(t, err)
	require.Equal(t, "hi", res.Output)
}

func TestRunReportsFatalOnDivideByZero(t *testing.T) {
	p := compileProgram(t, `(OUT (/ 1 0))`)
	_, err := Run(p, nil, 256, DefaultLimit, quietLogger())
	require.Error(t, err)
}

func TestRunStopsAtInstructionLimitWithoutError(t *testing.T) {
	p := compileProgram(t, `(defvar i 0) (while (!= i 100000) (setq i (+ i 1))) (OUT i)`)
	res, err := Run(p, nil, 256, 10, quietLogger())
	require.NoError(t, err, "hitting the limit is not itself a fatal error")
	require.Equal(t, 10, res.InstrCounter)
	require.Empty(t, res.Output, "loop never reaches OUT within 10 instructions")
}

func TestRunReturnsPartialOutputOnInputExhaustion(t *testing.T) {
	p := compileProgram(t, `(defvar c (IN)) (while (!= c 0) (OUT c) (setq c (IN)))`)
	res, err := Run(p, []int32{'h', 'i'}, 256, DefaultLimit, quietLogger())
	require.NoError(t, err)
	require.Equal(t, "hi", res.Output, "the third IN finds the buffer empty only after both characters echoed")
}
