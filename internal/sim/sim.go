// Package sim is the simulator driver of spec section 4.8: it wires
// together memory, datapath, and control unit, decode-executes until
// HALT, input exhaustion, or the instruction limit, and reports the
// output buffer plus instruction/tick counts
// (original_source/machine.py: simulation()).
package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"accvm/internal/control"
	"accvm/internal/datapath"
	"accvm/internal/memory"
	"accvm/internal/program"
)

// DefaultLimit is the instruction-count ceiling used when the CLI does
// not override it (spec section 4.8).
const DefaultLimit = 1500

// Result is what the driver hands back to the CLI layer.
type Result struct {
	Output       string
	InstrCounter int
	Ticks        int
}

// Run preloads prog's global-data prefix into a fresh memory, then
// decode-executes until HALT, input exhaustion, or limit. A fatal
// control-unit error is returned alongside the partial Result, matching
// spec section 7: "fatal errors terminate the run after writing partial
// output and trace."
func Run(prog program.Program, input []int32, dataMemorySize, limit int, log *logrus.Logger) (Result, error) {
	if log == nil {
		log = logrus.New()
	}

	mem := memory.New(dataMemorySize)
	mem.Preload(prog.GlobalData)
	dp := datapath.New(mem, input)
	cu := control.New(prog.Instructions, dp)

	logTrace(log, cu, dp)

	instrCounter := 0
	for instrCounter < limit {
		res := cu.Step()
		switch res.Outcome {
		case control.Continue:
			instrCounter++
			logTrace(log, cu, dp)
		case control.Halted:
			return finish(log, cu, dp, instrCounter), nil
		case control.InputEmpty:
			log.Warn("Input buffer is empty!")
			return finish(log, cu, dp, instrCounter), nil
		case control.Fatal:
			return finish(log, cu, dp, instrCounter), res.Err
		}
	}
	log.Warn("Limit exceeded!")
	return finish(log, cu, dp, instrCounter), nil
}

func finish(log *logrus.Logger, cu *control.Unit, dp *datapath.DataPath, instrCounter int) Result {
	result := Result{Output: dp.OutputString(), InstrCounter: instrCounter, Ticks: cu.Ticks()}
	log.WithField("output_buffer", result.Output).Info("simulation finished")
	return result
}

// logTrace emits one debug record per decoded instruction: tick count,
// AC, SP, IP, and the instruction about to execute next.
func logTrace(log *logrus.Logger, cu *control.Unit, dp *datapath.DataPath) {
	next := "<end of program>"
	if cu.IP >= 0 && cu.IP < len(cu.Program) {
		instr := cu.Program[cu.IP]
		if instr.Operand != "" {
			next = fmt.Sprintf("%s %s", instr.Instruction, instr.Operand)
		} else {
			next = string(instr.Instruction)
		}
	}
	log.WithFields(logrus.Fields{
		"tick":       cu.Ticks(),
		"ac":         dp.AC,
		"sp":         dp.SP,
		"ip":         cu.IP,
		"next_instr": next,
	}).Debug()
}
