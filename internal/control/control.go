// Package control implements the instruction decoder/executor of spec
// section 4.7: it holds the instruction pointer and tick counter and
// drives internal/datapath with the exact signal sequences and tick
// costs of the contractual per-opcode table (original_source/machine.py:
// ControlUnit.execute_instruction/decode_and_execute_instruction).
package control

import (
	"github.com/pkg/errors"

	"accvm/internal/datapath"
	"accvm/internal/isa"
)

// Outcome is the result/signal enum of spec section 9, replacing the
// original's mixed use of exceptions for both HALT and EOFError.
type Outcome int

const (
	Continue Outcome = iota
	Halted
	InputEmpty
	Fatal
)

// StepResult is returned by Unit.Step.
type StepResult struct {
	Outcome Outcome
	Err     error // set iff Outcome == Fatal
}

// ErrProgramBounds is raised when IP falls outside the instruction list
// (spec section 7, ProgramBounds).
var ErrProgramBounds = errors.New("instruction pointer out of program bounds")

// ErrUnresolvedTarget indicates a jump/call instruction reached
// execution without a linked V field — a compiler bug, never expected
// in a program that passed internal/linker.Link.
var ErrUnresolvedTarget = errors.New("unresolved jump target")

// Unit is the control unit: the linked program, the instruction
// pointer, the tick counter, and the datapath it drives.
type Unit struct {
	Program []isa.Instruction
	IP      int
	DP      *datapath.DataPath

	ticks int
}

// New constructs a control unit positioned at IP 0.
func New(program []isa.Instruction, dp *datapath.DataPath) *Unit {
	return &Unit{Program: program, DP: dp}
}

// Ticks returns the cumulative tick count.
func (u *Unit) Ticks() int { return u.ticks }

func (u *Unit) tick(n int) { u.ticks += n }

func fatal(err error) StepResult { return StepResult{Outcome: Fatal, Err: err} }

// Step decodes and executes one instruction: assert IP in range, fetch
// (charging one tick), decode the operand if present, and dispatch on
// opcode per the section 4.7 table.
func (u *Unit) Step() StepResult {
	if u.IP < 0 || u.IP >= len(u.Program) {
		return fatal(errors.Wrapf(ErrProgramBounds, "IP=%d len=%d", u.IP, len(u.Program)))
	}
	instr := u.Program[u.IP]
	u.IP++
	u.tick(1)

	var F isa.Addressing
	var V int16
	if instr.Operand != "" {
		f, v, err := isa.DecodeOperand(instr.Operand)
		if err != nil {
			return fatal(err)
		}
		F, V = f, v
	}

	switch instr.Instruction {
	case isa.NOP:
		return StepResult{Outcome: Continue}
	case isa.HALT:
		return StepResult{Outcome: Halted}
	case isa.LD:
		if err := u.execLD(F, V); err != nil {
			return fatal(err)
		}
	case isa.ST:
		if err := u.execST(F, V); err != nil {
			return fatal(err)
		}
	case isa.ADD, isa.SUB, isa.MUL, isa.DIV, isa.MOD, isa.CMP:
		if err := u.execArith(instr.Instruction, F, V); err != nil {
			return fatal(err)
		}
	case isa.JMP:
		u.tick(1)
		target, err := targetOf(instr)
		if err != nil {
			return fatal(err)
		}
		u.IP = target
	case isa.JE:
		u.tick(1)
		if u.DP.Z {
			target, err := targetOf(instr)
			if err != nil {
				return fatal(err)
			}
			u.IP = target
		}
	case isa.JNE:
		u.tick(1)
		if !u.DP.Z {
			target, err := targetOf(instr)
			if err != nil {
				return fatal(err)
			}
			u.IP = target
		}
	case isa.JGE:
		u.tick(1)
		if !u.DP.S {
			target, err := targetOf(instr)
			if err != nil {
				return fatal(err)
			}
			u.IP = target
		}
	case isa.CALL:
		if err := u.execCall(instr); err != nil {
			return fatal(err)
		}
	case isa.RET:
		u.execRet()
	case isa.PUSH:
		u.execPush()
	case isa.POP:
		u.execPop()
	case isa.IN:
		if err := u.DP.InputToAC(); err != nil {
			if errors.Is(err, datapath.ErrInputExhausted) {
				return StepResult{Outcome: InputEmpty}
			}
			return fatal(err)
		}
		u.tick(1)
	case isa.OUT:
		u.DP.Out()
	default:
		return fatal(errors.Errorf("unknown opcode %q", instr.Instruction))
	}
	return StepResult{Outcome: Continue}
}

func targetOf(instr isa.Instruction) (int, error) {
	if instr.V == nil {
		return 0, errors.Wrapf(ErrUnresolvedTarget, "%s", instr.Instruction)
	}
	return *instr.V, nil
}

func (u *Unit) execLD(F isa.Addressing, V int16) error {
	switch F {
	case isa.Immediate:
		u.tick(1)
		return u.DP.LatchAC(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V), false)
	case isa.Direct:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		u.DP.OE()
		u.tick(3)
		return u.DP.LatchAC(datapath.MuxLZero, datapath.MuxRDR, datapath.OpADD, 0, false)
	case isa.StackRelative:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		if err := u.DP.LatchAR(datapath.MuxLAR, datapath.MuxRSP, datapath.OpADD, 0); err != nil {
			return err
		}
		u.DP.OE()
		u.tick(4)
		return u.DP.LatchAC(datapath.MuxLZero, datapath.MuxRDR, datapath.OpADD, 0, false)
	case isa.StackIndirect:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		if err := u.DP.LatchAR(datapath.MuxLAR, datapath.MuxRSP, datapath.OpADD, 0); err != nil {
			return err
		}
		u.DP.OE()
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRDR, datapath.OpADD, 0); err != nil {
			return err
		}
		u.DP.OE()
		u.tick(6)
		return u.DP.LatchAC(datapath.MuxLZero, datapath.MuxRDR, datapath.OpADD, 0, false)
	default:
		return errors.Errorf("invalid addressing mode %d for LD", F)
	}
}

func (u *Unit) execST(F isa.Addressing, V int16) error {
	switch F {
	case isa.Immediate:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		u.tick(2)
		return u.DP.WR(datapath.MuxLAC, datapath.MuxRZero, datapath.OpADD, 0)
	case isa.Direct:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		u.DP.OE()
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRDR, datapath.OpADD, 0); err != nil {
			return err
		}
		u.tick(4)
		return u.DP.WR(datapath.MuxLAC, datapath.MuxRZero, datapath.OpADD, 0)
	case isa.StackRelative:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		if err := u.DP.LatchAR(datapath.MuxLAR, datapath.MuxRSP, datapath.OpADD, 0); err != nil {
			return err
		}
		u.tick(3)
		return u.DP.WR(datapath.MuxLAC, datapath.MuxRZero, datapath.OpADD, 0)
	case isa.StackIndirect:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		if err := u.DP.LatchAR(datapath.MuxLAR, datapath.MuxRSP, datapath.OpADD, 0); err != nil {
			return err
		}
		u.DP.OE()
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRDR, datapath.OpADD, 0); err != nil {
			return err
		}
		u.tick(5)
		return u.DP.WR(datapath.MuxLAC, datapath.MuxRZero, datapath.OpADD, 0)
	default:
		return errors.Errorf("invalid addressing mode %d for ST", F)
	}
}

var arithOp = map[isa.Opcode]datapath.Op{
	isa.ADD: datapath.OpADD,
	isa.SUB: datapath.OpSUB,
	isa.MUL: datapath.OpMUL,
	isa.DIV: datapath.OpDIV,
	isa.MOD: datapath.OpMOD,
	isa.CMP: datapath.OpCMP,
}

func (u *Unit) execArith(opcode isa.Opcode, F isa.Addressing, V int16) error {
	op := arithOp[opcode]
	// CMP sets Z/S itself, from L-R, inside the ALU; letting LatchAC's
	// generic setFlag path run afterwards would stomp that with a
	// (wrong) zero/sign test of the unchanged AC value.
	setFlag := opcode != isa.CMP
	switch F {
	case isa.Immediate:
		u.tick(1)
		return u.DP.LatchAC(datapath.MuxLAC, datapath.MuxRPR, op, int32(V), setFlag)
	case isa.Direct:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		u.DP.OE()
		u.tick(3)
		return u.DP.LatchAC(datapath.MuxLAC, datapath.MuxRDR, op, 0, setFlag)
	case isa.StackRelative:
		return errors.Errorf("%s with SP not available, only [SP+V]", opcode)
	case isa.StackIndirect:
		if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(V)); err != nil {
			return err
		}
		if err := u.DP.LatchAR(datapath.MuxLAR, datapath.MuxRSP, datapath.OpADD, 0); err != nil {
			return err
		}
		u.DP.OE()
		u.tick(4)
		return u.DP.LatchAC(datapath.MuxLAC, datapath.MuxRDR, op, 0, setFlag)
	default:
		return errors.Errorf("invalid addressing mode %d for %s", F, opcode)
	}
}

func (u *Unit) execCall(instr isa.Instruction) error {
	target, err := targetOf(instr)
	if err != nil {
		return err
	}
	u.DP.LatchSP(false)
	if err := u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRSP, datapath.OpADD, 0); err != nil {
		return err
	}
	if err := u.DP.WR(datapath.MuxLZero, datapath.MuxRPR, datapath.OpADD, int32(u.IP)); err != nil {
		return err
	}
	u.IP = target
	u.tick(4)
	return nil
}

func (u *Unit) execRet() {
	_ = u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRSP, datapath.OpADD, 0)
	u.DP.OE()
	u.IP = int(u.DP.DR)
	u.DP.LatchSP(true)
	u.tick(4)
}

func (u *Unit) execPush() {
	u.DP.LatchSP(false)
	_ = u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRSP, datapath.OpADD, 0)
	_ = u.DP.WR(datapath.MuxLAC, datapath.MuxRZero, datapath.OpADD, 0)
	u.tick(4)
}

func (u *Unit) execPop() {
	_ = u.DP.LatchAR(datapath.MuxLZero, datapath.MuxRSP, datapath.OpADD, 0)
	u.DP.OE()
	_ = u.DP.LatchAC(datapath.MuxLZero, datapath.MuxRDR, datapath.OpADD, 0, false)
	u.DP.LatchSP(true)
	u.tick(4)
}
