// Package datapath models the accumulator machine's registers, ALU, and
// latch signals (spec section 4.6). Each exported method is one signal;
// the control unit is responsible for sequencing them correctly and for
// charging ticks (original_source/machine.py: DataPath).
package datapath

import (
	"github.com/pkg/errors"

	"accvm/internal/memory"
)

// MuxL selects the ALU's left operand.
type MuxL int

const (
	MuxLAC MuxL = iota
	MuxLAR
	MuxLZero
)

// MuxR selects the ALU's right operand.
type MuxR int

const (
	MuxRDR MuxR = iota
	MuxRZero
	MuxRSP
	MuxRPR
)

// Op names an ALU operation.
type Op int

const (
	OpADD Op = iota
	OpSUB
	OpMUL
	OpDIV
	OpMOD
	OpCMP
)

// ErrDivideByZero is returned by the ALU for DIV/MOD with a zero right
// operand (spec section 7).
var ErrDivideByZero = errors.New("divide by zero")

// ErrInputExhausted is returned when IN is latched with an empty input
// buffer (spec section 7).
var ErrInputExhausted = errors.New("input exhausted")

// DataPath holds the CPU registers, flags, and I/O buffers, and performs
// ALU operations against a shared memory.
type DataPath struct {
	Memory *memory.Memory

	AC, AR, SP, DR int32
	Z, S           bool

	Input  []int32
	Output []rune
}

// New constructs a datapath over mem with the given input token sequence
// and the initial flag state of spec section 3 (Z=true, S=false).
func New(mem *memory.Memory, input []int32) *DataPath {
	return &DataPath{Memory: mem, Z: true, S: false, Input: append([]int32{}, input...)}
}

// alu computes ALU(selL, selR, op, pr), cropping the result to signed 32
// bits and, for CMP, updating Z/S from L-R without writing the output.
func (d *DataPath) alu(selL MuxL, selR MuxR, op Op, pr int32) (int32, error) {
	var left int64
	switch selL {
	case MuxLAC:
		left = int64(d.AC)
	case MuxLAR:
		left = int64(d.AR)
	}

	var right int64
	switch selR {
	case MuxRDR:
		right = int64(d.DR)
	case MuxRSP:
		right = int64(d.SP)
	case MuxRPR:
		right = int64(pr)
	}

	switch op {
	case OpCMP:
		d.Z = left-right == 0
		d.S = left-right < 0
		return crop32(left), nil
	case OpADD:
		return crop32(left + right), nil
	case OpSUB:
		return crop32(left - right), nil
	case OpMUL:
		return crop32(left * right), nil
	case OpDIV:
		if right == 0 {
			return 0, ErrDivideByZero
		}
		return crop32(floorDiv(left, right)), nil
	case OpMOD:
		if right == 0 {
			return 0, ErrDivideByZero
		}
		return crop32(floorMod(left, right)), nil
	default:
		return 0, errors.Errorf("unknown ALU op %d", op)
	}
}

// floorDiv and floorMod implement Python's "//" and "%" (truncating
// toward negative infinity), matching spec section 4.6.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func crop32(v int64) int32 {
	return int32(uint32(v))
}

// LatchAC performs ALU(...) and stores the result in AC, optionally
// setting Z/S when setFlag is true (arithmetic opcodes do; LD does not).
func (d *DataPath) LatchAC(selL MuxL, selR MuxR, op Op, pr int32, setFlag bool) error {
	v, err := d.alu(selL, selR, op, pr)
	if err != nil {
		return err
	}
	d.AC = v
	if setFlag {
		d.Z = v == 0
		d.S = v < 0
	}
	return nil
}

// InputToAC pops the head of the input buffer into AC, per the IN
// instruction's MUX_A_INP path.
func (d *DataPath) InputToAC() error {
	if len(d.Input) == 0 {
		return ErrInputExhausted
	}
	d.AC = d.Input[0]
	d.Input = d.Input[1:]
	return nil
}

// LatchAR performs ALU(...) and stores the result in AR.
func (d *DataPath) LatchAR(selL MuxL, selR MuxR, op Op, pr int32) error {
	v, err := d.alu(selL, selR, op, pr)
	if err != nil {
		return err
	}
	d.AR = v
	return nil
}

// LatchSP adjusts SP by +1 (inc) or -1.
func (d *DataPath) LatchSP(inc bool) {
	if inc {
		d.SP++
	} else {
		d.SP--
	}
}

// OE reads memory at AR into DR.
func (d *DataPath) OE() {
	d.DR = d.Memory.Get(d.AR)
}

// WR computes ALU(...) and writes it to memory at AR.
func (d *DataPath) WR(selL MuxL, selR MuxR, op Op, pr int32) error {
	v, err := d.alu(selL, selR, op, pr)
	if err != nil {
		return err
	}
	d.Memory.Set(d.AR, v)
	return nil
}

// Out appends the character with code point AC to the output buffer.
func (d *DataPath) Out() {
	d.Output = append(d.Output, rune(d.AC))
}

// OutputString renders the accumulated output buffer.
func (d *DataPath) OutputString() string {
	return string(d.Output)
}
