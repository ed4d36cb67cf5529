// Package linker resolves the symbolic jump/call targets that
// internal/codegen attaches to emitted instructions into absolute
// indices, per spec section 4.4's two-pass design
// (original_source/translator.py: link()).
package linker

import (
	"github.com/pkg/errors"

	"accvm/internal/isa"
)

// Instr is the code generator's pre-link instruction record: an
// opcode, optional addressing-mode operand text, an optional symbolic
// jump/call target, and an optional label marking this instruction's
// own index (the original's "lable" attribute, stripped during link).
type Instr struct {
	Op      isa.Opcode
	Operand string
	Target  string
	Label   string
}

// ErrUnresolvedLabel is returned when a Target names a label that no
// instruction ever declares. Spec section 3 states this should never
// happen for a well-formed program ("unresolved V fields after linking
// indicate a compiler bug"); unlike the original, which leaves such a
// target symbolic for the caller to notice, this is surfaced as an
// explicit error instead of a silently malformed instruction stream.
var ErrUnresolvedLabel = errors.New("unresolved label")

// Link performs the two-pass resolution: first record each Label's
// index (the label itself never survives into the output), then
// replace every symbolic Target with the resolved absolute index.
func Link(instrs []Instr) ([]isa.Instruction, error) {
	labels := make(map[string]int, len(instrs))
	for i, ins := range instrs {
		if ins.Label != "" {
			labels[ins.Label] = i
		}
	}

	out := make([]isa.Instruction, len(instrs))
	for i, ins := range instrs {
		rec := isa.Instruction{Instruction: ins.Op, Operand: ins.Operand}
		if ins.Target != "" {
			idx, ok := labels[ins.Target]
			if !ok {
				return nil, errors.Wrapf(ErrUnresolvedLabel, "%s referenced by instruction %d", ins.Target, i)
			}
			rec.V = &idx
		}
		out[i] = rec
	}
	return out, nil
}
