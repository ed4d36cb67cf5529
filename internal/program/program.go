// Package program reads and writes the translator's serialized program
// file (spec section 6): a JSON array whose first element is the
// global-data prefix and whose remaining elements are instruction
// records. This is the one ambient concern DESIGN.md keeps on the
// standard library's encoding/json: the wire format is specified as
// "a standard structured text format equivalent to JSON", which is
// encoding/json's exact job.
package program

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"accvm/internal/isa"
)

// Program is the translator's output / the machine's input: the global
// data vector preloaded into memory at addresses 0..len-1, followed by
// the linked instruction list.
type Program struct {
	GlobalData   []int32
	Instructions []isa.Instruction
}

// MarshalJSON renders Program as the two-level array of spec section 6.
func (p Program) MarshalJSON() ([]byte, error) {
	items := make([]interface{}, 0, len(p.Instructions)+1)
	data := p.GlobalData
	if data == nil {
		data = []int32{}
	}
	items = append(items, data)
	for _, instr := range p.Instructions {
		items = append(items, instr)
	}
	return json.Marshal(items)
}

// UnmarshalJSON parses the two-level array back into Program.
func (p *Program) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "program is not a JSON array")
	}
	if len(raw) == 0 {
		return errors.New("program file has no global-data prefix")
	}
	var globalData []int32
	if err := json.Unmarshal(raw[0], &globalData); err != nil {
		return errors.Wrap(err, "global-data prefix")
	}
	instrs := make([]isa.Instruction, 0, len(raw)-1)
	for i, item := range raw[1:] {
		var instr isa.Instruction
		if err := json.Unmarshal(item, &instr); err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
		instrs = append(instrs, instr)
	}
	p.GlobalData = globalData
	p.Instructions = instrs
	return nil
}

// WriteFile serializes p to path.
func WriteFile(path string, p Program) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding program")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "writing program file")
	}
	return nil
}

// ReadFile reads and parses a program file.
func ReadFile(path string) (Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Program{}, errors.Wrap(err, "reading program file")
	}
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return Program{}, err
	}
	return p, nil
}
