// Package memory implements the single-port, fixed-size circular word
// store described in spec section 4.5: a word-addressable vector
// addressed modulo its size, giving well-defined negative indexing
// (original_source/machine.py: MemoryManager/mod_in_ring).
package memory

// DefaultSize is the data-memory size used when the CLI does not
// override it (spec section 4.8/6).
const DefaultSize = 1000

// Memory is a fixed-size array of signed 32-bit words.
type Memory struct {
	words []int32
}

// New allocates a zeroed memory of the given size.
func New(size int) *Memory {
	return &Memory{words: make([]int32, size)}
}

// Size returns the number of addressable words.
func (m *Memory) Size() int { return len(m.words) }

// index reduces addr into [0, len) per mod_in_ring: ((addr % n) + n) % n.
func (m *Memory) index(addr int32) int {
	n := int32(len(m.words))
	idx := addr % n
	if idx < 0 {
		idx += n
	}
	return int(idx)
}

// Get reads the word at addr (wrapped modulo the memory size).
func (m *Memory) Get(addr int32) int32 {
	return m.words[m.index(addr)]
}

// Set writes value at addr (wrapped modulo the memory size).
func (m *Memory) Set(addr, value int32) {
	m.words[m.index(addr)] = value
}

// Preload copies data into addresses 0..len(data)-1, the global-data
// prefix step of spec section 4.8.
func (m *Memory) Preload(data []int32) {
	copy(m.words, data)
}
