package cpu

// Instruction describes one dispatch-table entry: nominal cycle count,
// instruction length, addressing mode, and how the operand is used.
// WriteTarget marks instructions whose operand address is written (stores
// and read-modify-writes), which changes indexed addressing behaviour.
// PagePenalty marks reads that cost one extra cycle on a page crossing.
type Instruction struct {
	Name        string
	Bytes       uint8
	Cycles      uint8
	Mode        AddressingMode
	WriteTarget bool
	PagePenalty bool
}

// instructions is the 256-entry dispatch table. Entries with an empty name
// are unknown opcodes; executing one halts the CPU.
var instructions [256]Instruction

func def(opcode uint8, name string, bytes, cycles uint8, mode AddressingMode) {
	instructions[opcode] = Instruction{Name: name, Bytes: bytes, Cycles: cycles, Mode: mode}
}

// defR defines a read instruction with the page-crossing penalty.
func defR(opcode uint8, name string, bytes, cycles uint8, mode AddressingMode) {
	instructions[opcode] = Instruction{Name: name, Bytes: bytes, Cycles: cycles, Mode: mode, PagePenalty: true}
}

// defW defines an instruction that writes its operand address.
func defW(opcode uint8, name string, bytes, cycles uint8, mode AddressingMode) {
	instructions[opcode] = Instruction{Name: name, Bytes: bytes, Cycles: cycles, Mode: mode, WriteTarget: true}
}

func init() {
	// Load
	def(0xA9, "LDA", 2, 2, Immediate)
	def(0xA5, "LDA", 2, 3, ZeroPage)
	def(0xB5, "LDA", 2, 4, ZeroPageX)
	def(0xAD, "LDA", 3, 4, Absolute)
	defR(0xBD, "LDA", 3, 4, AbsoluteX)
	defR(0xB9, "LDA", 3, 4, AbsoluteY)
	def(0xA1, "LDA", 2, 6, IndexedIndirect)
	defR(0xB1, "LDA", 2, 5, IndirectIndexed)

	def(0xA2, "LDX", 2, 2, Immediate)
	def(0xA6, "LDX", 2, 3, ZeroPage)
	def(0xB6, "LDX", 2, 4, ZeroPageY)
	def(0xAE, "LDX", 3, 4, Absolute)
	defR(0xBE, "LDX", 3, 4, AbsoluteY)

	def(0xA0, "LDY", 2, 2, Immediate)
	def(0xA4, "LDY", 2, 3, ZeroPage)
	def(0xB4, "LDY", 2, 4, ZeroPageX)
	def(0xAC, "LDY", 3, 4, Absolute)
	defR(0xBC, "LDY", 3, 4, AbsoluteX)

	// Store
	defW(0x85, "STA", 2, 3, ZeroPage)
	defW(0x95, "STA", 2, 4, ZeroPageX)
	defW(0x8D, "STA", 3, 4, Absolute)
	defW(0x9D, "STA", 3, 5, AbsoluteX)
	defW(0x99, "STA", 3, 5, AbsoluteY)
	defW(0x81, "STA", 2, 6, IndexedIndirect)
	defW(0x91, "STA", 2, 6, IndirectIndexed)

	defW(0x86, "STX", 2, 3, ZeroPage)
	defW(0x96, "STX", 2, 4, ZeroPageY)
	defW(0x8E, "STX", 3, 4, Absolute)

	defW(0x84, "STY", 2, 3, ZeroPage)
	defW(0x94, "STY", 2, 4, ZeroPageX)
	defW(0x8C, "STY", 3, 4, Absolute)

	// Arithmetic
	def(0x69, "ADC", 2, 2, Immediate)
	def(0x65, "ADC", 2, 3, ZeroPage)
	def(0x75, "ADC", 2, 4, ZeroPageX)
	def(0x6D, "ADC", 3, 4, Absolute)
	defR(0x7D, "ADC", 3, 4, AbsoluteX)
	defR(0x79, "ADC", 3, 4, AbsoluteY)
	def(0x61, "ADC", 2, 6, IndexedIndirect)
	defR(0x71, "ADC", 2, 5, IndirectIndexed)

	def(0xE9, "SBC", 2, 2, Immediate)
	def(0xEB, "SBC", 2, 2, Immediate) // undocumented alias
	def(0xE5, "SBC", 2, 3, ZeroPage)
	def(0xF5, "SBC", 2, 4, ZeroPageX)
	def(0xED, "SBC", 3, 4, Absolute)
	defR(0xFD, "SBC", 3, 4, AbsoluteX)
	defR(0xF9, "SBC", 3, 4, AbsoluteY)
	def(0xE1, "SBC", 2, 6, IndexedIndirect)
	defR(0xF1, "SBC", 2, 5, IndirectIndexed)

	// Logical
	def(0x29, "AND", 2, 2, Immediate)
	def(0x25, "AND", 2, 3, ZeroPage)
	def(0x35, "AND", 2, 4, ZeroPageX)
	def(0x2D, "AND", 3, 4, Absolute)
	defR(0x3D, "AND", 3, 4, AbsoluteX)
	defR(0x39, "AND", 3, 4, AbsoluteY)
	def(0x21, "AND", 2, 6, IndexedIndirect)
	defR(0x31, "AND", 2, 5, IndirectIndexed)

	def(0x09, "ORA", 2, 2, Immediate)
	def(0x05, "ORA", 2, 3, ZeroPage)
	def(0x15, "ORA", 2, 4, ZeroPageX)
	def(0x0D, "ORA", 3, 4, Absolute)
	defR(0x1D, "ORA", 3, 4, AbsoluteX)
	defR(0x19, "ORA", 3, 4, AbsoluteY)
	def(0x01, "ORA", 2, 6, IndexedIndirect)
	defR(0x11, "ORA", 2, 5, IndirectIndexed)

	def(0x49, "EOR", 2, 2, Immediate)
	def(0x45, "EOR", 2, 3, ZeroPage)
	def(0x55, "EOR", 2, 4, ZeroPageX)
	def(0x4D, "EOR", 3, 4, Absolute)
	defR(0x5D, "EOR", 3, 4, AbsoluteX)
	defR(0x59, "EOR", 3, 4, AbsoluteY)
	def(0x41, "EOR", 2, 6, IndexedIndirect)
	defR(0x51, "EOR", 2, 5, IndirectIndexed)

	// Shifts and rotates
	def(0x0A, "ASL", 1, 2, Accumulator)
	defW(0x06, "ASL", 2, 5, ZeroPage)
	defW(0x16, "ASL", 2, 6, ZeroPageX)
	defW(0x0E, "ASL", 3, 6, Absolute)
	defW(0x1E, "ASL", 3, 7, AbsoluteX)

	def(0x4A, "LSR", 1, 2, Accumulator)
	defW(0x46, "LSR", 2, 5, ZeroPage)
	defW(0x56, "LSR", 2, 6, ZeroPageX)
	defW(0x4E, "LSR", 3, 6, Absolute)
	defW(0x5E, "LSR", 3, 7, AbsoluteX)

	def(0x2A, "ROL", 1, 2, Accumulator)
	defW(0x26, "ROL", 2, 5, ZeroPage)
	defW(0x36, "ROL", 2, 6, ZeroPageX)
	defW(0x2E, "ROL", 3, 6, Absolute)
	defW(0x3E, "ROL", 3, 7, AbsoluteX)

	def(0x6A, "ROR", 1, 2, Accumulator)
	defW(0x66, "ROR", 2, 5, ZeroPage)
	defW(0x76, "ROR", 2, 6, ZeroPageX)
	defW(0x6E, "ROR", 3, 6, Absolute)
	defW(0x7E, "ROR", 3, 7, AbsoluteX)

	// Compare
	def(0xC9, "CMP", 2, 2, Immediate)
	def(0xC5, "CMP", 2, 3, ZeroPage)
	def(0xD5, "CMP", 2, 4, ZeroPageX)
	def(0xCD, "CMP", 3, 4, Absolute)
	defR(0xDD, "CMP", 3, 4, AbsoluteX)
	defR(0xD9, "CMP", 3, 4, AbsoluteY)
	def(0xC1, "CMP", 2, 6, IndexedIndirect)
	defR(0xD1, "CMP", 2, 5, IndirectIndexed)

	def(0xE0, "CPX", 2, 2, Immediate)
	def(0xE4, "CPX", 2, 3, ZeroPage)
	def(0xEC, "CPX", 3, 4, Absolute)

	def(0xC0, "CPY", 2, 2, Immediate)
	def(0xC4, "CPY", 2, 3, ZeroPage)
	def(0xCC, "CPY", 3, 4, Absolute)

	// Increment / decrement
	defW(0xE6, "INC", 2, 5, ZeroPage)
	defW(0xF6, "INC", 2, 6, ZeroPageX)
	defW(0xEE, "INC", 3, 6, Absolute)
	defW(0xFE, "INC", 3, 7, AbsoluteX)

	defW(0xC6, "DEC", 2, 5, ZeroPage)
	defW(0xD6, "DEC", 2, 6, ZeroPageX)
	defW(0xCE, "DEC", 3, 6, Absolute)
	defW(0xDE, "DEC", 3, 7, AbsoluteX)

	def(0xE8, "INX", 1, 2, Implied)
	def(0xCA, "DEX", 1, 2, Implied)
	def(0xC8, "INY", 1, 2, Implied)
	def(0x88, "DEY", 1, 2, Implied)

	// Transfers
	def(0xAA, "TAX", 1, 2, Implied)
	def(0x8A, "TXA", 1, 2, Implied)
	def(0xA8, "TAY", 1, 2, Implied)
	def(0x98, "TYA", 1, 2, Implied)
	def(0xBA, "TSX", 1, 2, Implied)
	def(0x9A, "TXS", 1, 2, Implied)

	// Stack
	def(0x48, "PHA", 1, 3, Implied)
	def(0x68, "PLA", 1, 4, Implied)
	def(0x08, "PHP", 1, 3, Implied)
	def(0x28, "PLP", 1, 4, Implied)

	// Flags
	def(0x18, "CLC", 1, 2, Implied)
	def(0x38, "SEC", 1, 2, Implied)
	def(0x58, "CLI", 1, 2, Implied)
	def(0x78, "SEI", 1, 2, Implied)
	def(0xB8, "CLV", 1, 2, Implied)
	def(0xD8, "CLD", 1, 2, Implied)
	def(0xF8, "SED", 1, 2, Implied)

	// Jumps and subroutines
	def(0x4C, "JMP", 3, 3, Absolute)
	def(0x6C, "JMP", 3, 5, Indirect)
	def(0x20, "JSR", 3, 6, Absolute)
	def(0x60, "RTS", 1, 6, Implied)
	def(0x40, "RTI", 1, 6, Implied)
	def(0x00, "BRK", 1, 7, Implied)

	// Branches
	def(0x90, "BCC", 2, 2, Relative)
	def(0xB0, "BCS", 2, 2, Relative)
	def(0xD0, "BNE", 2, 2, Relative)
	def(0xF0, "BEQ", 2, 2, Relative)
	def(0x10, "BPL", 2, 2, Relative)
	def(0x30, "BMI", 2, 2, Relative)
	def(0x50, "BVC", 2, 2, Relative)
	def(0x70, "BVS", 2, 2, Relative)

	// Bit test
	def(0x24, "BIT", 2, 3, ZeroPage)
	def(0x2C, "BIT", 3, 4, Absolute)

	// NOP and its undocumented spellings
	def(0xEA, "NOP", 1, 2, Implied)
	for _, op := range []uint8{0x1A, 0x3A, 0x5A, 0x7A, 0xDA, 0xFA} {
		def(op, "NOP", 1, 2, Implied)
	}
	for _, op := range []uint8{0x80, 0x82, 0x89, 0xC2, 0xE2} {
		def(op, "NOP", 2, 2, Immediate)
	}
	for _, op := range []uint8{0x04, 0x44, 0x64} {
		def(op, "NOP", 2, 3, ZeroPage)
	}
	for _, op := range []uint8{0x14, 0x34, 0x54, 0x74, 0xD4, 0xF4} {
		def(op, "NOP", 2, 4, ZeroPageX)
	}
	def(0x0C, "NOP", 3, 4, Absolute)
	for _, op := range []uint8{0x1C, 0x3C, 0x5C, 0x7C, 0xDC, 0xFC} {
		defR(op, "NOP", 3, 4, AbsoluteX)
	}

	// Undocumented load/store combos
	def(0xA7, "LAX", 2, 3, ZeroPage)
	def(0xB7, "LAX", 2, 4, ZeroPageY)
	def(0xAF, "LAX", 3, 4, Absolute)
	defR(0xBF, "LAX", 3, 4, AbsoluteY)
	def(0xA3, "LAX", 2, 6, IndexedIndirect)
	defR(0xB3, "LAX", 2, 5, IndirectIndexed)

	defW(0x87, "SAX", 2, 3, ZeroPage)
	defW(0x97, "SAX", 2, 4, ZeroPageY)
	defW(0x8F, "SAX", 3, 4, Absolute)
	defW(0x83, "SAX", 2, 6, IndexedIndirect)

	// Undocumented read-modify-write combos
	for _, e := range []struct {
		name string
		ops  [7]uint8
	}{
		{"SLO", [7]uint8{0x07, 0x17, 0x0F, 0x1F, 0x1B, 0x03, 0x13}},
		{"RLA", [7]uint8{0x27, 0x37, 0x2F, 0x3F, 0x3B, 0x23, 0x33}},
		{"SRE", [7]uint8{0x47, 0x57, 0x4F, 0x5F, 0x5B, 0x43, 0x53}},
		{"RRA", [7]uint8{0x67, 0x77, 0x6F, 0x7F, 0x7B, 0x63, 0x73}},
		{"DCP", [7]uint8{0xC7, 0xD7, 0xCF, 0xDF, 0xDB, 0xC3, 0xD3}},
		{"ISC", [7]uint8{0xE7, 0xF7, 0xEF, 0xFF, 0xFB, 0xE3, 0xF3}},
	} {
		defW(e.ops[0], e.name, 2, 5, ZeroPage)
		defW(e.ops[1], e.name, 2, 6, ZeroPageX)
		defW(e.ops[2], e.name, 3, 6, Absolute)
		defW(e.ops[3], e.name, 3, 7, AbsoluteX)
		defW(e.ops[4], e.name, 3, 7, AbsoluteY)
		defW(e.ops[5], e.name, 2, 8, IndexedIndirect)
		defW(e.ops[6], e.name, 2, 8, IndirectIndexed)
	}
}
