// Package riscv64 is a reference isa.Capability for the RISC-V64
// architecture. Encodings are grounded on the teacher's jmp.go
// (jmpRISCVConditional/jmpRISCVUnconditional) and riscv64_instructions.go.
package riscv64

import (
	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/isa"
)

const (
	instrSize = 4 // standard (non-compressed) RV64 instructions are 4 bytes

	opBranch = 0x63 // B-type: BEQ/BNE/BLT/BGE/BLTU/BGEU
	opJal    = 0x6F // JAL
	opJalr   = 0x67 // JALR (indirect call/jump/return depending on rd/rs1)

	// EBREAK: 0x00100073, used as padding fill.
	ebreakWord uint32 = 0x00100073
)

// Capability implements isa.Capability for RISC-V64.
type Capability struct{}

// New returns a RISC-V64 isa.Capability.
func New() isa.Capability {
	return Capability{}
}

func (Capability) InstructionSize(i block.Instruction) int {
	return i.Size
}

func (c Capability) ConcreteBlockSize(b block.Concrete) int {
	return b.Size()
}

func (c Capability) SymbolicBlockSize(b block.Symbolic, layoutBase address.Concrete) int {
	return len(b.Instructions) * instrSize
}

func (c Capability) ClassifyJump(last block.Instruction, mem isa.MemoryView, fakeAddr address.Concrete) isa.JumpKind {
	if len(last.Bytes) != instrSize {
		return isa.JumpKind{Tag: isa.NoJump}
	}
	word := decodeWord(last.Bytes)
	opcode := word & 0x7F

	switch opcode {
	case opBranch:
		off := decodeBType(word)
		return isa.JumpKind{Tag: isa.RelativeJump, Cond: isa.Conditional, HasTarget: true, Target: resolve(mem, fakeAddr, off), Offset: off}
	case opJal:
		rd := (word >> 7) & 0x1F
		off := decodeJType(word)
		if rd == 0 {
			return isa.JumpKind{Tag: isa.RelativeJump, Cond: isa.Unconditional, HasTarget: true, Target: resolve(mem, fakeAddr, off), Offset: off}
		}
		return isa.JumpKind{Tag: isa.DirectCall, Cond: isa.Unconditional, HasTarget: true, Target: resolve(mem, fakeAddr, off), Offset: off}
	case opJalr:
		rd := (word >> 7) & 0x1F
		rs1 := (word >> 15) & 0x1F
		imm := int32(word) >> 20
		if rd == 0 && rs1 == 1 && imm == 0 {
			// jalr x0, 0(x1) == ret
			return isa.JumpKind{Tag: isa.Return, Cond: isa.Unconditional}
		}
		if rd == 0 {
			return isa.JumpKind{Tag: isa.IndirectJump, Cond: isa.Unconditional}
		}
		return isa.JumpKind{Tag: isa.IndirectCall, Cond: isa.Unconditional}
	default:
		return isa.JumpKind{Tag: isa.NoJump}
	}
}

func resolve(mem isa.MemoryView, fakeAddr address.Concrete, off int32) address.Concrete {
	target := fakeAddr.Add(int64(off))
	if resolved, ok := mem.ResolveAbsolute(target); ok {
		return resolved
	}
	return target
}

func decodeWord(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeWord(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

func decodeBType(word uint32) int32 {
	imm12 := (word >> 31) & 1
	imm10_5 := (word >> 25) & 0x3F
	imm4_1 := (word >> 8) & 0xF
	imm11 := (word >> 7) & 1
	raw := (imm12 << 12) | (imm11 << 11) | (imm10_5 << 5) | (imm4_1 << 1)
	return signExtend(int32(raw), 13)
}

func decodeJType(word uint32) int32 {
	imm20 := (word >> 31) & 1
	imm10_1 := (word >> 21) & 0x3FF
	imm11 := (word >> 20) & 1
	imm19_12 := (word >> 12) & 0xFF
	raw := (imm20 << 20) | (imm19_12 << 12) | (imm11 << 11) | (imm10_1 << 1)
	return signExtend(int32(raw), 21)
}

func signExtend(v int32, bits uint) int32 {
	shift := 32 - bits
	return (v << shift) >> shift
}

// MakeRelativeJump synthesizes a JAL x0, offset unconditional jump
// (jmp.go's jmpRISCVUnconditional encoding).
func (c Capability) MakeRelativeJump(from, to address.Concrete) []block.Instruction {
	off := int32(to.Sub(from))
	imm20 := (uint32(off>>20) & 1) << 31
	imm10_1 := (uint32(off>>1) & 0x3FF) << 21
	imm11 := (uint32(off>>11) & 1) << 20
	imm19_12 := (uint32(off>>12) & 0xFF) << 12
	word := imm20 | imm19_12 | imm11 | imm10_1 | opJal
	return []block.Instruction{{Bytes: encodeWord(word), Mnemonic: "jal", Size: instrSize}}
}

func (c Capability) JumpSize() int {
	return instrSize
}

// MakePadding fills n bytes with EBREAK, RISC-V's architectural trap.
func (c Capability) MakePadding(n int) []block.Instruction {
	if n <= 0 {
		return nil
	}
	word := encodeWord(ebreakWord)
	var instrs []block.Instruction
	for n > 0 {
		take := instrSize
		if n < take {
			take = n
		}
		instrs = append(instrs, block.Instruction{Bytes: word[:take], Mnemonic: "ebreak", Size: take})
		n -= take
	}
	return instrs
}

func (c Capability) AnnotateFallthrough(kind block.FallthroughKind, successor address.Symbolic) block.FallthroughTag {
	return block.FallthroughTag{Kind: kind, Successor: successor}
}
