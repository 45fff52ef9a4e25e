// Package arm64 is a reference isa.Capability for the ARM64 (AArch64)
// architecture. Encodings are grounded on the teacher's jmp.go
// (jmpARM64Conditional/jmpARM64Unconditional) and arm64_instructions.go.
package arm64

import (
	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/isa"
)

const (
	instrSize = 4 // every A64 instruction is a fixed 4 bytes

	// BRK #0: architectural trap, used as padding fill.
	brkEncoding uint32 = 0xD4200000

	// RET (x30): bytes C0 03 5F D6 in little-endian order.
	retEncoding uint32 = 0xD65F03C0

	// Unconditional B: 000101 imm26.
	bOpcode uint32 = 0x14000000
	// B.cond: 01010100 imm19 0 cond.
	bCondOpcode uint32 = 0x54000000
	// BL: 100101 imm26 (direct call).
	blOpcode uint32 = 0x94000000
	// BR Xn (indirect jump): 1101011000011111000000 Rn 00000.
	brMask uint32 = 0xD61F0000
	// BLR Xn (indirect call): 1101011000111111000000 Rn 00000.
	blrMask uint32 = 0xD63F0000
)

// Capability implements isa.Capability for ARM64.
type Capability struct{}

// New returns an ARM64 isa.Capability.
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

	switch {
	case word == retEncoding:
		return isa.JumpKind{Tag: isa.Return, Cond: isa.Unconditional}
	case word&0xFC000000 == bOpcode:
		off := signExtend(int32(word&0x03FFFFFF), 26) * 4
		return isa.JumpKind{Tag: isa.RelativeJump, Cond: isa.Unconditional, HasTarget: true, Target: resolve(mem, fakeAddr, off), Offset: off}
	case word&0xFC000000 == blOpcode:
		off := signExtend(int32(word&0x03FFFFFF), 26) * 4
		return isa.JumpKind{Tag: isa.DirectCall, Cond: isa.Unconditional, HasTarget: true, Target: resolve(mem, fakeAddr, off), Offset: off}
	case word&0xFF000010 == bCondOpcode:
		off := signExtend(int32((word>>5)&0x7FFFF), 19) * 4
		return isa.JumpKind{Tag: isa.RelativeJump, Cond: isa.Conditional, HasTarget: true, Target: resolve(mem, fakeAddr, off), Offset: off}
	case word&0xFFFFFC1F == brMask:
		return isa.JumpKind{Tag: isa.IndirectJump, Cond: isa.Unconditional}
	case word&0xFFFFFC1F == blrMask:
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

func signExtend(v int32, bits uint) int32 {
	shift := 32 - bits
	return (v << shift) >> shift
}

func decodeWord(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func encodeWord(w uint32) []byte {
	return []byte{byte(w), byte(w >> 8), byte(w >> 16), byte(w >> 24)}
}

// MakeRelativeJump synthesizes an unconditional B with a 26-bit signed,
// instruction-aligned immediate (jmp.go's jmpARM64Unconditional).
func (c Capability) MakeRelativeJump(from, to address.Concrete) []block.Instruction {
	off := int32(to.Sub(from)) / 4
	word := bOpcode | (uint32(off) & 0x03FFFFFF)
	return []block.Instruction{{Bytes: encodeWord(word), Mnemonic: "b", Size: instrSize}}
}

func (c Capability) JumpSize() int {
	return instrSize
}

// MakePadding fills all n bytes with BRK #0 words; ARM64 has no sub-word
// instruction, so when n is not a multiple of 4 the partial trailing word
// is filled with the low bytes of another BRK (it can never be
// executed as a valid instruction boundary, matching spec §4.6's intent).
func (c Capability) MakePadding(n int) []block.Instruction {
	if n <= 0 {
		return nil
	}
	word := encodeWord(brkEncoding)
	var instrs []block.Instruction
	for n > 0 {
		take := instrSize
		if n < take {
			take = n
		}
		instrs = append(instrs, block.Instruction{Bytes: word[:take], Mnemonic: "brk", Size: take})
		n -= take
	}
	return instrs
}

func (c Capability) AnnotateFallthrough(kind block.FallthroughKind, successor address.Symbolic) block.FallthroughTag {
	return block.FallthroughTag{Kind: kind, Successor: successor}
}
