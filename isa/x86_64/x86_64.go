// Package x86_64 is a reference isa.Capability for the x86-64 architecture.
// It is deliberately narrow: it only knows enough encoding to classify
// jump-shaped terminators, synthesize trampoline jumps, and fill padding —
// the exact surface the layout engine's ISA capability contract requires
// (spec §4.1). Instruction byte layouts are grounded on the teacher's own
// per-architecture encoders (jmp.go, mov_x86_64.go, ret.go).
package x86_64

import (
	"github.com/xyproto/rewire/address"
	"github.com/xyproto/rewire/block"
	"github.com/xyproto/rewire/isa"
)

// Opcode bytes recognized by ClassifyJump, grounded on jmp.go's opcode tables.
const (
	opJmpRel32    = 0xE9 // unconditional near jump, rel32
	opCallRel32   = 0xE8 // direct call, rel32
	opRetNear     = 0xC3 // near return
	opTwoByteCond = 0x0F // prefix for Jcc rel32 (0F 8x)
	opIndirectFF  = 0xFF // ModRM-encoded indirect call/jump group

	// condJccBase is the base opcode for the 0F 8x family; the condition
	// code occupies the low nibble.
	condJccBase = 0x80

	relJumpSize      = 5 // E9 rel32
	relCondJumpSize  = 6 // 0F 8x rel32
	trapByte         = 0xCC // INT3: traps rather than executing garbage
)

// Capability implements isa.Capability for x86-64.
type Capability struct{}

// New returns an x86-64 isa.Capability.
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
	total := 0
	for _, i := range b.Instructions {
		total += i.Size
	}
	return total
}

// ClassifyJump inspects the opcode bytes of the block's last instruction.
// mem/fakeAddr are only consulted for relative jumps and direct calls, to resolve the
// target for diagnostics; classification itself never needs them beyond
// that (spec §6).
func (c Capability) ClassifyJump(last block.Instruction, mem isa.MemoryView, fakeAddr address.Concrete) isa.JumpKind {
	b := last.Bytes
	if len(b) == 0 {
		return isa.JumpKind{Tag: isa.NoJump}
	}

	switch b[0] {
	case opRetNear:
		return isa.JumpKind{Tag: isa.Return, Cond: isa.Unconditional}
	case opJmpRel32:
		off := decodeRel32(b, 1)
		target := fakeAddr.Add(int64(len(b)) + int64(off))
		if resolved, ok := mem.ResolveAbsolute(target); ok {
			target = resolved
		}
		return isa.JumpKind{Tag: isa.RelativeJump, Cond: isa.Unconditional, HasTarget: true, Target: target, Offset: off}
	case opCallRel32:
		off := decodeRel32(b, 1)
		target := fakeAddr.Add(int64(len(b)) + int64(off))
		if resolved, ok := mem.ResolveAbsolute(target); ok {
			target = resolved
		}
		return isa.JumpKind{Tag: isa.DirectCall, Cond: isa.Unconditional, HasTarget: true, Target: target, Offset: off}
	case opTwoByteCond:
		if len(b) >= 2 && b[1] >= condJccBase && b[1] <= condJccBase+0x0F {
			off := decodeRel32(b, 2)
			target := fakeAddr.Add(int64(len(b)) + int64(off))
			if resolved, ok := mem.ResolveAbsolute(target); ok {
				target = resolved
			}
			return isa.JumpKind{Tag: isa.RelativeJump, Cond: isa.Conditional, HasTarget: true, Target: target, Offset: off}
		}
	case opIndirectFF:
		if len(b) >= 2 {
			reg := (b[1] >> 3) & 0x7
			switch reg {
			case 2, 3: // CALL r/m64 (group /2), CALL FAR (group /3)
				return isa.JumpKind{Tag: isa.IndirectCall, Cond: isa.Unconditional}
			case 4, 5: // JMP r/m64 (group /4), JMP FAR (group /5)
				return isa.JumpKind{Tag: isa.IndirectJump, Cond: isa.Unconditional}
			}
		}
	}

	return isa.JumpKind{Tag: isa.NoJump}
}

func decodeRel32(b []byte, at int) int32 {
	if len(b) < at+4 {
		return 0
	}
	return int32(uint32(b[at]) | uint32(b[at+1])<<8 | uint32(b[at+2])<<16 | uint32(b[at+3])<<24)
}

// MakeRelativeJump synthesizes an E9 rel32 unconditional jump (jmp.go's
// jmpX86Unconditional encoding).
func (c Capability) MakeRelativeJump(from, to address.Concrete) []block.Instruction {
	off := int32(to.Sub(from)) - relJumpSize
	return []block.Instruction{{
		Bytes:    encodeRel32(opJmpRel32, off),
		Mnemonic: "jmp",
		Size:     relJumpSize,
	}}
}

func (c Capability) JumpSize() int {
	return relJumpSize
}

// MakePadding fills n bytes with INT3 (0xCC), the architecture's trap
// instruction: a stray transfer into reclaimed space must fault rather
// than execute partially-overwritten bytes (spec §4.6).
func (c Capability) MakePadding(n int) []block.Instruction {
	if n <= 0 {
		return nil
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = trapByte
	}
	return []block.Instruction{{Bytes: buf, Mnemonic: "int3-pad", Size: n}}
}

func (c Capability) AnnotateFallthrough(kind block.FallthroughKind, successor address.Symbolic) block.FallthroughTag {
	return block.FallthroughTag{Kind: kind, Successor: successor}
}

func encodeRel32(opcode byte, off int32) []byte {
	return []byte{
		opcode,
		byte(off),
		byte(off >> 8),
		byte(off >> 16),
		byte(off >> 24),
	}
}
