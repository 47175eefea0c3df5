// Package vrtypes holds the types shared across the VR4300 core's
// components, so that fpu, memmap, bus, cache, tlb, decode, cp0, cp1 and
// pipeline can all refer to the same register-index space, memory-request
// shape and exception codes without importing one another.
package vrtypes

// Register index space. GPRs, HI/LO, PC, CP0, CP1 data, and the two FPU
// control registers all share one flat index space, per the "register bank
// as flat vector" design note: bypass and dependency tracking reduce to a
// single integer comparison.
const (
	RegGPR0  = 0
	RegGPR31 = RegGPR0 + 31
	RegHI    = RegGPR31 + 1
	RegLO    = RegHI + 1
	RegPC    = RegLO + 1

	RegCP0Base = RegPC + 1 // 32 registers, RegCP0Base+0 .. RegCP0Base+31

	RegCP1DataBase = RegCP0Base + 32 // 32 registers, RegCP1DataBase+0 .. +31

	RegFCR0  = RegCP1DataBase + 32
	RegFCR31 = RegFCR0 + 1

	NumRegs = RegFCR31 + 1
)

// RegGPR returns the unified register index for general-purpose register n.
func RegGPR(n uint32) int { return RegGPR0 + int(n&0x1F) }

// RegCP0 returns the unified register index for CP0 register n.
func RegCP0(n uint32) int { return RegCP0Base + int(n&0x1F) }

// RegCP1 returns the unified register index for CP1 data register n.
func RegCP1(n uint32) int { return RegCP1DataBase + int(n&0x1F) }

// Regs is the flat register bank backing both the functional interpreter
// and the pipelined core. GPR 0 is wired to zero: writes to it are
// discarded at commit, never stored here.
type Regs [NumRegs]uint64

// Get reads a unified register index, returning 0 for GPR 0 unconditionally.
func (r *Regs) Get(idx int) uint64 {
	if idx == RegGPR0 {
		return 0
	}
	return r[idx]
}

// Set writes a unified register index. Writes to GPR 0 are silently
// discarded, matching the architecture's commit-time invariant.
func (r *Regs) Set(idx int, val uint64) {
	if idx == RegGPR0 {
		return
	}
	r[idx] = val
}
