// Package interp implements the functional, instruction-at-a-time
// reference interpreter: the oracle the pipelined core in
// internal/pipeline is validated against. Its I/O contract is exactly
// "step one architectural instruction, observe architectural state" —
// it shares internal/alu and internal/cp1 with the pipeline so the two
// models can never disagree on what an instruction computes, only on
// how many host cycles it took to happen.
package interp

import (
	"vr4300vm/internal/alu"
	"vr4300vm/internal/cp0"
	"vr4300vm/internal/cp1"
	"vr4300vm/internal/decode"
	"vr4300vm/internal/tlb"
	"vr4300vm/internal/utils"
	"vr4300vm/internal/vrtypes"

	"vr4300vm/internal/bus"
)

// Result reports what one Step() did, for the co-execution harness's
// cycle-by-register comparison and for debug printing.
type Result struct {
	Retired   bool
	Faulted   bool
	Exception vrtypes.ExcCode
}

// Interp is the functional model. It reads and writes memory directly
// through the bus (via the TLB), bypassing the instruction/data caches
// entirely: cache state has no architectural effect, only timing, and
// timing is exactly what this model does not claim to reproduce.
type Interp struct {
	Regs vrtypes.Regs
	CP0  *cp0.CP0
	TLB  *tlb.TLB
	Bus  *bus.Controller

	pc              uint64
	pendingOverride *uint64
	squashNext      bool
	llBit           bool
}

// New creates a functional interpreter with PC at the kseg1 reset
// vector.
func New(b *bus.Controller, t *tlb.TLB, c0 *cp0.CP0) *Interp {
	return &Interp{Bus: b, TLB: t, CP0: c0, pc: 0xFFFFFFFFA0000000}
}

// PC returns the architectural program counter.
func (p *Interp) PC() uint64 { return p.pc }

func (p *Interp) raiseFault(exc vrtypes.Exception, pc uint64) uint64 {
	if exc.HasBadVAddr {
		p.CP0.SetBadVAddr(exc.BadVAddr)
	}
	return p.CP0.RaiseException(exc.Code, pc, false, exc.Refill)
}

func (p *Interp) fetch(pc uint64) (uint32, *vrtypes.Exception) {
	_, asid := p.CP0.EntryHiVPN2ASID()
	paddr, exc := p.TLB.Translate(pc, asid, vrtypes.AccessFetch)
	if exc != nil {
		return 0, exc
	}
	return p.Bus.ReadWord(paddr), nil
}

// Step executes exactly one architectural instruction (which may be a
// squashed branch-likely delay slot with no effect) and advances PC.
func (p *Interp) Step() Result {
	p.CP0.Tick(1)

	if p.CP0.PendingInterrupt() && p.pendingOverride == nil {
		vec := p.raiseFault(vrtypes.Exception{Code: vrtypes.ExcInt}, p.pc)
		p.pc = vec
		return Result{Faulted: true, Exception: vrtypes.ExcInt}
	}

	pc := p.pc
	iw, fetchExc := p.fetch(pc)
	if fetchExc != nil {
		vec := p.raiseFault(*fetchExc, pc)
		p.pc = vec
		p.pendingOverride = nil
		p.squashNext = false
		return Result{Faulted: true, Exception: fetchExc.Code}
	}

	skip := p.squashNext
	p.squashNext = false

	var branchTaken bool
	var branchPC uint64
	var nullify bool
	isBranch := false
	retired := false
	faulted := false
	var excCode vrtypes.ExcCode

	if !skip {
		r, fault := p.execute(iw, pc)
		if fault != nil {
			vec := p.raiseFault(*fault, pc)
			p.pc = vec
			return Result{Faulted: true, Exception: fault.Code}
		}
		retired = true
		isBranch = r.isBranch
		branchTaken = r.branchTaken
		branchPC = r.branchPC
		nullify = r.nullify
	}
	_ = faulted
	_ = excCode

	if p.pendingOverride != nil {
		p.pc = *p.pendingOverride
		p.pendingOverride = nil
	} else if isBranch {
		final := pc + 8
		if branchTaken {
			final = branchPC
		}
		p.pendingOverride = &final
		if nullify {
			p.squashNext = true
		}
		p.pc = pc + 4
	} else {
		p.pc = pc + 4
	}

	return Result{Retired: retired}
}

type execOutcome struct {
	isBranch    bool
	branchTaken bool
	branchPC    uint64
	nullify     bool
}

func (p *Interp) execute(iw uint32, pc uint64) (execOutcome, *vrtypes.Exception) {
	op := decode.Decode(iw)
	rs := p.Regs.Get(vrtypes.RegGPR(decode.GetRS(iw)))
	rt := p.Regs.Get(vrtypes.RegGPR(decode.GetRT(iw)))
	switch op.ID {
	case decode.OpMFHI:
		rs = p.Regs.Get(vrtypes.RegHI)
	case decode.OpMFLO:
		rs = p.Regs.Get(vrtypes.RegLO)
	}

	switch op.ID {
	case decode.OpMFC0:
		val := p.CP0.Read(int(decode.GetRD(iw)), int(iw&0x7))
		p.Regs.Set(vrtypes.RegGPR(decode.GetRT(iw)), uint64(int64(int32(val))))
		return execOutcome{}, nil
	case decode.OpMTC0:
		p.CP0.Write(int(decode.GetRD(iw)), int(iw&0x7), rt)
		return execOutcome{}, nil
	case decode.OpTLBP:
		vpn2, asid := p.CP0.EntryHiVPN2ASID()
		p.CP0.SetIndexFromProbe(p.TLB.Probe(vpn2, asid))
		return execOutcome{}, nil
	case decode.OpTLBR:
		if idx := p.CP0.IndexForTLBWI(); idx >= 0 {
			p.loadEntryIntoCP0(p.TLB.Read(idx))
		}
		return execOutcome{}, nil
	case decode.OpTLBWI:
		if idx := p.CP0.IndexForTLBWI(); idx >= 0 {
			p.TLB.WriteIndexed(idx, p.entryFromCP0())
		}
		return execOutcome{}, nil
	case decode.OpTLBWR:
		p.TLB.WriteRandom(p.CP0.RandomValue(), p.entryFromCP0())
		return execOutcome{}, nil
	case decode.OpERET:
		newPC, clearLL := p.CP0.ERET()
		if clearLL {
			p.llBit = false
		}
		p.pc = newPC
		p.pendingOverride = nil
		p.squashNext = false
		// ERET redirects immediately; the caller's natural +4 advance
		// must not run, so we short-circuit by reporting a "branch" to
		// the already-set target with no delay slot semantics.
		return execOutcome{isBranch: true, branchTaken: true, branchPC: newPC}, nil
	case decode.OpWAIT:
		return execOutcome{}, nil
	}

	if op.Flags&decode.FlagFPU != 0 || isFPUTransfer(op.ID) {
		return p.executeFPU(op, iw, pc, cp1.GPROperand(op.ID, rs, rt))
	}

	res := alu.Execute(op, iw, pc, rs, rt)
	if res.Exception != nil {
		return execOutcome{}, res.Exception
	}
	if res.HasDest {
		p.Regs.Set(res.Dest, res.Value)
	}
	if res.Link {
		p.Regs.Set(res.Dest, res.LinkAddr)
	}
	if res.WriteHI {
		p.Regs.Set(vrtypes.RegHI, res.HI)
	}
	if res.WriteLO {
		p.Regs.Set(vrtypes.RegLO, res.LO)
	}
	if res.HasRequest {
		if exc := p.doMemRequest(res.Dest, res.HasDest, res.Request); exc != nil {
			return execOutcome{}, exc
		}
	}
	if res.IsBranch {
		return execOutcome{isBranch: true, branchTaken: res.BranchTaken, branchPC: res.BranchPC, nullify: res.NullifyDelaySlot}, nil
	}
	return execOutcome{}, nil
}

func isFPUTransfer(id decode.OpID) bool {
	switch id {
	case decode.OpMFC1, decode.OpDMFC1, decode.OpCFC1, decode.OpMTC1, decode.OpDMTC1, decode.OpCTC1,
		decode.OpBC1F, decode.OpBC1T, decode.OpBC1FL, decode.OpBC1TL,
		decode.OpLWC1, decode.OpLDC1, decode.OpSWC1, decode.OpSDC1:
		return true
	}
	return false
}

func (p *Interp) executeFPU(op decode.Opcode, iw uint32, pc uint64, rt uint64) (execOutcome, *vrtypes.Exception) {
	fs := p.Regs.Get(vrtypes.RegCP1(decode.GetFS(iw)))
	ft := p.Regs.Get(vrtypes.RegCP1(decode.GetFT(iw)))
	fcr31 := p.Regs.Get(vrtypes.RegFCR31)
	status := p.CP0.Status()

	res := cp1.Execute(op, iw, pc, fs, ft, rt, fcr31, status)
	if res.Invalid {
		return execOutcome{}, &vrtypes.Exception{Code: vrtypes.ExcRI}
	}
	if res.HasDest {
		p.Regs.Set(res.Dest, res.Result)
	}
	if res.HasRequest {
		if exc := p.doMemRequest(res.Dest, res.HasDest, res.Request); exc != nil {
			return execOutcome{}, exc
		}
	}
	if op.ID == decode.OpBC1F || op.ID == decode.OpBC1T || op.ID == decode.OpBC1FL || op.ID == decode.OpBC1TL {
		return execOutcome{isBranch: true, branchTaken: res.BranchTaken, branchPC: res.BranchPC, nullify: res.NullifyDelaySlot}, nil
	}
	return execOutcome{}, nil
}

func (p *Interp) doMemRequest(loadDest int, destIsLoad bool, req vrtypes.MemRequest) *vrtypes.Exception {
	mode := vrtypes.AccessLoad
	if req.Type == vrtypes.ReqWrite {
		mode = vrtypes.AccessStore
	}
	_, asid := p.CP0.EntryHiVPN2ASID()
	paddr, exc := p.TLB.Translate(req.VAddr, asid, mode)
	if exc != nil {
		return exc
	}

	if req.Type == vrtypes.ReqWrite {
		word := p.Bus.ReadWord(paddr &^ 3)
		shift, widthMask := byteLane(req.VAddr, req.Access)
		dqm := (req.WDQM & widthMask) << shift
		newWord := (word &^ dqm) | ((uint32(req.Data) & widthMask) << shift & dqm)
		p.Bus.WriteWord(paddr&^3, newWord, 0xFFFFFFFF)
		return nil
	}

	word := p.Bus.ReadWord(paddr &^ 3)
	shift, widthMask := byteLane(req.VAddr, req.Access)
	loaded := (word >> shift) & widthMask
	if req.MergeMask != 0 {
		// LWL/LWR: splice the word-aligned load into the byte lane the
		// opcode selected, preserving every other bit of the destination
		// register's current value (already set to the preserved half by
		// the caller, mirroring PostShift's merge below).
		var shiftedMerge uint32
		if req.MergeShift >= 0 {
			shiftedMerge = loaded << uint(req.MergeShift)
		} else {
			shiftedMerge = loaded >> uint(-req.MergeShift)
		}
		p.Regs.Set(loadDest, (p.Regs.Get(loadDest)&^uint64(req.MergeMask))|uint64(shiftedMerge&req.MergeMask))
		return nil
	}
	if destIsLoad {
		var val uint64
		if req.Data != 0 {
			val = signExtend(loaded, req.Access)
		} else {
			val = uint64(loaded)
		}
		// PostShift splices a sub-register load into the correct half of
		// a wider destination (FR=0 LWC1 into one half of a register
		// pair); the caller has already written the preserved half into
		// loadDest, so OR it in rather than overwrite.
		p.Regs.Set(loadDest, p.Regs.Get(loadDest)|(val<<req.PostShift))
	}
	return nil
}

func byteLane(vaddr uint64, size vrtypes.AccessSize) (uint, uint32) {
	switch size {
	case vrtypes.SizeByte:
		return (3 - uint(vaddr&3)) * 8, 0xFF
	case vrtypes.SizeHalf:
		return (2 - uint(vaddr&2)) * 8, 0xFFFF
	default:
		return 0, 0xFFFFFFFF
	}
}

func signExtend(v uint32, size vrtypes.AccessSize) uint64 {
	switch size {
	case vrtypes.SizeByte:
		return uint64(int64(int32(utils.SignExtend(v, 8))))
	case vrtypes.SizeHalf:
		return uint64(int64(int32(utils.SignExtend(v, 16))))
	default:
		return uint64(int64(int32(v)))
	}
}

func (p *Interp) loadEntryIntoCP0(e tlb.Entry) {
	p.CP0.Write(cp0.RegEntryHi, 0, e.VPN2|uint64(e.ASID))
	lo0 := uint64(e.PFN0)<<6 | b2u(e.D0)<<2 | b2u(e.V0)<<1 | b2u(e.G)
	lo1 := uint64(e.PFN1)<<6 | b2u(e.D1)<<2 | b2u(e.V1)<<1 | b2u(e.G)
	p.CP0.Write(cp0.RegEntryLo0, 0, lo0)
	p.CP0.Write(cp0.RegEntryLo1, 0, lo1)
	p.CP0.Write(cp0.RegPageMask, 0, e.Mask)
}

func (p *Interp) entryFromCP0() tlb.Entry {
	hi := p.CP0.Read(cp0.RegEntryHi, 0)
	lo0 := p.CP0.Read(cp0.RegEntryLo0, 0)
	lo1 := p.CP0.Read(cp0.RegEntryLo1, 0)
	mask := p.CP0.Read(cp0.RegPageMask, 0)
	return tlb.Entry{
		VPN2: hi &^ 0xFF,
		ASID: uint8(hi & 0xFF),
		Mask: mask,
		PFN0: uint32(lo0 >> 6), D0: lo0&(1<<2) != 0, V0: lo0&(1<<1) != 0,
		PFN1: uint32(lo1 >> 6), D1: lo1&(1<<2) != 0, V1: lo1&(1<<1) != 0,
		G: lo0&1 != 0 && lo1&1 != 0,
	}
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
