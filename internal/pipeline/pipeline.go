// Package pipeline implements the five-stage cycle-accurate core: the
// ICRF/RFEX/EXDC/DCWB latches, bypass and stall control, multi-cycle
// interlocks, and exception/fault redirection, built on internal/cp0,
// internal/cp1, internal/alu, internal/tlb, internal/cache, internal/bus
// and internal/decode.
package pipeline

import (
	"vr4300vm/internal/alu"
	"vr4300vm/internal/bus"
	"vr4300vm/internal/cache"
	"vr4300vm/internal/cp0"
	"vr4300vm/internal/cp1"
	"vr4300vm/internal/decode"
	"vr4300vm/internal/tlb"
	"vr4300vm/internal/utils"
	"vr4300vm/internal/vrtypes"
)

// ICRFLatch carries the next fetch PC and the instruction word already
// fetched for it. The architectural model only requires this latch to
// carry the next fetch PC; caching the fetched word alongside it is the
// implementation seam between the IC and RF stages.
type ICRFLatch struct {
	PC    uint64
	IW    uint32
	Fault *vrtypes.Exception
}

// RFEXLatch carries the raw instruction word through to EX. Full decode
// and register read happen in EX (against the bypass window below)
// rather than in RF, a deliberate collapse from the stage-by-stage
// hardware description — see DESIGN.md's pipeline entry.
type RFEXLatch struct {
	PC      uint64
	IW      uint32
	IWMask  uint32 // 0 squashes the instruction (annulled branch-likely delay slot)
	Killed  bool
	Fault   *vrtypes.Exception
	InDelay bool // this instruction is a branch/jump delay slot
}

// EXDCLatch carries a pending register write and/or memory request.
type EXDCLatch struct {
	PC uint64

	HasDest bool
	Dest    int
	Result  uint64

	HasRequest bool
	Request    vrtypes.MemRequest
	LoadSigned bool // sign-extend the loaded value on completion in DC

	RedirectPC  *uint64 // non-nil: force the next IC fetch to this address (taken branch/jump/ERET)
	NullifyNext bool    // branch-likely not taken: squash the instruction currently entering RF
	ClearLL     bool    // ERET: clear the LL bit when this reaches WB

	Killed bool
	Fault  *vrtypes.Exception
}

// DCWBLatch carries the committed write for the next WB.
type DCWBLatch struct {
	PC       uint64
	HasDest  bool
	Dest     int
	Result   uint64
	ClearLL  bool
	Killed   bool
	Fault    *vrtypes.Exception
}

// CycleResult is the explicit report from one Cycle() call, replacing
// the setjmp/longjmp unwind original_source uses to pop back into its
// device-run loop.
type CycleResult struct {
	Retired   bool // an instruction reached WB and committed architectural state
	Faulted   bool
	Exception vrtypes.ExcCode
}

// Pipeline is the five-stage cycle-accurate core.
type Pipeline struct {
	Regs vrtypes.Regs
	CP0  *cp0.CP0
	TLB  *tlb.TLB
	IC   *cache.ICache
	DC   *cache.DCache
	Bus  *bus.Controller

	icrf ICRFLatch
	rfex RFEXLatch
	exdc EXDCLatch
	dcwb DCWBLatch

	stallCycles int
	llBit       bool
	halfTick    bool // Count increments every two cycles (master clock / 2)
}

// New creates a pipeline with PC set to the kseg1 reset vector.
func New(b *bus.Controller, t *tlb.TLB, c0 *cp0.CP0) *Pipeline {
	p := &Pipeline{Bus: b, TLB: t, CP0: c0, IC: &cache.ICache{}, DC: &cache.DCache{}}
	p.icrf.PC = 0xFFFFFFFFA0000000
	return p
}

// PC returns the architectural program counter: the address of the
// instruction currently in RFEX (the most recently fetched instruction
// that has begun executing), for diagnostics and the co-execution
// harness's cycle-by-register comparison.
func (p *Pipeline) PC() uint64 { return p.rfex.PC }

func wordsFromBus(b *bus.Controller, paddr uint32) [4]uint32 {
	base := paddr &^ 0xF
	var out [4]uint32
	for i := 0; i < 4; i++ {
		out[i] = b.ReadWord(base + uint32(i*4))
	}
	return out
}

// writeBackLine reconstructs the victim's physical base address from its
// stored tag plus the evicting access's line-index bits (the cache is
// virtually indexed, physically tagged, so the index itself is never
// stored on the line) and flushes all four words to the bus.
func writeBackLine(b *bus.Controller, vaddr uint64, tag uint32, data [4]uint32) {
	base := (tag << 13) | uint32(vaddr&0x1FF0)
	for i := 0; i < 4; i++ {
		b.WriteWord(base+uint32(i*4), data[i], 0xFFFFFFFF)
	}
}

// Cycle advances the pipeline by one cycle, processing WB, DC, EX, RF
// and IC in that order so each stage reads its source latch before the
// stage feeding it overwrites it.
func (p *Pipeline) Cycle() CycleResult {
	p.CP0.StepRandom(tlb.NumEntries())
	if p.halfTick {
		p.CP0.Tick(1)
	}
	p.halfTick = !p.halfTick

	oldDCWB, oldEXDC, oldRFEX, oldICRF := p.dcwb, p.exdc, p.rfex, p.icrf

	result := p.doWB(oldDCWB)

	if p.stallCycles > 0 {
		p.stallCycles--
		p.dcwb = p.doDC(oldEXDC)
		return result
	}

	newDCWB := p.doDC(oldEXDC)
	newEXDC := p.doEX(oldRFEX, oldEXDC, oldDCWB)

	var excVector uint64
	haveExc := false
	if newEXDC.Fault != nil {
		vec := p.raiseFault(*newEXDC.Fault, newEXDC.PC, oldRFEX.InDelay)
		excVector, haveExc = vec, true
		result.Faulted = true
		result.Exception = newEXDC.Fault.Code
	}

	inDelaySlot := newEXDC.RedirectPC != nil || newEXDC.NullifyNext
	newRFEX := p.doRF(oldICRF, newEXDC.NullifyNext, inDelaySlot)

	var nextFetch uint64
	switch {
	case haveExc:
		nextFetch = excVector
	case newEXDC.RedirectPC != nil:
		nextFetch = *newEXDC.RedirectPC
	default:
		nextFetch = oldICRF.PC + 4
	}
	newICRF := p.doIC(nextFetch)
	if newICRF.Fault != nil {
		vec := p.raiseFault(*newICRF.Fault, newICRF.PC, false)
		result.Faulted = true
		result.Exception = newICRF.Fault.Code
		newICRF = ICRFLatch{PC: vec}
	}

	p.dcwb, p.exdc, p.rfex, p.icrf = newDCWB, newEXDC, newRFEX, newICRF
	return result
}

func (p *Pipeline) raiseFault(exc vrtypes.Exception, pc uint64, inDelaySlot bool) uint64 {
	if exc.HasBadVAddr {
		p.CP0.SetBadVAddr(exc.BadVAddr)
	}
	return p.CP0.RaiseException(exc.Code, pc, inDelaySlot, exc.Refill)
}

// doWB commits DCWB.result to DCWB.dest (GPR 0 writes are discarded by
// Regs.Set) and clears the LL bit on an ERET path.
func (p *Pipeline) doWB(dcwb DCWBLatch) CycleResult {
	if dcwb.Killed || dcwb.Fault != nil {
		return CycleResult{}
	}
	if dcwb.HasDest {
		p.Regs.Set(dcwb.Dest, dcwb.Result)
	}
	if dcwb.ClearLL {
		p.llBit = false
	}
	return CycleResult{Retired: true}
}

// doDC executes any pending EXDC memory request against the TLB, the
// data cache and the bus, producing the DCWB latch.
func (p *Pipeline) doDC(exdc EXDCLatch) DCWBLatch {
	out := DCWBLatch{PC: exdc.PC, HasDest: exdc.HasDest, Dest: exdc.Dest, Result: exdc.Result, ClearLL: exdc.ClearLL, Killed: exdc.Killed, Fault: exdc.Fault}
	if exdc.Killed || exdc.Fault != nil || !exdc.HasRequest {
		return out
	}

	req := exdc.Request
	mode := vrtypes.AccessLoad
	if req.Type == vrtypes.ReqWrite {
		mode = vrtypes.AccessStore
	}
	_, asid := p.CP0.EntryHiVPN2ASID()
	paddr, exc := p.TLB.Translate(req.VAddr, asid, mode)
	if exc != nil {
		out.Fault = exc
		return out
	}

	if req.Type == vrtypes.ReqWrite {
		p.doStore(req.VAddr, paddr, req)
		return out
	}

	loaded := p.doLoad(req.VAddr, paddr, req.Access)
	if req.MergeMask != 0 {
		// LWL/LWR: splice the word-aligned load into the byte lane the
		// opcode selected, preserving every other bit of exdc.Result (the
		// old register value doEX carried forward).
		var shifted uint32
		if req.MergeShift >= 0 {
			shifted = loaded << uint(req.MergeShift)
		} else {
			shifted = loaded >> uint(-req.MergeShift)
		}
		out.Result = (exdc.Result &^ uint64(req.MergeMask)) | uint64(shifted&req.MergeMask)
		return out
	}
	var val uint64
	if exdc.LoadSigned {
		val = signExtendLoad(loaded, req.Access)
	} else {
		val = zeroExtendLoad(loaded, req.Access)
	}
	// PostShift splices a sub-register load into the correct half of a
	// wider destination (FR=0 LWC1 into one half of a register pair);
	// it is zero for every plain GPR load, so exdc.Result (0 for those)
	// OR'd in below is a no-op there.
	out.Result = exdc.Result | (val << req.PostShift)
	return out
}

func signExtendLoad(v uint32, size vrtypes.AccessSize) uint64 {
	switch size {
	case vrtypes.SizeByte:
		return uint64(int64(int32(utils.SignExtend(v, 8))))
	case vrtypes.SizeHalf:
		return uint64(int64(int32(utils.SignExtend(v, 16))))
	default:
		return uint64(int64(int32(v)))
	}
}

func zeroExtendLoad(v uint32, size vrtypes.AccessSize) uint64 {
	switch size {
	case vrtypes.SizeByte:
		return uint64(uint8(v))
	case vrtypes.SizeHalf:
		return uint64(uint16(v))
	default:
		return uint64(v)
	}
}

func (p *Pipeline) doLoad(vaddr uint64, paddr uint32, size vrtypes.AccessSize) uint32 {
	line, ok := p.DC.Probe(vaddr, paddr)
	if !ok {
		if victim := p.DC.ShouldFlushLine(vaddr); victim != nil {
			writeBackLine(p.Bus, vaddr, victim.Tag, victim.Data)
		}
		data := wordsFromBus(p.Bus, paddr)
		p.DC.Fill(vaddr, paddr, data)
		line, _ = p.DC.Probe(vaddr, paddr)
	}
	word := line.Data[(vaddr>>2)&0x3]
	return shiftForSize(word, vaddr, size)
}

func shiftForSize(word uint32, vaddr uint64, size vrtypes.AccessSize) uint32 {
	switch size {
	case vrtypes.SizeByte:
		shift := (3 - (vaddr & 3)) * 8
		return (word >> shift) & 0xFF
	case vrtypes.SizeHalf:
		shift := (2 - (vaddr & 2)) * 8
		return (word >> shift) & 0xFFFF
	default:
		return word
	}
}

func (p *Pipeline) doStore(vaddr uint64, paddr uint32, req vrtypes.MemRequest) {
	line, ok := p.DC.Probe(vaddr, paddr)
	if !ok {
		if victim := p.DC.ShouldFlushLine(vaddr); victim != nil {
			writeBackLine(p.Bus, vaddr, victim.Tag, victim.Data)
		}
		data := wordsFromBus(p.Bus, paddr)
		p.DC.Fill(vaddr, paddr, data)
		line, _ = p.DC.Probe(vaddr, paddr)
	}
	idx := (vaddr >> 2) & 0x3
	shift, widthMask := dqmShift(vaddr, req.Access)
	dqm := (req.WDQM & widthMask) << shift
	word := (uint32(req.Data) & widthMask) << shift
	line.Data[idx] = (line.Data[idx] &^ dqm) | (word & dqm)
	p.DC.SetDirty(line)
}

func dqmShift(vaddr uint64, size vrtypes.AccessSize) (uint, uint32) {
	switch size {
	case vrtypes.SizeByte:
		return (3 - uint(vaddr&3)) * 8, 0xFF
	case vrtypes.SizeHalf:
		return (2 - uint(vaddr&2)) * 8, 0xFFFF
	default:
		return 0, 0xFFFFFFFF
	}
}

// doEX decodes and executes the instruction in rfex, reading operands
// with bypass against the EXDC and DCWB latches as they stood before
// this cycle's DC/WB advanced them — the value a producer left in EXDC
// one cycle ago, or is committing to DCWB this very cycle.
func (p *Pipeline) doEX(rfex RFEXLatch, prevEXDC EXDCLatch, prevDCWB DCWBLatch) EXDCLatch {
	if rfex.Fault != nil {
		return EXDCLatch{PC: rfex.PC, Fault: rfex.Fault, Killed: true}
	}
	if rfex.Killed || rfex.IWMask == 0 {
		return EXDCLatch{PC: rfex.PC, Killed: true}
	}

	iw := rfex.IW
	op := decode.Decode(iw)
	rs := p.bypass(vrtypes.RegGPR(decode.GetRS(iw)), prevEXDC, prevDCWB)
	rt := p.bypass(vrtypes.RegGPR(decode.GetRT(iw)), prevEXDC, prevDCWB)
	switch op.ID {
	case decode.OpMFHI:
		rs = p.Regs.Get(vrtypes.RegHI)
	case decode.OpMFLO:
		rs = p.Regs.Get(vrtypes.RegLO)
	}

	if p.CP0.PendingInterrupt() {
		return EXDCLatch{PC: rfex.PC, Fault: &vrtypes.Exception{Code: vrtypes.ExcInt}, Killed: true}
	}

	switch op.ID {
	case decode.OpMFC0:
		val := p.CP0.Read(int(decode.GetRD(iw)), int(iw&0x7))
		return EXDCLatch{PC: rfex.PC, HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Result: uint64(int64(int32(val)))}
	case decode.OpMTC0:
		p.CP0.Write(int(decode.GetRD(iw)), int(iw&0x7), rt)
		return EXDCLatch{PC: rfex.PC}
	case decode.OpTLBP:
		vpn2, asid := p.CP0.EntryHiVPN2ASID()
		p.CP0.SetIndexFromProbe(p.TLB.Probe(vpn2, asid))
		return EXDCLatch{PC: rfex.PC}
	case decode.OpTLBR:
		idx := p.CP0.IndexForTLBWI()
		if idx >= 0 {
			e := p.TLB.Read(idx)
			p.loadEntryIntoCP0(e)
		}
		return EXDCLatch{PC: rfex.PC}
	case decode.OpTLBWI:
		if idx := p.CP0.IndexForTLBWI(); idx >= 0 {
			p.TLB.WriteIndexed(idx, p.entryFromCP0())
		}
		return EXDCLatch{PC: rfex.PC}
	case decode.OpTLBWR:
		p.TLB.WriteRandom(p.CP0.RandomValue(), p.entryFromCP0())
		return EXDCLatch{PC: rfex.PC}
	case decode.OpERET:
		pc, clearLL := p.CP0.ERET()
		return EXDCLatch{PC: rfex.PC, RedirectPC: &pc, ClearLL: clearLL}
	case decode.OpWAIT:
		return EXDCLatch{PC: rfex.PC}
	}

	if op.Flags&decode.FlagFPU != 0 || isFPUTransfer(op.ID) {
		return p.doFPU(op, iw, rfex.PC, cp1.GPROperand(op.ID, rs, rt))
	}

	res := alu.Execute(op, iw, rfex.PC, rs, rt)
	if res.Exception != nil {
		return EXDCLatch{PC: rfex.PC, Fault: res.Exception, Killed: true}
	}
	p.stallCycles = res.StallCycles

	exdc := EXDCLatch{PC: rfex.PC}
	if res.HasDest {
		exdc.HasDest, exdc.Dest, exdc.Result = true, res.Dest, res.Value
	}
	if res.Link {
		exdc.HasDest, exdc.Dest, exdc.Result = true, res.Dest, res.LinkAddr
	}
	if res.WriteHI {
		p.Regs.Set(vrtypes.RegHI, res.HI)
	}
	if res.WriteLO {
		p.Regs.Set(vrtypes.RegLO, res.LO)
	}
	if res.HasRequest {
		exdc.HasRequest = true
		exdc.Request = res.Request
		if res.Request.Type == vrtypes.ReqRead {
			// alu.Execute stashes the sign-extend flag in Data for a load
			// request, since Data carries nothing else for a load; DC puts
			// the loaded value in DCWB's Result and leaves Data alone.
			exdc.LoadSigned = res.Request.Data != 0
		}
	}
	if res.IsBranch {
		exdc.NullifyNext = res.NullifyDelaySlot
		if res.BranchTaken {
			target := res.BranchPC
			exdc.RedirectPC = &target
		}
	}
	return exdc
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

func (p *Pipeline) doFPU(op decode.Opcode, iw uint32, pc uint64, rt uint64) EXDCLatch {
	fs := p.Regs.Get(vrtypes.RegCP1(decode.GetFS(iw)))
	ft := p.Regs.Get(vrtypes.RegCP1(decode.GetFT(iw)))
	fcr31 := p.Regs.Get(vrtypes.RegFCR31)
	status := p.CP0.Status()

	res := cp1.Execute(op, iw, pc, fs, ft, rt, fcr31, status)
	if res.Invalid {
		return EXDCLatch{PC: pc, Fault: &vrtypes.Exception{Code: vrtypes.ExcRI}, Killed: true}
	}
	p.stallCycles = res.StallCycles

	exdc := EXDCLatch{PC: pc}
	if res.HasDest {
		exdc.HasDest, exdc.Dest, exdc.Result = true, res.Dest, res.Result
		if res.Dest == vrtypes.RegFCR31 {
			p.Regs.Set(vrtypes.RegFCR31, res.Result)
		}
	}
	if res.HasRequest {
		exdc.HasRequest = true
		exdc.Request = res.Request
	}
	if res.BranchTaken {
		target := res.BranchPC
		exdc.RedirectPC = &target
	}
	exdc.NullifyNext = res.NullifyDelaySlot
	return exdc
}

func (p *Pipeline) loadEntryIntoCP0(e tlb.Entry) {
	p.CP0.Write(cp0.RegEntryHi, 0, e.VPN2|uint64(e.ASID))
	lo0 := uint64(e.PFN0)<<6 | b2u(e.D0)<<2 | b2u(e.V0)<<1 | b2u(e.G)
	lo1 := uint64(e.PFN1)<<6 | b2u(e.D1)<<2 | b2u(e.V1)<<1 | b2u(e.G)
	p.CP0.Write(cp0.RegEntryLo0, 0, lo0)
	p.CP0.Write(cp0.RegEntryLo1, 0, lo1)
	p.CP0.Write(cp0.RegPageMask, 0, e.Mask)
}

func (p *Pipeline) entryFromCP0() tlb.Entry {
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

func (p *Pipeline) bypass(idx int, exdc EXDCLatch, dcwb DCWBLatch) uint64 {
	if idx == vrtypes.RegGPR0 {
		return 0
	}
	if exdc.HasDest && exdc.Dest == idx && exdc.Fault == nil && !exdc.Killed {
		return exdc.Result
	}
	if dcwb.HasDest && dcwb.Dest == idx && dcwb.Fault == nil && !dcwb.Killed {
		return dcwb.Result
	}
	return p.Regs.Get(idx)
}

// doRF carries the fetched instruction word from ICRF into RFEX,
// applying annulment for a branch-likely delay slot. Full decode and
// register read happen in EX (see doEX's comment).
func (p *Pipeline) doRF(icrf ICRFLatch, nullify bool, inDelaySlot bool) RFEXLatch {
	rf := RFEXLatch{PC: icrf.PC, IW: icrf.IW, IWMask: 0xFFFFFFFF, InDelay: inDelaySlot}
	if nullify {
		rf.IWMask = 0
		rf.Killed = true
	}
	return rf
}

// doIC translates fetchPC, probes the I-cache, and on miss fills from
// the bus, producing the next ICRF latch.
func (p *Pipeline) doIC(fetchPC uint64) ICRFLatch {
	_, asid := p.CP0.EntryHiVPN2ASID()
	paddr, exc := p.TLB.Translate(fetchPC, asid, vrtypes.AccessFetch)
	if exc != nil {
		return ICRFLatch{PC: fetchPC, Fault: exc}
	}

	line, ok := p.IC.Probe(fetchPC, paddr)
	if !ok {
		data := wordsFromBus(p.Bus, paddr)
		p.IC.Fill(fetchPC, paddr, data)
		line, _ = p.IC.Probe(fetchPC, paddr)
	}
	iw := line.Data[(fetchPC>>2)&0x3]
	return ICRFLatch{PC: fetchPC, IW: iw}
}
