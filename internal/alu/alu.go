// Package alu executes the integer instruction set shared by the
// pipelined EX stage and the functional interpreter, grounded on
// internal/mips32/instructions.go's per-opcode switch and the generic
// overflow/sign-extend helpers in internal/utils. Keeping this logic in
// one place means the pipeline and the functional interpreter can never
// architecturally disagree on what an ADD does, only on when it happens
// — which is the entire point of the co-execution harness.
package alu

import (
	"vr4300vm/internal/decode"
	"vr4300vm/internal/utils"
	"vr4300vm/internal/vrtypes"
)

// Result is the architectural effect of one integer instruction: at most
// one GPR destination, optional HI/LO writes (mult/div), an optional
// pending memory request (loads/stores), an optional branch redirect, and
// an optional exception (overflow, trap, reserved).
type Result struct {
	HasDest bool
	Dest    int
	Value   uint64

	WriteHI bool
	HI      uint64
	WriteLO bool
	LO      uint64

	StallCycles int // MCI cycles MULT/MULTU/DIV/DIVU hold the pipeline beyond the normal one

	HasRequest bool
	Request    vrtypes.MemRequest

	BranchTaken      bool
	BranchPC         uint64
	IsBranch         bool // even if not taken, so the caller knows a delay slot follows
	NullifyDelaySlot bool

	Link     bool // JAL/JALR/BLTZAL/BGEZAL: write return address to Dest in addition to any branch
	LinkAddr uint64

	Exception *vrtypes.Exception
}

func signExt16(v uint16) uint64 { return uint64(int64(int16(v))) }

// Execute performs one non-FPU, non-CP0-register instruction. rs/rt are
// the operand values already read (with bypass) by the caller; pc is the
// address of this instruction (the RFEX latch's pc in the pipeline, or
// the program counter in the interpreter).
func Execute(op decode.Opcode, iw uint32, pc uint64, rs, rt uint64) Result {
	switch op.ID {
	case decode.OpSLL:
		return shift(iw, rt, false, false)
	case decode.OpSRL:
		return shift(iw, rt, true, false)
	case decode.OpSRA:
		return shift(iw, rt, true, true)
	case decode.OpSLLV:
		return shiftV(iw, rs, rt, false, false)
	case decode.OpSRLV:
		return shiftV(iw, rs, rt, true, false)
	case decode.OpSRAV:
		return shiftV(iw, rs, rt, true, true)

	case decode.OpADD:
		return addSub(iw, rs, rt, true, true)
	case decode.OpADDU:
		return addSub(iw, rs, rt, true, false)
	case decode.OpSUB:
		return addSub(iw, rs, rt, false, true)
	case decode.OpSUBU:
		return addSub(iw, rs, rt, false, false)
	case decode.OpADDI:
		return addSubI(iw, rs, true)
	case decode.OpADDIU:
		return addSubI(iw, rs, false)

	case decode.OpAND:
		return rType(iw, rs&rt)
	case decode.OpOR:
		return rType(iw, rs|rt)
	case decode.OpXOR:
		return rType(iw, rs^rt)
	case decode.OpNOR:
		return rType(iw, ^(rs | rt))
	case decode.OpANDI:
		return iTypeZeroExt(iw, rs&uint64(decode.GetImm16(iw)))
	case decode.OpORI:
		return iTypeZeroExt(iw, rs|uint64(decode.GetImm16(iw)))
	case decode.OpXORI:
		return iTypeZeroExt(iw, rs^uint64(decode.GetImm16(iw)))
	case decode.OpLUI:
		return Result{HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Value: uint64(int64(int32(decode.GetImm16(iw)) << 16))}

	case decode.OpSLT:
		return rTypeBool(iw, int64(rs) < int64(rt))
	case decode.OpSLTU:
		return rTypeBool(iw, rs < rt)
	case decode.OpSLTI:
		return iTypeBool(iw, int64(rs) < int64(signExt16(decode.GetImm16(iw))))
	case decode.OpSLTIU:
		return iTypeBool(iw, rs < signExt16(decode.GetImm16(iw)))

	case decode.OpMULT:
		return mult(iw, rs, rt, true)
	case decode.OpMULTU:
		return mult(iw, rs, rt, false)
	case decode.OpDIV:
		return div(rs, rt, true)
	case decode.OpDIVU:
		return div(rs, rt, false)
	case decode.OpMUL:
		lo := int64(int32(rs)) * int64(int32(rt))
		return Result{HasDest: true, Dest: vrtypes.RegGPR(decode.GetRD(iw)), Value: uint64(int64(int32(lo)))}

	case decode.OpMFHI:
		// The caller passes HI's current value in rs (the RS field of
		// MFHI is always zero and carries no GPR index), so the result
		// is a plain move into RD.
		return rType(iw, rs)
	case decode.OpMFLO:
		return rType(iw, rs)
	case decode.OpMTHI:
		return Result{WriteHI: true, HI: rs}
	case decode.OpMTLO:
		return Result{WriteLO: true, LO: rs}

	case decode.OpMOVZ:
		if rt == 0 {
			return rType(iw, rs)
		}
		return Result{}
	case decode.OpMOVN:
		if rt != 0 {
			return rType(iw, rs)
		}
		return Result{}

	case decode.OpJ, decode.OpJAL:
		target := (pc+4)&0xFFFFFFFFF0000000 | (uint64(decode.GetTarget26(iw)) << 2)
		r := Result{BranchTaken: true, IsBranch: true, BranchPC: target}
		if op.ID == decode.OpJAL {
			r.Link = true
			r.Dest = vrtypes.RegGPR(31)
			r.LinkAddr = pc + 8
		}
		return r
	case decode.OpJR:
		return Result{BranchTaken: true, IsBranch: true, BranchPC: rs}
	case decode.OpJALR:
		dest := decode.GetRD(iw)
		if dest == 0 {
			dest = 31
		}
		return Result{BranchTaken: true, IsBranch: true, BranchPC: rs, Link: true, Dest: vrtypes.RegGPR(dest), LinkAddr: pc + 8}

	case decode.OpBEQ:
		return branch(iw, pc, rs == rt, false)
	case decode.OpBNE:
		return branch(iw, pc, rs != rt, false)
	case decode.OpBLEZ:
		return branch(iw, pc, int64(rs) <= 0, false)
	case decode.OpBGTZ:
		return branch(iw, pc, int64(rs) > 0, false)
	case decode.OpBEQL:
		return branch(iw, pc, rs == rt, true)
	case decode.OpBNEL:
		return branch(iw, pc, rs != rt, true)
	case decode.OpBLEZL:
		return branch(iw, pc, int64(rs) <= 0, true)
	case decode.OpBGTZL:
		return branch(iw, pc, int64(rs) > 0, true)
	case decode.OpBLTZ:
		return branch(iw, pc, int64(rs) < 0, false)
	case decode.OpBGEZ:
		return branch(iw, pc, int64(rs) >= 0, false)
	case decode.OpBLTZL:
		return branch(iw, pc, int64(rs) < 0, true)
	case decode.OpBGEZL:
		return branch(iw, pc, int64(rs) >= 0, true)
	case decode.OpBLTZAL:
		r := branch(iw, pc, int64(rs) < 0, false)
		r.Link, r.Dest, r.LinkAddr = true, vrtypes.RegGPR(31), pc+8
		return r
	case decode.OpBGEZAL:
		r := branch(iw, pc, int64(rs) >= 0, false)
		r.Link, r.Dest, r.LinkAddr = true, vrtypes.RegGPR(31), pc+8
		return r

	case decode.OpLB:
		return load(iw, rs, vrtypes.SizeByte, true)
	case decode.OpLBU:
		return load(iw, rs, vrtypes.SizeByte, false)
	case decode.OpLH:
		return load(iw, rs, vrtypes.SizeHalf, true)
	case decode.OpLHU:
		return load(iw, rs, vrtypes.SizeHalf, false)
	case decode.OpLW:
		return load(iw, rs, vrtypes.SizeWord, true)
	case decode.OpLL:
		return load(iw, rs, vrtypes.SizeWord, true)
	case decode.OpSB:
		return store(iw, rs, rt, vrtypes.SizeByte)
	case decode.OpSH:
		return store(iw, rs, rt, vrtypes.SizeHalf)
	case decode.OpSW:
		return store(iw, rs, rt, vrtypes.SizeWord)
	case decode.OpSC:
		// SC's "did the LL survive" semantics belong to CP0 (LLAddr); the
		// caller is responsible for deciding whether to perform the store
		// and for writing 1/0 back to rt per the architecture.
		return store(iw, rs, rt, vrtypes.SizeWord)
	case decode.OpLWL:
		return loadLeft(iw, rs, rt)
	case decode.OpLWR:
		return loadRight(iw, rs, rt)
	case decode.OpSWL:
		return storeLeft(iw, rs, rt)
	case decode.OpSWR:
		return storeRight(iw, rs, rt)

	case decode.OpSyscall:
		return Result{Exception: &vrtypes.Exception{Code: vrtypes.ExcSys}}
	case decode.OpBreak:
		return Result{Exception: &vrtypes.Exception{Code: vrtypes.ExcBp}}
	case decode.OpSync, decode.OpCACHE, decode.OpPREF:
		return Result{}

	case decode.OpTEQ:
		return trapIf(rs == rt)
	case decode.OpTNE:
		return trapIf(rs != rt)
	case decode.OpTGE:
		return trapIf(int64(rs) >= int64(rt))
	case decode.OpTGEU:
		return trapIf(rs >= rt)
	case decode.OpTLT:
		return trapIf(int64(rs) < int64(rt))
	case decode.OpTLTU:
		return trapIf(rs < rt)
	}

	return Result{Exception: &vrtypes.Exception{Code: vrtypes.ExcRI}}
}

func trapIf(cond bool) Result {
	if cond {
		return Result{Exception: &vrtypes.Exception{Code: vrtypes.ExcTr}}
	}
	return Result{}
}

func shift(iw uint32, rt uint64, right, arith bool) Result {
	sa := decode.GetSA(iw)
	var v uint32
	switch {
	case !right:
		v = uint32(rt) << sa
	case arith:
		v = uint32(int32(uint32(rt)) >> sa)
	default:
		v = uint32(rt) >> sa
	}
	return rType(iw, uint64(int64(int32(v))))
}

func shiftV(iw uint32, rs, rt uint64, right, arith bool) Result {
	sa := uint32(rs) & 0x1F
	var v uint32
	switch {
	case !right:
		v = uint32(rt) << sa
	case arith:
		v = uint32(int32(uint32(rt)) >> sa)
	default:
		v = uint32(rt) >> sa
	}
	return rType(iw, uint64(int64(int32(v))))
}

func addSub(iw uint32, rs, rt uint64, add, checkOverflow bool) Result {
	a, b := int32(rs), int32(rt)
	var sum int32
	if add {
		sum = a + b
	} else {
		sum = a - b
	}
	if checkOverflow {
		var overflowed bool
		if add {
			overflowed = utils.CheckAdditionOverflow(a, b, sum)
		} else {
			overflowed = utils.CheckSubtractionOverflow(a, b, sum)
		}
		if overflowed {
			return Result{Exception: &vrtypes.Exception{Code: vrtypes.ExcOv}}
		}
	}
	return rType(iw, uint64(int64(sum)))
}

func addSubI(iw uint32, rs uint64, checkOverflow bool) Result {
	a := int32(rs)
	b := int32(int16(decode.GetImm16(iw)))
	sum := a + b
	if checkOverflow && utils.CheckAdditionOverflow(a, b, sum) {
		return Result{Exception: &vrtypes.Exception{Code: vrtypes.ExcOv}}
	}
	return Result{HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Value: uint64(int64(sum))}
}

func rType(iw uint32, v uint64) Result {
	return Result{HasDest: true, Dest: vrtypes.RegGPR(decode.GetRD(iw)), Value: v}
}

func rTypeBool(iw uint32, v bool) Result {
	var x uint64
	if v {
		x = 1
	}
	return rType(iw, x)
}

func iTypeZeroExt(iw uint32, v uint64) Result {
	return Result{HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Value: v}
}

func iTypeBool(iw uint32, v bool) Result {
	var x uint64
	if v {
		x = 1
	}
	return Result{HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Value: x}
}

func mult(iw uint32, rs, rt uint64, signed bool) Result {
	var hi, lo uint64
	if signed {
		product := int64(int32(rs)) * int64(int32(rt))
		lo = uint64(int64(int32(product)))
		hi = uint64(int64(int32(product >> 32)))
	} else {
		product := uint64(uint32(rs)) * uint64(uint32(rt))
		lo = uint64(int64(int32(uint32(product))))
		hi = uint64(int64(int32(uint32(product >> 32))))
	}
	return Result{WriteHI: true, HI: hi, WriteLO: true, LO: lo, StallCycles: multStallCycles}
}

// MULT/MULTU and DIV/DIVU hold HI/LO unreadable for a fixed number of
// cycles beyond the one the EX stage normally takes, regardless of the
// operand values (the VR4300's multiply/divide unit is a fixed-latency
// pipeline, not a data-dependent one).
const (
	multStallCycles = 5
	divStallCycles  = 37
)

func div(rs, rt uint64, signed bool) Result {
	if rt == 0 {
		// Architecturally undefined; the reference model's chosen values
		// (both LO and HI zero) are what the co-execution harness compares
		// against.
		return Result{WriteHI: true, HI: 0, WriteLO: true, LO: 0, StallCycles: divStallCycles}
	}
	if signed {
		a, b := int32(rs), int32(rt)
		return Result{WriteLO: true, LO: uint64(int64(a / b)), WriteHI: true, HI: uint64(int64(a % b)), StallCycles: divStallCycles}
	}
	a, b := uint32(rs), uint32(rt)
	return Result{WriteLO: true, LO: uint64(int64(int32(a / b))), WriteHI: true, HI: uint64(int64(int32(a % b))), StallCycles: divStallCycles}
}

func branch(iw uint32, pc uint64, taken bool, likely bool) Result {
	offset := signExt16(decode.GetImm16(iw)) << 2
	target := pc + offset + 4
	r := Result{IsBranch: true}
	if taken {
		r.BranchTaken = true
		r.BranchPC = target
	} else if likely {
		r.NullifyDelaySlot = true
	}
	return r
}

func load(iw uint32, rs uint64, size vrtypes.AccessSize, signed bool) Result {
	vaddr := rs + signExt16(decode.GetImm16(iw))
	return Result{
		HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)),
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Access: size, Type: vrtypes.ReqRead, Valid: true,
			// Data carries the "sign-extend on completion" flag (1 or 0);
			// the pipeline's doEX and the interpreter's doMemRequest test
			// it for nonzero.
			Data: boolToU64(signed),
		},
	}
}

func store(iw uint32, rs, rt uint64, size vrtypes.AccessSize) Result {
	vaddr := rs + signExt16(decode.GetImm16(iw))
	var dqm uint32
	switch size {
	case vrtypes.SizeByte:
		dqm = 0xFF
	case vrtypes.SizeHalf:
		dqm = 0xFFFF
	default:
		dqm = 0xFFFFFFFF
	}
	return Result{
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Data: rt, WDQM: dqm,
			Access: size, Type: vrtypes.ReqWrite, Valid: true,
		},
	}
}

// loadLeft and loadRight implement LWL/LWR: an unaligned load that splices
// 1-4 bytes of the addressed word into rt, preserving rt's other bytes.
// The VR4300 is big-endian, so LWL fills from the addressed byte through
// the end of the word into rt's high-order bytes, and LWR fills from the
// start of the word through the addressed byte into rt's low-order bytes.
// rt carries forward as Value so the DC stage has the preserved bits to
// merge against once the word arrives.
func loadLeft(iw uint32, rs, rt uint64) Result {
	vaddr := rs + signExt16(decode.GetImm16(iw))
	shift := uint(8 * (vaddr & 3))
	mask := uint32(0xFFFFFFFF) << shift
	return Result{
		HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Value: rt,
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Access: vrtypes.SizeWord, Type: vrtypes.ReqRead, Valid: true,
			MergeMask: mask, MergeShift: int(shift),
		},
	}
}

func loadRight(iw uint32, rs, rt uint64) Result {
	vaddr := rs + signExt16(decode.GetImm16(iw))
	shift := uint(8 * (3 - (vaddr & 3)))
	mask := uint32(0xFFFFFFFF) >> shift
	return Result{
		HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Value: rt,
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Access: vrtypes.SizeWord, Type: vrtypes.ReqRead, Valid: true,
			MergeMask: mask, MergeShift: -int(shift),
		},
	}
}

// storeLeft and storeRight are the store-side mirror of loadLeft/loadRight.
// The shift and mask are folded into Data/WDQM up front (Access forced to
// SizeWord, a no-op shift) so doStore/doMemRequest need no special case
// for these two ops at all.
func storeLeft(iw uint32, rs, rt uint64) Result {
	vaddr := rs + signExt16(decode.GetImm16(iw))
	shift := uint(8 * (vaddr & 3))
	mask := uint32(0xFFFFFFFF) >> shift
	data := uint32(rt) >> shift
	return Result{
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Data: uint64(data & mask), WDQM: mask,
			Access: vrtypes.SizeWord, Type: vrtypes.ReqWrite, Valid: true,
		},
	}
}

func storeRight(iw uint32, rs, rt uint64) Result {
	vaddr := rs + signExt16(decode.GetImm16(iw))
	shift := uint(8 * (3 - (vaddr & 3)))
	mask := uint32(0xFFFFFFFF) << shift
	data := uint32(rt) << shift
	return Result{
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Data: uint64(data & mask), WDQM: mask,
			Access: vrtypes.SizeWord, Type: vrtypes.ReqWrite, Valid: true,
		},
	}
}

func boolToU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
