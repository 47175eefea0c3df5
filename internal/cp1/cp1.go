// Package cp1 translates decoded FPU instructions into pipeline effects:
// an EXDC-latch destination/result pair, an optional pending memory
// request, and a multi-cycle-interlock stall count, grounded on
// original_source/vr4300/cp1.c and built on the bit-exact primitives in
// package fpu.
package cp1

import (
	"vr4300vm/internal/decode"
	"vr4300vm/internal/fpu"
	"vr4300vm/internal/vrtypes"
)

// Fmt mirrors the VR4300's GET_FMT() values used in COP1 instructions.
type Fmt uint32

const (
	FmtS Fmt = 16
	FmtD Fmt = 17
	FmtW Fmt = 20
	FmtL Fmt = 21
)

// Result is the pipeline effect of one FPU instruction: a register write
// (by flat vrtypes index), and/or a pending bus request for LWC1/SWC1/
// LDC1/SDC1, and/or a branch redirect for BC1*.
type Result struct {
	HasDest bool
	Dest    int
	Result  uint64

	HasRequest bool
	Request    vrtypes.MemRequest

	StallCycles int // MCI cycles this op holds the pipeline beyond the normal one

	BranchTaken      bool
	BranchPC         uint64
	NullifyDelaySlot bool // likely-branch-not-taken: kill the delay slot instead of executing it

	Invalid bool // reserved instruction (bad fmt, etc)
}

// fcr31CondBit is the FCR31 condition flag the architecture calls "C",
// consulted by BC1* and written by every C.cond.fmt compare.
const fcr31CondBit = 1 << 23

// GPROperand picks which decoded GPR value the caller should feed into
// Execute's rt parameter: LWC1/LDC1/SWC1/SDC1 address a base register in
// the instruction's RS field, while MTC1/CTC1 (and friends) read a GPR
// source out of the RT field, so the caller can't use one bypass result
// for both without asking which instruction it has.
func GPROperand(id decode.OpID, rs, rt uint64) uint64 {
	switch id {
	case decode.OpLWC1, decode.OpLDC1, decode.OpSWC1, decode.OpSDC1:
		return rs
	}
	return rt
}

// Execute decodes and performs one COP1 instruction. fs/ft are the raw
// 64-bit bit patterns of the FS/FT operand registers (already read by the
// caller; the pipeline reads them in its EX stage); rt is the integer GPR operand for MTC1/DMTC1/
// CTC1; fcr31 is the live FCR31 value, already resolved against any
// DCWB-latch forwarding the caller detected (original cp1.c's "XXX: FCR
// writes aren't ready on the next cycle" bypass is the caller's job,
// since it needs latch state this package doesn't see); status is the
// live CP0 Status register, for the FR-bit addressing mode.
func Execute(op decode.Opcode, iw uint32, pc uint64, fs, ft uint64, rt uint64, fcr31 uint64, status uint64) Result {
	switch op.ID {
	case decode.OpFPUAdd, decode.OpFPUSub, decode.OpFPUMul, decode.OpFPUDiv:
		return binaryArith(op.ID, iw, fs, ft)
	case decode.OpFPUSqrt, decode.OpFPUAbs, decode.OpFPUNeg, decode.OpFPUMov:
		return unaryArith(op.ID, iw, fs)
	case decode.OpFPUCompare:
		return compare(iw, fs, ft, fcr31)
	case decode.OpFPURound, decode.OpFPUTrunc, decode.OpFPUCeil, decode.OpFPUFloor:
		return roundLike(op.ID, iw, fs)
	case decode.OpFPUCvtS:
		return cvtS(iw, fs)
	case decode.OpFPUCvtD:
		return cvtD(iw, fs)
	case decode.OpFPUCvtW:
		return cvtW(iw, fs)
	case decode.OpFPUCvtL:
		return cvtL(iw, fs)
	case decode.OpMFC1:
		return mfc1(iw, fs, status)
	case decode.OpDMFC1:
		return Result{HasDest: true, Dest: vrtypes.RegGPR(decode.GetRT(iw)), Result: fs}
	case decode.OpCFC1:
		return cfc1(iw, fcr31)
	case decode.OpMTC1:
		return mtc1(iw, fs, rt, status)
	case decode.OpDMTC1:
		return Result{HasDest: true, Dest: vrtypes.RegCP1(decode.GetFS(iw)), Result: rt}
	case decode.OpCTC1:
		return ctc1(iw, rt)
	case decode.OpBC1F, decode.OpBC1T, decode.OpBC1FL, decode.OpBC1TL:
		return branch(op.ID, iw, pc, fcr31)
	case decode.OpLWC1:
		return lwc1(iw, fs, rt, status)
	case decode.OpLDC1:
		return ldc1(iw, rt)
	case decode.OpSWC1:
		return swc1(iw, ft, rt, status)
	case decode.OpSDC1:
		return sdc1(iw, ft, rt)
	}
	return Result{Invalid: true}
}

func binaryArith(id decode.OpID, iw uint32, fs, ft uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFD(iw))
	var result uint64
	var stall int

	switch Fmt(decode.GetFmt(iw)) {
	case FmtS:
		fs32, ft32 := uint32(fs), uint32(ft)
		var fd32 uint32
		switch id {
		case decode.OpFPUAdd:
			fpu.AddF32(&fs32, &ft32, &fd32)
			stall = 3
		case decode.OpFPUSub:
			fpu.SubF32(&fs32, &ft32, &fd32)
			stall = 3
		case decode.OpFPUMul:
			fpu.MulF32(&fs32, &ft32, &fd32)
			stall = 5
		case decode.OpFPUDiv:
			fpu.DivF32(&fs32, &ft32, &fd32)
			stall = 29
		}
		result = uint64(fd32)
	case FmtD:
		switch id {
		case decode.OpFPUAdd:
			fpu.AddF64(&fs, &ft, &result)
			stall = 3
		case decode.OpFPUSub:
			fpu.SubF64(&fs, &ft, &result)
			stall = 3
		case decode.OpFPUMul:
			fpu.MulF64(&fs, &ft, &result)
			stall = 8
		case decode.OpFPUDiv:
			fpu.DivF64(&fs, &ft, &result)
			stall = 58
		}
	default:
		return Result{Invalid: true}
	}

	return Result{HasDest: true, Dest: dest, Result: result, StallCycles: stall}
}

func unaryArith(id decode.OpID, iw uint32, fs uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFD(iw))
	var result uint64
	stall := 0

	switch Fmt(decode.GetFmt(iw)) {
	case FmtS:
		fs32 := uint32(fs)
		var fd32 uint32
		switch id {
		case decode.OpFPUSqrt:
			fpu.SqrtF32(&fs32, &fd32)
			stall = 29
		case decode.OpFPUAbs:
			fpu.AbsF32(&fs32, &fd32)
			stall = 3
		case decode.OpFPUNeg:
			fpu.NegF32(&fs32, &fd32)
			stall = 3
		case decode.OpFPUMov:
			fd32 = fs32
		}
		result = uint64(fd32)
	case FmtD:
		switch id {
		case decode.OpFPUSqrt:
			fpu.SqrtF64(&fs, &result)
			stall = 58
		case decode.OpFPUAbs:
			fpu.AbsF64(&fs, &result)
			stall = 3
		case decode.OpFPUNeg:
			fpu.NegF64(&fs, &result)
			stall = 3
		case decode.OpFPUMov:
			result = fs
		}
	default:
		return Result{Invalid: true}
	}

	return Result{HasDest: true, Dest: dest, Result: result, StallCycles: stall}
}

func compare(iw uint32, fs, ft uint64, fcr31 uint64) Result {
	funct := decode.GetFunct(iw)
	pred := fpu.Predicate(funct & 0x7)

	var flag bool
	switch Fmt(decode.GetFmt(iw)) {
	case FmtS:
		fs32, ft32 := uint32(fs), uint32(ft)
		flag = fpu.CompareF32(&fs32, &ft32, pred)
	case FmtD:
		flag = fpu.CompareF64(&fs, &ft, pred)
	default:
		return Result{Invalid: true}
	}

	result := fcr31 &^ uint64(fcr31CondBit)
	if flag {
		result |= fcr31CondBit
	}
	return Result{HasDest: true, Dest: vrtypes.RegFCR31, Result: result}
}

// roundLike implements ROUND/TRUNC/CEIL/FLOOR .l/.w.fmt: the source is
// always S or D, the destination width (32- or 64-bit integer) is chosen
// by the funct nibble per decode.RoundTruncTargetIsWord.
func roundLike(id decode.OpID, iw uint32, fs uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFD(iw))
	toWord := decode.RoundTruncTargetIsWord(decode.GetFunct(iw))

	var f64bits uint64
	switch Fmt(decode.GetFmt(iw)) {
	case FmtS:
		fs32 := uint32(fs)
		fpu.CvtF32ToF64(&fs32, &f64bits)
	case FmtD:
		f64bits = fs
	default:
		return Result{Invalid: true}
	}

	var rounded uint64
	switch id {
	case decode.OpFPURound:
		fpu.WithRounding(fpu.RoundNearest, func() { fpu.RoundF64(&f64bits, &rounded) })
	case decode.OpFPUTrunc:
		fpu.TruncF64(&f64bits, &rounded)
	case decode.OpFPUCeil:
		fpu.CeilF64(&f64bits, &rounded)
	case decode.OpFPUFloor:
		fpu.FloorF64(&f64bits, &rounded)
	}

	var result uint64
	if toWord {
		var w uint32
		fpu.CvtF64ToI32(&rounded, &w)
		result = uint64(w)
	} else {
		fpu.CvtF64ToI64(&rounded, &result)
	}
	return Result{HasDest: true, Dest: dest, Result: result, StallCycles: 5}
}

func cvtS(iw uint32, fs uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFD(iw))
	var result uint32
	stall := 5

	switch Fmt(decode.GetFmt(iw)) {
	case FmtD:
		fpu.CvtF64ToF32(&fs, &result)
		stall = 2 // CVT.S from D is the one conversion cheaper than the default 5
	case FmtW:
		fs32 := uint32(fs)
		fpu.CvtI32ToF32(&fs32, &result)
	case FmtL:
		fpu.CvtI64ToF32(&fs, &result)
	default:
		return Result{Invalid: true}
	}
	return Result{HasDest: true, Dest: dest, Result: uint64(result), StallCycles: stall}
}

func cvtD(iw uint32, fs uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFD(iw))
	var result uint64
	stall := 5

	switch Fmt(decode.GetFmt(iw)) {
	case FmtS:
		fs32 := uint32(fs)
		fpu.CvtF32ToF64(&fs32, &result)
	case FmtW:
		fs32 := uint32(fs)
		fpu.CvtI32ToF64(&fs32, &result)
	case FmtL:
		fpu.CvtI64ToF64(&fs, &result)
	default:
		return Result{Invalid: true}
	}
	return Result{HasDest: true, Dest: dest, Result: result, StallCycles: stall}
}

func cvtW(iw uint32, fs uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFD(iw))
	var result uint32

	switch Fmt(decode.GetFmt(iw)) {
	case FmtS:
		fs32 := uint32(fs)
		fpu.CvtF32ToI32(&fs32, &result)
	case FmtD:
		fpu.CvtF64ToI32(&fs, &result)
	default:
		return Result{Invalid: true}
	}
	return Result{HasDest: true, Dest: dest, Result: uint64(result), StallCycles: 5}
}

func cvtL(iw uint32, fs uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFD(iw))
	var result uint64

	switch Fmt(decode.GetFmt(iw)) {
	case FmtS:
		fs32 := uint32(fs)
		fpu.CvtF32ToI64(&fs32, &result)
	case FmtD:
		fpu.CvtF64ToI64(&fs, &result)
	default:
		return Result{Invalid: true}
	}
	return Result{HasDest: true, Dest: dest, Result: result, StallCycles: 5}
}

// statusFR reports whether Status.FR (64-bit FPU register mode) is set;
// when clear, MFC1/MTC1/LWC1/SWC1 address a pair of 32-bit halves of an
// even-numbered 64-bit register instead of the whole thing.
func statusFR(status uint64) bool { return status&(1<<26) != 0 }

func mfc1(iw uint32, fs uint64, status uint64) Result {
	dest := vrtypes.RegGPR(decode.GetRT(iw))
	var word uint32
	if statusFR(status) || decode.GetFS(iw)&1 == 0 {
		word = uint32(fs)
	} else {
		word = uint32(fs >> 32)
	}
	return Result{HasDest: true, Dest: dest, Result: uint64(int64(int32(word)))}
}

func cfc1(iw uint32, fcr31 uint64) Result {
	dest := vrtypes.RegGPR(decode.GetRT(iw))
	src := decode.GetRD(iw)
	var result uint32
	switch src {
	case 0:
		result = 0 // FCR0 implementation/revision; not modelled beyond zero
	case 31:
		result = uint32(fcr31)
	}
	return Result{HasDest: true, Dest: dest, Result: uint64(int64(int32(result)))}
}

func mtc1(iw uint32, fs, rt uint64, status uint64) Result {
	fsReg := decode.GetFS(iw)
	word := uint32(rt)

	if statusFR(status) {
		return Result{HasDest: true, Dest: vrtypes.RegCP1(fsReg), Result: uint64(int64(int32(word)))}
	}

	base := fsReg &^ 1
	var result uint64
	if fsReg&1 != 0 {
		result = (fs & 0x00000000FFFFFFFF) | (rt << 32)
	} else {
		result = (fs &^ 0xFFFFFFFF) | uint64(word)
	}
	return Result{HasDest: true, Dest: vrtypes.RegCP1(base), Result: result}
}

func ctc1(iw uint32, rt uint64) Result {
	dest := decode.GetRD(iw)
	if dest != 31 {
		return Result{Invalid: true}
	}
	return Result{HasDest: true, Dest: vrtypes.RegFCR31, Result: rt}
}

func branch(id decode.OpID, iw uint32, pc uint64, fcr31 uint64) Result {
	cond := fcr31&fcr31CondBit != 0
	offset := uint64(int64(int16(decode.GetImm16(iw)))) << 2
	takenPC := pc + offset + 4

	switch id {
	case decode.OpBC1F:
		if !cond {
			return Result{BranchTaken: true, BranchPC: takenPC}
		}
	case decode.OpBC1T:
		if cond {
			return Result{BranchTaken: true, BranchPC: takenPC}
		}
	case decode.OpBC1FL:
		if !cond {
			return Result{BranchTaken: true, BranchPC: takenPC}
		}
		return Result{NullifyDelaySlot: true}
	case decode.OpBC1TL:
		if cond {
			return Result{BranchTaken: true, BranchPC: takenPC}
		}
		return Result{NullifyDelaySlot: true}
	}
	return Result{}
}

func lwc1(iw uint32, fs, rs uint64, status uint64) Result {
	dest := decode.GetFT(iw)
	vaddr := rs + uint64(int64(int16(decode.GetImm16(iw))))

	var result uint64
	var postshift uint
	if !statusFR(status) {
		if dest&1 != 0 {
			result = fs & 0x00000000FFFFFFFF
		} else {
			result = fs & 0xFFFFFFFF00000000
		}
		postshift = uint(dest&1) << 5
		dest &^= 1
	}

	return Result{
		HasDest: true, Dest: vrtypes.RegCP1(dest), Result: result,
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, PostShift: postshift,
			Access: vrtypes.SizeWord, Type: vrtypes.ReqRead, Valid: true,
		},
	}
}

func ldc1(iw uint32, rs uint64) Result {
	dest := vrtypes.RegCP1(decode.GetFT(iw))
	vaddr := rs + uint64(int64(int16(decode.GetImm16(iw))))
	return Result{
		HasDest: true, Dest: dest,
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Access: vrtypes.SizeDword, Type: vrtypes.ReqRead, Valid: true,
		},
	}
}

func swc1(iw uint32, ft, rs uint64, status uint64) Result {
	vaddr := rs + uint64(int64(int16(decode.GetImm16(iw))))
	if !statusFR(status) {
		ft >>= uint(decode.GetFT(iw)&1) << 5
	}
	return Result{
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Data: ft, WDQM: 0xFFFFFFFF,
			Access: vrtypes.SizeWord, Type: vrtypes.ReqWrite, Valid: true,
		},
	}
}

func sdc1(iw uint32, ft, rs uint64) Result {
	vaddr := rs + uint64(int64(int16(decode.GetImm16(iw))))
	return Result{
		HasRequest: true,
		Request: vrtypes.MemRequest{
			VAddr: vaddr, Data: ft, WDQM: 0xFFFFFFFF,
			Access: vrtypes.SizeDword, Type: vrtypes.ReqWrite, Valid: true,
		},
	}
}
