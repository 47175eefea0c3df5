package alu

import (
	"math"
	"testing"

	"vr4300vm/internal/decode"
	"vr4300vm/internal/vrtypes"
)

func rTypeWord(funct, rs, rt, rd, sa uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | sa<<6 | funct
}

func iTypeWord(op, rs, rt, imm uint32) uint32 {
	return op<<26 | rs<<21 | rt<<16 | (imm & 0xFFFF)
}

func TestAddOverflow(t *testing.T) {
	iw := rTypeWord(0x20, 1, 2, 3, 0) // ADD $3, $1, $2
	op := decode.Decode(iw)
	rs := uint64(uint32(math.MaxInt32))
	rt := uint64(1)
	res := Execute(op, iw, 0, rs, rt)
	if res.Exception == nil || res.Exception.Code != vrtypes.ExcOv {
		t.Fatalf("expected ExcOv on signed ADD overflow, got %+v", res)
	}
	if res.HasDest {
		t.Fatalf("ADD on overflow must not write a destination, got %+v", res)
	}
}

func TestAddNoOverflow(t *testing.T) {
	iw := rTypeWord(0x20, 1, 2, 3, 0)
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 10, 20)
	if res.Exception != nil {
		t.Fatalf("unexpected exception: %+v", res.Exception)
	}
	if !res.HasDest || res.Dest != vrtypes.RegGPR(3) || res.Value != 30 {
		t.Fatalf("ADD result = %+v, want dest=$3 value=30", res)
	}
}

func TestAddUNoOverflowOnWrap(t *testing.T) {
	iw := rTypeWord(0x21, 1, 2, 3, 0) // ADDU
	op := decode.Decode(iw)
	rs := uint64(uint32(math.MaxInt32))
	res := Execute(op, iw, 0, rs, 1)
	if res.Exception != nil {
		t.Fatalf("ADDU must never raise overflow, got %+v", res.Exception)
	}
}

func TestAddiOverflowDoesNotWriteRT(t *testing.T) {
	iw := iTypeWord(0x08, 1, 2, 1) // ADDI $2, $1, 1
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, uint64(uint32(math.MaxInt32)), 0)
	if res.Exception == nil || res.Exception.Code != vrtypes.ExcOv {
		t.Fatalf("expected ExcOv, got %+v", res)
	}
	if res.HasDest {
		t.Fatalf("ADDI on overflow must not write RT, got %+v", res)
	}
}

func TestSubOverflow(t *testing.T) {
	iw := rTypeWord(0x22, 1, 2, 3, 0) // SUB
	op := decode.Decode(iw)
	minInt32 := int32(math.MinInt32)
	res := Execute(op, iw, 0, uint64(uint32(minInt32)), 1)
	if res.Exception == nil || res.Exception.Code != vrtypes.ExcOv {
		t.Fatalf("expected ExcOv on SUB underflow, got %+v", res)
	}
}

func TestMultSignedVsUnsigned(t *testing.T) {
	iw := rTypeWord(0x18, 1, 2, 0, 0) // MULT
	op := decode.Decode(iw)
	negOne := int32(-1)
	res := Execute(op, iw, 0, uint64(uint32(negOne)), 1)
	if int32(res.LO) != -1 || int32(res.HI) != -1 {
		t.Fatalf("signed MULT -1*1 = {hi=%#x,lo=%#x}, want {-1,-1}", res.HI, res.LO)
	}

	iwu := rTypeWord(0x19, 1, 2, 0, 0) // MULTU
	opu := decode.Decode(iwu)
	resu := Execute(opu, iwu, 0, uint64(uint32(negOne)), 1)
	if resu.HI == res.HI {
		t.Fatalf("MULTU of the same bit pattern must differ from signed MULT's HI, both got %#x", resu.HI)
	}
}

func TestDivByZeroIsComparisonStable(t *testing.T) {
	iw := rTypeWord(0x1A, 1, 2, 0, 0) // DIV
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 10, 0)
	if res.HI != 0 || res.LO != 0 {
		t.Fatalf("DIV by zero must clear HI and LO, got hi=%#x lo=%#x", res.HI, res.LO)
	}
}

func TestDivNormal(t *testing.T) {
	iw := rTypeWord(0x1A, 1, 2, 0, 0)
	op := decode.Decode(iw)
	negSeven := int64(-7)
	res := Execute(op, iw, 0, uint64(negSeven), uint64(int64(2)))
	if int32(res.LO) != -3 || int32(res.HI) != -1 {
		t.Fatalf("-7/2 = {lo=%d,hi=%d}, want {-3,-1}", int32(res.LO), int32(res.HI))
	}
}

func TestMultAndDivReportStallCycles(t *testing.T) {
	iw := rTypeWord(0x18, 1, 2, 0, 0) // MULT
	if res := Execute(decode.Decode(iw), iw, 0, 2, 3); res.StallCycles != multStallCycles {
		t.Fatalf("MULT StallCycles = %d, want %d", res.StallCycles, multStallCycles)
	}

	iwu := rTypeWord(0x19, 1, 2, 0, 0) // MULTU
	if res := Execute(decode.Decode(iwu), iwu, 0, 2, 3); res.StallCycles != multStallCycles {
		t.Fatalf("MULTU StallCycles = %d, want %d", res.StallCycles, multStallCycles)
	}

	iwd := rTypeWord(0x1A, 1, 2, 0, 0) // DIV
	if res := Execute(decode.Decode(iwd), iwd, 0, 10, 2); res.StallCycles != divStallCycles {
		t.Fatalf("DIV StallCycles = %d, want %d", res.StallCycles, divStallCycles)
	}
	if res := Execute(decode.Decode(iwd), iwd, 0, 10, 0); res.StallCycles != divStallCycles {
		t.Fatalf("DIV-by-zero StallCycles = %d, want %d (the unit's latency is fixed regardless of operands)", res.StallCycles, divStallCycles)
	}

	iwdu := rTypeWord(0x1B, 1, 2, 0, 0) // DIVU
	if res := Execute(decode.Decode(iwdu), iwdu, 0, 10, 2); res.StallCycles != divStallCycles {
		t.Fatalf("DIVU StallCycles = %d, want %d", res.StallCycles, divStallCycles)
	}
}

func TestMFHIMFLOAreMovesFromCallerSuppliedValue(t *testing.T) {
	iw := rTypeWord(0x10, 0, 0, 5, 0) // MFHI $5
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 0xDEADBEEF, 0)
	if !res.HasDest || res.Dest != vrtypes.RegGPR(5) || res.Value != 0xDEADBEEF {
		t.Fatalf("MFHI result = %+v, want a move of the supplied value into $5", res)
	}
}

func TestSLT(t *testing.T) {
	iw := rTypeWord(0x2A, 1, 2, 3, 0) // SLT
	op := decode.Decode(iw)
	negOne := int64(-1)
	res := Execute(op, iw, 0, uint64(negOne), 1)
	if res.Value != 1 {
		t.Fatalf("SLT(-1, 1) = %d, want 1", res.Value)
	}
	resu := Execute(decode.Decode(rTypeWord(0x2B, 1, 2, 3, 0)), rTypeWord(0x2B, 1, 2, 3, 0), 0, uint64(negOne), 1)
	if resu.Value != 0 {
		t.Fatalf("SLTU(-1 as unsigned, 1) = %d, want 0 (huge unsigned value is not < 1)", resu.Value)
	}
}

func TestBranchLikelyNullifiesWhenNotTaken(t *testing.T) {
	iw := iTypeWord(0x14, 1, 2, 4) // BEQL
	op := decode.Decode(iw)
	res := Execute(op, iw, 0x1000, 1, 2) // rs != rt, not taken
	if !res.IsBranch || res.BranchTaken {
		t.Fatalf("BEQL not-taken result = %+v", res)
	}
	if !res.NullifyDelaySlot {
		t.Fatalf("BEQL not-taken must nullify its delay slot")
	}
}

func TestBranchTakenTarget(t *testing.T) {
	iw := iTypeWord(0x04, 1, 2, 4) // BEQ offset=4
	op := decode.Decode(iw)
	res := Execute(op, iw, 0x1000, 5, 5)
	if !res.BranchTaken {
		t.Fatalf("BEQ with equal operands must be taken")
	}
	want := uint64(0x1000 + 4 + (4 << 2))
	if res.BranchPC != want {
		t.Fatalf("BEQ target = %#x, want %#x", res.BranchPC, want)
	}
}

func TestLoadStoreRequestShape(t *testing.T) {
	iw := iTypeWord(0x23, 1, 2, 8) // LW $2, 8($1)
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 0x1000, 0)
	if !res.HasRequest || res.Request.VAddr != 0x1008 || res.Request.Type != vrtypes.ReqRead {
		t.Fatalf("LW request = %+v", res.Request)
	}

	iwS := iTypeWord(0x2B, 1, 2, 8) // SW $2, 8($1)
	opS := decode.Decode(iwS)
	resS := Execute(opS, iwS, 0, 0x1000, 0xAABBCCDD)
	if !resS.HasRequest || resS.Request.VAddr != 0x1008 || resS.Request.Type != vrtypes.ReqWrite || resS.Request.WDQM != 0xFFFFFFFF {
		t.Fatalf("SW request = %+v", resS.Request)
	}
}

func TestLWLRequestShape(t *testing.T) {
	iw := iTypeWord(0x22, 1, 2, 1) // LWL $2, 1($1)
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 0x1000, 0x1122334455667744)
	if res.Exception != nil {
		t.Fatalf("LWL must not raise an exception, got %+v", res.Exception)
	}
	if !res.HasDest || res.Dest != vrtypes.RegGPR(2) || res.Value != 0x1122334455667744 {
		t.Fatalf("LWL must carry rt's old value forward as the preserved-bits Value, got %+v", res)
	}
	if !res.HasRequest || res.Request.VAddr != 0x1001 || res.Request.Access != vrtypes.SizeWord {
		t.Fatalf("LWL request = %+v", res.Request)
	}
	if res.Request.MergeMask != 0xFFFFFF00 || res.Request.MergeShift != 8 {
		t.Fatalf("LWL at byte offset 1 must shift left 8 with mask 0xFFFFFF00, got mask=%#x shift=%d", res.Request.MergeMask, res.Request.MergeShift)
	}
}

func TestLWRRequestShape(t *testing.T) {
	iw := iTypeWord(0x26, 1, 2, 0) // LWR $2, 0($1)
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 0x1000, 0)
	if res.Exception != nil {
		t.Fatalf("LWR must not raise an exception, got %+v", res.Exception)
	}
	if res.Request.MergeMask != 0xFF || res.Request.MergeShift != -24 {
		t.Fatalf("LWR at byte offset 0 must shift right 24 with mask 0xFF, got mask=%#x shift=%d", res.Request.MergeMask, res.Request.MergeShift)
	}
}

func TestSWLRequestShape(t *testing.T) {
	iw := iTypeWord(0x2A, 1, 2, 1) // SWL $2, 1($1)
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 0x1000, 0xAABBCCDD)
	if res.Exception != nil {
		t.Fatalf("SWL must not raise an exception, got %+v", res.Exception)
	}
	if !res.HasRequest || res.Request.Type != vrtypes.ReqWrite || res.Request.Access != vrtypes.SizeWord {
		t.Fatalf("SWL request = %+v", res.Request)
	}
	if res.Request.WDQM != 0x00FFFFFF || res.Request.Data != 0x00AABBCC {
		t.Fatalf("SWL at byte offset 1 must write mask 0x00FFFFFF data 0x00AABBCC, got %+v", res.Request)
	}
}

func TestSWRRequestShape(t *testing.T) {
	iw := iTypeWord(0x2E, 1, 2, 0) // SWR $2, 0($1)
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 0x1000, 0xAABBCCDD)
	if res.Exception != nil {
		t.Fatalf("SWR must not raise an exception, got %+v", res.Exception)
	}
	if res.Request.WDQM != 0xFF000000 || res.Request.Data != 0xDD000000 {
		t.Fatalf("SWR at byte offset 0 must write mask 0xFF000000 data 0xDD000000, got %+v", res.Request)
	}
}

func TestReservedInstructionRaisesRI(t *testing.T) {
	iw := uint32(0x3F << 26)
	op := decode.Decode(iw)
	res := Execute(op, iw, 0, 0, 0)
	if res.Exception == nil || res.Exception.Code != vrtypes.ExcRI {
		t.Fatalf("expected ExcRI for a reserved opcode, got %+v", res)
	}
}
