package interp

import (
	"testing"

	"vr4300vm/internal/bus"
	"vr4300vm/internal/cp0"
	"vr4300vm/internal/tlb"
	"vr4300vm/internal/vrtypes"
)

func newTestInterp() (*Interp, *bus.Controller) {
	b := bus.New(0x1000)
	var t tlb.TLB
	c0 := cp0.New(32)
	return New(b, &t, c0), b
}

func TestDoMemRequestAppliesPostShiftForFR0Lwc1(t *testing.T) {
	p, b := newTestInterp()
	b.WriteWord(0x100, 0x12345678, 0xFFFFFFFF)

	dest := vrtypes.RegCP1(0)
	p.Regs.Set(dest, 0x00000000DEADBEEF)
	req := vrtypes.MemRequest{
		VAddr: 0xFFFFFFFFA0000100, Access: vrtypes.SizeWord, Type: vrtypes.ReqRead,
		Valid: true, PostShift: 32,
	}
	if exc := p.doMemRequest(dest, true, req); exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	want := uint64(0x12345678DEADBEEF)
	if got := p.Regs.Get(dest); got != want {
		t.Fatalf("doMemRequest PostShift merge = %#x, want %#x", got, want)
	}
}

func TestDoMemRequestLwlMergesHighBytesPreservingLow(t *testing.T) {
	p, b := newTestInterp()
	b.WriteWord(0x300, 0xAABBCCDD, 0xFFFFFFFF)

	dest := vrtypes.RegGPR(3)
	p.Regs.Set(dest, 0x44)
	req := vrtypes.MemRequest{
		VAddr: 0xFFFFFFFFA0000301, Access: vrtypes.SizeWord, Type: vrtypes.ReqRead, Valid: true,
		MergeMask: 0xFFFFFF00, MergeShift: 8,
	}
	if exc := p.doMemRequest(dest, true, req); exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	want := uint64(0xBBCCDD44)
	if got := p.Regs.Get(dest); got != want {
		t.Fatalf("LWL merge = %#x, want %#x", got, want)
	}
}

func TestDoMemRequestLwrMergesLowBytesPreservingHigh(t *testing.T) {
	p, b := newTestInterp()
	b.WriteWord(0x400, 0xAABBCCDD, 0xFFFFFFFF)

	dest := vrtypes.RegGPR(4)
	p.Regs.Set(dest, 0x11223344)
	req := vrtypes.MemRequest{
		VAddr: 0xFFFFFFFFA0000400, Access: vrtypes.SizeWord, Type: vrtypes.ReqRead, Valid: true,
		MergeMask: 0xFF, MergeShift: -24,
	}
	if exc := p.doMemRequest(dest, true, req); exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	want := uint64(0x112233AA)
	if got := p.Regs.Get(dest); got != want {
		t.Fatalf("LWR merge = %#x, want %#x", got, want)
	}
}

func TestDoMemRequestSwlWritesOnlyMaskedLanes(t *testing.T) {
	p, b := newTestInterp()
	b.WriteWord(0x500, 0x11223344, 0xFFFFFFFF)

	req := vrtypes.MemRequest{
		VAddr: 0xFFFFFFFFA0000501, Data: 0x00AABBCC, WDQM: 0x00FFFFFF,
		Access: vrtypes.SizeWord, Type: vrtypes.ReqWrite, Valid: true,
	}
	if exc := p.doMemRequest(0, false, req); exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	if got := b.ReadWord(0x500); got != 0x11AABBCC {
		t.Fatalf("SWL store = %#x, want 0x11AABBCC", got)
	}
}
