package tlb

import (
	"testing"

	"vr4300vm/internal/vrtypes"
)

func TestTranslateKSeg0StripsHighBits(t *testing.T) {
	var tl TLB
	paddr, exc := tl.Translate(0xFFFFFFFF80001234, 0, vrtypes.AccessFetch)
	if exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	if paddr != 0x00001234 {
		t.Fatalf("paddr = %#x, want 0x1234", paddr)
	}
}

func TestTranslateKSeg1StripsHighBits(t *testing.T) {
	var tl TLB
	paddr, exc := tl.Translate(0xFFFFFFFFA0000000, 0, vrtypes.AccessFetch)
	if exc != nil {
		t.Fatalf("unexpected exception: %+v", exc)
	}
	if paddr != 0 {
		t.Fatalf("paddr = %#x, want 0", paddr)
	}
}

func TestTranslateUnmappedMissRaisesTLBL(t *testing.T) {
	var tl TLB
	_, exc := tl.Translate(0x00001000, 0, vrtypes.AccessFetch)
	if exc == nil || exc.Code != vrtypes.ExcTLBL {
		t.Fatalf("expected ExcTLBL, got %+v", exc)
	}
	if !exc.Refill {
		t.Fatalf("a miss with no matching entry at all must be a refill miss, got %+v", exc)
	}
}

func TestTranslateStoreMissRaisesTLBS(t *testing.T) {
	var tl TLB
	_, exc := tl.Translate(0x00001000, 0, vrtypes.AccessStore)
	if exc == nil || exc.Code != vrtypes.ExcTLBS {
		t.Fatalf("expected ExcTLBS, got %+v", exc)
	}
	if !exc.Refill {
		t.Fatalf("a miss with no matching entry at all must be a refill miss, got %+v", exc)
	}
}

func TestTranslateInvalidEntryMissIsNotARefill(t *testing.T) {
	var tl TLB
	tl.WriteIndexed(0, Entry{
		VPN2: 0x00002000 &^ 0x1FFF,
		ASID: 5,
		V0:   false,
	})
	_, exc := tl.Translate(0x00002000, 5, vrtypes.AccessLoad)
	if exc == nil || exc.Code != vrtypes.ExcTLBL {
		t.Fatalf("expected ExcTLBL for an invalid matching entry, got %+v", exc)
	}
	if exc.Refill {
		t.Fatalf("a miss against a matching-but-invalid entry must route to the general vector, not refill, got %+v", exc)
	}
}

func TestTranslateMappedEvenOddPages(t *testing.T) {
	var tl TLB
	tl.WriteIndexed(0, Entry{
		VPN2: 0x00002000 &^ 0x1FFF,
		ASID: 5,
		PFN0: 0x100, V0: true, D0: true,
		PFN1: 0x200, V1: true, D1: false,
	})

	paddr, exc := tl.Translate(0x00002000, 5, vrtypes.AccessLoad)
	if exc != nil {
		t.Fatalf("even page: unexpected exception %+v", exc)
	}
	if paddr != 0x100<<12 {
		t.Fatalf("even page paddr = %#x, want %#x", paddr, uint32(0x100<<12))
	}

	paddr, exc = tl.Translate(0x00003000, 5, vrtypes.AccessLoad)
	if exc != nil {
		t.Fatalf("odd page: unexpected exception %+v", exc)
	}
	if paddr != 0x200<<12 {
		t.Fatalf("odd page paddr = %#x, want %#x", paddr, uint32(0x200<<12))
	}
}

func TestTranslateStoreToCleanPageRaisesMod(t *testing.T) {
	var tl TLB
	tl.WriteIndexed(0, Entry{
		VPN2: 0x00002000 &^ 0x1FFF,
		ASID: 5,
		PFN0: 0x100, V0: true, D0: false,
	})
	_, exc := tl.Translate(0x00002000, 5, vrtypes.AccessStore)
	if exc == nil || exc.Code != vrtypes.ExcMod {
		t.Fatalf("expected ExcMod on store to a clean page, got %+v", exc)
	}
}

func TestTranslateWrongASIDMissesUnlessGlobal(t *testing.T) {
	var tl TLB
	tl.WriteIndexed(0, Entry{
		VPN2: 0x00002000 &^ 0x1FFF,
		ASID: 5,
		PFN0: 0x100, V0: true, D0: true,
	})
	if _, exc := tl.Translate(0x00002000, 6, vrtypes.AccessLoad); exc == nil {
		t.Fatalf("expected a miss for mismatched ASID on a non-global entry")
	}

	tl.WriteIndexed(1, Entry{
		VPN2: 0x00004000 &^ 0x1FFF,
		ASID: 5,
		PFN0: 0x300, V0: true, D0: true,
		G: true,
	})
	if _, exc := tl.Translate(0x00004000, 6, vrtypes.AccessLoad); exc != nil {
		t.Fatalf("global entry must match regardless of ASID, got %+v", exc)
	}
}

func TestProbeFindsMatchingEntry(t *testing.T) {
	var tl TLB
	tl.WriteIndexed(3, Entry{VPN2: 0x00002000 &^ 0x1FFF, ASID: 9, V0: true})
	if idx := tl.Probe(0x00002000&^0x1FFF, 9); idx != 3 {
		t.Fatalf("Probe = %d, want 3", idx)
	}
	if idx := tl.Probe(0xBAD000, 9); idx != -1 {
		t.Fatalf("Probe(no match) = %d, want -1", idx)
	}
}

func TestWriteRandomRespectsWiredWindow(t *testing.T) {
	var tl TLB
	tl.Wired = 4
	idx := tl.WriteRandom(1, Entry{ASID: 1})
	if idx != 4 {
		t.Fatalf("WriteRandom(1) with Wired=4 wrote index %d, want 4", idx)
	}
	idx = tl.WriteRandom(10, Entry{ASID: 2})
	if idx != 10 {
		t.Fatalf("WriteRandom(10) wrote index %d, want 10", idx)
	}
}

func TestReadReturnsWrittenEntry(t *testing.T) {
	var tl TLB
	e := Entry{VPN2: 0x4000, ASID: 7, PFN0: 0x55, V0: true}
	tl.WriteIndexed(5, e)
	if got := tl.Read(5); got != e {
		t.Fatalf("Read(5) = %+v, want %+v", got, e)
	}
}
