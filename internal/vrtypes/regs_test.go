package vrtypes

import "testing"

func TestGPR0AlwaysReadsZero(t *testing.T) {
	var r Regs
	r.Set(RegGPR0, 0xDEADBEEF)
	if got := r.Get(RegGPR0); got != 0 {
		t.Fatalf("Get(RegGPR0) = %#x, want 0", got)
	}
}

func TestSetAndGetOrdinaryRegister(t *testing.T) {
	var r Regs
	r.Set(RegGPR(5), 42)
	if got := r.Get(RegGPR(5)); got != 42 {
		t.Fatalf("Get($5) = %d, want 42", got)
	}
}

func TestRegGPRWrapsIndexTo5Bits(t *testing.T) {
	if RegGPR(32) != RegGPR(0) {
		t.Fatalf("RegGPR(32) = %d, want same index as RegGPR(0)", RegGPR(32))
	}
}

func TestUnifiedIndexSpaceDoesNotOverlap(t *testing.T) {
	indices := map[int]string{
		RegGPR0:        "gpr0",
		RegHI:          "hi",
		RegLO:          "lo",
		RegPC:          "pc",
		RegCP0(0):      "cp0.0",
		RegCP1(0):      "cp1.0",
		RegFCR0:        "fcr0",
		RegFCR31:       "fcr31",
	}
	seen := make(map[int]string)
	for idx, name := range indices {
		if other, ok := seen[idx]; ok {
			t.Fatalf("index %d used by both %q and %q", idx, other, name)
		}
		seen[idx] = name
	}
}

func TestHIAndLOAreDistinctFromGPRs(t *testing.T) {
	var r Regs
	r.Set(RegHI, 1)
	r.Set(RegLO, 2)
	r.Set(RegGPR(1), 3)
	if r.Get(RegHI) != 1 || r.Get(RegLO) != 2 || r.Get(RegGPR(1)) != 3 {
		t.Fatalf("HI/LO/$1 overlap: hi=%d lo=%d $1=%d", r.Get(RegHI), r.Get(RegLO), r.Get(RegGPR(1)))
	}
}
