package fpu

import (
	"math"
	"testing"
)

func TestAddF32(t *testing.T) {
	a := math.Float32bits(1.5)
	b := math.Float32bits(2.25)
	var dst uint32
	AddF32(&a, &b, &dst)
	if math.Float32frombits(dst) != 3.75 {
		t.Fatalf("1.5+2.25 = %v, want 3.75", math.Float32frombits(dst))
	}
}

func TestDivF32ByZeroSetsDivByZeroFlag(t *testing.T) {
	Flags = StickyFlags{}
	one := math.Float32bits(1)
	zero := math.Float32bits(0)
	var dst uint32
	DivF32(&one, &zero, &dst)
	if !Flags.DivByZero {
		t.Fatalf("expected DivByZero flag set")
	}
}

func TestSqrtF64NegativeSetsInvalidFlag(t *testing.T) {
	Flags = StickyFlags{}
	neg := math.Float64bits(-4)
	var dst uint64
	SqrtF64(&neg, &dst)
	if !Flags.Invalid {
		t.Fatalf("expected Invalid flag set for sqrt of a negative number")
	}
}

func TestSqrtF64Normal(t *testing.T) {
	Flags = StickyFlags{}
	v := math.Float64bits(9)
	var dst uint64
	SqrtF64(&v, &dst)
	if math.Float64frombits(dst) != 3 {
		t.Fatalf("sqrt(9) = %v, want 3", math.Float64frombits(dst))
	}
}

func TestNegAndAbs(t *testing.T) {
	v := math.Float32bits(-5.5)
	var neg, abs uint32
	NegF32(&v, &neg)
	AbsF32(&v, &abs)
	if math.Float32frombits(neg) != 5.5 {
		t.Fatalf("NegF32(-5.5) = %v, want 5.5", math.Float32frombits(neg))
	}
	if math.Float32frombits(abs) != 5.5 {
		t.Fatalf("AbsF32(-5.5) = %v, want 5.5", math.Float32frombits(abs))
	}
}

func TestCvtF32ToF64AndBack(t *testing.T) {
	f32bits := math.Float32bits(3.25)
	var f64bits uint64
	CvtF32ToF64(&f32bits, &f64bits)
	if math.Float64frombits(f64bits) != 3.25 {
		t.Fatalf("CvtF32ToF64(3.25) = %v, want 3.25", math.Float64frombits(f64bits))
	}

	var back uint32
	CvtF64ToF32(&f64bits, &back)
	if math.Float32frombits(back) != 3.25 {
		t.Fatalf("round trip = %v, want 3.25", math.Float32frombits(back))
	}
}

func TestCvtF64ToI32Truncates(t *testing.T) {
	SetRoundingMode(RoundZero)
	defer SetRoundingMode(RoundNearest)
	v := math.Float64bits(3.9)
	var i uint32
	CvtF64ToI32(&v, &i)
	if int32(i) != 3 {
		t.Fatalf("CvtF64ToI32(3.9, RoundZero) = %d, want 3", int32(i))
	}
}

func TestCvtI32ToF64(t *testing.T) {
	n := int32(-7)
	i := uint32(n)
	var f uint64
	CvtI32ToF64(&i, &f)
	if math.Float64frombits(f) != -7 {
		t.Fatalf("CvtI32ToF64(-7) = %v, want -7", math.Float64frombits(f))
	}
}

func TestCompareF64Predicates(t *testing.T) {
	a := math.Float64bits(1)
	b := math.Float64bits(2)
	nan := math.Float64bits(math.NaN())

	if !CompareF64(&a, &b, PredOlt) {
		t.Fatalf("1 < 2 must be true under PredOlt")
	}
	if CompareF64(&b, &a, PredOlt) {
		t.Fatalf("2 < 1 must be false under PredOlt")
	}
	if !CompareF64(&a, &nan, PredUn) {
		t.Fatalf("compare against NaN must be unordered")
	}
	if CompareF64(&a, &nan, PredOlt) {
		t.Fatalf("ordered predicate against NaN must be false")
	}
}

func TestWithRoundingRestoresModeAfterPanic(t *testing.T) {
	SetRoundingMode(RoundNearest)
	func() {
		defer func() { recover() }()
		WithRounding(RoundZero, func() {
			panic("boom")
		})
	}()
	if RoundingModeValue() != RoundNearest {
		t.Fatalf("rounding mode = %v after panic, want restored to RoundNearest", RoundingModeValue())
	}
}
