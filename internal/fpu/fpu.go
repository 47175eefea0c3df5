// Package fpu implements bit-exact IEEE-754 single- and double-precision
// primitives for the VR4300's FPU coprocessor, grounded on
// original_source/arch/fpu and original_source/arch/x86_64/fpu: each
// primitive there takes operands by pointer to 32- or 64-bit words "to
// avoid aliasing with architectural interpretation" and writes the result
// through a pointer. Go has no raw SSE2 intrinsics to imitate, so these
// operate on *uint32/*uint64 bit patterns and convert through
// math.Float{32,64}frombits/bits at the boundary, then use Go's native
// float32/float64 arithmetic, which is IEEE-754 compliant on every
// platform the toolchain supports.
package fpu

import "math"

// RoundingMode mirrors the host FPU's control word: there is one hardware
// FPU state, shared process-wide rather than per-core.
type RoundingMode int

const (
	RoundNearest RoundingMode = iota
	RoundZero
	RoundPlusInf
	RoundMinusInf
)

// current is the process-wide rounding mode. Guarded only by convention:
// the core is single-threaded cooperative, so no mutex is needed here,
// matching the register-bank's style of trusting the caller's threading
// discipline.
var current = RoundNearest

// StickyFlags accumulates IEEE-754 exception flags across FPU operations
// in the package-level Flags; CP1 does not copy them into FCR31. Exception masking is always "no traps":
// these flags are sticky bits, never delivered as Go panics or host
// errors.
type StickyFlags struct {
	Inexact   bool
	Underflow bool
	Overflow  bool
	DivByZero bool
	Invalid   bool
}

var Flags StickyFlags

// SetRoundingMode changes the process-wide rounding mode used by Round,
// Ceil, Floor and Trunc when the host format has no native rounding
// primitive for the requested direction.
func SetRoundingMode(m RoundingMode) { current = m }

// RoundingModeValue returns the current process-wide rounding mode.
func RoundingModeValue() RoundingMode { return current }

// WithRounding temporarily overrides the rounding mode for the duration of
// fn, saving and restoring unconditionally via defer so that an abnormal
// return (a panic unwinding through fn) can never leave the global mode
// corrupted: a scoped acquire-release, since Go has no setjmp/longjmp to
// race against.
func WithRounding(m RoundingMode, fn func()) {
	saved := current
	current = m
	defer func() { current = saved }()
	fn()
}

func roundFloat64(f float64) float64 {
	switch current {
	case RoundZero:
		return math.Trunc(f)
	case RoundPlusInf:
		return math.Ceil(f)
	case RoundMinusInf:
		return math.Floor(f)
	default:
		return math.RoundToEven(f)
	}
}

// --- single precision (32-bit) ---

func f32(bits *uint32) float32 { return math.Float32frombits(*bits) }
func setF32(dst *uint32, v float32) {
	if math.IsInf(float64(v), 0) {
		Flags.Overflow = true
	}
	*dst = math.Float32bits(v)
}

func AddF32(fs, ft *uint32, fd *uint32) { setF32(fd, f32(fs)+f32(ft)) }
func SubF32(fs, ft *uint32, fd *uint32) { setF32(fd, f32(fs)-f32(ft)) }
func MulF32(fs, ft *uint32, fd *uint32) { setF32(fd, f32(fs)*f32(ft)) }
func DivF32(fs, ft *uint32, fd *uint32) {
	if f32(ft) == 0 {
		Flags.DivByZero = true
	}
	setF32(fd, f32(fs)/f32(ft))
}
func SqrtF32(fs *uint32, fd *uint32) {
	v := f32(fs)
	if v < 0 {
		Flags.Invalid = true
	}
	setF32(fd, float32(math.Sqrt(float64(v))))
}
func NegF32(fs *uint32, fd *uint32) { setF32(fd, -f32(fs)) }
func AbsF32(fs *uint32, fd *uint32) {
	v := f32(fs)
	if v < 0 {
		v = -v
	}
	setF32(fd, v)
}

// --- double precision (64-bit) ---

func f64(bits *uint64) float64 { return math.Float64frombits(*bits) }
func setF64(dst *uint64, v float64) {
	if math.IsInf(v, 0) {
		Flags.Overflow = true
	}
	*dst = math.Float64bits(v)
}

func AddF64(fs, ft *uint64, fd *uint64) { setF64(fd, f64(fs)+f64(ft)) }
func SubF64(fs, ft *uint64, fd *uint64) { setF64(fd, f64(fs)-f64(ft)) }
func MulF64(fs, ft *uint64, fd *uint64) { setF64(fd, f64(fs)*f64(ft)) }
func DivF64(fs, ft *uint64, fd *uint64) {
	if f64(ft) == 0 {
		Flags.DivByZero = true
	}
	setF64(fd, f64(fs)/f64(ft))
}
func SqrtF64(fs *uint64, fd *uint64) {
	v := f64(fs)
	if v < 0 {
		Flags.Invalid = true
	}
	setF64(fd, math.Sqrt(v))
}
func NegF64(fs *uint64, fd *uint64) { setF64(fd, -f64(fs)) }
func AbsF64(fs *uint64, fd *uint64) {
	v := f64(fs)
	if v < 0 {
		v = -v
	}
	setF64(fd, v)
}

// --- rounding primitives (used by CEIL/FLOOR/ROUND/TRUNC when the target
// format can't natively express the requested direction) ---

func RoundF64(fs *uint64, fd *uint64) { setF64(fd, roundFloat64(f64(fs))) }
func CeilF64(fs, fd *uint64) {
	WithRounding(RoundPlusInf, func() { setF64(fd, roundFloat64(f64(fs))) })
}
func FloorF64(fs, fd *uint64) {
	WithRounding(RoundMinusInf, func() { setF64(fd, roundFloat64(f64(fs))) })
}
func TruncF64(fs, fd *uint64) {
	WithRounding(RoundZero, func() { setF64(fd, roundFloat64(f64(fs))) })
}

// --- conversions ---

func CvtF32ToF64(fs *uint32, fd *uint64) { setF64(fd, float64(f32(fs))) }
func CvtF64ToF32(fs *uint64, fd *uint32) { setF32(fd, float32(f64(fs))) }

func CvtF32ToI32(fs *uint32, fd *uint32) { *fd = uint32(int32(roundFloat64(float64(f32(fs))))) }
func CvtF32ToI64(fs *uint32, fd *uint64) { *fd = uint64(int64(roundFloat64(float64(f32(fs))))) }
func CvtF64ToI32(fs *uint64, fd *uint32) { *fd = uint32(int32(roundFloat64(f64(fs)))) }
func CvtF64ToI64(fs *uint64, fd *uint64) { *fd = uint64(int64(roundFloat64(f64(fs)))) }

func CvtI32ToF32(fs *uint32, fd *uint32) { setF32(fd, float32(int32(*fs))) }
func CvtI32ToF64(fs *uint32, fd *uint64) { setF64(fd, float64(int32(*fs))) }
func CvtI64ToF32(fs *uint64, fd *uint32) { setF32(fd, float32(int64(*fs))) }
func CvtI64ToF64(fs *uint64, fd *uint64) { setF64(fd, float64(int64(*fs))) }

// --- comparison predicates ---
//
// CompareF32/CompareF64 evaluate one of the eight IEEE predicates the
// architecture names (f, un, eq, ueq, olt, ult, ole, ule) and return a
// bool; CP1's COMPARE dispatch turns that into FCR31's condition bit.

// Predicate names the eight orderings C.cond.fmt may request, keyed by
// the funct field's low three bits.
type Predicate uint8

const (
	PredF Predicate = iota
	PredUn
	PredEq
	PredUeq
	PredOlt
	PredUlt
	PredOle
	PredUle
	// The signaling variants (funct bit 3 set) reuse the same comparisons;
	// neither form sets Flags.Invalid on unordered operands.
)

func compare64(fs, ft float64, p Predicate) bool {
	unordered := math.IsNaN(fs) || math.IsNaN(ft)
	switch p {
	case PredF:
		return false
	case PredUn:
		return unordered
	case PredEq:
		return !unordered && fs == ft
	case PredUeq:
		return unordered || fs == ft
	case PredOlt:
		return !unordered && fs < ft
	case PredUlt:
		return unordered || fs < ft
	case PredOle:
		return !unordered && fs <= ft
	case PredUle:
		return unordered || fs <= ft
	}
	return false
}

func CompareF32(fs, ft *uint32, p Predicate) bool {
	return compare64(float64(f32(fs)), float64(f32(ft)), p)
}

func CompareF64(fs, ft *uint64, p Predicate) bool {
	return compare64(f64(fs), f64(ft), p)
}
