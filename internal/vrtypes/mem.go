package vrtypes

// AccessSize is the width of a pipeline memory request.
type AccessSize uint8

const (
	SizeByte AccessSize = iota
	SizeHalf
	SizeWord
	SizeDword
)

// ReqType distinguishes a load from a store in a pending EXDC memory request.
type ReqType uint8

const (
	ReqRead ReqType = iota
	ReqWrite
)

// MemRequest is the EXDC latch's pending memory request:
// {vaddr, data, wdqm, postshift, access_type, type, size}. The bus and
// caches only ever move whole 32-bit words; byte/half/dword accesses are
// expressed as a word-aligned request plus a write-data-qualifier mask and
// a post-read shift, exactly as the original bus protocol does.
type MemRequest struct {
	VAddr     uint64
	Data      uint64
	WDQM      uint32
	PostShift uint
	Access    AccessSize
	Type      ReqType
	Valid     bool

	// MergeMask/MergeShift implement LWL/LWR's partial-register merge: the
	// word-aligned load is shifted by MergeShift (positive = left,
	// negative = right) and only the bits under MergeMask replace the
	// destination register's existing value, leaving the rest of the
	// register untouched. Zero MergeMask means "no partial merge", which
	// is every load other than LWL/LWR. SWL/SWR need no equivalent field:
	// their shift/mask are folded into Data/WDQM up front so the generic
	// word-store path needs no special case.
	MergeMask  uint32
	MergeShift int
}
