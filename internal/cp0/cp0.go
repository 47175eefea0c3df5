// Package cp0 implements the VR4300's system coprocessor: the
// architectural control registers, exception entry/exit, and the
// Count/Compare timer interrupt, grounded on internal/mips/cop0.go's
// register set, RaiseException/ERET/TLBP-TLBR shape, and Status/Cause
// bit layout, generalized from MIPS32 to the full VR4300 register list
// and 64-bit EPC/BadVAddr/Context values.
package cp0

import "vr4300vm/internal/vrtypes"

// Register numbers, exactly as the architecture defines them (and as the
// teacher's cp0RegXxx constants name them).
const (
	RegIndex    = 0
	RegRandom   = 1
	RegEntryLo0 = 2
	RegEntryLo1 = 3
	RegContext  = 4
	RegPageMask = 5
	RegWired    = 6
	RegBadVAddr = 8
	RegCount    = 9
	RegEntryHi  = 10
	RegCompare  = 11
	RegStatus   = 12
	RegCause    = 13
	RegEPC      = 14
	RegPRId     = 15
	RegConfig   = 16
	RegLLAddr   = 17
	RegWatchLo  = 18
	RegWatchHi  = 19
	RegXContext = 20
	RegECC      = 26
	RegCacheErr = 27
	RegTagLo    = 28
	RegTagHi    = 29
	RegErrorEPC = 30
)

// Status/Cause bit layout.
const (
	StatusIE  uint64 = 1 << 0
	StatusEXL uint64 = 1 << 1
	StatusERL uint64 = 1 << 2
	StatusFR  uint64 = 1 << 26

	statusIMShift = 8

	CauseBD uint64 = 1 << 31
	CauseTI uint64 = 1 << 30
	CauseIV uint64 = 1 << 23

	causeIPShift = 8
)

// CP0 holds the VR4300's system-control register file. The TLB itself
// lives in package tlb; CP0 only owns the scalar registers TLB
// instructions read and write (EntryHi/EntryLo0/EntryLo1/PageMask/
// Index/Random/Wired) — the pipeline's CP0 instruction handlers glue the
// two together, keeping this package free of an import on package tlb.
type CP0 struct {
	index, random                     uint32
	entryLo0, entryLo1                uint64
	context                           uint64
	pageMask                          uint64
	wired                             uint32
	badVAddr                          uint64
	count                             uint32
	entryHi                           uint64
	compare                           uint32
	status, cause                     uint64
	epc                               uint64
	prid, ebase                      uint32
	config0, config1                 uint32
	lladdr                            uint64
	watchLo, watchHi                  uint64
	xcontext                          uint64
	ecc, cacheErr                     uint32
	tagLo, tagHi                      uint32
	errorEPC                          uint64
}

// New creates a CP0 in its post-reset state for a TLB of the given size.
func New(tlbSize int) *CP0 {
	c := &CP0{}
	c.random = uint32(tlbSize - 1)
	c.prid = 0x00000B00 // VR4300 implementation/revision, per the MIPS PRId convention
	c.ebase = 0x80000000
	c.config0 = (1 << 31) | 0x3 // M=1 (Config1 present), K0=3 (cacheable noncoherent)
	c.config1 = (uint32(tlbSize-1) & 0x3F) << 25
	c.status = StatusERL // ERL=1 at reset, per the architecture
	return c
}

// Read returns CP0 register (reg, sel).
func (c *CP0) Read(reg, sel int) uint64 {
	switch reg {
	case RegIndex:
		return uint64(c.index)
	case RegRandom:
		return uint64(c.random)
	case RegEntryLo0:
		return c.entryLo0
	case RegEntryLo1:
		return c.entryLo1
	case RegContext:
		return c.context
	case RegPageMask:
		return c.pageMask
	case RegWired:
		return uint64(c.wired)
	case RegBadVAddr:
		return c.badVAddr
	case RegCount:
		return uint64(c.count)
	case RegEntryHi:
		return c.entryHi
	case RegCompare:
		return uint64(c.compare)
	case RegStatus:
		return c.status
	case RegCause:
		return c.cause
	case RegEPC:
		return c.epc
	case RegPRId:
		if sel == 1 {
			return uint64(c.ebase)
		}
		return uint64(c.prid)
	case RegConfig:
		if sel == 1 {
			return uint64(c.config1)
		}
		return uint64(c.config0)
	case RegLLAddr:
		return c.lladdr
	case RegWatchLo:
		return c.watchLo
	case RegWatchHi:
		return c.watchHi
	case RegXContext:
		return c.xcontext
	case RegECC:
		return uint64(c.ecc)
	case RegCacheErr:
		return uint64(c.cacheErr)
	case RegTagLo:
		return uint64(c.tagLo)
	case RegTagHi:
		return uint64(c.tagHi)
	case RegErrorEPC:
		return c.errorEPC
	}
	return 0
}

// Write sets CP0 register (reg, sel) and applies the register's side
// effects (e.g. writing Compare clears the pending timer interrupt).
func (c *CP0) Write(reg, sel int, val uint64) {
	switch reg {
	case RegIndex:
		c.index = uint32(val) & 0x8000003F
	case RegRandom:
		c.random = uint32(val)
	case RegEntryLo0:
		c.entryLo0 = val & 0x3FFFFFFF
	case RegEntryLo1:
		c.entryLo1 = val & 0x3FFFFFFF
	case RegContext:
		c.context = val
	case RegPageMask:
		c.pageMask = val & 0x01FFE000
	case RegWired:
		c.wired = uint32(val) & 0x3F
	case RegBadVAddr:
		// Read-only; writes ignored.
	case RegCount:
		c.count = uint32(val)
	case RegEntryHi:
		c.entryHi = val &^ 0x1F00 // bits 12..8 sit between VPN2 and ASID and read as zero
	case RegCompare:
		c.compare = uint32(val)
		c.cause &^= CauseTI | (1 << (causeIPShift + 7))
	case RegStatus:
		c.status = val
	case RegCause:
		c.cause &^= CauseIV | (0x3 << causeIPShift)
		c.cause |= val & (CauseIV | (0x3 << causeIPShift))
	case RegEPC:
		c.epc = val
	case RegPRId:
		if sel == 1 {
			c.ebase = uint32(val)
		}
	case RegConfig:
		if sel == 0 {
			m := c.config0 & (1 << 31)
			c.config0 = m | (uint32(val) & 0x7)
		}
	case RegLLAddr:
		c.lladdr = val
	case RegWatchLo:
		c.watchLo = val
	case RegWatchHi:
		c.watchHi = val
	case RegXContext:
		c.xcontext = val
	case RegECC:
		c.ecc = uint32(val)
	case RegCacheErr:
		c.cacheErr = uint32(val)
	case RegTagLo:
		c.tagLo = uint32(val)
	case RegTagHi:
		c.tagHi = uint32(val)
	case RegErrorEPC:
		c.errorEPC = val
	}
}

// EntryHiVPN2ASID splits EntryHi into VPN2 and ASID for TLB instructions.
func (c *CP0) EntryHiVPN2ASID() (vpn2 uint64, asid uint8) {
	return c.entryHi &^ 0x1FFF, uint8(c.entryHi & 0xFF)
}

// SetIndexFromProbe sets Index after a TLBP: idx>=0 on hit (clears the P
// bit), idx<0 sets the P bit (probe failure).
func (c *CP0) SetIndexFromProbe(idx int) {
	if idx < 0 {
		c.index = 0x80000000
		return
	}
	c.index = uint32(idx) & 0x3F
}

// IndexForTLBWI returns the index TLBWI should write to, or -1 if Index's
// P bit is set (invalid).
func (c *CP0) IndexForTLBWI() int {
	if c.index&0x80000000 != 0 {
		return -1
	}
	return int(c.index & 0x3F)
}

// RandomValue returns the current Random register value, for TLBWR.
func (c *CP0) RandomValue() int { return int(c.random) }

// StepRandom decrements Random toward Wired, wrapping back to the top of
// the TLB once it would fall below Wired, called once per pipeline cycle.
func (c *CP0) StepRandom(tlbSize int) {
	if tlbSize <= 0 {
		return
	}
	if int(c.random) <= int(c.wired) {
		c.random = uint32(tlbSize - 1)
		return
	}
	c.random--
}

// Tick adds cycles to Count (the master clock runs Count at half rate, so
// callers pass cycles/2 worth of increments) and asserts the IP7 timer
// interrupt when Count reaches a nonzero Compare.
func (c *CP0) Tick(cycles uint32) {
	c.count += cycles
	if c.compare != 0 && c.count == c.compare {
		c.cause |= CauseTI | (1 << (causeIPShift + 7))
	}
}

// SetBadVAddr records the faulting address for TLB/address-error exceptions.
func (c *CP0) SetBadVAddr(addr uint64) { c.badVAddr = addr }

// SetHWInterrupt sets or clears a hardware interrupt pending bit IP2..IP6.
func (c *CP0) SetHWInterrupt(line int, pending bool) {
	if line < 2 || line > 6 {
		return
	}
	bit := uint64(1) << (causeIPShift + uint(line))
	if pending {
		c.cause |= bit
	} else {
		c.cause &^= bit
	}
}

// PendingInterrupt reports whether an interrupt should be taken at the
// next instruction boundary: IE=1, EXL=0, ERL=0, and (IP & IM) != 0.
func (c *CP0) PendingInterrupt() bool {
	if c.status&StatusIE == 0 || c.status&(StatusEXL|StatusERL) != 0 {
		return false
	}
	ip := (c.cause >> causeIPShift) & 0xFF
	im := (c.status >> statusIMShift) & 0xFF
	return ip&im != 0
}

// RaiseException sets Cause.ExcCode/BD, saves EPC, sets Status.EXL, and
// returns the exception vector address. If inDelaySlot, EPC is pc-4 and
// BD is set. refill selects the dedicated TLB-refill vector for a
// TLBL/TLBS miss that found no matching entry at all; it only takes
// effect while EXL was still clear, matching the architecture's "refill
// only applies to the first-level miss" rule.
func (c *CP0) RaiseException(exc vrtypes.ExcCode, pc uint64, inDelaySlot bool, refill bool) uint64 {
	wasEXL := c.status&StatusEXL != 0

	c.cause &^= 0x7C
	c.cause |= uint64(exc&0x1F) << 2

	if inDelaySlot {
		c.cause |= CauseBD
		c.epc = pc - 4
	} else {
		c.cause &^= CauseBD
		c.epc = pc
	}

	c.status |= StatusEXL

	base := uint64(0xFFFFFFFFBFC00000) // BEV=1 boot vector base
	switch {
	case refill && !wasEXL && (exc == vrtypes.ExcTLBL || exc == vrtypes.ExcTLBS):
		return c.TLBRefillVector()
	case exc == vrtypes.ExcInt && c.cause&CauseIV != 0:
		return base + 0x200
	default:
		return base + 0x180
	}
}

// TLBRefillVector returns the dedicated TLB-refill vector (a miss on the
// very first lookup for an address, as opposed to any other exception).
func (c *CP0) TLBRefillVector() uint64 { return 0xFFFFFFFFBFC00200 }

// ERET clears EXL (or ERL) and the LL bit unconditionally, returning the
// resumption PC (EPC, or ErrorEPC if ERL was set).
func (c *CP0) ERET() (pc uint64, clearLL bool) {
	c.cause &^= CauseBD
	if c.status&StatusERL != 0 {
		c.status &^= StatusERL
		return c.errorEPC, true
	}
	c.status &^= StatusEXL
	return c.epc, true
}

// Status returns the raw Status register.
func (c *CP0) Status() uint64 { return c.status }

// Cause returns the raw Cause register.
func (c *CP0) Cause() uint64 { return c.cause }
