// Package decode implements the VR4300 instruction decoder: a pure
// function from a 32-bit instruction word to an opcode id plus a small
// hazard-flag bitset, grounded on original_source/src/gen/doop.gen.c (the
// mask cascade) and original_source/vr4300/decoder.h (the flag bits and
// field extraction macros).
package decode

// OpID enumerates every instruction this core recognises. Numeric, not
// stringly-typed, so the pipeline's EX-stage dispatch is a plain switch.
type OpID int

const (
	OpReserved OpID = iota

	// SPECIAL (opcode 0)
	OpSLL
	OpSRL
	OpSRA
	OpSLLV
	OpSRLV
	OpSRAV
	OpJR
	OpJALR
	OpSyscall
	OpBreak
	OpSync
	OpMFHI
	OpMTHI
	OpMFLO
	OpMTLO
	OpMULT
	OpMULTU
	OpDIV
	OpDIVU
	OpADD
	OpADDU
	OpSUB
	OpSUBU
	OpAND
	OpOR
	OpXOR
	OpNOR
	OpSLT
	OpSLTU
	OpMOVZ
	OpMOVN
	OpMUL
	OpTGE
	OpTGEU
	OpTLT
	OpTLTU
	OpTEQ
	OpTNE

	// REGIMM (opcode 1)
	OpBLTZ
	OpBGEZ
	OpBLTZL
	OpBGEZL
	OpBLTZAL
	OpBGEZAL

	// primary opcodes
	OpJ
	OpJAL
	OpBEQ
	OpBNE
	OpBLEZ
	OpBGTZ
	OpADDI
	OpADDIU
	OpSLTI
	OpSLTIU
	OpANDI
	OpORI
	OpXORI
	OpLUI
	OpBEQL
	OpBNEL
	OpBLEZL
	OpBGTZL
	OpLB
	OpLH
	OpLWL
	OpLW
	OpLBU
	OpLHU
	OpLWR
	OpSB
	OpSH
	OpSWL
	OpSW
	OpSWR
	OpCACHE
	OpLL
	OpPREF
	OpSC

	// fixed CP0 ops (op & 0xFFFFFFFF)
	OpTLBWI
	OpTLBWR
	OpTLBP
	OpTLBR
	OpERET
	OpWAIT

	// MFC0/MTC0 (op & 0xFFE00000)
	OpMFC0
	OpMTC0

	// CP1 (opcode 0x11) — not in doop.gen.c's cascade (cen64 dispatches
	// these separately into cp1.c); decoded here from the COP1 rs field.
	OpMFC1
	OpDMFC1
	OpCFC1
	OpMTC1
	OpDMTC1
	OpCTC1
	OpBC1F
	OpBC1T
	OpBC1FL
	OpBC1TL
	OpFPUAdd
	OpFPUSub
	OpFPUMul
	OpFPUDiv
	OpFPUSqrt
	OpFPUAbs
	OpFPUMov
	OpFPUNeg
	OpFPURound
	OpFPUTrunc
	OpFPUCeil
	OpFPUFloor
	OpFPUCvtS
	OpFPUCvtD
	OpFPUCvtW
	OpFPUCvtL
	OpFPUCompare
	OpLWC1
	OpLDC1
	OpSWC1
	OpSDC1
)

// Flags is the small hazard bitset the pipeline's RF stage consults,
// modelled on original_source/vr4300/decoder.h's OPCODE_INFO_* bits
// (FlagNeedFS is encoded differently; see below).
type Flags uint32

const (
	FlagNone   Flags = 0
	FlagFPU    Flags = 1 << 0
	FlagNeedFT Flags = 1 << 1
	FlagNeedFS Flags = 1 << 2 // also implies FlagFPU via (1<<3)|(1<<0) in the original; kept separate here for clarity
	FlagNeedRS Flags = 1 << 3
	FlagNeedRT Flags = 1 << 4
	FlagLoad   Flags = 1 << 5
	FlagStore  Flags = 1 << 6
	FlagBranch Flags = 1 << 31
)

// Opcode is the decoder's output: an id plus the flags the pipeline needs
// to resolve bypass/stall hazards without re-decoding.
type Opcode struct {
	ID    OpID
	Flags Flags
}

// Field extractors, named exactly as original_source/vr4300/decoder.h's
// GET_RS/GET_RT/GET_RD/GET_FS/GET_FT/GET_FD/GET_FMT macros.
func GetRS(iw uint32) uint32  { return (iw >> 21) & 0x1F }
func GetRT(iw uint32) uint32  { return (iw >> 16) & 0x1F }
func GetRD(iw uint32) uint32  { return (iw >> 11) & 0x1F }
func GetSA(iw uint32) uint32  { return (iw >> 6) & 0x1F }
func GetFunct(iw uint32) uint32 { return iw & 0x3F }
func GetFmt(iw uint32) uint32 { return (iw >> 21) & 0x1F }
func GetFS(iw uint32) uint32  { return (iw >> 11) & 0x1F }
func GetFT(iw uint32) uint32  { return (iw >> 16) & 0x1F }
func GetFD(iw uint32) uint32  { return (iw >> 6) & 0x1F }
func GetImm16(iw uint32) uint16 { return uint16(iw) }
func GetTarget26(iw uint32) uint32 { return iw & 0x3FFFFFF }

var special = map[uint32]OpID{
	0x00: OpSLL, 0x02: OpSRL, 0x03: OpSRA,
	0x04: OpSLLV, 0x06: OpSRLV, 0x07: OpSRAV,
	0x08: OpJR, 0x09: OpJALR,
	0x0C: OpSyscall, 0x0D: OpBreak, 0x0F: OpSync,
	0x10: OpMFHI, 0x11: OpMTHI, 0x12: OpMFLO, 0x13: OpMTLO,
	0x18: OpMULT, 0x19: OpMULTU, 0x1A: OpDIV, 0x1B: OpDIVU,
	0x20: OpADD, 0x21: OpADDU, 0x22: OpSUB, 0x23: OpSUBU,
	0x24: OpAND, 0x25: OpOR, 0x26: OpXOR, 0x27: OpNOR,
	0x2A: OpSLT, 0x2B: OpSLTU,
	0x30: OpTGE, 0x31: OpTGEU, 0x32: OpTLT, 0x33: OpTLTU, 0x34: OpTEQ, 0x36: OpTNE,
}

var regimm = map[uint32]OpID{
	0x00: OpBLTZ, 0x01: OpBGEZ, 0x02: OpBLTZL, 0x03: OpBGEZL,
	0x10: OpBLTZAL, 0x11: OpBGEZAL,
}

var primary = map[uint32]OpID{
	0x02: OpJ, 0x03: OpJAL, 0x04: OpBEQ, 0x05: OpBNE, 0x06: OpBLEZ, 0x07: OpBGTZ,
	0x08: OpADDI, 0x09: OpADDIU, 0x0A: OpSLTI, 0x0B: OpSLTIU,
	0x0C: OpANDI, 0x0D: OpORI, 0x0E: OpXORI, 0x0F: OpLUI,
	0x14: OpBEQL, 0x15: OpBNEL, 0x16: OpBLEZL, 0x17: OpBGTZL,
	0x20: OpLB, 0x21: OpLH, 0x22: OpLWL, 0x23: OpLW,
	0x24: OpLBU, 0x25: OpLHU, 0x26: OpLWR,
	0x28: OpSB, 0x29: OpSH, 0x2A: OpSWL, 0x2B: OpSW, 0x2E: OpSWR,
	0x2F: OpCACHE, 0x30: OpLL, 0x33: OpPREF, 0x38: OpSC,
	0x31: OpLWC1, 0x35: OpLDC1, 0x39: OpSWC1, 0x3D: OpSDC1,
}

var cp0Fixed = map[uint32]OpID{
	0x42000001: OpTLBR,
	0x42000002: OpTLBWI,
	0x42000006: OpTLBWR,
	0x42000008: OpTLBP,
	0x42000018: OpERET,
}

var cp1rs = map[uint32]OpID{
	0x00: OpMFC1, 0x01: OpDMFC1, 0x02: OpCFC1,
	0x04: OpMTC1, 0x05: OpDMTC1, 0x06: OpCTC1,
}

var cp1funct = map[uint32]OpID{
	0x00: OpFPUAdd, 0x01: OpFPUSub, 0x02: OpFPUMul, 0x03: OpFPUDiv,
	0x04: OpFPUSqrt, 0x05: OpFPUAbs, 0x06: OpFPUMov, 0x07: OpFPUNeg,
	0x08: OpFPURound, 0x09: OpFPUTrunc, 0x0A: OpFPUCeil, 0x0B: OpFPUFloor,
	0x0C: OpFPURound, 0x0D: OpFPUTrunc, 0x0E: OpFPUCeil, 0x0F: OpFPUFloor,
	0x20: OpFPUCvtS, 0x21: OpFPUCvtD, 0x24: OpFPUCvtW, 0x25: OpFPUCvtL,
}

// RoundTruncTargetIsWord reports whether a ROUND/TRUNC/CEIL/FLOOR funct
// targets a 32-bit (.w) result rather than a 64-bit (.l) one: the two
// families share the same funct nibble with bit 0x04 as the distinguisher
// (0x08-0x0B are the .l forms, 0x0C-0x0F the .w forms).
func RoundTruncTargetIsWord(funct uint32) bool { return funct&0x04 != 0 }

func isCP1Compare(funct uint32) bool { return funct&0x30 == 0x30 }

func opFlags(id OpID) Flags {
	switch id {
	case OpADD, OpADDU, OpSUB, OpSUBU, OpAND, OpOR, OpXOR, OpNOR, OpSLT, OpSLTU,
		OpMOVZ, OpMOVN, OpMUL, OpTGE, OpTGEU, OpTLT, OpTLTU, OpTEQ, OpTNE,
		OpSLLV, OpSRLV, OpSRAV, OpMULT, OpMULTU, OpDIV, OpDIVU, OpJALR, OpJR,
		OpMTHI, OpMTLO:
		return FlagNeedRS | FlagNeedRT
	case OpSLL, OpSRL, OpSRA, OpADDI, OpADDIU, OpSLTI, OpSLTIU, OpANDI, OpORI,
		OpXORI, OpLUI, OpLB, OpLH, OpLWL, OpLW, OpLBU, OpLHU, OpLWR, OpLL,
		OpSB, OpSH, OpSWL, OpSW, OpSWR, OpSC, OpCACHE, OpPREF, OpMTC0, OpMTC1, OpDMTC1, OpCTC1:
		return FlagNeedRS | FlagNeedRT
	case OpBEQ, OpBNE, OpBEQL, OpBNEL, OpBLEZ, OpBGTZ, OpBLEZL, OpBGTZL,
		OpBLTZ, OpBGEZ, OpBLTZL, OpBGEZL, OpBLTZAL, OpBGEZAL:
		return FlagBranch | FlagNeedRS | FlagNeedRT
	case OpJ, OpJAL, OpBC1F, OpBC1T, OpBC1FL, OpBC1TL:
		return FlagBranch
	case OpFPUAdd, OpFPUSub, OpFPUMul, OpFPUDiv, OpFPUCompare:
		return FlagFPU | FlagNeedFS | FlagNeedFT
	case OpFPUSqrt, OpFPUAbs, OpFPUMov, OpFPUNeg, OpFPURound, OpFPUTrunc,
		OpFPUCeil, OpFPUFloor, OpFPUCvtS, OpFPUCvtD, OpFPUCvtW, OpFPUCvtL:
		return FlagFPU | FlagNeedFS
	case OpLWC1, OpLDC1:
		return FlagLoad | FlagNeedRS
	case OpSWC1, OpSDC1:
		return FlagStore | FlagNeedRS | FlagNeedFT
	}
	switch {
	case id == OpLB || id == OpLH || id == OpLWL || id == OpLW || id == OpLBU || id == OpLHU || id == OpLWR || id == OpLL:
		return FlagLoad | FlagNeedRS
	case id == OpSB || id == OpSH || id == OpSWL || id == OpSW || id == OpSWR || id == OpSC:
		return FlagStore | FlagNeedRS | FlagNeedRT
	}
	return FlagNone
}

// Decode decodes a 32-bit instruction word into an opcode id and its
// hazard flags, following the same layered mask cascade doop.gen.c
// uses: primary opcode, then SPECIAL, then REGIMM, then the
// fixed CP0 table, then MOVZ/MOVN/MUL, then MFC0/MTC0, then WAIT, then
// the COP1 decoder, else reserved instruction. Order matters: earlier cascades take precedence.
func Decode(iw uint32) Opcode {
	if id, ok := decodeByPrimary(iw & 0xFC000000); ok {
		return Opcode{ID: id, Flags: opFlags(id)}
	}
	if iw&0xFC000000 == 0 {
		if id, ok := special[iw&0x3F]; ok {
			return Opcode{ID: id, Flags: opFlags(id)}
		}
	}
	if iw&0xFC000000 == 0x04000000 {
		if id, ok := regimm[(iw>>16)&0x1F]; ok {
			return Opcode{ID: id, Flags: opFlags(id)}
		}
	}
	if id, ok := cp0Fixed[iw]; ok {
		return Opcode{ID: id, Flags: opFlags(id)}
	}
	if iw&0xFC0007FF == 0x0000000A {
		return Opcode{ID: OpMOVZ, Flags: opFlags(OpMOVZ)}
	}
	if iw&0xFC0007FF == 0x0000000B {
		return Opcode{ID: OpMOVN, Flags: opFlags(OpMOVN)}
	}
	if iw&0xFC0007FF == 0x70000002 {
		return Opcode{ID: OpMUL, Flags: opFlags(OpMUL)}
	}
	if iw&0xFFE00000 == 0x40000000 {
		return Opcode{ID: OpMFC0, Flags: opFlags(OpMFC0)}
	}
	if iw&0xFFE00000 == 0x40800000 {
		return Opcode{ID: OpMTC0, Flags: opFlags(OpMTC0)}
	}
	if iw&0xFE00003F == 0x42000020 {
		return Opcode{ID: OpWAIT, Flags: FlagNone}
	}
	if (iw>>26)&0x3F == 0x11 {
		return decodeCP1(iw)
	}
	return Opcode{ID: OpReserved, Flags: FlagNone}
}

func decodeByPrimary(maskedPrimary uint32) (OpID, bool) {
	op := maskedPrimary >> 26
	id, ok := primary[op]
	return id, ok
}

func decodeCP1(iw uint32) Opcode {
	rs := (iw >> 21) & 0x1F

	if rs == 0x08 { // BC
		tf := (iw >> 16) & 0x3
		var id OpID
		switch tf {
		case 0:
			id = OpBC1F
		case 1:
			id = OpBC1T
		case 2:
			id = OpBC1FL
		case 3:
			id = OpBC1TL
		}
		return Opcode{ID: id, Flags: opFlags(id)}
	}

	if id, ok := cp1rs[rs]; ok {
		return Opcode{ID: id, Flags: opFlags(id)}
	}

	// S/D/W/L formatted arithmetic, dispatched by funct.
	funct := iw & 0x3F
	if isCP1Compare(funct) {
		return Opcode{ID: OpFPUCompare, Flags: opFlags(OpFPUCompare)}
	}
	if id, ok := cp1funct[funct]; ok {
		return Opcode{ID: id, Flags: opFlags(id)}
	}

	return Opcode{ID: OpReserved, Flags: FlagNone}
}
