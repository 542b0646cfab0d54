// Package isa is the reference RV32/64GC instruction classifier and
// program walker named in spec.md §4.1 and §6: a concrete implementation of
// the encoder/decoder's external collaborator contracts, used by tests and
// by cmd/trdb so the core packages are exercised without a live simulator.
package isa

import "github.com/pulp-platform/trdb/internal/rvt"

// Classifier implements rvt.Classifier for the RV32I/RV64I/RVC/PULP-custom
// control-flow subset named in SPEC_FULL.md §3.
type Classifier struct {
	ImplicitRet bool
}

// Classify answers the Instruction Classifier contract of spec.md §4.1 for
// one raw instruction word. When c.ImplicitRet is set, ret-shaped
// instructions are reported as RASRet (predictable via the return-address
// stack) rather than as a plain unpredictable discontinuity.
func (c Classifier) Classify(word uint32) rvt.Classification {
	if isCompressed(word) {
		return classifyCompressed(uint16(word), c.ImplicitRet)
	}
	return classifyBase(word, c.ImplicitRet)
}

func isCompressed(word uint32) bool {
	return word&0x3 != 3
}

// classifyBase handles the 32-bit RV32I/RV64I/PULP-custom encodings.
func classifyBase(w uint32, implicitRet bool) rvt.Classification {
	opcode := w & 0x7f
	funct3 := (w >> 12) & 0x7
	rd := (w >> 7) & 0x1f
	rs1 := (w >> 15) & 0x1f

	switch opcode {
	case 0x63: // BRANCH: beq, bne, blt, bge, bltu, bgeu
		return rvt.Classification{IsBranch: true, InstrLen: 4}
	case 0x6f: // JAL
		ras := rvt.RASNone
		if rd == 1 || rd == 5 {
			ras = rvt.RASCall
		}
		return rvt.Classification{RAS: ras, InstrLen: 4}
	case 0x67: // JALR
		if funct3 != 0 {
			return rvt.Classification{IsUnsupported: true, InstrLen: 4}
		}
		ras := rasKindForJALR(rd, rs1, implicitRet)
		return rvt.Classification{IsUnpredDisc: ras != rvt.RASRet, RAS: ras, InstrLen: 4}
	case 0x73: // SYSTEM: mret/sret/uret live here
		switch w {
		case 0x30200073, 0x10200073, 0x00200073: // mret, sret, uret
			// Target comes from the packet stream, never the RAS (spec.md
			// line 142): these are trap returns, not call/ret pairs, so
			// there is no matching call frame to pop.
			return rvt.Classification{IsUnpredDisc: true, RAS: rvt.RASNone, InstrLen: 4}
		}
		return rvt.Classification{InstrLen: 4}
	case 0x0b: // PULP custom-0: p.bneimm / p.beqimm and hardware-loop setup
		return classifyPulpCustom0(funct3)
	case 0x2b: // PULP custom-1: hardware-loop body forms, unsupported here
		return rvt.Classification{IsUnsupported: true, InstrLen: 4}
	default:
		return rvt.Classification{InstrLen: 4}
	}
}

// rasKindForJALR distinguishes ret (rd=x0, rs1=x1/x5, no link) from a plain
// call-through-register or an indirect call-and-return.
func rasKindForJALR(rd, rs1 uint32, implicitRet bool) rvt.RASKind {
	isLink := rd == 1 || rd == 5
	isRetReg := rs1 == 1 || rs1 == 5
	switch {
	case !isLink && isRetReg && implicitRet:
		return rvt.RASRet
	case isLink && isRetReg:
		return rvt.RASCoRet
	case isLink:
		return rvt.RASCall
	default:
		return rvt.RASNone
	}
}

// classifyPulpCustom0 distinguishes p.bneimm/p.beqimm (treated as ordinary
// conditional branches) from the hardware-loop setup forms (lp.setup,
// lp.starti, lp.endi, lp.count, lp.counti), which spec.md §1/§4.1 mark as
// explicitly unsupported rather than silently mis-encoded.
func classifyPulpCustom0(funct3 uint32) rvt.Classification {
	switch funct3 {
	case 0x6, 0x7: // p.beqimm, p.bneimm (PULP ISA extension encodings)
		return rvt.Classification{IsBranch: true, InstrLen: 4}
	default:
		return rvt.Classification{IsUnsupported: true, InstrLen: 4}
	}
}

// classifyCompressed handles the 16-bit RVC quadrants relevant to control
// flow: C.BEQZ, C.BNEZ, C.J, C.JAL, C.JR, C.JALR.
func classifyCompressed(w uint16, implicitRet bool) rvt.Classification {
	quadrant := w & 0x3
	funct3 := (w >> 13) & 0x7
	rd := (w >> 7) & 0x1f // rs1/rd field for CR/CI forms
	rs2 := (w >> 2) & 0x1f

	switch quadrant {
	case 0x1:
		switch funct3 {
		case 0x6, 0x7: // C.BEQZ, C.BNEZ
			return rvt.Classification{IsBranch: true, Compressed: true, InstrLen: 2}
		case 0x5: // C.J
			return rvt.Classification{Compressed: true, InstrLen: 2}
		case 0x1: // C.JAL (RV32C only)
			return rvt.Classification{RAS: rvt.RASCall, Compressed: true, InstrLen: 2}
		}
	case 0x2:
		if funct3 == 0x4 && rs2 == 0 && rd != 0 {
			// C.JR / C.JALR share this encoding, split by bit 12.
			if w&0x1000 == 0 {
				ras := rvt.RASNone
				if implicitRet && (rd == 1 || rd == 5) {
					ras = rvt.RASRet
				}
				return rvt.Classification{IsUnpredDisc: ras != rvt.RASRet, RAS: ras, Compressed: true, InstrLen: 2}
			}
			return rvt.Classification{IsUnpredDisc: true, RAS: rvt.RASCall, Compressed: true, InstrLen: 2}
		}
	}
	return rvt.Classification{Compressed: true, InstrLen: 2}
}
