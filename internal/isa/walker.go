package isa

import (
	"encoding/binary"

	"github.com/pulp-platform/trdb/internal/rvt"
)

// Walker implements rvt.ProgramWalker by combining a Classifier with an
// rvt.ObjectFile byte source. It is the concrete collaborator the decoder's
// state machine walks against (spec.md §4.6).
type Walker struct {
	Image      rvt.ObjectFile
	Classifier Classifier
}

func NewWalker(image rvt.ObjectFile, implicitRet bool) *Walker {
	return &Walker{Image: image, Classifier: Classifier{ImplicitRet: implicitRet}}
}

// ReadBytes forwards to the backing object file.
func (w *Walker) ReadBytes(pc uint64, n int) ([]byte, error) {
	return w.Image.ReadBytes(pc, n)
}

// Disassemble reads the instruction at pc, classifies it, and — for
// statically resolvable control transfers — computes its target address.
func (w *Walker) Disassemble(pc uint64) (rvt.DisasmResult, error) {
	raw, err := w.Image.ReadBytes(pc, 2)
	if err != nil {
		return rvt.DisasmResult{}, err
	}
	half := binary.LittleEndian.Uint16(raw)
	size := 4
	var word uint32
	if half&0x3 != 3 {
		size = 2
		word = uint32(half)
	} else {
		full, err := w.Image.ReadBytes(pc, 4)
		if err != nil {
			return rvt.DisasmResult{}, err
		}
		word = binary.LittleEndian.Uint32(full)
	}

	cls := w.Classifier.Classify(word)
	res := rvt.DisasmResult{Size: size, Class: cls}

	switch {
	case cls.IsUnsupported:
		res.Type = rvt.InsnNonInsn
	case cls.IsBranch:
		res.Type = rvt.InsnCondBranch
		res.Target = branchTarget(pc, word, size)
	case cls.IsUnpredDisc:
		res.Type = rvt.InsnJSR
	case cls.RAS == rvt.RASCall:
		res.Type = rvt.InsnJSR
		res.Target = jalTarget(pc, word, size)
	case cls.RAS == rvt.RASRet || cls.RAS == rvt.RASCoRet:
		// An implicit-ret-eligible ret/coret clears is_unpred_disc (spec.md
		// §4.1) but still needs the decoder's RAS resolution rather than a
		// natural fall-through.
		res.Type = rvt.InsnJSR
	case (size == 4 && word&0x7f == 0x6f) || (size == 2 && word&0x3 == 0x1 && (word>>13)&0x7 == 0x5):
		// jal without a link register (j) and c.j: no RAS effect, but the
		// target is still known statically.
		res.Type = rvt.InsnJSR
		res.Target = jalTarget(pc, word, size)
	default:
		res.Type = rvt.InsnNonBranch
	}
	return res, nil
}

// branchTarget computes the PC-relative target of a conditional branch
// (B-type for 32-bit forms, CB-type for C.BEQZ/C.BNEZ).
func branchTarget(pc uint64, word uint32, size int) uint64 {
	if size == 2 {
		imm := cbImm(uint16(word))
		return uint64(int64(pc) + int64(imm))
	}
	imm := bImm(word)
	return uint64(int64(pc) + int64(imm))
}

func jalTarget(pc uint64, word uint32, size int) uint64 {
	if size == 2 {
		imm := cjImm(uint16(word))
		return uint64(int64(pc) + int64(imm))
	}
	imm := jImm(word)
	return uint64(int64(pc) + int64(imm))
}

func bImm(w uint32) int32 {
	imm := ((w >> 31) & 0x1) << 12
	imm |= ((w >> 7) & 0x1) << 11
	imm |= ((w >> 25) & 0x3f) << 5
	imm |= ((w >> 8) & 0xf) << 1
	return signExtend32(imm, 13)
}

func jImm(w uint32) int32 {
	imm := ((w >> 31) & 0x1) << 20
	imm |= ((w >> 12) & 0xff) << 12
	imm |= ((w >> 20) & 0x1) << 11
	imm |= ((w >> 21) & 0x3ff) << 1
	return signExtend32(imm, 21)
}

func cbImm(w uint16) int32 {
	u := uint32(w)
	imm := ((u >> 12) & 0x1) << 8
	imm |= ((u >> 10) & 0x3) << 3
	imm |= ((u >> 5) & 0x3) << 6
	imm |= ((u >> 3) & 0x3) << 1
	imm |= ((u >> 2) & 0x1) << 5
	return signExtend32(imm, 9)
}

func cjImm(w uint16) int32 {
	u := uint32(w)
	imm := ((u >> 12) & 0x1) << 11
	imm |= ((u >> 11) & 0x1) << 4
	imm |= ((u >> 9) & 0x3) << 8
	imm |= ((u >> 8) & 0x1) << 10
	imm |= ((u >> 7) & 0x1) << 6
	imm |= ((u >> 6) & 0x1) << 7
	imm |= ((u >> 3) & 0x7) << 1
	imm |= ((u >> 2) & 0x1) << 5
	return signExtend32(imm, 12)
}

func signExtend32(val uint32, bits int) int32 {
	shift := 32 - uint(bits)
	return int32(val<<shift) >> shift
}
