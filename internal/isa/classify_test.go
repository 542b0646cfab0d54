package isa

import (
	"testing"

	"github.com/pulp-platform/trdb/internal/rvt"
)

func TestClassifyBranch(t *testing.T) {
	// beq x1, x2, +0: opcode=0x63, funct3=0
	word := uint32(0x00208063) // beq x1,x2,0 (funct3=0)
	c := Classifier{}.Classify(word)
	if !c.IsBranch || c.InstrLen != 4 {
		t.Errorf("beq: got %+v", c)
	}
}

func TestClassifyJAL(t *testing.T) {
	// jal x1, 0 -> rd=1 (ra): should be a call
	word := uint32(0x000000ef) | (1 << 7)
	c := Classifier{}.Classify(word)
	if c.RAS != rvt.RASCall {
		t.Errorf("jal ra: expected RASCall, got %v", c.RAS)
	}
}

func TestClassifyJALRRet(t *testing.T) {
	// jalr x0, 0(x1): rd=0, rs1=1, funct3=0 -> ret form
	word := uint32(0x00008067)
	c := Classifier{ImplicitRet: true}.Classify(word)
	if c.RAS != rvt.RASRet {
		t.Errorf("jalr ret: expected RASRet with ImplicitRet, got %v", c.RAS)
	}
	c2 := Classifier{ImplicitRet: false}.Classify(word)
	if c2.RAS == rvt.RASRet || !c2.IsUnpredDisc {
		t.Errorf("jalr ret without ImplicitRet must be a plain unpredictable discontinuity, got %+v", c2)
	}
}

func TestClassifyMret(t *testing.T) {
	// mret/sret/uret are trap returns, not call/ret pairs: their target
	// must come from the packet stream (spec.md line 142), never the RAS.
	c := Classifier{}.Classify(0x30200073)
	if !c.IsUnpredDisc || c.RAS != rvt.RASNone {
		t.Errorf("mret: got %+v", c)
	}
}

func TestClassifyCompressedBeqz(t *testing.T) {
	// c.beqz x8, 0: quadrant=1, funct3=6
	word := uint32(0xc001)
	c := Classifier{}.Classify(word)
	if !c.IsBranch || !c.Compressed || c.InstrLen != 2 {
		t.Errorf("c.beqz: got %+v", c)
	}
}

func TestClassifyPulpHardwareLoopUnsupported(t *testing.T) {
	// custom-0 opcode with an unmapped funct3 (not p.beqimm/p.bneimm).
	word := uint32(0x0000000b) // opcode 0x0b, funct3=0
	c := Classifier{}.Classify(word)
	if !c.IsUnsupported {
		t.Errorf("hardware-loop setup form: expected IsUnsupported, got %+v", c)
	}
}
