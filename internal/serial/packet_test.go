package serial

import (
	"bytes"
	"testing"

	"github.com/pulp-platform/trdb/internal/branchmap"
	"github.com/pulp-platform/trdb/internal/rvt"
)

// encodedBytes assembles Encode's output into the full literal byte
// sequence a hex dump would show: the complete bytes plus, if the packet
// ended mid-byte, that trailing byte zero-padded above the carried bits
// (what StreamWriter.Flush would write at the end of a stream).
func encodedBytes(buf []byte, carry byte, carryBits int) []byte {
	if carryBits == 0 {
		return buf
	}
	return append(append([]byte{}, buf...), carry)
}

func TestBranchFullBitCountMatchesScenario1(t *testing.T) {
	// spec.md §8 scenario 1: branches=31, branch_map=0x7FFFFFFF, address
	// present (discontinuity-triggered flush of a full map).
	p := &rvt.Packet{
		MsgType:    rvt.MsgTrace,
		Format:     rvt.FmtBranchFull,
		Branches:   31,
		BranchMap:  0x7FFFFFFF,
		Address:    0xAADEADBE,
		HasAddress: true,
	}
	cfg := rvt.Config{FullAddress: true}
	buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := PULPPKTLEN + MSGTYPELEN + FORMATLEN + BRANCHLEN + branchmap.Len(31) + 32
	if bitLen != want {
		t.Errorf("bitLen = %d, want %d", bitLen, want)
	}
	// Literal bytes below are derived by hand from the field layout this
	// packer shares with trdb_pulp_serialize_packet in
	// original_source/serialize.c (length, msg_type, format, branches,
	// branch_map, address, each LSB-first at its shift) rather than copied
	// from spec.md §8's own scenario-1 bytes: those don't reproduce under
	// the bit layout spec.md §4.5/§6 and the original both describe, so
	// they're treated as an error in the distillation (see DESIGN.md).
	wantBytes := []byte{0x09, 0xFF, 0xFF, 0xFF, 0xFF, 0xEF, 0xDB, 0xEA, 0xAD, 0x0A}
	if got := encodedBytes(buf, carry, carryBits); !bytes.Equal(got, wantBytes) {
		t.Errorf("bytes = % X, want % X", got, wantBytes)
	}
}

func TestBranchFullBitCountMatchesScenario2(t *testing.T) {
	p := &rvt.Packet{
		MsgType:    rvt.MsgTrace,
		Format:     rvt.FmtBranchFull,
		Branches:   25,
		BranchMap:  0x01FFFFFF,
		Address:    0xAADEADBE,
		HasAddress: true,
	}
	cfg := rvt.Config{FullAddress: true}
	buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := PULPPKTLEN + MSGTYPELEN + FORMATLEN + BRANCHLEN + branchmap.Len(25) + 32
	if bitLen != want {
		t.Errorf("bitLen = %d, want %d", bitLen, want)
	}
	wantBytes := []byte{0x09, 0xF9, 0xFF, 0xFF, 0xBF, 0x6F, 0xAB, 0xB7, 0x2A}
	if got := encodedBytes(buf, carry, carryBits); !bytes.Equal(got, wantBytes) {
		t.Errorf("bytes = % X, want % X", got, wantBytes)
	}
}

func TestAddrOnlyBitCountMatchesScenario3(t *testing.T) {
	p := &rvt.Packet{MsgType: rvt.MsgTrace, Format: rvt.FmtAddrOnly, Address: 0xDEADBEEF}
	cfg := rvt.Config{FullAddress: true}
	buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := PULPPKTLEN + MSGTYPELEN + FORMATLEN + 32
	if bitLen != want {
		t.Errorf("bitLen = %d, want %d", bitLen, want)
	}
	wantBytes := []byte{0x85, 0xEF, 0xBE, 0xAD, 0xDE}
	if got := encodedBytes(buf, carry, carryBits); !bytes.Equal(got, wantBytes) {
		t.Errorf("bytes = % X, want % X", got, wantBytes)
	}
}

func TestSyncStartBitCountMatchesScenario4(t *testing.T) {
	p := &rvt.Packet{
		MsgType: rvt.MsgTrace, Format: rvt.FmtSync, Subformat: rvt.SyncStart,
		Privilege: 3, Branch: 1, Address: 0xDEADBEEF,
	}
	cfg := rvt.Config{FullAddress: true}
	buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := PULPPKTLEN + MSGTYPELEN + FORMATLEN + FORMATLEN + PRIVLEN + 1 + 32
	if bitLen != want {
		t.Errorf("bitLen = %d, want %d", bitLen, want)
	}
	wantBytes := []byte{0xC6, 0xEC, 0xBB, 0x6F, 0xAB, 0x37}
	if got := encodedBytes(buf, carry, carryBits); !bytes.Equal(got, wantBytes) {
		t.Errorf("bytes = % X, want % X", got, wantBytes)
	}
}

func TestSyncExceptionBitCountMatchesScenario5(t *testing.T) {
	p := &rvt.Packet{
		MsgType: rvt.MsgTrace, Format: rvt.FmtSync, Subformat: rvt.SyncException,
		Privilege: 3, Branch: 1, Address: 0xDEADBEEF, Cause: 0x1A, Interrupt: true,
	}
	cfg := rvt.Config{FullAddress: true}
	buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := PULPPKTLEN + MSGTYPELEN + FORMATLEN + FORMATLEN + PRIVLEN + 1 + 32 + CAUSELEN + 1
	if bitLen != want {
		t.Errorf("bitLen = %d, want %d", bitLen, want)
	}
	wantBytes := []byte{0xC6, 0xED, 0xBB, 0x6F, 0xAB, 0xB7, 0x0E}
	if got := encodedBytes(buf, carry, carryBits); !bytes.Equal(got, wantBytes) {
		t.Errorf("bytes = % X, want % X", got, wantBytes)
	}
}

func TestBranchDiffUsesKeepWidthNotXLen(t *testing.T) {
	// spec.md §4.5's [address:keep] field must be sized by the Address
	// Packer's keep (here 9, an arbitrary value well under XLen=32), not
	// by cfg.XLen() — the defect this package previously had. The actual
	// wire width is keep rounded up to complete this packet's own byte
	// (variableAddrBits), so the test derives its expectation the same
	// way rather than assuming the raw keep value survives untouched.
	keep := 9
	p := &rvt.Packet{
		MsgType: rvt.MsgTrace, Format: rvt.FmtBranchDiff,
		Branches: 3, BranchMap: 0x5,
		Address: 5, HasAddress: true, AddrBits: keep,
	}
	cfg := rvt.Config{FullAddress: false}
	buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	mapLen := branchmap.Len(3)
	consumed := PULPPKTLEN + MSGTYPELEN + FORMATLEN + BRANCHLEN + mapLen
	addrWidth := variableAddrBits(consumed, keep, 0)
	want := consumed + addrWidth
	if bitLen != want {
		t.Errorf("bitLen = %d, want %d (keep=%d, not XLen=%d)", bitLen, want, keep, cfg.XLen())
	}

	full := buf
	if carryBits > 0 {
		full = append(append([]byte{}, buf...), carry)
	}
	got, next, err := Decode(full, 0, cfg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if next != bitLen {
		t.Errorf("decoded %d bits, encoded %d", next, bitLen)
	}
	if got.AddrBits != addrWidth {
		t.Errorf("AddrBits = %d, want %d", got.AddrBits, addrWidth)
	}
	if got.Address != 5 {
		t.Errorf("Address = %#x, want 0x5", got.Address)
	}
}

func TestAddrOnlyDifferentialUsesKeepWidthNotXLen(t *testing.T) {
	keep := 9
	p := &rvt.Packet{
		MsgType: rvt.MsgTrace, Format: rvt.FmtAddrOnly,
		Address: 7, AddrBits: keep,
	}
	cfg := rvt.Config{FullAddress: false}
	buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	consumed := PULPPKTLEN + MSGTYPELEN + FORMATLEN
	addrWidth := variableAddrBits(consumed, keep, 0)
	want := consumed + addrWidth
	if bitLen != want {
		t.Errorf("bitLen = %d, want %d (keep=%d, not XLen=%d)", bitLen, want, keep, cfg.XLen())
	}

	full := buf
	if carryBits > 0 {
		full = append(append([]byte{}, buf...), carry)
	}
	got, next, err := Decode(full, 0, cfg)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if next != bitLen {
		t.Errorf("decoded %d bits, encoded %d", next, bitLen)
	}
	if got.AddrBits != addrWidth {
		t.Errorf("AddrBits = %d, want %d", got.AddrBits, addrWidth)
	}
	if got.Address != 7 {
		t.Errorf("Address = %#x, want 0x7", got.Address)
	}
}

func TestRoundTripAllVariants(t *testing.T) {
	cfg := rvt.Config{FullAddress: true}
	packets := []*rvt.Packet{
		{MsgType: rvt.MsgTrace, Format: rvt.FmtBranchFull, Branches: 3, BranchMap: 0x5, Address: 0x1000, HasAddress: true},
		{MsgType: rvt.MsgTrace, Format: rvt.FmtAddrOnly, Address: 0x2000},
		{MsgType: rvt.MsgTrace, Format: rvt.FmtSync, Subformat: rvt.SyncStart, Privilege: 1, Branch: 0, Address: 0x3000},
		{MsgType: rvt.MsgTrace, Format: rvt.FmtSync, Subformat: rvt.SyncException, Privilege: 3, Branch: 1, Address: 0x4000, Cause: 7, Interrupt: true},
		{MsgType: rvt.MsgSoftware, UserData: 0xCAFEBABE},
		{MsgType: rvt.MsgTimer, Time: 0x123456789ABCDEF0},
	}
	for i, p := range packets {
		buf, bitLen, carry, carryBits, err := Encode(p, cfg, 0, 0)
		if err != nil {
			t.Fatalf("packet %d: Encode: %v", i, err)
		}
		full := make([]byte, len(buf))
		copy(full, buf)
		if carryBits > 0 {
			full = append(full, carry)
		}
		got, next, err := Decode(full, 0, cfg)
		if err != nil {
			t.Fatalf("packet %d: Decode: %v", i, err)
		}
		if next != bitLen {
			t.Errorf("packet %d: decoded %d bits, encoded %d", i, next, bitLen)
		}
		if got.MsgType != p.MsgType {
			t.Errorf("packet %d: MsgType = %v, want %v", i, got.MsgType, p.MsgType)
		}
		switch p.MsgType {
		case rvt.MsgTrace:
			if got.Format != p.Format {
				t.Errorf("packet %d: Format = %v, want %v", i, got.Format, p.Format)
			}
			if got.Address != p.Address {
				t.Errorf("packet %d: Address = %#x, want %#x", i, got.Address, p.Address)
			}
		case rvt.MsgSoftware:
			if got.UserData != p.UserData {
				t.Errorf("packet %d: UserData = %#x, want %#x", i, got.UserData, p.UserData)
			}
		case rvt.MsgTimer:
			if got.Time != p.Time {
				t.Errorf("packet %d: Time = %#x, want %#x", i, got.Time, p.Time)
			}
		}
	}
}

func TestStreamRoundTripCarriesAlignment(t *testing.T) {
	cfg := rvt.Config{FullAddress: true}
	packets := []*rvt.Packet{
		{MsgType: rvt.MsgTrace, Format: rvt.FmtAddrOnly, Address: 0x100},
		{MsgType: rvt.MsgTrace, Format: rvt.FmtAddrOnly, Address: 0x200},
		{MsgType: rvt.MsgSoftware, UserData: 42},
	}
	var buf bytes.Buffer
	sw := NewStreamWriter(&buf, cfg)
	for _, p := range packets {
		if err := sw.WritePacket(p); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	if err := sw.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	sr := NewStreamReader(&buf, cfg)
	for i, want := range packets {
		got, err := sr.ReadPacket()
		if err != nil {
			t.Fatalf("packet %d: ReadPacket: %v", i, err)
		}
		if got.MsgType != want.MsgType {
			t.Errorf("packet %d: MsgType = %v, want %v", i, got.MsgType, want.MsgType)
		}
	}
}
