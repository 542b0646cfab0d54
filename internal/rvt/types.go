package rvt

// Instr is one retired-instruction record as produced by the CPU model or a
// functional simulator. The encoder stores at most three of these at a time
// (its sliding window); ownership of the backing sequence stays with the
// caller.
type Instr struct {
	Valid      bool
	Exception  bool
	Interrupt  bool
	Cause      uint8  // 5 bits
	Tval       uint64 // kept in the model, never serialized (spec open question b)
	Priv       uint8  // 3 bits
	IAddr      uint64
	Instr      uint64 // up to 64 bits
	Compressed bool
}

// InstrLen returns the effective length in bytes of the instruction word:
// 2 when Compressed is set, otherwise 4. 6- and 8-byte lengths are not
// produced.
func (i Instr) InstrLen() uint64 {
	if i.Compressed {
		return 2
	}
	return 4
}

// RASKind classifies an instruction's effect on the decoder's return-address
// stack.
type RASKind int

const (
	RASNone RASKind = iota
	RASCall
	RASRet
	RASCoRet // call-and-return: pop then push
)

// InsnType is the disassembler's classification of an instruction for static
// prediction, mirroring the external Program Walker contract of spec.md §6.
type InsnType int

const (
	InsnNonBranch InsnType = iota
	InsnJSR
	InsnBranch
	InsnCondBranch
	InsnDRef
	InsnDRef2
	InsnCondJSR
	InsnNonInsn
)

// MsgType is the top-level packet tag.
type MsgType uint8

const (
	MsgTrace MsgType = iota
	MsgSoftware
	MsgTimer
)

// TraceFormat tags a Trace packet's variant.
type TraceFormat uint8

const (
	FmtBranchFull TraceFormat = iota
	FmtBranchDiff
	FmtAddrOnly
	FmtSync
)

// SyncSubformat tags a SYNC packet's variant.
type SyncSubformat uint8

const (
	SyncStart SyncSubformat = iota
	SyncException
	SyncContext
)

// Packet is the tagged-variant wire packet described by spec.md §3/§4.5.
// Only the fields relevant to MsgType/Format/Subformat are meaningful; the
// rest are left at their zero value. BitLen is the packet's body length in
// bits, filled in by serial.Encode (which the encoder runs for its stats)
// and by serial.Decode; Encode recomputes it from the fields each time
// rather than reading it.
type Packet struct {
	MsgType MsgType
	BitLen  int

	// Trace packet fields.
	Format     TraceFormat
	Branches   uint32 // 0..31
	BranchMap  uint32 // <=31 bits
	Address    uint64 // absolute or differential depending on Format/config
	HasAddress bool   // false for the "full map, no address" BRANCH_FULL case
	AddrBits   int    // wire width of Address, set by the Address Packer

	// SYNC fields.
	Subformat SyncSubformat
	Privilege uint8 // 3 bits
	Branch    uint8 // branch-at-address bit (SYNC/START, SYNC/EXCEPTION)
	Cause     uint8 // 5 bits (SYNC/EXCEPTION)
	Interrupt bool  // (SYNC/EXCEPTION)

	// Software / Timer fields.
	UserData uint32
	Time     uint64
}

// Config carries every runtime option named in spec.md §6. There are no
// hidden defaults: every field must be set explicitly by the caller.
type Config struct {
	Arch64                 bool
	FullAddress            bool
	UsePulpSext            bool
	ImplicitRet            bool
	PulpVectorTablePacket  bool
	CompressFullBranchMap  bool
	ResyncMax              uint64
}

// XLen returns the configured address width in bits.
func (c Config) XLen() int {
	if c.Arch64 {
		return 64
	}
	return 32
}

// Stats accumulates the counters described in spec.md §3.
type Stats struct {
	PacketsByFormat  map[TraceFormat]uint64
	SyncBySubformat  map[SyncSubformat]uint64
	SoftwarePackets  uint64
	TimerPackets     uint64
	PayloadBits      uint64
	Instructions     uint64
	AllZeroAddrs     uint64
	AllOneAddrs      uint64
	SextHistogram    [65]uint64 // index = sign-extendable-bit count, 0..64
}

// NewStats returns a zeroed Stats with its maps initialized.
func NewStats() *Stats {
	return &Stats{
		PacketsByFormat: make(map[TraceFormat]uint64),
		SyncBySubformat: make(map[SyncSubformat]uint64),
	}
}

func (s *Stats) recordPacket(p *Packet) {
	switch p.MsgType {
	case MsgTrace:
		s.PacketsByFormat[p.Format]++
		if p.Format == FmtSync {
			s.SyncBySubformat[p.Subformat]++
		}
	case MsgSoftware:
		s.SoftwarePackets++
	case MsgTimer:
		s.TimerPackets++
	}
	s.PayloadBits += uint64(p.BitLen)
}

func (s *Stats) recordAddress(addr uint64, xlen int) {
	if addr == 0 {
		s.AllZeroAddrs++
	}
	mask := uint64(1)<<uint(xlen) - 1
	if xlen == 64 {
		mask = ^uint64(0)
	}
	if addr&mask == mask {
		s.AllOneAddrs++
	}
}

func (s *Stats) recordSext(bits int) {
	if bits < 0 {
		bits = 0
	}
	if bits > 64 {
		bits = 64
	}
	s.SextHistogram[bits]++
}

// RecordPacket is the public hook the encoder calls after every emission.
func (s *Stats) RecordPacket(p *Packet, addr uint64, xlen int, sextBits int) {
	s.recordPacket(p)
	s.recordAddress(addr, xlen)
	s.recordSext(sextBits)
	s.Instructions++
}
