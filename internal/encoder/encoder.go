// Package encoder implements the Encoder State Machine of spec.md §4.4: a
// pure step function that folds one new instruction record into a
// three-slot sliding window and optionally emits a packet, mirroring
// trdb_compress_trace_step's decision order in
// original_source/trace_debugger.c without its callback-driven suspension.
package encoder

import (
	"github.com/pulp-platform/trdb/internal/addrpack"
	"github.com/pulp-platform/trdb/internal/branchmap"
	"github.com/pulp-platform/trdb/internal/rvt"
	"github.com/pulp-platform/trdb/internal/serial"
)

// windowSlot is one position of the encoder's {last, this, next} window.
// Qualified, PrivilegeChange, UnpredDisc and EmittedExceptionSync are
// derived once when a slot is filled or processed and then travel with it
// as the window shifts, per spec.md §3's "Encoder state" paragraph.
type windowSlot struct {
	Instr                rvt.Instr
	Qualified            bool
	PrivilegeChange      bool
	UnpredDisc           bool
	EmittedExceptionSync bool
}

// Encoder holds all mutable state for one trace stream. It is not safe for
// concurrent use; callers processing multiple streams need one Encoder per
// stream (spec.md §5).
type Encoder struct {
	cfg        rvt.Config
	classifier rvt.Classifier
	stats      *rvt.Stats
	log        rvt.Logger

	last, this, next windowSlot
	acc              branchmap.Accumulator
	lastPacketAddr   uint64

	seenFirstQualified bool
	havePriv           bool
	lastPriv           uint8

	resyncPending bool
	resyncCount   uint64
}

// New returns an Encoder ready to accept its first instruction. A nil
// logger is legal and silently dropped (SPEC_FULL.md §2); pass a
// *rvt.StdLogger to see Info/Warning on resync and recoverable events and
// Error before a fatal return.
func New(cfg rvt.Config, classifier rvt.Classifier, logger rvt.Logger) *Encoder {
	if logger == nil {
		logger = rvt.NewNoOpLogger()
	}
	return &Encoder{cfg: cfg, classifier: classifier, stats: rvt.NewStats(), log: logger}
}

// Stats returns the running statistics accumulated across every emitted
// packet.
func (e *Encoder) Stats() *rvt.Stats { return e.stats }

// Step folds one new instruction record into the window and returns the
// packet produced, if any. A nil packet with a nil error means the window
// has not yet filled enough to decide (including the "next is invalid,
// freeze" case of spec.md §4.4 step 2).
func (e *Encoder) Step(instr rvt.Instr) (*rvt.Packet, error) {
	newSlot := windowSlot{Instr: instr, Qualified: instr.Valid}
	if newSlot.Qualified {
		if e.havePriv && instr.Priv != e.lastPriv {
			newSlot.PrivilegeChange = true
		}
		e.lastPriv = instr.Priv
		e.havePriv = true
	}

	e.last = e.this
	e.this = e.next
	e.next = newSlot

	if !e.next.Qualified {
		return nil, nil
	}

	if e.this.Qualified {
		cls := e.classifier.Classify(instrWord(e.this.Instr))
		if cls.IsUnsupported {
			e.log.Logf(rvt.SeverityError, "unsupported instruction form at 0x%x", e.this.Instr.IAddr)
			return nil, rvt.NewErrorMsg(rvt.ErrBadInstr, "unsupported instruction form")
		}
		e.this.UnpredDisc = cls.IsUnpredDisc
		if cls.IsBranch {
			taken := e.this.Instr.IAddr+e.this.Instr.InstrLen() != e.next.Instr.IAddr
			e.acc.Update(taken)
		}
		e.resyncCount++
		if e.cfg.ResyncMax > 0 && e.resyncCount >= e.cfg.ResyncMax {
			e.log.Warning("resync_max reached, scheduling a forced SYNC/START")
			e.resyncPending = true
			e.resyncCount = 0
		}
	}

	pkt, err := e.decide()
	if err != nil {
		return nil, err
	}
	if pkt != nil {
		e.recordStats(pkt)
	}
	return pkt, nil
}

func instrWord(i rvt.Instr) uint32 { return uint32(i.Instr) }

// Finish drains the window's last buffered instruction once the caller has
// no more records to feed. Step's own "next invalid, freeze" rule (spec.md
// §4.4 step 2) means the final instruction of any stream never reaches the
// decision table through Step alone, since it first arrives as `next` and
// there is no further lookahead to confirm it; Finish performs that last
// shift directly and, if anything is still unreported to the decoder (an
// open branch map, or a final instruction whose address was never sent),
// emits the closing flush so the iaddr sequence round-trips to the end of
// the stream.
func (e *Encoder) Finish() (*rvt.Packet, error) {
	e.last = e.this
	e.this = e.next
	e.next = windowSlot{}

	if !e.this.Qualified {
		return nil, nil
	}

	var pkt *rvt.Packet
	switch {
	case e.last.Qualified && e.last.Instr.Exception:
		pkt = e.emitExceptionSync()
	case e.shouldSyncStart():
		pkt = e.emitSyncStart()
	case e.last.Qualified && e.last.UnpredDisc:
		pkt = e.flush(true)
	default:
		pkt = e.flush(false)
	}
	e.recordStats(pkt)
	return pkt, nil
}

// decide applies the emit decision table of spec.md §4.4 in priority order;
// the first matching row produces the packet for this step.
func (e *Encoder) decide() (*rvt.Packet, error) {
	if e.last.Qualified && e.last.Instr.Exception {
		return e.emitExceptionSync(), nil
	}
	if e.last.EmittedExceptionSync && e.cfg.PulpVectorTablePacket {
		return e.emitSyncStart(), nil
	}
	if e.shouldSyncStart() {
		return e.emitSyncStart(), nil
	}
	if e.last.Qualified && e.last.UnpredDisc {
		return e.flush(true), nil
	}
	if e.resyncPending && e.acc.Cnt > 0 {
		e.resyncPending = false
		return e.flush(false), nil
	}
	if e.nextTriggersFlush() {
		return e.flush(false), nil
	}
	if e.acc.Full {
		return e.emitFullMapNoAddress(), nil
	}
	// this.context_change (spec.md §4.4 row 8, SYNC/CONTEXT) has no modeled
	// trigger in the fixed Instr fields of spec.md §3; CONTEXT stays
	// reachable only via an explicit decode of that subformat, which
	// returns ErrUnimplemented per spec.md §9 open question (c).
	return nil, nil
}

func (e *Encoder) shouldSyncStart() bool {
	if !e.this.Qualified {
		return false
	}
	if !e.seenFirstQualified {
		return true
	}
	if !e.last.Qualified {
		return true // unhalt: resumed after a gap
	}
	if e.this.PrivilegeChange {
		return true
	}
	if e.resyncPending && e.acc.Empty() {
		return true
	}
	return false
}

func (e *Encoder) nextTriggersFlush() bool {
	if !e.next.Qualified {
		return false
	}
	return e.next.Instr.Exception || e.next.PrivilegeChange
}

// branchBit is the SYNC/START and SYNC/EXCEPTION "branch-at-this-address"
// bit: set when `this` is a branch whose static not-taken successor is
// `next`, so the decoder knows not to expect a branch-map bit for it.
func (e *Encoder) branchBit() uint8 {
	if !e.this.Qualified || !e.next.Qualified {
		return 0
	}
	cls := e.classifier.Classify(instrWord(e.this.Instr))
	if cls.IsBranch && e.this.Instr.IAddr+e.this.Instr.InstrLen() == e.next.Instr.IAddr {
		return 1
	}
	return 0
}

// keepBits runs the Address Packer's width reduction (spec.md §4.2) on an
// address with no full/diff choice to make: the absolute address of a SYNC
// packet, or the differential address of an ADDR_ONLY packet.
func (e *Encoder) keepBits(addr uint64) int {
	lead := addrpack.SignExtendableBits(addr, e.cfg.XLen())
	if e.cfg.UsePulpSext {
		lead = addrpack.QuantizeCLZ(lead)
	}
	return e.cfg.XLen() - lead + 1
}

func (e *Encoder) emitExceptionSync() *rvt.Packet {
	pkt := &rvt.Packet{
		MsgType:   rvt.MsgTrace,
		Format:    rvt.FmtSync,
		Subformat: rvt.SyncException,
		Privilege: e.this.Instr.Priv,
		Branch:    e.branchBit(),
		Address:   e.this.Instr.IAddr,
		Cause:     e.last.Instr.Cause,
		Interrupt: e.last.Instr.Interrupt,
	}
	if !e.cfg.FullAddress {
		pkt.AddrBits = e.keepBits(e.this.Instr.IAddr)
	}
	e.this.EmittedExceptionSync = true
	e.lastPacketAddr = e.this.Instr.IAddr
	e.seenFirstQualified = true
	e.resyncPending = false
	e.log.Logf(rvt.SeverityInfo, "SYNC/EXCEPTION at 0x%x, cause=%d", e.this.Instr.IAddr, pkt.Cause)
	return pkt
}

func (e *Encoder) emitSyncStart() *rvt.Packet {
	pkt := &rvt.Packet{
		MsgType:   rvt.MsgTrace,
		Format:    rvt.FmtSync,
		Subformat: rvt.SyncStart,
		Privilege: e.this.Instr.Priv,
		Branch:    e.branchBit(),
		Address:   e.this.Instr.IAddr,
	}
	if !e.cfg.FullAddress {
		pkt.AddrBits = e.keepBits(e.this.Instr.IAddr)
	}
	e.lastPacketAddr = e.this.Instr.IAddr
	e.seenFirstQualified = true
	e.resyncPending = false
	e.log.Logf(rvt.SeverityInfo, "SYNC/START at 0x%x", e.this.Instr.IAddr)
	return pkt
}

// flush implements emit_branch_map_flush_packet (spec.md §4.4).
func (e *Encoder) flush(discontinuity bool) *rvt.Packet {
	bits, cnt, full := e.acc.Flush()
	addr := e.this.Instr.IAddr
	xlen := e.cfg.XLen()

	if cnt == 0 {
		out := addr
		pkt := &rvt.Packet{MsgType: rvt.MsgTrace, Format: rvt.FmtAddrOnly}
		if !e.cfg.FullAddress {
			out = e.lastPacketAddr - addr
			pkt.AddrBits = e.keepBits(out)
		}
		pkt.Address = out
		e.lastPacketAddr = addr
		return pkt
	}

	// The accumulator sets a bit when the branch is taken (spec.md §4.3);
	// the wire format's branch map uses the opposite sense, 0 for taken
	// (spec.md §4.6, open question (a)), so the bits are inverted here and
	// un-inverted again on decode.
	wireBits := ^bits

	if full && !discontinuity {
		// Full map coincides with no discontinuity: branches is reported as
		// 0 to mark "full map, no address" per spec.md §4.4.
		e.lastPacketAddr = addr
		return &rvt.Packet{MsgType: rvt.MsgTrace, Format: rvt.FmtBranchFull, Branches: 0, BranchMap: wireBits}
	}

	if e.cfg.FullAddress {
		e.lastPacketAddr = addr
		return &rvt.Packet{
			MsgType: rvt.MsgTrace, Format: rvt.FmtBranchFull,
			Branches: uint32(cnt), BranchMap: wireBits,
			Address: addr, HasAddress: true,
		}
	}

	diff := e.lastPacketAddr - addr
	leadFull := addrpack.SignExtendableBits(addr, xlen)
	leadDiff := addrpack.SignExtendableBits(diff, xlen)
	useDiff := leadDiff > leadFull
	lead, chosen, format := leadFull, addr, rvt.FmtBranchFull
	if useDiff {
		lead, chosen, format = leadDiff, diff, rvt.FmtBranchDiff
	}
	if e.cfg.UsePulpSext {
		lead = addrpack.QuantizeCLZ(lead)
	}
	keep := xlen - lead + 1

	e.lastPacketAddr = addr
	return &rvt.Packet{
		MsgType: rvt.MsgTrace, Format: format,
		Branches: uint32(cnt), BranchMap: wireBits,
		Address: chosen, HasAddress: true, AddrBits: keep,
	}
}

// emitFullMapNoAddress is the spec.md §4.4 "map.full" row: the map
// saturated without a coinciding discontinuity/exception/resync trigger.
// The map is always sent at its full 31-bit width: the serializer derives
// its width solely from the (here always-zero) `branches` field.
// Config.CompressFullBranchMap is not read here or anywhere else, so it
// changes neither the wire payload nor the Stats.
func (e *Encoder) emitFullMapNoAddress() *rvt.Packet {
	bits, _, _ := e.acc.Flush()
	return &rvt.Packet{MsgType: rvt.MsgTrace, Format: rvt.FmtBranchFull, Branches: 0, BranchMap: ^bits}
}

// recordStats performs a dry serialization to fill in payload-bit and
// sign-extendable-bit statistics without mutating the caller-visible
// packet's semantic fields.
func (e *Encoder) recordStats(p *rvt.Packet) {
	_, bitLen, _, _, err := serial.Encode(p, e.cfg, 0, 0)
	if err == nil {
		p.BitLen = bitLen
	}
	sextBits := 0
	if p.MsgType == rvt.MsgTrace {
		sextBits = addrpack.SignExtendableBits(p.Address, e.cfg.XLen())
	}
	e.stats.RecordPacket(p, p.Address, e.cfg.XLen(), sextBits)
}
