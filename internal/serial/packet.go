package serial

import (
	"fmt"

	"github.com/pulp-platform/trdb/internal/branchmap"
	"github.com/pulp-platform/trdb/internal/rvt"
)

// TimeBits is the Timer packet's payload width; spec.md leaves TIMELEN
// implementation-defined, so this module fixes it at a full 64 bits.
const TimeBits = 64

// Encode serializes one packet starting at the given bit offset within
// carry (0..7, the leftover bits of a previous packet in the same
// stream), per spec.md §4.5. It returns the packed bytes (including the
// carried-forward byte, so callers must not re-emit it), the total bit
// count written (including the carry bits), and the final partial byte to
// carry into the next packet.
func Encode(p *rvt.Packet, cfg rvt.Config, carry byte, carryBits int) (buf []byte, bitLen int, nextCarry byte, nextCarryBits int, err error) {
	w := newBitWriter(carry, carryBits)
	bodyStart := w.nbits

	if err := encodeBody(w, p, cfg, bodyStart); err != nil {
		return nil, 0, 0, 0, err
	}
	p.BitLen = w.nbits - bodyStart

	// Length hint: bytes needed for the body beyond this 4-bit field,
	// clamped to the field's range.
	lengthVal := (p.BitLen - PULPPKTLEN + 7) / 8
	if lengthVal < 0 {
		lengthVal = 0
	}
	if lengthVal > 0xf {
		lengthVal = 0xf
	}
	insertLengthField(w.buf, bodyStart, uint64(lengthVal))

	full := w.nbits / 8
	out := make([]byte, full)
	copy(out, w.buf[:full])
	if w.nbits%8 != 0 {
		return out, w.nbits, w.buf[full], w.nbits % 8, nil
	}
	return out, w.nbits, 0, 0, nil
}

// insertLengthField overwrites the PULPPKTLEN-wide length subfield that
// begins at bitOffset; it is computed only after the body is written, so it
// is patched in afterward rather than threaded through encodeBody.
func insertLengthField(buf []byte, bitOffset int, v uint64) {
	for i := 0; i < PULPPKTLEN; i++ {
		byteIdx := (bitOffset + i) / 8
		bitIdx := uint((bitOffset + i) % 8)
		buf[byteIdx] &^= 1 << bitIdx
		if (v>>uint(i))&1 == 1 {
			buf[byteIdx] |= 1 << bitIdx
		}
	}
}

func encodeBody(w *bitWriter, p *rvt.Packet, cfg rvt.Config, bodyStart int) error {
	w.writeBits(0, PULPPKTLEN) // placeholder, patched by insertLengthField
	w.writeBits(uint64(p.MsgType), MSGTYPELEN)

	switch p.MsgType {
	case rvt.MsgTrace:
		return encodeTrace(w, p, cfg, bodyStart)
	case rvt.MsgSoftware:
		w.writeBits(uint64(p.UserData), 32)
		return nil
	case rvt.MsgTimer:
		w.writeBits(p.Time, TimeBits)
		return nil
	default:
		return rvt.NewErrorMsg(rvt.ErrBadPacket, fmt.Sprintf("unknown msg_type %d", p.MsgType))
	}
}

func encodeTrace(w *bitWriter, p *rvt.Packet, cfg rvt.Config, bodyStart int) error {
	w.writeBits(uint64(p.Format), FORMATLEN)

	// writeAddr emits p.Address at cfg.XLen() under full_address, or at
	// the Address Packer's keep width (spec.md §4.2/§4.4) otherwise,
	// rounded up to whatever completes this packet's own current byte
	// (after accounting for any fixed-width trailing fields still to be
	// written, such as SYNC/EXCEPTION's cause+interrupt) so the length
	// hint lets the deserializer recover the same width.
	writeAddr := func(trailing int) {
		if cfg.FullAddress {
			w.writeBits(p.Address, cfg.XLen())
			return
		}
		n := variableAddrBits(w.nbits-bodyStart, p.AddrBits, trailing)
		w.writeBits(p.Address, n)
	}

	switch p.Format {
	case rvt.FmtBranchFull, rvt.FmtBranchDiff:
		if p.Format == rvt.FmtBranchDiff && cfg.FullAddress {
			return rvt.NewError(rvt.ErrBadConfig)
		}
		w.writeBits(uint64(p.Branches), BRANCHLEN)
		mapLen := branchmap.Len(uint8(p.Branches))
		w.writeBits(uint64(p.BranchMap), mapLen)
		if p.HasAddress {
			writeAddr(0)
		}
		return nil
	case rvt.FmtAddrOnly:
		writeAddr(0)
		return nil
	case rvt.FmtSync:
		w.writeBits(uint64(p.Subformat), FORMATLEN)
		w.writeBits(uint64(p.Privilege), PRIVLEN)
		switch p.Subformat {
		case rvt.SyncStart:
			w.writeBits(uint64(p.Branch), 1)
			writeAddr(0)
		case rvt.SyncException:
			w.writeBits(uint64(p.Branch), 1)
			writeAddr(CAUSELEN + 1)
			w.writeBits(uint64(p.Cause), CAUSELEN)
			interrupt := uint64(0)
			if p.Interrupt {
				interrupt = 1
			}
			w.writeBits(interrupt, 1)
		case rvt.SyncContext:
			return rvt.NewError(rvt.ErrUnimplemented)
		}
		return nil
	default:
		return rvt.NewErrorMsg(rvt.ErrBadPacket, fmt.Sprintf("unknown format %d", p.Format))
	}
}

// Decode reads one packet starting at bitOffset within buf, returning the
// packet and the bit offset immediately after it.
func Decode(buf []byte, bitOffset int, cfg rvt.Config) (*rvt.Packet, int, error) {
	r := newBitReader(buf, bitOffset)
	start := r.bitPos

	lengthField, ok := r.readBits(PULPPKTLEN)
	if !ok {
		return nil, bitOffset, rvt.NewError(rvt.ErrBadPacket)
	}
	msgType, ok := r.readBits(MSGTYPELEN)
	if !ok {
		return nil, bitOffset, rvt.NewError(rvt.ErrBadPacket)
	}

	p := &rvt.Packet{MsgType: rvt.MsgType(msgType)}
	var err error
	switch p.MsgType {
	case rvt.MsgTrace:
		err = decodeTrace(r, p, cfg, start, lengthField)
	case rvt.MsgSoftware:
		v, ok := r.readBits(32)
		if !ok {
			err = rvt.NewError(rvt.ErrBadPacket)
		}
		p.UserData = uint32(v)
	case rvt.MsgTimer:
		v, ok := r.readBits(TimeBits)
		if !ok {
			err = rvt.NewError(rvt.ErrBadPacket)
		}
		p.Time = v
	default:
		err = rvt.NewErrorMsg(rvt.ErrBadPacket, fmt.Sprintf("unknown msg_type %d", msgType))
	}
	if err != nil {
		return nil, bitOffset, err
	}
	p.BitLen = r.bitPos - start
	return p, r.bitPos, nil
}

func decodeTrace(r *bitReader, p *rvt.Packet, cfg rvt.Config, start int, lengthField uint64) error {
	format, ok := r.readBits(FORMATLEN)
	if !ok {
		return rvt.NewError(rvt.ErrBadPacket)
	}
	p.Format = rvt.TraceFormat(format)

	// readAddr is decodeTrace's counterpart to encodeTrace's writeAddr: at
	// cfg.XLen() under full_address, or at the Address Packer's keep width
	// (spec.md §4.2/§4.4) otherwise, recovered from the packet's own
	// length hint net of any fixed-width trailing fields still to be read.
	readAddr := func(trailing int) (uint64, int, bool) {
		if cfg.FullAddress {
			v, ok := r.readBits(cfg.XLen())
			return v, cfg.XLen(), ok
		}
		n := remainingAddrBits(lengthField, r.bitPos-start, trailing)
		v, ok := r.readBits(n)
		return v, n, ok
	}

	switch p.Format {
	case rvt.FmtBranchFull, rvt.FmtBranchDiff:
		if p.Format == rvt.FmtBranchDiff && cfg.FullAddress {
			return rvt.NewError(rvt.ErrBadConfig)
		}
		branches, ok := r.readBits(BRANCHLEN)
		if !ok {
			return rvt.NewError(rvt.ErrBadPacket)
		}
		p.Branches = uint32(branches)
		mapLen := branchmap.Len(uint8(p.Branches))
		bits, ok := r.readBits(mapLen)
		if !ok {
			return rvt.NewError(rvt.ErrBadPacket)
		}
		p.BranchMap = uint32(bits)
		if p.Branches > 0 {
			addr, width, ok := readAddr(0)
			if !ok {
				return rvt.NewError(rvt.ErrBadPacket)
			}
			p.Address = uint64(sext64(addr, width))
			p.AddrBits = width
			p.HasAddress = true
		}
		return nil
	case rvt.FmtAddrOnly:
		addr, width, ok := readAddr(0)
		if !ok {
			return rvt.NewError(rvt.ErrBadPacket)
		}
		p.Address = uint64(sext64(addr, width))
		p.AddrBits = width
		return nil
	case rvt.FmtSync:
		subformat, ok := r.readBits(FORMATLEN)
		if !ok {
			return rvt.NewError(rvt.ErrBadPacket)
		}
		p.Subformat = rvt.SyncSubformat(subformat)
		priv, ok := r.readBits(PRIVLEN)
		if !ok {
			return rvt.NewError(rvt.ErrBadPacket)
		}
		p.Privilege = uint8(priv)
		switch p.Subformat {
		case rvt.SyncStart:
			branch, ok := r.readBits(1)
			if !ok {
				return rvt.NewError(rvt.ErrBadPacket)
			}
			p.Branch = uint8(branch)
			addr, width, ok := readAddr(0)
			if !ok {
				return rvt.NewError(rvt.ErrBadPacket)
			}
			p.Address = uint64(sext64(addr, width))
			p.AddrBits = width
		case rvt.SyncException:
			branch, ok := r.readBits(1)
			if !ok {
				return rvt.NewError(rvt.ErrBadPacket)
			}
			p.Branch = uint8(branch)
			addr, width, ok := readAddr(CAUSELEN + 1)
			if !ok {
				return rvt.NewError(rvt.ErrBadPacket)
			}
			p.Address = uint64(sext64(addr, width))
			p.AddrBits = width
			cause, ok := r.readBits(CAUSELEN)
			if !ok {
				return rvt.NewError(rvt.ErrBadPacket)
			}
			p.Cause = uint8(cause)
			interrupt, ok := r.readBits(1)
			if !ok {
				return rvt.NewError(rvt.ErrBadPacket)
			}
			p.Interrupt = interrupt == 1
		case rvt.SyncContext:
			return rvt.NewError(rvt.ErrUnimplemented)
		default:
			return rvt.NewErrorMsg(rvt.ErrBadPacket, fmt.Sprintf("unknown sync subformat %d", subformat))
		}
		return nil
	default:
		return rvt.NewErrorMsg(rvt.ErrBadPacket, fmt.Sprintf("unknown format %d", format))
	}
}
