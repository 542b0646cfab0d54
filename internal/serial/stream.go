package serial

import (
	"io"

	"github.com/pulp-platform/trdb/internal/rvt"
)

// StreamWriter writes a sequence of packets to an io.Writer, carrying the
// trailing partial byte of one packet into the next exactly as
// trdb_write_packets does in original_source/serialize.c.
type StreamWriter struct {
	w         io.Writer
	cfg       rvt.Config
	carry     byte
	carryBits int
}

func NewStreamWriter(w io.Writer, cfg rvt.Config) *StreamWriter {
	return &StreamWriter{w: w, cfg: cfg}
}

// WritePacket serializes p and writes every complete byte produced,
// keeping any trailing partial byte to prefix the next call.
func (sw *StreamWriter) WritePacket(p *rvt.Packet) error {
	buf, bitLen, carry, carryBits, err := Encode(p, sw.cfg, sw.carry, sw.carryBits)
	if err != nil {
		return err
	}
	full := bitLen / 8
	if _, err := sw.w.Write(buf[:full]); err != nil {
		return rvt.NewErrorMsg(rvt.ErrFileWrite, err.Error())
	}
	sw.carry, sw.carryBits = carry, carryBits
	return nil
}

// Flush writes out any pending partial byte, zero-padded.
func (sw *StreamWriter) Flush() error {
	if sw.carryBits == 0 {
		return nil
	}
	if _, err := sw.w.Write([]byte{sw.carry}); err != nil {
		return rvt.NewErrorMsg(rvt.ErrFileWrite, err.Error())
	}
	sw.carry, sw.carryBits = 0, 0
	return nil
}

// StreamReader reads packets back out of a byte stream produced by
// StreamWriter, tracking the bit offset into the current buffered byte.
type StreamReader struct {
	r      io.Reader
	cfg    rvt.Config
	buf    []byte
	bitPos int
}

func NewStreamReader(r io.Reader, cfg rvt.Config) *StreamReader {
	return &StreamReader{r: r, cfg: cfg}
}

// ReadPacket reads and decodes the next packet, pulling more bytes from the
// underlying reader as needed.
func (sr *StreamReader) ReadPacket() (*rvt.Packet, error) {
	for {
		p, next, err := Decode(sr.buf, sr.bitPos, sr.cfg)
		if err == nil {
			sr.bitPos = next
			sr.compact()
			return p, nil
		}
		if !sr.fill() {
			return nil, err
		}
	}
}

// fill reads one more byte from the underlying reader; it reports false at
// EOF.
func (sr *StreamReader) fill() bool {
	var b [1]byte
	n, err := sr.r.Read(b[:])
	if n == 0 || err != nil {
		return false
	}
	sr.buf = append(sr.buf, b[0])
	return true
}

// compact drops fully-consumed leading bytes so buf doesn't grow without
// bound across a long stream.
func (sr *StreamReader) compact() {
	drop := sr.bitPos / 8
	if drop == 0 {
		return
	}
	sr.buf = sr.buf[drop:]
	sr.bitPos -= drop * 8
}
