package main

import (
	"os"

	"github.com/pulp-platform/trdb/internal/rvt"
	"github.com/pulp-platform/trdb/internal/serial"
)

// readAllPackets loads a whole packet-stream file and decodes it
// sequentially, stopping once fewer bits remain than the smallest possible
// packet header: StreamWriter's Flush zero-pads the final partial byte, and
// that padding alone is never enough to form a valid header, so this is an
// unambiguous end-of-stream signal rather than a truncation error.
func readAllPackets(path string, cfg rvt.Config) ([]*rvt.Packet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rvt.NewErrorMsg(rvt.ErrFileOpen, err.Error())
	}

	var packets []*rvt.Packet
	bitPos := 0
	totalBits := len(data) * 8
	// StreamWriter.Flush zero-pads at most one trailing partial byte, so
	// fewer than 8 unconsumed bits can only ever be that padding, never the
	// start of a real packet.
	for totalBits-bitPos >= 8 {
		p, next, err := serial.Decode(data, bitPos, cfg)
		if err != nil {
			return nil, err
		}
		packets = append(packets, p)
		bitPos = next
	}
	return packets, nil
}
