package rvt

import (
	"fmt"
	"sort"
	"strings"
)

func (t MsgType) String() string {
	switch t {
	case MsgTrace:
		return "TRACE"
	case MsgSoftware:
		return "SOFTWARE"
	case MsgTimer:
		return "TIMER"
	default:
		return "UNKNOWN"
	}
}

func (f TraceFormat) String() string {
	switch f {
	case FmtBranchFull:
		return "BRANCH_FULL"
	case FmtBranchDiff:
		return "BRANCH_DIFF"
	case FmtAddrOnly:
		return "ADDR_ONLY"
	case FmtSync:
		return "SYNC"
	default:
		return "UNKNOWN"
	}
}

func (s SyncSubformat) String() string {
	switch s {
	case SyncStart:
		return "START"
	case SyncException:
		return "EXCEPTION"
	case SyncContext:
		return "CONTEXT"
	default:
		return "UNKNOWN"
	}
}

// String renders a one-line summary of a packet for the trdb stats/list
// subcommands and for debug logging, in the teacher's PacketType.String()
// manner generalized to a whole-packet view.
func (p *Packet) String() string {
	switch p.MsgType {
	case MsgSoftware:
		return fmt.Sprintf("SOFTWARE user_data=%#x", p.UserData)
	case MsgTimer:
		return fmt.Sprintf("TIMER time=%#x", p.Time)
	}

	switch p.Format {
	case FmtSync:
		switch p.Subformat {
		case SyncException:
			return fmt.Sprintf("SYNC/EXCEPTION priv=%d addr=%#x cause=%d interrupt=%t branch=%d",
				p.Privilege, p.Address, p.Cause, p.Interrupt, p.Branch)
		case SyncContext:
			return "SYNC/CONTEXT"
		default:
			return fmt.Sprintf("SYNC/START priv=%d addr=%#x branch=%d", p.Privilege, p.Address, p.Branch)
		}
	case FmtAddrOnly:
		return fmt.Sprintf("ADDR_ONLY addr=%#x", p.Address)
	case FmtBranchFull, FmtBranchDiff:
		if !p.HasAddress {
			return fmt.Sprintf("%s branches=0 (full map, no address) map=%#x", p.Format, p.BranchMap)
		}
		return fmt.Sprintf("%s branches=%d map=%#x addr=%#x bits=%d", p.Format, p.Branches, p.BranchMap, p.Address, p.AddrBits)
	default:
		return fmt.Sprintf("UNKNOWN format=%d", p.Format)
	}
}

// String renders the running counters accumulated by Stats.RecordPacket for
// the trdb stats subcommand.
func (s *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "instructions: %d\n", s.Instructions)
	fmt.Fprintf(&b, "payload bits: %d\n", s.PayloadBits)
	fmt.Fprintf(&b, "software packets: %d\n", s.SoftwarePackets)
	fmt.Fprintf(&b, "timer packets: %d\n", s.TimerPackets)
	fmt.Fprintf(&b, "all-zero addresses: %d\n", s.AllZeroAddrs)
	fmt.Fprintf(&b, "all-one addresses: %d\n", s.AllOneAddrs)

	formats := make([]TraceFormat, 0, len(s.PacketsByFormat))
	for f := range s.PacketsByFormat {
		formats = append(formats, f)
	}
	sort.Slice(formats, func(i, j int) bool { return formats[i] < formats[j] })
	for _, f := range formats {
		fmt.Fprintf(&b, "%s packets: %d\n", f, s.PacketsByFormat[f])
	}

	subs := make([]SyncSubformat, 0, len(s.SyncBySubformat))
	for sf := range s.SyncBySubformat {
		subs = append(subs, sf)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	for _, sf := range subs {
		fmt.Fprintf(&b, "SYNC/%s packets: %d\n", sf, s.SyncBySubformat[sf])
	}
	return b.String()
}
