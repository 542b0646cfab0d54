// Package branchmap implements the Branch-Map Accumulator of spec.md §4.3:
// a running record of taken/not-taken bits for conditional branches, with a
// PULP-compatible payload-width bucketing function for the flush packet.
package branchmap

// Accumulator tracks the branch-map bits since the last flush. bits >> cnt
// must always be zero; Full is true once cnt reaches 31 (the map cannot
// hold a 32nd bit).
type Accumulator struct {
	Bits uint32
	Cnt  uint8
	Full bool
}

// Update records the outcome of one conditional branch. taken is the
// caller's precomputed "addr_before + instrLen != addr_after" comparison
// (spec.md §4.3); the bit is set at position Cnt before Cnt increments.
func (a *Accumulator) Update(taken bool) {
	if a.Full {
		return
	}
	if taken {
		a.Bits |= 1 << a.Cnt
	}
	a.Cnt++
	if a.Cnt == 31 {
		a.Full = true
	}
}

// Len returns the payload-bit width used when this map is flushed: 31 if
// cnt is 0 or 31, else the smallest of {1,9,25,31} that is >= cnt, matching
// branch_map_len in original_source/trace_debugger.c.
func Len(cnt uint8) int {
	if cnt == 0 || cnt == 31 {
		return 31
	}
	for _, w := range [...]int{1, 9, 25, 31} {
		if int(cnt) <= w {
			return w
		}
	}
	return 31
}

// Flush returns the current bits/cnt and resets the accumulator to zero.
func (a *Accumulator) Flush() (bits uint32, cnt uint8, full bool) {
	bits, cnt, full = a.Bits, a.Cnt, a.Full
	*a = Accumulator{}
	return
}

// Empty reports whether no branch has been recorded since the last flush.
func (a *Accumulator) Empty() bool {
	return a.Cnt == 0 && !a.Full
}
