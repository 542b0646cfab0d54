// Package ras implements the decoder's return-address stack (spec.md §3,
// §4.6): a LIFO of addresses that grows on demand, unlike the teacher's
// fixed-depth ring buffer, since the core deliberately reports bad_ras on
// pop-from-empty rather than silently overwriting the oldest entry.
package ras

import "github.com/pulp-platform/trdb/internal/rvt"

// Stack is the decoder's return-address stack.
type Stack struct {
	addrs []uint64
}

// New returns an empty stack.
func New() *Stack {
	return &Stack{}
}

// Push records a call's return address.
func (s *Stack) Push(addr uint64) {
	s.addrs = append(s.addrs, addr)
}

// Pop returns the most recently pushed address, or ErrBadRAS if the stack
// is empty.
func (s *Stack) Pop() (uint64, error) {
	if len(s.addrs) == 0 {
		return 0, rvt.NewError(rvt.ErrBadRAS)
	}
	n := len(s.addrs) - 1
	addr := s.addrs[n]
	s.addrs = s.addrs[:n]
	return addr, nil
}

// Peek returns the top address without popping it.
func (s *Stack) Peek() (uint64, bool) {
	if len(s.addrs) == 0 {
		return 0, false
	}
	return s.addrs[len(s.addrs)-1], true
}

// Len reports the current call depth.
func (s *Stack) Len() int {
	return len(s.addrs)
}

// Reset clears the stack. The decoder does not call it; a SYNC packet leaves
// the stack as it is.
func (s *Stack) Reset() {
	s.addrs = s.addrs[:0]
}
