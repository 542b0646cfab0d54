// Package codewalk implements the decoder's single-instruction replay
// primitive: the piece that pairs a Program Walker with a return-address
// stack to advance the reconstructed PC one instruction at a time,
// generalizing the teacher's CodeFollower (internal/common/code_follower.go)
// from an ARM waypoint-atom follower to the RISC-V decoder's packet-driven
// walk described in spec.md §4.6.
package codewalk

import (
	"fmt"

	"github.com/pulp-platform/trdb/internal/ras"
	"github.com/pulp-platform/trdb/internal/rvt"
)

// MaxStepsPerPacket bounds a single packet's walk so a corrupt stream or a
// disassembler bug cannot spin forever; exceeding it is reported as
// bad_instr since it means the walker never found the awaited condition.
const MaxStepsPerPacket = 1 << 20

// Step is one instruction's replay result.
type Step struct {
	PC            uint64
	Disasm        rvt.DisasmResult
	NaturalNextPC uint64 // pc + instruction size, ignoring any jump
	PoppedTarget  uint64 // for RASCoRet: the address popped before the fall-through push
}

// Follower advances a reconstructed PC through a Program Walker, applying
// return-address-stack pushes/pops for call/return-classified instructions.
type Follower struct {
	Walker rvt.ProgramWalker
	RAS    *ras.Stack
}

// New returns a Follower over the given walker and return-address stack.
func New(w rvt.ProgramWalker, stack *ras.Stack) *Follower {
	return &Follower{Walker: w, RAS: stack}
}

// Step disassembles the instruction at pc and returns its natural and
// (where the walker can resolve one) branch-target successor. Call/return
// bookkeeping on the RAS happens here since it is a property of the
// instruction alone, not of the packet being decoded.
func (f *Follower) Step(pc uint64) (Step, error) {
	d, err := f.Walker.Disassemble(pc)
	if err != nil {
		return Step{}, err
	}
	if d.Type == rvt.InsnNonInsn {
		return Step{}, rvt.NewErrorMsg(rvt.ErrBadInstr, fmt.Sprintf("unsupported instruction at %#x", pc))
	}
	natural := pc + uint64(d.Size)
	var popped uint64

	switch d.Class.RAS {
	case rvt.RASCall:
		f.RAS.Push(natural)
	case rvt.RASCoRet:
		addr, err := f.RAS.Pop()
		if err != nil {
			return Step{}, err
		}
		f.RAS.Push(natural)
		popped = addr
	}
	return Step{PC: pc, Disasm: d, NaturalNextPC: natural, PoppedTarget: popped}, nil
}

// ResolveReturn pops the return-address stack for a RASRet-classified
// instruction, returning the target PC.
func (f *Follower) ResolveReturn() (uint64, error) {
	return f.RAS.Pop()
}
