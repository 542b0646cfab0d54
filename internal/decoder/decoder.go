// Package decoder implements the Decoder State Machine of spec.md §4.6:
// replaying a packet stream against a Program Walker and object file to
// reconstruct the original instruction-address sequence, generalizing the
// teacher's waypoint-driven decode tree
// (internal/dcdtree, internal/common/code_follower.go) into a flat
// packet-at-a-time state machine.
package decoder

import (
	"github.com/pulp-platform/trdb/internal/codewalk"
	"github.com/pulp-platform/trdb/internal/ras"
	"github.com/pulp-platform/trdb/internal/rvt"
)

// Decoder holds the replay state for one packet stream: current PC,
// privilege, the last packet's absolute address (for differential
// decoding) and the return-address stack. Not safe for concurrent use
// (spec.md §5); each stream gets its own Decoder.
type Decoder struct {
	cfg      rvt.Config
	image    rvt.ObjectFile
	follower *codewalk.Follower
	log      rvt.Logger

	pc             uint64
	privilege      uint8
	lastPacketAddr uint64

	section    rvt.Section
	haveSection bool
}

// New returns a Decoder positioned at entry, with the section containing
// it pre-loaded. A nil logger is legal and silently dropped (SPEC_FULL.md
// §2); pass a *rvt.StdLogger to see Info/Warning on resync and
// recoverable events and Error before a fatal return.
func New(cfg rvt.Config, walker rvt.ProgramWalker, image rvt.ObjectFile, entry uint64, logger rvt.Logger) (*Decoder, error) {
	if logger == nil {
		logger = rvt.NewNoOpLogger()
	}
	d := &Decoder{
		cfg:      cfg,
		image:    image,
		follower: codewalk.New(walker, ras.New()),
		log:      logger,
		pc:       entry,
	}
	if err := d.ensureSection(entry); err != nil {
		d.log.Error(err)
		return nil, err
	}
	return d, nil
}

func (d *Decoder) ensureSection(pc uint64) error {
	sec, ok := d.image.SectionFor(pc)
	if !ok {
		return rvt.NewError(rvt.ErrBadVMA)
	}
	if !d.haveSection || sec.Name != d.section.Name {
		d.section = sec
		d.haveSection = true
	}
	return nil
}

// Decode processes one packet and returns the instructions it caused to be
// replayed, in order. Software/Timer packets are informational and always
// return (nil, nil) per spec.md §4.6 step 1.
func (d *Decoder) Decode(p *rvt.Packet) ([]rvt.Instr, error) {
	switch p.MsgType {
	case rvt.MsgSoftware, rvt.MsgTimer:
		return nil, nil
	case rvt.MsgTrace:
	default:
		return nil, rvt.NewError(rvt.ErrBadPacket)
	}

	switch p.Format {
	case rvt.FmtSync:
		return d.decodeSync(p)
	case rvt.FmtBranchFull, rvt.FmtBranchDiff:
		return d.decodeBranch(p)
	case rvt.FmtAddrOnly:
		return d.decodeAddrOnly(p)
	default:
		err := rvt.NewError(rvt.ErrBadPacket)
		d.log.Error(err)
		return nil, err
	}
}

func (d *Decoder) decodeSync(p *rvt.Packet) ([]rvt.Instr, error) {
	if p.Subformat == rvt.SyncContext {
		return nil, rvt.NewError(rvt.ErrUnimplemented)
	}
	d.privilege = p.Privilege
	d.pc = p.Address
	d.lastPacketAddr = p.Address
	d.log.Logf(rvt.SeverityInfo, "resync at 0x%x", d.pc)

	if err := d.ensureSection(d.pc); err != nil {
		d.log.Error(err)
		return nil, err
	}
	step, err := d.follower.Step(d.pc)
	if err != nil {
		return nil, err
	}
	out := []rvt.Instr{{Valid: true, IAddr: d.pc, Priv: d.privilege}}

	branchTaken := p.Branch == 0 // spec.md §4.6: branch==0 means taken
	next, err := d.resolveNext(step, branchTaken)
	if err != nil {
		return nil, err
	}
	d.pc = next
	return out, nil
}

// resolveNext picks the successor PC for one disassembled step: a
// statically known jump target wins outright; otherwise RAS-classified
// control flow resolves via the stack, and a conditional branch resolves
// via the caller-supplied taken/not-taken decision.
func (d *Decoder) resolveNext(step codewalk.Step, branchTaken bool) (uint64, error) {
	switch step.Disasm.Type {
	case rvt.InsnCondBranch:
		if branchTaken {
			return step.Disasm.Target, nil
		}
		return step.NaturalNextPC, nil
	case rvt.InsnJSR:
		if step.Disasm.Target != 0 {
			return step.Disasm.Target, nil
		}
		switch step.Disasm.Class.RAS {
		case rvt.RASRet:
			return d.follower.ResolveReturn()
		case rvt.RASCoRet:
			return step.PoppedTarget, nil
		default:
			return step.NaturalNextPC, nil
		}
	default:
		return step.NaturalNextPC, nil
	}
}

// decodeBranch walks a BRANCH_FULL/BRANCH_DIFF packet per spec.md §4.6.
// It is written against this module's own encoder invariant that
// BRANCH_FULL/DIFF is only ever emitted with cnt > 0 (a genuinely empty
// map always encodes as ADDR_ONLY instead), so the branches==0 "full map,
// no address" marker is the only case where HasAddress is false.
func (d *Decoder) decodeBranch(p *rvt.Packet) ([]rvt.Instr, error) {
	if p.Format == rvt.FmtBranchDiff && d.cfg.FullAddress {
		return nil, rvt.NewError(rvt.ErrBadConfig)
	}

	var abs uint64
	if p.HasAddress {
		if p.Format == rvt.FmtBranchFull {
			abs = p.Address
		} else {
			abs = d.lastPacketAddr - p.Address
		}
		d.lastPacketAddr = abs
	}

	cnt := p.Branches
	if cnt == 0 {
		cnt = 31
	}
	bits := p.BranchMap

	var out []rvt.Instr
	hitDiscontinuity, hitAddress := false, false
	steps := 0
	for {
		if cnt == 0 && !p.HasAddress {
			break
		}
		if cnt == 0 && (hitDiscontinuity || hitAddress) {
			break
		}
		steps++
		if steps > codewalk.MaxStepsPerPacket {
			err := rvt.NewErrorMsg(rvt.ErrBadInstr, "branch-map walk exceeded step bound")
			d.log.Error(err)
			return nil, err
		}
		if err := d.ensureSection(d.pc); err != nil {
			d.log.Error(err)
			return nil, err
		}
		step, err := d.follower.Step(d.pc)
		if err != nil {
			return nil, err
		}
		out = append(out, rvt.Instr{Valid: true, IAddr: d.pc, Priv: d.privilege})
		curPC := d.pc

		if p.HasAddress && cnt == 0 && curPC == abs {
			hitAddress = true
		}

		switch step.Disasm.Type {
		case rvt.InsnCondBranch:
			taken := bits&1 == 0 // spec.md §9 open question (a): 1 = not taken
			bits >>= 1
			cnt--
			if taken {
				d.pc = step.Disasm.Target
			} else {
				d.pc = step.NaturalNextPC
			}
			if p.HasAddress && cnt == 0 && d.pc-uint64(step.Disasm.Size) == abs {
				hitAddress = true
			}
		case rvt.InsnJSR:
			if step.Disasm.Target != 0 {
				d.pc = step.Disasm.Target
				break
			}
			switch step.Disasm.Class.RAS {
			case rvt.RASRet:
				target, err := d.follower.ResolveReturn()
				if err != nil {
					d.log.Logf(rvt.SeverityWarning, "RAS pop failed at 0x%x: %v", curPC, err)
					return nil, err
				}
				d.pc = target
			case rvt.RASCoRet:
				d.pc = step.PoppedTarget
			default:
				if !p.HasAddress {
					err := rvt.NewErrorMsg(rvt.ErrBadPacket, "unresolvable discontinuity in a full map without an address")
					d.log.Error(err)
					return nil, err
				}
				d.pc = abs
				hitDiscontinuity = true
			}
		default:
			d.pc = step.NaturalNextPC
		}
	}
	return out, nil
}

// decodeAddrOnly walks an ADDR_ONLY packet per spec.md §4.6; conditional
// branches are not permitted on this path since there is no branch map to
// resolve them.
func (d *Decoder) decodeAddrOnly(p *rvt.Packet) ([]rvt.Instr, error) {
	abs := p.Address
	if !d.cfg.FullAddress {
		abs = d.lastPacketAddr - p.Address
	}
	d.lastPacketAddr = abs

	var out []rvt.Instr
	hitDiscontinuity, hitAddress := false, false
	steps := 0
	for !(hitAddress || hitDiscontinuity) {
		steps++
		if steps > codewalk.MaxStepsPerPacket {
			err := rvt.NewErrorMsg(rvt.ErrBadInstr, "addr-only walk exceeded step bound")
			d.log.Error(err)
			return nil, err
		}
		if err := d.ensureSection(d.pc); err != nil {
			d.log.Error(err)
			return nil, err
		}
		step, err := d.follower.Step(d.pc)
		if err != nil {
			return nil, err
		}
		if step.Disasm.Type == rvt.InsnCondBranch {
			err := rvt.NewErrorMsg(rvt.ErrBadPacket, "conditional branch encountered on an ADDR_ONLY path")
			d.log.Error(err)
			return nil, err
		}
		out = append(out, rvt.Instr{Valid: true, IAddr: d.pc, Priv: d.privilege})
		curPC := d.pc
		if curPC == abs {
			hitAddress = true
		}

		switch step.Disasm.Type {
		case rvt.InsnJSR:
			if step.Disasm.Target != 0 {
				d.pc = step.Disasm.Target
				continue
			}
			switch step.Disasm.Class.RAS {
			case rvt.RASRet:
				target, err := d.follower.ResolveReturn()
				if err != nil {
					d.log.Logf(rvt.SeverityWarning, "RAS pop failed at 0x%x: %v", curPC, err)
					return nil, err
				}
				d.pc = target
			case rvt.RASCoRet:
				d.pc = step.PoppedTarget
			default:
				d.pc = abs
				hitDiscontinuity = true
			}
		default:
			d.pc = step.NaturalNextPC
		}
	}
	return out, nil
}
