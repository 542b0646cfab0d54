package isa

import (
	"fmt"

	"github.com/pulp-platform/trdb/internal/rvt"
)

// FlatImage is the reference rvt.ObjectFile implementation named in
// SPEC_FULL.md §3: a set of named sections, each a VMA range backed by a
// flat byte slice, in the spirit of the teacher's memory-accessor mapper
// but keyed by section rather than by a callback chain.
type FlatImage struct {
	sections []flatSection
}

type flatSection struct {
	name  string
	vma   uint64
	bytes []byte
}

// NewFlatImage returns an empty image; sections are added with AddSection.
func NewFlatImage() *FlatImage {
	return &FlatImage{}
}

// AddSection loads a section's bytes at the given VMA. Overlapping
// sections are rejected.
func (f *FlatImage) AddSection(name string, vma uint64, data []byte) error {
	end := vma + uint64(len(data))
	for _, s := range f.sections {
		sEnd := s.vma + uint64(len(s.bytes))
		if vma < sEnd && s.vma < end {
			return rvt.NewErrorMsg(rvt.ErrInvalid, fmt.Sprintf("section %q [0x%x-0x%x) overlaps %q [0x%x-0x%x)",
				name, vma, end, s.name, s.vma, sEnd))
		}
	}
	f.sections = append(f.sections, flatSection{name: name, vma: vma, bytes: data})
	return nil
}

// SectionFor implements rvt.ObjectFile.
func (f *FlatImage) SectionFor(vma uint64) (rvt.Section, bool) {
	for _, s := range f.sections {
		end := s.vma + uint64(len(s.bytes))
		if vma >= s.vma && vma < end {
			return rvt.Section{Name: s.name, VMA: s.vma, Size: uint64(len(s.bytes))}, true
		}
	}
	return rvt.Section{}, false
}

// ReadBytes implements rvt.ObjectFile, returning ErrBadVMA when the range is
// outside any loaded section and ErrSectionEmpty when a matched section has
// no bytes at all.
func (f *FlatImage) ReadBytes(vma uint64, n int) ([]byte, error) {
	for _, s := range f.sections {
		end := s.vma + uint64(len(s.bytes))
		if vma >= s.vma && vma < end {
			if len(s.bytes) == 0 {
				return nil, rvt.NewErrorMsg(rvt.ErrSectionEmpty, fmt.Sprintf("section %q is empty", s.name))
			}
			off := vma - s.vma
			if off+uint64(n) > uint64(len(s.bytes)) {
				return nil, rvt.NewErrorMsg(rvt.ErrBadVMA, fmt.Sprintf("read of %d bytes at 0x%x runs past end of section %q", n, vma, s.name))
			}
			return s.bytes[off : off+uint64(n)], nil
		}
	}
	return nil, rvt.NewErrorMsg(rvt.ErrBadVMA, fmt.Sprintf("0x%x is outside any loaded section", vma))
}
