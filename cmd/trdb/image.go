package main

import (
	"os"

	"github.com/pulp-platform/trdb/internal/isa"
	"github.com/pulp-platform/trdb/internal/rvt"
)

// loadFlatImage reads a flat binary file and maps it as a single section at
// base, for use as the decoder's object file when no real section table is
// available.
func loadFlatImage(path string, base uint64) (*isa.FlatImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rvt.NewErrorMsg(rvt.ErrFileOpen, err.Error())
	}
	img := isa.NewFlatImage()
	if err := img.AddSection("text", base, data); err != nil {
		return nil, rvt.NewErrorMsg(rvt.ErrBadConfig, err.Error())
	}
	return img, nil
}
