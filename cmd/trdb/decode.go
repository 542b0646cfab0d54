package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pulp-platform/trdb/internal/decoder"
	"github.com/pulp-platform/trdb/internal/isa"
)

func newDecodeCmd() *cobra.Command {
	var cfgFlags configFlags
	var inPath, imagePath, baseHex, entryHex string

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a packet stream back into an instruction-address sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" || imagePath == "" || entryHex == "" {
				return fmt.Errorf("--in, --image and --entry are required")
			}
			base, err := strconv.ParseUint(baseHex, 0, 64)
			if err != nil {
				return fmt.Errorf("bad --base: %w", err)
			}
			entry, err := strconv.ParseUint(entryHex, 0, 64)
			if err != nil {
				return fmt.Errorf("bad --entry: %w", err)
			}

			cfg := cfgFlags.config()
			img, err := loadFlatImage(imagePath, base)
			if err != nil {
				return err
			}
			walker := isa.NewWalker(img, cfg.ImplicitRet)
			dec, err := decoder.New(cfg, walker, img, entry, cfgFlags.logger())
			if err != nil {
				return err
			}

			packets, err := readAllPackets(inPath, cfg)
			if err != nil {
				return err
			}
			for _, p := range packets {
				instrs, err := dec.Decode(p)
				if err != nil {
					return err
				}
				for _, in := range instrs {
					fmt.Printf("%#x priv=%d\n", in.IAddr, in.Priv)
				}
			}
			return nil
		},
	}
	cfgFlags.register(cmd)
	cmd.Flags().StringVar(&inPath, "in", "", "packet-stream input file (required)")
	cmd.Flags().StringVar(&imagePath, "image", "", "flat binary image file (required)")
	cmd.Flags().StringVar(&baseHex, "base", "0x0", "VMA the image is loaded at")
	cmd.Flags().StringVar(&entryHex, "entry", "", "entry PC (required)")
	return cmd
}
