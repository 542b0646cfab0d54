package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulp-platform/trdb/internal/addrpack"
	"github.com/pulp-platform/trdb/internal/rvt"
)

func newStatsCmd() *cobra.Command {
	var cfgFlags configFlags
	var inPath string
	var list bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize an existing packet stream's statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if inPath == "" {
				return fmt.Errorf("--in is required")
			}
			cfg := cfgFlags.config()
			packets, err := readAllPackets(inPath, cfg)
			if err != nil {
				return err
			}

			stats := rvt.NewStats()
			for _, p := range packets {
				if list {
					fmt.Println(p.String())
				}
				sextBits := 0
				if p.MsgType == rvt.MsgTrace {
					sextBits = addrpack.SignExtendableBits(p.Address, cfg.XLen())
				}
				stats.RecordPacket(p, p.Address, cfg.XLen(), sextBits)
			}
			fmt.Print(stats.String())
			return nil
		},
	}
	cfgFlags.register(cmd)
	cmd.Flags().StringVar(&inPath, "in", "", "packet-stream input file (required)")
	cmd.Flags().BoolVar(&list, "list", false, "print every packet before the summary")
	return cmd
}
