package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pulp-platform/trdb/internal/encoder"
	"github.com/pulp-platform/trdb/internal/isa"
	"github.com/pulp-platform/trdb/internal/rvt"
	"github.com/pulp-platform/trdb/internal/serial"
	"github.com/pulp-platform/trdb/internal/stimulus"
)

func newEncodeCmd() *cobra.Command {
	var cfgFlags configFlags
	var stimulusPath, csvPath, outPath string

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a retired-instruction trace into a packet stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (stimulusPath == "") == (csvPath == "") {
				return fmt.Errorf("exactly one of --stimulus or --csv is required")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			instrs, err := readTrace(stimulusPath, csvPath)
			if err != nil {
				return err
			}
			return runEncode(instrs, cfgFlags.config(), cfgFlags.logger(), outPath)
		},
	}
	cfgFlags.register(cmd)
	cmd.Flags().StringVar(&stimulusPath, "stimulus", "", "whitespace key=value stimulus file")
	cmd.Flags().StringVar(&csvPath, "csv", "", "VALID,ADDRESS,INSN,... CSV file")
	cmd.Flags().StringVar(&outPath, "out", "", "packet-stream output file (required)")
	return cmd
}

func readTrace(stimulusPath, csvPath string) ([]rvt.Instr, error) {
	path := stimulusPath
	parse := stimulus.ParseStimulus
	if csvPath != "" {
		path = csvPath
		parse = stimulus.ParseCSV
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, rvt.NewErrorMsg(rvt.ErrFileOpen, err.Error())
	}
	defer f.Close()
	return parse(f)
}

func runEncode(instrs []rvt.Instr, cfg rvt.Config, logger rvt.Logger, outPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return rvt.NewErrorMsg(rvt.ErrFileOpen, err.Error())
	}
	defer out.Close()

	enc := encoder.New(cfg, isa.Classifier{ImplicitRet: cfg.ImplicitRet}, logger)
	sw := serial.NewStreamWriter(out, cfg)

	for _, in := range instrs {
		pkt, err := enc.Step(in)
		if err != nil {
			return err
		}
		if pkt != nil {
			if err := sw.WritePacket(pkt); err != nil {
				return err
			}
		}
	}
	pkt, err := enc.Finish()
	if err != nil {
		return err
	}
	if pkt != nil {
		if err := sw.WritePacket(pkt); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	fmt.Print(enc.Stats().String())
	return nil
}
