// Command trdb is the reference front end for the trace encoder/decoder
// library: encode a retired-instruction trace into a packet stream, decode
// a packet stream back into an instruction sequence, or summarize an
// existing packet stream's statistics. It plays the role the teacher
// repo gives cmd/trc_pkt_lister, wired with cobra per SPEC_FULL.md §3
// instead of flag.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pulp-platform/trdb/internal/rvt"
)

// configFlags holds the Config fields every subcommand accepts, bound via
// a shared flag set rather than duplicated per command.
type configFlags struct {
	arch64         bool
	fullAddress    bool
	pulpSext       bool
	implicitRet    bool
	vectorTable    bool
	compressFull   bool
	resyncMax      uint64
	verbose        bool
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.arch64, "arch64", false, "64-bit address width (default 32-bit)")
	cmd.Flags().BoolVar(&f.fullAddress, "full-address", false, "emit full addresses instead of differential")
	cmd.Flags().BoolVar(&f.pulpSext, "pulp-sext", false, "use PULP's sign-extension quantization for address width")
	cmd.Flags().BoolVar(&f.implicitRet, "implicit-ret", false, "treat ret/c.ret as predictable via the return-address stack")
	cmd.Flags().BoolVar(&f.vectorTable, "vector-table", false, "bridge SYNC/EXCEPTION with a following SYNC/START")
	cmd.Flags().BoolVar(&f.compressFull, "compress-full-map", false, "set Config.CompressFullBranchMap (has no effect on the encoded stream or stats)")
	cmd.Flags().Uint64Var(&f.resyncMax, "resync-max", 0, "force a resync after this many qualified instructions (0 disables)")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "log Info/Warning to stdout and Error to stderr")
}

func (f *configFlags) config() rvt.Config {
	return rvt.Config{
		Arch64:                f.arch64,
		FullAddress:           f.fullAddress,
		UsePulpSext:           f.pulpSext,
		ImplicitRet:           f.implicitRet,
		PulpVectorTablePacket: f.vectorTable,
		CompressFullBranchMap: f.compressFull,
		ResyncMax:             f.resyncMax,
	}
}

// logger returns a *rvt.StdLogger when --verbose is set, or nil
// (encoder/decoder fall back to a no-op) otherwise.
func (f *configFlags) logger() rvt.Logger {
	if !f.verbose {
		return nil
	}
	return rvt.NewStdLogger(rvt.SeverityInfo)
}

func main() {
	root := &cobra.Command{
		Use:   "trdb",
		Short: "Encode and decode RISC-V instruction-trace packet streams",
	}
	root.AddCommand(newEncodeCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newStatsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "trdb: %v\n", err)
		os.Exit(1)
	}
}
