package root

import (
	"github.com/spf13/cobra"

	"github.com/satctl/satctl/cmd/solve"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "satctl",
		Short: "satctl is an incremental SAT solving control plane",
		Long: `A control plane for incremental SAT solving over a CDCL engine:
staged clause construction, one-shot assumptions, bounded interruptible
search, DRUP certificates and batch telemetry.`,
	}

	// add sub-commands
	rootCmd.AddCommand(solve.NewSolveCommand())

	return rootCmd
}
