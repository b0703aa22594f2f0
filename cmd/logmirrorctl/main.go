// logmirrorctl manages a running logmirror daemon: it edits the exclusion
// list the daemon re-reads every tick and queries the daemon's status
// endpoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"logmirror/common/version"
	"logmirror/internal/logmirror/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "logmirrorctl",
		Short:         "Manage the logmirror daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newExcludeCommand(cfg))
	root.AddCommand(newStatusCommand(cfg))
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
