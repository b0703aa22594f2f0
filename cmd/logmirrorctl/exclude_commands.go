package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"logmirror/internal/logmirror/config"
	"logmirror/internal/logmirror/exclude"
)

func newExcludeCommand(cfg config.Config) *cobra.Command {
	var file string

	excludeCmd := &cobra.Command{
		Use:   "exclude",
		Short: "Manage the exclusion list",
		Long: "Manage the list of container names the daemon must not capture.\n" +
			"Changes take effect at the daemon's next reconciliation pass; no restart is needed.",
	}
	excludeCmd.PersistentFlags().StringVar(&file, "file", cfg.ExcludeFile, "Exclusion file path")

	store := func() *exclude.Store { return exclude.NewStore(file) }

	excludeCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List excluded container names",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := store().Load()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(set))
			for name := range set {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	excludeCmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Exclude a container from capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := store().Add(args[0])
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already excluded\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Excluded %s; capture stops at the daemon's next pass\n", args[0])
			return nil
		},
	})

	excludeCmd.AddCommand(&cobra.Command{
		Use:   "remove NAME",
		Short: "Stop excluding a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := store().Remove(args[0])
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not excluded\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s; capture resumes at the daemon's next pass\n", args[0])
			return nil
		},
	})

	return excludeCmd
}
