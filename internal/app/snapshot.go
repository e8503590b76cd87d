package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/sockwatch/internal/output"
)

func newSnapshotCmd(opts *options) *cobra.Command {
	var (
		jsonOut bool
		noColor bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Take one socket snapshot and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := opts.cfg.QuerySpec()
			if err != nil {
				return err
			}
			store := opts.newStore()
			if !store.Supported() {
				return unsupportedError()
			}
			if _, err := store.Refresh(cmd.Context(), spec); err != nil {
				return err
			}

			snap := store.Current()
			if jsonOut {
				out, err := output.ToJSON(snap)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			}
			output.RenderTable(cmd.OutOrStdout(), snap, !noColor && os.Getenv("NO_COLOR") == "")
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colors")
	return cmd
}
