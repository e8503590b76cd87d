package app

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/sockwatch/internal/proc"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config resolution so version works with a broken config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sockwatch %s", version)
			if commit != "" {
				fmt.Fprintf(out, " (commit %s", commit)
				if buildDate != "" {
					fmt.Fprintf(out, ", built %s", buildDate)
				}
				fmt.Fprint(out, ")")
			}
			fmt.Fprintf(out, " %s/%s\n", runtime.GOOS, runtime.GOARCH)
			if err := proc.Availability(); err != nil {
				fmt.Fprintf(out, "socket probe unavailable: %v\n", err)
			}
		},
	}
}

func unsupportedError() error {
	if err := proc.Availability(); err != nil {
		return err
	}
	return proc.ErrUnavailable
}
