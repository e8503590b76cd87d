package app

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/meter"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/internal/tui"
)

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Interactive live view of sockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			spec, err := opts.cfg.QuerySpec()
			if err != nil {
				return err
			}
			match, err := opts.cfg.Matcher()
			if err != nil {
				return err
			}
			probe := opts.newProbe()
			store := snapshot.NewStore(probe)
			if !store.Supported() {
				return unsupportedError()
			}

			// the alternate screen owns the terminal
			logger.SetLogger(zap.NewNop())

			tracked := meter.NewTracker(match)
			store.AddReconciler(tracked)
			defer store.RemoveReconciler(tracked)

			return tui.Start(cmd.Context(), tui.Config{
				Store:    store,
				Spec:     spec,
				Interval: opts.cfg.Interval,
				Tracked:  tracked,
				Describe: probe.Process,
				Version:  version,
			})
		},
	}
}
