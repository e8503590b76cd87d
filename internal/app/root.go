package app

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/proc"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
)

var (
	version   = "dev"
	commit    = ""
	buildDate = ""
)

func SetVersionBuildCommitString(v, c, d string) {
	if v != "" {
		version = v
	}
	commit = c
	buildDate = d
}

type options struct {
	configPath   string
	cfg          Config
	matchMode    string
	matchRefresh time.Duration
	matchAddrs   []string
	matchFiles   []string
}

func newRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "sockwatch",
		Short:         "Track TCP socket statistics and export them as metrics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&opts.cfg.ProcRoot, "proc-root", opts.cfg.ProcRoot, "procfs mount point")
	flags.StringVar(&opts.cfg.Family, "family", opts.cfg.Family, "address family: ipv4, ipv6 or empty for both")
	flags.StringVar(&opts.cfg.Protocol, "protocol", opts.cfg.Protocol, "protocol: tcp, udp or any")
	flags.BoolVar(&opts.cfg.CurrentUser, "current-user", false, "only sockets owned by the current user")
	flags.BoolVar(&opts.cfg.CurrentProcess, "current-process", false, "only sockets of this process")
	flags.StringVarP(&opts.cfg.Filter, "filter", "f", "", `port filter, e.g. "dport == 80 or sport == 80"`)
	flags.DurationVarP(&opts.cfg.Interval, "interval", "i", opts.cfg.Interval, "refresh interval")
	flags.StringVar(&opts.matchMode, "match-mode", "remote", "endpoint matched against --match-address: local, remote or both")
	flags.DurationVar(&opts.matchRefresh, "match-refresh", time.Second, "how long matched addresses are cached")
	flags.StringSliceVar(&opts.matchAddrs, "match-address", nil, "only meter sockets talking to ip:port (repeatable)")
	flags.StringSliceVar(&opts.matchFiles, "match-file", nil, "YAML file listing addresses to meter, re-read on refresh")

	root.AddCommand(
		newServeCmd(opts),
		newSnapshotCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return root
}

// resolve merges the config file and the flags the user actually set.
func (o *options) resolve(cmd *cobra.Command) error {
	if o.configPath != "" {
		fromFile := DefaultConfig()
		if err := LoadConfigFile(o.configPath, &fromFile); err != nil {
			return err
		}
		flags := cmd.Flags()
		keep := func(name string) bool { return flags.Changed(name) }
		overlay(keep("log-level"), &o.cfg.LogLevel, fromFile.LogLevel)
		overlay(keep("proc-root"), &o.cfg.ProcRoot, fromFile.ProcRoot)
		overlay(keep("family"), &o.cfg.Family, fromFile.Family)
		overlay(keep("protocol"), &o.cfg.Protocol, fromFile.Protocol)
		overlay(keep("current-user"), &o.cfg.CurrentUser, fromFile.CurrentUser)
		overlay(keep("current-process"), &o.cfg.CurrentProcess, fromFile.CurrentProcess)
		overlay(keep("filter"), &o.cfg.Filter, fromFile.Filter)
		overlay(keep("interval"), &o.cfg.Interval, fromFile.Interval)
		overlay(keep("listen"), &o.cfg.Listen, fromFile.Listen)
		overlay(keep("statsd"), &o.cfg.Statsd, fromFile.Statsd)
		if o.cfg.Match == nil {
			o.cfg.Match = fromFile.Match
		}
	}

	if len(o.matchAddrs) > 0 || len(o.matchFiles) > 0 {
		o.cfg.Match = &MatchConfig{
			Mode:      o.matchMode,
			Refresh:   o.matchRefresh,
			Addresses: o.matchAddrs,
			Files:     o.matchFiles,
		}
	}

	level, err := logger.ParseLevel(o.cfg.LogLevel)
	if err != nil {
		return err
	}
	if err := logger.Init(level); err != nil {
		return err
	}
	return o.cfg.Validate()
}

func overlay[T any](set bool, dst *T, v T) {
	if !set {
		*dst = v
	}
}

func (o *options) newProbe() *proc.ProcNet {
	return proc.NewProcNet(proc.WithRoot(o.cfg.ProcRoot))
}

func (o *options) newStore() *snapshot.Store {
	return snapshot.NewStore(o.newProbe())
}

func Execute() {
	defer logger.Sync()
	opts := &options{cfg: DefaultConfig()}
	if err := newRootCmd(opts).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
