package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pranshuparmar/sockwatch/internal/exporter"
	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
)

func newServeCmd(opts *options) *cobra.Command {
	var defaultValue float64
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh sockets periodically and expose per-socket gauges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts, defaultValue)
		},
	}
	cmd.Flags().StringVar(&opts.cfg.Listen, "listen", opts.cfg.Listen, "address for the /metrics endpoint, empty to disable")
	cmd.Flags().StringVar(&opts.cfg.Statsd, "statsd", "", "DogStatsD address to flush gauges to after every refresh")
	cmd.Flags().Float64Var(&defaultValue, "default-value", 0, "value reported by gauges whose socket is gone")
	return cmd
}

func serve(ctx context.Context, opts *options, def float64) error {
	spec, err := opts.cfg.QuerySpec()
	if err != nil {
		return err
	}
	match, err := opts.cfg.Matcher()
	if err != nil {
		return err
	}

	store := opts.newStore()
	if !store.Supported() {
		return unsupportedError()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := exporter.NewPrometheus(reg, store, match, def)
	store.AddReconciler(prom)
	defer prom.Close()

	drv := newDriver(store, spec, opts.cfg.Interval)
	drv.after = append(drv.after, func(snap *snapshot.Snapshot) {
		logger.Debugw("meters reconciled", "prometheus", prom.Len(), "sockets", snap.Len())
	})

	if opts.cfg.Statsd != "" {
		client, err := exporter.NewStatsdClient(opts.cfg.Statsd)
		if err != nil {
			return err
		}
		sd := exporter.NewStatsd(client, store, match, def)
		store.AddReconciler(sd.Manager())
		defer sd.Close()
		drv.after = append(drv.after, func(*snapshot.Snapshot) {
			if err := sd.Flush(); err != nil {
				logger.Warnw("statsd flush failed", "error", err)
			}
		})
	}

	logger.Infow("sockwatch started",
		"interval", opts.cfg.Interval,
		"query", spec.String(),
		"listen", opts.cfg.Listen,
		"statsd", opts.cfg.Statsd,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return drv.run(ctx) })
	if opts.cfg.Listen != "" {
		srv := &http.Server{
			Addr:              opts.cfg.Listen,
			Handler:           metricsHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Infow("sockwatch stopped", "error", err)
	return err
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
