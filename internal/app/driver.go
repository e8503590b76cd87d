package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/proc"
	"github.com/pranshuparmar/sockwatch/internal/query"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
)

// driver refreshes the store on a fixed period.
type driver struct {
	store    *snapshot.Store
	spec     *query.Spec
	interval time.Duration
	after    []func(*snapshot.Snapshot)

	failures rate.Sometimes
}

func newDriver(store *snapshot.Store, spec *query.Spec, interval time.Duration) *driver {
	return &driver{
		store:    store,
		spec:     spec,
		interval: interval,
		failures: rate.Sometimes{First: 3, Interval: time.Minute},
	}
}

// run refreshes immediately and then every interval until ctx is done.
// Only permanent problems end it early.
func (d *driver) run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *driver) tick(ctx context.Context) error {
	start := time.Now()
	ok, err := d.store.Refresh(ctx, d.spec)
	if !ok {
		var specErr *query.InvalidSpecError
		switch {
		case errors.Is(err, proc.ErrUnavailable), errors.As(err, &specErr):
			return err
		case ctx.Err() != nil:
			return nil
		}
		d.failures.Do(func() {
			logger.Warnw("socket refresh failed", "error", err)
		})
		return nil
	}

	snap := d.store.Current()
	logger.Debugw("socket refresh done", "sockets", snap.Len(), "took", time.Since(start))
	for _, fn := range d.after {
		fn(snap)
	}
	return nil
}
