// Package aggregator turns external address sources into a socket matcher.
//
// Pulling sources can be expensive, so the aggregated addresses are cached
// and rebuilt at most once per refresh interval no matter how many sockets
// are tested against it.
package aggregator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

type Mode uint8

const (
	// MatchLocal tests the local endpoint of a socket.
	MatchLocal Mode = iota
	// MatchRemote tests the remote endpoint.
	MatchRemote
	// MatchBoth matches when either endpoint does.
	MatchBoth
)

func (m Mode) String() string {
	switch m {
	case MatchLocal:
		return "local"
	case MatchRemote:
		return "remote"
	default:
		return "both"
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "local":
		return MatchLocal, nil
	case "remote", "":
		return MatchRemote, nil
	case "both":
		return MatchBoth, nil
	}
	return MatchRemote, fmt.Errorf("unknown match mode %q", s)
}

// RefreshError is returned by Match to the caller whose call hit a failing
// source. The cache is emptied when it happens.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return "refresh address cache: " + e.Err.Error()
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// DefaultRetryBackoff is how long an empty cache left by a failed pull is
// served before the sources are tried again.
const DefaultRetryBackoff = time.Second

type Aggregator struct {
	mode     Mode
	interval time.Duration
	retry    time.Duration
	sources  SourceSet
	now      func() time.Time

	mu    sync.Mutex    // held only while pulling sources
	due   *atomic.Int64 // unix nanos of the next pull
	cache *atomic.Pointer[Cache]
	pulls *atomic.Int64
}

type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithRetryBackoff sets the wait after a failed pull. It never exceeds the
// refresh interval.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Aggregator) { a.retry = d }
}

func New(mode Mode, interval time.Duration, sources SourceSet, opts ...Option) *Aggregator {
	if sources == nil {
		sources = Sources()
	}
	a := &Aggregator{
		mode:     mode,
		interval: interval,
		retry:    DefaultRetryBackoff,
		sources:  sources,
		now:      time.Now,
		due:      atomic.NewInt64(0),
		cache:    atomic.NewPointer(emptyCache),
		pulls:    atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.retry > a.interval {
		a.retry = a.interval
	}
	return a
}

// Match reports whether the socket's endpoint(s) selected by the mode are
// among the aggregated addresses. It refreshes the cache first if it is
// older than the refresh interval.
func (a *Aggregator) Match(id model.Identity) (bool, error) {
	if err := a.maybeRefresh(); err != nil {
		return false, err
	}

	c := a.cache.Load()
	switch a.mode {
	case MatchLocal:
		return c.Contains(id.LocalAddr, id.LocalPort), nil
	case MatchRemote:
		return c.Contains(id.RemoteAddr, id.RemotePort), nil
	default:
		return c.Contains(id.LocalAddr, id.LocalPort) || c.Contains(id.RemoteAddr, id.RemotePort), nil
	}
}

// Cache returns the currently published cache.
func (a *Aggregator) Cache() *Cache {
	return a.cache.Load()
}

// Pulls counts how many times the sources have been pulled.
func (a *Aggregator) Pulls() int64 {
	return a.pulls.Load()
}

func (a *Aggregator) stale(now int64) bool {
	return now >= a.due.Load()
}

func (a *Aggregator) maybeRefresh() error {
	now := a.now().UnixNano()
	if !a.stale(now) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// someone else may have refreshed while we waited
	if !a.stale(now) {
		return nil
	}

	// Callers queued on mu see the new due time and use whatever was
	// published, so one pull serves the whole window even when it fails.
	c, err := a.pull()
	if err != nil {
		a.cache.Store(emptyCache)
		a.due.Store(now + int64(a.retry))
		logger.Debugw("address cache cleared", "error", err, "retry_in", a.retry)
		return &RefreshError{Err: err}
	}
	a.cache.Store(c)
	a.due.Store(now + int64(a.interval))
	logger.Debugw("address cache refreshed", "ports", c.Ports(), "addresses", c.Addresses())
	return nil
}

func (a *Aggregator) pull() (*Cache, error) {
	a.pulls.Inc()

	sources, err := a.sources()
	if err != nil {
		return nil, err
	}

	c := newCache()
	for _, src := range sources {
		if src == nil {
			continue
		}
		addrs, err := src.Addresses()
		if err != nil {
			return nil, err
		}
		for _, ap := range addrs {
			if !ap.IsValid() {
				continue
			}
			c.add(ap)
		}
	}
	return c, nil
}
