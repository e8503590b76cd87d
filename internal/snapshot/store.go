package snapshot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/proc"
	"github.com/pranshuparmar/sockwatch/internal/query"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

// Reconciler is told about every published snapshot, see meter.Manager.
type Reconciler interface {
	Reconcile(*Snapshot) bool
}

// Store owns the current snapshot. Refresh is expected to be called from a
// single driver, Current may be called from anywhere.
type Store struct {
	probe proc.Probe
	now   func() time.Time

	current *atomic.Pointer[Snapshot]

	mu          sync.Mutex // serialises reconciler list updates
	reconcilers *atomic.Pointer[[]Reconciler]
}

type StoreOption func(*Store)

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(probe proc.Probe, opts ...StoreOption) *Store {
	s := &Store{
		probe:       probe,
		now:         time.Now,
		current:     atomic.NewPointer(Empty()),
		reconcilers: atomic.NewPointer(&[]Reconciler{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the last published snapshot. It is never nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Supported reports whether the probe can run on this host.
func (s *Store) Supported() bool {
	return s.probe.Available()
}

// Refresh runs the probe and publishes the TCP sockets it returns, then
// reconciles every registered Reconciler in registration order. On any
// error ok is false and the previous snapshot stays in place: the spec is
// invalid (*query.InvalidSpecError), the probe is unavailable
// (proc.ErrUnavailable) or fetching failed.
func (s *Store) Refresh(ctx context.Context, in *query.Spec) (ok bool, err error) {
	spec, err := query.Assemble(in)
	if err != nil {
		return false, err
	}
	if !s.probe.Available() {
		return false, proc.ErrUnavailable
	}

	raw, err := s.probe.Fetch(ctx, spec)
	if err != nil {
		return false, err
	}

	records := make(map[model.Identity]model.Record, len(raw))
	observed := 0
	for _, sock := range raw {
		if sock.Protocol != model.ProtocolTCP {
			continue
		}
		observed++
		id, ok := Key(sock)
		if !ok {
			continue
		}
		records[id] = sock.Record()
	}

	snap := &Snapshot{records: records, taken: s.now(), observed: observed}
	s.current.Store(snap)
	logger.Debugw("snapshot published", "sockets", snap.Len(), "observed", observed, "query", spec.String())

	for _, r := range *s.reconcilers.Load() {
		r.Reconcile(snap)
	}
	return true, nil
}

// AddReconciler registers r. It returns false if r is already registered.
func (s *Store) AddReconciler(r Reconciler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.reconcilers.Load()
	for _, existing := range old {
		if existing == r {
			return false
		}
	}
	next := make([]Reconciler, len(old), len(old)+1)
	copy(next, old)
	next = append(next, r)
	s.reconcilers.Store(&next)
	return true
}

// RemoveReconciler unregisters r and reports whether it was registered. A
// reconcile pass already in progress still sees r.
func (s *Store) RemoveReconciler(r Reconciler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := *s.reconcilers.Load()
	for i, existing := range old {
		if existing != r {
			continue
		}
		next := make([]Reconciler, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		s.reconcilers.Store(&next)
		return true
	}
	return false
}
