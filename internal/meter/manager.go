// Package meter keeps a set of per-socket resources in step with the
// snapshots published by a snapshot.Store.
package meter

import (
	"sync"

	"github.com/pranshuparmar/sockwatch/internal/filter"
	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

var _ snapshot.Reconciler = (*Manager[struct{}])(nil)

// Matcher decides whether a newly seen socket should get a meter.
type Matcher interface {
	Match(model.Identity) (bool, error)
}

// MatchFunc adapts a plain predicate.
type MatchFunc func(model.Identity) bool

func (f MatchFunc) Match(id model.Identity) (bool, error) { return f(id), nil }

// MatchAll admits every socket.
var MatchAll = MatchFunc(func(model.Identity) bool { return true })

// MatchFilter admits sockets whose ports satisfy a validated expression.
func MatchFilter(n *filter.Node) Matcher {
	return MatchFunc(func(id model.Identity) bool {
		return n.Match(id.LocalPort, id.RemotePort)
	})
}

// Factory creates the meter for a socket. Returning false means the socket
// is seen but deliberately not tracked.
type Factory[T any] func(id model.Identity, snap *snapshot.Snapshot) (T, bool)

// Destructor releases a meter created by the matching Factory.
type Destructor[T any] func(id model.Identity, meter T)

// Manager owns one meter per tracked socket.
//
// A socket is admitted the first cycle it appears and matches. It is
// evicted only when it disappears from the snapshot: a tracked socket that
// stops matching keeps its meter.
type Manager[T any] struct {
	match   Matcher
	create  Factory[T]
	destroy Destructor[T]

	mu      sync.Mutex
	managed map[model.Identity]T
}

func NewManager[T any](match Matcher, create Factory[T], destroy Destructor[T]) *Manager[T] {
	if match == nil {
		match = MatchAll
	}
	return &Manager[T]{
		match:   match,
		create:  create,
		destroy: destroy,
		managed: make(map[model.Identity]T),
	}
}

// Reconcile creates meters for new matching sockets, then destroys the
// meters of sockets missing from snap. It reports whether anything changed.
// A matcher error counts as no match and the socket is retried next cycle.
func (m *Manager[T]) Reconcile(snap *snapshot.Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	var matchErr error
	snap.Range(func(id model.Identity, _ model.Record) bool {
		if _, ok := m.managed[id]; ok {
			return true
		}
		ok, err := m.match.Match(id)
		if err != nil {
			if matchErr == nil {
				matchErr = err
			}
			return true
		}
		if !ok {
			return true
		}
		if meter, ok := m.create(id, snap); ok {
			m.managed[id] = meter
			changed = true
		}
		return true
	})
	if matchErr != nil {
		logger.Warnw("socket matcher failed", "error", matchErr)
	}

	for id, meter := range m.managed {
		if snap.Contains(id) {
			continue
		}
		m.destroy(id, meter)
		delete(m.managed, id)
		changed = true
	}
	return changed
}

// Close destroys every meter. The manager can be reconciled again later
// and starts from empty.
func (m *Manager[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, meter := range m.managed {
		m.destroy(id, meter)
	}
	m.managed = make(map[model.Identity]T)
	return nil
}

func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.managed)
}

func (m *Manager[T]) Lookup(id model.Identity) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meter, ok := m.managed[id]
	return meter, ok
}

// Managed returns the tracked identities.
func (m *Manager[T]) Managed() []model.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]model.Identity, 0, len(m.managed))
	for id := range m.managed {
		ids = append(ids, id)
	}
	return ids
}

// Each calls fn for every tracked meter while holding the manager's lock,
// fn must not call back into the manager.
func (m *Manager[T]) Each(fn func(model.Identity, T)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, meter := range m.managed {
		fn(id, meter)
	}
}

// NewTracker returns a manager that only records which sockets are tracked.
func NewTracker(match Matcher) *Manager[struct{}] {
	return NewManager(match,
		func(model.Identity, *snapshot.Snapshot) (struct{}, bool) { return struct{}{}, true },
		func(model.Identity, struct{}) {},
	)
}
