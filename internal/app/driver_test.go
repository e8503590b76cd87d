package app

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pranshuparmar/sockwatch/internal/proc"
	"github.com/pranshuparmar/sockwatch/internal/query"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func mustAddr(s string) netip.Addr { return netip.MustParseAddr(s) }

type stubProbe struct {
	mu        sync.Mutex
	available bool
	err       error
	fetches   int
}

func (p *stubProbe) Available() bool { return p.available }

func (p *stubProbe) Fetch(context.Context, query.Spec) ([]model.RawSocket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.err != nil {
		return nil, p.err
	}
	return []model.RawSocket{{
		Protocol:   model.ProtocolTCP,
		Family:     model.FamilyIPv4,
		State:      model.StateEstablished,
		LocalAddr:  "127.0.0.1",
		LocalPort:  40000,
		RemoteAddr: "127.0.0.1",
		RemotePort: 9465,
	}}, nil
}

func (p *stubProbe) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

func TestDriver_Tick(t *testing.T) {
	t.Run("publishes and runs hooks", func(t *testing.T) {
		store := snapshot.NewStore(&stubProbe{available: true})
		d := newDriver(store, nil, time.Minute)
		var seen []int
		d.after = append(d.after, func(s *snapshot.Snapshot) { seen = append(seen, s.Len()) })

		require.NoError(t, d.tick(context.Background()))
		assert.Equal(t, []int{1}, seen)
		assert.Equal(t, 1, store.Current().Len())
	})

	t.Run("unavailable probe stops the loop", func(t *testing.T) {
		d := newDriver(snapshot.NewStore(&stubProbe{}), nil, time.Minute)
		assert.ErrorIs(t, d.tick(context.Background()), proc.ErrUnavailable)
	})

	t.Run("invalid spec stops the loop", func(t *testing.T) {
		d := newDriver(snapshot.NewStore(&stubProbe{available: true}), &query.Spec{Family: 42}, time.Minute)
		var specErr *query.InvalidSpecError
		assert.ErrorAs(t, d.tick(context.Background()), &specErr)
	})

	t.Run("fetch failure is transient", func(t *testing.T) {
		store := snapshot.NewStore(&stubProbe{available: true, err: errors.New("read failed")})
		d := newDriver(store, nil, time.Minute)
		called := false
		d.after = append(d.after, func(*snapshot.Snapshot) { called = true })

		assert.NoError(t, d.tick(context.Background()))
		assert.False(t, called)
		assert.Equal(t, 0, store.Current().Len())
	})
}

func TestDriver_Run(t *testing.T) {
	probe := &stubProbe{available: true}
	d := newDriver(snapshot.NewStore(probe), nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	require.Eventually(t, func() bool { return probe.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("driver did not stop")
	}
}

func TestDriver_RunUnavailable(t *testing.T) {
	d := newDriver(snapshot.NewStore(&stubProbe{}), nil, time.Millisecond)
	assert.ErrorIs(t, d.run(context.Background()), proc.ErrUnavailable)
}
