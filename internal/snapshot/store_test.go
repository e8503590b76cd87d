package snapshot_test

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

	"github.com/pranshuparmar/sockwatch/internal/filter"
	"github.com/pranshuparmar/sockwatch/internal/proc"
	"github.com/pranshuparmar/sockwatch/internal/query"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeProbe struct {
	mu        sync.Mutex
	available bool
	socks     []model.RawSocket
	err       error
	specs     []query.Spec
}

func (p *fakeProbe) Available() bool { return p.available }

func (p *fakeProbe) Fetch(_ context.Context, spec query.Spec) ([]model.RawSocket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.specs = append(p.specs, spec)
	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.RawSocket, 0, len(p.socks))
	for _, s := range p.socks {
		if spec.MatchPorts(s.LocalPort, s.RemotePort) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *fakeProbe) set(socks ...model.RawSocket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.socks = socks
}

func tcp4(local string, lport uint16, remote string, rport uint16) model.RawSocket {
	return model.RawSocket{
		Protocol:   model.ProtocolTCP,
		Family:     model.FamilyIPv4,
		State:      model.StateEstablished,
		LocalAddr:  local,
		LocalPort:  lport,
		RemoteAddr: remote,
		RemotePort: rport,
		TCP:        &model.TCPInfo{RTT: 1200},
	}
}

func ident(local string, lport uint16, remote string, rport uint16) model.Identity {
	return model.Identity{
		LocalAddr:  netip.MustParseAddr(local),
		LocalPort:  lport,
		RemoteAddr: netip.MustParseAddr(remote),
		RemotePort: rport,
	}
}

type recordingReconciler struct {
	name  string
	log   *[]string
	snaps []*snapshot.Snapshot
}

func (r *recordingReconciler) Reconcile(s *snapshot.Snapshot) bool {
	*r.log = append(*r.log, r.name)
	r.snaps = append(r.snaps, s)
	return false
}

func TestToIPv4(t *testing.T) {
	tests := []struct {
		family model.Family
		in     string
		want   string
		ok     bool
	}{
		{model.FamilyIPv4, "10.0.0.1", "10.0.0.1", true},
		{model.FamilyIPv6, "::ffff:10.0.0.1", "10.0.0.1", true},
		{model.FamilyIPv6, "::FFFF:192.168.1.20", "192.168.1.20", true},
		{model.FamilyIPv6, "::1", "", false},
		{model.FamilyIPv6, "fe80::1", "", false},
		{model.FamilyIPv6, "::ffff:", "", false},
		{model.FamilyIPv6, "::ffff:10.0.0", "", false},
		{model.FamilyIPv6, "::ffff:0a00:0001", "", false},
		{model.FamilyIPv4, "not-an-ip", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := snapshot.ToIPv4(tt.family, tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestStore_Refresh(t *testing.T) {
	t.Run(
		"publishes keyed tcp sockets", func(t *testing.T) {
			probe := &fakeProbe{available: true}
			mapped := tcp4("::ffff:10.0.0.1", 8080, "::ffff:10.0.0.2", 80)
			mapped.Family = model.FamilyIPv6
			native6 := tcp4("::1", 53, "::1", 5353)
			native6.Family = model.FamilyIPv6
			udp := tcp4("10.0.0.1", 53, "10.0.0.9", 5353)
			udp.Protocol = model.ProtocolUDP
			probe.set(tcp4("10.0.0.1", 5000, "10.0.0.2", 80), mapped, native6, udp)

			taken := time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
			store := snapshot.NewStore(probe, snapshot.WithClock(func() time.Time { return taken }))
			assert.Equal(t, 0, store.Current().Len())

			ok, err := store.Refresh(context.Background(), nil)
			require.NoError(t, err)
			require.True(t, ok)

			snap := store.Current()
			assert.Equal(t, 2, snap.Len())
			assert.Equal(t, 3, snap.Observed())
			assert.Equal(t, taken, snap.Taken())
			assert.True(t, snap.Contains(ident("10.0.0.1", 5000, "10.0.0.2", 80)))
			assert.True(t, snap.Contains(ident("10.0.0.1", 8080, "10.0.0.2", 80)))
			assert.Equal(t, []model.Identity{
				ident("10.0.0.1", 5000, "10.0.0.2", 80),
				ident("10.0.0.1", 8080, "10.0.0.2", 80),
			}, snap.Identities())

			rec, ok := snap.Get(ident("10.0.0.1", 5000, "10.0.0.2", 80))
			require.True(t, ok)
			require.NotNil(t, rec.TCP)
			assert.Equal(t, uint32(1200), rec.TCP.RTT)
		},
	)

	t.Run(
		"failures keep the previous snapshot", func(t *testing.T) {
			probe := &fakeProbe{available: true}
			probe.set(tcp4("10.0.0.1", 5000, "10.0.0.2", 80))
			store := snapshot.NewStore(probe)
			ok, err := store.Refresh(context.Background(), nil)
			require.NoError(t, err)
			require.True(t, ok)
			before := store.Current()

			probe.err = &proc.FetchError{Path: "/proc/net/tcp", Err: errors.New("boom")}
			ok, err = store.Refresh(context.Background(), nil)
			assert.False(t, ok)
			var ferr *proc.FetchError
			assert.ErrorAs(t, err, &ferr)
			assert.Same(t, before, store.Current())

			leaf := filter.Eq(filter.SideDst, 80)
			ok, err = store.Refresh(context.Background(), &query.Spec{Filter: leaf.Or(leaf)})
			assert.False(t, ok)
			var serr *query.InvalidSpecError
			assert.ErrorAs(t, err, &serr)
			assert.Same(t, before, store.Current())

			probe.available = false
			ok, err = store.Refresh(context.Background(), nil)
			assert.False(t, ok)
			assert.ErrorIs(t, err, proc.ErrUnavailable)
			assert.Same(t, before, store.Current())
			assert.False(t, store.Supported())
		},
	)

	t.Run(
		"probe receives the assembled spec", func(t *testing.T) {
			probe := &fakeProbe{available: true}
			probe.set(
				tcp4("10.0.0.1", 5000, "10.0.0.2", 80),
				tcp4("10.0.0.1", 22, "10.0.0.3", 9999),
			)
			store := snapshot.NewStore(probe)
			in := &query.Spec{
				Protocol: model.ProtocolTCP,
				Filter:   filter.Eq(filter.SideDst, 80).Or(filter.Eq(filter.SideSrc, 80)),
			}
			ok, err := store.Refresh(context.Background(), in)
			require.NoError(t, err)
			require.True(t, ok)

			require.Len(t, probe.specs, 1)
			assert.Equal(t, 3, probe.specs[0].NodeCount())
			assert.NotSame(t, in.Filter, probe.specs[0].Filter)

			snap := store.Current()
			assert.True(t, snap.Contains(ident("10.0.0.1", 5000, "10.0.0.2", 80)))
			assert.False(t, snap.Contains(ident("10.0.0.1", 22, "10.0.0.3", 9999)))
		},
	)
}

func TestStore_Reconcilers(t *testing.T) {
	probe := &fakeProbe{available: true}
	store := snapshot.NewStore(probe)

	var order []string
	a := &recordingReconciler{name: "a", log: &order}
	b := &recordingReconciler{name: "b", log: &order}

	assert.True(t, store.AddReconciler(a))
	assert.True(t, store.AddReconciler(b))
	assert.False(t, store.AddReconciler(a))

	ok, err := store.Refresh(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Same(t, store.Current(), a.snaps[0])

	assert.True(t, store.RemoveReconciler(a))
	assert.False(t, store.RemoveReconciler(a))

	_, err = store.Refresh(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "b"}, order)

	t.Run(
		"failed refresh does not reconcile", func(t *testing.T) {
			probe.err = errors.New("boom")
			_, err := store.Refresh(context.Background(), nil)
			require.Error(t, err)
			assert.Len(t, b.snaps, 2)
		},
	)
}

func TestStore_ConcurrentReadsSeeWholeSnapshots(t *testing.T) {
	probe := &fakeProbe{available: true}
	store := snapshot.NewStore(probe)

	// every refresh i publishes exactly i sockets on local port i
	const rounds = 50
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Current()
				n := snap.Len()
				snap.Range(func(id model.Identity, _ model.Record) bool {
					assert.Equal(t, uint16(n), id.LocalPort)
					return true
				})
			}
		}()
	}

	for i := 1; i <= rounds; i++ {
		socks := make([]model.RawSocket, 0, i)
		for j := 0; j < i; j++ {
			socks = append(socks, tcp4("10.0.0.1", uint16(i), "10.0.1.1", uint16(j+1)))
		}
		probe.set(socks...)
		_, err := store.Refresh(context.Background(), nil)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
