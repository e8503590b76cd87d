package exporter_test

import (
	"net"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/sockwatch/internal/exporter"
	"github.com/pranshuparmar/sockwatch/internal/meter"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

type source struct {
	mu   sync.Mutex
	snap *snapshot.Snapshot
}

func (s *source) Current() *snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *source) set(snap *snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

var (
	sockA = model.Identity{
		LocalAddr:  netip.MustParseAddr("10.0.0.1"),
		LocalPort:  5000,
		RemoteAddr: netip.MustParseAddr("10.0.0.2"),
		RemotePort: 80,
	}
	sockB = model.Identity{
		LocalAddr:  netip.MustParseAddr("10.0.0.1"),
		LocalPort:  22,
		RemoteAddr: netip.MustParseAddr("10.0.0.3"),
		RemotePort: 9999,
	}
)

func snapOf(recs map[model.Identity]model.Record) *snapshot.Snapshot {
	return snapshot.New(recs, time.Now())
}

func gatherValues(t *testing.T, reg *prometheus.Registry, name string) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			var port string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "local_port" {
					port = lp.GetValue()
				}
			}
			out[port] = m.GetGauge().GetValue()
		}
	}
	return out
}

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &source{}
	src.set(snapOf(map[model.Identity]model.Record{
		sockA: {TxQueue: 16, PID: 42, TCP: &model.TCPInfo{SndCwnd: 10}},
		sockB: {TxQueue: 4},
	}))

	mgr := exporter.NewPrometheus(reg, src, meter.MatchAll, -1)
	require.True(t, mgr.Reconcile(src.Current()))
	assert.Equal(t, 2, mgr.Len())

	assert.Equal(t, map[string]float64{"5000": 16, "22": 4}, gatherValues(t, reg, "sockwatch_tcp_tx_queue"))
	assert.Equal(t, map[string]float64{"5000": 10, "22": -1}, gatherValues(t, reg, "sockwatch_tcp_snd_cwnd"))

	t.Run(
		"gauges follow the current snapshot", func(t *testing.T) {
			src.set(snapOf(map[model.Identity]model.Record{
				sockA: {TxQueue: 99, PID: 42, TCP: &model.TCPInfo{SndCwnd: 10}},
				sockB: {TxQueue: 4},
			}))
			assert.Equal(t, float64(99), gatherValues(t, reg, "sockwatch_tcp_tx_queue")["5000"])
		},
	)

	t.Run(
		"gone sockets are unregistered", func(t *testing.T) {
			src.set(snapOf(map[model.Identity]model.Record{sockA: {TxQueue: 1}}))
			require.True(t, mgr.Reconcile(src.Current()))
			assert.Equal(t, map[string]float64{"5000": 1}, gatherValues(t, reg, "sockwatch_tcp_tx_queue"))
		},
	)

	t.Run(
		"close unregisters everything", func(t *testing.T) {
			require.NoError(t, mgr.Close())
			families, err := reg.Gather()
			require.NoError(t, err)
			assert.Empty(t, families)
		},
	)
}

func TestPrometheus_DuplicateRegistrationIsDeclined(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &source{}
	src.set(snapOf(map[model.Identity]model.Record{sockA: {}}))

	first := exporter.NewPrometheus(reg, src, meter.MatchAll, 0)
	second := exporter.NewPrometheus(reg, src, meter.MatchAll, 0)
	assert.True(t, first.Reconcile(src.Current()))
	assert.False(t, second.Reconcile(src.Current()))
	assert.Equal(t, 0, second.Len())
	assert.Equal(t, 1, first.Len())
}

type gaugeSample struct {
	name  string
	value float64
	tags  []string
}

type recordingClient struct {
	*statsd.NoOpClient
	mu      sync.Mutex
	samples []gaugeSample
	closed  bool
}

func (c *recordingClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingClient) Gauge(name string, value float64, tags []string, _ float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, gaugeSample{name: name, value: value, tags: tags})
	return nil
}

func TestStatsd_Flush(t *testing.T) {
	client := &recordingClient{NoOpClient: &statsd.NoOpClient{}}
	src := &source{}
	src.set(snapOf(map[model.Identity]model.Record{
		sockA: {RxQueue: 7, PID: 42},
		sockB: {RxQueue: 3},
	}))

	s := exporter.NewStatsd(client, src, meter.MatchFunc(func(id model.Identity) bool { return id.RemotePort == 80 }), 0)
	require.True(t, s.Manager().Reconcile(src.Current()))
	require.NoError(t, s.Flush())

	var names []string
	var rx *gaugeSample
	for i, sample := range client.samples {
		names = append(names, sample.name)
		if sample.name == "tcp.rx_queue" {
			rx = &client.samples[i]
		}
	}
	sort.Strings(names)
	assert.Len(t, names, len(meter.All(sockA, src, 0)))
	require.NotNil(t, rx)
	assert.Equal(t, float64(7), rx.value)
	assert.Contains(t, rx.tags, "local_port:5000")
	assert.Contains(t, rx.tags, "pid:42")

	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.Manager().Len())
	assert.True(t, client.closed, "closing the exporter closes the client")
}

func TestStatsd_WireNames(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	client, err := exporter.NewStatsdClient(conn.LocalAddr().String(), statsd.WithoutTelemetry())
	require.NoError(t, err)

	src := &source{}
	src.set(snapOf(map[model.Identity]model.Record{sockA: {RxQueue: 7}}))
	s := exporter.NewStatsd(client, src, nil, 0)
	require.True(t, s.Manager().Reconcile(src.Current()))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var payload strings.Builder
	buf := make([]byte, 65536)
	for !strings.Contains(payload.String(), "rx_queue") {
		n, _, err := conn.ReadFrom(buf)
		require.NoError(t, err)
		payload.Write(buf[:n])
	}

	assert.Contains(t, payload.String(), "sockwatch.tcp.rx_queue:7|g")
	assert.NotContains(t, payload.String(), "sockwatch.sockwatch.")
}
