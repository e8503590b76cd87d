package exporter

import (
	"errors"
	"strconv"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/pranshuparmar/sockwatch/internal/meter"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

// StatsdMeter holds the tags and gauges sent for one socket.
type StatsdMeter struct {
	tags   []string
	gauges []meter.Gauge
}

// Statsd pushes the gauges of every tracked socket to DogStatsD on Flush.
type Statsd struct {
	client  statsd.ClientInterface
	src     meter.Source
	def     float64
	manager *meter.Manager[StatsdMeter]
}

// NewStatsdClient dials a DogStatsD agent. The client adds the "sockwatch."
// namespace to every metric name.
func NewStatsdClient(addr string, opts ...statsd.Option) (*statsd.Client, error) {
	return statsd.New(addr, append([]statsd.Option{statsd.WithNamespace(namespace + ".")}, opts...)...)
}

// NewStatsd reports through client, which is expected to carry the
// namespace (see NewStatsdClient).
func NewStatsd(client statsd.ClientInterface, src meter.Source, match meter.Matcher, def float64) *Statsd {
	s := &Statsd{client: client, src: src, def: def}
	s.manager = meter.NewManager[StatsdMeter](match, s.create, func(model.Identity, StatsdMeter) {})
	return s
}

// Manager is what gets registered with the snapshot store.
func (s *Statsd) Manager() *meter.Manager[StatsdMeter] {
	return s.manager
}

func (s *Statsd) create(id model.Identity, snap *snapshot.Snapshot) (StatsdMeter, bool) {
	pid := 0
	if rec, ok := snap.Get(id); ok {
		pid = rec.PID
	}
	return StatsdMeter{
		tags: []string{
			"local_addr:" + id.LocalAddr.String(),
			"local_port:" + strconv.Itoa(int(id.LocalPort)),
			"remote_addr:" + id.RemoteAddr.String(),
			"remote_port:" + strconv.Itoa(int(id.RemotePort)),
			"pid:" + strconv.Itoa(pid),
		},
		gauges: meter.All(id, s.src, s.def),
	}, true
}

// Flush sends one gauge sample per field of every tracked socket.
func (s *Statsd) Flush() error {
	var errs []error
	s.manager.Each(func(_ model.Identity, m StatsdMeter) {
		for _, g := range m.gauges {
			if err := s.client.Gauge(subsystem+"."+g.Name, g.Value(), m.tags, 1); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Close releases the tracked sockets and closes the client, which flushes
// anything still buffered.
func (s *Statsd) Close() error {
	return errors.Join(s.manager.Close(), s.client.Close())
}
