// Package exporter publishes per-socket gauges to metric backends.
package exporter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/meter"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

const (
	namespace = "sockwatch"
	subsystem = "tcp"
)

// PromMeter is the set of collectors registered for one socket.
type PromMeter []prometheus.Collector

type Prometheus struct {
	reg prometheus.Registerer
	src meter.Source
	def float64
}

// NewPrometheus returns a manager that registers one GaugeFunc per gauge
// for every admitted socket and unregisters them when the socket goes
// away. def is reported by gauges whose value is unavailable.
func NewPrometheus(reg prometheus.Registerer, src meter.Source, match meter.Matcher, def float64) *meter.Manager[PromMeter] {
	p := &Prometheus{reg: reg, src: src, def: def}
	return meter.NewManager[PromMeter](match, p.create, p.destroy)
}

func socketLabels(id model.Identity, snap *snapshot.Snapshot) prometheus.Labels {
	pid := 0
	if rec, ok := snap.Get(id); ok {
		pid = rec.PID
	}
	return prometheus.Labels{
		"local_addr":  id.LocalAddr.String(),
		"local_port":  strconv.Itoa(int(id.LocalPort)),
		"remote_addr": id.RemoteAddr.String(),
		"remote_port": strconv.Itoa(int(id.RemotePort)),
		"pid":         strconv.Itoa(pid),
	}
}

func (p *Prometheus) create(id model.Identity, snap *snapshot.Snapshot) (PromMeter, bool) {
	labels := socketLabels(id, snap)

	var m PromMeter
	for _, g := range meter.All(id, p.src, p.def) {
		c := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        g.Name,
			Help:        g.Help,
			ConstLabels: labels,
		}, g.Value)
		if err := p.reg.Register(c); err != nil {
			logger.Warnw("register socket gauge", "socket", id.String(), "gauge", g.Name, "error", err)
			p.destroy(id, m)
			return nil, false
		}
		m = append(m, c)
	}
	return m, true
}

func (p *Prometheus) destroy(_ model.Identity, m PromMeter) {
	for _, c := range m {
		p.reg.Unregister(c)
	}
}
