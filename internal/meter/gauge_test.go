package meter_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pranshuparmar/sockwatch/internal/meter"
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

type staticSource struct{ snap *snapshot.Snapshot }

func (s *staticSource) Current() *snapshot.Snapshot { return s.snap }

func TestGauge_Value(t *testing.T) {
	id := model.Identity{
		LocalAddr:  netip.MustParseAddr("10.0.0.1"),
		LocalPort:  5000,
		RemoteAddr: netip.MustParseAddr("10.0.0.2"),
		RemotePort: 80,
	}
	withInfo := snapshot.New(map[model.Identity]model.Record{
		id: {
			TxQueue: 16,
			RxQueue: 32,
			TCP: &model.TCPInfo{
				RTT:              1500,
				RTO:              204000,
				ATO:              40000,
				Retransmits:      2,
				TotalRetransmits: 7,
				SndCwnd:          10,
				SndSSThresh:      20,
			},
		},
	}, time.Now())
	src := &staticSource{snap: withInfo}

	t.Run(
		"reads the current snapshot", func(t *testing.T) {
			values := map[string]float64{}
			for _, g := range meter.All(id, src, -1) {
				values[g.Name] = g.Value()
			}
			assert.Equal(t, map[string]float64{
				"tx_queue":          16,
				"rx_queue":          32,
				"rtt_microseconds":  1500,
				"rto_microseconds":  204000,
				"ato_microseconds":  40000,
				"retransmits_total": 7,
				"retransmits":       2,
				"snd_cwnd":          10,
				"snd_ssthresh":      20,
			}, values)
		},
	)

	t.Run(
		"falls back to default without tcp info", func(t *testing.T) {
			src := &staticSource{snap: snapshot.New(map[model.Identity]model.Record{id: {TxQueue: 3}}, time.Now())}
			assert.Equal(t, float64(3), meter.TxQueue(id, src, -1).Value())
			assert.Equal(t, float64(-1), meter.RTT(id, src, -1).Value())
		},
	)

	t.Run(
		"falls back to default once the socket is gone", func(t *testing.T) {
			src := &staticSource{snap: withInfo}
			g := meter.Cwnd(id, src, -1)
			assert.Equal(t, float64(10), g.Value())

			src.snap = snapshot.Empty()
			assert.Equal(t, float64(-1), g.Value())
		},
	)
}
