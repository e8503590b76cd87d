package meter

import (
	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

// Source yields the snapshot gauges read from, usually a *snapshot.Store.
type Source interface {
	Current() *snapshot.Snapshot
}

// Field extracts a value from a record, false when it is not available.
type Field func(model.Record) (float64, bool)

// Gauge reads one field of one socket from whatever snapshot is current at
// the time of the read. When the socket is gone, or the field unavailable,
// it reports Default instead of the last value seen.
type Gauge struct {
	Name    string
	Help    string
	ID      model.Identity
	Source  Source
	Field   Field
	Default float64
}

func (g Gauge) Value() float64 {
	rec, ok := g.Source.Current().Get(g.ID)
	if !ok {
		return g.Default
	}
	v, ok := g.Field(rec)
	if !ok {
		return g.Default
	}
	return v
}

func tcpField(get func(*model.TCPInfo) uint32) Field {
	return func(rec model.Record) (float64, bool) {
		if rec.TCP == nil {
			return 0, false
		}
		return float64(get(rec.TCP)), true
	}
}

var (
	FieldTxQueue = Field(func(rec model.Record) (float64, bool) { return float64(rec.TxQueue), true })
	FieldRxQueue = Field(func(rec model.Record) (float64, bool) { return float64(rec.RxQueue), true })

	FieldRTT         = tcpField(func(i *model.TCPInfo) uint32 { return i.RTT })
	FieldRTO         = tcpField(func(i *model.TCPInfo) uint32 { return i.RTO })
	FieldATO         = tcpField(func(i *model.TCPInfo) uint32 { return i.ATO })
	FieldRetransmits = tcpField(func(i *model.TCPInfo) uint32 { return i.TotalRetransmits })
	FieldUnrecovered = tcpField(func(i *model.TCPInfo) uint32 { return i.Retransmits })
	FieldCwnd        = tcpField(func(i *model.TCPInfo) uint32 { return i.SndCwnd })
	FieldSSThresh    = tcpField(func(i *model.TCPInfo) uint32 { return i.SndSSThresh })
)

func TxQueue(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "tx_queue", Help: "Bytes queued for sending.", ID: id, Source: src, Field: FieldTxQueue, Default: def}
}

func RxQueue(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "rx_queue", Help: "Bytes received but not read.", ID: id, Source: src, Field: FieldRxQueue, Default: def}
}

func RTT(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "rtt_microseconds", Help: "Smoothed round trip time.", ID: id, Source: src, Field: FieldRTT, Default: def}
}

func RTO(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "rto_microseconds", Help: "Retransmission timeout.", ID: id, Source: src, Field: FieldRTO, Default: def}
}

func ATO(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "ato_microseconds", Help: "Delayed acknowledgement timeout.", ID: id, Source: src, Field: FieldATO, Default: def}
}

func Retransmits(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "retransmits_total", Help: "Segments retransmitted over the connection lifetime.", ID: id, Source: src, Field: FieldRetransmits, Default: def}
}

// Unrecovered counts retransmit timeouts of the oldest unacknowledged
// segment. Unlike retransmits_total it is filled from procfs.
func Unrecovered(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "retransmits", Help: "Unrecovered retransmit timeouts.", ID: id, Source: src, Field: FieldUnrecovered, Default: def}
}

func Cwnd(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "snd_cwnd", Help: "Congestion window in segments.", ID: id, Source: src, Field: FieldCwnd, Default: def}
}

func SSThresh(id model.Identity, src Source, def float64) Gauge {
	return Gauge{Name: "snd_ssthresh", Help: "Slow start threshold in segments.", ID: id, Source: src, Field: FieldSSThresh, Default: def}
}

// All returns every gauge for a socket.
func All(id model.Identity, src Source, def float64) []Gauge {
	return []Gauge{
		TxQueue(id, src, def),
		RxQueue(id, src, def),
		RTT(id, src, def),
		RTO(id, src, def),
		ATO(id, src, def),
		Retransmits(id, src, def),
		Unrecovered(id, src, def),
		Cwnd(id, src, def),
		SSThresh(id, src, def),
	}
}
