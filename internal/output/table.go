package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/gopacket/layers"

	"github.com/pranshuparmar/sockwatch/internal/snapshot"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

var (
	colorResetTable   = "\033[0m"
	colorMagentaTable = "\033[35m"
	colorGreenTable   = "\033[32m"
	colorDimTable     = "\033[2m"
)

// PortName renders a port with its well known service, e.g. "80(http)".
func PortName(port uint16) string {
	return layers.TCPPort(port).String()
}

func FormatMicros(us uint32) string {
	if us == 0 {
		return "-"
	}
	return (time.Duration(us) * time.Microsecond).String()
}

// RenderTable prints one line per socket.
func RenderTable(w io.Writer, snap *snapshot.Snapshot, colorEnabled bool) {
	colorReset, colorMagenta, colorGreen, colorDim := "", "", "", ""
	if colorEnabled {
		colorReset = colorResetTable
		colorMagenta = colorMagentaTable
		colorGreen = colorGreenTable
		colorDim = colorDimTable
	}

	fmt.Fprintf(w, "%-28s %-28s %-12s %7s %8s %8s %10s %6s\n",
		"LOCAL", "REMOTE", "STATE", "PID", "TX-Q", "RX-Q", "RTO", "CWND")
	for _, id := range snap.Identities() {
		rec, _ := snap.Get(id)
		rto, cwnd := "-", "-"
		if rec.TCP != nil {
			rto = FormatMicros(rec.TCP.RTO)
			cwnd = strconv.Itoa(int(rec.TCP.SndCwnd))
		}
		pid := "-"
		if rec.PID > 0 {
			pid = strconv.Itoa(rec.PID)
		}

		local := fmt.Sprintf("%-28s", id.LocalAddr.String()+":"+PortName(id.LocalPort))
		remote := fmt.Sprintf("%-28s", id.RemoteAddr.String()+":"+PortName(id.RemotePort))
		state := fmt.Sprintf("%-12s", rec.State)
		if rec.State == model.StateEstablished {
			state = colorGreen + state + colorReset
		}
		fmt.Fprintf(w, "%s %s%s%s %s %s%7s%s %8d %8d %10s %6s\n",
			local, colorMagenta, remote, colorReset, state,
			colorDim, pid, colorReset, rec.TxQueue, rec.RxQueue, rto, cwnd)
	}
	fmt.Fprintf(w, "%d sockets (%d observed)\n", snap.Len(), snap.Observed())
}
