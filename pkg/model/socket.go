package model

import (
	"net/netip"
	"strconv"
)

type ConnState uint8

// Values follow include/net/tcp_states.h
const (
	StateUnknown ConnState = iota
	StateEstablished
	StateSynSent
	StateSynRecv
	StateFinWait1
	StateFinWait2
	StateTimeWait
	StateClose
	StateCloseWait
	StateLastAck
	StateListen
	StateClosing
)

var stateNames = [...]string{
	StateUnknown:     "UNKNOWN",
	StateEstablished: "ESTABLISHED",
	StateSynSent:     "SYN_SENT",
	StateSynRecv:     "SYN_RECV",
	StateFinWait1:    "FIN_WAIT1",
	StateFinWait2:    "FIN_WAIT2",
	StateTimeWait:    "TIME_WAIT",
	StateClose:       "CLOSE",
	StateCloseWait:   "CLOSE_WAIT",
	StateLastAck:     "LAST_ACK",
	StateListen:      "LISTEN",
	StateClosing:     "CLOSING",
}

func (s ConnState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

func (s ConnState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseConnState maps the kernel's numeric state to a ConnState.
// Out of range values become StateUnknown.
func ParseConnState(v int) ConnState {
	if v <= 0 || v > int(StateClosing) {
		return StateUnknown
	}
	return ConnState(v)
}

type Family uint8

const (
	FamilyAny Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "any"
	}
}

func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

type Protocol uint8

const (
	ProtocolAny Protocol = iota
	ProtocolTCP
	ProtocolUDP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return "any"
	}
}

// Identity is the 4-tuple of a socket. Only meaningful within one refresh
// cycle since the kernel recycles ports.
type Identity struct {
	LocalAddr  netip.Addr
	LocalPort  uint16
	RemoteAddr netip.Addr
	RemotePort uint16
}

func (id Identity) Local() netip.AddrPort  { return netip.AddrPortFrom(id.LocalAddr, id.LocalPort) }
func (id Identity) Remote() netip.AddrPort { return netip.AddrPortFrom(id.RemoteAddr, id.RemotePort) }

func (id Identity) String() string {
	return "(" + id.LocalAddr.String() + ":" + strconv.Itoa(int(id.LocalPort)) +
		"->" + id.RemoteAddr.String() + ":" + strconv.Itoa(int(id.RemotePort)) + ")"
}

// TCPInfo holds the protocol specific counters. Times are in microseconds.
type TCPInfo struct {
	RTT              uint32 `json:"rtt_us"`
	RTTVar           uint32 `json:"rtt_var_us"`
	RTO              uint32 `json:"rto_us"`
	ATO              uint32 `json:"ato_us"`
	Retransmits      uint32 `json:"retransmits"`
	TotalRetransmits uint32 `json:"total_retransmits"`
	SndCwnd          uint32 `json:"snd_cwnd"`
	SndSSThresh      uint32 `json:"snd_ssthresh"`
}

// Record is the observed state of one socket. It is never mutated once it
// has been put in a snapshot.
type Record struct {
	State   ConnState `json:"state"`
	Family  Family    `json:"family"`
	PID     int       `json:"pid"`
	UID     int       `json:"uid"`
	Inode   uint64    `json:"inode"`
	TxQueue uint64    `json:"tx_queue"`
	RxQueue uint64    `json:"rx_queue"`
	TCP     *TCPInfo  `json:"tcp,omitempty"`
}

// RawSocket is what a probe reports, before addresses are converted into
// an Identity.
type RawSocket struct {
	Protocol   Protocol
	Family     Family
	State      ConnState
	LocalAddr  string
	LocalPort  uint16
	RemoteAddr string
	RemotePort uint16
	UID        int
	Inode      uint64
	PID        int
	TxQueue    uint64
	RxQueue    uint64
	TCP        *TCPInfo
}

func (r RawSocket) Record() Record {
	rec := Record{
		State:   r.State,
		Family:  r.Family,
		PID:     r.PID,
		UID:     r.UID,
		Inode:   r.Inode,
		TxQueue: r.TxQueue,
		RxQueue: r.RxQueue,
	}
	if r.TCP != nil {
		info := *r.TCP
		rec.TCP = &info
	}
	return rec
}
