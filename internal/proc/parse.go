package proc

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pranshuparmar/sockwatch/pkg/model"
)

// procfs prints rto and ato with jiffies_to_clock_t, USER_HZ is 100 on
// every architecture we care about.
const usecPerClockTick = 10000

const (
	fieldLocal = 1 + iota
	fieldRemote
	fieldState
	fieldQueues
	fieldTimer
	fieldRetransmits
	fieldUID
	fieldTimeout
	fieldInode
	fieldRefCount
	fieldPointer
	fieldRTO
	fieldATO
	fieldQuickAck
	fieldCwnd
	fieldSSThresh

	minFields = fieldInode + 1
)

type netFile struct {
	name     string
	protocol model.Protocol
	family   model.Family
}

var netFiles = []netFile{
	{"tcp", model.ProtocolTCP, model.FamilyIPv4},
	{"tcp6", model.ProtocolTCP, model.FamilyIPv6},
	{"udp", model.ProtocolUDP, model.FamilyIPv4},
	{"udp6", model.ProtocolUDP, model.FamilyIPv6},
}

// parseNetFile reads one /proc/net/{tcp,udp}[6] table. Malformed lines are
// skipped, the kernel never produces them but truncated reads can.
func parseNetFile(r io.Reader, nf netFile, visit func(model.RawSocket)) error {
	scanner := bufio.NewScanner(r)
	scanner.Scan() // skip header

	for scanner.Scan() {
		sock, ok := parseNetLine(scanner.Text(), nf)
		if ok {
			visit(sock)
		}
	}
	return scanner.Err()
}

func parseNetLine(line string, nf netFile) (model.RawSocket, bool) {
	fields := strings.Fields(line)
	if len(fields) < minFields {
		return model.RawSocket{}, false
	}

	ipv6 := nf.family == model.FamilyIPv6
	localAddr, localPort, err := parseAddr(fields[fieldLocal], ipv6)
	if err != nil {
		return model.RawSocket{}, false
	}
	remoteAddr, remotePort, err := parseAddr(fields[fieldRemote], ipv6)
	if err != nil {
		return model.RawSocket{}, false
	}

	stateVal, err := strconv.ParseUint(fields[fieldState], 16, 8)
	if err != nil {
		return model.RawSocket{}, false
	}

	sock := model.RawSocket{
		Protocol:   nf.protocol,
		Family:     nf.family,
		State:      model.ParseConnState(int(stateVal)),
		LocalAddr:  localAddr,
		LocalPort:  localPort,
		RemoteAddr: remoteAddr,
		RemotePort: remotePort,
	}

	if tx, rx, ok := strings.Cut(fields[fieldQueues], ":"); ok {
		sock.TxQueue, _ = strconv.ParseUint(tx, 16, 64)
		sock.RxQueue, _ = strconv.ParseUint(rx, 16, 64)
	}
	sock.UID, _ = strconv.Atoi(fields[fieldUID])
	sock.Inode, _ = strconv.ParseUint(fields[fieldInode], 10, 64)

	if nf.protocol == model.ProtocolTCP {
		sock.TCP = parseTCPInfo(fields)
	}
	return sock, true
}

// parseTCPInfo decodes the trailing columns of full TCP sockets. TIME_WAIT
// and request sockets print a shorter line and get nil.
func parseTCPInfo(fields []string) *model.TCPInfo {
	if len(fields) <= fieldSSThresh {
		return nil
	}

	info := &model.TCPInfo{}
	if v, err := strconv.ParseUint(fields[fieldRetransmits], 16, 32); err == nil {
		info.Retransmits = uint32(v)
	}
	if v, err := strconv.ParseUint(fields[fieldRTO], 10, 32); err == nil {
		info.RTO = uint32(v) * usecPerClockTick
	}
	if v, err := strconv.ParseUint(fields[fieldATO], 10, 32); err == nil {
		info.ATO = uint32(v) * usecPerClockTick
	}
	if v, err := strconv.ParseUint(fields[fieldCwnd], 10, 32); err == nil {
		info.SndCwnd = uint32(v)
	}
	// -1 means the socket is still in initial slow start
	if v, err := strconv.ParseInt(fields[fieldSSThresh], 10, 64); err == nil && v >= 0 {
		info.SndSSThresh = uint32(v)
	}
	return info
}

// parseAddr decodes "0100007F:1388". IPv4 mapped IPv6 addresses keep their
// ::ffff: form so callers can tell them apart from native IPv4.
func parseAddr(raw string, ipv6 bool) (string, uint16, error) {
	ipHex, portHex, ok := strings.Cut(raw, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed address %q", raw)
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return "", 0, fmt.Errorf("malformed port %q: %w", portHex, err)
	}

	b, err := hex.DecodeString(ipHex)
	if err != nil {
		return "", 0, fmt.Errorf("malformed ip %q: %w", ipHex, err)
	}

	if ipv6 {
		if len(b) != 16 {
			return "", 0, fmt.Errorf("malformed ipv6 %q", ipHex)
		}
		// /proc/net/tcp6 stores IPv6 as 4 little-endian 32-bit groups
		var ip [16]byte
		for i := 0; i < 4; i++ {
			ip[i*4+0] = b[i*4+3]
			ip[i*4+1] = b[i*4+2]
			ip[i*4+2] = b[i*4+1]
			ip[i*4+3] = b[i*4+0]
		}
		return netip.AddrFrom16(ip).String(), uint16(port), nil
	}

	if len(b) != 4 {
		return "", 0, fmt.Errorf("malformed ipv4 %q", ipHex)
	}
	return netip.AddrFrom4([4]byte{b[3], b[2], b[1], b[0]}).String(), uint16(port), nil
}
