// Package snapshot holds the most recent view of the host's sockets and
// tells registered reconcilers whenever a new view is published.
package snapshot

import (
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/pranshuparmar/sockwatch/pkg/model"
)

// Snapshot is an immutable set of sockets keyed by identity.
type Snapshot struct {
	records  map[model.Identity]model.Record
	taken    time.Time
	observed int
}

var empty = &Snapshot{records: map[model.Identity]model.Record{}}

// Empty returns the snapshot a store starts with.
func Empty() *Snapshot { return empty }

// New builds a snapshot from already keyed records. The map is copied.
func New(records map[model.Identity]model.Record, taken time.Time) *Snapshot {
	copied := make(map[model.Identity]model.Record, len(records))
	for id, rec := range records {
		copied[id] = rec
	}
	return &Snapshot{records: copied, taken: taken, observed: len(copied)}
}

func (s *Snapshot) Get(id model.Identity) (model.Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

func (s *Snapshot) Contains(id model.Identity) bool {
	_, ok := s.records[id]
	return ok
}

func (s *Snapshot) Len() int { return len(s.records) }

// Observed is the number of sockets the probe reported, including the ones
// that could not be keyed.
func (s *Snapshot) Observed() int { return s.observed }

// Taken is when the probe was run. Zero for the initial empty snapshot.
func (s *Snapshot) Taken() time.Time { return s.taken }

// Range calls fn for every socket until fn returns false. Order is
// unspecified.
func (s *Snapshot) Range(fn func(model.Identity, model.Record) bool) {
	for id, rec := range s.records {
		if !fn(id, rec) {
			return
		}
	}
}

// Identities returns the keys sorted by local then remote endpoint.
func (s *Snapshot) Identities() []model.Identity {
	ids := make([]model.Identity, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if c := ids[i].Local().Compare(ids[j].Local()); c != 0 {
			return c < 0
		}
		return ids[i].Remote().Compare(ids[j].Remote()) < 0
	})
	return ids
}

const mappedPrefix = "::ffff:"

// ToIPv4 converts a probe address into the form used in identities. IPv4
// passes through. IPv6 is accepted only in the IPv4-mapped form
// "::ffff:a.b.c.d" and is unwrapped, anything else reports false.
func ToIPv4(family model.Family, addr string) (netip.Addr, bool) {
	if family == model.FamilyIPv4 {
		ip, err := netip.ParseAddr(addr)
		if err != nil || !ip.Is4() {
			return netip.Addr{}, false
		}
		return ip, true
	}

	if len(addr) <= len(mappedPrefix) || !strings.EqualFold(addr[:len(mappedPrefix)], mappedPrefix) {
		return netip.Addr{}, false
	}
	ip, err := netip.ParseAddr(addr[len(mappedPrefix):])
	if err != nil || !ip.Is4() {
		return netip.Addr{}, false
	}
	return ip, true
}

// Key builds the identity of a raw socket, or reports false when either
// address cannot be expressed as IPv4.
func Key(s model.RawSocket) (model.Identity, bool) {
	local, ok := ToIPv4(s.Family, s.LocalAddr)
	if !ok {
		return model.Identity{}, false
	}
	remote, ok := ToIPv4(s.Family, s.RemoteAddr)
	if !ok {
		return model.Identity{}, false
	}
	return model.Identity{
		LocalAddr:  local,
		LocalPort:  s.LocalPort,
		RemoteAddr: remote,
		RemotePort: s.RemotePort,
	}, true
}
