package aggregator

import (
	"encoding/binary"
	"net/netip"

	"github.com/RoaringBitmap/roaring"
)

// Cache maps a port to the set of IPv4 addresses seen with it. Socket
// identities only ever carry IPv4 addresses, so other addresses are not
// kept.
type Cache struct {
	ports map[uint16]*roaring.Bitmap
}

var emptyCache = &Cache{ports: map[uint16]*roaring.Bitmap{}}

func newCache() *Cache {
	return &Cache{ports: make(map[uint16]*roaring.Bitmap)}
}

func (c *Cache) add(ap netip.AddrPort) bool {
	addr := ap.Addr().Unmap()
	if !addr.Is4() {
		return false
	}
	set, ok := c.ports[ap.Port()]
	if !ok {
		set = roaring.New()
		c.ports[ap.Port()] = set
	}
	set.Add(ipv4Key(addr))
	return true
}

// Contains reports whether addr was listed with port.
func (c *Cache) Contains(addr netip.Addr, port uint16) bool {
	set, ok := c.ports[port]
	if !ok {
		return false
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return false
	}
	return set.Contains(ipv4Key(addr))
}

// Ports is the number of distinct ports.
func (c *Cache) Ports() int { return len(c.ports) }

// Addresses is the number of distinct (address, port) pairs.
func (c *Cache) Addresses() int {
	n := 0
	for _, set := range c.ports {
		n += int(set.GetCardinality())
	}
	return n
}

func ipv4Key(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}
