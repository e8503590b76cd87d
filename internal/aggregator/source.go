package aggregator

import (
	"fmt"
	"net/netip"
	"os"

	"go.yaml.in/yaml/v3"
)

// Source yields the endpoints of something worth watching, e.g. the
// upstreams of a connection pool. It is called on every cache refresh.
type Source interface {
	Addresses() ([]netip.AddrPort, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() ([]netip.AddrPort, error)

func (f SourceFunc) Addresses() ([]netip.AddrPort, error) { return f() }

// StaticSource is a fixed list of endpoints.
type StaticSource []netip.AddrPort

func (s StaticSource) Addresses() ([]netip.AddrPort, error) { return s, nil }

// ParseStatic parses "ip:port" strings ("[v6]:port" for IPv6).
func ParseStatic(addrs []string) (StaticSource, error) {
	out := make(StaticSource, 0, len(addrs))
	for _, s := range addrs {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", s, err)
		}
		out = append(out, ap)
	}
	return out, nil
}

// FileSource re-reads a YAML file of endpoints on every refresh:
//
//	addresses:
//	  - 10.0.0.1:80
//	  - 10.0.0.2:443
type FileSource struct {
	Path string
}

type addressFile struct {
	Addresses []string `yaml:"addresses"`
}

func (f FileSource) Addresses() ([]netip.AddrPort, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var doc addressFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	addrs, err := ParseStatic(doc.Addresses)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return addrs, nil
}

// SourceSet supplies the current collection of sources. It is evaluated
// lazily on each refresh so that sources may come and go. A nil result is
// treated as empty.
type SourceSet func() ([]Source, error)

// Sources returns a SourceSet over a fixed collection.
func Sources(src ...Source) SourceSet {
	return func() ([]Source, error) { return src, nil }
}
