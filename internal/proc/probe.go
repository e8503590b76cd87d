package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/internal/query"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

// DefaultRoot is where procfs is mounted on the host.
const DefaultRoot = "/proc"

// ErrUnavailable means socket probing is not possible on this platform.
// It does not change for the lifetime of the process.
var ErrUnavailable = errors.New("socket probe unavailable")

// FetchError is a transient failure reading socket tables.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Probe lists sockets. Fetch receives an assembled spec and never retries.
type Probe interface {
	Available() bool
	Fetch(ctx context.Context, spec query.Spec) ([]model.RawSocket, error)
}

var availability = sync.OnceValue(availabilityCause)

// Availability returns nil when sockets can be probed on this host. The
// check runs once per process.
func Availability() error {
	return availability()
}

// ProcNet is a Probe backed by the /proc/net socket tables.
type ProcNet struct {
	root    string
	owners  *ownerResolver
	resolve bool
}

type Option func(*ProcNet)

// WithRoot reads tables from another procfs mount, e.g. /host/proc inside a
// container.
func WithRoot(root string) Option {
	return func(p *ProcNet) { p.root = root }
}

// WithOwnerResolution toggles the /proc/<pid>/fd scan that fills in PIDs.
func WithOwnerResolution(enabled bool) Option {
	return func(p *ProcNet) { p.resolve = enabled }
}

func NewProcNet(opts ...Option) *ProcNet {
	p := &ProcNet{root: DefaultRoot, resolve: true}
	for _, opt := range opts {
		opt(p)
	}
	p.owners = newOwnerResolver(p.root, defaultOwnerCacheSize)
	return p
}

func (p *ProcNet) Available() bool {
	if p.root == DefaultRoot {
		return Availability() == nil
	}
	_, err := os.Stat(filepath.Join(p.root, "net"))
	return err == nil
}

// Fetch reads the tables selected by spec and applies the user, process
// and port filters. As with the kernel's sock_diag dump used by ss, TCP
// sockets in SYN_RECV, TIME_WAIT and CLOSE are left out.
func (p *ProcNet) Fetch(ctx context.Context, spec query.Spec) ([]model.RawSocket, error) {
	if !p.Available() {
		return nil, ErrUnavailable
	}

	var selfInodes map[uint64]struct{}
	if spec.CurrentProcess {
		inodes, err := socketInodes(filepath.Join(p.root, "self", "fd"))
		if err != nil {
			return nil, &FetchError{Path: filepath.Join(p.root, "self", "fd"), Err: err}
		}
		selfInodes = inodes
	}
	uid := os.Getuid()

	var socks []model.RawSocket
	for _, nf := range netFiles {
		if !spec.WantsProtocol(nf.protocol) || !spec.WantsFamily(nf.family) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(p.root, "net", nf.name)
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) && nf.family == model.FamilyIPv6 {
				logger.Debugw("skipping socket table", "path", path, "error", err)
				continue
			}
			return nil, &FetchError{Path: path, Err: err}
		}

		err = parseNetFile(f, nf, func(s model.RawSocket) {
			if skipState(s) {
				return
			}
			if spec.CurrentUser && s.UID != uid {
				return
			}
			if selfInodes != nil {
				if _, ok := selfInodes[s.Inode]; !ok {
					return
				}
				s.PID = os.Getpid()
			}
			if !spec.MatchPorts(s.LocalPort, s.RemotePort) {
				return
			}
			socks = append(socks, s)
		})
		f.Close()
		if err != nil {
			return nil, &FetchError{Path: path, Err: err}
		}
	}

	if p.resolve && selfInodes == nil {
		p.owners.fill(socks)
	}
	return socks, nil
}

func skipState(s model.RawSocket) bool {
	if s.Protocol != model.ProtocolTCP {
		return false
	}
	switch s.State {
	case model.StateSynRecv, model.StateTimeWait, model.StateClose:
		return true
	}
	return false
}
