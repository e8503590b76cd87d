package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pranshuparmar/sockwatch/internal/logger"
	"github.com/pranshuparmar/sockwatch/pkg/model"
)

const (
	defaultOwnerCacheSize = 8192
	// ownerMissTTL bounds how long an inode without a known owner is left
	// alone. The fd may not have been installed yet when it was scanned.
	ownerMissTTL = 30 * time.Second
)

type ownerEntry struct {
	pid     int
	checked time.Time
}

// ownerResolver maps socket inodes to the pid holding them. Walking every
// /proc/<pid>/fd is expensive, so results are kept in an LRU and the walk
// only happens for unseen inodes and for misses older than ownerMissTTL.
type ownerResolver struct {
	root     string
	cache    *lru.Cache[uint64, ownerEntry]
	now      func() time.Time
	warnOnce sync.Once
}

func newOwnerResolver(root string, size int) *ownerResolver {
	cache, err := lru.New[uint64, ownerEntry](size)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &ownerResolver{root: root, cache: cache, now: time.Now}
}

func (r *ownerResolver) lookup(inode uint64, now time.Time) (int, bool) {
	e, ok := r.cache.Get(inode)
	if !ok {
		return 0, false
	}
	if e.pid == 0 && now.Sub(e.checked) >= ownerMissTTL {
		return 0, false
	}
	return e.pid, true
}

func (r *ownerResolver) fill(socks []model.RawSocket) {
	now := r.now()
	var unseen []int
	for i := range socks {
		if socks[i].Inode == 0 {
			continue
		}
		if pid, ok := r.lookup(socks[i].Inode, now); ok {
			socks[i].PID = pid
			continue
		}
		unseen = append(unseen, i)
	}
	if len(unseen) == 0 {
		return
	}

	r.warnOnce.Do(func() {
		if os.Geteuid() != 0 && !canInspectAllProcesses() {
			logger.Warnw("missing CAP_SYS_PTRACE, owners of other users' sockets will not be resolved")
		}
	})

	found := r.scan()
	for _, i := range unseen {
		pid := found[socks[i].Inode]
		socks[i].PID = pid
		r.cache.Add(socks[i].Inode, ownerEntry{pid: pid, checked: now})
	}
}

func (r *ownerResolver) scan() map[uint64]int {
	owners := make(map[uint64]int)

	procs, err := os.ReadDir(r.root)
	if err != nil {
		logger.Debugw("owner scan failed", "root", r.root, "error", err)
		return owners
	}
	for _, p := range procs {
		if !p.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(p.Name())
		if err != nil {
			continue
		}
		inodes, err := socketInodes(filepath.Join(r.root, p.Name(), "fd"))
		if err != nil {
			continue
		}
		for inode := range inodes {
			if _, taken := owners[inode]; !taken {
				owners[inode] = pid
			}
		}
	}
	return owners
}

// socketInodes lists the socket inodes referenced from an fd directory.
func socketInodes(fdDir string) (map[uint64]struct{}, error) {
	fds, err := os.ReadDir(fdDir)
	if err != nil {
		return nil, err
	}

	inodes := make(map[uint64]struct{})
	for _, fd := range fds {
		link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
		if err != nil {
			continue
		}
		if !strings.HasPrefix(link, "socket:[") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(link, "socket:["), "]")
		inode, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}
		inodes[inode] = struct{}{}
	}
	return inodes, nil
}
