package proc

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
)

// Process describes the owner of a socket.
type Process struct {
	PID       int
	Command   string
	Cmdline   string
	UID       int
	User      string
	Container string
}

// Process reads what procfs knows about pid. Only a missing process is an
// error; unreadable files leave their fields empty.
func (p *ProcNet) Process(pid int) (Process, error) {
	dir := filepath.Join(p.root, strconv.Itoa(pid))
	comm, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return Process{}, fmt.Errorf("process %d: %w", pid, err)
	}

	out := Process{
		PID:     pid,
		Command: strings.TrimSpace(string(comm)),
		UID:     -1,
	}

	if raw, err := os.ReadFile(filepath.Join(dir, "cmdline")); err == nil {
		out.Cmdline = strings.TrimSpace(string(bytes.ReplaceAll(raw, []byte{0}, []byte{' '})))
	}
	if uid, ok := readUID(filepath.Join(dir, "status")); ok {
		out.UID = uid
		out.User = strconv.Itoa(uid)
		if u, err := user.LookupId(out.User); err == nil {
			out.User = u.Username
		}
	}
	if cgroup, err := os.ReadFile(filepath.Join(dir, "cgroup")); err == nil {
		out.Container = containerOf(string(cgroup))
	}
	return out, nil
}

// readUID returns the real uid from a status file.
func readUID(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "Uid:" {
			continue
		}
		uid, err := strconv.Atoi(fields[1])
		return uid, err == nil
	}
	return 0, false
}

// containerOf names the runtime from a cgroup file, with a short id when
// one can be found.
func containerOf(cgroup string) string {
	for _, rt := range []struct {
		marker, dash, slash string
	}{
		{"docker", "docker-", "docker/"},
		{"libpod", "libpod-", "libpod/"},
		{"kubepods", "cri-containerd-", "kubepods/"},
		{"containerd", "cri-containerd-", "containerd/"},
	} {
		if !strings.Contains(cgroup, rt.marker) {
			continue
		}
		name := rt.marker
		if name == "libpod" {
			name = "podman"
		}
		if id := containerID(cgroup, rt.dash, rt.slash); len(id) >= 12 {
			return name + " (" + id[:12] + ")"
		}
		return name
	}
	return ""
}

func containerID(cgroup, dashPrefix, slashPrefix string) string {
	// .../prefix-<id>.scope
	if idx := strings.Index(cgroup, dashPrefix); idx != -1 {
		rest := cgroup[idx+len(dashPrefix):]
		if dot := strings.Index(rest, ".scope"); dot != -1 {
			return rest[:dot]
		}
	}
	// .../prefix/<id>
	if idx := strings.LastIndex(cgroup, slashPrefix); idx != -1 {
		rest := cgroup[idx+len(slashPrefix):]
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			rest = rest[:nl]
		}
		rest = rest[strings.LastIndexByte(rest, '/')+1:]
		if len(rest) >= 64 {
			return rest[:64]
		}
	}
	return ""
}
