package port

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const DefaultDelay = 300 * time.Millisecond

type Config struct {
	Delay   time.Duration
	Host    string
	Listen  func(network, addr string) (net.Listener, error)
	Reclaim func(port int) error
}

func DefaultConfig() Config {
	return Config{
		Delay:   DefaultDelay,
		Host:    "127.0.0.1",
		Listen:  net.Listen,
		Reclaim: DefaultHolders().Reclaim,
	}
}

// TestConfig never touches other processes; reclaim may be nil.
func TestConfig(reclaim func(port int) error) Config {
	if reclaim == nil {
		reclaim = func(int) error { return nil }
	}
	return Config{
		Delay:   time.Millisecond,
		Host:    "127.0.0.1",
		Listen:  net.Listen,
		Reclaim: reclaim,
	}
}

// Bind listens on port. When the port is taken it reclaims it once, waits
// Delay and retries exactly once. It returns the port actually bound.
func Bind(cfg Config, port int) (net.Listener, int, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	ln, err := cfg.Listen("tcp", addr)
	if err != nil {
		if !IsAddrInUse(err) {
			return nil, 0, errors.Wrapf(err, "listen %s", addr)
		}
		slog.Warn("port in use, reclaiming", "port", port)
		if rerr := cfg.Reclaim(port); rerr != nil {
			slog.Warn("reclaim failed", "port", port, "error", rerr)
		}
		time.Sleep(cfg.Delay)
		ln, err = cfg.Listen("tcp", addr)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "listen %s after reclaim", addr)
		}
	}

	tcp, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return ln, port, nil
	}
	return ln, tcp.Port, nil
}

func IsAddrInUse(err error) bool {
	return errors.Is(err, errAddrInUse)
}

// Holders reclaims a port by killing whichever processes hold it. The
// lookup command is platform specific; see holders_unix.go and
// holders_windows.go.
type Holders struct {
	CmdOutput func(string, ...string) (string, error)
	Kill      func(pid int) error
	Self      int
}

func (h Holders) Reclaim(port int) error {
	pids, err := h.find(port)
	if err != nil {
		return errors.Wrapf(err, "find holders of port %d", port)
	}
	var errs []error
	for _, pid := range pids {
		if pid == h.Self {
			continue
		}
		slog.Info("killing port holder", "port", port, "pid", pid)
		if err := h.Kill(pid); err != nil {
			errs = append(errs, errors.Wrapf(err, "kill %d", pid))
		}
	}
	return errors.Join(errs...)
}

func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

func cmdOutput(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	return string(out), err
}

// ParseLsof reads `lsof -t` output: one pid per line.
func ParseLsof(out string) []int {
	var pids []int
	seen := map[int]bool{}
	for _, line := range strings.Split(out, "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}

// ParseNetstat reads `netstat -ano` output and returns the pids of sockets
// listening on port.
func ParseNetstat(out string, port int) []int {
	suffix := fmt.Sprintf(":%d", port)
	var pids []int
	seen := map[int]bool{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		if !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}
