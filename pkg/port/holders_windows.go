//go:build windows

package port

import (
	"os"
	"strconv"
	"syscall"
)

// WSAEADDRINUSE
var errAddrInUse = syscall.Errno(10048)

func DefaultHolders() Holders {
	return Holders{
		CmdOutput: cmdOutput,
		Kill: func(pid int) error {
			_, err := cmdOutput("taskkill", "/F", "/PID", strconv.Itoa(pid))
			return err
		},
		Self: os.Getpid(),
	}
}

func (h Holders) find(port int) ([]int, error) {
	out, err := h.CmdOutput("netstat", "-ano", "-p", "tcp")
	if err != nil {
		return nil, err
	}
	return ParseNetstat(out, port), nil
}
