//go:build !windows

package port

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/cockroachdb/errors"
)

var errAddrInUse = syscall.EADDRINUSE

func DefaultHolders() Holders {
	return Holders{
		CmdOutput: cmdOutput,
		Kill:      killProcess,
		Self:      os.Getpid(),
	}
}

func (h Holders) find(port int) ([]int, error) {
	out, err := h.CmdOutput("lsof", "-ti", fmt.Sprintf("tcp:%d", port), "-sTCP:LISTEN")
	if err != nil && out == "" {
		// lsof exits 1 when nothing matches
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	return ParseLsof(out), nil
}
