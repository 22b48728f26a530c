//go:build !windows

package transfer

import (
	"os"
	"syscall"
)

// terminate asks the agent to stop; WaitDelay escalates to SIGKILL
func terminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Signal(syscall.SIGTERM)
}
