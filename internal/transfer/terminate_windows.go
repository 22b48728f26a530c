//go:build windows

package transfer

import "os"

// terminate stops the agent; Windows has no SIGTERM equivalent for console processes
func terminate(p *os.Process) error {
	if p == nil {
		return os.ErrProcessDone
	}
	return p.Kill()
}
