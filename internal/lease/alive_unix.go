//go:build !windows

package lease

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive probes pid with signal 0; EPERM still means it exists
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
