//go:build unix

package lease

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processAlive reports whether pid refers to a live process, using the
// signal-0 probe. EPERM means the process exists but belongs to another
// user, which still counts as alive.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
