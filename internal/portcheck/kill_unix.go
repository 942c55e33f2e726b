//go:build unix

package portcheck

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Kill sends SIGKILL to pid.
func Kill(pid int) error {
	if pid <= 1 {
		return fmt.Errorf("refusing to kill pid %d", pid)
	}
	err := unix.Kill(pid, unix.SIGKILL)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("process %d does not exist", pid)
	case errors.Is(err, unix.EPERM):
		return fmt.Errorf("permission denied killing process %d", pid)
	}
	return fmt.Errorf("kill %d: %w", pid, err)
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, unix.EADDRINUSE)
	}
	return errors.Is(err, unix.EADDRINUSE)
}
