//go:build !unix

package portcheck

import (
	"errors"
	"strings"
)

// Kill is not supported on this platform.
func Kill(pid int) error {
	return errors.New("killing processes is not supported on this platform")
}

func isAddrInUse(err error) bool {
	return strings.Contains(err.Error(), "address already in use")
}
