//go:build linux

package proc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func availabilityCause() error {
	if err := unix.Access(DefaultRoot+"/net/tcp", unix.R_OK); err != nil {
		return fmt.Errorf("%w: %s/net/tcp: %v", ErrUnavailable, DefaultRoot, err)
	}
	return nil
}
