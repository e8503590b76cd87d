//go:build !linux

package proc

import (
	"fmt"
	"runtime"
)

func availabilityCause() error {
	return fmt.Errorf("%w: only supported on Linux, not %s", ErrUnavailable, runtime.GOOS)
}
