//go:build !linux

package regs

import "github.com/pkg/errors"

// DevMem is only available on linux.
type DevMem struct{ Map }

func OpenDevMem(device string, base int64, size uint32) (*DevMem, error) {
	return nil, errors.New("register device mapping requires linux")
}
