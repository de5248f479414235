//go:build !linux

package framebuffer

import (
	"fmt"

	"pocketd/internal/logging"
)

// OpenDevice is only implemented on Linux.
func OpenDevice(g Geometry, logger *logging.Logger) (Device, error) {
	return nil, fmt.Errorf("%w: %s: framebuffer devices require linux", ErrDeviceUnavailable, g.DevicePath)
}
