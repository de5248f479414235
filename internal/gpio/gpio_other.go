//go:build !linux

package gpio

import "fmt"

func newCdevOpener(opts Options) (Opener, error) {
	return nil, fmt.Errorf("%w: gpiocdev backend requires linux", ErrLineUnavailable)
}

func newRPIOOpener(opts Options) (Opener, error) {
	return nil, fmt.Errorf("%w: rpio backend requires linux", ErrLineUnavailable)
}
