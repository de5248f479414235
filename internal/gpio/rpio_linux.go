//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// rpio keeps one process-wide mapping of the GPIO registers.
type rpioOpener struct {
	opts Options

	mu     sync.Mutex
	closed bool
}

func newRPIOOpener(opts Options) (Opener, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("%w: /dev/gpiomem: %v", ErrLineUnavailable, err)
	}
	return &rpioOpener{opts: opts}, nil
}

func (o *rpioOpener) Open(id int, activeLow bool) (Line, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, unavailable("gpiomem", id, fmt.Errorf("opener closed"))
	}
	if id < 0 || id > 53 {
		return nil, unavailable("gpiomem", id, fmt.Errorf("no such BCM pin"))
	}

	pin := rpio.Pin(id)
	pin.Input()
	switch o.opts.Bias {
	case BiasPullUp:
		pin.PullUp()
	case BiasPullDown:
		pin.PullDown()
	case BiasDisabled:
		pin.PullOff()
	}
	return &rpioLine{id: id, pin: pin, activeLow: activeLow}, nil
}

func (o *rpioOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	return rpio.Close()
}

type rpioLine struct {
	id        int
	pin       rpio.Pin
	activeLow bool
}

func (l *rpioLine) ID() int { return l.id }

// Read applies active-low in software; register reads cannot fail once the
// mapping is open.
func (l *rpioLine) Read() (bool, error) {
	high := l.pin.Read() == rpio.High
	return high != l.activeLow, nil
}

func (l *rpioLine) Close() error { return nil }
