// Package gpio opens button lines for the input poller.
//
// Two backends are available on Linux: the GPIO character device
// (go-gpiocdev), which is the default, and direct register access through
// /dev/gpiomem (go-rpio) for kernels without the chardev uAPI. Both return
// the logical level of a line, with active-low polarity already applied.
package gpio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLineUnavailable is returned when a line cannot be claimed.
var ErrLineUnavailable = errors.New("gpio line unavailable")

// Line is one claimed input line.
type Line interface {
	// ID returns the line offset on its chip.
	ID() int
	// Read returns the logical level: true means asserted.
	Read() (bool, error)
	Close() error
}

// Opener claims lines from one backend.
type Opener interface {
	Open(id int, activeLow bool) (Line, error)
	Close() error
}

// Bias selects the line's internal pull resistor.
type Bias int

const (
	BiasAsIs Bias = iota
	BiasDisabled
	BiasPullUp
	BiasPullDown
)

// ParseBias parses a config bias name.
func ParseBias(s string) (Bias, error) {
	switch strings.ToLower(s) {
	case "", "as-is":
		return BiasAsIs, nil
	case "disabled":
		return BiasDisabled, nil
	case "pull-up":
		return BiasPullUp, nil
	case "pull-down":
		return BiasPullDown, nil
	default:
		return BiasAsIs, fmt.Errorf("unknown gpio bias: %s", s)
	}
}

func (b Bias) String() string {
	switch b {
	case BiasDisabled:
		return "disabled"
	case BiasPullUp:
		return "pull-up"
	case BiasPullDown:
		return "pull-down"
	default:
		return "as-is"
	}
}

// Options configures an Opener.
type Options struct {
	Chip     string
	Consumer string
	Bias     Bias
}

// Backend names.
const (
	BackendGPIOCDev = "gpiocdev"
	BackendRPIO     = "rpio"
)

// NewOpener returns the opener for the named backend.
func NewOpener(backend string, opts Options) (Opener, error) {
	if opts.Consumer == "" {
		opts.Consumer = "pocketd"
	}
	switch backend {
	case "", BackendGPIOCDev:
		return newCdevOpener(opts)
	case BackendRPIO:
		return newRPIOOpener(opts)
	default:
		return nil, fmt.Errorf("unknown gpio backend: %s", backend)
	}
}

// unavailable wraps err so callers can match ErrLineUnavailable while the
// message still names the line.
func unavailable(chip string, id int, err error) error {
	return fmt.Errorf("%w: %s line %d: %v", ErrLineUnavailable, chip, id, err)
}
