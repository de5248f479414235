//go:build linux

package gpio

import (
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

type cdevOpener struct {
	opts Options

	mu    sync.Mutex
	lines []*cdevLine
}

func newCdevOpener(opts Options) (Opener, error) {
	if opts.Chip == "" {
		opts.Chip = "gpiochip0"
	}
	return &cdevOpener{opts: opts}, nil
}

// biasOption returns nil for as-is, leaving the line's bias untouched.
func (o *cdevOpener) biasOption() gpiocdev.LineReqOption {
	switch o.opts.Bias {
	case BiasDisabled:
		return gpiocdev.WithBiasDisabled
	case BiasPullUp:
		return gpiocdev.WithPullUp
	case BiasPullDown:
		return gpiocdev.WithPullDown
	default:
		return nil
	}
}

func (o *cdevOpener) Open(id int, activeLow bool) (Line, error) {
	reqOpts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(o.opts.Consumer),
	}
	if bias := o.biasOption(); bias != nil {
		reqOpts = append(reqOpts, bias)
	}
	if activeLow {
		reqOpts = append(reqOpts, gpiocdev.AsActiveLow)
	}

	l, err := gpiocdev.RequestLine(o.opts.Chip, id, reqOpts...)
	if err != nil {
		return nil, unavailable(o.opts.Chip, id, err)
	}

	line := &cdevLine{id: id, line: l}
	o.mu.Lock()
	o.lines = append(o.lines, line)
	o.mu.Unlock()
	return line, nil
}

// Close releases every line still held by the opener.
func (o *cdevOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var firstErr error
	for _, l := range o.lines {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.lines = nil
	return firstErr
}

type cdevLine struct {
	id   int
	once sync.Once
	line *gpiocdev.Line
}

func (l *cdevLine) ID() int { return l.id }

// Read returns the logical value; the kernel applies active-low.
func (l *cdevLine) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

func (l *cdevLine) Close() error {
	var err error
	l.once.Do(func() { err = l.line.Close() })
	return err
}
