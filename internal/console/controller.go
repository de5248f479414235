// Package console runs the frame loop that connects the input poller, the
// emulation engine and the framebuffer blitter.
package console

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"time"

	"pocketd/internal/framebuffer"
	"pocketd/internal/keys"
	"pocketd/internal/logging"
)

// ErrShutdownRequested is returned by Run after a power switch shutdown.
// It is not a failure.
var ErrShutdownRequested = errors.New("shutdown requested")

// Splash shown while the console boots.
const (
	splashR    = 0xc4
	splashG    = 0xcf
	splashB    = 0xa1
	splashText = "Nintendo"
)

// Engine is the emulation core. Step advances one tick with the given key
// state; Frame returns the most recent image, whose Seq changes whenever
// the image does. A different *Frame is always presented.
type Engine interface {
	Step(state keys.State) error
	Frame() *framebuffer.Frame
}

// Navigator is an Engine that also acts on key pulses: presses and
// auto-repeats. Navigate is called before each Step with the pulses fired
// since the previous tick, so none are lost when the poller runs faster
// than the frame loop.
type Navigator interface {
	Engine
	Navigate(pulses, prev keys.PulseCounts)
}

// SnapshotSource publishes the current key state without blocking.
type SnapshotSource interface {
	Latest() keys.Snapshot
}

// ShutdownSource closes Done when the system should power off.
type ShutdownSource interface {
	Done() <-chan struct{}
}

// Presenter writes frames to the display.
type Presenter interface {
	Present(f *framebuffer.Frame) error
	Clear(r, g, b byte) error
	Close() error
}

// Config configures a Controller.
type Config struct {
	FrameInterval time.Duration
	Logger        *logging.Logger
}

// Controller drives the engine at a fixed frame rate. All methods must be
// called from one goroutine.
type Controller struct {
	interval time.Duration
	engine   Engine
	input    SnapshotSource
	shutdown ShutdownSource
	out      Presenter
	logger   *logging.Logger

	lastFrame  *framebuffer.Frame
	lastSeq    uint64
	presented  bool
	lastPulses keys.PulseCounts
	steps      uint64
	dropped    uint64
	stopped    bool
}

// New creates a Controller. shutdown may be nil when no power switch is
// configured.
func New(cfg Config, engine Engine, input SnapshotSource, shutdown ShutdownSource, out Presenter) (*Controller, error) {
	if cfg.FrameInterval <= 0 {
		return nil, errors.New("console: frame interval must be positive")
	}
	if engine == nil || input == nil || out == nil {
		return nil, errors.New("console: engine, input and presenter are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		interval: cfg.FrameInterval,
		engine:   engine,
		input:    input,
		shutdown: shutdown,
		out:      out,
		logger:   logger.WithComponent("console"),
	}, nil
}

// Steps returns the number of engine steps taken.
func (c *Controller) Steps() uint64 {
	return c.steps
}

// Dropped returns the number of frames the presenter dropped.
func (c *Controller) Dropped() uint64 {
	return c.dropped
}

// Splash paints the boot colour with the splash text centred on a source
// frame of width x height, and holds it for hold or until ctx is done. A
// dropped write is not an error.
func Splash(ctx context.Context, out Presenter, width, height int, hold time.Duration) error {
	if err := out.Clear(splashR, splashG, splashB); err != nil && !isTransient(err) {
		return fmt.Errorf("splash: %w", err)
	}
	if err := out.Present(splashFrame(width, height)); err != nil && !isTransient(err) {
		return fmt.Errorf("splash: %w", err)
	}
	if hold <= 0 {
		return nil
	}

	t := time.NewTimer(hold)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
	return nil
}

func splashFrame(width, height int) *framebuffer.Frame {
	f := framebuffer.NewFrame(width, height)
	f.Fill(splashR, splashG, splashB)
	x := (width - textWidth(splashText)) / 2
	y := (height - lineHeight()) / 2
	drawText(f, max(x, 0), y, splashText, color.RGBA{A: 0xff})
	return f
}

func isTransient(err error) bool {
	var terr *framebuffer.TransientError
	return errors.As(err, &terr)
}

// Tick reads the latest key state, steps the engine once and presents the
// frame if it changed. A dropped frame is not an error.
func (c *Controller) Tick() error {
	snap := c.input.Latest()
	if nav, ok := c.engine.(Navigator); ok {
		nav.Navigate(snap.Pulses, c.lastPulses)
	}
	c.lastPulses = snap.Pulses
	if err := c.engine.Step(snap.Held); err != nil {
		return fmt.Errorf("engine step: %w", err)
	}
	c.steps++

	f := c.engine.Frame()
	if f == nil || (c.presented && f == c.lastFrame && f.Seq == c.lastSeq) {
		return nil
	}

	if err := c.out.Present(f); err != nil {
		if isTransient(err) {
			c.dropped++
			return nil
		}
		return fmt.Errorf("present frame %d: %w", f.Seq, err)
	}
	c.lastFrame = f
	c.lastSeq = f.Seq
	c.presented = true
	return nil
}

// Run ticks until ctx is cancelled, the shutdown source fires or a fatal
// error occurs, then blanks and closes the display. It returns nil on
// cancellation and ErrShutdownRequested after a power switch shutdown.
func (c *Controller) Run(ctx context.Context) error {
	var shutdown <-chan struct{}
	if c.shutdown != nil {
		shutdown = c.shutdown.Done()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("frame loop started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("frame loop stopped", "steps", c.steps, "dropped", c.dropped)
			return c.stop(nil)

		case <-shutdown:
			c.logger.Info("shutdown requested, stopping frame loop", "steps", c.steps)
			return c.stop(ErrShutdownRequested)

		case <-ticker.C:
			// select picks randomly among ready cases; a pending shutdown wins.
			select {
			case <-shutdown:
				c.logger.Info("shutdown requested, stopping frame loop", "steps", c.steps)
				return c.stop(ErrShutdownRequested)
			default:
			}
			if err := c.Tick(); err != nil {
				c.logger.Error("frame loop failed", "error", err)
				return c.stop(err)
			}
		}
	}
}

// stop blanks and closes the display once and returns reason, or the close
// error when there is no other reason.
func (c *Controller) stop(reason error) error {
	if c.stopped {
		return reason
	}
	c.stopped = true

	if err := c.out.Clear(0, 0, 0); err != nil {
		c.logger.Warn("blank display failed", "error", err)
	}
	if err := c.out.Close(); err != nil {
		c.logger.Warn("close display failed", "error", err)
		if reason == nil {
			return fmt.Errorf("close display: %w", err)
		}
	}
	return reason
}
