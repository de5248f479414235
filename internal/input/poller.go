package input

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pocketd/internal/config"
	"pocketd/internal/gpio"
	"pocketd/internal/keys"
	"pocketd/internal/logging"
	"pocketd/internal/metrics"
)

// EventKind is the kind of a key edge.
type EventKind uint8

const (
	EventPress EventKind = iota
	EventRelease
	EventRepeat
)

func (k EventKind) String() string {
	switch k {
	case EventPress:
		return "press"
	case EventRelease:
		return "release"
	case EventRepeat:
		return "repeat"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// Event is one key edge detected during a poll cycle.
type Event struct {
	Key   keys.Keycode
	Kind  EventKind
	Line  int
	Cycle uint64
	At    time.Time
}

// ReadError reports a failed line read. The line keeps its last settled
// value for that cycle.
type ReadError struct {
	Line int
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("gpio line %d: read: %v", e.Line, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Interval      time.Duration
	Keys          []config.KeyBinding
	PowerSwitches []config.PowerSwitchBinding
	Logger        *logging.Logger
	Metrics       *metrics.ConsoleMetrics
}

type keyLine struct {
	binding  config.KeyBinding
	line     gpio.Line
	debounce *Debouncer
	repeat   *Repeater // nil without auto-repeat
	held     bool      // debounced level after the last cycle
}

// Poller samples every configured line once per cycle, debounces and
// repeats key lines, feeds the power switch monitor and publishes a fresh
// keys.Snapshot. One goroutine runs Run (or calls Step); Latest may be called
// from any goroutine.
type Poller struct {
	interval time.Duration
	keys     []*keyLine
	switches []gpio.Line
	power    *PowerSwitchMonitor
	logger   *logging.Logger
	metrics  *metrics.ConsoleMetrics
	limiter  *logging.Limiter

	pulses keys.PulseCounts // written by Step only

	latest    atomic.Pointer[keys.Snapshot]
	cycles    atomic.Uint64
	lastCycle atomic.Int64

	mu        sync.Mutex
	listeners []func(Event)
}

// NewPoller claims every key and power switch line from opener. If any line
// cannot be claimed, the lines already claimed are released and the error
// is returned.
func NewPoller(cfg PollerConfig, opener gpio.Opener) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewConsoleMetrics(nil)
	}

	p := &Poller{
		interval: cfg.Interval,
		power:    NewPowerSwitchMonitor(cfg.PowerSwitches),
		logger:   logger.WithComponent("poller"),
		metrics:  m,
		limiter:  logging.NewLimiter(5 * time.Second),
	}
	p.latest.Store(&keys.Snapshot{})

	for _, b := range cfg.Keys {
		line, err := opener.Open(b.Line, b.ActiveLow)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("key %s: %w", b.Keycode, err)
		}
		kl := &keyLine{
			binding:  b,
			line:     line,
			debounce: NewDebouncer(b.Debounce),
		}
		if b.Repeat {
			kl.repeat = NewRepeater(b.RepeatDelay, b.RepeatRate)
		}
		p.keys = append(p.keys, kl)
	}

	for _, b := range cfg.PowerSwitches {
		line, err := opener.Open(b.Line, b.ActiveLow)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("power switch: %w", err)
		}
		p.switches = append(p.switches, line)
	}

	return p, nil
}

// PowerSwitch returns the monitor fed by this poller.
func (p *Poller) PowerSwitch() *PowerSwitchMonitor {
	return p.power
}

// OnEvent registers a listener for key edges. Listeners run on the poller
// goroutine and must not block.
func (p *Poller) OnEvent(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Latest returns the most recently published snapshot without blocking.
func (p *Poller) Latest() keys.Snapshot {
	return *p.latest.Load()
}

// State returns the asserted keys of the latest snapshot.
func (p *Poller) State() keys.State {
	return p.latest.Load().Held
}

// Cycles returns the number of completed cycles.
func (p *Poller) Cycles() uint64 {
	return p.cycles.Load()
}

// LastCycle returns the sample time of the last completed cycle, or the
// zero time.
func (p *Poller) LastCycle() time.Time {
	ns := p.lastCycle.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Interval returns the poll period.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Run polls until ctx is cancelled. The first cycle runs immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started",
		"interval", p.interval,
		"keys", len(p.keys),
		"power_switches", len(p.switches),
	)

	p.cycle(time.Now())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "cycles", p.Cycles())
			return nil
		case now := <-ticker.C:
			p.cycle(now)
		}
	}
}

func (p *Poller) cycle(now time.Time) {
	start := time.Now()
	p.Step(now)
	if elapsed := time.Since(start); elapsed > p.interval {
		p.metrics.PollOverruns.Inc()
		p.logger.Debug("poll cycle overran", "elapsed", elapsed, "interval", p.interval)
	}
}

// Step runs one poll cycle sampled at now and publishes its snapshot. It
// returns the joined read errors of the cycle, which have already been
// logged and counted.
func (p *Poller) Step(now time.Time) error {
	cycle := p.cycles.Load() + 1
	var held, pulsed keys.State
	var events []Event
	var readErrs []error

	for _, k := range p.keys {
		debounced := k.held
		raw, err := k.line.Read()
		if err != nil {
			readErrs = append(readErrs, p.readFailed(k.binding.Line, err, now))
		} else {
			debounced = k.debounce.Sample(raw, now)
		}

		code := k.binding.Keycode
		var fired RepeatEvent
		// A failed read freezes the repeater along with the debouncer.
		if k.repeat != nil && err == nil {
			fired = k.repeat.Update(debounced, now)
		}

		switch {
		case fired == RepeatFireRepeat:
			events = append(events, Event{Key: code, Kind: EventRepeat, Line: k.binding.Line})
			p.pulses[code]++
		case debounced && !k.held:
			events = append(events, Event{Key: code, Kind: EventPress, Line: k.binding.Line})
			p.pulses[code]++
		case !debounced && k.held:
			events = append(events, Event{Key: code, Kind: EventRelease, Line: k.binding.Line})
		}
		k.held = debounced

		if debounced || fired.Fired() {
			held = held.With(code)
		}
		if fired.Fired() {
			pulsed = pulsed.With(code)
		}
	}

	for i, line := range p.switches {
		raw, err := line.Read()
		if err != nil {
			readErrs = append(readErrs, p.readFailed(line.ID(), err, now))
			continue
		}
		if p.power.Sample(i, raw, now) {
			p.metrics.ShutdownSignal.Inc()
			p.logger.Warn("power switch activated, requesting shutdown", "line", line.ID())
		}
	}

	p.latest.Store(&keys.Snapshot{Held: held, Pulsed: pulsed, Pulses: p.pulses, Cycle: cycle, At: now})
	p.cycles.Store(cycle)
	p.lastCycle.Store(now.UnixNano())
	p.metrics.PollCycles.Inc()

	if len(events) > 0 {
		p.emit(events, cycle, now)
	}
	return errors.Join(readErrs...)
}

func (p *Poller) readFailed(line int, err error, now time.Time) error {
	p.metrics.GPIOReadErrors.Inc()
	rerr := &ReadError{Line: line, Err: err}
	if ok, suppressed := p.limiter.Allow(fmt.Sprintf("line%d", line), now); ok {
		p.logger.Warn("gpio read failed, keeping last value",
			"line", line,
			"suppressed", suppressed,
			"error", err,
		)
	}
	return rerr
}

func (p *Poller) emit(events []Event, cycle uint64, now time.Time) {
	p.mu.Lock()
	listeners := p.listeners
	p.mu.Unlock()

	for _, ev := range events {
		ev.Cycle = cycle
		ev.At = now
		p.metrics.KeyEvents.Inc()
		p.logger.Debug("key event", "key", ev.Key.String(), "kind", ev.Kind.String(), "line", ev.Line)
		for _, fn := range listeners {
			fn(ev)
		}
	}
}

// Close releases every claimed line.
func (p *Poller) Close() error {
	var errs []error
	for _, k := range p.keys {
		if err := k.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", k.binding.Line, err))
		}
	}
	for _, l := range p.switches {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.ID(), err))
		}
	}
	p.keys, p.switches = nil, nil
	return errors.Join(errs...)
}
