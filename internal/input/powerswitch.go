package input

import (
	"sync"
	"sync/atomic"
	"time"

	"pocketd/internal/config"
)

// PowerSwitchMonitor debounces power switch lines and raises a one-shot
// shutdown signal on the first released-to-asserted transition.
//
// Switches start settled as released, so a switch already asserted at boot
// still has to be held for its full window before it counts.
type PowerSwitchMonitor struct {
	switches []*powerSwitch

	once  sync.Once
	done  chan struct{}
	fired atomic.Bool
	line  atomic.Int64
}

type powerSwitch struct {
	binding  config.PowerSwitchBinding
	debounce *Debouncer
	asserted bool
}

// NewPowerSwitchMonitor creates a monitor for bindings. Sample indexes
// follow the order of bindings.
func NewPowerSwitchMonitor(bindings []config.PowerSwitchBinding) *PowerSwitchMonitor {
	m := &PowerSwitchMonitor{done: make(chan struct{})}
	m.line.Store(-1)
	for _, b := range bindings {
		m.switches = append(m.switches, &powerSwitch{
			binding:  b,
			debounce: NewSettledDebouncer(b.Debounce, false),
		})
	}
	return m
}

// Len returns the number of monitored switches.
func (m *PowerSwitchMonitor) Len() int {
	return len(m.switches)
}

// Sample feeds the logical level of switch i and reports whether this
// sample raised the shutdown signal.
func (m *PowerSwitchMonitor) Sample(i int, raw bool, now time.Time) bool {
	s := m.switches[i]
	asserted := s.debounce.Sample(raw, now)
	rising := asserted && !s.asserted
	s.asserted = asserted
	if !rising {
		return false
	}

	triggered := false
	m.once.Do(func() {
		m.line.Store(int64(s.binding.Line))
		m.fired.Store(true)
		close(m.done)
		triggered = true
	})
	return triggered
}

// Done is closed when shutdown has been requested.
func (m *PowerSwitchMonitor) Done() <-chan struct{} {
	return m.done
}

// ShutdownRequested reports whether the signal has been raised.
func (m *PowerSwitchMonitor) ShutdownRequested() bool {
	return m.fired.Load()
}

// Line returns the line that raised the signal, or -1.
func (m *PowerSwitchMonitor) Line() int {
	return int(m.line.Load())
}
