package metrics

import (
	"time"
)

// ConsoleMetrics holds the pocketd metrics shared by the input poller, the
// framebuffer blitter and the controller loop.
type ConsoleMetrics struct {
	registry *Registry
	started  time.Time

	// Input
	PollCycles     *Counter
	PollOverruns   *Counter
	GPIOReadErrors *Counter
	KeyEvents      *Counter
	ShutdownSignal *Counter

	// Video
	FramesPresented  *Counter
	FramesDropped    *Counter
	ConsecutiveDrops *Gauge
	BlitDuration     *Histogram

	// Process
	UptimeSeconds *Gauge
}

// NewConsoleMetrics registers the pocketd metrics in registry. A nil
// registry gets a private one, which is what tests use.
func NewConsoleMetrics(registry *Registry) *ConsoleMetrics {
	if registry == nil {
		registry = NewRegistry("pocketd", "")
	}

	return &ConsoleMetrics{
		registry: registry,
		started:  time.Now(),

		PollCycles: registry.RegisterCounter(
			"poll_cycles_total",
			"Total number of completed GPIO poll cycles",
		),
		PollOverruns: registry.RegisterCounter(
			"poll_overruns_total",
			"Poll cycles that took longer than the poll interval",
		),
		GPIOReadErrors: registry.RegisterCounter(
			"gpio_read_errors_total",
			"GPIO line reads that failed and fell back to the settled value",
		),
		KeyEvents: registry.RegisterCounter(
			"key_events_total",
			"Press, release and repeat edges emitted by the poller",
		),
		ShutdownSignal: registry.RegisterCounter(
			"shutdown_signals_total",
			"Shutdown signals raised by a power switch",
		),
		FramesPresented: registry.RegisterCounter(
			"frames_presented_total",
			"Frames fully written to the framebuffer",
		),
		FramesDropped: registry.RegisterCounter(
			"frames_dropped_total",
			"Frames dropped after a framebuffer write failure",
		),
		ConsecutiveDrops: registry.RegisterGauge(
			"frames_consecutive_drops",
			"Frames dropped since the last successful present",
		),
		BlitDuration: registry.RegisterHistogram(
			"blit_duration_seconds",
			"Time spent converting and writing one frame",
			BlitBuckets,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Seconds since the daemon started",
		),
	}
}

// Registry returns the underlying registry.
func (m *ConsoleMetrics) Registry() *Registry {
	return m.registry
}

// UpdateUptime refreshes the uptime gauge.
func (m *ConsoleMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
}
