// Package input turns raw GPIO samples into a debounced, auto-repeating key
// state and publishes it once per poll cycle.
package input

import "time"

type debouncePhase uint8

const (
	phaseUnseeded debouncePhase = iota
	phaseSettled
	phaseCandidate
)

// Debouncer filters one line. A new level becomes the settled output only
// after it has been sampled continuously for at least the window; any
// differing sample restarts the candidate. The zero value is not usable;
// use NewDebouncer.
type Debouncer struct {
	window time.Duration

	phase     debouncePhase
	settled   bool
	candidate bool
	firstSeen time.Time
}

// NewDebouncer returns a debouncer that seeds its settled level from the
// first sample.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// NewSettledDebouncer returns a debouncer already settled at level, so even
// the first sample of the other level has to last a full window.
func NewSettledDebouncer(window time.Duration, level bool) *Debouncer {
	return &Debouncer{window: window, phase: phaseSettled, settled: level}
}

// Sample feeds one raw logical level observed at now and returns the
// settled level.
func (d *Debouncer) Sample(raw bool, now time.Time) bool {
	switch d.phase {
	case phaseUnseeded:
		d.phase = phaseSettled
		d.settled = raw

	case phaseSettled:
		if raw != d.settled {
			d.startCandidate(raw, now)
		}

	case phaseCandidate:
		if raw != d.candidate {
			// Includes flicker back to the settled level, which must also
			// hold for a full window.
			d.startCandidate(raw, now)
		} else {
			d.promoteIfStable(now)
		}
	}
	return d.settled
}

func (d *Debouncer) startCandidate(level bool, now time.Time) {
	d.phase = phaseCandidate
	d.candidate = level
	d.firstSeen = now
	d.promoteIfStable(now)
}

func (d *Debouncer) promoteIfStable(now time.Time) {
	if now.Sub(d.firstSeen) >= d.window {
		d.phase = phaseSettled
		d.settled = d.candidate
	}
}

// Settled returns the current settled level without sampling.
func (d *Debouncer) Settled() bool {
	return d.settled
}

// Pending reports whether a candidate level is being timed.
func (d *Debouncer) Pending() bool {
	return d.phase == phaseCandidate
}

// Seeded reports whether the debouncer has a settled level.
func (d *Debouncer) Seeded() bool {
	return d.phase != phaseUnseeded
}

// Reset forgets all state; the next sample seeds again.
func (d *Debouncer) Reset() {
	*d = Debouncer{window: d.window}
}
