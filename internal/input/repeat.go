package input

import "time"

// RepeatEvent is the outcome of one Repeater update.
type RepeatEvent uint8

const (
	RepeatNone RepeatEvent = iota
	// RepeatFireOnce is the initial press.
	RepeatFireOnce
	// RepeatFireRepeat is a synthetic repeat pulse.
	RepeatFireRepeat
)

func (e RepeatEvent) String() string {
	switch e {
	case RepeatFireOnce:
		return "fire-once"
	case RepeatFireRepeat:
		return "fire-repeat"
	default:
		return "none"
	}
}

// Fired reports whether the key pulses this cycle.
func (e RepeatEvent) Fired() bool {
	return e != RepeatNone
}

type repeatPhase uint8

const (
	repeatIdle repeatPhase = iota
	repeatJustPressed
	repeatRepeating
)

// Repeater generates the press and auto-repeat pulses of one held key.
type Repeater struct {
	delay time.Duration
	rate  time.Duration

	phase     repeatPhase
	pressedAt time.Time
	nextFire  time.Time
}

// NewRepeater returns a repeater that first repeats delay after the press and
// then every rate.
func NewRepeater(delay, rate time.Duration) *Repeater {
	return &Repeater{delay: delay, rate: rate}
}

// Update feeds the debounced level at now. It fires at most once per call.
func (r *Repeater) Update(pressed bool, now time.Time) RepeatEvent {
	if !pressed {
		r.phase = repeatIdle
		return RepeatNone
	}

	switch r.phase {
	case repeatIdle:
		r.phase = repeatJustPressed
		r.pressedAt = now
		return RepeatFireOnce

	case repeatJustPressed:
		if now.Sub(r.pressedAt) >= r.delay {
			r.phase = repeatRepeating
			r.nextFire = now.Add(r.rate)
			return RepeatFireRepeat
		}

	case repeatRepeating:
		if !now.Before(r.nextFire) {
			r.nextFire = r.nextFire.Add(r.rate)
			// After a stall, resync instead of replaying missed pulses.
			if !r.nextFire.After(now) {
				r.nextFire = now.Add(r.rate)
			}
			return RepeatFireRepeat
		}
	}
	return RepeatNone
}

// Active reports whether the key is currently held from the repeater's view.
func (r *Repeater) Active() bool {
	return r.phase != repeatIdle
}
