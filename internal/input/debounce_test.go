package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestDebouncerSettlesAfterWindow(t *testing.T) {
	d := NewSettledDebouncer(50*time.Millisecond, false)

	for ms := 0; ms < 50; ms += 10 {
		assert.False(t, d.Sample(true, at(ms)), "settled early at %dms", ms)
	}
	assert.True(t, d.Sample(true, at(50)))
	assert.False(t, d.Pending())
}

func TestDebouncerFirstSampleSeeds(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	assert.False(t, d.Seeded())
	assert.True(t, d.Sample(true, at(0)))
	assert.True(t, d.Seeded())
	assert.False(t, d.Pending())
}

func TestDebouncerIgnoresGlitches(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Sample(false, at(0))

	// Short pulses never last a full window.
	samples := []bool{true, false, true, true, false, true, false}
	for i, raw := range samples {
		assert.False(t, d.Sample(raw, at(5*(i+1))), "sample %d", i)
	}
	assert.False(t, d.Settled())
}

func TestDebouncerFlickerBackNeedsFullWindow(t *testing.T) {
	d := NewSettledDebouncer(30*time.Millisecond, true)

	assert.True(t, d.Sample(false, at(0)))
	assert.True(t, d.Pending())

	// Back at the settled level: the candidate restarts at that level.
	assert.True(t, d.Sample(true, at(10)))
	assert.True(t, d.Pending())
	assert.True(t, d.Sample(true, at(39)))
	assert.True(t, d.Pending())
	assert.True(t, d.Sample(true, at(40)))
	assert.False(t, d.Pending())

	// The release has to start over.
	assert.True(t, d.Sample(false, at(50)))
	assert.True(t, d.Sample(false, at(79)))
	assert.False(t, d.Sample(false, at(80)))
}

func TestDebouncerZeroWindow(t *testing.T) {
	d := NewSettledDebouncer(0, false)
	assert.True(t, d.Sample(true, at(0)))
	assert.False(t, d.Sample(false, at(1)))
	assert.False(t, d.Pending())
}

func TestDebouncerReset(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Sample(true, at(0))
	d.Sample(false, at(1))
	d.Reset()
	assert.False(t, d.Seeded())
	assert.False(t, d.Sample(false, at(2)))
}
