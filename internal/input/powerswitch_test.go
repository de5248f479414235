package input

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pocketd/internal/config"
)

func TestPowerSwitchFiresOnce(t *testing.T) {
	m := NewPowerSwitchMonitor([]config.PowerSwitchBinding{
		{Line: 3, Debounce: 20 * time.Millisecond},
		{Line: 4, Debounce: 20 * time.Millisecond},
	})
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, -1, m.Line())

	assert.False(t, m.Sample(0, false, at(0)))
	assert.False(t, m.Sample(0, true, at(5)))
	assert.False(t, m.Sample(0, true, at(24)))
	assert.True(t, m.Sample(0, true, at(25)))
	assert.True(t, m.ShutdownRequested())
	assert.Equal(t, 3, m.Line())

	// Held, released and re-asserted, or another switch: no second signal.
	assert.False(t, m.Sample(0, true, at(100)))
	assert.False(t, m.Sample(0, false, at(200)))
	assert.False(t, m.Sample(0, false, at(300)))
	assert.False(t, m.Sample(0, true, at(400)))
	assert.False(t, m.Sample(0, true, at(500)))
	assert.False(t, m.Sample(1, true, at(500)))
	assert.False(t, m.Sample(1, true, at(600)))
	assert.Equal(t, 3, m.Line())
}

func TestPowerSwitchIgnoresGlitch(t *testing.T) {
	m := NewPowerSwitchMonitor([]config.PowerSwitchBinding{{Line: 3, Debounce: 50 * time.Millisecond}})

	for ms := 0; ms < 200; ms += 10 {
		m.Sample(0, ms%40 == 0, at(ms))
	}
	assert.False(t, m.ShutdownRequested())

	select {
	case <-m.Done():
		t.Fatal("Done closed without a shutdown")
	default:
	}
}
