package input

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketd/internal/config"
	"pocketd/internal/gpio"
	"pocketd/internal/keys"
	"pocketd/internal/metrics"
)

const (
	lineA     = 17
	lineUp    = 22
	linePower = 27
)

func testPoller(t *testing.T, fake *gpio.Fake) (*Poller, *metrics.ConsoleMetrics) {
	t.Helper()
	m := metrics.NewConsoleMetrics(nil)
	p, err := NewPoller(PollerConfig{
		Interval: 5 * time.Millisecond,
		Keys: []config.KeyBinding{
			{Line: lineA, Keycode: keys.A, ActiveLow: true, Debounce: 10 * time.Millisecond},
			{
				Line: lineUp, Keycode: keys.Up, ActiveLow: true,
				Repeat: true, RepeatDelay: 300 * time.Millisecond, RepeatRate: 80 * time.Millisecond,
			},
		},
		PowerSwitches: []config.PowerSwitchBinding{
			{Line: linePower, Debounce: 50 * time.Millisecond},
		},
		Metrics: m,
	}, fake)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p, m
}

func TestPollerHeldAndPulsed(t *testing.T) {
	fake := gpio.NewFake()
	p, m := testPoller(t, fake)

	var events []Event
	p.OnEvent(func(ev Event) { events = append(events, ev) })

	require.NoError(t, p.Step(at(0)))
	assert.Equal(t, keys.State(0), p.State())

	fake.Set(lineA, true)
	require.NoError(t, p.Step(at(5)))
	assert.False(t, p.State().Has(keys.A), "A is still debouncing")
	require.NoError(t, p.Step(at(15)))
	assert.True(t, p.State().Has(keys.A))

	fake.Set(lineUp, true)
	require.NoError(t, p.Step(at(20)))
	snap := p.Latest()
	assert.True(t, snap.Held.Has(keys.Up))
	assert.True(t, snap.Pulsed.Has(keys.Up))
	assert.False(t, snap.Pulsed.Has(keys.A))

	require.NoError(t, p.Step(at(25)))
	snap = p.Latest()
	assert.True(t, snap.Held.Has(keys.Up))
	assert.False(t, snap.Pulsed.Has(keys.Up))

	require.NoError(t, p.Step(at(320)))
	assert.True(t, p.Latest().Pulsed.Has(keys.Up))

	fake.Set(lineA, false)
	require.NoError(t, p.Step(at(325)))
	require.NoError(t, p.Step(at(335)))
	assert.False(t, p.State().Has(keys.A))

	kinds := make([]string, len(events))
	for i, ev := range events {
		kinds[i] = ev.Key.String() + ":" + ev.Kind.String()
	}
	assert.Equal(t, []string{"A:press", "UP:press", "UP:repeat", "A:release"}, kinds)
	assert.Equal(t, uint64(4), m.KeyEvents.Value())
	assert.Equal(t, uint64(8), p.Cycles())
	assert.True(t, p.LastCycle().Equal(at(335)))
	assert.Equal(t, 8, fake.Reads(lineA), "one read per line per cycle")
}

func TestPollerPulseCounts(t *testing.T) {
	fake := gpio.NewFake()
	p, _ := testPoller(t, fake)

	fake.Set(lineA, true)
	fake.Set(lineUp, true)
	require.NoError(t, p.Step(at(0)))
	first := p.Latest().Pulses
	assert.Equal(t, uint32(1), first[keys.A], "seeded press counts once")
	assert.Equal(t, uint32(1), first[keys.Up])

	// A held repeat key adds one pulse per repeat; a held plain key adds none.
	for ms := 5; ms <= 500; ms += 5 {
		require.NoError(t, p.Step(at(ms)))
	}
	last := p.Latest().Pulses
	assert.Zero(t, last.Since(first, keys.A))
	assert.Equal(t, uint32(3), last.Since(first, keys.Up), "repeats at 300, 380 and 460ms")
}

func TestPollerReadErrorKeepsSettledValue(t *testing.T) {
	fake := gpio.NewFake()
	p, m := testPoller(t, fake)

	fake.Set(lineA, true)
	require.NoError(t, p.Step(at(0)))
	assert.True(t, p.State().Has(keys.A))

	fake.Set(lineA, false)
	fake.FailReads(lineA, syscall.EIO)
	for ms := 5; ms <= 50; ms += 5 {
		err := p.Step(at(ms))
		require.Error(t, err)
		assert.ErrorIs(t, err, syscall.EIO)

		var rerr *ReadError
		require.True(t, errors.As(err, &rerr))
		assert.Equal(t, lineA, rerr.Line)
		assert.True(t, p.State().Has(keys.A), "failed line keeps its settled value")
	}
	assert.Equal(t, uint64(10), m.GPIOReadErrors.Value())

	// The debouncer was not fed during the failure, so the release still
	// needs its full window once reads recover.
	fake.FailReads(lineA, nil)
	require.NoError(t, p.Step(at(55)))
	assert.True(t, p.State().Has(keys.A))
	require.NoError(t, p.Step(at(65)))
	assert.False(t, p.State().Has(keys.A))
}

func TestPollerReadErrorHoldsRepeat(t *testing.T) {
	fake := gpio.NewFake()
	p, _ := testPoller(t, fake)

	var events []Event
	p.OnEvent(func(ev Event) { events = append(events, ev) })

	fake.Set(lineUp, true)
	require.NoError(t, p.Step(at(0)))
	assert.True(t, p.Latest().Pulsed.Has(keys.Up))

	fake.FailReads(lineUp, syscall.EIO)
	for ms := 5; ms <= 500; ms += 5 {
		require.Error(t, p.Step(at(ms)))
		snap := p.Latest()
		assert.True(t, snap.Held.Has(keys.Up), "held at %dms", ms)
		assert.False(t, snap.Pulsed.Has(keys.Up), "no repeat while reads fail (%dms)", ms)
	}

	fake.FailReads(lineUp, nil)
	require.NoError(t, p.Step(at(505)))
	assert.True(t, p.Latest().Pulsed.Has(keys.Up), "repeat resumes once reads recover")

	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []EventKind{EventPress, EventRepeat}, kinds)
}

func TestPollerPowerSwitch(t *testing.T) {
	fake := gpio.NewFake()
	p, m := testPoller(t, fake)
	power := p.PowerSwitch()

	// Asserted from boot: must still be held for the whole window.
	fake.Set(linePower, true)
	for ms := 0; ms < 50; ms += 5 {
		require.NoError(t, p.Step(at(ms)))
		assert.False(t, power.ShutdownRequested())
	}
	require.NoError(t, p.Step(at(50)))
	assert.True(t, power.ShutdownRequested())
	assert.Equal(t, linePower, power.Line())

	select {
	case <-power.Done():
	default:
		t.Fatal("Done not closed")
	}

	fake.Set(linePower, false)
	require.NoError(t, p.Step(at(200)))
	fake.Set(linePower, true)
	require.NoError(t, p.Step(at(300)))
	require.NoError(t, p.Step(at(400)))
	assert.Equal(t, uint64(1), m.ShutdownSignal.Value())
}

func TestNewPollerReleasesLinesOnFailure(t *testing.T) {
	fake := gpio.NewFake()
	fake.Refuse(lineUp)

	_, err := NewPoller(PollerConfig{
		Interval: time.Millisecond,
		Keys: []config.KeyBinding{
			{Line: lineA, Keycode: keys.A},
			{Line: lineUp, Keycode: keys.Up},
		},
	}, fake)
	require.Error(t, err)
	assert.ErrorIs(t, err, gpio.ErrLineUnavailable)
	assert.False(t, fake.IsOpen(lineA))
}

func TestNewPollerRejectsZeroInterval(t *testing.T) {
	_, err := NewPoller(PollerConfig{}, gpio.NewFake())
	assert.Error(t, err)
}

func TestPollerConcurrentReaders(t *testing.T) {
	fake := gpio.NewFake()
	p, _ := testPoller(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for ctx.Err() == nil {
				s := p.Latest()
				assert.GreaterOrEqual(t, s.Cycle, last)
				last = s.Cycle
				for _, k := range s.Pulsed.Keys() {
					assert.True(t, s.Held.Has(k), "pulsed key %s not held", k)
				}
			}
		}()
	}

	for ms := 0; ms < 2000; ms++ {
		fake.Set(lineA, ms%40 < 20)
		fake.Set(lineUp, ms%700 < 500)
		p.Step(at(ms))
	}
	cancel()
	wg.Wait()
	assert.Equal(t, uint64(2000), p.Latest().Cycle)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	fake := gpio.NewFake()
	p, _ := testPoller(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Cycles() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
