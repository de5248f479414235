package console

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketd/internal/config"
	"pocketd/internal/framebuffer"
	"pocketd/internal/gpio"
	"pocketd/internal/input"
	"pocketd/internal/keys"
)

func testGames(n int) []Game {
	games := make([]Game, n)
	for i := range games {
		games[i] = Game{Name: fmt.Sprintf("game%02d", i), Path: fmt.Sprintf("/roms/game%02d.gb", i)}
	}
	return games
}

func newTestMenu(games []Game, launch Launcher) *Menu {
	return NewMenu(MenuConfig{
		Width:  framebuffer.DefaultSourceWidth,
		Height: framebuffer.DefaultSourceHeight,
		Title:  "pocketd test",
		Games:  games,
		Launch: launch,
	})
}

func pulse(prev keys.PulseCounts, k keys.Keycode, n uint32) keys.PulseCounts {
	prev[k] += n
	return prev
}

func TestScanGames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Zelda.gb", "pokemon.GBC", "notes.txt", "noext"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0}, 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.gb"), 0o700))
	require.NoError(t, os.Symlink(filepath.Join(dir, "Zelda.gb"), filepath.Join(dir, "link.gb")))

	games, err := ScanGames(dir)
	require.NoError(t, err)
	assert.Equal(t, []Game{
		{Name: "link", Path: filepath.Join(dir, "link.gb"), Platform: GameBoy},
		{Name: "pokemon", Path: filepath.Join(dir, "pokemon.GBC"), Platform: GameBoyColor},
		{Name: "Zelda", Path: filepath.Join(dir, "Zelda.gb"), Platform: GameBoy},
	}, games)

	games, err = ScanGames(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestMenuNavigateClamps(t *testing.T) {
	m := newTestMenu(testGames(5), nil)
	var prev keys.PulseCounts

	cur := pulse(prev, keys.Up, 1)
	m.Navigate(cur, prev)
	assert.Equal(t, 0, m.Selected())

	prev, cur = cur, pulse(cur, keys.Down, 3)
	m.Navigate(cur, prev)
	assert.Equal(t, 3, m.Selected())

	prev, cur = cur, pulse(cur, keys.Down, 100)
	m.Navigate(cur, prev)
	assert.Equal(t, 4, m.Selected())

	// Up and Down in the same tick cancel out.
	prev, cur = cur, pulse(pulse(cur, keys.Down, 2), keys.Up, 2)
	m.Navigate(cur, prev)
	assert.Equal(t, 4, m.Selected())

	// The same counts again mean no new pulses.
	m.Navigate(cur, cur)
	assert.Equal(t, 4, m.Selected())
}

func TestMenuRendersSelection(t *testing.T) {
	m := newTestMenu(testGames(30), nil)
	var prev keys.PulseCounts
	cur := pulse(prev, keys.Down, 20)
	m.Navigate(cur, prev)
	require.NoError(t, m.Step(0))

	f := m.Frame()
	assert.Equal(t, uint64(1), f.Seq)
	first := m.firstVisible()
	assert.Greater(t, first, 0, "list scrolls to keep the selection visible")

	top := m.rowTop(20)
	require.Less(t, top+lineHeight(), f.Height)
	r, g, b := f.At(0, top)
	assert.Equal(t, [3]byte{0xff, 0xff, 0xff}, [3]byte{r, g, b}, "selected row is highlighted")
	r, g, b = f.At(0, m.rowTop(19))
	assert.Equal(t, [3]byte{0, 0, 0}, [3]byte{r, g, b})

	// Nothing changed, so the frame is not redrawn.
	require.NoError(t, m.Step(0))
	assert.Equal(t, uint64(1), f.Seq)
}

func TestMenuLaunchFailureShowsStatus(t *testing.T) {
	var launched []Game
	m := newTestMenu(testGames(3), func(g Game) (Engine, error) {
		launched = append(launched, g)
		return nil, fmt.Errorf("%s: %w", g.Platform, ErrNoCore)
	})
	require.NoError(t, m.Step(0))

	var prev keys.PulseCounts
	cur := pulse(pulse(prev, keys.Down, 1), keys.Start, 1)
	m.Navigate(cur, prev)
	require.Len(t, launched, 1)
	assert.Equal(t, "game01", launched[0].Name)
	assert.Nil(t, m.Running())
	assert.Equal(t, "Cannot play game01", m.Status())

	require.NoError(t, m.Step(0))
	assert.Equal(t, uint64(2), m.Frame().Seq, "status is drawn")

	prev, cur = cur, pulse(cur, keys.Down, 1)
	m.Navigate(cur, prev)
	assert.Empty(t, m.Status(), "moving clears the status")
}

func TestMenuWithoutGames(t *testing.T) {
	called := false
	m := newTestMenu(nil, func(Game) (Engine, error) {
		called = true
		return nil, errors.New("unexpected")
	})
	var prev keys.PulseCounts
	m.Navigate(pulse(pulse(prev, keys.Down, 2), keys.Start, 1), prev)
	require.NoError(t, m.Step(0))
	assert.False(t, called)
	assert.Equal(t, 0, m.Selected())
	assert.Equal(t, uint64(1), m.Frame().Seq)
}

// TestMenuHeldDownRepeats runs real poller cycles every 5ms and frame ticks
// every 15ms: each auto-repeat pulse of a held Down moves the selection by
// exactly one row.
func TestMenuHeldDownRepeats(t *testing.T) {
	const (
		lineDown  = 5
		lineStart = 6
	)
	fake := gpio.NewFake()
	poller, err := input.NewPoller(input.PollerConfig{
		Interval: 5 * time.Millisecond,
		Keys: []config.KeyBinding{
			{
				Line: lineDown, Keycode: keys.Down, ActiveLow: true, Debounce: 10 * time.Millisecond,
				Repeat: true, RepeatDelay: 300 * time.Millisecond, RepeatRate: 80 * time.Millisecond,
			},
			{Line: lineStart, Keycode: keys.Start, ActiveLow: true, Debounce: 10 * time.Millisecond},
		},
	}, fake)
	require.NoError(t, err)
	defer poller.Close()

	child := newRecordingEngine()
	var launched Game
	menu := newTestMenu(testGames(20), func(g Game) (Engine, error) {
		launched = g
		return child, nil
	})

	b, dev := newTestBlitter(t)
	c, err := New(Config{FrameInterval: 15 * time.Millisecond}, menu, poller, nil, b)
	require.NoError(t, err)

	t0 := time.Unix(1700000000, 0)
	at := func(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

	fake.Set(lineDown, true)
	var seen []int
	for ms := 0; ms <= 700; ms += 5 {
		require.NoError(t, poller.Step(at(ms)))
		if ms%15 == 0 {
			require.NoError(t, c.Tick())
			if n := len(seen); n == 0 || seen[n-1] != menu.Selected() {
				seen = append(seen, menu.Selected())
			}
		}
	}
	require.NoError(t, c.Tick())
	if seen[len(seen)-1] != menu.Selected() {
		seen = append(seen, menu.Selected())
	}
	// Press at 0ms, then repeats at 300, 380, 460, 540, 620 and 700ms.
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, seen)

	fake.Set(lineDown, false)
	for ms := 705; ms <= 730; ms += 5 {
		require.NoError(t, poller.Step(at(ms)))
	}
	require.NoError(t, c.Tick())
	assert.Equal(t, 7, menu.Selected(), "release does not move the selection")

	// The launched engine's frame is presented even when its Seq matches
	// the menu frame it replaces.
	child.frame.Seq = menu.Frame().Seq
	dev.Writes()
	fake.Set(lineStart, true)
	for ms := 735; ms <= 745; ms += 5 {
		require.NoError(t, poller.Step(at(ms)))
	}
	require.NoError(t, c.Tick())
	assert.Equal(t, "game07", launched.Name)
	assert.Same(t, child, menu.Running())
	assert.Len(t, child.states, 1)
	assert.True(t, child.states[0].Has(keys.Start))
	assert.NotEmpty(t, dev.Writes())
}
