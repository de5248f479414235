package console

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pocketd/internal/framebuffer"
	"pocketd/internal/keys"
	"pocketd/internal/logging"
)

// EngineMenu is the name of the built-in game list.
const EngineMenu = "menu"

// ErrNoCore is returned by a Launcher that has no emulator for a game.
var ErrNoCore = errors.New("no emulator core available")

// Platform is the handheld a ROM was built for.
type Platform uint8

const (
	GameBoy Platform = iota
	GameBoyColor
)

func (p Platform) String() string {
	if p == GameBoyColor {
		return "GBC"
	}
	return "GB"
}

// Game is one ROM found in the roms directory.
type Game struct {
	Name     string
	Path     string
	Platform Platform
}

// ScanGames lists the .gb and .gbc files directly inside dir, sorted by
// name. A missing directory holds no games.
func ScanGames(dir string) ([]Game, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan roms: %w", err)
	}

	var games []Game
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		// Stat follows symlinks into the ROM collection.
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		ext := filepath.Ext(name)
		var platform Platform
		switch strings.ToLower(ext) {
		case ".gb":
			platform = GameBoy
		case ".gbc":
			platform = GameBoyColor
		default:
			continue
		}
		games = append(games, Game{
			Name:     strings.TrimSuffix(name, ext),
			Path:     path,
			Platform: platform,
		})
	}
	sort.Slice(games, func(i, j int) bool {
		return strings.ToLower(games[i].Name) < strings.ToLower(games[j].Name)
	})
	return games, nil
}

// Launcher starts the engine that plays g.
type Launcher func(g Game) (Engine, error)

// MenuConfig configures a Menu.
type MenuConfig struct {
	Width  int
	Height int
	Title  string
	Games  []Game
	Launch Launcher
	Logger *logging.Logger
}

const (
	menuSubtitle = "Press START to play"
	menuNoGames  = "No games found"
	menuPadding  = 4
)

var (
	menuBG       = color.RGBA{A: 0xff}
	menuFG       = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	menuStatusFG = color.RGBA{R: 0xff, G: 0xc0, B: 0x40, A: 0xff}
)

// Menu lists games and moves its selection on Up and Down pulses, so a held
// repeat key scrolls. START hands the selected game to the launcher; once
// that succeeds every Step and Frame goes to the launched engine.
type Menu struct {
	frame  *framebuffer.Frame
	title  string
	games  []Game
	launch Launcher
	logger *logging.Logger

	selected int
	status   string
	dirty    bool
	running  Engine
}

// NewMenu creates a menu over cfg.Games with the first game selected.
func NewMenu(cfg MenuConfig) *Menu {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Menu{
		frame:  framebuffer.NewFrame(cfg.Width, cfg.Height),
		title:  cfg.Title,
		games:  cfg.Games,
		launch: cfg.Launch,
		logger: logger.WithComponent("menu"),
		dirty:  true,
	}
}

// Selected returns the index of the highlighted game.
func (m *Menu) Selected() int {
	return m.selected
}

// Status returns the message shown under the list, if any.
func (m *Menu) Status() string {
	return m.status
}

// Running returns the launched engine, or nil while the menu is shown.
func (m *Menu) Running() Engine {
	return m.running
}

// Navigate applies the Up, Down and START pulses fired since prev.
func (m *Menu) Navigate(pulses, prev keys.PulseCounts) {
	if nav, ok := m.running.(Navigator); ok {
		nav.Navigate(pulses, prev)
		return
	}
	if m.running != nil {
		return
	}

	down := int(pulses.Since(prev, keys.Down))
	up := int(pulses.Since(prev, keys.Up))
	if n := len(m.games); n > 0 && down != up {
		sel := min(max(m.selected+down-up, 0), n-1)
		if sel != m.selected {
			m.selected = sel
			m.status = ""
			m.dirty = true
		}
	}

	if pulses.Since(prev, keys.Start) > 0 {
		m.choose()
	}
}

func (m *Menu) choose() {
	if len(m.games) == 0 {
		return
	}
	g := m.games[m.selected]

	var engine Engine
	err := ErrNoCore
	if m.launch != nil {
		engine, err = m.launch(g)
	}
	if err != nil {
		m.logger.Warn("game not started", "game", g.Name, "path", g.Path, "error", err)
		m.status = "Cannot play " + g.Name
		m.dirty = true
		return
	}
	m.logger.Info("starting game", "game", g.Name, "platform", g.Platform, "path", g.Path)
	m.running = engine
}

// Step redraws the list when it changed, or steps the launched engine.
func (m *Menu) Step(state keys.State) error {
	if m.running != nil {
		return m.running.Step(state)
	}
	if m.dirty {
		m.redraw()
		m.frame.Seq++
		m.dirty = false
	}
	return nil
}

// Frame returns the list, or the launched engine's frame.
func (m *Menu) Frame() *framebuffer.Frame {
	if m.running != nil {
		return m.running.Frame()
	}
	return m.frame
}

// rows is the number of game rows that fit under the title and subtitle.
func (m *Menu) rows() int {
	n := (m.frame.Height-2*menuPadding)/lineHeight() - 2
	if m.status != "" {
		n--
	}
	return max(n, 1)
}

// firstVisible keeps the selection near the middle of the window.
func (m *Menu) firstVisible() int {
	rows := m.rows()
	return min(max(m.selected-rows/2, 0), max(len(m.games)-rows, 0))
}

// rowTop returns the y of the row holding game i, which must be visible.
func (m *Menu) rowTop(i int) int {
	return menuPadding + (2+i-m.firstVisible())*lineHeight()
}

func (m *Menu) redraw() {
	f := m.frame
	f.Fill(menuBG.R, menuBG.G, menuBG.B)

	maxW := f.Width - 2*menuPadding
	lh := lineHeight()
	y := menuPadding
	line := func(s string, c color.RGBA) {
		drawText(f, menuPadding, y, fitText(s, maxW), c)
		y += lh
	}

	line(m.title, menuFG)
	line(menuSubtitle, menuFG)

	if len(m.games) == 0 {
		line(menuNoGames, menuFG)
		return
	}

	first := m.firstVisible()
	last := min(first+m.rows(), len(m.games))
	for i := first; i < last; i++ {
		g := m.games[i]
		fg, prefix := menuFG, "  "
		if i == m.selected {
			f.FillRect(0, y, f.Width, lh, menuFG.R, menuFG.G, menuFG.B)
			fg, prefix = menuBG, "> "
		}
		line(prefix+g.Name+" - "+g.Platform.String(), fg)
	}

	if m.status != "" {
		y = menuPadding + (m.rows()+2)*lh
		line(m.status, menuStatusFG)
	}
}
