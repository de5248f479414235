package console

import (
	"fmt"

	"pocketd/internal/logging"
)

// EngineOptions carries what the built-in engines need.
type EngineOptions struct {
	Width   int
	Height  int
	Title   string
	RomsDir string
	Launch  Launcher
	Logger  *logging.Logger
}

// NewEngine returns the built-in engine called name.
func NewEngine(name string, opts EngineOptions) (Engine, error) {
	switch name {
	case EngineTestPattern:
		return NewTestPattern(opts.Width, opts.Height), nil
	case EngineMenu, "":
		logger := opts.Logger
		if logger == nil {
			logger = logging.Discard()
		}
		// An unreadable directory shows an empty list instead of stopping boot.
		games, err := ScanGames(opts.RomsDir)
		if err != nil {
			logger.Warn("roms directory unreadable", "dir", opts.RomsDir, "error", err)
		}
		logger.Info("games found", "dir", opts.RomsDir, "count", len(games))
		return NewMenu(MenuConfig{
			Width:  opts.Width,
			Height: opts.Height,
			Title:  opts.Title,
			Games:  games,
			Launch: opts.Launch,
			Logger: logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (built in: %s, %s)", name, EngineMenu, EngineTestPattern)
	}
}
