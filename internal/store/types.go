package store

import "time"

// Session is one daemon run, from startup to exit.
type Session struct {
	ID         int64
	StartedAt  time.Time
	EndedAt    time.Time // zero while running or after a crash
	Version    string
	Engine     string
	DevicePath string
	Stats      SessionStats
	ExitReason string
}

// Running reports whether the session has not been finished.
func (s *Session) Running() bool {
	return s.EndedAt.IsZero()
}

// SessionStats are the counters recorded when a session finishes.
type SessionStats struct {
	FramesPresented uint64
	FramesDropped   uint64
	PollCycles      uint64
	GPIOReadErrors  uint64
}

// Event kinds recorded during a session.
const (
	EventPowerSwitch   = "power_switch"
	EventConfigReload  = "config_reload"
	EventRestartNeeded = "restart_required"
	EventGameSelected  = "game_selected"
)

// Event is a notable runtime occurrence within a session.
type Event struct {
	ID        int64
	SessionID int64
	Timestamp time.Time
	Kind      string
	Detail    string
}
