package main

import (
	"pocketd/internal/config"
	"pocketd/internal/logging"
	"pocketd/internal/metrics"
	"pocketd/internal/store"
)

// journal records the current session. Journal failures are logged and
// never stop the console.
type journal struct {
	db     *store.Store
	id     int64
	logger *logging.Logger
}

func openJournal(cfg *config.Config, model *config.Model, engine string, logger *logging.Logger) *journal {
	if !cfg.Store.Enabled {
		return nil
	}
	logger = logger.WithComponent("store")

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Warn("session journal unavailable", "path", cfg.Store.Path, "error", err)
		return nil
	}

	if n, err := db.CloseStale("unclean"); err != nil {
		logger.Warn("mark stale sessions failed", "error", err)
	} else if n > 0 {
		logger.Warn("previous session ended uncleanly", "sessions", n)
	}

	id, err := db.Begin(&store.Session{
		Version:    version,
		Engine:     engine,
		DevicePath: model.Display.DevicePath,
	})
	if err != nil {
		logger.Warn("record session start failed", "error", err)
		db.Close()
		return nil
	}
	logger.Debug("session started", "id", id)
	return &journal{db: db, id: id, logger: logger}
}

func (j *journal) event(kind, detail string) {
	if err := j.db.AddEvent(j.id, kind, detail); err != nil {
		j.logger.Warn("record session event failed", "kind", kind, "error", err)
	}
}

func (j *journal) finish(m *metrics.ConsoleMetrics, reason string) {
	stats := store.SessionStats{
		FramesPresented: m.FramesPresented.Value(),
		FramesDropped:   m.FramesDropped.Value(),
		PollCycles:      m.PollCycles.Value(),
		GPIOReadErrors:  m.GPIOReadErrors.Value(),
	}
	if err := j.db.Finish(j.id, stats, reason); err != nil {
		j.logger.Warn("record session end failed", "error", err)
	}
}

func (j *journal) close() {
	if err := j.db.Close(); err != nil {
		j.logger.Warn("close session journal failed", "error", err)
	}
}
