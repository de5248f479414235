package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"pocketd/internal/config"
	"pocketd/internal/console"
	"pocketd/internal/framebuffer"
	"pocketd/internal/gpio"
	"pocketd/internal/health"
	"pocketd/internal/input"
	"pocketd/internal/logging"
	"pocketd/internal/metrics"
	"pocketd/internal/power"
	"pocketd/internal/store"
	"pocketd/internal/watcher"
)

const (
	// Frames dropped in a row before the blitter reports degraded.
	dropThreshold = 5

	powerOffTimeout = 30 * time.Second
)

// runDaemon starts every component in order, runs until a signal, a power
// switch shutdown or a fatal error, and then tears down in reverse.
func runDaemon(opts options) error {
	path := config.Path(opts.configPath)
	loader := config.NewLoader(path)
	fileCfg, err := loader.Load()
	if err != nil {
		if config.IsValidationError(err) {
			return err
		}
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	defer loader.Close()

	cfg := fileCfg.Clone()
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.framebuffer != "" {
		cfg.Display.DevicePath = opts.framebuffer
	}
	if opts.engine != "" {
		cfg.Engine = opts.engine
	}
	model, err := cfg.Model()
	if err != nil {
		return err
	}

	logCfg, err := cfg.Logging.LoggerConfig()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	logger.Info("starting pocketd",
		"version", version,
		"config", path,
		"engine", model.Engine,
		"keys", len(model.Keys),
		"power_switches", len(model.PowerSwitches),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The journal opens later; the launcher reads it when START is pressed.
	var sessions *journal
	engine, err := console.NewEngine(model.Engine, console.EngineOptions{
		Width:   model.Display.SourceWidth,
		Height:  model.Display.SourceHeight,
		Title:   "pocketd " + version,
		RomsDir: model.RomsDir,
		Launch:  func(g console.Game) (console.Engine, error) { return launchGame(g, sessions) },
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	action, err := power.New(cfg.Shutdown.Action, cfg.Shutdown.Command, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	gpioOpts, err := cfg.GPIO.Options()
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}

	if err := waitForDevices(ctx, cfg, model, logger); err != nil {
		return err
	}

	m := metrics.NewConsoleMetrics(nil)

	blitter, err := framebuffer.Open(model.Display, logger, m)
	if err != nil {
		return err
	}
	// The controller closes the blitter once it runs; until then it is ours.
	controllerOwns := false
	defer func() {
		if !controllerOwns {
			blitter.Close()
		}
	}()

	if err := console.Splash(ctx, blitter, model.Display.SourceWidth, model.Display.SourceHeight, model.Splash); err != nil {
		return err
	}

	opener, err := gpio.NewOpener(cfg.GPIO.Backend, gpioOpts)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	defer opener.Close()

	poller, err := input.NewPoller(input.PollerConfig{
		Interval:      model.PollInterval,
		Keys:          model.Keys,
		PowerSwitches: model.PowerSwitches,
		Logger:        logger,
		Metrics:       m,
	}, opener)
	if err != nil {
		return err
	}
	defer poller.Close()

	ctrl, err := console.New(console.Config{
		FrameInterval: model.FrameInterval,
		Logger:        logger,
	}, engine, poller, poller.PowerSwitch(), blitter)
	if err != nil {
		return err
	}

	sessions = openJournal(cfg, model, model.Engine, logger)
	if sessions != nil {
		defer sessions.close()
	}

	checker := health.NewChecker()
	checker.RegisterFunc("poller", true, health.PollerCheck(poller.LastCycle, model.PollInterval))
	checker.RegisterFunc("blitter", false, health.BlitterCheck(blitter.ConsecutiveDrops, dropThreshold))
	if sessions != nil {
		checker.RegisterFunc("store", false, health.PingCheck(sessions.db.Ping))
	}

	if cfg.Metrics.Enabled {
		srv, err := startServer(cfg.Metrics.Listen, m, checker, logger)
		if err != nil {
			logger.Warn("metrics listener unavailable", "listen", cfg.Metrics.Listen, "error", err)
		} else {
			defer shutdownServer(srv, logger)
		}
	}

	watchConfig(ctx, loader, opts, logger, sessions)

	pollCtx, cancelPoll := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(pollCtx)
	}()

	checker.SetReady(true)
	controllerOwns = true
	runErr := ctrl.Run(ctx)
	checker.SetReady(false)

	cancelPoll()
	wg.Wait()

	reason := exitReason(runErr)
	logger.Info("pocketd stopped",
		"reason", reason,
		"frames_presented", m.FramesPresented.Value(),
		"frames_dropped", m.FramesDropped.Value(),
		"poll_cycles", poller.Cycles(),
	)

	if sessions != nil {
		if errors.Is(runErr, console.ErrShutdownRequested) {
			sessions.event(store.EventPowerSwitch, fmt.Sprintf("line %d", poller.PowerSwitch().Line()))
		}
		sessions.finish(m, reason)
	}

	if errors.Is(runErr, console.ErrShutdownRequested) {
		logger.Info("performing shutdown action", "action", action.Name())
		powerCtx, cancel := context.WithTimeout(context.Background(), powerOffTimeout)
		defer cancel()
		if err := action.PowerOff(powerCtx); err != nil {
			return fmt.Errorf("shutdown action %s: %w", action.Name(), err)
		}
	}
	return runErr
}

// launchGame records the chosen game. No emulator core is linked into
// pocketd, so the menu reports that the game cannot be played.
func launchGame(g console.Game, j *journal) (console.Engine, error) {
	if j != nil {
		j.event(store.EventGameSelected, g.Path)
	}
	return nil, fmt.Errorf("%s: %w", g.Platform, console.ErrNoCore)
}

func waitForDevices(ctx context.Context, cfg *config.Config, model *config.Model, logger *logging.Logger) error {
	if model.DeviceWait <= 0 {
		return nil
	}
	paths := cfg.DevicePaths()
	logger.Info("waiting for devices", "paths", paths, "timeout", model.DeviceWait)
	if err := watcher.WaitForDevices(ctx, paths, model.DeviceWait); err != nil {
		return fmt.Errorf("wait for devices: %w", err)
	}
	return nil
}

// watchConfig applies log level changes at runtime and reports every other
// change as needing a restart.
func watchConfig(ctx context.Context, loader *config.Loader, opts options, logger *logging.Logger, j *journal) {
	loader.OnChange(func(old, new *config.Config) {
		if opts.logLevel == "" && old != nil && old.Logging.Level != new.Logging.Level {
			if level, err := logging.ParseLevel(new.Logging.Level); err == nil {
				logger.SetLevel(level)
				logger.Info("log level changed", "level", new.Logging.Level)
				if j != nil {
					j.event(store.EventConfigReload, "logging.level="+new.Logging.Level)
				}
			}
		}
		if changed := config.RestartRequired(old, new); len(changed) > 0 {
			logger.Warn("configuration changed, restart required to apply", "sections", changed)
			if j != nil {
				j.event(store.EventRestartNeeded, fmt.Sprint(changed))
			}
		}
	})

	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "path", loader.Path(), "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload rejected", "error", err)
			}
		}
	}()
}

func exitReason(err error) string {
	switch {
	case err == nil:
		return "signal"
	case errors.Is(err, console.ErrShutdownRequested):
		return "power_switch"
	default:
		return "error: " + err.Error()
	}
}
