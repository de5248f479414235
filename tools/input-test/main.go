// Command input-test is a manual testing tool for the button poller.
//
// It opens the configured GPIO lines, prints every debounced press, release
// and repeat event, and prints the held key snapshot every second until
// interrupted with Ctrl+C or until a power switch fires. No power action is
// taken.
//
// Usage:
//
//	go build -o input-test ./tools/input-test
//	./input-test -config /etc/pocketd/config.toml
//	./input-test -fake    # scripted presses, no hardware needed
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pocketd/internal/config"
	"pocketd/internal/gpio"
	"pocketd/internal/input"
	"pocketd/internal/logging"
	"pocketd/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	fake := flag.Bool("fake", false, "simulate the configured lines with scripted presses")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	fmt.Println("Input Poller Test")
	fmt.Println("=================")
	fmt.Println()

	cfg, err := config.NewLoader(config.Path(*configPath)).Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(2)
	}
	model, err := cfg.Model()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(2)
	}
	if len(model.Keys) == 0 && len(model.PowerSwitches) == 0 {
		fmt.Println("No [[key]] or [[powerswitch]] entries configured.")
		os.Exit(2)
	}

	level := logging.LevelWarn
	if *debug {
		level = logging.LevelDebug
	}
	logger, err := logging.New(&logging.Config{
		Level:     level,
		Format:    logging.FormatText,
		Output:    "stderr",
		Component: "input-test",
	})
	if err != nil {
		fmt.Printf("Logging error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	var opener gpio.Opener
	var sim *gpio.Fake
	if *fake {
		sim = gpio.NewFake()
		opener = sim
		fmt.Println("Backend: fake (scripted)")
	} else {
		opts, err := cfg.GPIO.Options()
		if err != nil {
			fmt.Printf("GPIO options: %v\n", err)
			os.Exit(2)
		}
		opener, err = gpio.NewOpener(cfg.GPIO.Backend, opts)
		if err != nil {
			fmt.Printf("GPIO error: %v\n", err)
			os.Exit(3)
		}
		fmt.Printf("Backend: %s\n", cfg.GPIO.Backend)
	}
	defer opener.Close()

	m := metrics.NewConsoleMetrics(nil)
	poller, err := input.NewPoller(input.PollerConfig{
		Interval:      model.PollInterval,
		Keys:          model.Keys,
		PowerSwitches: model.PowerSwitches,
		Logger:        logger,
		Metrics:       m,
	}, opener)
	if err != nil {
		fmt.Printf("Open lines: %v\n", err)
		os.Exit(3)
	}
	defer poller.Close()

	for _, k := range model.Keys {
		fmt.Printf("  %-6s gpio %-3d debounce %s repeat %t\n", k.Keycode, k.Line, k.Debounce, k.Repeat)
	}
	for _, p := range model.PowerSwitches {
		fmt.Printf("  POWER  gpio %-3d debounce %s\n", p.Line, p.Debounce)
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	poller.OnEvent(func(e input.Event) {
		fmt.Printf("%10s  cycle %-6d %-6s %s\n",
			e.At.Sub(start).Truncate(time.Millisecond), e.Cycle, e.Key, e.Kind)
	})

	go poller.Run(ctx)
	if sim != nil {
		go runScript(ctx, sim, model)
	}

	fmt.Println("Polling. Press Ctrl+C to stop.")
	fmt.Println()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Println("Received interrupt signal, stopping...")
			printStats(poller, m, start)
			return

		case <-poller.PowerSwitch().Done():
			fmt.Println()
			fmt.Printf("Power switch on gpio %d fired. pocketd would shut down now.\n", poller.PowerSwitch().Line())
			printStats(poller, m, start)
			return

		case now := <-ticker.C:
			snap := poller.Latest()
			fmt.Printf("%10s  snapshot  cycle %-6d held %s\n",
				now.Sub(start).Truncate(time.Second), snap.Cycle, snap.Held)
		}
	}
}

// runScript drives the fake lines: a tap on every key with contact bounce,
// a long hold on the first repeating key, then the power switch.
func runScript(ctx context.Context, sim *gpio.Fake, model *config.Model) {
	wait := func(d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	if !wait(500 * time.Millisecond) {
		return
	}

	for _, k := range model.Keys {
		// Bounce shorter than the debounce window is filtered out.
		for i := 0; i < 3; i++ {
			sim.Set(k.Line, true)
			if !wait(2 * time.Millisecond) {
				return
			}
			sim.Set(k.Line, false)
			if !wait(2 * time.Millisecond) {
				return
			}
		}
		sim.Set(k.Line, true)
		if !wait(k.Debounce + 150*time.Millisecond) {
			return
		}
		sim.Set(k.Line, false)
		if !wait(k.Debounce + 150*time.Millisecond) {
			return
		}
	}

	for _, k := range model.Keys {
		if !k.Repeat {
			continue
		}
		sim.Set(k.Line, true)
		if !wait(k.RepeatDelay + 5*k.RepeatRate) {
			return
		}
		sim.Set(k.Line, false)
		if !wait(200 * time.Millisecond) {
			return
		}
		break
	}

	if len(model.PowerSwitches) > 0 {
		sim.Set(model.PowerSwitches[0].Line, true)
	}
}

func printStats(poller *input.Poller, m *metrics.ConsoleMetrics, start time.Time) {
	fmt.Println()
	fmt.Println("Final Statistics")
	fmt.Println("----------------")
	fmt.Printf("Duration:     %s\n", time.Since(start).Truncate(time.Millisecond))
	fmt.Printf("Poll cycles:  %d\n", poller.Cycles())
	fmt.Printf("Key events:   %d\n", m.KeyEvents.Value())
	fmt.Printf("Overruns:     %d\n", m.PollOverruns.Value())
	fmt.Printf("Read errors:  %d\n", m.GPIOReadErrors.Value())
}
