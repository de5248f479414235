// pocketctl inspects a pocketd installation: it checks the configuration,
// lists recorded sessions and queries the running daemon's health.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"pocketd/internal/config"
	"pocketd/internal/health"
	"pocketd/internal/store"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "check":
		err = cmdCheck(os.Stdout, config.Path(*configPath))
	case "sessions":
		limit := 20
		if flag.NArg() >= 2 {
			limit, err = strconv.Atoi(flag.Arg(1))
			if err != nil || limit < 1 {
				fmt.Fprintln(os.Stderr, "Usage: pocketctl sessions [count]")
				os.Exit(1)
			}
		}
		err = cmdSessions(os.Stdout, loadConfig(), limit)
	case "events":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: pocketctl events <session-id>")
			os.Exit(1)
		}
		id, perr := strconv.ParseInt(flag.Arg(1), 10, 64)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "Invalid session id: %s\n", flag.Arg(1))
			os.Exit(1)
		}
		err = cmdEvents(os.Stdout, loadConfig(), id)
	case "status":
		err = cmdStatus(os.Stdout, loadConfig())
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `pocketctl - Control utility for pocketd

Usage: pocketctl [options] <command> [args]

Commands:
  check             Validate the configuration file
  sessions [count]  List recent sessions from the journal
  events <id>       List the events recorded for a session
  status            Query the running daemon's health endpoint
  help              Show this help message

Options:
  -config <path>  Path to config file (default: $POCKETD_CONFIG or `+config.DefaultPath+`)`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// cmdCheck loads and validates the configuration at path and prints the
// resolved bindings.
func cmdCheck(w io.Writer, path string) error {
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintf(w, "%s: %d problem(s)\n", path, len(verrs))
			for _, v := range verrs {
				fmt.Fprintf(w, "  %s: %s\n", v.Field, v.Message)
			}
		}
		return err
	}
	model, err := cfg.Model()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: OK\n", path)
	fmt.Fprintf(w, "  Poll interval:  %s\n", model.PollInterval)
	fmt.Fprintf(w, "  Frame interval: %s\n", model.FrameInterval)
	fmt.Fprintf(w, "  Display:        %s %dx%d x%d (%s)\n",
		model.Display.DevicePath, model.Display.Width, model.Display.Height,
		model.Display.Scale, model.Display.Access)
	fmt.Fprintf(w, "  GPIO:           %s\n", cfg.GPIO.Backend)
	fmt.Fprintf(w, "  Shutdown:       %s\n", cfg.Shutdown.Action)

	fmt.Fprintln(w, "  Keys:")
	for _, k := range model.Keys {
		line := fmt.Sprintf("    %-6s gpio %-3d debounce %s", k.Keycode, k.Line, k.Debounce)
		if k.ActiveLow {
			line += " active-low"
		}
		if k.Repeat {
			line += fmt.Sprintf(" repeat %s/%s", k.RepeatDelay, k.RepeatRate)
		}
		fmt.Fprintln(w, line)
	}
	for _, p := range model.PowerSwitches {
		fmt.Fprintf(w, "  Power switch:   gpio %d debounce %s\n", p.Line, p.Debounce)
	}
	return nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("no session journal at %s", cfg.Store.Path)
	}
	return store.Open(cfg.Store.Path)
}

func cmdSessions(w io.Writer, cfg *config.Config, limit int) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := db.Recent(limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-6s %-20s %-10s %-10s %-8s %-6s %s\n",
		"ID", "Started", "Duration", "Frames", "Dropped", "Errors", "Exit")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, s := range sessions {
		duration := "running"
		exit := s.ExitReason
		if !s.Running() {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		} else if exit == "" {
			exit = "-"
		}
		fmt.Fprintf(w, "%-6d %-20s %-10s %-10d %-8d %-6d %s\n",
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			s.Stats.FramesPresented,
			s.Stats.FramesDropped,
			s.Stats.GPIOReadErrors,
			exit,
		)
	}
	return nil
}

func cmdEvents(w io.Writer, cfg *config.Config, id int64) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	events, err := db.Events(id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(w, "No events for session %d.\n", id)
		return nil
	}
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-16s %s\n", e.Timestamp.Local().Format(time.RFC3339), e.Kind, e.Detail)
	}
	return nil
}

func cmdStatus(w io.Writer, cfg *config.Config) error {
	if !cfg.Metrics.Enabled {
		return errors.New("metrics listener is disabled; set metrics.enabled to query status")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	report, err := fetchHealth(ctx, "http://"+cfg.Metrics.Listen+"/health")
	if err != nil {
		fmt.Fprintln(w, "Daemon Status: NOT RESPONDING")
		return err
	}

	fmt.Fprintf(w, "Daemon Status: %s (ready: %t, up %s)\n", strings.ToUpper(string(report.Status)), report.Ready, report.Uptime)
	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := report.Components[name]
		line := fmt.Sprintf("  %-10s %s", name, r.Status)
		if r.Message != "" {
			line += "  " + r.Message
		}
		if r.Error != "" {
			line += "  error: " + r.Error
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// fetchHealth reads a health.Response. Unhealthy daemons answer 503 with a
// body, so any status with a decodable body is accepted.
func fetchHealth(ctx context.Context, url string) (*health.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var report health.Response
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode health response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &report, nil
}
