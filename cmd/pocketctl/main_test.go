package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pocketd/internal/config"
	"pocketd/internal/health"
	"pocketd/internal/store"
)

func TestCmdCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pocketd.toml")
	body := `
[[key]]
gpio = 17
keycode = "A"

[[key]]
gpio = 22
keycode = "UP"
repeat = true
repeat_delay_ms = 300
repeat_rate_ms = 80

[[powerswitch]]
gpio = 27
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := cmdCheck(&out, path); err != nil {
		t.Fatalf("check failed: %v\n%s", err, out.String())
	}
	for _, want := range []string{"OK", "UP", "repeat 300ms/80ms", "Power switch:   gpio 27"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCmdCheckReportsEveryProblem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pocketd.toml")
	body := `
[[key]]
gpio = 17
keycode = "A"

[[key]]
gpio = 17
keycode = "A"
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := cmdCheck(&out, path)
	if !config.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, want := range []string{"2 problem(s)", "key[1].gpio", "key[1].keycode"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestCmdSessions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "sessions.db")

	var out bytes.Buffer
	if err := cmdSessions(&out, cfg, 10); err == nil {
		t.Fatal("expected error for missing journal")
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	id, err := db.Begin(&store.Session{Version: "test", Engine: "testpattern", DevicePath: "/dev/fb1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AddEvent(id, store.EventPowerSwitch, "line 27"); err != nil {
		t.Fatal(err)
	}
	if err := db.Finish(id, store.SessionStats{FramesPresented: 600, FramesDropped: 2}, "power_switch"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Begin(&store.Session{Version: "test"}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	out.Reset()
	if err := cmdSessions(&out, cfg, 10); err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, "power_switch") || !strings.Contains(text, "running") {
		t.Errorf("unexpected sessions output:\n%s", text)
	}

	out.Reset()
	if err := cmdEvents(&out, cfg, id); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "line 27") {
		t.Errorf("unexpected events output:\n%s", out.String())
	}
}

func TestFetchHealth(t *testing.T) {
	checker := health.NewChecker()
	checker.RegisterFunc("poller", true, health.PollerCheck(func() time.Time { return time.Now().Add(-time.Hour) }, 5*time.Millisecond))
	checker.SetReady(true)

	mux := http.NewServeMux()
	checker.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := fetchHealth(context.Background(), srv.URL+"/health")
	if err != nil {
		t.Fatal(err)
	}
	if report.Status != health.StatusUnhealthy {
		t.Errorf("status = %s, want %s", report.Status, health.StatusUnhealthy)
	}
	if _, ok := report.Components["poller"]; !ok {
		t.Error("poller component missing from report")
	}
}

func TestCmdStatusDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	var out bytes.Buffer
	if err := cmdStatus(&out, cfg); err == nil {
		t.Error("expected error when metrics listener is disabled")
	}
}
