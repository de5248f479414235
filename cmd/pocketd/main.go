// pocketd drives a GPIO-buttoned handheld console: it polls the buttons,
// runs the emulation engine and blits its frames into the framebuffer.
//
// Usage:
//
//	pocketd [-config path] [-log-level level] [-framebuffer /dev/fbN] [-engine name]
//
// Exit codes: 0 on a clean stop or a power switch shutdown, 1 on a generic
// failure, 2 on a configuration error and 3 when a device is unavailable.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"pocketd/internal/config"
	"pocketd/internal/console"
	"pocketd/internal/framebuffer"
	"pocketd/internal/gpio"
	"pocketd/internal/watcher"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

const (
	exitOK     = 0
	exitError  = 1
	exitConfig = 2
	exitDevice = 3
)

// errConfig marks configuration failures that are not validation errors,
// such as a file that does not parse.
var errConfig = errors.New("configuration error")

type options struct {
	configPath  string
	logLevel    string
	framebuffer string
	engine      string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pocketd", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to config file (default: $POCKETD_CONFIG or "+config.DefaultPath+")")
	fs.StringVar(&opts.logLevel, "log-level", "", "override logging.level: trace, debug, info, warn, error")
	fs.StringVar(&opts.framebuffer, "framebuffer", "", "override display.device_path")
	fs.StringVar(&opts.engine, "engine", "", "override engine: "+console.EngineMenu+" or "+console.EngineTestPattern)
	showVersion := fs.Bool("version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "pocketd - handheld console input and display daemon\n\n")
		fmt.Fprintf(stderr, "Usage: pocketd [flags]\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitConfig
	}

	if *showVersion {
		fmt.Fprintf(stdout, "pocketd %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return exitOK
	}

	err := runDaemon(opts)
	code := exitCode(err)
	if code != exitOK {
		fmt.Fprintf(stderr, "pocketd: %v\n", err)
	}
	return code
}

// exitCode maps an error from runDaemon to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, console.ErrShutdownRequested):
		return exitOK
	case errors.Is(err, errConfig), config.IsValidationError(err):
		return exitConfig
	case errors.Is(err, framebuffer.ErrDeviceUnavailable),
		errors.Is(err, gpio.ErrLineUnavailable),
		errors.Is(err, watcher.ErrTimeout):
		return exitDevice
	default:
		return exitError
	}
}
