package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"pocketd/internal/framebuffer"
	"pocketd/internal/gpio"
	"pocketd/internal/keys"
	"pocketd/internal/logging"
)

// KeyBinding is one resolved button line.
type KeyBinding struct {
	Line        int
	Keycode     keys.Keycode
	ActiveLow   bool
	Debounce    time.Duration
	Repeat      bool
	RepeatDelay time.Duration
	RepeatRate  time.Duration
}

// PowerSwitchBinding is one resolved power switch line.
type PowerSwitchBinding struct {
	Line      int
	ActiveLow bool
	Debounce  time.Duration
}

// Model is the immutable runtime view of a validated Config, with every
// default resolved and durations converted.
type Model struct {
	Keys          []KeyBinding
	PowerSwitches []PowerSwitchBinding
	PollInterval  time.Duration
	Display       framebuffer.Geometry
	FrameInterval time.Duration
	Splash        time.Duration
	DeviceWait    time.Duration
	Engine        string
	RomsDir       string
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Geometry returns the display geometry described by the config.
func (c *Config) Geometry() framebuffer.Geometry {
	d := c.Display
	return framebuffer.Geometry{
		DevicePath:    d.DevicePath,
		Width:         d.Width,
		Height:        d.Height,
		BytesPerPixel: d.BytesPerPixel,
		StridePixels:  d.StridePixels,
		Scale:         d.Scale,
		SourceWidth:   d.SourceWidth,
		SourceHeight:  d.SourceHeight,
		Access:        framebuffer.Access(d.Access),
	}
}

// Model validates c and builds the runtime model.
func (c *Config) Model() (*Model, error) {
	if err := ValidateConfig(c); err != nil {
		return nil, err
	}

	m := &Model{
		PollInterval:  ms(c.PollIntervalMs),
		Display:       c.Geometry(),
		FrameInterval: ms(c.Display.FrameIntervalMs),
		Splash:        ms(c.Display.SplashMs),
		DeviceWait:    ms(c.Devices.WaitTimeoutMs),
		Engine:        c.Engine,
		RomsDir:       c.Menu.RomsDir,
	}
	if m.Display.Access == "" {
		m.Display.Access = framebuffer.AccessMmap
	}

	for _, k := range c.Keys {
		code, err := keys.ParseKeycode(k.Keycode)
		if err != nil {
			return nil, fmt.Errorf("key gpio %d: %w", k.GPIO, err)
		}
		b := KeyBinding{
			Line:      k.GPIO,
			Keycode:   code,
			ActiveLow: boolOr(k.ActiveLow, c.DefaultActiveLow),
			Debounce:  ms(intOr(k.DebounceMs, c.DefaultDebounceMs)),
			Repeat:    k.Repeat,
		}
		if k.Repeat {
			b.RepeatDelay = ms(k.RepeatDelayMs)
			b.RepeatRate = ms(k.RepeatRateMs)
		}
		m.Keys = append(m.Keys, b)
	}

	for _, p := range c.PowerSwitches {
		m.PowerSwitches = append(m.PowerSwitches, PowerSwitchBinding{
			Line:      p.GPIO,
			ActiveLow: boolOr(p.ActiveLow, c.DefaultActiveLow),
			Debounce:  ms(intOr(p.DebounceMs, c.DefaultDebounceMs)),
		})
	}
	return m, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// LoggerConfig converts the logging section for logging.New.
func (l LoggingConfig) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(l.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     l.Output,
		FilePath:   l.FilePath,
		MaxSize:    int64(l.MaxSizeMB),
		MaxAge:     l.MaxAgeDays,
		MaxBackups: l.MaxBackups,
		Compress:   l.Compress,
		Component:  "pocketd",
	}, nil
}

// Options converts the gpio section for gpio.NewOpener.
func (g GPIOConfig) Options() (gpio.Options, error) {
	bias, err := gpio.ParseBias(g.Bias)
	if err != nil {
		return gpio.Options{}, err
	}
	return gpio.Options{Chip: g.Chip, Consumer: g.Consumer, Bias: bias}, nil
}

// DevicePaths lists the device nodes the daemon needs at startup.
func (c *Config) DevicePaths() []string {
	paths := []string{c.Display.DevicePath}
	switch c.GPIO.Backend {
	case gpio.BackendRPIO:
		paths = append(paths, "/dev/gpiomem")
	default:
		chip := c.GPIO.Chip
		if !strings.HasPrefix(chip, "/") {
			chip = filepath.Join("/dev", chip)
		}
		paths = append(paths, chip)
	}
	return paths
}
