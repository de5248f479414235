// Package config handles configuration loading, validation and the
// immutable runtime model for pocketd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/pocketd/config.toml"

// Config holds the complete daemon configuration as it appears on disk.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// PollIntervalMs is the GPIO polling period.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// DefaultDebounceMs applies to lines without their own debounce_ms.
	DefaultDebounceMs int `toml:"default_debounce_ms" json:"default_debounce_ms" yaml:"default_debounce_ms"`

	// DefaultActiveLow applies to lines without their own active_low.
	DefaultActiveLow bool `toml:"default_active_low" json:"default_active_low" yaml:"default_active_low"`

	// Engine names the built-in engine: "menu" or "testpattern".
	Engine string `toml:"engine" json:"engine" yaml:"engine"`

	GPIO     GPIOConfig     `toml:"gpio" json:"gpio" yaml:"gpio"`
	Display  DisplayConfig  `toml:"display" json:"display" yaml:"display"`
	Menu     MenuConfig     `toml:"menu" json:"menu" yaml:"menu"`
	Shutdown ShutdownConfig `toml:"shutdown" json:"shutdown" yaml:"shutdown"`
	Devices  DevicesConfig  `toml:"devices" json:"devices" yaml:"devices"`
	Logging  LoggingConfig  `toml:"logging" json:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" json:"metrics" yaml:"metrics"`
	Store    StoreConfig    `toml:"store" json:"store" yaml:"store"`

	// Keys are the button bindings.
	Keys []KeyConfig `toml:"key" json:"key" yaml:"key"`

	// PowerSwitches are lines that request a system shutdown.
	PowerSwitches []PowerSwitchConfig `toml:"powerswitch" json:"powerswitch" yaml:"powerswitch"`
}

// GPIOConfig selects the GPIO backend.
type GPIOConfig struct {
	// Backend is "gpiocdev" (character device) or "rpio" (/dev/gpiomem).
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Chip is the gpiocdev chip name, such as "gpiochip0".
	Chip string `toml:"chip" json:"chip" yaml:"chip"`

	// Consumer labels claimed lines in the kernel.
	Consumer string `toml:"consumer" json:"consumer" yaml:"consumer"`

	// Bias is "pull-up", "pull-down", "disabled" or "as-is".
	Bias string `toml:"bias" json:"bias" yaml:"bias"`
}

// DisplayConfig describes the framebuffer and the source frame.
type DisplayConfig struct {
	DevicePath      string `toml:"device_path" json:"device_path" yaml:"device_path"`
	Width           int    `toml:"width" json:"width" yaml:"width"`
	Height          int    `toml:"height" json:"height" yaml:"height"`
	BytesPerPixel   int    `toml:"bytes_per_pixel" json:"bytes_per_pixel" yaml:"bytes_per_pixel"`
	StridePixels    int    `toml:"stride_pixels" json:"stride_pixels" yaml:"stride_pixels"`
	Scale           int    `toml:"scale" json:"scale" yaml:"scale"`
	Access          string `toml:"access" json:"access" yaml:"access"`
	SourceWidth     int    `toml:"source_width" json:"source_width" yaml:"source_width"`
	SourceHeight    int    `toml:"source_height" json:"source_height" yaml:"source_height"`
	FrameIntervalMs int    `toml:"frame_interval_ms" json:"frame_interval_ms" yaml:"frame_interval_ms"`

	// SplashMs shows the boot colour for this long before the first frame.
	SplashMs int `toml:"splash_ms" json:"splash_ms" yaml:"splash_ms"`
}

// MenuConfig configures the game list.
type MenuConfig struct {
	// RomsDir is scanned once at startup for .gb and .gbc files.
	RomsDir string `toml:"roms_dir" json:"roms_dir" yaml:"roms_dir"`
}

// ShutdownConfig selects what happens after a power switch stops the daemon.
type ShutdownConfig struct {
	// Action is "logind", "command" or "none".
	Action string `toml:"action" json:"action" yaml:"action"`

	// Command is run for the "command" action.
	Command []string `toml:"command" json:"command" yaml:"command"`
}

// DevicesConfig bounds the wait for device nodes at boot.
type DevicesConfig struct {
	// WaitTimeoutMs waits for /dev nodes to appear; 0 disables waiting.
	WaitTimeoutMs int `toml:"wait_timeout_ms" json:"wait_timeout_ms" yaml:"wait_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig controls the metrics and health HTTP listener.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// StoreConfig controls the session journal.
type StoreConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`
}

// KeyConfig binds one GPIO line to a console key. Nil pointer fields take
// the top-level defaults.
type KeyConfig struct {
	GPIO          int    `toml:"gpio" json:"gpio" yaml:"gpio"`
	Keycode       string `toml:"keycode" json:"keycode" yaml:"keycode"`
	ActiveLow     *bool  `toml:"active_low" json:"active_low,omitempty" yaml:"active_low,omitempty"`
	DebounceMs    *int   `toml:"debounce_ms" json:"debounce_ms,omitempty" yaml:"debounce_ms,omitempty"`
	Repeat        bool   `toml:"repeat" json:"repeat" yaml:"repeat"`
	RepeatDelayMs int    `toml:"repeat_delay_ms" json:"repeat_delay_ms,omitempty" yaml:"repeat_delay_ms,omitempty"`
	RepeatRateMs  int    `toml:"repeat_rate_ms" json:"repeat_rate_ms,omitempty" yaml:"repeat_rate_ms,omitempty"`
}

// PowerSwitchConfig binds one GPIO line to the shutdown signal.
type PowerSwitchConfig struct {
	GPIO       int   `toml:"gpio" json:"gpio" yaml:"gpio"`
	ActiveLow  *bool `toml:"active_low" json:"active_low,omitempty" yaml:"active_low,omitempty"`
	DebounceMs *int  `toml:"debounce_ms" json:"debounce_ms,omitempty" yaml:"debounce_ms,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults and no key
// bindings.
func DefaultConfig() *Config {
	return &Config{
		Version:           Version,
		PollIntervalMs:    5,
		DefaultDebounceMs: 20,
		DefaultActiveLow:  true,
		Engine:            "menu",
		GPIO: GPIOConfig{
			Backend:  "gpiocdev",
			Chip:     "gpiochip0",
			Consumer: "pocketd",
			Bias:     "pull-up",
		},
		Display: DisplayConfig{
			DevicePath:      "/dev/fb1",
			Width:           320,
			Height:          288,
			BytesPerPixel:   2,
			StridePixels:    320,
			Scale:           2,
			Access:          "mmap",
			SourceWidth:     160,
			SourceHeight:    144,
			FrameIntervalMs: 16,
		},
		Menu: MenuConfig{
			RomsDir: "/home/pi/roms",
		},
		Shutdown: ShutdownConfig{
			Action:  "command",
			Command: []string{"shutdown", "-h", "now"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   "/var/log/pocketd/pocketd.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9120",
		},
		Store: StoreConfig{
			Path: "/var/lib/pocketd/sessions.db",
		},
	}
}

// Path returns the configuration path: explicit if set, then
// POCKETD_CONFIG, then DefaultPath.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("POCKETD_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads configuration from path, checks it against the schema, decodes
// it over DefaultConfig and applies environment overrides. A missing file
// yields the defaults. Load does not run ValidateConfig.
//
// TOML is the default format; .json, .yaml and .yml files are decoded by
// extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	format := formatOf(path)
	if err := checkSchema(data, format); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := decode(data, format, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

type fileFormat int

const (
	formatTOML fileFormat = iota
	formatJSON
	formatYAML
)

func formatOf(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatTOML
	}
}

func decode(data []byte, format fileFormat, v any) error {
	switch format {
	case formatJSON:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies POCKETD_* environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("POCKETD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("POCKETD_FRAMEBUFFER"); v != "" {
		c.Display.DevicePath = v
	}
	if v := os.Getenv("POCKETD_GPIO_CHIP"); v != "" {
		c.GPIO.Chip = v
	}
	if v := os.Getenv("POCKETD_GPIO_BACKEND"); v != "" {
		c.GPIO.Backend = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Shutdown.Command = append([]string(nil), c.Shutdown.Command...)
	clone.Keys = make([]KeyConfig, len(c.Keys))
	for i, k := range c.Keys {
		k.ActiveLow = clonePtr(k.ActiveLow)
		k.DebounceMs = clonePtr(k.DebounceMs)
		clone.Keys[i] = k
	}
	clone.PowerSwitches = make([]PowerSwitchConfig, len(c.PowerSwitches))
	for i, p := range c.PowerSwitches {
		p.ActiveLow = clonePtr(p.ActiveLow)
		p.DebounceMs = clonePtr(p.DebounceMs)
		clone.PowerSwitches[i] = p
	}
	return &clone
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
