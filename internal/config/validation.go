package config

import (
	"errors"
	"fmt"
	"strings"

	"pocketd/internal/framebuffer"
	"pocketd/internal/keys"
	"pocketd/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the names of the failing fields, in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}

// IsValidationError reports whether err carries configuration errors.
func IsValidationError(err error) bool {
	var verrs ValidationErrors
	var gerr *framebuffer.GeometryError
	return errors.As(err, &verrs) || errors.As(err, &gerr)
}

// ValidateConfig performs comprehensive validation of the configuration and
// reports every problem it finds.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if c.PollIntervalMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval_ms",
			Message: "must be positive",
		})
	}
	if c.DefaultDebounceMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "default_debounce_ms",
			Message: "must be positive",
		})
	}

	switch c.Engine {
	case "menu":
		if c.Menu.RomsDir == "" {
			errs = append(errs, ValidationError{
				Field:   "menu.roms_dir",
				Message: "roms directory is required for the menu engine",
			})
		}
	case "testpattern":
	default:
		errs = append(errs, ValidationError{
			Field:   "engine",
			Message: fmt.Sprintf("invalid engine: %s (valid: menu, testpattern)", c.Engine),
		})
	}

	errs = append(errs, validateGPIO(&c.GPIO)...)
	errs = append(errs, validateDisplay(c)...)
	errs = append(errs, validateShutdown(&c.Shutdown)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateBindings(c)...)

	if c.Devices.WaitTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "devices.wait_timeout_ms",
			Message: "cannot be negative",
		})
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, ValidationError{
			Field:   "metrics.listen",
			Message: "listen address is required when metrics are enabled",
		})
	}
	if c.Store.Enabled && c.Store.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "store.path",
			Message: "path is required when the store is enabled",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateGPIO(g *GPIOConfig) ValidationErrors {
	var errs ValidationErrors

	switch g.Backend {
	case "gpiocdev":
		if g.Chip == "" {
			errs = append(errs, ValidationError{
				Field:   "gpio.chip",
				Message: "chip is required for the gpiocdev backend",
			})
		}
	case "rpio":
	default:
		errs = append(errs, ValidationError{
			Field:   "gpio.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: gpiocdev, rpio)", g.Backend),
		})
	}

	switch g.Bias {
	case "", "as-is", "pull-up", "pull-down", "disabled":
	default:
		errs = append(errs, ValidationError{
			Field:   "gpio.bias",
			Message: fmt.Sprintf("invalid bias: %s (valid: pull-up, pull-down, disabled, as-is)", g.Bias),
		})
	}
	return errs
}

func validateDisplay(c *Config) ValidationErrors {
	var errs ValidationErrors
	d := &c.Display

	if d.FrameIntervalMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "display.frame_interval_ms",
			Message: "must be positive",
		})
	}
	if d.SplashMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "display.splash_ms",
			Message: "cannot be negative",
		})
	}

	if err := c.Geometry().Validate(); err != nil {
		var gerr *framebuffer.GeometryError
		if errors.As(err, &gerr) {
			errs = append(errs, ValidationError{
				Field:   "display." + gerr.Field,
				Message: gerr.Message,
			})
		} else {
			errs = append(errs, ValidationError{Field: "display", Message: err.Error()})
		}
	}
	return errs
}

func validateShutdown(s *ShutdownConfig) ValidationErrors {
	var errs ValidationErrors

	switch s.Action {
	case "logind", "none":
	case "command":
		if len(s.Command) == 0 || s.Command[0] == "" {
			errs = append(errs, ValidationError{
				Field:   "shutdown.command",
				Message: "command is required when action is 'command'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "shutdown.action",
			Message: fmt.Sprintf("invalid action: %s (valid: logind, command, none)", s.Action),
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: trace, debug, info, warn, error)", l.Level),
		})
	}

	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is '%s'", l.Output),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

// validateBindings checks keycode uniqueness, line uniqueness across keys
// and power switches, and the repeat settings.
func validateBindings(c *Config) ValidationErrors {
	var errs ValidationErrors
	lines := make(map[int]string)
	codes := make(map[keys.Keycode]int)

	claim := func(field string, line int) {
		if line < 0 {
			errs = append(errs, ValidationError{Field: field + ".gpio", Message: "cannot be negative"})
			return
		}
		if prev, ok := lines[line]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".gpio",
				Message: fmt.Sprintf("line %d is already used by %s", line, prev),
			})
			return
		}
		lines[line] = field
	}

	for i, k := range c.Keys {
		field := fmt.Sprintf("key[%d]", i)
		claim(field, k.GPIO)

		code, err := keys.ParseKeycode(k.Keycode)
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".keycode", Message: err.Error()})
		} else if prev, ok := codes[code]; ok {
			errs = append(errs, ValidationError{
				Field:   field + ".keycode",
				Message: fmt.Sprintf("%s is already bound by key[%d]", code, prev),
			})
		} else {
			codes[code] = i
		}

		if k.DebounceMs != nil && *k.DebounceMs <= 0 {
			errs = append(errs, ValidationError{Field: field + ".debounce_ms", Message: "must be positive"})
		}
		if k.Repeat {
			if k.RepeatDelayMs <= 0 {
				errs = append(errs, ValidationError{
					Field:   field + ".repeat_delay_ms",
					Message: "must be positive when repeat is enabled",
				})
			}
			if k.RepeatRateMs <= 0 {
				errs = append(errs, ValidationError{
					Field:   field + ".repeat_rate_ms",
					Message: "must be positive when repeat is enabled",
				})
			}
		}
	}

	for i, p := range c.PowerSwitches {
		field := fmt.Sprintf("powerswitch[%d]", i)
		claim(field, p.GPIO)
		if p.DebounceMs != nil && *p.DebounceMs <= 0 {
			errs = append(errs, ValidationError{Field: field + ".debounce_ms", Message: "must be positive"})
		}
	}
	return errs
}
