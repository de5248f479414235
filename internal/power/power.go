// Package power performs the system action that follows a power switch
// shutdown.
package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/godbus/dbus/v5"

	"pocketd/internal/logging"
)

// Action names accepted in the shutdown section of the config.
const (
	ActionLogind  = "logind"
	ActionCommand = "command"
	ActionNone    = "none"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = "/org/freedesktop/login1"
	logindPowerOff  = "org.freedesktop.login1.Manager.PowerOff"
	commandOutLimit = 512
)

// Action powers the system off.
type Action interface {
	Name() string
	PowerOff(ctx context.Context) error
}

// New returns the Action for name. command is used by ActionCommand only.
func New(name string, command []string, logger *logging.Logger) (Action, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithComponent("power")

	switch name {
	case ActionLogind:
		return &Logind{logger: logger, connect: systemBus}, nil
	case ActionCommand:
		if len(command) == 0 || command[0] == "" {
			return nil, errors.New("power: command action needs a command")
		}
		return &Command{argv: append([]string(nil), command...), logger: logger}, nil
	case ActionNone, "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("power: unknown action %q", name)
	}
}

// None does nothing. The daemon just exits.
type None struct{}

func (None) Name() string { return ActionNone }

func (None) PowerOff(context.Context) error { return nil }

// Command runs an external program, by default "shutdown -h now".
type Command struct {
	argv   []string
	logger *logging.Logger
}

func (c *Command) Name() string { return ActionCommand }

func (c *Command) PowerOff(ctx context.Context) error {
	c.logger.Info("running shutdown command", "command", strings.Join(c.argv, " "))
	out, err := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > commandOutLimit {
			msg = msg[:commandOutLimit]
		}
		return fmt.Errorf("power: %s: %w (output: %q)", c.argv[0], err, msg)
	}
	return nil
}

// busConn is the subset of *dbus.Conn used by Logind.
type busConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

func systemBus() (busConn, error) {
	return dbus.ConnectSystemBus()
}

// Logind asks systemd-logind to power off over the system bus.
type Logind struct {
	logger  *logging.Logger
	connect func() (busConn, error)
}

func (l *Logind) Name() string { return ActionLogind }

func (l *Logind) PowerOff(ctx context.Context) error {
	conn, err := l.connect()
	if err != nil {
		return fmt.Errorf("power: connect to system bus: %w", err)
	}
	defer conn.Close()

	l.logger.Info("requesting power off from logind")
	obj := conn.Object(logindDest, dbus.ObjectPath(logindPath))
	// interactive=false: no polkit prompt on a headless console.
	if call := obj.CallWithContext(ctx, logindPowerOff, 0, false); call.Err != nil {
		return fmt.Errorf("power: %s: %w", logindPowerOff, call.Err)
	}
	return nil
}
