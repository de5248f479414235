// Package keys defines the logical console keys and the key-state snapshot
// published by the input poller.
package keys

import (
	"fmt"
	"strings"
	"time"
)

// Keycode identifies one logical console key.
type Keycode uint8

// Logical keys, in joypad bit order.
const (
	Right Keycode = iota
	Left
	Up
	Down
	A
	B
	Select
	Start

	numKeycodes
)

var keycodeNames = [numKeycodes]string{
	Right:  "RIGHT",
	Left:   "LEFT",
	Up:     "UP",
	Down:   "DOWN",
	A:      "A",
	B:      "B",
	Select: "SELECT",
	Start:  "START",
}

// All returns every logical key in bit order.
func All() []Keycode {
	all := make([]Keycode, 0, numKeycodes)
	for k := Keycode(0); k < numKeycodes; k++ {
		all = append(all, k)
	}
	return all
}

// Valid reports whether k names a known key.
func (k Keycode) Valid() bool {
	return k < numKeycodes
}

// String returns the upper-case key name used in configuration files.
func (k Keycode) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Keycode(%d)", uint8(k))
	}
	return keycodeNames[k]
}

// ParseKeycode parses a key name case-insensitively.
func ParseKeycode(s string) (Keycode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for k, n := range keycodeNames {
		if n == name {
			return Keycode(k), nil
		}
	}
	return 0, fmt.Errorf("unsupported keycode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Keycode) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid keycode %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so keycodes decode
// directly from TOML, YAML and JSON documents.
func (k *Keycode) UnmarshalText(text []byte) error {
	parsed, err := ParseKeycode(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// State is a set of asserted keys.
type State uint8

// Has reports whether k is asserted.
func (s State) Has(k Keycode) bool {
	return k.Valid() && s&(1<<k) != 0
}

// With returns s with k asserted.
func (s State) With(k Keycode) State {
	if !k.Valid() {
		return s
	}
	return s | 1<<k
}

// Without returns s with k cleared.
func (s State) Without(k Keycode) State {
	if !k.Valid() {
		return s
	}
	return s &^ (1 << k)
}

// Keys returns the asserted keys in bit order.
func (s State) Keys() []Keycode {
	var out []Keycode
	for k := Keycode(0); k < numKeycodes; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// String renders the set as "A+UP", or "-" when empty.
func (s State) String() string {
	ks := s.Keys()
	if len(ks) == 0 {
		return "-"
	}
	names := make([]string, len(ks))
	for i, k := range ks {
		names[i] = k.String()
	}
	return strings.Join(names, "+")
}

// PulseCounts holds, per key, the number of press and repeat pulses since
// the poller started. Counts only grow, so a reader sampling less often than
// the poller recovers every pulse by comparing two snapshots.
type PulseCounts [numKeycodes]uint32

// Since returns how many pulses k fired after prev was taken.
func (c PulseCounts) Since(prev PulseCounts, k Keycode) uint32 {
	if !k.Valid() {
		return 0
	}
	return c[k] - prev[k]
}

// Snapshot is the key state computed during one poll cycle. Snapshots are
// values; a published snapshot is never modified.
type Snapshot struct {
	// Held holds keys whose debounced level is asserted, plus keys that
	// fired a press or repeat pulse this cycle.
	Held State

	// Pulsed holds keys that fired a press or synthetic repeat pulse during
	// this cycle only.
	Pulsed State

	// Pulses is the running pulse count per key.
	Pulses PulseCounts

	// Cycle is the poll cycle number, starting at 1. Zero means no cycle
	// has completed yet.
	Cycle uint64

	// At is the sample time of the cycle.
	At time.Time
}
