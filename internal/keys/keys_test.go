package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeycode(t *testing.T) {
	tests := []struct {
		input    string
		expected Keycode
		hasError bool
	}{
		{"A", A, false},
		{"b", B, false},
		{"up", Up, false},
		{"Down", Down, false},
		{"LEFT", Left, false},
		{" right ", Right, false},
		{"start", Start, false},
		{"SELECT", Select, false},
		{"X", 0, true},
		{"", 0, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			k, err := ParseKeycode(test.input)
			if test.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, k)
		})
	}
}

func TestKeycodeText(t *testing.T) {
	var k Keycode
	require.NoError(t, k.UnmarshalText([]byte("select")))
	assert.Equal(t, Select, k)

	text, err := k.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "SELECT", string(text))

	assert.Error(t, k.UnmarshalText([]byte("turbo")))
	_, err = Keycode(42).MarshalText()
	assert.Error(t, err)
}

func TestAllCoversEveryKey(t *testing.T) {
	all := All()
	require.Len(t, all, 8)
	seen := map[string]bool{}
	for _, k := range all {
		assert.True(t, k.Valid())
		seen[k.String()] = true
	}
	assert.Len(t, seen, 8)
}

func TestState(t *testing.T) {
	var s State
	assert.Equal(t, "-", s.String())
	assert.Empty(t, s.Keys())

	s = s.With(A).With(Up)
	assert.True(t, s.Has(A))
	assert.True(t, s.Has(Up))
	assert.False(t, s.Has(B))
	assert.Equal(t, []Keycode{Up, A}, s.Keys())
	assert.Equal(t, "UP+A", s.String())

	s = s.Without(Up)
	assert.False(t, s.Has(Up))
	assert.Equal(t, "A", s.String())

	// out of range keycodes never change the set
	assert.Equal(t, s, s.With(Keycode(99)))
	assert.False(t, s.Has(Keycode(99)))
}

func TestPulseCountsSince(t *testing.T) {
	var prev, cur PulseCounts
	cur[Down] = 3
	cur[Start] = 1
	assert.Equal(t, uint32(3), cur.Since(prev, Down))
	assert.Equal(t, uint32(1), cur.Since(prev, Start))
	assert.Zero(t, cur.Since(prev, Up))

	prev = cur
	cur[Down] = 4
	assert.Equal(t, uint32(1), cur.Since(prev, Down))
	assert.Zero(t, cur.Since(prev, Start))
	assert.Zero(t, cur.Since(prev, Keycode(42)))

	// Counts wrap without losing the difference.
	prev[Down] = ^uint32(0)
	cur[Down] = 1
	assert.Equal(t, uint32(2), cur.Since(prev, Down))
}
