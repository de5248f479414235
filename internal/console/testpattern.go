package console

import (
	"pocketd/internal/framebuffer"
	"pocketd/internal/keys"
)

// EngineTestPattern is the name of the built-in bring-up engine.
const EngineTestPattern = "testpattern"

var bars = [...][3]byte{
	{0xff, 0xff, 0xff},
	{0xff, 0xff, 0x00},
	{0x00, 0xff, 0xff},
	{0x00, 0xff, 0x00},
	{0xff, 0x00, 0xff},
	{0xff, 0x00, 0x00},
	{0x00, 0x00, 0xff},
	{0x00, 0x00, 0x00},
}

var (
	keyIdle    = [3]byte{0x30, 0x30, 0x30}
	keyPressed = [3]byte{0xe0, 0x40, 0x20}
	sweepColor = [3]byte{0x80, 0x80, 0x80}
)

// TestPattern renders colour bars, a strip of key indicators and a moving
// sweep line, so that pixel format, scaling and input can be checked on real
// hardware without an emulator core.
type TestPattern struct {
	frame *framebuffer.Frame
	state keys.State
	tick  int
}

// NewTestPattern creates a test pattern of the given source size.
func NewTestPattern(width, height int) *TestPattern {
	return &TestPattern{frame: framebuffer.NewFrame(width, height)}
}

// Step renders the next frame.
func (p *TestPattern) Step(state keys.State) error {
	p.state = state
	p.render()
	p.tick++
	p.frame.Seq++
	return nil
}

// Frame returns the last rendered frame.
func (p *TestPattern) Frame() *framebuffer.Frame {
	return p.frame
}

// KeyBox returns the rectangle of the indicator for k.
func (p *TestPattern) KeyBox(k keys.Keycode) (x, y, w, h int) {
	n := len(keys.All())
	w = p.frame.Width / n
	h = p.frame.Height / 6
	return int(k) * w, p.frame.Height - h, w, h
}

func (p *TestPattern) render() {
	f := p.frame
	barW := f.Width / len(bars)
	for i, c := range bars {
		f.FillRect(i*barW, 0, barW, f.Height, c[0], c[1], c[2])
	}

	for _, k := range keys.All() {
		x, y, w, h := p.KeyBox(k)
		c := keyIdle
		if p.state.Has(k) {
			c = keyPressed
		}
		f.FillRect(x+1, y+1, w-2, h-2, c[0], c[1], c[2])
	}

	_, stripY, _, _ := p.KeyBox(0)
	f.FillRect(p.tick%f.Width, 0, 1, stripY, sweepColor[0], sweepColor[1], sweepColor[2])
}
