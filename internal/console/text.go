package console

import (
	"image/color"
	"unicode/utf8"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"pocketd/internal/framebuffer"
)

var textFont tinyfont.Fonter = &proggy.TinySZ8pt7b

// frameDisplay lets tinyfont draw into a source frame.
type frameDisplay struct {
	f *framebuffer.Frame
}

var _ drivers.Displayer = frameDisplay{}

func (d frameDisplay) Size() (x, y int16) {
	return int16(d.f.Width), int16(d.f.Height)
}

func (d frameDisplay) SetPixel(x, y int16, c color.RGBA) {
	d.f.Set(int(x), int(y), c.R, c.G, c.B)
}

func (d frameDisplay) Display() error {
	return nil
}

// lineHeight is the distance between two text rows.
func lineHeight() int {
	return int(textFont.GetYAdvance())
}

// ascent is the distance from the top of a row to the baseline.
func ascent() int {
	if a := -int(textFont.GetGlyph('M').Info().YOffset); a > 0 {
		return a
	}
	return lineHeight() - 2
}

// drawText writes s with the top of its row at top.
func drawText(f *framebuffer.Frame, x, top int, s string, c color.RGBA) {
	tinyfont.WriteLine(frameDisplay{f}, textFont, int16(x), int16(top+ascent()), s, c)
}

func textWidth(s string) int {
	_, w := tinyfont.LineWidth(textFont, s)
	return int(w)
}

// fitText drops trailing runes until s is at most maxW pixels wide.
func fitText(s string, maxW int) string {
	for s != "" && textWidth(s) > maxW {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}
