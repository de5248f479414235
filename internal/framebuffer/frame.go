package framebuffer

// Frame is one rendered source image: row-major RGB888, three bytes per
// pixel. Seq increases each time the renderer produces a new image.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
	Seq    uint64
}

// NewFrame allocates a black frame.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*3),
	}
}

// Set writes one pixel. Out-of-range coordinates are ignored.
func (f *Frame) Set(x, y int, r, g, b byte) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * 3
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// At returns one pixel.
func (f *Frame) At(x, y int) (r, g, b byte) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// FillRect fills a rectangle, clipped to the frame.
func (f *Frame) FillRect(x0, y0, w, h int, r, g, b byte) {
	for y := max(y0, 0); y < min(y0+h, f.Height); y++ {
		for x := max(x0, 0); x < min(x0+w, f.Width); x++ {
			i := (y*f.Width + x) * 3
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
		}
	}
}

// Fill paints the whole frame one colour.
func (f *Frame) Fill(r, g, b byte) {
	f.FillRect(0, 0, f.Width, f.Height, r, g, b)
}
