package framebuffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pocketd/internal/logging"
	"pocketd/internal/metrics"
)

// ErrFrameSize is returned when a frame does not match the source geometry.
var ErrFrameSize = errors.New("frame size does not match source geometry")

// TransientError reports a failed device write. The frame it belongs to was
// dropped; the next Present starts clean.
type TransientError struct {
	Path string
	Row  int
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("framebuffer %s: write row %d: %v", e.Path, e.Row, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Blitter scales frames to the device geometry and writes them out. Present
// and Clear must be called from one goroutine; ConsecutiveDrops and Presented
// may be read from any.
type Blitter struct {
	geom    Geometry
	format  PixelFormat
	dev     Device
	logger  *logging.Logger
	metrics *metrics.ConsoleMetrics
	limiter *logging.Limiter

	row  []byte // one destination row, reused for every write
	srcX []int  // source byte offset within a row for each destination x

	mu     sync.Mutex
	closed bool

	drops     atomic.Int64
	presented atomic.Uint64
}

// Open validates g, opens its device and returns a Blitter over it.
func Open(g Geometry, logger *logging.Logger, m *metrics.ConsoleMetrics) (*Blitter, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	dev, err := OpenDevice(g, logger)
	if err != nil {
		return nil, err
	}
	return New(g, dev, logger, m)
}

// New returns a Blitter writing to dev.
func New(g Geometry, dev Device, logger *logging.Logger, m *metrics.ConsoleMetrics) (*Blitter, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	format, err := FormatForDepth(g.BytesPerPixel)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if m == nil {
		m = metrics.NewConsoleMetrics(nil)
	}

	srcX := make([]int, g.Width)
	for x := range srcX {
		srcX[x] = (x / g.Scale) * 3
	}

	return &Blitter{
		geom:    g,
		format:  format,
		dev:     dev,
		logger:  logger.WithComponent("blitter"),
		metrics: m,
		limiter: logging.NewLimiter(5 * time.Second),
		row:     make([]byte, g.RowBytes()),
		srcX:    srcX,
	}, nil
}

// Geometry returns the destination geometry.
func (b *Blitter) Geometry() Geometry {
	return b.geom
}

// Format returns the destination pixel format.
func (b *Blitter) Format() PixelFormat {
	return b.format
}

// Present converts f and writes every visible row. A device write failure
// drops the rest of the frame and returns a *TransientError.
func (b *Blitter) Present(f *Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	g := b.geom
	if f == nil || f.Width != g.SourceWidth || f.Height != g.SourceHeight || len(f.Pix) < f.Width*f.Height*3 {
		return ErrFrameSize
	}

	start := time.Now()
	srcStride := g.SourceWidth * 3
	bpp := g.BytesPerPixel

	for y := 0; y < g.Height; y++ {
		// Rows sharing a source row reuse the converted scratch row.
		if y%g.Scale == 0 {
			src := f.Pix[(y/g.Scale)*srcStride:]
			for x, sx := range b.srcX {
				b.format.Put(b.row[x*bpp:], src[sx], src[sx+1], src[sx+2])
			}
		}
		if _, err := b.dev.WriteAt(b.row, g.RowOffset(y)); err != nil {
			return b.drop(y, err)
		}
	}

	b.drops.Store(0)
	b.presented.Add(1)
	b.metrics.ConsecutiveDrops.Set(0)
	b.metrics.FramesPresented.Inc()
	b.metrics.BlitDuration.ObserveDuration(time.Since(start))
	return nil
}

// Clear fills the visible area with one colour.
func (b *Blitter) Clear(r, g, bl byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	bpp := b.geom.BytesPerPixel
	for x := 0; x < b.geom.Width; x++ {
		b.format.Put(b.row[x*bpp:], r, g, bl)
	}
	for y := 0; y < b.geom.Height; y++ {
		if _, err := b.dev.WriteAt(b.row, b.geom.RowOffset(y)); err != nil {
			return b.drop(y, err)
		}
	}
	return nil
}

func (b *Blitter) drop(row int, err error) error {
	drops := b.drops.Add(1)
	b.metrics.FramesDropped.Inc()
	b.metrics.ConsecutiveDrops.Set(drops)

	if ok, suppressed := b.limiter.Allow(b.geom.DevicePath, time.Now()); ok {
		b.logger.Warn("frame dropped",
			"path", b.geom.DevicePath,
			"row", row,
			"consecutive", drops,
			"suppressed", suppressed,
			"error", err,
		)
	}
	return &TransientError{Path: b.geom.DevicePath, Row: row, Err: err}
}

// ConsecutiveDrops returns the number of frames dropped since the last
// successful Present.
func (b *Blitter) ConsecutiveDrops() int64 {
	return b.drops.Load()
}

// Presented returns the number of frames fully written.
func (b *Blitter) Presented() uint64 {
	return b.presented.Load()
}

// Close flushes and releases the device. It is safe to call more than once.
func (b *Blitter) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.dev.Close(); err != nil {
		return fmt.Errorf("close framebuffer %s: %w", b.geom.DevicePath, err)
	}
	return nil
}
