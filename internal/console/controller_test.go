package console

import (
	"bytes"
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketd/internal/framebuffer"
	"pocketd/internal/keys"
)

type staticSource struct{ snap keys.Snapshot }

func (s *staticSource) Latest() keys.Snapshot { return s.snap }

type shutdownChan chan struct{}

func (c shutdownChan) Done() <-chan struct{} { return c }

// recordingEngine returns the same frame until bump is called.
type recordingEngine struct {
	frame  *framebuffer.Frame
	states []keys.State
	err    error
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{frame: framebuffer.NewFrame(framebuffer.DefaultSourceWidth, framebuffer.DefaultSourceHeight)}
}

func (e *recordingEngine) Step(s keys.State) error {
	e.states = append(e.states, s)
	return e.err
}

func (e *recordingEngine) Frame() *framebuffer.Frame { return e.frame }

func (e *recordingEngine) bump() { e.frame.Seq++ }

func testGeometry() framebuffer.Geometry {
	return framebuffer.Geometry{
		DevicePath:    "mem",
		Width:         framebuffer.DefaultSourceWidth,
		Height:        framebuffer.DefaultSourceHeight,
		BytesPerPixel: 2,
		StridePixels:  framebuffer.DefaultSourceWidth,
		Scale:         1,
		SourceWidth:   framebuffer.DefaultSourceWidth,
		SourceHeight:  framebuffer.DefaultSourceHeight,
		Access:        framebuffer.AccessMmap,
	}
}

func newTestBlitter(t *testing.T) (*framebuffer.Blitter, *framebuffer.MemDevice) {
	t.Helper()
	g := testGeometry()
	dev := framebuffer.NewMemDevice(g.Size(), 0)
	b, err := framebuffer.New(g, dev, nil, nil)
	require.NoError(t, err)
	return b, dev
}

func TestTickPresentsOnlyNewFrames(t *testing.T) {
	b, dev := newTestBlitter(t)
	engine := newRecordingEngine()
	src := &staticSource{snap: keys.Snapshot{Held: keys.State(0).With(keys.A)}}

	c, err := New(Config{FrameInterval: time.Millisecond}, engine, src, nil, b)
	require.NoError(t, err)

	require.NoError(t, c.Tick())
	assert.Len(t, dev.Writes(), framebuffer.DefaultSourceHeight)

	require.NoError(t, c.Tick())
	assert.Empty(t, dev.Writes(), "unchanged frame is not presented again")

	engine.bump()
	require.NoError(t, c.Tick())
	assert.Len(t, dev.Writes(), framebuffer.DefaultSourceHeight)

	assert.Equal(t, uint64(3), c.Steps())
	assert.Equal(t, uint64(2), b.Presented())
	for _, s := range engine.states {
		assert.True(t, s.Has(keys.A))
	}
}

func TestTickDropsTransientErrors(t *testing.T) {
	b, dev := newTestBlitter(t)
	engine := newRecordingEngine()
	c, err := New(Config{FrameInterval: time.Millisecond}, engine, &staticSource{}, nil, b)
	require.NoError(t, err)

	dev.FailWrites(syscall.EIO)
	require.NoError(t, c.Tick())
	assert.Equal(t, uint64(1), c.Dropped())

	// The dropped frame was never shown, so the same frame is retried.
	dev.FailWrites(nil)
	require.NoError(t, c.Tick())
	assert.Equal(t, uint64(1), b.Presented())
	assert.Equal(t, int64(0), b.ConsecutiveDrops())
}

func TestTickFatalErrors(t *testing.T) {
	b, _ := newTestBlitter(t)
	engine := newRecordingEngine()
	c, err := New(Config{FrameInterval: time.Millisecond}, engine, &staticSource{}, nil, b)
	require.NoError(t, err)

	boom := errors.New("cpu halted")
	engine.err = boom
	assert.ErrorIs(t, c.Tick(), boom)

	engine.err = nil
	engine.frame = framebuffer.NewFrame(10, 10)
	assert.ErrorIs(t, c.Tick(), framebuffer.ErrFrameSize)
}

func TestRunShutdown(t *testing.T) {
	b, dev := newTestBlitter(t)
	engine := NewTestPattern(framebuffer.DefaultSourceWidth, framebuffer.DefaultSourceHeight)
	done := make(shutdownChan)

	c, err := New(Config{FrameInterval: time.Millisecond}, engine, &staticSource{}, done, b)
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() { result <- c.Run(context.Background()) }()

	require.Eventually(t, func() bool { return b.Presented() >= 2 }, time.Second, time.Millisecond)
	close(done)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrShutdownRequested)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after shutdown")
	}

	assert.True(t, dev.Closed())
	for i, v := range dev.Bytes() {
		if v != 0 {
			t.Fatalf("byte %d = %#x after blanking", i, v)
		}
	}
	assert.ErrorIs(t, b.Present(engine.Frame()), framebuffer.ErrClosed)
}

// shutdownOnStep requests shutdown from inside its first Step and then
// stalls past the next tick, so both are ready when Run selects again.
type shutdownOnStep struct {
	*recordingEngine
	done  shutdownChan
	stall time.Duration
}

func (e *shutdownOnStep) Step(s keys.State) error {
	if len(e.states) == 0 {
		close(e.done)
		time.Sleep(e.stall)
	}
	return e.recordingEngine.Step(s)
}

func TestRunNoTickAfterShutdown(t *testing.T) {
	for i := 0; i < 20; i++ {
		b, _ := newTestBlitter(t)
		engine := &shutdownOnStep{recordingEngine: newRecordingEngine(), done: make(shutdownChan), stall: 3 * time.Millisecond}

		c, err := New(Config{FrameInterval: time.Millisecond}, engine, &staticSource{}, engine.done, b)
		require.NoError(t, err)

		require.ErrorIs(t, c.Run(context.Background()), ErrShutdownRequested)
		require.Len(t, engine.states, 1, "run %d stepped after shutdown", i)
	}
}

func TestRunCancel(t *testing.T) {
	b, dev := newTestBlitter(t)
	c, err := New(Config{FrameInterval: time.Millisecond}, newRecordingEngine(), &staticSource{}, nil, b)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return b.Presented() >= 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.True(t, dev.Closed())
}

func TestRunFatalStops(t *testing.T) {
	b, dev := newTestBlitter(t)
	engine := newRecordingEngine()
	engine.err = errors.New("bad opcode")

	c, err := New(Config{FrameInterval: time.Millisecond}, engine, &staticSource{}, nil, b)
	require.NoError(t, err)

	err = c.Run(context.Background())
	assert.ErrorContains(t, err, "bad opcode")
	assert.True(t, dev.Closed())
}

func TestSplash(t *testing.T) {
	b, dev := newTestBlitter(t)

	start := time.Now()
	require.NoError(t, Splash(context.Background(), b, framebuffer.DefaultSourceWidth, framebuffer.DefaultSourceHeight, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	want := []byte{0, 0}
	framebuffer.FormatRGB565.Put(want, splashR, splashG, splashB)
	got := dev.Bytes()
	assert.Equal(t, want, got[:2])
	assert.Equal(t, want, got[len(got)-2:])

	// The splash text is drawn in black across the middle rows.
	g := testGeometry()
	mid := got[g.RowOffset(g.Height/2-g.Height/8):g.RowOffset(g.Height/2+g.Height/8)]
	assert.True(t, bytes.Contains(mid, []byte{0, 0}), "no text pixels in the middle of the splash")
}

func TestSplashCancelled(t *testing.T) {
	b, _ := newTestBlitter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	require.NoError(t, Splash(ctx, b, framebuffer.DefaultSourceWidth, framebuffer.DefaultSourceHeight, time.Hour))
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, Splash(context.Background(), b, framebuffer.DefaultSourceWidth, framebuffer.DefaultSourceHeight, 0), framebuffer.ErrClosed)
}

func TestNewRejectsBadConfig(t *testing.T) {
	b, _ := newTestBlitter(t)
	_, err := New(Config{}, newRecordingEngine(), &staticSource{}, nil, b)
	assert.Error(t, err)
	_, err = New(Config{FrameInterval: time.Millisecond}, nil, &staticSource{}, nil, b)
	assert.Error(t, err)
}
