package framebuffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	// ErrDeviceUnavailable is returned when the framebuffer node cannot be
	// opened or mapped at startup.
	ErrDeviceUnavailable = errors.New("framebuffer device unavailable")

	// ErrClosed is returned by Present and Clear after Close.
	ErrClosed = errors.New("framebuffer closed")
)

// Device is the write side of a framebuffer node. Close flushes any
// written pixels before releasing the node.
type Device interface {
	io.WriterAt
	Close() error
}

// WriteRecord is one WriteAt call seen by a MemDevice.
type WriteRecord struct {
	Off int64
	Len int
}

// MemDevice is an in-memory Device with failure injection, for tests and
// for running without a display.
type MemDevice struct {
	mu      sync.Mutex
	buf     []byte
	writes  []WriteRecord
	failErr error
	closed  bool
}

// NewMemDevice returns a device of size bytes, every byte set to fill.
func NewMemDevice(size int64, fill byte) *MemDevice {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = fill
	}
	return &MemDevice{buf: buf}
}

// FailWrites makes every WriteAt return err until called with nil.
func (d *MemDevice) FailWrites(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErr = err
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if d.failErr != nil {
		return 0, d.failErr
	}
	if off < 0 || off+int64(len(p)) > int64(len(d.buf)) {
		return 0, fmt.Errorf("write [%d, %d) outside device of %d bytes", off, off+int64(len(p)), len(d.buf))
	}
	copy(d.buf[off:], p)
	d.writes = append(d.writes, WriteRecord{Off: off, Len: len(p)})
	return len(p), nil
}

func (d *MemDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Bytes returns a copy of the device contents.
func (d *MemDevice) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buf...)
}

// Writes returns the writes recorded so far and clears the record.
func (d *MemDevice) Writes() []WriteRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := d.writes
	d.writes = nil
	return w
}

// Closed reports whether Close has been called.
func (d *MemDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
