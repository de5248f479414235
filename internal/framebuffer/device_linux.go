//go:build linux

package framebuffer

import (
	"fmt"
	"io"
	"unsafe"

	"golang.org/x/sys/unix"

	"pocketd/internal/logging"
)

const (
	ioctlGetVScreenInfo = 0x4600 // FBIOGET_VSCREENINFO
	ioctlGetFScreenInfo = 0x4602 // FBIOGET_FSCREENINFO
)

// varScreenInfo mirrors struct fb_var_screeninfo (40 32-bit words).
type varScreenInfo struct {
	XRes         uint32
	YRes         uint32
	XResVirtual  uint32
	YResVirtual  uint32
	XOffset      uint32
	YOffset      uint32
	BitsPerPixel uint32
	_            [33]uint32
}

// fixScreenInfo mirrors struct fb_fix_screeninfo. unsigned long fields are
// uintptr so the layout follows the platform word size.
type fixScreenInfo struct {
	ID           [16]byte
	SmemStart    uintptr
	SmemLen      uint32
	Type         uint32
	TypeAux      uint32
	Visual       uint32
	XPanStep     uint16
	YPanStep     uint16
	YWrapStep    uint16
	LineLength   uint32
	MmioStart    uintptr
	MmioLen      uint32
	Accel        uint32
	Capabilities uint16
	Reserved     [2]uint16
}

func ioctlPtr(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// OpenDevice opens the node named by g.DevicePath with the configured access
// mode. Character devices are probed with the screeninfo ioctls and any
// disagreement with g is logged; the configuration wins. Regular files are
// grown to g.Size() so recordings and tests can stand in for a display.
func OpenDevice(g Geometry, logger *logging.Logger) (Device, error) {
	fd, err := unix.Open(g.DevicePath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, g.DevicePath, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: stat %s: %v", ErrDeviceUnavailable, g.DevicePath, err)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFCHR:
		probeScreenInfo(fd, g, logger)
	case unix.S_IFREG:
		if st.Size < g.Size() {
			if err := unix.Ftruncate(fd, g.Size()); err != nil {
				unix.Close(fd)
				return nil, fmt.Errorf("%w: grow %s: %v", ErrDeviceUnavailable, g.DevicePath, err)
			}
		}
	}

	if g.Access == AccessPwrite {
		return &pwriteDevice{fd: fd, path: g.DevicePath}, nil
	}

	mem, err := unix.Mmap(fd, 0, int(g.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrDeviceUnavailable, g.DevicePath, err)
	}
	return &mmapDevice{fd: fd, path: g.DevicePath, mem: mem}, nil
}

func probeScreenInfo(fd int, g Geometry, logger *logging.Logger) {
	var vinfo varScreenInfo
	if err := ioctlPtr(fd, ioctlGetVScreenInfo, unsafe.Pointer(&vinfo)); err != nil {
		logger.Warn("FBIOGET_VSCREENINFO failed", "path", g.DevicePath, "error", err)
		return
	}
	var finfo fixScreenInfo
	if err := ioctlPtr(fd, ioctlGetFScreenInfo, unsafe.Pointer(&finfo)); err != nil {
		logger.Warn("FBIOGET_FSCREENINFO failed", "path", g.DevicePath, "error", err)
		return
	}

	logger.Info("framebuffer probed",
		"path", g.DevicePath,
		"xres", vinfo.XRes,
		"yres", vinfo.YRes,
		"bits_per_pixel", vinfo.BitsPerPixel,
		"line_length", finfo.LineLength,
		"smem_len", finfo.SmemLen,
	)

	if int(vinfo.BitsPerPixel) != g.BytesPerPixel*8 {
		logger.Warn("framebuffer depth differs from config",
			"path", g.DevicePath,
			"reported_bits_per_pixel", vinfo.BitsPerPixel,
			"configured_bytes_per_pixel", g.BytesPerPixel,
		)
	}
	if int(finfo.LineLength) != g.StridePixels*g.BytesPerPixel {
		logger.Warn("framebuffer stride differs from config",
			"path", g.DevicePath,
			"reported_line_length", finfo.LineLength,
			"configured_line_length", g.StridePixels*g.BytesPerPixel,
		)
	}
	if finfo.SmemLen != 0 && int64(finfo.SmemLen) < g.Size() {
		logger.Warn("framebuffer memory smaller than configured geometry",
			"path", g.DevicePath,
			"smem_len", finfo.SmemLen,
			"required", g.Size(),
		)
	}
}

type mmapDevice struct {
	fd   int
	path string
	mem  []byte
}

func (d *mmapDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.mem == nil {
		return 0, ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(len(d.mem)) {
		return 0, fmt.Errorf("%s: write at %d beyond mapping of %d bytes", d.path, off, len(d.mem))
	}
	return copy(d.mem[off:], p), nil
}

func (d *mmapDevice) Close() error {
	if d.mem == nil {
		return nil
	}
	var firstErr error
	if err := unix.Msync(d.mem, unix.MS_SYNC); err != nil {
		firstErr = fmt.Errorf("msync %s: %w", d.path, err)
	}
	if err := unix.Munmap(d.mem); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("munmap %s: %w", d.path, err)
	}
	d.mem = nil
	if err := unix.Close(d.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close %s: %w", d.path, err)
	}
	return firstErr
}

type pwriteDevice struct {
	fd     int
	path   string
	closed bool
}

func (d *pwriteDevice) WriteAt(p []byte, off int64) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	n, err := unix.Pwrite(d.fd, p, off)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (d *pwriteDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	var firstErr error
	// Character devices may not support fsync.
	if err := unix.Fsync(d.fd); err != nil && err != unix.EINVAL {
		firstErr = fmt.Errorf("fsync %s: %w", d.path, err)
	}
	if err := unix.Close(d.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close %s: %w", d.path, err)
	}
	return firstErr
}
