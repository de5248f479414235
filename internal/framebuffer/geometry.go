// Package framebuffer converts fixed-resolution RGB888 frames into the pixel
// format, stride and scale of a Linux framebuffer device and writes them
// out row by row.
package framebuffer

import (
	"fmt"
)

// Access selects how the device node is written.
type Access string

const (
	// AccessMmap maps the framebuffer into memory. This is the default.
	AccessMmap Access = "mmap"
	// AccessPwrite writes each row with pwrite(2).
	AccessPwrite Access = "pwrite"
)

// Default source resolution of the emulated LCD.
const (
	DefaultSourceWidth  = 160
	DefaultSourceHeight = 144
)

// Geometry describes the destination device and the source frame it is fed
// from. It is built once at startup and never modified.
type Geometry struct {
	DevicePath    string
	Width         int
	Height        int
	BytesPerPixel int
	StridePixels  int
	Scale         int
	SourceWidth   int
	SourceHeight  int
	Access        Access
}

// GeometryError reports an inconsistent display configuration.
type GeometryError struct {
	Field   string
	Message string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("display geometry: %s: %s", e.Field, e.Message)
}

// Validate checks the geometry invariants and returns the first violation
// as a *GeometryError.
func (g Geometry) Validate() error {
	switch {
	case g.DevicePath == "":
		return &GeometryError{"device_path", "required"}
	case g.SourceWidth <= 0 || g.SourceHeight <= 0:
		return &GeometryError{"source_width", "source dimensions must be positive"}
	case g.Scale < 1:
		return &GeometryError{"scale", fmt.Sprintf("must be at least 1, got %d", g.Scale)}
	case g.Width <= 0 || g.Height <= 0:
		return &GeometryError{"width", "dimensions must be positive"}
	case g.Width != g.SourceWidth*g.Scale:
		return &GeometryError{"width", fmt.Sprintf("%d != source_width %d * scale %d", g.Width, g.SourceWidth, g.Scale)}
	case g.Height != g.SourceHeight*g.Scale:
		return &GeometryError{"height", fmt.Sprintf("%d != source_height %d * scale %d", g.Height, g.SourceHeight, g.Scale)}
	case g.StridePixels < g.Width:
		return &GeometryError{"stride_pixels", fmt.Sprintf("%d is less than width %d", g.StridePixels, g.Width)}
	}
	if _, err := FormatForDepth(g.BytesPerPixel); err != nil {
		return &GeometryError{"bytes_per_pixel", err.Error()}
	}
	switch g.Access {
	case "", AccessMmap, AccessPwrite:
	default:
		return &GeometryError{"access", fmt.Sprintf("unknown access mode %q", g.Access)}
	}
	return nil
}

// RowBytes is the number of bytes written per destination row.
func (g Geometry) RowBytes() int {
	return g.Width * g.BytesPerPixel
}

// RowOffset is the byte offset of row y on the device.
func (g Geometry) RowOffset(y int) int64 {
	return int64(y) * int64(g.StridePixels) * int64(g.BytesPerPixel)
}

// Size is the number of bytes spanned by the visible rows, stride included.
func (g Geometry) Size() int64 {
	return g.RowOffset(g.Height)
}
