package framebuffer

import "fmt"

// PixelFormat is a destination pixel encoding.
type PixelFormat int

const (
	// FormatRGB565 is 16-bit 5:6:5, little-endian.
	FormatRGB565 PixelFormat = iota
	// FormatBGR888 is 24-bit, bytes B, G, R.
	FormatBGR888
	// FormatXRGB8888 is 32-bit little-endian with an opaque X byte.
	FormatXRGB8888
)

// FormatForDepth returns the format used for a bytes-per-pixel value.
func FormatForDepth(bytesPerPixel int) (PixelFormat, error) {
	switch bytesPerPixel {
	case 2:
		return FormatRGB565, nil
	case 3:
		return FormatBGR888, nil
	case 4:
		return FormatXRGB8888, nil
	default:
		return 0, fmt.Errorf("unsupported bytes per pixel %d (want 2, 3 or 4)", bytesPerPixel)
	}
}

// BytesPerPixel returns the encoded size of one pixel.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB565:
		return 2
	case FormatBGR888:
		return 3
	default:
		return 4
	}
}

func (f PixelFormat) String() string {
	switch f {
	case FormatRGB565:
		return "rgb565"
	case FormatBGR888:
		return "bgr888"
	case FormatXRGB8888:
		return "xrgb8888"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// Put encodes one RGB888 pixel at the start of dst.
func (f PixelFormat) Put(dst []byte, r, g, b byte) {
	switch f {
	case FormatRGB565:
		v := RGB565(r, g, b)
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
	case FormatBGR888:
		dst[0] = b
		dst[1] = g
		dst[2] = r
	default:
		dst[0] = b
		dst[1] = g
		dst[2] = r
		dst[3] = 0xFF
	}
}

// RGB565 packs an RGB888 colour into 5:6:5.
func RGB565(r, g, b byte) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}
