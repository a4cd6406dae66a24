// Package pixel normalizes camera pixel formats into the two fixed output
// layouts the pipeline consumes: packed RGB for color sensors and 8-bit
// gray for mono sensors.
//
// The set of supported source formats is closed. A Converter is selected
// once at session initialization and then applied per frame; no per-frame
// format decisions happen beyond the color/mono split fixed at init.
package pixel

import "fmt"

// Format identifies a raw pixel layout as reported by the camera device.
type Format int

const (
	// FormatUnknown is the zero value; converting from it is an error.
	FormatUnknown Format = iota
	// FormatMono8 is 8-bit grayscale, 1 byte per pixel.
	FormatMono8
	// FormatRGB8 is packed 8-bit RGB, 3 bytes per pixel.
	FormatRGB8
	// FormatBGR8 is packed 8-bit BGR, 3 bytes per pixel.
	FormatBGR8
	// FormatYUY2 is packed YUYV 4:2:2, 2 bytes per pixel.
	FormatYUY2
	// FormatBayerRG8 is an 8-bit Bayer mosaic with an RGGB tile, 1 byte
	// per pixel.
	FormatBayerRG8
)

// ParseFormat maps a device-reported pixel format name to a Format.
// Names follow the GenICam SFNC conventions ("Mono8", "RGB8", ...) with
// the V4L2 fourcc "YUY2" accepted as an alias for YUYV 4:2:2.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "Mono8":
		return FormatMono8, nil
	case "RGB8", "RGB8Packed":
		return FormatRGB8, nil
	case "BGR8", "BGR8Packed":
		return FormatBGR8, nil
	case "YUY2", "YUYV", "YCbCr422_8":
		return FormatYUY2, nil
	case "BayerRG8":
		return FormatBayerRG8, nil
	default:
		return FormatUnknown, fmt.Errorf("pixel: unsupported format %q", name)
	}
}

// String returns the SFNC-style name of the format.
func (f Format) String() string {
	switch f {
	case FormatMono8:
		return "Mono8"
	case FormatRGB8:
		return "RGB8"
	case FormatBGR8:
		return "BGR8"
	case FormatYUY2:
		return "YUY2"
	case FormatBayerRG8:
		return "BayerRG8"
	default:
		return "Unknown"
	}
}

// IsMono reports whether the format carries no color information.
func (f Format) IsMono() bool {
	return f == FormatMono8
}

// BytesPerPixel returns the per-pixel byte count of the raw layout.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatMono8, FormatBayerRG8:
		return 1
	case FormatYUY2:
		return 2
	case FormatRGB8, FormatBGR8:
		return 3
	default:
		return 0
	}
}

// FrameSize returns the byte size of a width x height frame in this format.
func (f Format) FrameSize(width, height int) int {
	return width * height * f.BytesPerPixel()
}
