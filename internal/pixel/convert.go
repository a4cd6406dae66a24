package pixel

import "fmt"

// Converter turns one raw frame into the fixed output layout. The
// destination slice is owned by the caller and is never resized; a
// converter writes every destination byte on success and leaves the
// destination untouched on error.
type Converter interface {
	// Convert writes the normalized frame into dst. src must be exactly
	// SrcSize bytes and dst exactly DstSize bytes.
	Convert(dst, src []byte) error
	// SrcFormat is the raw format this converter accepts.
	SrcFormat() Format
	// DstFormat is the fixed output format (RGB8 or Mono8).
	DstFormat() Format
	// SrcSize is the expected raw frame size in bytes.
	SrcSize() int
	// DstSize is the produced frame size in bytes.
	DstSize() int
}

// NewConverter selects the converter for a source format at the given
// resolution. Mono sources normalize to Mono8, color sources to RGB8.
// The choice is made once per session; Convert is then branch-free per
// frame.
func NewConverter(src Format, width, height int) (Converter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("pixel: invalid resolution %dx%d", width, height)
	}

	base := geometry{width: width, height: height, src: src}
	switch src {
	case FormatMono8:
		base.dst = FormatMono8
		return &copyConverter{geometry: base}, nil
	case FormatRGB8:
		base.dst = FormatRGB8
		return &copyConverter{geometry: base}, nil
	case FormatBGR8:
		base.dst = FormatRGB8
		return &bgrConverter{geometry: base}, nil
	case FormatYUY2:
		base.dst = FormatRGB8
		return &yuy2Converter{geometry: base}, nil
	case FormatBayerRG8:
		if width < 2 || height < 2 {
			return nil, fmt.Errorf("pixel: Bayer demosaic needs at least 2x2, got %dx%d", width, height)
		}
		base.dst = FormatRGB8
		return &bayerRGConverter{geometry: base}, nil
	default:
		return nil, fmt.Errorf("pixel: no converter for format %v", src)
	}
}

type geometry struct {
	width, height int
	src, dst      Format
}

func (g geometry) SrcFormat() Format { return g.src }
func (g geometry) DstFormat() Format { return g.dst }
func (g geometry) SrcSize() int      { return g.src.FrameSize(g.width, g.height) }
func (g geometry) DstSize() int      { return g.dst.FrameSize(g.width, g.height) }

func (g geometry) check(dst, src []byte) error {
	if len(src) != g.SrcSize() {
		return fmt.Errorf("pixel: source frame is %d bytes, want %d (%v %dx%d)",
			len(src), g.SrcSize(), g.src, g.width, g.height)
	}
	if len(dst) != g.DstSize() {
		return fmt.Errorf("pixel: destination buffer is %d bytes, want %d (%v %dx%d)",
			len(dst), g.DstSize(), g.dst, g.width, g.height)
	}
	return nil
}

// copyConverter handles sources that already match the output layout.
type copyConverter struct{ geometry }

func (c *copyConverter) Convert(dst, src []byte) error {
	if err := c.check(dst, src); err != nil {
		return err
	}
	copy(dst, src)
	return nil
}

// bgrConverter swaps the channel order of packed BGR into RGB.
type bgrConverter struct{ geometry }

func (c *bgrConverter) Convert(dst, src []byte) error {
	if err := c.check(dst, src); err != nil {
		return err
	}
	for i := 0; i+2 < len(src); i += 3 {
		dst[i] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i]
	}
	return nil
}

// yuy2Converter expands packed YUYV 4:2:2 to RGB using BT.601 full-range
// coefficients. Two pixels share one chroma pair.
type yuy2Converter struct{ geometry }

func (c *yuy2Converter) Convert(dst, src []byte) error {
	if err := c.check(dst, src); err != nil {
		return err
	}
	di := 0
	for si := 0; si+3 < len(src); si += 4 {
		y0 := int(src[si])
		cb := int(src[si+1]) - 128
		y1 := int(src[si+2])
		cr := int(src[si+3]) - 128

		dst[di+0] = clamp8(y0 + (91881*cr)>>16)
		dst[di+1] = clamp8(y0 - ((22554*cb + 46802*cr) >> 16))
		dst[di+2] = clamp8(y0 + (116130*cb)>>16)
		dst[di+3] = clamp8(y1 + (91881*cr)>>16)
		dst[di+4] = clamp8(y1 - ((22554*cb + 46802*cr) >> 16))
		dst[di+5] = clamp8(y1 + (116130*cb)>>16)
		di += 6
	}
	return nil
}

// bayerRGConverter demosaics an 8-bit RGGB mosaic with nearest-neighbor
// sampling within each 2x2 tile. Fast and artifact-prone at edges, which
// is acceptable for display and preview encoding.
type bayerRGConverter struct{ geometry }

func (c *bayerRGConverter) Convert(dst, src []byte) error {
	if err := c.check(dst, src); err != nil {
		return err
	}
	w, h := c.width, c.height
	for y := 0; y < h; y++ {
		// Snap to the even row/column holding the tile origin. The last
		// odd row/column reuses the previous tile.
		ty := y &^ 1
		if ty+1 >= h {
			ty = h - 2
		}
		for x := 0; x < w; x++ {
			tx := x &^ 1
			if tx+1 >= w {
				tx = w - 2
			}
			r := src[ty*w+tx]
			g := src[ty*w+tx+1]
			b := src[(ty+1)*w+tx+1]

			di := (y*w + x) * 3
			dst[di] = r
			dst[di+1] = g
			dst[di+2] = b
		}
	}
	return nil
}

func clamp8(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
