package rimage

import (
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// PixelFormat describes how the luma and chroma planes of a 4:2:0 sensor buffer are laid out.
type PixelFormat int

const (
	// PixelFormatUnknown is the zero value and is never a valid frame format.
	PixelFormatUnknown PixelFormat = iota
	// PixelFormatI420 is planar: a full Y plane, then a U plane, then a V plane.
	PixelFormatI420
	// PixelFormatNV12 is a full Y plane followed by interleaved U,V samples.
	PixelFormatNV12
	// PixelFormatNV21 is a full Y plane followed by interleaved V,U samples.
	PixelFormatNV21
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatI420:
		return "i420"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatNV21:
		return "nv21"
	case PixelFormatUnknown:
	}
	return "unknown"
}

// PixelFormatFromString parses a case-insensitive format name.
func PixelFormatFromString(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "i420", "yuv420p":
		return PixelFormatI420, nil
	case "nv12":
		return PixelFormatNV12, nil
	case "nv21":
		return PixelFormatNV21, nil
	}
	return PixelFormatUnknown, errors.Errorf("unknown pixel format %q", s)
}

// ErrMalformedFrame is matched by every error describing a frame whose buffer is inconsistent
// with its declared dimensions or format.
var ErrMalformedFrame = errors.New("malformed frame")

// NewMalformedFrameError returns an error wrapping ErrMalformedFrame.
func NewMalformedFrameError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedFrame, format, args...)
}

func chromaDims(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

// RequiredBufferSize is the minimum number of bytes of a 4:2:0 buffer of the given dimensions.
// Dimensions that are not positive, or whose buffer size would not fit in an int, are malformed.
func RequiredBufferSize(width, height int) (int, error) {
	if width <= 0 || height <= 0 {
		return 0, NewMalformedFrameError("invalid dimensions %dx%d", width, height)
	}
	// the chroma planes never exceed twice the luma plane.
	if width > math.MaxInt/3/height {
		return 0, NewMalformedFrameError("dimensions %dx%d overflow the buffer size", width, height)
	}
	cw, ch := chromaDims(width, height)
	return width*height + 2*cw*ch, nil
}

// ValidateFrame checks that a buffer holds a complete frame of the declared dimensions and format.
func ValidateFrame(data []byte, width, height int, format PixelFormat) error {
	need, err := RequiredBufferSize(width, height)
	if err != nil {
		return err
	}
	switch format {
	case PixelFormatI420, PixelFormatNV12, PixelFormatNV21:
	default:
		return NewMalformedFrameError("unsupported pixel format %s", format)
	}
	if len(data) < need {
		return NewMalformedFrameError("buffer of %d bytes too short for %dx%d %s (need %d)",
			len(data), width, height, format, need)
	}
	return nil
}

// ConvertYUV420 converts a 4:2:0 sensor buffer into opaque RGB pixels written to dst.
// dst must be exactly width x height. Trailing bytes beyond RequiredBufferSize are ignored.
func ConvertYUV420(data []byte, width, height int, format PixelFormat, dst *image.RGBA) error {
	if err := ValidateFrame(data, width, height, format); err != nil {
		return err
	}
	if dst == nil {
		return errors.New("no destination image")
	}
	if b := dst.Bounds(); b.Dx() != width || b.Dy() != height {
		return NewMalformedFrameError("destination is %dx%d but frame is %dx%d", b.Dx(), b.Dy(), width, height)
	}

	if format == PixelFormatI420 {
		convertPlanar(data, width, height, dst)
	} else {
		convertSemiPlanar(data, width, height, format == PixelFormatNV21, dst)
	}
	return nil
}

// convertPlanar wraps the planes in an image.YCbCr view without copying and lets draw take its
// YCbCr fast path.
func convertPlanar(data []byte, width, height int, dst *image.RGBA) {
	cw, ch := chromaDims(width, height)
	lumaLen := width * height
	chromaLen := cw * ch
	src := &image.YCbCr{
		Y:              data[:lumaLen],
		Cb:             data[lumaLen : lumaLen+chromaLen],
		Cr:             data[lumaLen+chromaLen : lumaLen+2*chromaLen],
		YStride:        width,
		CStride:        cw,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, width, height),
	}
	draw.Draw(dst, dst.Bounds(), src, image.Point{}, draw.Src)
}

func convertSemiPlanar(data []byte, width, height int, vFirst bool, dst *image.RGBA) {
	cw, _ := chromaDims(width, height)
	chroma := data[width*height:]
	origin := dst.Bounds().Min
	for y := 0; y < height; y++ {
		lumaRow := data[y*width : (y+1)*width]
		chromaRow := chroma[(y/2)*cw*2:]
		pix := dst.Pix[dst.PixOffset(origin.X, origin.Y+y):]
		for x := 0; x < width; x++ {
			c := chromaRow[(x/2)*2:]
			cb, cr := c[0], c[1]
			if vFirst {
				cb, cr = cr, cb
			}
			r, g, b := color.YCbCrToRGB(lumaRow[x], cb, cr)
			i := x * 4
			pix[i+0] = r
			pix[i+1] = g
			pix[i+2] = b
			pix[i+3] = 0xff
		}
	}
}

// EncodeYUV420 encodes img into a 4:2:0 buffer of the given format. Chroma is the average of each
// 2x2 block. It is the inverse of ConvertYUV420 up to chroma subsampling and rounding.
func EncodeYUV420(img image.Image, format PixelFormat) ([]byte, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot encode empty image %v", bounds)
	}
	if format != PixelFormatI420 && format != PixelFormatNV12 && format != PixelFormatNV21 {
		return nil, errors.Errorf("unsupported pixel format %s", format)
	}
	size, err := RequiredBufferSize(width, height)
	if err != nil {
		return nil, err
	}
	cw, ch := chromaDims(width, height)
	out := make([]byte, size)
	lumaLen := width * height
	chromaLen := cw * ch

	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var sumCb, sumCr, n int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					x, y := cx*2+dx, cy*2+dy
					if x >= width || y >= height {
						continue
					}
					nc := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
					yy, cb, cr := color.RGBToYCbCr(nc.R, nc.G, nc.B)
					out[y*width+x] = yy
					sumCb += int(cb)
					sumCr += int(cr)
					n++
				}
			}
			cb := byte((sumCb + n/2) / n)
			cr := byte((sumCr + n/2) / n)
			switch format {
			case PixelFormatI420:
				out[lumaLen+cy*cw+cx] = cb
				out[lumaLen+chromaLen+cy*cw+cx] = cr
			case PixelFormatNV12:
				out[lumaLen+(cy*cw+cx)*2] = cb
				out[lumaLen+(cy*cw+cx)*2+1] = cr
			case PixelFormatNV21, PixelFormatUnknown:
				out[lumaLen+(cy*cw+cx)*2] = cr
				out[lumaLen+(cy*cw+cx)*2+1] = cb
			}
		}
	}
	return out, nil
}
