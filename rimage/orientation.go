package rimage

import (
	"image"

	"github.com/disintegration/imaging"

	"go.viam.com/livevision/logging"
)

// NormalizeRotation maps any multiple of 90 degrees, including negative ones, into {0, 90, 180, 270}.
func NormalizeRotation(degrees int) (int, error) {
	d := ((degrees % 360) + 360) % 360
	if d%90 != 0 {
		return 0, NewMalformedFrameError("rotation of %d degrees is not a multiple of 90", degrees)
	}
	return d, nil
}

// rotationFor returns the transform that turns an image clockwise by degrees.
// imaging rotates counter-clockwise, hence 90 maps to Rotate270 and vice versa.
func rotationFor(degrees int) func(image.Image) *image.NRGBA {
	switch degrees {
	case 90:
		return imaging.Rotate270
	case 180:
		return imaging.Rotate180
	case 270:
		return imaging.Rotate90
	default:
		return imaging.Clone
	}
}

// A Normalizer owns the working RGB buffer that frames are converted into and the cached
// rotation transform applied afterwards. Both are created on first use and kept for the
// lifetime of a capture session. A Normalizer is not safe for concurrent use.
type Normalizer struct {
	logger logging.Logger

	width, height int
	buffer        *image.RGBA

	rotation int
	rotate   func(image.Image) *image.NRGBA
}

// NewNormalizer returns a Normalizer with no cached state.
func NewNormalizer(logger logging.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Buffer returns the working buffer for a frame of the given dimensions, allocating it on first
// use. Streams are expected to keep fixed dimensions; a change is logged and the buffer is
// reallocated.
func (n *Normalizer) Buffer(width, height, rotation int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, NewMalformedFrameError("invalid dimensions %dx%d", width, height)
	}
	if err := n.useRotation(rotation); err != nil {
		return nil, err
	}
	switch {
	case n.buffer == nil:
		n.logger.Debugw("initializing working buffer", "width", width, "height", height, "rotation", n.rotation)
	case n.width != width || n.height != height:
		n.logger.Warnw("frame dimensions changed mid-stream, reinitializing working buffer",
			"cached_width", n.width, "cached_height", n.height, "width", width, "height", height)
	default:
		return n.buffer, nil
	}
	n.width, n.height = width, height
	n.buffer = image.NewRGBA(image.Rect(0, 0, width, height))
	return n.buffer, nil
}

// Normalize rotates src clockwise by rotation degrees and returns a new image. The result never
// shares pixels with src; 90 and 270 swap width and height.
func (n *Normalizer) Normalize(src image.Image, rotation int) (*image.NRGBA, error) {
	if src == nil {
		return nil, NewMalformedFrameError("no image to normalize")
	}
	if err := n.useRotation(rotation); err != nil {
		return nil, err
	}
	return n.rotate(src), nil
}

func (n *Normalizer) useRotation(rotation int) error {
	degrees, err := NormalizeRotation(rotation)
	if err != nil {
		return err
	}
	if n.rotate != nil && degrees == n.rotation {
		return nil
	}
	if n.rotate != nil {
		n.logger.Debugw("rotation changed", "from", n.rotation, "to", degrees)
	}
	n.rotation = degrees
	n.rotate = rotationFor(degrees)
	return nil
}

// Dimensions returns the size of the cached working buffer, or zeros before first use.
func (n *Normalizer) Dimensions() (int, int) {
	return n.width, n.height
}

// Reset drops the cached buffer and transform so the next frame starts a new session.
func (n *Normalizer) Reset() {
	n.width, n.height = 0, 0
	n.buffer = nil
	n.rotation = 0
	n.rotate = nil
}
