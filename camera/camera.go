// Package camera defines the frames produced by a capture source and the contract between a
// source and the consumer that analyzes its frames.
package camera

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/livevision/rimage"
)

// A Frame is one captured sensor buffer together with its metadata. The fields must not be
// modified once the frame is handed to a consumer. The consumer owns the frame until it calls
// Release, which returns the buffer to the source.
type Frame struct {
	Data     []byte
	Width    int
	Height   int
	Rotation int
	Format   rimage.PixelFormat
	Seq      uint64

	releaseOnce sync.Once
	release     func()
	released    atomic.Bool
}

// NewFrame returns a frame whose release function runs at most once. A nil release is allowed.
func NewFrame(data []byte, width, height, rotation int, format rimage.PixelFormat, seq uint64, release func()) *Frame {
	return &Frame{
		Data:     data,
		Width:    width,
		Height:   height,
		Rotation: rotation,
		Format:   format,
		Seq:      seq,
		release:  release,
	}
}

// Release hands the buffer back to the source. Calls after the first are no-ops.
func (f *Frame) Release() {
	f.releaseOnce.Do(func() {
		f.released.Store(true)
		if f.release != nil {
			f.release()
		}
	})
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// A Consumer analyzes frames delivered by a Source. Analyze must release the frame before
// returning and must not block for longer than one analysis.
type Consumer interface {
	Analyze(ctx context.Context, frame *Frame)
}

// ConsumerFunc adapts a function to a Consumer.
type ConsumerFunc func(ctx context.Context, frame *Frame)

// Analyze calls f.
func (f ConsumerFunc) Analyze(ctx context.Context, frame *Frame) {
	f(ctx, frame)
}

// A Source delivers frames to at most one attached consumer. Sources keep only the latest frame:
// frames captured while no consumer is attached are released immediately.
type Source interface {
	Attach(consumer Consumer)
	Detach()
	Close(ctx context.Context) error
}

// Facing selects which camera of a device a source captures from.
type Facing int

const (
	// FacingBack is the rear camera, preferred when present.
	FacingBack Facing = iota
	// FacingFront is the user-facing camera. Its frames are mirrored.
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

// FacingFromString parses "back" or "front"; the empty string selects the back camera.
func FacingFromString(s string) (Facing, error) {
	switch strings.ToLower(s) {
	case "", "back", "rear":
		return FacingBack, nil
	case "front", "user":
		return FacingFront, nil
	}
	return FacingBack, errors.Errorf("unknown camera facing %q", s)
}
