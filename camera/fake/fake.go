// Package fake implements a capture source that replays one synthetic or decoded image as a stream
// of 4:2:0 sensor frames.
package fake

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/livevision/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/rimage"
)

const defaultBuffers = 2

// Config describes the frames a fake Source produces.
type Config struct {
	// Width and Height are the sensor dimensions, before rotation.
	Width, Height int
	// Rotation is the clockwise rotation the consumer must apply for the frame to look upright.
	Rotation int
	Format   rimage.PixelFormat
	Facing   camera.Facing
	FPS      float64
	// MaxFrames stops the capture loop after that many frames; 0 runs until closed.
	MaxFrames int
	// Buffers is the number of sensor buffers in flight; captures are skipped while all are held.
	Buffers int
	// Image is the upright scene. When nil the scene is a solid Color.
	Image image.Image
	Color color.NRGBA
}

// Source is a camera.Source backed by a pool of pre-encoded buffers.
type Source struct {
	cfg    Config
	clock  clock.Clock
	logger logging.Logger

	template []byte
	pool     chan []byte

	mu       sync.Mutex
	consumer camera.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool

	seq       atomic.Uint64
	delivered atomic.Uint64
	skipped   atomic.Uint64
	workers   sync.WaitGroup
}

// NewSource encodes the configured scene once and returns an idle source.
func NewSource(cfg Config, clk clock.Clock, logger logging.Logger) (*Source, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Errorf("invalid fake camera dimensions %dx%d", cfg.Width, cfg.Height)
	}
	rotation, err := rimage.NormalizeRotation(cfg.Rotation)
	if err != nil {
		return nil, err
	}
	cfg.Rotation = rotation
	if cfg.Format == rimage.PixelFormatUnknown {
		cfg.Format = rimage.PixelFormatNV21
	}
	if cfg.Buffers <= 0 {
		cfg.Buffers = defaultBuffers
	}
	if clk == nil {
		clk = clock.New()
	}

	template, err := rimage.EncodeYUV420(sensorImage(cfg), cfg.Format)
	if err != nil {
		return nil, errors.Wrap(err, "cannot encode fake camera scene")
	}
	pool := make(chan []byte, cfg.Buffers)
	for i := 0; i < cfg.Buffers; i++ {
		pool <- make([]byte, len(template))
	}
	return &Source{
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		template: template,
		pool:     pool,
	}, nil
}

// sensorImage turns the upright scene into what the sensor sees: scaled, mirrored for the front
// camera, then turned counter-clockwise by the configured rotation.
func sensorImage(cfg Config) image.Image {
	uprightW, uprightH := cfg.Width, cfg.Height
	if cfg.Rotation == 90 || cfg.Rotation == 270 {
		uprightW, uprightH = uprightH, uprightW
	}
	var scene *image.NRGBA
	switch {
	case cfg.Image != nil && cfg.Image.Bounds().Dx() == uprightW && cfg.Image.Bounds().Dy() == uprightH:
		scene = imaging.Clone(cfg.Image)
	case cfg.Image != nil:
		scene = imaging.Resize(cfg.Image, uprightW, uprightH, imaging.Linear)
	default:
		scene = imaging.New(uprightW, uprightH, cfg.Color)
	}
	if cfg.Facing == camera.FacingFront {
		scene = imaging.FlipH(scene)
	}
	switch cfg.Rotation {
	case 90:
		return imaging.Rotate90(scene)
	case 180:
		return imaging.Rotate180(scene)
	case 270:
		return imaging.Rotate270(scene)
	}
	return scene
}

// Attach registers the consumer that receives subsequent frames, replacing any previous one.
func (s *Source) Attach(consumer camera.Consumer) {
	s.mu.Lock()
	s.consumer = consumer
	s.mu.Unlock()
}

// Detach stops delivery. Frames already handed out keep running to completion.
func (s *Source) Detach() {
	s.mu.Lock()
	s.consumer = nil
	s.mu.Unlock()
}

// Emit captures one frame and delivers it on its own goroutine. It returns false when no buffer
// is free or no consumer is attached, in which case nothing is delivered.
func (s *Source) Emit(ctx context.Context) bool {
	var buf []byte
	select {
	case buf = <-s.pool:
	default:
		s.skipped.Inc()
		return false
	}
	copy(buf, s.template)
	seq := s.seq.Inc()
	frame := camera.NewFrame(buf, s.cfg.Width, s.cfg.Height, s.cfg.Rotation, s.cfg.Format, seq, func() {
		s.pool <- buf
	})

	s.mu.Lock()
	consumer := s.consumer
	if consumer == nil || s.closed {
		s.mu.Unlock()
		frame.Release()
		s.skipped.Inc()
		return false
	}
	s.workers.Add(1)
	s.mu.Unlock()

	s.delivered.Inc()
	goutils.PanicCapturingGo(func() {
		defer s.workers.Done()
		consumer.Analyze(ctx, frame)
	})
	return true
}

// Start runs the capture loop at the configured rate until ctx is done, MaxFrames frames were
// captured, or the source is closed.
func (s *Source) Start(ctx context.Context) error {
	if s.cfg.FPS <= 0 {
		return errors.New("fake camera needs a positive fps to stream")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("fake camera is closed")
	}
	if s.cancel != nil {
		return errors.New("fake camera already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	ticker := s.clock.Ticker(time.Duration(float64(time.Second) / s.cfg.FPS))
	done := s.done

	goutils.PanicCapturingGo(func() {
		defer close(done)
		defer ticker.Stop()
		captured := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			captured++
			s.Emit(ctx)
			if s.cfg.MaxFrames > 0 && captured >= s.cfg.MaxFrames {
				s.logger.Debugw("fake camera reached frame limit", "frames", captured)
				return
			}
		}
	})
	return nil
}

// Done is closed when the capture loop exits. It is nil before Start.
func (s *Source) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stats returns how many frames were delivered and how many captures were skipped.
func (s *Source) Stats() (delivered, skipped uint64) {
	return s.delivered.Load(), s.skipped.Load()
}

// Close stops the capture loop and waits for outstanding deliveries to return.
func (s *Source) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.consumer = nil
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	waited := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		s.workers.Wait()
		close(waited)
	})
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
