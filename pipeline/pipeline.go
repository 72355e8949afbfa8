// Package pipeline turns camera frames into ranked classifications. A pipeline runs one analysis
// at a time on its analysis lane and drops frames that arrive while the lane is busy.
package pipeline

import (
	"context"
	"image"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"golang.org/x/sync/semaphore"

	"go.viam.com/livevision/camera"
	"go.viam.com/livevision/logging"
	"go.viam.com/livevision/mlmodel"
	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/vision/classification"
	"go.viam.com/livevision/vision/engine"
)

// DefaultTopN is the number of recognitions reported when Config.TopN is unset.
const DefaultTopN = 3

// Config parameterizes a pipeline.
type Config struct {
	Model mlmodel.Config
	// TopN bounds the length of every result list.
	TopN int
	// MinScore is the exclusive lower bound on scores reported for stills.
	MinScore float64
	// LabelConfidences optionally sets per-label exclusive minimum scores; labels missing from
	// the map are never reported.
	LabelConfidences map[string]float64
}

// Pipeline sequences frames through conversion, orientation, inference and ranking.
type Pipeline struct {
	logger   logging.Logger
	session  string
	source   camera.Source
	listener Listener
	clock    clock.Clock

	topN     int
	minScore float64
	filter   classification.Postprocessor

	// lane is held while an analysis runs.
	lane       *semaphore.Weighted
	engine     *engine.Engine
	normalizer *rimage.Normalizer

	stateMu sync.Mutex
	state   State

	stats counters
}

// New loads the configured model and returns an idle pipeline. source may be nil when frames
// are delivered by calling Analyze directly. A nil clk uses the wall clock.
func New(
	ctx context.Context,
	conf Config,
	source camera.Source,
	listener Listener,
	clk clock.Clock,
	logger logging.Logger,
) (*Pipeline, error) {
	ctx, span := trace.StartSpan(ctx, "pipeline::New")
	defer span.End()

	eng, err := engine.Load(ctx, conf.Model, logger.Sublogger("engine"))
	if err != nil {
		return nil, err
	}
	return NewFromEngine(eng, conf, source, listener, clk, logger)
}

// NewFromEngine returns an idle pipeline that takes ownership of eng.
func NewFromEngine(
	eng *engine.Engine,
	conf Config,
	source camera.Source,
	listener Listener,
	clk clock.Clock,
	logger logging.Logger,
) (*Pipeline, error) {
	if listener == nil {
		return nil, errors.New("pipeline needs a listener")
	}
	if clk == nil {
		clk = clock.New()
	}
	topN := conf.TopN
	if topN == 0 {
		topN = DefaultTopN
	}
	if topN < 0 {
		return nil, errors.Errorf("top_n must not be negative, got %d", topN)
	}
	var filter classification.Postprocessor
	if len(conf.LabelConfidences) > 0 {
		filter = classification.NewLabelConfidenceFilter(conf.LabelConfidences)
	}
	session := uuid.NewString()
	return &Pipeline{
		logger:     logger,
		session:    session,
		source:     source,
		listener:   listener,
		clock:      clk,
		topN:       topN,
		minScore:   conf.MinScore,
		filter:     filter,
		lane:       semaphore.NewWeighted(1),
		engine:     eng,
		normalizer: rimage.NewNormalizer(logger.Sublogger("normalizer")),
		state:      StateIdle,
	}, nil
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() Stats {
	return p.stats.snapshot()
}

// Device returns the device the model runs on.
func (p *Pipeline) Device() mlmodel.Device {
	return p.engine.Device()
}

// StartStreaming moves an idle pipeline to streaming and attaches it to its source.
func (p *Pipeline) StartStreaming(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state != StateIdle {
		return newInvalidTransitionError("start streaming", p.state)
	}
	p.normalizer.Reset()
	p.state = StateStreaming
	p.attach()
	p.logger.Infow("streaming started", "session", p.session, "device", p.engine.Device())
	return nil
}

// ResumeStreaming returns from single shot to streaming.
func (p *Pipeline) ResumeStreaming(ctx context.Context) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.state != StateSingleShot {
		return newInvalidTransitionError("resume streaming", p.state)
	}
	p.state = StateStreaming
	p.attach()
	p.logger.Debugw("streaming resumed", "session", p.session)
	return nil
}

func (p *Pipeline) attach() {
	if p.source != nil {
		p.source.Attach(p)
	}
}

func (p *Pipeline) detach() {
	if p.source != nil {
		p.source.Detach()
	}
}

func (p *Pipeline) tryAcquireLane() bool {
	return p.lane.TryAcquire(1)
}

func (p *Pipeline) acquireLane(ctx context.Context) error {
	return p.lane.Acquire(ctx, 1)
}

func (p *Pipeline) releaseLane() {
	p.lane.Release(1)
}

// Analyze classifies one frame and reports the result to the listener. Frames that arrive
// outside of streaming or while another analysis runs are dropped. The frame is always released
// before Analyze returns.
func (p *Pipeline) Analyze(ctx context.Context, frame *camera.Frame) {
	if frame == nil {
		p.stats.malformed.Inc()
		return
	}
	defer frame.Release()

	if p.State() != StateStreaming {
		p.stats.rejected.Inc()
		return
	}
	if !p.tryAcquireLane() {
		p.stats.dropped.Inc()
		p.logger.Debugw("analysis lane busy, dropping frame", "seq", frame.Seq)
		return
	}
	defer p.releaseLane()
	// the state may have changed while the lane was taken.
	if p.State() != StateStreaming {
		p.stats.rejected.Inc()
		return
	}

	ctx, span := trace.StartSpan(ctx, "pipeline::Analyze")
	defer span.End()

	rotated, err := p.prepare(frame)
	if err != nil {
		p.stats.malformed.Inc()
		p.logger.Debugw("dropping malformed frame", "seq", frame.Seq, "error", err)
		return
	}

	raw, err := p.infer(ctx, rotated)
	result := Result{Seq: frame.Seq, Mode: StateStreaming}
	if err != nil {
		result.Err = err
	} else {
		result.Recognitions = p.postprocess(raw).TopN(p.topN)
	}
	p.stats.processed.Inc()
	p.listener.OnResult(result)
}

// prepare converts the frame into the working buffer, releases it and returns the upright image.
// Malformed frames are rejected before the working buffer is touched.
func (p *Pipeline) prepare(frame *camera.Frame) (image.Image, error) {
	if err := rimage.ValidateFrame(frame.Data, frame.Width, frame.Height, frame.Format); err != nil {
		return nil, err
	}
	buf, err := p.normalizer.Buffer(frame.Width, frame.Height, frame.Rotation)
	if err != nil {
		return nil, err
	}
	if err := rimage.ConvertYUV420(frame.Data, frame.Width, frame.Height, frame.Format, buf); err != nil {
		return nil, err
	}
	frame.Release()
	return p.normalizer.Normalize(buf, frame.Rotation)
}

func (p *Pipeline) infer(ctx context.Context, img image.Image) (classification.Classifications, error) {
	start := p.clock.Now()
	raw, err := p.engine.Infer(ctx, img)
	p.stats.lastInference.Store(p.clock.Since(start))
	if err != nil {
		p.stats.failed.Inc()
		p.logger.Warnw("inference failed", "session", p.session, "error", err)
		return nil, err
	}
	return raw, nil
}

func (p *Pipeline) postprocess(raw classification.Classifications) classification.Classifications {
	if p.filter == nil {
		return raw
	}
	return p.filter(raw)
}

// CaptureStill classifies an already upright image. Called while streaming it detaches the
// source and moves the pipeline to single shot. Only scores above the configured minimum are
// reported. CaptureStill waits for an in-flight analysis to finish.
func (p *Pipeline) CaptureStill(ctx context.Context, img image.Image) error {
	if img == nil {
		return errors.New("no image to capture")
	}
	p.stateMu.Lock()
	switch p.state {
	case StateStreaming:
		p.state = StateSingleShot
		p.detach()
		p.logger.Debugw("entering single shot", "session", p.session)
	case StateSingleShot:
	default:
		defer p.stateMu.Unlock()
		return newInvalidTransitionError("capture a still", p.state)
	}
	p.stateMu.Unlock()

	if err := p.acquireLane(ctx); err != nil {
		return errors.Wrap(err, "waiting for the analysis lane")
	}
	defer p.releaseLane()
	if state := p.State(); state != StateSingleShot {
		return newInvalidTransitionError("capture a still", state)
	}

	ctx, span := trace.StartSpan(ctx, "pipeline::CaptureStill")
	defer span.End()

	raw, err := p.infer(ctx, img)
	result := Result{Mode: StateSingleShot}
	if err != nil {
		result.Err = err
	} else {
		result.Recognitions = classification.Select(p.postprocess(raw), p.topN, p.minScore)
	}
	p.stats.stills.Inc()
	p.listener.OnResult(result)
	return nil
}

// Shutdown stops the pipeline: it detaches the source, waits for an in-flight analysis to return
// and releases the model. Calls after the first return nil.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.stateMu.Lock()
	if p.state == StateStopped {
		p.stateMu.Unlock()
		return nil
	}
	prev := p.state
	p.state = StateStopped
	if prev == StateStreaming {
		p.detach()
	}
	p.stateMu.Unlock()

	if err := p.acquireLane(context.Background()); err != nil {
		return err
	}
	defer p.releaseLane()
	p.normalizer.Reset()
	err := p.engine.Release(ctx)

	stats := p.stats.snapshot()
	p.logger.Infow("pipeline stopped", "session", p.session, "from", prev,
		"processed", stats.Processed, "dropped", stats.Dropped, "malformed", stats.Malformed, "failed", stats.Failed)
	if err != nil {
		return errors.Wrap(err, "cannot release model")
	}
	return nil
}
