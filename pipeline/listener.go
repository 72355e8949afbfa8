package pipeline

import (
	"go.viam.com/livevision/vision/classification"
)

// Result is delivered to the listener once per analyzed frame or still.
type Result struct {
	// Seq is the frame sequence number; zero for stills.
	Seq  uint64
	Mode State
	// Recognitions are ranked by descending score. They are nil when Err is set.
	Recognitions classification.Classifications
	Err          error
}

// Failed reports whether the engine failed, as opposed to finding nothing.
func (r Result) Failed() bool {
	return r.Err != nil
}

// A Listener receives results. The pipeline does not own it and makes no promise about which
// goroutine OnResult runs on. OnResult runs on the analysis lane and should return quickly.
type Listener interface {
	OnResult(Result)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(Result)

// OnResult calls f.
func (f ListenerFunc) OnResult(r Result) {
	f(r)
}

// ChanListener delivers results to a buffered channel without blocking the lane. When the
// channel is full the oldest undelivered result is discarded.
type ChanListener struct {
	ch chan Result
}

// NewChanListener returns a listener buffering up to size results.
func NewChanListener(size int) *ChanListener {
	if size < 1 {
		size = 1
	}
	return &ChanListener{ch: make(chan Result, size)}
}

// OnResult enqueues r, evicting the oldest result if needed.
func (l *ChanListener) OnResult(r Result) {
	for {
		select {
		case l.ch <- r:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}

// Results returns the channel results are delivered on.
func (l *ChanListener) Results() <-chan Result {
	return l.ch
}
