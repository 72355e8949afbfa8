package pipeline

import (
	"time"

	"go.uber.org/atomic"
)

// Stats counts what happened to the frames delivered to a pipeline.
type Stats struct {
	// Processed frames reached the listener, including inference failures.
	Processed uint64
	// Dropped frames arrived while the lane was busy.
	Dropped uint64
	// Rejected frames arrived outside of streaming.
	Rejected uint64
	// Malformed frames failed conversion or normalization.
	Malformed uint64
	// Failed counts inference failures, for frames and stills.
	Failed uint64
	// Stills counts completed single-shot captures.
	Stills uint64
	// LastInference is the duration of the latest inference call.
	LastInference time.Duration
}

type counters struct {
	processed     atomic.Uint64
	dropped       atomic.Uint64
	rejected      atomic.Uint64
	malformed     atomic.Uint64
	failed        atomic.Uint64
	stills        atomic.Uint64
	lastInference atomic.Duration
}

func (c *counters) snapshot() Stats {
	return Stats{
		Processed:     c.processed.Load(),
		Dropped:       c.dropped.Load(),
		Rejected:      c.rejected.Load(),
		Malformed:     c.malformed.Load(),
		Failed:        c.failed.Load(),
		Stills:        c.stills.Load(),
		LastInference: c.lastInference.Load(),
	}
}
