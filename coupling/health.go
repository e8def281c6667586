package coupling

import "sync/atomic"

// HealthReport is the aggregated engine status, recomputed on demand and
// never persisted.
type HealthReport struct {
	Healthy bool

	Running     bool
	Degraded    bool // coupling FPS below the warning threshold
	AckTimedOut bool // a geometry switch went unacknowledged

	FPS                 float64
	ConsecutiveFailures int
	LastError           string

	AudioErrors    uint64
	RendererErrors uint64
	DroppedUpdates uint64
}

// healthCounters are the subsystem-owned error counters the report rolls
// up. They are written from the audio writer, the outbox and the loop.
type healthCounters struct {
	audioErrors    atomic.Uint64
	rendererErrors atomic.Uint64
	droppedUpdates atomic.Uint64
}
