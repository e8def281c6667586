package coupling

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Predictor defaults.
const (
	historyDepth         = 3
	DefaultMaxHorizon    = 50 * time.Millisecond
	DefaultFreshAge      = 5 * time.Millisecond
	DefaultMinConfidence = 0.1
)

type snapshot struct {
	value float64
	at    time.Time
}

// Prediction is a short-horizon extrapolated parameter value. It is
// derived on demand and never stored.
type Prediction struct {
	Value      float64
	Confidence float64 // 0.1..1, high for consistent motion
	At         time.Time
}

// Predictor retains a short ring of observations per parameter and
// extrapolates linearly to mask jitter between the coupling tick and the
// renderer frame cadence. It is a smoothing layer, never the source of
// truth: callers always fall back to the last observed value.
type Predictor struct {
	mu      sync.Mutex
	history map[string][]snapshot

	maxHorizon    time.Duration
	freshAge      time.Duration
	minConfidence float64
	now           func() time.Time
}

// NewPredictor creates a predictor with the default horizon and
// confidence bounds.
func NewPredictor() *Predictor {
	return &Predictor{
		history:       make(map[string][]snapshot),
		maxHorizon:    DefaultMaxHorizon,
		freshAge:      DefaultFreshAge,
		minConfidence: DefaultMinConfidence,
		now:           time.Now,
	}
}

// Observe appends a value observation for the key, trimming the ring to
// its fixed depth.
func (p *Predictor) Observe(key string, value float64) {
	p.ObserveAt(key, value, p.now())
}

// ObserveAt records an observation with an explicit timestamp.
func (p *Predictor) ObserveAt(key string, value float64, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h := append(p.history[key], snapshot{value: value, at: at})
	if len(h) > historyDepth {
		h = h[len(h)-historyDepth:]
	}
	p.history[key] = h
}

// Predict extrapolates the key's value ahead of now. It needs at least two
// observations and refuses horizons beyond the maximum.
func (p *Predictor) Predict(key string, ahead time.Duration) (Prediction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ahead < 0 || ahead > p.maxHorizon {
		return Prediction{}, fmt.Errorf("prediction horizon %v outside 0..%v", ahead, p.maxHorizon)
	}
	h := p.history[key]
	if len(h) < 2 {
		return Prediction{}, fmt.Errorf("parameter %q has %d observations, need 2", key, len(h))
	}

	last := h[len(h)-1]
	prev := h[len(h)-2]
	dt := last.at.Sub(prev.at).Seconds()
	if dt <= 0 {
		return Prediction{}, fmt.Errorf("parameter %q has non-increasing timestamps", key)
	}
	velocity := (last.value - prev.value) / dt

	target := p.now().Add(ahead)
	delta := target.Sub(last.at).Seconds()
	value := last.value + velocity*delta

	return Prediction{
		Value:      value,
		Confidence: p.confidence(h),
		At:         target,
	}, nil
}

// confidence is 1/(1+stddev of recent per-step velocities), floored at the
// minimum. Consistent motion scores high, erratic motion low.
func (p *Predictor) confidence(h []snapshot) float64 {
	vels := make([]float64, 0, len(h)-1)
	for i := 1; i < len(h); i++ {
		dt := h[i].at.Sub(h[i-1].at).Seconds()
		if dt <= 0 {
			continue
		}
		vels = append(vels, (h[i].value-h[i-1].value)/dt)
	}
	if len(vels) == 0 {
		return p.minConfidence
	}

	mean := 0.0
	for _, v := range vels {
		mean += v
	}
	mean /= float64(len(vels))
	variance := 0.0
	for _, v := range vels {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(vels))

	c := 1 / (1 + math.Sqrt(variance))
	if c < p.minConfidence {
		c = p.minConfidence
	}
	if c > 1 {
		c = 1
	}
	return c
}

// GetOrPredict returns a very fresh observation as-is, otherwise a
// prediction when its confidence clears the minimum, otherwise the last
// known value. The boolean reports whether any value was available.
func (p *Predictor) GetOrPredict(key string, ahead time.Duration) (float64, bool) {
	p.mu.Lock()
	h := p.history[key]
	if len(h) == 0 {
		p.mu.Unlock()
		return 0, false
	}
	last := h[len(h)-1]
	fresh := p.now().Sub(last.at) < p.freshAge
	p.mu.Unlock()

	if fresh {
		return last.value, true
	}
	pred, err := p.Predict(key, ahead)
	if err == nil && pred.Confidence > p.minConfidence {
		return pred.Value, true
	}
	return last.value, true
}
