package coupling

import (
	"math"
	"testing"
	"time"
)

func fakeClockPredictor() (*Predictor, *time.Time) {
	p := NewPredictor()
	now := time.Unix(1000, 0)
	p.now = func() time.Time { return now }
	return p, &now
}

func TestLinearMotionPredictsWithHighConfidence(t *testing.T) {
	p, now := fakeClockPredictor()
	step := 16 * time.Millisecond

	p.ObserveAt("renderer.rotationXW", 0.0, *now)
	*now = now.Add(step)
	p.ObserveAt("renderer.rotationXW", 0.1, *now)
	*now = now.Add(step)
	p.ObserveAt("renderer.rotationXW", 0.2, *now)

	pred, err := p.Predict("renderer.rotationXW", step)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.Abs(pred.Value-0.3) > 1e-9 {
		t.Fatalf("expected linear extrapolation to 0.3, got %g", pred.Value)
	}
	if pred.Confidence < 0.95 {
		t.Fatalf("expected near-certain confidence for linear motion, got %g", pred.Confidence)
	}
}

func TestErraticMotionDropsConfidenceToFloor(t *testing.T) {
	p, now := fakeClockPredictor()
	step := 16 * time.Millisecond

	p.ObserveAt("renderer.rotationYW", 0.0, *now)
	*now = now.Add(step)
	p.ObserveAt("renderer.rotationYW", 1.0, *now)
	*now = now.Add(step)
	p.ObserveAt("renderer.rotationYW", 0.0, *now)

	pred, err := p.Predict("renderer.rotationYW", step)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if pred.Confidence != DefaultMinConfidence {
		t.Fatalf("expected confidence floored at %g, got %g", DefaultMinConfidence, pred.Confidence)
	}
}

func TestPredictRequiresTwoSamples(t *testing.T) {
	p, now := fakeClockPredictor()
	p.ObserveAt("renderer.rotationZW", 0.5, *now)
	if _, err := p.Predict("renderer.rotationZW", time.Millisecond); err == nil {
		t.Fatalf("expected error with a single observation")
	}
	if _, err := p.Predict("unknown", time.Millisecond); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestPredictRefusesLongHorizons(t *testing.T) {
	p, now := fakeClockPredictor()
	p.ObserveAt("k", 0, *now)
	*now = now.Add(10 * time.Millisecond)
	p.ObserveAt("k", 1, *now)

	if _, err := p.Predict("k", 100*time.Millisecond); err == nil {
		t.Fatalf("expected refusal beyond max horizon %v", DefaultMaxHorizon)
	}
	if _, err := p.Predict("k", -time.Millisecond); err == nil {
		t.Fatalf("expected refusal of negative horizon")
	}
}

func TestHistoryRingStaysBounded(t *testing.T) {
	p, now := fakeClockPredictor()
	for i := 0; i < 10; i++ {
		p.ObserveAt("k", float64(i), *now)
		*now = now.Add(time.Millisecond)
	}
	p.mu.Lock()
	n := len(p.history["k"])
	p.mu.Unlock()
	if n != historyDepth {
		t.Fatalf("expected history trimmed to %d, got %d", historyDepth, n)
	}
}

func TestGetOrPredictReturnsFreshValueAsIs(t *testing.T) {
	p, now := fakeClockPredictor()
	step := 16 * time.Millisecond

	p.ObserveAt("k", 0.0, now.Add(-2*step))
	p.ObserveAt("k", 0.5, now.Add(-step))
	p.ObserveAt("k", 1.0, *now) // age zero, well under the fresh window

	v, ok := p.GetOrPredict("k", step)
	if !ok {
		t.Fatalf("expected value for observed key")
	}
	if v != 1.0 {
		t.Fatalf("expected fresh observation returned as-is, got %g", v)
	}
}

func TestGetOrPredictExtrapolatesStaleConsistentMotion(t *testing.T) {
	p, now := fakeClockPredictor()
	step := 16 * time.Millisecond

	p.ObserveAt("k", 0.0, now.Add(-3*step))
	p.ObserveAt("k", 0.1, now.Add(-2*step))
	p.ObserveAt("k", 0.2, now.Add(-step))

	v, ok := p.GetOrPredict("k", step)
	if !ok {
		t.Fatalf("expected value")
	}
	// Velocity 0.1 per step, last sample one step old, horizon one step:
	// two steps of travel from 0.2.
	if math.Abs(v-0.4) > 1e-9 {
		t.Fatalf("expected extrapolated 0.4, got %g", v)
	}
}

func TestGetOrPredictFallsBackOnErraticMotion(t *testing.T) {
	p, now := fakeClockPredictor()
	step := 16 * time.Millisecond

	p.ObserveAt("k", 0.0, now.Add(-3*step))
	p.ObserveAt("k", 1.0, now.Add(-2*step))
	p.ObserveAt("k", 0.0, now.Add(-step))

	v, ok := p.GetOrPredict("k", step)
	if !ok {
		t.Fatalf("expected value")
	}
	if v != 0.0 {
		t.Fatalf("expected fallback to last observed value, got %g", v)
	}
}

func TestGetOrPredictUnknownKey(t *testing.T) {
	p, _ := fakeClockPredictor()
	if _, ok := p.GetOrPredict("missing", time.Millisecond); ok {
		t.Fatalf("expected no value for unobserved key")
	}
}
