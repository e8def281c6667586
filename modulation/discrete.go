package modulation

import (
	"fmt"
	"math"
)

// Discrete mode-like targets bypass the curve table; each formula is
// spelled out at its single use site below.

// GeometryIndex maps a normalized value onto one of count discrete
// geometries by clamped rounding.
func GeometryIndex(x float64, count int) int {
	if count < 1 {
		return 0
	}
	idx := int(math.Round(x * float64(count-1)))
	if idx < 0 {
		idx = 0
	}
	if idx >= count {
		idx = count - 1
	}
	return idx
}

// DetuneFromVertexCount derives a detune in semitones from a projected
// vertex count, log-scaled so dense geometries push the pitch up gently.
// A 16-vertex tesseract is the neutral point.
func DetuneFromVertexCount(n int) float64 {
	if n < 1 {
		n = 1
	}
	d := math.Log2(float64(n)) - 4
	if d < -12 {
		d = -12
	}
	if d > 12 {
		d = 12
	}
	return d
}

func validateMapping(m Mapping) error {
	if !KnownKey(m.Source) {
		return fmt.Errorf("unknown source key %q", m.Source)
	}
	if !KnownKey(m.Target) {
		return fmt.Errorf("unknown target key %q", m.Target)
	}
	if math.IsNaN(m.Min) || math.IsInf(m.Min, 0) || math.IsNaN(m.Max) || math.IsInf(m.Max, 0) {
		return fmt.Errorf("mapping %s→%s has non-finite range", m.Source, m.Target)
	}
	if m.Curve < CurveLinear || m.Curve > CurveSinusoidal {
		return fmt.Errorf("mapping %s→%s has unknown curve", m.Source, m.Target)
	}
	return nil
}
