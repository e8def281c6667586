// Package modulation defines the named source→target mappings used by both
// coupling directions: curve-shaped continuous mappings, discrete formulas
// for mode-like targets, and the preset objects that bundle them.
package modulation

import (
	"fmt"
	"math"
)

// CurveKind selects the shaping function applied to a normalized source
// value before it is scaled into the target range.
type CurveKind int

const (
	CurveLinear CurveKind = iota
	CurveExponential
	CurveLogarithmic
	CurveSinusoidal
)

func (c CurveKind) String() string {
	switch c {
	case CurveLinear:
		return "linear"
	case CurveExponential:
		return "exponential"
	case CurveLogarithmic:
		return "logarithmic"
	case CurveSinusoidal:
		return "sinusoidal"
	}
	return "unknown"
}

// ParseCurveKind converts a curve name to its kind.
func ParseCurveKind(s string) (CurveKind, error) {
	switch s {
	case "linear":
		return CurveLinear, nil
	case "exponential":
		return CurveExponential, nil
	case "logarithmic":
		return CurveLogarithmic, nil
	case "sinusoidal":
		return CurveSinusoidal, nil
	}
	return CurveLinear, fmt.Errorf("unknown curve kind %q", s)
}

// Mapping is an immutable source→target parameter mapping.
type Mapping struct {
	Source ParamKey
	Target ParamKey
	Min    float64
	Max    float64
	Curve  CurveKind
}

// Apply clamps the source value to [0,1], shapes it by the curve kind and
// scales the result into [Min,Max].
func (m Mapping) Apply(source float64) float64 {
	x := source
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}

	var shaped float64
	switch m.Curve {
	case CurveExponential:
		shaped = x * x
	case CurveLogarithmic:
		shaped = math.Log(1+x*(math.E-1)) / math.Log(math.E)
	case CurveSinusoidal:
		shaped = (math.Sin(x*math.Pi-math.Pi/2) + 1) / 2
	default:
		shaped = x
	}

	return m.Min + shaped*(m.Max-m.Min)
}
