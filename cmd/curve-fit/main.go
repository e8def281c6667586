// curve-fit fits a modulation mapping (range and curve shape) to observed
// source/target pairs using the Mayfly optimizer, and writes the result as
// a preset file.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-synesthesia/modulation"
	"github.com/cwbudde/algo-synesthesia/preset"
	"github.com/cwbudde/mayfly"
)

func main() {
	input := flag.String("input", "", "CSV file of source,target observation pairs (required)")
	source := flag.String("source", "audio.rms", "Source parameter key")
	target := flag.String("target", "renderer.brightness", "Target parameter key")
	curveArg := flag.String("curve", "auto", "Curve to fit: auto|linear|exponential|logarithmic|sinusoidal")
	presetName := flag.String("preset-name", "fitted", "Name of the generated preset")
	output := flag.String("output", "fitted.json", "Output preset file path")
	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyIters := flag.Int("mayfly-iters", 200, "Mayfly iterations per curve candidate")
	seed := flag.Int64("seed", 1, "Random seed")
	flag.Parse()

	if *input == "" {
		die("missing -input")
	}
	if !modulation.KnownKey(modulation.ParamKey(*source)) {
		die("unknown source key %q", *source)
	}
	if !modulation.KnownKey(modulation.ParamKey(*target)) {
		die("unknown target key %q", *target)
	}
	if *mayflyPop < 2 {
		*mayflyPop = 2
	}

	sources, targets, err := loadPairs(*input)
	if err != nil {
		die("loading %s: %v", *input, err)
	}
	fmt.Printf("Loaded %d observation pairs from %s\n", len(sources), *input)

	candidates, err := curveCandidates(*curveArg)
	if err != nil {
		die("%v", err)
	}

	// The range knobs are normalized over the observed target span padded
	// by a quarter on each side, so the optimizer can overshoot the data.
	lo, hi := bounds(targets)
	span := hi - lo
	if span == 0 {
		span = 1
	}
	rangeLo := lo - 0.25*span
	rangeHi := hi + 0.25*span

	bestErr := math.Inf(1)
	var bestMapping modulation.Mapping
	for ci, curve := range candidates {
		cfg, err := newMayflyConfig(strings.ToLower(*mayflyVariant), *mayflyPop, 2, *mayflyIters)
		if err != nil {
			die("invalid mayfly variant: %v", err)
		}
		cfg.Rand = rand.New(rand.NewSource(*seed + int64(ci)*7919))

		curve := curve
		cfg.ObjectiveFunc = func(pos []float64) float64 {
			m := modulation.Mapping{
				Source: modulation.ParamKey(*source),
				Target: modulation.ParamKey(*target),
				Min:    rangeLo + pos[0]*(rangeHi-rangeLo),
				Max:    rangeLo + pos[1]*(rangeHi-rangeLo),
				Curve:  curve,
			}
			e := rmse(m, sources, targets)
			if e < bestErr {
				bestErr = e
				bestMapping = m
			}
			return e
		}

		if _, err := runMayfly(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "mayfly run for %s failed: %v\n", curve, err)
			continue
		}
		fmt.Printf("Curve %-12s best rmse so far %.6f\n", curve, bestErr)
	}
	if math.IsInf(bestErr, 1) {
		die("no successful optimizer run")
	}

	fmt.Printf("Best fit: curve=%s min=%.4f max=%.4f rmse=%.6f\n",
		bestMapping.Curve, bestMapping.Min, bestMapping.Max, bestErr)

	p := modulation.Preset{
		Name:            *presetName,
		Description:     fmt.Sprintf("fitted from %s (rmse %.6f)", *input, bestErr),
		AudioToVisualOn: true,
		VisualToAudioOn: true,
	}
	if strings.HasPrefix(*source, "audio.") {
		p.AudioToVisual = []modulation.Mapping{bestMapping}
	} else {
		p.VisualToAudio = []modulation.Mapping{bestMapping}
	}
	if err := preset.SaveJSON(*output, p); err != nil {
		die("writing %s: %v", *output, err)
	}
	fmt.Printf("Wrote %s\n", *output)
}

func loadPairs(path string) ([]float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var sources, targets []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, ",")
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("line %d: expected source,target", line)
		}
		s, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, nil, fmt.Errorf("line %d: %v", line, err)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %v", line, err)
		}
		sources = append(sources, s)
		targets = append(targets, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	if len(sources) < 3 {
		return nil, nil, fmt.Errorf("need at least 3 pairs, got %d", len(sources))
	}
	return sources, targets, nil
}

func curveCandidates(arg string) ([]modulation.CurveKind, error) {
	if arg == "auto" {
		return []modulation.CurveKind{
			modulation.CurveLinear,
			modulation.CurveExponential,
			modulation.CurveLogarithmic,
			modulation.CurveSinusoidal,
		}, nil
	}
	c, err := modulation.ParseCurveKind(arg)
	if err != nil {
		return nil, err
	}
	return []modulation.CurveKind{c}, nil
}

func bounds(vals []float64) (lo, hi float64) {
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func rmse(m modulation.Mapping, sources, targets []float64) float64 {
	sum := 0.0
	for i, s := range sources {
		d := m.Apply(s) - targets[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(sources)))
}

func newMayflyConfig(variant string, pop int, dims int, iters int) (*mayfly.Config, error) {
	var cfg *mayfly.Config
	switch variant {
	case "ma":
		cfg = mayfly.NewDefaultConfig()
	case "desma":
		cfg = mayfly.NewDESMAConfig()
	case "olce":
		cfg = mayfly.NewOLCEConfig()
	case "eobbma":
		cfg = mayfly.NewEOBBMAConfig()
	case "gsasma":
		cfg = mayfly.NewGSASMAConfig()
	case "mpma":
		cfg = mayfly.NewMPMAConfig()
	case "aoblmoa":
		cfg = mayfly.NewAOBLMOAConfig()
	default:
		return nil, fmt.Errorf("unsupported variant %q", variant)
	}
	cfg.ProblemSize = dims
	cfg.LowerBound = 0.0
	cfg.UpperBound = 1.0
	cfg.MaxIterations = iters
	cfg.NPop = pop
	cfg.NPopF = pop
	cfg.NC = 2 * pop
	cfg.NM = maxInt(1, int(math.Round(0.05*float64(pop))))
	return cfg, nil
}

func runMayfly(cfg *mayfly.Config) (_ *mayfly.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	return mayfly.Optimize(cfg)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
