// Package features derives per-buffer audio descriptors used to drive the
// visual coupling: band energies, spectral centroid, RMS level and stereo
// width.
package features

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-dsp/stats/frequency"
	algofft "github.com/cwbudde/algo-fft"
)

// DefaultWindowSize is the analysis window length in frames.
const DefaultWindowSize = 2048

// Band edges in Hz.
const (
	bassLow  = 20.0
	bassHigh = 250.0
	midLow   = 250.0
	midHigh  = 4000.0
	highLow  = 4000.0
	highHigh = 16000.0
)

// UnmeasuredWidth is reported when no genuine stereo frame is available.
// Callers must check WidthMeasured before trusting the value.
const UnmeasuredWidth = 0.5

// Features is an immutable per-buffer snapshot. A new snapshot supersedes
// the previous one; snapshots are never mutated.
type Features struct {
	Bass     float64 // mean magnitude 20-250 Hz
	Mid      float64 // mean magnitude 250-4000 Hz
	High     float64 // mean magnitude 4-16 kHz
	Centroid float64 // magnitude-weighted mean frequency, Hz
	RMS      float64 // over the raw unwindowed frame

	StereoWidth   float64 // side/mid mean-abs ratio, 0..1
	WidthMeasured bool    // false when only mono was available
}

// Extractor runs the windowed-FFT feature pipeline. Scratch buffers are
// reused across calls so Analyze does not allocate on the hot path.
type Extractor struct {
	sampleRate int
	size       int

	win     []float64
	winGain float64 // coherent gain, normalizes magnitudes to signal scale
	plan    *algofft.Plan[complex128]
	in      []complex128
	out     []complex128
	mono    []float64
	mag     []float64
}

// NewExtractor creates an extractor with a Hann window of the given size.
// A size below 2 falls back to DefaultWindowSize.
func NewExtractor(sampleRate, size int) (*Extractor, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if size < 2 {
		size = DefaultWindowSize
	}

	win := window.Generate(window.TypeHann, size)
	if len(win) != size {
		return nil, fmt.Errorf("invalid analysis window size %d", size)
	}
	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("feature fft plan: %w", err)
	}
	winSum := 0.0
	for _, w := range win {
		winSum += w
	}

	return &Extractor{
		sampleRate: sampleRate,
		size:       size,
		win:        win,
		winGain:    winSum / 2,
		plan:       plan,
		in:         make([]complex128, size),
		out:        make([]complex128, size),
		mono:       make([]float64, size),
		mag:        make([]float64, size/2+1),
	}, nil
}

// WindowSize returns the analysis window length in frames.
func (e *Extractor) WindowSize() int { return e.size }

// Analyze computes features from an interleaved buffer with the given
// channel count (1 or 2). Buffers longer than the window are analyzed over
// their most recent frames; shorter buffers are zero padded.
func (e *Extractor) Analyze(interleaved []float32, channels int) (Features, error) {
	if channels != 1 && channels != 2 {
		return Features{}, fmt.Errorf("unsupported channel count %d", channels)
	}
	if len(interleaved)%channels != 0 {
		return Features{}, fmt.Errorf("buffer length %d not divisible by %d channels", len(interleaved), channels)
	}
	frames := len(interleaved) / channels
	if frames == 0 {
		return Features{}, fmt.Errorf("empty buffer")
	}

	// Most recent window of mono frames (channel mean), zero padded.
	start := 0
	if frames > e.size {
		start = frames - e.size
	}
	n := frames - start
	for i := 0; i < n; i++ {
		f := start + i
		if channels == 2 {
			e.mono[i] = 0.5 * float64(interleaved[f*2]+interleaved[f*2+1])
		} else {
			e.mono[i] = float64(interleaved[f])
		}
	}
	for i := n; i < e.size; i++ {
		e.mono[i] = 0
	}

	for i := 0; i < e.size; i++ {
		e.in[i] = complex(e.mono[i]*e.win[i], 0)
	}
	if err := e.plan.Forward(e.out, e.in); err != nil {
		return Features{}, fmt.Errorf("feature fft: %w", err)
	}
	// Normalize by coherent window gain so a full-scale sine peaks near 1
	// and band energies are directly usable as modulation sources.
	for i := range e.mag {
		e.mag[i] = cmplx.Abs(e.out[i]) / e.winGain
	}

	var ft Features
	ft.Bass = e.bandEnergy(bassLow, bassHigh)
	ft.Mid = e.bandEnergy(midLow, midHigh)
	ft.High = e.bandEnergy(highLow, highHigh)
	ft.Centroid = frequency.Centroid(e.mag, float64(e.sampleRate))
	ft.RMS = rms(e.mono[:n])

	if channels == 2 {
		ft.StereoWidth = stereoWidth(interleaved)
		ft.WidthMeasured = true
	} else {
		ft.StereoWidth = UnmeasuredWidth
		ft.WidthMeasured = false
	}

	return ft, nil
}

// bandEnergy returns the mean magnitude over bins whose center frequency
// falls inside [minFreq,maxFreq].
func (e *Extractor) bandEnergy(minFreq, maxFreq float64) float64 {
	minBin := e.freqToBin(minFreq)
	maxBin := e.freqToBin(maxFreq)
	if maxBin < minBin {
		return 0
	}
	sum := 0.0
	for i := minBin; i <= maxBin; i++ {
		sum += e.mag[i]
	}
	return sum / float64(maxBin-minBin+1)
}

func (e *Extractor) freqToBin(freq float64) int {
	bin := int(math.Round(freq * float64(e.size) / float64(e.sampleRate)))
	if bin < 0 {
		bin = 0
	}
	if bin > e.size/2 {
		bin = e.size / 2
	}
	return bin
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// stereoWidth is the mid/side ratio of an interleaved stereo buffer,
// clamped to 0..1. A silent buffer has no measurable width and reports 0.
func stereoWidth(interleaved []float32) float64 {
	frames := len(interleaved) / 2
	if frames == 0 {
		return 0
	}
	var midSum, sideSum float64
	for i := 0; i < frames; i++ {
		l := float64(interleaved[i*2])
		r := float64(interleaved[i*2+1])
		midSum += math.Abs(0.5 * (l + r))
		sideSum += math.Abs(0.5 * (l - r))
	}
	if midSum == 0 {
		return 0
	}
	w := sideSum / midSum
	if w > 1 {
		w = 1
	}
	return w
}
