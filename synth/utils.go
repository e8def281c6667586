package synth

import (
	"math"

	"github.com/cwbudde/algo-approx"
)

// midiNoteToFreq converts MIDI note number to frequency in Hz.
func midiNoteToFreq(note int) float32 {
	const a4Freq = 440.0
	const a4Note = 69
	exponent := float32(note-a4Note) / 12.0
	return a4Freq * pow2Approx(exponent)
}

func pow2Approx(x float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}

func semitonesToRatio(semitones float32) float32 {
	if semitones == 0 {
		return 1.0
	}
	return pow2Approx(semitones / 12.0)
}

const twoPi = 2.0 * math.Pi

// waveformSample evaluates the oscillator shape at a phase in [0,2π).
func waveformSample(w Waveform, phase float64) float32 {
	switch w {
	case WaveSquare:
		if phase < math.Pi {
			return 1.0
		}
		return -1.0
	case WaveSaw:
		return float32(phase/math.Pi - 1.0)
	case WaveTriangle:
		x := phase / twoPi
		return float32(4.0*math.Abs(x-0.5) - 1.0)
	default:
		return float32(math.Sin(phase))
	}
}

func clampf(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
