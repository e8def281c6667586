package synth

import (
	"math"
	"testing"
)

func stereoSine(freq float64, sampleRate, frames int) []float32 {
	buf := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		s := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		buf[i*2] = s
		buf[i*2+1] = s
	}
	return buf
}

func bufferRMS(buf []float32) float64 {
	sum := 0.0
	for _, s := range buf {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

func TestLowpassAttenuatesAboveCutoff(t *testing.T) {
	chain := NewEffectsChain(48000)
	chain.SetCutoff(500)

	buf := stereoSine(8000, 48000, 4096)
	in := bufferRMS(buf)
	chain.Process(buf)
	out := bufferRMS(buf[2048:]) // skip the filter settling transient

	if out > 0.1*in {
		t.Fatalf("expected 8 kHz content well below cutoff output, rms %f -> %f", in, out)
	}
}

func TestOpenFilterPassesLowFrequencies(t *testing.T) {
	chain := NewEffectsChain(48000)

	buf := stereoSine(100, 48000, 4096)
	in := bufferRMS(buf)
	chain.Process(buf)
	out := bufferRMS(buf[2048:])

	if math.Abs(out-in)/in > 0.1 {
		t.Fatalf("expected near-unity passband gain, rms %f -> %f", in, out)
	}
}

func TestReverbMixProducesTail(t *testing.T) {
	chain := NewEffectsChain(48000)
	chain.SetReverbMix(1.0)

	frames := 8192
	buf := make([]float32, frames*2)
	buf[0], buf[1] = 1, 1 // stereo impulse
	chain.Process(buf)

	tail := bufferRMS(buf[4096*2:])
	if tail == 0 {
		t.Fatalf("expected reverb tail after the impulse, got silence")
	}
}

func TestReverbMixZeroKeepsSignalDry(t *testing.T) {
	chain := NewEffectsChain(48000)

	frames := 8192
	buf := make([]float32, frames*2)
	buf[0], buf[1] = 1, 1
	chain.Process(buf)

	// Beyond the comb delays only the wet path carries energy; at mix
	// zero it must stay out of the output.
	for i := 4096 * 2; i < len(buf); i++ {
		if math.Abs(float64(buf[i])) > 1e-3 {
			t.Fatalf("unexpected wet energy at sample %d: %f", i, buf[i])
		}
	}
}

func TestResetClearsEffectState(t *testing.T) {
	chain := NewEffectsChain(48000)
	chain.SetReverbMix(1.0)

	buf := make([]float32, 2048*2)
	buf[0], buf[1] = 1, 1
	chain.Process(buf)

	chain.Reset()
	silent := make([]float32, 2048*2)
	chain.Process(silent)
	if rms := bufferRMS(silent); rms != 0 {
		t.Fatalf("expected silence after reset, got rms %f", rms)
	}
}
