package synth

import "github.com/cwbudde/algo-synesthesia/dsp"

// combTunings are the comb delay lengths in samples at 44.1 kHz, scaled to
// the actual sample rate. Classic Schroeder/freeverb lengths, mutually
// prime so the echoes do not pile up on a common period.
var combTunings = []int{1116, 1188, 1277, 1356}

// stereoSpread offsets the right channel combs so the tail decorrelates.
const stereoSpread = 23

// EffectsChain applies the modulated master effects to an interleaved
// stereo buffer: a resonant lowpass per channel followed by a comb reverb
// blended by a wet/dry mix.
type EffectsChain struct {
	sampleRate int
	cutoff     float32
	reverbMix  float32

	lowpass [2]*dsp.Biquad
	combs   [2][]*dsp.Comb
}

// NewEffectsChain builds the chain with the filter wide open and the
// reverb fully dry.
func NewEffectsChain(sampleRate int) *EffectsChain {
	c := &EffectsChain{
		sampleRate: sampleRate,
		cutoff:     float32(sampleRate) / 2,
	}
	for ch := 0; ch < 2; ch++ {
		c.lowpass[ch] = dsp.NewLowpass(c.cutoff, float32(sampleRate), 0.707)
		for _, tuning := range combTunings {
			length := tuning * sampleRate / 44100
			if ch == 1 {
				length += stereoSpread
			}
			c.combs[ch] = append(c.combs[ch], dsp.NewComb(length, 0.84, 0.2))
		}
	}
	return c
}

// SetCutoff retunes the lowpass filters. Values outside the usable band
// are clamped by the filter itself.
func (c *EffectsChain) SetCutoff(hz float64) {
	f := float32(hz)
	if f == c.cutoff {
		return
	}
	c.cutoff = f
	for ch := 0; ch < 2; ch++ {
		c.lowpass[ch].SetLowpass(f, float32(c.sampleRate), 0.707)
	}
}

// SetReverbMix sets the wet portion of the reverb, clamped to [0,1].
func (c *EffectsChain) SetReverbMix(mix float64) {
	m := float32(mix)
	if m < 0 {
		m = 0
	}
	if m > 1 {
		m = 1
	}
	c.reverbMix = m
}

// Process filters and reverberates the interleaved stereo buffer in place.
// The combs keep running even at mix zero so raising the mix fades in an
// already-populated tail instead of a cold start.
func (c *EffectsChain) Process(buf []float32) {
	wet := c.reverbMix
	dry := 1 - wet
	combGain := float32(1.0 / float64(len(combTunings)))

	for i := 0; i+1 < len(buf); i += 2 {
		for ch := 0; ch < 2; ch++ {
			s := c.lowpass[ch].Process(buf[i+ch])
			var tail float32
			for _, comb := range c.combs[ch] {
				tail += comb.Process(s)
			}
			buf[i+ch] = dsp.FlushDenormals(dry*s + wet*tail*combGain)
		}
	}
}

// Reset clears all filter and reverb state.
func (c *EffectsChain) Reset() {
	for ch := 0; ch < 2; ch++ {
		c.lowpass[ch].Reset()
		for _, comb := range c.combs[ch] {
			comb.Reset()
		}
	}
}
