package synth

// Waveform selects the oscillator shape shared by all voices.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSaw
	WaveTriangle
)

// Params holds the envelope and oscillator parameters applied to every voice.
type Params struct {
	AttackTime   float32 // seconds, 0 = instant
	DecayTime    float32 // seconds, 0 = instant
	SustainLevel float32 // 0..1
	ReleaseTime  float32 // seconds, 0 = instant
	Waveform     Waveform
}

// NewDefaultParams creates default envelope parameters.
func NewDefaultParams() *Params {
	return &Params{
		AttackTime:   0.01,
		DecayTime:    0.1,
		SustainLevel: 0.7,
		ReleaseTime:  0.3,
		Waveform:     WaveSine,
	}
}
