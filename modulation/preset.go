package modulation

// Preset is a named pair of mapping tables plus per-direction enable flags.
// Presets are immutable values; the orchestrator swaps the active preset as
// a whole so no tick observes half of one.
type Preset struct {
	Name        string
	Description string

	AudioToVisual []Mapping
	VisualToAudio []Mapping

	AudioToVisualOn bool
	VisualToAudioOn bool
}

// DefaultPreset returns the stock bidirectional mapping set.
func DefaultPreset() Preset {
	return Preset{
		Name:        "default",
		Description: "Band energies drive 4D rotation, rotation feeds back into tone",
		AudioToVisual: []Mapping{
			{Source: KeyBassEnergy, Target: KeyRotationXW, Min: 0.0, Max: 2.0, Curve: CurveExponential},
			{Source: KeyMidEnergy, Target: KeyRotationYW, Min: 0.0, Max: 1.5, Curve: CurveLinear},
			{Source: KeyHighEnergy, Target: KeyRotationZW, Min: 0.0, Max: 1.0, Curve: CurveLogarithmic},
			{Source: KeyCentroid, Target: KeyColorHue, Min: 0.0, Max: 360.0, Curve: CurveLinear},
			{Source: KeyRMS, Target: KeyBrightness, Min: 0.2, Max: 1.0, Curve: CurveLogarithmic},
			{Source: KeyStereoWidth, Target: KeyDepthSpread, Min: 0.0, Max: 1.0, Curve: CurveLinear},
		},
		VisualToAudio: []Mapping{
			{Source: KeyRotationXW, Target: KeyFilterCutoff, Min: 200.0, Max: 8000.0, Curve: CurveSinusoidal},
			{Source: KeyRotationYW, Target: KeyReverbMix, Min: 0.0, Max: 0.6, Curve: CurveSinusoidal},
			{Source: KeyRotationZW, Target: KeyDetune, Min: -0.5, Max: 0.5, Curve: CurveSinusoidal},
		},
		AudioToVisualOn: true,
		VisualToAudioOn: true,
	}
}

// Validate checks that every mapping references known parameter keys and
// carries finite range bounds.
func (p Preset) Validate() error {
	for _, m := range p.AudioToVisual {
		if err := validateMapping(m); err != nil {
			return err
		}
	}
	for _, m := range p.VisualToAudio {
		if err := validateMapping(m); err != nil {
			return err
		}
	}
	return nil
}
