package modulation

// ParamKey names a parameter known to the engine. The closed set below is
// what mapping tables are validated against; the underlying string form is
// what crosses the renderer-channel boundary.
type ParamKey string

// Audio feature sources (audio→visual direction).
const (
	KeyBassEnergy  ParamKey = "audio.bass"
	KeyMidEnergy   ParamKey = "audio.mid"
	KeyHighEnergy  ParamKey = "audio.high"
	KeyCentroid    ParamKey = "audio.centroid"
	KeyRMS         ParamKey = "audio.rms"
	KeyStereoWidth ParamKey = "audio.width"
)

// Renderer parameters: targets for audio→visual, sources for visual→audio.
const (
	KeyRotationXW  ParamKey = "renderer.rotationXW"
	KeyRotationYW  ParamKey = "renderer.rotationYW"
	KeyRotationZW  ParamKey = "renderer.rotationZW"
	KeyColorHue    ParamKey = "renderer.colorHue"
	KeyBrightness  ParamKey = "renderer.brightness"
	KeyDepthSpread ParamKey = "renderer.depthSpread"
	KeyGeometry    ParamKey = "renderer.geometry"
	KeyVertexCount ParamKey = "renderer.vertexCount"
)

// Synth targets (visual→audio direction).
const (
	KeyFilterCutoff ParamKey = "synth.filterCutoff"
	KeyDetune       ParamKey = "synth.detune"
	KeyReverbMix    ParamKey = "synth.reverbMix"
	KeyWaveform     ParamKey = "synth.waveform"
)

func (k ParamKey) String() string { return string(k) }

var knownKeys = map[ParamKey]struct{}{
	KeyBassEnergy:   {},
	KeyMidEnergy:    {},
	KeyHighEnergy:   {},
	KeyCentroid:     {},
	KeyRMS:          {},
	KeyStereoWidth:  {},
	KeyRotationXW:   {},
	KeyRotationYW:   {},
	KeyRotationZW:   {},
	KeyColorHue:     {},
	KeyBrightness:   {},
	KeyDepthSpread:  {},
	KeyGeometry:     {},
	KeyVertexCount:  {},
	KeyFilterCutoff: {},
	KeyDetune:       {},
	KeyReverbMix:    {},
	KeyWaveform:     {},
}

// KnownKey reports whether k belongs to the closed engine parameter set.
func KnownKey(k ParamKey) bool {
	_, ok := knownKeys[k]
	return ok
}
