package synth

// EnvelopeState identifies the ADSR stage a voice is currently in.
type EnvelopeState int

const (
	StateIdle EnvelopeState = iota
	StateAttack
	StateDecay
	StateSustain
	StateRelease
)

func (s EnvelopeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttack:
		return "attack"
	case StateDecay:
		return "decay"
	case StateSustain:
		return "sustain"
	case StateRelease:
		return "release"
	}
	return "unknown"
}

// Voice represents one polyphonic note generator with its own envelope and
// oscillator phase. Voices are created once by the pool and reset on reuse.
type Voice struct {
	sampleRate int
	slot       int
	params     *Params

	note         int
	freq         float32
	state        EnvelopeState
	value        float32 // envelope value 0..1
	stateTime    float32 // seconds in current state
	age          float32 // seconds since last trigger
	releaseLevel float32 // envelope level held at release time
	phase        float64
	active       bool
}

func newVoice(sampleRate, slot int, params *Params) *Voice {
	return &Voice{
		sampleRate: sampleRate,
		slot:       slot,
		params:     params,
		note:       -1,
		state:      StateIdle,
	}
}

// Slot returns the fixed pool index of this voice.
func (v *Voice) Slot() int { return v.slot }

// Note returns the MIDI note the voice is assigned to, -1 if never triggered.
func (v *Voice) Note() int { return v.note }

// Active reports whether the voice currently contributes to the output.
func (v *Voice) Active() bool { return v.active }

// State returns the current envelope stage.
func (v *Voice) State() EnvelopeState { return v.state }

// EnvelopeValue returns the current envelope level in 0..1.
func (v *Voice) EnvelopeValue() float32 { return v.value }

// Age returns the seconds elapsed since the last trigger.
func (v *Voice) Age() float32 { return v.age }

// Frequency returns the equal-tempered frequency of the assigned note.
func (v *Voice) Frequency() float32 { return v.freq }

// NoteOn (re)triggers the voice with a new note. The envelope restarts in
// attack from zero and age resets so retriggered notes look freshest to the
// stealing policy.
func (v *Voice) NoteOn(note int) {
	v.note = note
	v.freq = midiNoteToFreq(note)
	v.state = StateAttack
	v.value = 0
	v.stateTime = 0
	v.age = 0
	v.active = true
}

// NoteOff moves the voice into release from any sounding stage. Idle voices
// ignore it.
func (v *Voice) NoteOff() {
	if v.state == StateIdle {
		return
	}
	v.releaseLevel = v.value
	v.transition(StateRelease)
}

func (v *Voice) transition(s EnvelopeState) {
	v.state = s
	v.stateTime = 0
}

func (v *Voice) reset() {
	v.note = -1
	v.freq = 0
	v.state = StateIdle
	v.value = 0
	v.stateTime = 0
	v.age = 0
	v.releaseLevel = 0
	v.active = false
}

// Generate advances the voice by one sample period and returns the mono
// output sample. Zero-length envelope stages transition instantly.
func (v *Voice) Generate(deltaTime float32, detuneSemitones float32) float32 {
	if !v.active {
		return 0
	}

	v.stateTime += deltaTime
	v.age += deltaTime

	switch v.state {
	case StateAttack:
		if v.params.AttackTime <= 0 {
			v.value = 1
			v.transition(StateDecay)
		} else {
			v.value = v.stateTime / v.params.AttackTime
			if v.value >= 1 {
				v.value = 1
				v.transition(StateDecay)
			}
		}
	case StateDecay:
		sustain := clampf(v.params.SustainLevel, 0, 1)
		if v.params.DecayTime <= 0 {
			v.value = sustain
			v.transition(StateSustain)
		} else {
			t := v.stateTime / v.params.DecayTime
			if t >= 1 {
				v.value = sustain
				v.transition(StateSustain)
			} else {
				v.value = 1 - (1-sustain)*t
			}
		}
	case StateSustain:
		v.value = clampf(v.params.SustainLevel, 0, 1)
	case StateRelease:
		if v.params.ReleaseTime <= 0 {
			v.value = 0
		} else {
			t := v.stateTime / v.params.ReleaseTime
			v.value = v.releaseLevel * (1 - t)
		}
		if v.value <= 0 {
			v.value = 0
			v.active = false
			v.transition(StateIdle)
			return 0
		}
	case StateIdle:
		return 0
	}

	ratio := semitonesToRatio(detuneSemitones)
	v.phase += twoPi * float64(v.freq*ratio) / float64(v.sampleRate)
	for v.phase >= twoPi {
		v.phase -= twoPi
	}

	return waveformSample(v.params.Waveform, v.phase) * v.value
}
