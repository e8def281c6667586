package synth

import (
	"fmt"
	"sort"
)

// DefaultPolyphony is the voice count used when none is given.
const DefaultPolyphony = 8

// Pool is the fixed-size voice allocator. All voices are created at
// construction and only ever reset, never destroyed. The note→voice
// association is derived from voice state on every lookup so it cannot
// drift from the envelopes.
type Pool struct {
	sampleRate int
	voices     []*Voice
	params     *Params
	limit      int // allocatable voice count, 1..len(voices)
}

// NewPool creates a pool of capacity voices sharing one parameter set.
func NewPool(sampleRate, capacity int, params *Params) *Pool {
	if capacity < 1 {
		capacity = DefaultPolyphony
	}
	if params == nil {
		params = NewDefaultParams()
	}
	p := &Pool{
		sampleRate: sampleRate,
		voices:     make([]*Voice, capacity),
		params:     params,
	}
	for i := range p.voices {
		p.voices[i] = newVoice(sampleRate, i, params)
	}
	p.limit = capacity
	return p
}

// SetActiveLimit restricts how many voices Allocate may hand out, clamped
// to 1..capacity. Voices above the limit keep sounding until they decay on
// their own.
func (p *Pool) SetActiveLimit(n int) {
	if n < 1 {
		n = 1
	}
	if n > len(p.voices) {
		n = len(p.voices)
	}
	p.limit = n
}

// ActiveLimit returns the current allocatable voice count.
func (p *Pool) ActiveLimit() int { return p.limit }

// Capacity returns the fixed voice count.
func (p *Pool) Capacity() int { return len(p.voices) }

// SampleRate returns the render sample rate in Hz.
func (p *Pool) SampleRate() int { return p.sampleRate }

// Params returns the shared voice parameters.
func (p *Pool) Params() *Params { return p.params }

// Voice returns the voice at the given slot, nil if out of range.
func (p *Pool) Voice(slot int) *Voice {
	if slot < 0 || slot >= len(p.voices) {
		return nil
	}
	return p.voices[slot]
}

func validNote(note int) error {
	if note < 0 || note > 127 {
		return fmt.Errorf("note %d outside MIDI range 0..127", note)
	}
	return nil
}

// Allocate assigns a voice to the note and triggers it. A note that is
// already sounding retriggers its own voice, an idle voice is preferred
// otherwise, and a saturated pool steals the oldest sounding voice (ties
// broken by lowest slot).
func (p *Pool) Allocate(note int) (int, error) {
	if err := validNote(note); err != nil {
		return -1, err
	}

	// Stable identity: a sounding note keeps its voice on retrigger, even
	// on a slot beyond a shrunk active limit. Only fresh allocations below
	// respect the limit; a second voice for a sounding note would break
	// the one-voice-per-note invariant.
	for _, v := range p.voices {
		if v.active && v.note == note {
			v.NoteOn(note)
			return v.slot, nil
		}
	}

	pool := p.voices[:p.limit]
	for _, v := range pool {
		if !v.active {
			v.NoteOn(note)
			return v.slot, nil
		}
	}

	// Saturated: steal the voice with the greatest age.
	steal := pool[0]
	for _, v := range pool[1:] {
		if v.age > steal.age {
			steal = v
		}
	}
	steal.reset()
	steal.NoteOn(note)
	return steal.slot, nil
}

// Release moves the note's voice into release. The note→voice association
// stays until the envelope reaches idle, so a refired note retriggers the
// same voice. Releasing an unmapped note is a no-op.
func (p *Pool) Release(note int) error {
	if err := validNote(note); err != nil {
		return err
	}
	for _, v := range p.voices {
		if v.active && v.note == note {
			v.NoteOff()
		}
	}
	return nil
}

// ReleaseAll forces every sounding voice into release.
func (p *Pool) ReleaseAll() {
	for _, v := range p.voices {
		v.NoteOff()
	}
}

// ActiveVoiceCount returns the number of currently sounding voices.
func (p *Pool) ActiveVoiceCount() int {
	n := 0
	for _, v := range p.voices {
		if v.active {
			n++
		}
	}
	return n
}

// ActiveNotes returns the sorted set of notes with a sounding voice.
func (p *Pool) ActiveNotes() []int {
	notes := make([]int, 0, len(p.voices))
	for _, v := range p.voices {
		if v.active {
			notes = append(notes, v.note)
		}
	}
	sort.Ints(notes)
	return notes
}

// RenderBuffer renders frameCount frames of interleaved stereo output.
// Mono voice output is duplicated to both channels and the mix is
// normalized by the sounding-voice count to bound the sample range.
func (p *Pool) RenderBuffer(frameCount int, detuneSemitones float32) []float32 {
	out := make([]float32, frameCount*2)

	active := p.ActiveVoiceCount()
	if active == 0 {
		return out
	}
	norm := 1.0 / float32(active)
	dt := 1.0 / float32(p.sampleRate)

	for i := 0; i < frameCount; i++ {
		var sum float32
		for _, v := range p.voices {
			if !v.active {
				continue
			}
			sum += v.Generate(dt, detuneSemitones)
		}
		s := sum * norm
		out[i*2] = s
		out[i*2+1] = s
	}

	return out
}
