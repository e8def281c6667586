package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-synesthesia/features"
	"github.com/cwbudde/algo-synesthesia/synth"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

func main() {
	notesArg := flag.String("notes", "60,64,67", "Comma-separated MIDI notes to trigger")
	duration := flag.Float64("duration", 2.0, "Total render duration in seconds")
	releaseAfter := flag.Float64("release-after", 1.5, "Send NoteOff after this many seconds")
	sampleRate := flag.Int("sample-rate", 48000, "Render sample rate in Hz")
	polyphony := flag.Int("polyphony", synth.DefaultPolyphony, "Voice pool size")
	attack := flag.Float64("attack", 0.01, "Envelope attack time in seconds")
	decay := flag.Float64("decay", 0.1, "Envelope decay time in seconds")
	sustain := flag.Float64("sustain", 0.7, "Envelope sustain level (0-1)")
	release := flag.Float64("release", 0.3, "Envelope release time in seconds")
	waveform := flag.String("waveform", "sine", "Oscillator waveform: sine|square|saw|triangle")
	detune := flag.Float64("detune", 0.0, "Detune in semitones")
	cutoff := flag.Float64("cutoff", 0.0, "Lowpass cutoff in Hz (0 = filter open)")
	reverb := flag.Float64("reverb", 0.0, "Reverb wet mix (0-1)")
	analyze := flag.Bool("analyze", true, "Print spectral features of the final buffer")
	output := flag.String("output", "output.wav", "Output WAV file path")
	flag.Parse()

	notes, err := parseNotes(*notesArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing notes: %v\n", err)
		os.Exit(1)
	}

	wf, err := parseWaveform(*waveform)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	params := &synth.Params{
		AttackTime:   float32(*attack),
		DecayTime:    float32(*decay),
		SustainLevel: float32(*sustain),
		ReleaseTime:  float32(*release),
		Waveform:     wf,
	}

	pool := synth.NewPool(*sampleRate, *polyphony, params)
	chain := synth.NewEffectsChain(*sampleRate)
	if *cutoff > 0 {
		chain.SetCutoff(*cutoff)
	}
	chain.SetReverbMix(*reverb)
	for _, n := range notes {
		if _, err := pool.Allocate(n); err != nil {
			fmt.Fprintf(os.Stderr, "Error triggering note %d: %v\n", n, err)
			os.Exit(1)
		}
	}

	fmt.Printf("Rendering notes %v for %.2fs at %d Hz (%s, ADSR %.3f/%.3f/%.2f/%.3f)...\n",
		notes, *duration, *sampleRate, *waveform, *attack, *decay, *sustain, *release)

	numChannels := 2
	blockSize := 128
	totalFrames := int(float64(*sampleRate) * (*duration))
	if totalFrames < 1 {
		totalFrames = 1
	}
	releaseAtFrame := int(float64(*sampleRate) * (*releaseAfter))

	samples := make([]float32, 0, totalFrames*numChannels)
	released := false
	framesRendered := 0
	var lastBlock []float32
	for framesRendered < totalFrames {
		framesToRender := blockSize
		if framesRendered+framesToRender > totalFrames {
			framesToRender = totalFrames - framesRendered
		}
		if !released && framesRendered >= releaseAtFrame {
			for _, n := range notes {
				_ = pool.Release(n)
			}
			released = true
		}
		block := pool.RenderBuffer(framesToRender, float32(*detune))
		chain.Process(block)
		samples = append(samples, block...)
		lastBlock = block
		framesRendered += framesToRender
	}

	if *analyze && lastBlock != nil {
		extractor, err := features.NewExtractor(*sampleRate, features.DefaultWindowSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating extractor: %v\n", err)
			os.Exit(1)
		}
		tail := samples
		if len(tail) > features.DefaultWindowSize*numChannels {
			tail = tail[len(tail)-features.DefaultWindowSize*numChannels:]
		}
		ft, err := extractor.Analyze(tail, numChannels)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error analyzing buffer: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Features: bass=%.4f mid=%.4f high=%.4f centroid=%.1f Hz rms=%.4f width=%.2f (measured=%v)\n",
			ft.Bass, ft.Mid, ft.High, ft.Centroid, ft.RMS, ft.StereoWidth, ft.WidthMeasured)
	}

	file, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	encoder := wav.NewEncoder(file, *sampleRate, 16, numChannels, 1)
	defer encoder.Close()

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  *sampleRate,
			NumChannels: numChannels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully wrote %s (%d frames)\n", *output, framesRendered)
}

func parseNotes(arg string) ([]int, error) {
	parts := strings.Split(arg, ",")
	notes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid note %q", p)
		}
		notes = append(notes, n)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return notes, nil
}

func parseWaveform(s string) (synth.Waveform, error) {
	switch s {
	case "sine":
		return synth.WaveSine, nil
	case "square":
		return synth.WaveSquare, nil
	case "saw":
		return synth.WaveSaw, nil
	case "triangle":
		return synth.WaveTriangle, nil
	}
	return synth.WaveSine, fmt.Errorf("unknown waveform %q (expected sine|square|saw|triangle)", s)
}
