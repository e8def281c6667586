// synesthesia-play runs the full coupling loop live: a voice pool rendered
// to the default audio device, coupled to a console renderer that simulates
// 4D rotation state.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cwbudde/algo-synesthesia/coupling"
	"github.com/cwbudde/algo-synesthesia/features"
	"github.com/cwbudde/algo-synesthesia/modulation"
	"github.com/cwbudde/algo-synesthesia/preset"
	"github.com/cwbudde/algo-synesthesia/synth"
	"github.com/ebitengine/oto/v3"
)

func main() {
	sampleRate := flag.Int("sample-rate", 48000, "Playback sample rate in Hz")
	polyphony := flag.Int("polyphony", synth.DefaultPolyphony, "Voice pool size")
	duration := flag.Float64("duration", 20.0, "Playback duration in seconds (0 = until interrupted)")
	notesArg := flag.String("notes", "48,55,60,64,67,64,60,55", "Comma-separated MIDI arpeggio pattern")
	noteRate := flag.Float64("note-rate", 4.0, "Arpeggio notes per second")
	presetPath := flag.String("preset", "", "Preset JSON file (empty = built-in default)")
	verbose := flag.Bool("verbose", false, "Log coupling diagnostics")
	flag.Parse()

	notes, err := parseNotes(*notesArg)
	if err != nil {
		die("parsing notes: %v", err)
	}

	p := modulation.DefaultPreset()
	if *presetPath != "" {
		if p, err = preset.LoadJSON(*presetPath); err != nil {
			die("loading preset: %v", err)
		}
	}

	sink, err := newOtoSink(*sampleRate)
	if err != nil {
		die("opening audio device: %v", err)
	}
	defer sink.Close()

	pool := synth.NewPool(*sampleRate, *polyphony, synth.NewDefaultParams())
	extractor, err := features.NewExtractor(*sampleRate, features.DefaultWindowSize)
	if err != nil {
		die("creating extractor: %v", err)
	}
	renderer := newConsoleRenderer()

	opts := coupling.NewDefaultOptions()
	if *verbose {
		opts.Logf = func(format string, args ...any) {
			fmt.Printf("[coupling] "+format+"\n", args...)
		}
	}
	o, err := coupling.New(pool, extractor, renderer, sink, p, opts)
	if err != nil {
		die("creating orchestrator: %v", err)
	}
	if err := o.Start(); err != nil {
		die("starting orchestrator: %v", err)
	}
	defer o.Stop()

	fmt.Printf("Playing preset %q at %d Hz, %d voices. Ctrl-C to stop.\n",
		p.Name, *sampleRate, pool.Capacity())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(time.Duration(*duration * float64(time.Second)))
	}
	noteTicker := time.NewTicker(time.Duration(float64(time.Second) / *noteRate))
	defer noteTicker.Stop()
	statusTicker := time.NewTicker(time.Second)
	defer statusTicker.Stop()

	step := 0
	prev := -1
	for {
		select {
		case <-noteTicker.C:
			if prev >= 0 {
				_ = o.NoteOff(prev)
			}
			n := notes[step%len(notes)]
			if err := o.NoteOn(n); err != nil {
				fmt.Fprintf(os.Stderr, "note on %d: %v\n", n, err)
			}
			prev = n
			step++
		case <-statusTicker.C:
			printStatus(o, renderer)
			if !o.IsRunning() {
				fmt.Println("Coupling loop stopped itself; exiting.")
				return
			}
		case <-deadline:
			fmt.Println("Done.")
			return
		case <-sigCh:
			fmt.Println("\nInterrupted.")
			return
		}
	}
}

func printStatus(o *coupling.Orchestrator, r *consoleRenderer) {
	h := o.Health()
	ft := o.LastFeatures()
	ep := o.EffectParams()
	st := r.snapshot()
	fmt.Printf("fps=%.1f healthy=%v bass=%.3f centroid=%.0fHz | rotXW=%.2f geo=%d | cutoff=%.0fHz detune=%+.2f voices=%d\n",
		h.FPS, h.Healthy, ft.Bass, ft.Centroid, st.RotationXW, st.GeometryIndex, ep.FilterCutoff, ep.Detune, ep.VoiceLimit)
	if h.Degraded {
		fmt.Printf("  degraded: tick rate down to %.1f fps\n", h.FPS)
	}
	if h.LastError != "" {
		fmt.Printf("  last error: %s\n", h.LastError)
	}
}

// otoSink adapts the coupling audio output to an oto v3 player. Buffers
// arrive from the render loop and are drained by the device callback; a
// bounded queue keeps render overruns from growing without limit.
type otoSink struct {
	ctx    *oto.Context
	player *oto.Player

	mu      sync.Mutex
	queue   []float32
	maxLen  int
	dropped uint64
}

func newOtoSink(sampleRate int) (*otoSink, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	s := &otoSink{
		ctx:    ctx,
		maxLen: sampleRate, // half a second of stereo samples
	}
	s.player = ctx.NewPlayer(s)
	s.player.Play()
	return s, nil
}

func (s *otoSink) WriteBuffer(buf []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue)+len(buf) > s.maxLen {
		s.dropped++
		return fmt.Errorf("audio queue full, dropping %d samples", len(buf))
	}
	s.queue = append(s.queue, buf...)
	return nil
}

// Read feeds the device. Underruns play silence rather than blocking the
// audio thread.
func (s *otoSink) Read(p []byte) (int, error) {
	numSamples := len(p) / 4

	s.mu.Lock()
	n := numSamples
	if n > len(s.queue) {
		n = len(s.queue)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s.queue[i]))
	}
	s.queue = s.queue[n:]
	s.mu.Unlock()

	for i := n * 4; i < numSamples*4; i++ {
		p[i] = 0
	}
	return numSamples * 4, nil
}

func (s *otoSink) Close() {
	if s.player != nil {
		s.player.Close()
	}
}

// consoleRenderer stands in for a remote visualizer. It integrates the
// rotation speeds it receives into rotation angles and acknowledges
// geometry switches after a short settling delay.
type consoleRenderer struct {
	mu       sync.Mutex
	state    coupling.VisualState
	speeds   map[string]float64
	lastStep time.Time
	events   chan coupling.RendererEvent
}

var geometryVertices = []int{5, 8, 16, 24, 32, 48}

func newConsoleRenderer() *consoleRenderer {
	r := &consoleRenderer{
		state: coupling.VisualState{
			VertexCount: geometryVertices[0],
			Params:      map[string]float64{},
		},
		speeds:   map[string]float64{},
		lastStep: time.Now(),
		events:   make(chan coupling.RendererEvent, 16),
	}
	r.events <- coupling.RendererEvent{Kind: coupling.EventReady}
	return r
}

func (r *consoleRenderer) UpdateParams(params map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step()
	for k, v := range params {
		switch k {
		case "renderer.rotationXW", "renderer.rotationYW", "renderer.rotationZW":
			r.speeds[k] = v
		default:
			r.state.Params[k] = v
		}
	}
	return nil
}

func (r *consoleRenderer) SwitchGeometry(index int) error {
	r.mu.Lock()
	if index < 0 || index >= len(geometryVertices) {
		r.mu.Unlock()
		return fmt.Errorf("geometry index %d out of range", index)
	}
	r.state.GeometryIndex = index
	r.state.VertexCount = geometryVertices[index]
	r.mu.Unlock()

	go func() {
		time.Sleep(30 * time.Millisecond)
		select {
		case r.events <- coupling.RendererEvent{Kind: coupling.EventSwitchAck}:
		default:
		}
	}()
	return nil
}

func (r *consoleRenderer) State() (coupling.VisualState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step()
	return r.snapshotLocked(), nil
}

func (r *consoleRenderer) Events() <-chan coupling.RendererEvent { return r.events }

func (r *consoleRenderer) snapshot() coupling.VisualState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *consoleRenderer) snapshotLocked() coupling.VisualState {
	st := r.state
	st.Params = make(map[string]float64, len(r.state.Params))
	for k, v := range r.state.Params {
		st.Params[k] = v
	}
	return st
}

// step advances the rotation angles by the current speeds. Angles stay in
// [0, 2π) so downstream normalization sees a stable range.
func (r *consoleRenderer) step() {
	now := time.Now()
	dt := now.Sub(r.lastStep).Seconds()
	r.lastStep = now

	twoPi := 2 * math.Pi
	r.state.RotationXW = math.Mod(r.state.RotationXW+r.speeds["renderer.rotationXW"]*dt, twoPi)
	r.state.RotationYW = math.Mod(r.state.RotationYW+r.speeds["renderer.rotationYW"]*dt, twoPi)
	r.state.RotationZW = math.Mod(r.state.RotationZW+r.speeds["renderer.rotationZW"]*dt, twoPi)
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

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
