package coupling

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/algo-synesthesia/features"
	"github.com/cwbudde/algo-synesthesia/modulation"
	"github.com/cwbudde/algo-synesthesia/synth"
)

type fakeRenderer struct {
	mu        sync.Mutex
	updates   []map[string]float64
	switches  []int
	state     VisualState
	stateErr  error
	updateErr error
	events    chan RendererEvent
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		state:  VisualState{VertexCount: 16},
		events: make(chan RendererEvent, 8),
	}
}

func (r *fakeRenderer) UpdateParams(params map[string]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.updates = append(r.updates, params)
	return nil
}

func (r *fakeRenderer) SwitchGeometry(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.switches = append(r.switches, index)
	return nil
}

func (r *fakeRenderer) State() (VisualState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.stateErr
}

func (r *fakeRenderer) Events() <-chan RendererEvent { return r.events }

func (r *fakeRenderer) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *fakeRenderer) switchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.switches)
}

type fakeSink struct {
	mu      sync.Mutex
	buffers int
	err     error
}

func (s *fakeSink) WriteBuffer(buf []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.buffers++
	return nil
}

func (s *fakeSink) bufferCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers
}

type failAnalyzer struct{}

func (failAnalyzer) Analyze([]float32, int) (features.Features, error) {
	return features.Features{}, errors.New("analysis blew up")
}

func testOrchestrator(t *testing.T, analyzer FeatureAnalyzer, renderer RendererChannel, sink AudioSink) *Orchestrator {
	t.Helper()
	pool := synth.NewPool(48000, 8, synth.NewDefaultParams())
	if analyzer == nil {
		var err error
		analyzer, err = features.NewExtractor(48000, 1024)
		if err != nil {
			t.Fatalf("extractor: %v", err)
		}
	}
	o, err := New(pool, analyzer, renderer, sink, modulation.DefaultPreset(), NewDefaultOptions())
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return o
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

func TestFaultIsolationBetweenDirections(t *testing.T) {
	r := newFakeRenderer()
	r.state.RotationXW = math.Pi // normalized 0.5, sinusoidal midpoint
	o := testOrchestrator(t, failAnalyzer{}, r, nil)

	for i := 0; i < 9; i++ {
		if !o.couplingTick() {
			t.Fatalf("expected tick %d to keep running", i+1)
		}
	}
	if o.Health().ConsecutiveFailures != 9 {
		t.Fatalf("expected 9 consecutive failures, got %d", o.Health().ConsecutiveFailures)
	}

	// The failing audio→visual direction must not block visual→audio.
	ep := o.EffectParams()
	mid := (200.0 + 8000.0) / 2
	if math.Abs(ep.FilterCutoff-mid) > 1.0 {
		t.Fatalf("expected visual→audio to keep writing cutoff near %f, got %f", mid, ep.FilterCutoff)
	}

	if o.couplingTick() {
		t.Fatalf("expected 10th consecutive failure to stop the orchestrator")
	}
	rep := o.Health()
	if rep.ConsecutiveFailures != 10 || rep.LastError == "" {
		t.Fatalf("expected surfaced failure state, got %+v", rep)
	}
}

func TestConsecutiveFailureCounterResetsOnSuccess(t *testing.T) {
	r := newFakeRenderer()
	o := testOrchestrator(t, failAnalyzer{}, r, nil)

	o.couplingTick()
	o.couplingTick()
	if o.Health().ConsecutiveFailures != 2 {
		t.Fatalf("expected 2 failures, got %d", o.Health().ConsecutiveFailures)
	}

	o.analyzer = mustExtractor(t)
	o.couplingTick()
	if o.Health().ConsecutiveFailures != 0 {
		t.Fatalf("expected counter reset on fully successful tick, got %d", o.Health().ConsecutiveFailures)
	}
}

func mustExtractor(t *testing.T) *features.Extractor {
	t.Helper()
	e, err := features.NewExtractor(48000, 1024)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	return e
}

func TestSustainedFailureStopsRunningLoop(t *testing.T) {
	r := newFakeRenderer()
	r.stateErr = errors.New("renderer unreachable")
	o := testOrchestrator(t, failAnalyzer{}, r, nil)
	o.opts.TickRate = 500

	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer o.Stop()

	waitFor(t, 2*time.Second, func() bool { return !o.IsRunning() })
	rep := o.Health()
	if rep.Running || rep.LastError == "" {
		t.Fatalf("expected stopped orchestrator with surfaced error, got %+v", rep)
	}
}

func TestCouplingPushesBatchedUpdatesAndAudio(t *testing.T) {
	r := newFakeRenderer()
	sink := &fakeSink{}
	o := testOrchestrator(t, nil, r, sink)

	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer o.Stop()

	if err := o.NoteOn(60); err != nil {
		t.Fatalf("note on: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		return r.updateCount() > 0 && sink.bufferCount() > 0
	})

	r.mu.Lock()
	batch := r.updates[0]
	r.mu.Unlock()
	for key := range batch {
		if !modulation.KnownKey(modulation.ParamKey(key)) {
			t.Fatalf("unexpected parameter key %q crossed the boundary", key)
		}
	}
}

func TestStartStopLifecycle(t *testing.T) {
	r := newFakeRenderer()
	o := testOrchestrator(t, nil, r, nil)

	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	o.Stop()
	if o.IsRunning() {
		t.Fatalf("expected stopped orchestrator")
	}
	o.Stop() // idempotent

	if err := o.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	o.Stop()
}

func TestSwitchGeometryAckWatchdog(t *testing.T) {
	r := newFakeRenderer() // never acknowledges
	o := testOrchestrator(t, nil, r, nil)
	o.opts.AckTimeout = 20 * time.Millisecond

	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer o.Stop()

	if err := o.SwitchGeometry(0.5); err != nil {
		t.Fatalf("switch: %v", err)
	}
	waitFor(t, time.Second, func() bool { return r.switchCount() == 1 })
	waitFor(t, time.Second, func() bool { return o.Health().AckTimedOut })

	// A late acknowledgement clears the fault.
	r.events <- RendererEvent{Kind: EventSwitchAck}
	waitFor(t, time.Second, func() bool { return !o.Health().AckTimedOut })
}

func TestSwitchGeometryRacingStopDoesNotPanic(t *testing.T) {
	r := newFakeRenderer()
	o := testOrchestrator(t, nil, r, nil)
	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				_ = o.SwitchGeometry(0.5) // ErrNotRunning is fine mid-stop
			}
		}
	}()

	time.Sleep(10 * time.Millisecond)
	o.Stop()
	close(done)
	wg.Wait()
}

func TestSwitchGeometryRequiresRunningLoop(t *testing.T) {
	r := newFakeRenderer()
	o := testOrchestrator(t, nil, r, nil)
	if err := o.SwitchGeometry(0.5); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestPresetSwapIsAtomicAndValidated(t *testing.T) {
	r := newFakeRenderer()
	o := testOrchestrator(t, nil, r, nil)

	bad := modulation.DefaultPreset()
	bad.AudioToVisual = append([]modulation.Mapping(nil), bad.AudioToVisual...)
	bad.AudioToVisual[0].Source = "audio.bogus"
	if err := o.SetPreset(bad); err == nil {
		t.Fatalf("expected invalid preset to be rejected")
	}

	next := modulation.DefaultPreset()
	next.Name = "swapped"
	next.VisualToAudioOn = false
	if err := o.SetPreset(next); err != nil {
		t.Fatalf("set preset: %v", err)
	}
	got := o.Preset()
	if got.Name != "swapped" || got.VisualToAudioOn {
		t.Fatalf("expected whole preset swapped, got %+v", got)
	}
}

func TestVisualStateDrivesDiscreteTargets(t *testing.T) {
	r := newFakeRenderer()
	r.state.GeometryIndex = 2
	r.state.VertexCount = 120
	o := testOrchestrator(t, nil, r, nil)

	if !o.couplingTick() {
		t.Fatalf("tick failed: %v", o.Health().LastError)
	}
	ep := o.EffectParams()
	if ep.Waveform != synth.Waveform(2) {
		t.Fatalf("expected geometry 2 to select waveform 2, got %v", ep.Waveform)
	}
	if ep.VoiceLimit != 7 {
		t.Fatalf("expected 120 vertices to allow 7 voices, got %d", ep.VoiceLimit)
	}
}

func TestVisualAudioExtrapolatesAcrossTickInterval(t *testing.T) {
	r := newFakeRenderer()
	o := testOrchestrator(t, nil, r, nil)
	now := time.Unix(1000, 0)
	o.predictor.now = func() time.Time { return now }
	step := 16 * time.Millisecond

	// Steady rotation over two ticks builds a linear history.
	r.state.RotationXW = 0
	if !o.couplingTick() {
		t.Fatalf("tick failed: %v", o.Health().LastError)
	}
	now = now.Add(step)
	r.state.RotationXW = 0.1 * 2 * math.Pi
	o.couplingTick()
	now = now.Add(step)
	r.state.RotationXW = 0.2 * 2 * math.Pi
	o.couplingTick()

	// The last history sample (0.1) is one tick old; with velocity 0.1
	// per tick and the 16 ms horizon the source extrapolates to 0.3
	// rather than using the raw 0.2 snapshot.
	m := modulation.Mapping{Min: 200, Max: 8000, Curve: modulation.CurveSinusoidal}
	want := m.Apply(0.3)
	ep := o.EffectParams()
	if math.Abs(ep.FilterCutoff-want) > 1e-6 {
		t.Fatalf("expected cutoff from extrapolated source 0.3 (%f), got %f", want, ep.FilterCutoff)
	}
}

func TestBothDirectionErrorsSurfaceTogether(t *testing.T) {
	r := newFakeRenderer()
	r.stateErr = errors.New("renderer unreachable")
	o := testOrchestrator(t, failAnalyzer{}, r, nil)

	o.couplingTick()
	rep := o.Health()
	if !strings.Contains(rep.LastError, "audio→visual") || !strings.Contains(rep.LastError, "visual→audio") {
		t.Fatalf("expected both direction errors recorded, got %q", rep.LastError)
	}
}

func TestHealthReportRollsUpCounters(t *testing.T) {
	r := newFakeRenderer()
	o := testOrchestrator(t, nil, r, nil)

	o.counters.audioErrors.Add(3)
	o.counters.rendererErrors.Add(2)
	o.counters.droppedUpdates.Add(1)

	rep := o.Health()
	if rep.AudioErrors != 3 || rep.RendererErrors != 2 || rep.DroppedUpdates != 1 {
		t.Fatalf("expected counters rolled up, got %+v", rep)
	}
	if rep.Healthy {
		t.Fatalf("expected stopped orchestrator to report unhealthy")
	}
}
