package coupling

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-synesthesia/features"
	"github.com/cwbudde/algo-synesthesia/modulation"
	"github.com/cwbudde/algo-synesthesia/synth"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator already running")
	ErrNotRunning     = errors.New("orchestrator not running")
)

// Options configures the coupling loop.
type Options struct {
	TickRate         float64       // coupling ticks per second
	BufferFrames     int           // audio frames per render tick
	FailureThreshold int           // consecutive failing ticks before self-stop
	FPSWarn          float64       // degraded below this tick rate
	FPSRecover       float64       // degraded clears at or above this
	AckTimeout       time.Duration // geometry switch acknowledgement window
	FlushInterval    time.Duration // update batcher frame interval
	OutboxSize       int           // bounded outbound renderer call queue
	GeometryCount    int           // discrete geometries the renderer offers
	PredictAhead     time.Duration // extrapolation horizon for renderer state

	// Logf receives diagnostic messages; nil keeps the engine silent.
	// Injected so several engines can run in one process without shared
	// logging state.
	Logf func(format string, args ...any)
}

// NewDefaultOptions returns the stock 60 Hz configuration.
func NewDefaultOptions() Options {
	return Options{
		TickRate:         60,
		BufferFrames:     1024,
		FailureThreshold: 10,
		FPSWarn:          30,
		FPSRecover:       54,
		AckTimeout:       500 * time.Millisecond,
		FlushInterval:    DefaultFlushInterval,
		OutboxSize:       64,
		GeometryCount:    6,
		PredictAhead:     16 * time.Millisecond,
	}
}

// EffectParams are the voice and effect targets the visual→audio direction
// writes. Filter and reverb settings drive the master effects chain;
// detune and the voice limit apply directly to the pool.
type EffectParams struct {
	FilterCutoff float64 // Hz
	ReverbMix    float64 // 0..1
	Detune       float64 // semitones
	Waveform     synth.Waveform
	VoiceLimit   int
}

// Orchestrator drives the fixed-rate bidirectional modulation loop. All
// engine state is owned by one run goroutine and its mutex; public methods
// are safe to call from any goroutine.
type Orchestrator struct {
	pool      *synth.Pool
	analyzer  FeatureAnalyzer
	renderer  RendererChannel
	sink      AudioSink
	batcher   *Batcher
	predictor *Predictor
	chain     *synth.EffectsChain
	counters  healthCounters
	opts      Options
	logf      func(format string, args ...any)

	running atomic.Bool

	mu             sync.Mutex
	preset         modulation.Preset
	effects        EffectParams
	lastBuffer     []float32
	lastFeatures   features.Features
	failures       int
	lastErr        error
	fps            float64
	tickCount      int
	fpsWindowStart time.Time
	degraded       bool
	ackPending     bool
	ackDeadline    time.Time
	ackTimedOut    bool

	lifeMu   sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce *sync.Once
	ob       *outbox
	audioCh  chan []float32
}

// New creates an orchestrator around a voice pool, feature analyzer and
// renderer channel. The sink may be nil for analysis-only use.
func New(pool *synth.Pool, analyzer FeatureAnalyzer, renderer RendererChannel, sink AudioSink, preset modulation.Preset, opts Options) (*Orchestrator, error) {
	if pool == nil {
		return nil, errors.New("nil voice pool")
	}
	if analyzer == nil {
		return nil, errors.New("nil feature analyzer")
	}
	if renderer == nil {
		return nil, errors.New("nil renderer channel")
	}
	if err := preset.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preset: %w", err)
	}
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	if opts.BufferFrames < 1 {
		opts.BufferFrames = 1024
	}
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 10
	}
	if opts.FPSWarn <= 0 {
		opts.FPSWarn = 30
	}
	if opts.FPSRecover <= 0 {
		opts.FPSRecover = 0.9 * opts.TickRate
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 500 * time.Millisecond
	}
	if opts.GeometryCount < 1 {
		opts.GeometryCount = 6
	}
	if opts.PredictAhead <= 0 {
		opts.PredictAhead = 16 * time.Millisecond
	}

	o := &Orchestrator{
		pool:      pool,
		analyzer:  analyzer,
		renderer:  renderer,
		sink:      sink,
		predictor: NewPredictor(),
		chain:     synth.NewEffectsChain(pool.SampleRate()),
		opts:      opts,
		logf:      opts.Logf,
		preset:    preset,
		effects: EffectParams{
			FilterCutoff: 8000,
			Waveform:     pool.Params().Waveform,
			VoiceLimit:   pool.Capacity(),
		},
	}
	o.batcher = NewBatcher(opts.FlushInterval, o.sendBatch)
	return o, nil
}

// Start launches the run loop. Starting a running orchestrator is an error.
func (o *Orchestrator) Start() error {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()

	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.stopOnce = &sync.Once{}
	o.ob = newOutbox(o.opts.OutboxSize, &o.counters, o.logf)
	o.audioCh = make(chan []float32, 4)

	o.mu.Lock()
	o.failures = 0
	o.lastErr = nil
	o.tickCount = 0
	o.fpsWindowStart = time.Now()
	o.mu.Unlock()

	go o.audioWriter(o.audioCh)
	go o.run(o.stopCh, o.doneCh, o.ob, o.audioCh)
	return nil
}

// Stop cancels the periodic ticks and waits for the loop to exit.
// In-flight outbound writes complete or fail on their own.
func (o *Orchestrator) Stop() {
	o.lifeMu.Lock()
	stopCh, doneCh, once := o.stopCh, o.doneCh, o.stopOnce
	o.lifeMu.Unlock()

	if stopCh == nil || once == nil {
		return
	}
	once.Do(func() { close(stopCh) })
	<-doneCh
}

// IsRunning reports whether the run loop is active.
func (o *Orchestrator) IsRunning() bool { return o.running.Load() }

func (o *Orchestrator) run(stopCh, doneCh chan struct{}, ob *outbox, audioCh chan []float32) {
	sampleRate := o.pool.SampleRate()
	renderInterval := time.Duration(float64(o.opts.BufferFrames) / float64(sampleRate) * float64(time.Second))
	renderTicker := time.NewTicker(renderInterval)
	couplingTicker := time.NewTicker(time.Duration(float64(time.Second) / o.opts.TickRate))
	events := o.renderer.Events()

	defer func() {
		renderTicker.Stop()
		couplingTicker.Stop()
		o.batcher.Stop()
		close(audioCh)
		// Unpublish the outbox before closing it so a racing enqueue
		// either misses it entirely or is dropped by the closed check.
		o.lifeMu.Lock()
		o.ob = nil
		o.lifeMu.Unlock()
		ob.close()
		o.running.Store(false)
		close(doneCh)
	}()

	for {
		select {
		case <-stopCh:
			return
		case <-renderTicker.C:
			o.renderTick(audioCh)
		case <-couplingTicker.C:
			if !o.couplingTick() {
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.handleEvent(ev)
		}
	}
}

func (o *Orchestrator) audioWriter(audioCh chan []float32) {
	for buf := range audioCh {
		if o.sink == nil {
			continue
		}
		if err := o.sink.WriteBuffer(buf); err != nil {
			o.counters.audioErrors.Add(1)
			if o.logf != nil {
				o.logf("audio sink write failed: %v", err)
			}
		}
	}
}

// renderTick renders one audio buffer and hands it to the sink without
// blocking the loop.
func (o *Orchestrator) renderTick(audioCh chan []float32) {
	o.mu.Lock()
	detune := float32(o.effects.Detune)
	buf := o.pool.RenderBuffer(o.opts.BufferFrames, detune)
	o.chain.SetCutoff(o.effects.FilterCutoff)
	o.chain.SetReverbMix(o.effects.ReverbMix)
	o.chain.Process(buf)
	o.lastBuffer = buf
	o.mu.Unlock()

	select {
	case audioCh <- buf:
	default:
		o.counters.audioErrors.Add(1)
		if o.logf != nil {
			o.logf("audio sink backlogged, dropping buffer")
		}
	}
}

// couplingTick runs both modulation directions with independent fault
// capture. It returns false when sustained failure stops the loop.
func (o *Orchestrator) couplingTick() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	var errAV, errVA error
	if o.preset.AudioToVisualOn {
		errAV = o.tickAudioVisual()
	}
	if o.preset.VisualToAudioOn {
		errVA = o.tickVisualAudio()
	}

	if errAV != nil {
		errAV = fmt.Errorf("audio→visual: %w", errAV)
	}
	if errVA != nil {
		errVA = fmt.Errorf("visual→audio: %w", errVA)
	}
	if errAV != nil || errVA != nil {
		o.failures++
		o.lastErr = errors.Join(errAV, errVA)
		if o.logf != nil {
			o.logf("coupling tick error (%d consecutive): %v", o.failures, o.lastErr)
		}
	} else {
		o.failures = 0
	}

	now := time.Now()
	if o.ackPending && now.After(o.ackDeadline) {
		o.ackPending = false
		o.ackTimedOut = true
		o.counters.rendererErrors.Add(1)
		if o.logf != nil {
			o.logf("geometry switch not acknowledged within %v", o.opts.AckTimeout)
		}
	}

	o.tickCount++
	if elapsed := now.Sub(o.fpsWindowStart); elapsed >= time.Second {
		o.fps = float64(o.tickCount) / elapsed.Seconds()
		o.tickCount = 0
		o.fpsWindowStart = now
		if o.fps < o.opts.FPSWarn {
			o.degraded = true
		} else if o.degraded && o.fps >= o.opts.FPSRecover {
			o.degraded = false
		}
	}

	if o.failures >= o.opts.FailureThreshold {
		if o.logf != nil {
			o.logf("sustained modulation failure (%d consecutive), stopping: %v", o.failures, o.lastErr)
		}
		return false
	}
	return true
}

// tickAudioVisual extracts features from the latest rendered buffer and
// pushes the mapped values to the renderer through the batcher.
// Called with o.mu held.
func (o *Orchestrator) tickAudioVisual() error {
	buf := o.lastBuffer
	if buf == nil {
		buf = o.pool.RenderBuffer(o.opts.BufferFrames, float32(o.effects.Detune))
		o.chain.Process(buf)
		o.lastBuffer = buf
	}

	ft, err := o.analyzer.Analyze(buf, 2)
	if err != nil {
		return err
	}
	o.lastFeatures = ft

	for _, m := range o.preset.AudioToVisual {
		src, err := featureSource(ft, m.Source, o.pool.SampleRate())
		if err != nil {
			return err
		}
		o.batcher.Queue(m.Target.String(), m.Apply(src))
	}
	return nil
}

// tickVisualAudio reads renderer state (smoothed through the predictor)
// and writes the mapped values into voice and effect parameters.
// Called with o.mu held.
func (o *Orchestrator) tickVisualAudio() error {
	st, err := o.renderer.State()
	if err != nil {
		return err
	}

	// Predict from the history before folding in the fresh snapshot:
	// observing first would make every lookup hit the fresh-value short
	// circuit and the extrapolation covering the tick interval would
	// never run.
	rotations := map[modulation.ParamKey]float64{
		modulation.KeyRotationXW: normalizeAngle(st.RotationXW),
		modulation.KeyRotationYW: normalizeAngle(st.RotationYW),
		modulation.KeyRotationZW: normalizeAngle(st.RotationZW),
	}

	for _, m := range o.preset.VisualToAudio {
		src, err := o.visualSource(st, rotations, m.Source)
		if err != nil {
			return err
		}
		value := m.Apply(src)
		switch m.Target {
		case modulation.KeyFilterCutoff:
			o.effects.FilterCutoff = value
		case modulation.KeyReverbMix:
			o.effects.ReverbMix = value
		case modulation.KeyDetune:
			o.effects.Detune = value
		default:
			return fmt.Errorf("unsupported visual→audio target %q", m.Target)
		}
	}

	// Discrete targets bypass the curve table. The geometry index selects
	// the oscillator shape directly; the projected vertex count sets the
	// voice limit on a log scale (16 vertices → 4 voices).
	o.effects.Waveform = synth.Waveform(st.GeometryIndex % 4)
	o.pool.Params().Waveform = o.effects.Waveform

	limit := int(math.Round(math.Log2(float64(st.VertexCount) + 1)))
	if limit < 1 {
		limit = 1
	}
	if limit > o.pool.Capacity() {
		limit = o.pool.Capacity()
	}
	o.pool.SetActiveLimit(limit)
	o.effects.VoiceLimit = limit

	for key, value := range rotations {
		o.predictor.Observe(key.String(), value)
	}
	return nil
}

func featureSource(ft features.Features, key modulation.ParamKey, sampleRate int) (float64, error) {
	switch key {
	case modulation.KeyBassEnergy:
		return ft.Bass, nil
	case modulation.KeyMidEnergy:
		return ft.Mid, nil
	case modulation.KeyHighEnergy:
		return ft.High, nil
	case modulation.KeyCentroid:
		return ft.Centroid / (float64(sampleRate) / 2), nil
	case modulation.KeyRMS:
		return ft.RMS, nil
	case modulation.KeyStereoWidth:
		return ft.StereoWidth, nil
	}
	return 0, fmt.Errorf("unsupported audio→visual source %q", key)
}

func (o *Orchestrator) visualSource(st VisualState, rotations map[modulation.ParamKey]float64, key modulation.ParamKey) (float64, error) {
	if raw, ok := rotations[key]; ok {
		// Extrapolate from earlier ticks when possible; the raw snapshot
		// covers the first tick and erratic motion.
		if v, ok := o.predictor.GetOrPredict(key.String(), o.opts.PredictAhead); ok {
			return v, nil
		}
		return raw, nil
	}
	if st.Params != nil {
		if v, ok := st.Params[key.String()]; ok {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unsupported visual→audio source %q", key)
}

// normalizeAngle wraps a radian angle into [0,1) of a full rotation.
func normalizeAngle(rad float64) float64 {
	x := math.Mod(rad/(2*math.Pi), 1)
	if x < 0 {
		x++
	}
	return x
}

// sendBatch delivers one batched update call. While running it goes through
// the bounded outbox; otherwise it calls the renderer directly from the
// flush timer goroutine.
func (o *Orchestrator) sendBatch(updates map[string]float64) {
	o.lifeMu.Lock()
	ob := o.ob
	o.lifeMu.Unlock()

	call := func() error { return o.renderer.UpdateParams(updates) }
	if ob != nil {
		ob.enqueue(call)
		return
	}
	if err := call(); err != nil {
		o.counters.rendererErrors.Add(1)
		if o.logf != nil {
			o.logf("renderer update failed: %v", err)
		}
	}
}

func (o *Orchestrator) handleEvent(ev RendererEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch ev.Kind {
	case EventReady:
		if o.logf != nil {
			o.logf("renderer ready: %s", ev.Detail)
		}
	case EventSwitchAck:
		o.ackPending = false
		o.ackTimedOut = false
	case EventError:
		o.counters.rendererErrors.Add(1)
		if o.logf != nil {
			o.logf("renderer error: %s", ev.Detail)
		}
	}
}

// NoteOn allocates and triggers a voice for the note.
func (o *Orchestrator) NoteOn(note int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.pool.Allocate(note)
	return err
}

// NoteOff releases the note's voice.
func (o *Orchestrator) NoteOff(note int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pool.Release(note)
}

// Panic forces every sounding voice into release.
func (o *Orchestrator) Panic() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pool.ReleaseAll()
}

// SetPreset atomically swaps the active mapping preset. Both direction
// tables are replaced together; no tick observes a half-updated preset.
func (o *Orchestrator) SetPreset(p modulation.Preset) error {
	if err := p.Validate(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.preset = p
	return nil
}

// Preset returns the active mapping preset.
func (o *Orchestrator) Preset() modulation.Preset {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.preset
}

// SwitchGeometry maps a normalized selector onto a discrete geometry index
// and sends the switch immediately, bypassing frame batching. An
// acknowledgement watchdog flags the switch if the renderer stays silent.
func (o *Orchestrator) SwitchGeometry(selector float64) error {
	o.lifeMu.Lock()
	ob := o.ob
	o.lifeMu.Unlock()
	if ob == nil {
		return ErrNotRunning
	}

	idx := modulation.GeometryIndex(selector, o.opts.GeometryCount)

	o.mu.Lock()
	o.ackPending = true
	o.ackDeadline = time.Now().Add(o.opts.AckTimeout)
	o.mu.Unlock()

	ob.enqueue(func() error { return o.renderer.SwitchGeometry(idx) })
	return nil
}

// EffectParams returns the current visual→audio modulation targets.
func (o *Orchestrator) EffectParams() EffectParams {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.effects
}

// LastFeatures returns the most recent feature snapshot.
func (o *Orchestrator) LastFeatures() features.Features {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastFeatures
}

// Health recomputes the aggregated report from the subsystem counters and
// the loop state.
func (o *Orchestrator) Health() HealthReport {
	o.mu.Lock()
	failures := o.failures
	lastErr := ""
	if o.lastErr != nil {
		lastErr = o.lastErr.Error()
	}
	fps := o.fps
	degraded := o.degraded
	ackTimedOut := o.ackTimedOut
	o.mu.Unlock()

	running := o.running.Load()
	return HealthReport{
		Healthy:             running && !degraded && !ackTimedOut && failures == 0,
		Running:             running,
		Degraded:            degraded,
		AckTimedOut:         ackTimedOut,
		FPS:                 fps,
		ConsecutiveFailures: failures,
		LastError:           lastErr,
		AudioErrors:         o.counters.audioErrors.Load(),
		RendererErrors:      o.counters.rendererErrors.Load(),
		DroppedUpdates:      o.counters.droppedUpdates.Load(),
	}
}
