// Package coupling runs the fixed-rate bidirectional modulation loop
// between the voice pool and an external visual renderer, batching
// outbound parameter writes and smoothing inbound state with short-horizon
// prediction.
package coupling

import "github.com/cwbudde/algo-synesthesia/features"

// AudioSink receives interleaved stereo sample buffers. How they reach
// output hardware is the sink's concern.
type AudioSink interface {
	WriteBuffer(buf []float32) error
}

// RendererEventKind classifies asynchronous renderer notifications.
type RendererEventKind int

const (
	EventReady RendererEventKind = iota
	EventSwitchAck
	EventError
)

// RendererEvent is a lifecycle notification emitted by the renderer
// channel.
type RendererEvent struct {
	Kind   RendererEventKind
	Detail string
}

// VisualState is the renderer-owned state the visual→audio direction reads.
type VisualState struct {
	RotationXW float64 // radians
	RotationYW float64
	RotationZW float64

	GeometryIndex int
	VertexCount   int

	// Open string-keyed parameters beyond the known set; wire-format
	// flexibility lives only at this boundary.
	Params map[string]float64
}

// RendererChannel is the outbound surface of the visual renderer. Update
// and switch calls must not block the caller for long; the orchestrator
// treats them as fire-and-forget.
type RendererChannel interface {
	UpdateParams(params map[string]float64) error
	SwitchGeometry(index int) error
	State() (VisualState, error)
	Events() <-chan RendererEvent
}

// FeatureAnalyzer extracts per-buffer audio features. Satisfied by
// *features.Extractor.
type FeatureAnalyzer interface {
	Analyze(interleaved []float32, channels int) (features.Features, error)
}
