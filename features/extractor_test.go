package features

import (
	"math"
	"testing"
)

const testRate = 48000

func sineStereo(freq float64, frames int) []float32 {
	buf := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		s := float32(math.Sin(2 * math.Pi * freq * float64(i) / testRate))
		buf[i*2] = s
		buf[i*2+1] = s
	}
	return buf
}

func TestBassToneConcentratesInBassBand(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	ft, err := e.Analyze(sineStereo(100, 2048), 2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ft.Bass <= ft.Mid || ft.Bass <= ft.High {
		t.Fatalf("expected bass dominance for 100 Hz tone: bass=%f mid=%f high=%f", ft.Bass, ft.Mid, ft.High)
	}
}

func TestCentroidTracksToneFrequency(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	ft, err := e.Analyze(sineStereo(1000, 2048), 2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if math.Abs(ft.Centroid-1000) > 100 {
		t.Fatalf("expected centroid near 1 kHz, got %f", ft.Centroid)
	}
}

func TestRMSOfFullScaleSine(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	ft, err := e.Analyze(sineStereo(440, 2048), 2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if math.Abs(ft.RMS-1/math.Sqrt2) > 0.02 {
		t.Fatalf("expected RMS near 0.707, got %f", ft.RMS)
	}
}

func TestMonoBufferReportsUnmeasuredWidth(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	mono := make([]float32, 2048)
	for i := range mono {
		mono[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / testRate))
	}
	ft, err := e.Analyze(mono, 1)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ft.WidthMeasured {
		t.Fatalf("expected mono width to be flagged unmeasured")
	}
	if ft.StereoWidth != UnmeasuredWidth {
		t.Fatalf("expected placeholder width %f, got %f", UnmeasuredWidth, ft.StereoWidth)
	}
}

func TestStereoWidthMeasuresSideContent(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}

	identical, err := e.Analyze(sineStereo(440, 2048), 2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !identical.WidthMeasured || identical.StereoWidth != 0 {
		t.Fatalf("expected zero width for identical channels, got %f (measured=%v)", identical.StereoWidth, identical.WidthMeasured)
	}

	wide := make([]float32, 2048*2)
	for i := 0; i < 2048; i++ {
		l := float32(math.Sin(2 * math.Pi * 440 * float64(i) / testRate))
		wide[i*2] = l
		wide[i*2+1] = -0.5 * l
	}
	ft, err := e.Analyze(wide, 2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ft.StereoWidth <= identical.StereoWidth {
		t.Fatalf("expected decorrelated channels to widen: %f", ft.StereoWidth)
	}
	if ft.StereoWidth < 0 || ft.StereoWidth > 1 {
		t.Fatalf("expected width within [0,1], got %f", ft.StereoWidth)
	}
}

func TestShortBufferIsZeroPadded(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	ft, err := e.Analyze(sineStereo(100, 512), 2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ft.Bass <= ft.High {
		t.Fatalf("expected padded short buffer to keep bass dominance: bass=%f high=%f", ft.Bass, ft.High)
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	if _, err := e.Analyze(nil, 2); err == nil {
		t.Fatalf("expected error for empty buffer")
	}
	if _, err := e.Analyze(make([]float32, 33), 2); err == nil {
		t.Fatalf("expected error for odd stereo length")
	}
	if _, err := e.Analyze(make([]float32, 64), 4); err == nil {
		t.Fatalf("expected error for unsupported channel count")
	}
}

func TestSilenceHasNoEnergy(t *testing.T) {
	e, err := NewExtractor(testRate, 2048)
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	ft, err := e.Analyze(make([]float32, 4096), 2)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if ft.Centroid != 0 || ft.RMS != 0 {
		t.Fatalf("expected zero centroid and RMS for silence, got %f / %f", ft.Centroid, ft.RMS)
	}
}
