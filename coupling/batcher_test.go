package coupling

import (
	"sync"
	"testing"
	"time"
)

type updateRecorder struct {
	mu    sync.Mutex
	calls []map[string]float64
}

func (r *updateRecorder) send(updates map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, updates)
}

func (r *updateRecorder) snapshot() []map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]float64, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestBatcherCollapsesWritesIntoOneCall(t *testing.T) {
	rec := &updateRecorder{}
	b := NewBatcher(20*time.Millisecond, rec.send)

	b.Queue("renderer.rotationXW", 0.1)
	b.Queue("renderer.rotationYW", 0.2)
	b.Queue("renderer.rotationZW", 0.3)
	b.Queue("renderer.colorHue", 120)
	b.Queue("renderer.brightness", 0.5)
	b.Queue("renderer.brightness", 0.9) // last write wins

	time.Sleep(80 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one outbound call, got %d", len(calls))
	}
	if len(calls[0]) != 5 {
		t.Fatalf("expected 5 keys in the batch, got %d", len(calls[0]))
	}
	if calls[0]["renderer.brightness"] != 0.9 {
		t.Fatalf("expected latest value 0.9, got %f", calls[0]["renderer.brightness"])
	}
	if b.PendingCount() != 0 {
		t.Fatalf("expected empty pending table after flush, got %d", b.PendingCount())
	}
}

func TestBatcherFlushNowBypassesTimer(t *testing.T) {
	rec := &updateRecorder{}
	b := NewBatcher(time.Hour, rec.send)

	b.Queue("renderer.geometry", 3)
	b.FlushNow()

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected immediate flush, got %d calls", len(calls))
	}
	if b.PendingCount() != 0 {
		t.Fatalf("expected cleared pending table, got %d", b.PendingCount())
	}
}

func TestBatcherIdleWithoutWrites(t *testing.T) {
	rec := &updateRecorder{}
	b := NewBatcher(5*time.Millisecond, rec.send)

	b.FlushNow()
	time.Sleep(20 * time.Millisecond)
	if calls := rec.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no outbound calls without writes, got %d", len(calls))
	}
}

func TestBatcherRearmsPerFrame(t *testing.T) {
	rec := &updateRecorder{}
	b := NewBatcher(10*time.Millisecond, rec.send)

	b.Queue("renderer.brightness", 0.1)
	time.Sleep(40 * time.Millisecond)
	b.Queue("renderer.brightness", 0.2)
	time.Sleep(40 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected one call per frame with writes, got %d", len(calls))
	}
	if b.Flushes() != 2 {
		t.Fatalf("expected flush counter 2, got %d", b.Flushes())
	}
}
