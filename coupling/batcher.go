package coupling

import (
	"sync"
	"time"
)

// DefaultFlushInterval is one frame at ~60 fps.
const DefaultFlushInterval = 16 * time.Millisecond

// Batcher collapses many parameter writes per frame into one outbound call.
// Writes within a frame are last-write-wins per key; the first write of a
// frame arms a single-shot flush timer and on expiry the whole pending
// table goes out as one call.
type Batcher struct {
	mu       sync.Mutex
	interval time.Duration
	pending  map[string]float64
	timer    *time.Timer
	send     func(map[string]float64)

	flushes uint64
}

// NewBatcher creates a batcher delivering to send once per flush interval.
func NewBatcher(interval time.Duration, send func(map[string]float64)) *Batcher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Batcher{
		interval: interval,
		pending:  make(map[string]float64),
		send:     send,
	}
}

// Queue records a parameter write. The value delivered at flush time is the
// latest one queued for the key.
func (b *Batcher) Queue(key string, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arm := len(b.pending) == 0
	b.pending[key] = value
	if !arm {
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.timerFlush)
	} else {
		b.timer.Reset(b.interval)
	}
}

func (b *Batcher) timerFlush() {
	b.flush(false)
}

// FlushNow sends any pending writes immediately, bypassing the frame timer.
// Meant for critical one-off writes; steady-state numeric writes should go
// through Queue.
func (b *Batcher) FlushNow() {
	b.flush(true)
}

func (b *Batcher) flush(cancelTimer bool) {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	if cancelTimer && b.timer != nil {
		b.timer.Stop()
	}
	out := b.pending
	b.pending = make(map[string]float64)
	b.flushes++
	send := b.send
	b.mu.Unlock()

	if send != nil {
		send(out)
	}
}

// PendingCount returns the number of keys awaiting the next flush.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flushes returns how many outbound calls the batcher has produced.
func (b *Batcher) Flushes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushes
}

// Stop cancels a pending flush timer without sending.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
