package coupling

import "sync"

// outbox serializes fire-and-forget outbound renderer calls on its own
// goroutine so a slow or failed call never stalls a coupling tick. A full
// or closed outbox drops the call and counts it rather than blocking.
type outbox struct {
	calls    chan func() error
	done     chan struct{}
	counters *healthCounters
	logf     func(format string, args ...any)

	mu     sync.Mutex
	closed bool
}

func newOutbox(size int, counters *healthCounters, logf func(string, ...any)) *outbox {
	if size < 1 {
		size = 64
	}
	o := &outbox{
		calls:    make(chan func() error, size),
		done:     make(chan struct{}),
		counters: counters,
		logf:     logf,
	}
	go o.drain()
	return o
}

func (o *outbox) drain() {
	defer close(o.done)
	for call := range o.calls {
		if err := call(); err != nil {
			o.counters.rendererErrors.Add(1)
			if o.logf != nil {
				o.logf("renderer call failed: %v", err)
			}
		}
	}
}

// enqueue hands a call to the drain goroutine without blocking. The closed
// check and the channel send share the mutex so a call racing close can
// never hit a closed channel.
func (o *outbox) enqueue(call func() error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.drop("outbox closed, dropping renderer call")
		return
	}
	select {
	case o.calls <- call:
		o.mu.Unlock()
	default:
		o.mu.Unlock()
		o.drop("outbox full, dropping renderer call")
	}
}

func (o *outbox) drop(msg string) {
	o.counters.droppedUpdates.Add(1)
	if o.logf != nil {
		o.logf(msg)
	}
}

// close stops accepting calls and waits for in-flight ones to finish or
// fail on their own. Safe to call more than once.
func (o *outbox) close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.calls)
	}
	o.mu.Unlock()
	<-o.done
}
