package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking. Event types listed in MustDeliver
	// still wait for buffer space.
	DropIfFull  bool
	MustDeliver []string
}

// Dispatcher forwards events to a sink from a single goroutine, so the sink
// sees them in emission order.
type Dispatcher struct {
	sink        Sink
	dropIfFull  bool
	mustDeliver map[string]struct{}

	queue   chan Event
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
	mu        sync.Mutex
	dropsBy   map[string]uint64
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
// Every method is safe on a nil *Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:        sink,
		dropIfFull:  cfg.DropIfFull,
		mustDeliver: make(map[string]struct{}, len(cfg.MustDeliver)),
		queue:       make(chan Event, size),
		stop:        make(chan struct{}),
		dropsBy:     map[string]uint64{},
	}
	for _, t := range cfg.MustDeliver {
		d.mustDeliver[t] = struct{}{}
	}
	d.stopped.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.stopped.Done()
	for {
		select {
		case ev := <-d.queue:
			d.forward(ev)
		case <-d.stop:
			// Close waits for whatever is already queued.
			for len(d.queue) > 0 {
				d.forward(<-d.queue)
			}
			return
		}
	}
}

func (d *Dispatcher) forward(ev Event) {
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit queues event. In drop mode an ordinary event is counted as dropped
// when the buffer is full; a MustDeliver event, or any event in blocking
// mode, waits for space until ctx is done or the dispatcher closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, critical := d.mustDeliver[event.EventType]; d.dropIfFull && !critical {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	case <-d.stop:
	}
}

func (d *Dispatcher) drop(eventType string) {
	d.dropped.Add(1)
	d.mu.Lock()
	d.dropsBy[eventType]++
	d.mu.Unlock()
}

// Close stops accepting events and drains what is already queued.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// DroppedByType returns a copy of the per event type drop counts.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	out := map[string]uint64{}
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.dropsBy {
		out[k] = v
	}
	return out
}
