// Package telemetry carries read-only cycle snapshots and hardware faults out of the control loop.
// Publishing is fire-and-forget: the control loop must never wait on a Sink.
package telemetry

import (
	"sync"
	"sync/atomic"

	"github.com/calvinmclean/echoguide"
)

// Sink receives telemetry. Implementations used directly by the control loop must not block;
// wrap anything that can block with Buffered.
type Sink interface {
	PublishSnapshot(echoguide.Snapshot)
	PublishFault(echoguide.Fault)
}

// Noop discards everything
type Noop struct{}

var _ Sink = Noop{}

// PublishSnapshot implements Sink.
func (Noop) PublishSnapshot(echoguide.Snapshot) {}

// PublishFault implements Sink.
func (Noop) PublishFault(echoguide.Fault) {}

type multi []Sink

// Multi fans out to every sink in order
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) PublishSnapshot(s echoguide.Snapshot) {
	for _, sink := range m {
		sink.PublishSnapshot(s)
	}
}

func (m multi) PublishFault(f echoguide.Fault) {
	for _, sink := range m {
		sink.PublishFault(f)
	}
}

type item struct {
	snapshot echoguide.Snapshot
	fault    echoguide.Fault
	isFault  bool
}

// BufferedSink queues telemetry for a slower Sink and drops it when the queue is full
type BufferedSink struct {
	next    Sink
	items   chan item
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

var _ Sink = (*BufferedSink)(nil)

// Buffered starts a goroutine that drains into next. Call Close to stop it.
func Buffered(next Sink, size int) *BufferedSink {
	if size < 1 {
		size = 1
	}
	b := &BufferedSink{
		next:  next,
		items: make(chan item, size),
		done:  make(chan struct{}),
	}
	go b.drain()
	return b
}

func (b *BufferedSink) drain() {
	defer close(b.done)
	for it := range b.items {
		if it.isFault {
			b.next.PublishFault(it.fault)
		} else {
			b.next.PublishSnapshot(it.snapshot)
		}
	}
}

func (b *BufferedSink) enqueue(it item) {
	select {
	case b.items <- it:
	default:
		b.dropped.Add(1)
	}
}

// PublishSnapshot implements Sink.
func (b *BufferedSink) PublishSnapshot(s echoguide.Snapshot) {
	b.enqueue(item{snapshot: s})
}

// PublishFault implements Sink.
func (b *BufferedSink) PublishFault(f echoguide.Fault) {
	b.enqueue(item{fault: f, isFault: true})
}

// Dropped is the number of items discarded because the queue was full
func (b *BufferedSink) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops accepting telemetry and waits for queued items to drain. Nothing may publish after Close.
func (b *BufferedSink) Close() {
	b.closeOnce.Do(func() {
		close(b.items)
	})
	<-b.done
}

// Recorder keeps everything it receives in memory
type Recorder struct {
	mu        sync.Mutex
	snapshots []echoguide.Snapshot
	faults    []echoguide.Fault
}

var _ Sink = (*Recorder)(nil)

// PublishSnapshot implements Sink.
func (r *Recorder) PublishSnapshot(s echoguide.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

// PublishFault implements Sink.
func (r *Recorder) PublishFault(f echoguide.Fault) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, f)
}

// Snapshots returns a copy of the recorded snapshots
func (r *Recorder) Snapshots() []echoguide.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]echoguide.Snapshot(nil), r.snapshots...)
}

// Faults returns a copy of the recorded faults
func (r *Recorder) Faults() []echoguide.Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]echoguide.Fault(nil), r.faults...)
}
