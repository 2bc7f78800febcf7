package goRecovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// auditDispatcher hands audit events to the sink from a single goroutine so
// the recovery flow never waits on sink I/O. Events recording a credential
// change are never dropped: with DropIfFull they still wait for room,
// bounded by the request context.
type auditDispatcher struct {
	sink       AuditSink
	logger     Logger
	dropIfFull bool

	queue    chan AuditEvent
	stop     chan struct{}
	stopped  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup

	dropped     atomic.Uint64
	sinkPanics  atomic.Uint64
	dropMu      sync.Mutex
	droppedByEv map[string]uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger Logger) *auditDispatcher {
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

	d := &auditDispatcher{
		sink:        sink,
		logger:      logger,
		dropIfFull:  cfg.DropIfFull,
		queue:       make(chan AuditEvent, size),
		stop:        make(chan struct{}),
		droppedByEv: make(map[string]uint64),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

// credentialEvent reports whether eventType records a password change.
func credentialEvent(eventType string) bool {
	return eventType == auditEventPasswordSet || eventType == auditEventPasswordGenerated
}

func (d *auditDispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

func (d *auditDispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver shields the dispatcher goroutine from a panicking sink.
func (d *auditDispatcher) deliver(ev AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.sinkPanics.Add(1)
			if d.logger != nil {
				_ = d.logger.Output(2, logPrefix+fmt.Sprintf("audit sink panic on %s: %v", ev.EventType, r))
			}
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. A full buffer drops the event when DropIfFull is set,
// unless it is a credential event; otherwise Emit waits until there is
// room, ctx is done or the dispatcher closes.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.stopped.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.dropIfFull && !credentialEvent(ev.EventType) {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.countDrop(ev.EventType)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-d.stop:
	case <-ctx.Done():
		d.countDrop(ev.EventType)
	}
}

func (d *auditDispatcher) countDrop(eventType string) {
	d.dropped.Add(1)
	d.dropMu.Lock()
	d.droppedByEv[eventType]++
	d.dropMu.Unlock()
}

// Close delivers what is still queued and stops the goroutine.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByEvent returns a copy of the per-event drop counts.
func (d *auditDispatcher) DroppedByEvent() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	for k, v := range d.droppedByEv {
		out[k] = v
	}
	return out
}

// SinkPanics counts events lost because the sink panicked.
func (d *auditDispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}
