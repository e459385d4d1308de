package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/costmap/internal/costmap/l1packets"
	"github.com/banshee-data/costmap/internal/monitoring"
	"github.com/banshee-data/costmap/internal/timeutil"
)

// DefaultQueueSize is the dispatcher queue capacity when none is given.
const DefaultQueueSize = 64

// Handler processes one message at a time.
type Handler interface {
	Handle(msg l1packets.Message) error
}

// Dispatcher feeds messages to a Handler from a single goroutine. Producers
// never block: a full queue drops the message and counts it, except for a
// save request, which is deferred until everything queued ahead of it has
// been handled. Deferred saves coalesce.
type Dispatcher struct {
	handler Handler
	queue   chan l1packets.Message
	stats   *Stats

	mu        sync.Mutex
	accepted  uint64 // messages sent on queue
	saveAfter uint64 // deferred save is due once this many are handled; 0 when none

	// StatsInterval enables periodic stats logging when positive.
	StatsInterval time.Duration
	Clock         timeutil.Clock
}

// NewDispatcher returns a dispatcher with a queue of the given size.
func NewDispatcher(h Handler, size int, stats *Stats) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Dispatcher{
		handler: h,
		queue:   make(chan l1packets.Message, size),
		stats:   stats,
		Clock:   timeutil.RealClock{},
	}
}

// Enqueue offers msg to the queue and reports whether it was accepted.
func (d *Dispatcher) Enqueue(msg l1packets.Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case d.queue <- msg:
		d.accepted++
		return true
	default:
	}
	if save, ok := msg.(*l1packets.SaveCommand); ok && save.Data {
		d.saveAfter = d.accepted
		d.stats.addDeferredSave()
		monitoring.Debugf("dispatcher queue full, deferring save")
		return true
	}
	d.stats.addDropped()
	monitoring.Debugf("dispatcher queue full, dropping %s", msg.Type())
	return false
}

// takeDeferredSave reports whether a deferred save is due after handled
// messages and clears it.
func (d *Dispatcher) takeDeferredSave(handled uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saveAfter == 0 || handled < d.saveAfter {
		return false
	}
	d.saveAfter = 0
	return true
}

// PointCloud enqueues a sensor batch.
func (d *Dispatcher) PointCloud(msg *l1packets.CustomMsg) bool { return d.Enqueue(msg) }

// Pose enqueues a pose sample.
func (d *Dispatcher) Pose(msg *l1packets.NavState) bool { return d.Enqueue(msg) }

// Save enqueues a save command.
func (d *Dispatcher) Save(flag bool) bool { return d.Enqueue(&l1packets.SaveCommand{Data: flag}) }

// Pending returns the number of queued messages.
func (d *Dispatcher) Pending() int { return len(d.queue) }

// Run handles queued messages in arrival order until ctx is cancelled.
// Messages still queued at cancellation, and any deferred save, are
// discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if d.StatsInterval > 0 {
		t := d.Clock.NewTicker(d.StatsInterval)
		defer t.Stop()
		tick = t.C()
	}

	var handled uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			d.stats.LogStats()
		case msg := <-d.queue:
			d.handle(msg)
			handled++
			if d.takeDeferredSave(handled) {
				d.handle(&l1packets.SaveCommand{Data: true})
			}
		}
	}
}

func (d *Dispatcher) handle(msg l1packets.Message) {
	if err := d.handler.Handle(msg); err != nil {
		d.stats.addRejected()
		monitoring.Warnf("dispatcher: %v", err)
	}
}
