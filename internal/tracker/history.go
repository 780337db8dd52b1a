package tracker

import (
	"context"
	"log/slog"
	"sync/atomic"

	"airwatch/internal/store"
)

// DefaultHistoryQueue is the number of sightings buffered for the history
// writer before new ones are dropped.
const DefaultHistoryQueue = 4096

// maxHistoryBatch bounds the sightings written per store transaction.
const maxHistoryBatch = 256

// Recorder persists device events on its own goroutine, so the tracker never
// waits on disk. Record never blocks; when the queue is full the sighting is
// dropped and counted.
type Recorder struct {
	store   store.Store
	queue   chan *store.Sighting
	logger  *slog.Logger
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder creates a recorder with room for size queued sightings.
func NewRecorder(s store.Store, size int, logger *slog.Logger) *Recorder {
	if size <= 0 {
		size = DefaultHistoryQueue
	}
	return &Recorder{
		store:  s,
		queue:  make(chan *store.Sighting, size),
		logger: logger.With("component", "history"),
	}
}

// Attach queues a sighting for every device_seen and signal_changed event.
// Returns an unsubscribe function.
func (r *Recorder) Attach(events *EventBus) func() {
	handler := func(e Event) {
		if e.Device == nil {
			return
		}
		r.Record(&store.Sighting{
			Address: e.Device.Address,
			Signal:  e.Device.Signal.Ptr(),
			At:      e.At,
		})
	}
	unsubSeen := events.On(EventDeviceSeen, handler)
	unsubChanged := events.On(EventSignalChanged, handler)
	return func() {
		unsubSeen()
		unsubChanged()
	}
}

// Record queues sg for writing and reports whether it was accepted.
func (r *Recorder) Record(sg *store.Sighting) bool {
	select {
	case r.queue <- sg:
		return true
	default:
		if n := r.dropped.Add(1); n == 1 || n%1000 == 0 {
			r.logger.Warn("history queue full, dropping sightings", "dropped", n)
		}
		return false
	}
}

// Dropped returns how many sightings were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns how many sightings reached the store.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Run writes queued sightings in batches until ctx is cancelled, then
// flushes whatever is still queued.
func (r *Recorder) Run(ctx context.Context) error {
	batch := make([]*store.Sighting, 0, maxHistoryBatch)
	for {
		select {
		case <-ctx.Done():
			for {
				batch = r.collect(batch[:0])
				if len(batch) == 0 {
					return nil
				}
				r.flush(batch)
			}
		case sg := <-r.queue:
			batch = r.collect(append(batch[:0], sg))
			r.flush(batch)
		}
	}
}

// collect appends queued sightings to batch without blocking.
func (r *Recorder) collect(batch []*store.Sighting) []*store.Sighting {
	for len(batch) < maxHistoryBatch {
		select {
		case sg := <-r.queue:
			batch = append(batch, sg)
		default:
			return batch
		}
	}
	return batch
}

func (r *Recorder) flush(batch []*store.Sighting) {
	if err := r.store.Append(batch...); err != nil {
		r.logger.Error("write history", "err", err, "sightings", len(batch))
		return
	}
	r.written.Add(uint64(len(batch)))
}
