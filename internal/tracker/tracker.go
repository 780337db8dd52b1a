// Package tracker runs the consumer side of the scan pipeline: it polls a
// line source, parses observations, merges them into the device registry and
// turns registry changes into events.
package tracker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"airwatch/internal/device"
	"airwatch/internal/scan"
)

// DefaultPollInterval bounds each wait on the line source.
const DefaultPollInterval = 100 * time.Millisecond

// LineReader is the consumer side of a scan.LineSource.
type LineReader interface {
	ReadLine(timeout time.Duration) (string, scan.ReadStatus)
	Err() error
}

// Config holds tracker settings.
type Config struct {
	PollInterval time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Stats are running counters exposed for status reporting.
type Stats struct {
	Lines        uint64 `json:"lines"`
	Observations uint64 `json:"observations"`
	Devices      int    `json:"devices"`
	SourceClosed bool   `json:"source_closed"`
}

// Tracker owns the registry. Step and Run must be called from one goroutine;
// everything else is safe for concurrent use.
type Tracker struct {
	source   LineReader
	parser   *scan.Parser
	registry *device.Registry
	events   *EventBus
	view     *View
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger

	// pending is the change recorded by handleUpdate during the current
	// Step. It is emitted once the sighting count is updated.
	pending *Event

	lines        atomic.Uint64
	observations atomic.Uint64
	closed       atomic.Bool
}

// New creates a tracker and subscribes it to registry updates.
func New(source LineReader, parser *scan.Parser, registry *device.Registry, events *EventBus, cfg Config, logger *slog.Logger, opts ...Option) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	t := &Tracker{
		source:   source,
		parser:   parser,
		registry: registry,
		events:   events,
		view:     NewView(),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("component", "tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	registry.OnUpdate(t.handleUpdate)
	return t
}

// View returns the concurrency-safe device view.
func (t *Tracker) View() *View { return t.view }

// Events returns the event bus.
func (t *Tracker) Events() *EventBus { return t.events }

// Stats returns the current counters.
func (t *Tracker) Stats() Stats {
	return Stats{
		Lines:        t.lines.Load(),
		Observations: t.observations.Load(),
		Devices:      t.view.Len(),
		SourceClosed: t.closed.Load(),
	}
}

// Run polls the source until ctx is cancelled or the source closes. It
// returns nil on cancellation or clean end of stream, otherwise the error
// that ended the source.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("tracker started", "poll_interval", t.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker stopped")
			return nil
		default:
		}

		if t.Step(t.cfg.PollInterval) == scan.SourceClosed {
			return t.sourceClosed()
		}
	}
}

// Step waits up to timeout for one line and processes it.
func (t *Tracker) Step(timeout time.Duration) scan.ReadStatus {
	line, status := t.source.ReadLine(timeout)
	if status != scan.LineReady {
		return status
	}
	t.lines.Add(1)

	obs, ok := t.parser.Parse(line)
	if !ok {
		return status
	}
	t.observations.Add(1)

	t.registry.Update(obs)
	st := t.view.touch(obs.Address().String(), t.now())

	if ev := t.pending; ev != nil {
		t.pending = nil
		ev.Device = &st
		t.events.Emit(*ev)
	}
	return status
}

func (t *Tracker) sourceClosed() error {
	t.closed.Store(true)
	err := t.source.Err()

	summary := &SourceSummary{
		Lines:   t.lines.Load(),
		Devices: t.view.Len(),
	}
	if err != nil {
		summary.Error = err.Error()
		t.logger.Error("line source failed", "err", err)
	} else {
		t.logger.Info("line source closed", "lines", summary.Lines, "devices", summary.Devices)
	}
	t.events.Emit(Event{Type: EventSourceClosed, At: t.now(), Summary: summary})
	return err
}

// handleUpdate runs on the tracker goroutine for every registry change.
func (t *Tracker) handleUpdate(dev *device.NetworkDevice) {
	now := t.now()
	prev, known := t.view.apply(dev, now)

	addr := dev.Address().String()
	signal := dev.SignalStrength()
	ev := &Event{Type: EventDeviceSeen, At: now}
	if known {
		ev.Type = EventSignalChanged
		ev.Previous = &prev.Signal
		t.logger.Debug("signal changed", "address", addr, "signal", signal, "previous", prev.Signal)
	} else {
		t.logger.Info("device seen", "address", addr, "manufacturer", dev.Manufacturer(), "signal", signal)
	}
	t.pending = ev
}
