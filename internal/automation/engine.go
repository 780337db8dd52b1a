//go:build !no_automation

// Package automation runs user Lua rules against tracker events.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"airwatch/internal/tracker"
)

// DryRunTimeout bounds a dry run, including its handler calls.
const DryRunTimeout = 5 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the target of airwatch.notify.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// Engine keeps one running rule per enabled script and feeds it tracker
// events.
type Engine struct {
	view     *tracker.View
	library  *Library
	notifier Notifier
	logger   *slog.Logger

	mu    sync.Mutex
	rules map[string]*rule
	unsub func()
}

// NewEngine creates an engine. Call Start to load scripts.
func NewEngine(view *tracker.View, library *Library, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		view:    view,
		library: library,
		logger:  logger.With("component", "automation"),
		rules:   make(map[string]*rule),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads every enabled script and subscribes to events. A script that
// fails to load is logged and skipped.
func (e *Engine) Start(events *tracker.EventBus) error {
	scripts, err := e.library.List()
	if err != nil {
		return err
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.start(s); err != nil {
			e.logger.Error("script not started", "id", s.ID, "err", err)
		}
	}
	e.unsub = events.OnAll(e.dispatch)
	e.logger.Info("automation started", "scripts", len(e.Running()))
	return nil
}

// Stop unsubscribes from events and stops every rule.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, r := range e.rules {
		r.stop()
		delete(e.rules, id)
	}
}

// Running returns the IDs of loaded rules, sorted.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.rules))
	for id := range e.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsRunning reports whether the script is loaded.
func (e *Engine) IsRunning(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.rules[id]
	return ok
}

// Reload re-reads a script from disk and replaces its rule. A disabled
// script is only stopped.
func (e *Engine) Reload(id string) error {
	s, err := e.library.Get(id)
	if err != nil {
		return err
	}
	e.remove(id)
	if !s.Meta.Enabled {
		return nil
	}
	return e.start(s)
}

func (e *Engine) start(s *Script) error {
	r := newRule(s, e.notifier, e.logger)
	if err := r.load(e.view); err != nil {
		return err
	}

	e.mu.Lock()
	old := e.rules[s.ID]
	e.rules[s.ID] = r
	e.mu.Unlock()
	if old != nil {
		old.stop()
	}

	go r.run()
	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

func (e *Engine) remove(id string) {
	e.mu.Lock()
	r := e.rules[id]
	delete(e.rules, id)
	e.mu.Unlock()
	if r != nil {
		r.stop()
		e.logger.Info("script stopped", "id", id)
	}
}

// dispatch runs on the tracker goroutine and only queues work.
func (e *Engine) dispatch(ev tracker.Event) {
	e.mu.Lock()
	rules := make([]*rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	e.mu.Unlock()

	for _, r := range rules {
		r.deliver(ev)
	}
}

// RunResult reports a dry run.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Handlers int      `json:"handlers"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// DryRun loads a stored script in a throwaway sandbox. See DryRunCode.
func (e *Engine) DryRun(id string) (*RunResult, error) {
	s, err := e.library.Get(id)
	if err != nil {
		return nil, err
	}
	return e.DryRunCode(s.Source), nil
}

// DryRunCode runs code in a throwaway sandbox, then calls each registered
// handler once with an event built from the first tracked device its filter
// accepts. Notifications and log lines are captured instead of delivered,
// and after callbacks run immediately.
func (e *Engine) DryRunCode(code string) *RunResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), DryRunTimeout)
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	d := &dryRun{}
	registerAPI(L, d, e.view)

	res := &RunResult{Logs: []string{}}
	err := L.DoString(code)
	for i := 0; err == nil && i < len(d.watches); i++ {
		w := d.watches[i]
		err = L.CallByParam(lua.P{Fn: w.fn, NRet: 0, Protect: true}, eventTable(L, e.sampleEvent(w)))
		res.Handlers++
	}
	for i := 0; err == nil && i < len(d.pending); i++ {
		err = L.CallByParam(lua.P{Fn: d.pending[i], NRet: 0, Protect: true})
	}

	res.Logs = append(res.Logs, d.logs...)
	res.Duration = time.Since(start).String()
	if err != nil {
		res.Error = err.Error()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Error = fmt.Sprintf("timeout after %s", DryRunTimeout)
		}
		return res
	}
	res.OK = true
	return res
}

// sampleEvent picks a tracked device for w, or a placeholder that satisfies
// its filter when none matches.
func (e *Engine) sampleEvent(w watch) tracker.Event {
	kind := w.kind
	if kind == watchAll {
		kind = tracker.EventDeviceSeen
	}
	ev := tracker.Event{Type: kind, At: time.Now()}
	if kind == tracker.EventSourceClosed {
		ev.Summary = &tracker.SourceSummary{Devices: e.view.Len()}
		return ev
	}

	for _, st := range e.view.List() {
		ev.Device = &st
		if w.filter.matches(ev) {
			break
		}
		ev.Device = nil
	}
	if ev.Device == nil {
		st := tracker.DeviceState{
			Address:      w.filter.address,
			Manufacturer: w.filter.manufacturer,
			FirstSeen:    ev.At,
			LastSeen:     ev.At,
			Sightings:    1,
		}
		if st.Address == "" {
			st.Address = "00:00:00:00:00:00"
		}
		if w.filter.hasMinSignal {
			st.Signal.Value, st.Signal.Known = w.filter.minSignal, true
		}
		ev.Device = &st
	}
	if kind == tracker.EventSignalChanged {
		prev := ev.Device.Signal
		ev.Previous = &prev
	}
	return ev
}

// dryRun collects the effects of a dry run.
type dryRun struct {
	watches []watch
	pending []*lua.LFunction
	logs    []string
}

func (d *dryRun) watch(w watch) error {
	if len(d.watches) >= maxWatches {
		return fmt.Errorf("too many handlers (max %d)", maxWatches)
	}
	d.watches = append(d.watches, w)
	return nil
}

func (d *dryRun) after(_ time.Duration, fn *lua.LFunction) {
	d.pending = append(d.pending, fn)
}

func (d *dryRun) log(level slog.Level, msg string) {
	if level == slog.LevelInfo {
		d.logs = append(d.logs, msg)
		return
	}
	d.logs = append(d.logs, "["+level.String()+"] "+msg)
}

func (d *dryRun) notify(text string) {
	d.logs = append(d.logs, "[notify] "+text)
}
