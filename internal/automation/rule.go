//go:build !no_automation

package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"airwatch/internal/tracker"
)

const (
	// maxWatches caps airwatch.on registrations per script.
	maxWatches = 100
	// ruleQueue is the number of pending handler calls per script.
	ruleQueue = 64
	// notifyTimeout bounds one airwatch.notify delivery.
	notifyTimeout = 15 * time.Second
)

// watchAll matches every event type.
const watchAll = "*"

// filter narrows a watch to matching devices. The zero filter matches every
// event, including source_closed.
type filter struct {
	address      string
	manufacturer string
	minSignal    int
	hasMinSignal bool
}

func (f filter) matches(ev tracker.Event) bool {
	if f == (filter{}) {
		return true
	}
	st := ev.Device
	if st == nil {
		return false
	}
	if f.address != "" && st.Address != f.address {
		return false
	}
	if f.manufacturer != "" && !strings.EqualFold(st.Manufacturer, f.manufacturer) {
		return false
	}
	if f.hasMinSignal && (!st.Signal.Known || st.Signal.Value < f.minSignal) {
		return false
	}
	return true
}

// watch is one airwatch.on registration.
type watch struct {
	kind   string
	filter filter
	fn     *lua.LFunction
}

func (w watch) wants(ev tracker.Event) bool {
	return (w.kind == watchAll || w.kind == ev.Type) && w.filter.matches(ev)
}

// host receives the side effects of the airwatch Lua module. A running rule
// and a dry run handle them differently.
type host interface {
	watch(w watch) error
	after(d time.Duration, fn *lua.LFunction)
	log(level slog.Level, msg string)
	notify(text string)
}

// rule is a loaded script. Its Lua state is owned by the goroutine in run;
// other goroutines reach it through jobs.
type rule struct {
	script   *Script
	L        *lua.LState
	ctx      context.Context
	cancel   context.CancelFunc
	jobs     chan func(*lua.LState)
	notifier Notifier
	logger   *slog.Logger

	mu      sync.Mutex
	watches []watch
	timers  map[*time.Timer]struct{}
}

func newRule(s *Script, notifier Notifier, logger *slog.Logger) *rule {
	ctx, cancel := context.WithCancel(context.Background())
	r := &rule{
		script:   s,
		L:        newSandbox(),
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(chan func(*lua.LState), ruleQueue),
		notifier: notifier,
		logger:   logger.With("script", s.ID),
		timers:   make(map[*time.Timer]struct{}),
	}
	r.L.SetContext(ctx)
	return r
}

// load runs the script's top level, which registers its watches.
func (r *rule) load(view *tracker.View) error {
	registerAPI(r.L, r, view)
	if err := r.L.DoString(r.script.Source); err != nil {
		r.cancel()
		r.L.Close()
		return fmt.Errorf("load script %s: %w", r.script.ID, err)
	}
	return nil
}

// run executes queued jobs until stop is called.
func (r *rule) run() {
	defer r.L.Close()
	for {
		select {
		case <-r.ctx.Done():
			return
		case job := <-r.jobs:
			job(r.L)
		}
	}
}

func (r *rule) stop() {
	r.cancel()
	r.mu.Lock()
	for t := range r.timers {
		t.Stop()
	}
	r.timers = nil
	r.mu.Unlock()
}

// submit queues job without blocking and reports whether it was accepted.
func (r *rule) submit(job func(*lua.LState)) bool {
	if r.ctx.Err() != nil {
		return false
	}
	select {
	case r.jobs <- job:
		return true
	default:
		r.logger.Warn("script busy, dropping call")
		return false
	}
}

// deliver queues every matching handler for ev.
func (r *rule) deliver(ev tracker.Event) {
	r.mu.Lock()
	var fns []*lua.LFunction
	for _, w := range r.watches {
		if w.wants(ev) {
			fns = append(fns, w.fn)
		}
	}
	r.mu.Unlock()

	for _, fn := range fns {
		r.submit(func(L *lua.LState) {
			r.call(L, fn, eventTable(L, ev))
		})
	}
}

func (r *rule) call(L *lua.LState, fn *lua.LFunction, args ...lua.LValue) {
	err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	if err != nil && r.ctx.Err() == nil {
		r.logger.Error("script handler failed", "err", err)
	}
}

func (r *rule) watch(w watch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.watches) >= maxWatches {
		return fmt.Errorf("too many handlers (max %d)", maxWatches)
	}
	r.watches = append(r.watches, w)
	return nil
}

func (r *rule) after(d time.Duration, fn *lua.LFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timers == nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		delete(r.timers, t)
		r.mu.Unlock()
		r.submit(func(L *lua.LState) { r.call(L, fn) })
	})
	r.timers[t] = struct{}{}
}

func (r *rule) log(level slog.Level, msg string) {
	r.logger.Log(r.ctx, level, msg)
}

func (r *rule) notify(text string) {
	if r.notifier == nil {
		r.logger.Warn("notify called but no notifier is configured")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := r.notifier.Notify(ctx, text); err != nil {
			r.logger.Error("notify failed", "err", err)
		}
	}()
}
