//go:build !no_automation

package automation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"airwatch/internal/device"
	"airwatch/internal/oui"
	"airwatch/internal/scan"
	"airwatch/internal/tracker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// chanNotifier hands every notification to the test.
type chanNotifier chan string

func (c chanNotifier) Notify(_ context.Context, text string) error {
	c <- text
	return nil
}

func (c chanNotifier) next(t *testing.T) string {
	t.Helper()
	select {
	case text := <-c:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
		return ""
	}
}

func (c chanNotifier) none(t *testing.T) {
	t.Helper()
	select {
	case text := <-c:
		t.Errorf("unexpected notification %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

// trackedView runs lines through a tracker and returns its view.
func trackedView(t *testing.T, lines ...string) *tracker.View {
	t.Helper()
	src := scan.NewLineSource(strings.NewReader(strings.Join(lines, "\n")+"\n"), scan.WithLogger(testLogger()))
	t.Cleanup(func() { src.Close() })
	lookup := oui.LookupFunc(func(p oui.Prefix) string {
		if p == "80:ED:2C" {
			return "Apple"
		}
		return oui.Unknown
	})
	tr := tracker.New(src, scan.NewParser(lookup), device.NewRegistry(), tracker.NewEventBus(testLogger()),
		tracker.Config{}, testLogger())
	for tr.Step(time.Second) != scan.SourceClosed {
	}
	return tr.View()
}

func startEngine(t *testing.T, scripts map[string]string) (*Engine, *tracker.EventBus, chanNotifier) {
	t.Helper()
	lib := newTestLibrary(t)
	for id, src := range scripts {
		writeScript(t, lib, id, src)
	}
	notes := make(chanNotifier, 16)
	bus := tracker.NewEventBus(testLogger())
	e := NewEngine(tracker.NewView(), lib, testLogger(), WithNotifier(notes))
	if err := e.Start(bus); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Stop)
	return e, bus, notes
}

func deviceEvent(kind, addr, manufacturer string, signal device.Signal) tracker.Event {
	return tracker.Event{
		Type: kind,
		At:   time.Now(),
		Device: &tracker.DeviceState{
			Address:      addr,
			Manufacturer: manufacturer,
			Signal:       signal,
			Sightings:    1,
		},
	}
}

func TestFilterMatches(t *testing.T) {
	apple := deviceEvent(tracker.EventDeviceSeen, "80:ED:2C:D3:6C:C4", "Apple", device.SignalOf(-45))
	quiet := deviceEvent(tracker.EventDeviceSeen, "80:ED:2C:D3:6C:C4", "Apple", device.NoSignal)
	closed := tracker.Event{Type: tracker.EventSourceClosed, Summary: &tracker.SourceSummary{}}

	tests := []struct {
		name string
		f    filter
		ev   tracker.Event
		want bool
	}{
		{"empty matches device", filter{}, apple, true},
		{"empty matches source_closed", filter{}, closed, true},
		{"address", filter{address: "80:ED:2C:D3:6C:C4"}, apple, true},
		{"other address", filter{address: "11:22:33:44:55:66"}, apple, false},
		{"manufacturer ignores case", filter{manufacturer: "apple"}, apple, true},
		{"other manufacturer", filter{manufacturer: "Samsung"}, apple, false},
		{"strong enough", filter{minSignal: -50, hasMinSignal: true}, apple, true},
		{"too weak", filter{minSignal: -40, hasMinSignal: true}, apple, false},
		{"unknown signal never passes min_signal", filter{minSignal: -90, hasMinSignal: true}, quiet, false},
		{"device filter skips source_closed", filter{manufacturer: "Apple"}, closed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.matches(tt.ev); got != tt.want {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngineDeliversMatchingEvents(t *testing.T) {
	_, bus, notes := startEngine(t, map[string]string{
		"near": `-- @name Apple nearby
airwatch.on("device_seen", {manufacturer = "Apple", min_signal = -50}, function(e)
    airwatch.notify("near " .. e.address .. " " .. e.signal)
end)
`,
		"changes": `airwatch.on("signal_changed", {address = "80-ed-2c-d3-6c-c4"}, function(e)
    airwatch.notify("moved " .. e.previous .. " -> " .. e.signal)
end)
`,
	})

	bus.Emit(deviceEvent(tracker.EventDeviceSeen, "80:ED:2C:D3:6C:C4", "Apple", device.SignalOf(-70)))
	notes.none(t)

	bus.Emit(deviceEvent(tracker.EventDeviceSeen, "80:ED:2C:D3:6C:C4", "Apple", device.SignalOf(-42)))
	if got := notes.next(t); got != "near 80:ED:2C:D3:6C:C4 -42" {
		t.Errorf("notification = %q", got)
	}

	changed := deviceEvent(tracker.EventSignalChanged, "80:ED:2C:D3:6C:C4", "Apple", device.SignalOf(-40))
	prev := device.SignalOf(-42)
	changed.Previous = &prev
	bus.Emit(changed)
	if got := notes.next(t); got != "moved -42 -> -40" {
		t.Errorf("notification = %q", got)
	}
}

func TestEngineSourceClosedAndAfter(t *testing.T) {
	_, bus, notes := startEngine(t, map[string]string{
		"closed": `airwatch.on("source_closed", function(e)
    airwatch.after(0.01, function() airwatch.notify("closed after " .. e.lines .. " lines") end)
end)
`,
	})

	bus.Emit(tracker.Event{Type: tracker.EventSourceClosed, Summary: &tracker.SourceSummary{Lines: 7}})
	if got := notes.next(t); got != "closed after 7 lines" {
		t.Errorf("notification = %q", got)
	}
}

func TestEngineStartSkipsBrokenAndDisabled(t *testing.T) {
	e, _, _ := startEngine(t, map[string]string{
		"ok":     `airwatch.on("*", function() end)`,
		"broken": `airwatch.on(`,
		"off":    "-- @enabled false\nerror('must not load')\n",
	})

	running := e.Running()
	if len(running) != 1 || running[0] != "ok" {
		t.Errorf("running = %v, want [ok]", running)
	}
}

func TestEngineReload(t *testing.T) {
	e, _, _ := startEngine(t, map[string]string{"r": `airwatch.log("v1")`})
	if !e.IsRunning("r") {
		t.Fatal("r not running")
	}

	writeScript(t, e.library, "r", "-- @enabled false\n")
	if err := e.Reload("r"); err != nil {
		t.Fatal(err)
	}
	if e.IsRunning("r") {
		t.Error("disabled script still running after reload")
	}

	writeScript(t, e.library, "r", `airwatch.log("v2")`)
	if err := e.Reload("r"); err != nil {
		t.Fatal(err)
	}
	if !e.IsRunning("r") {
		t.Error("re-enabled script not running")
	}

	if err := e.Reload("missing"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("Reload(missing) = %v, want ErrScriptNotFound", err)
	}
}

func TestDryRunUsesTrackedDevice(t *testing.T) {
	view := trackedView(t,
		"08:C5:E1:D3:6C:C4 -60",
		"80:ED:2C:D3:6C:C4 -40",
		"80:ED:2C:D3:6C:C4 -45",
	)
	e := NewEngine(view, newTestLibrary(t), testLogger())

	res := e.DryRunCode(`
airwatch.log("loaded")
airwatch.on("signal_changed", {manufacturer = "apple"}, function(e)
    airwatch.log(e.address .. " " .. e.signal .. " seen " .. e.sightings)
    airwatch.notify("hello")
    airwatch.after(60, function() airwatch.log("later", "warn") end)
end)
`)
	if !res.OK {
		t.Fatalf("dry run failed: %s", res.Error)
	}
	if res.Handlers != 1 {
		t.Errorf("handlers = %d, want 1", res.Handlers)
	}
	want := []string{"loaded", "80:ED:2C:D3:6C:C4 -45 seen 2", "[notify] hello", "[WARN] later"}
	if strings.Join(res.Logs, "|") != strings.Join(want, "|") {
		t.Errorf("logs = %q, want %q", res.Logs, want)
	}
}

func TestDryRunPlaceholderDevice(t *testing.T) {
	e := NewEngine(tracker.NewView(), newTestLibrary(t), testLogger())

	res := e.DryRunCode(`airwatch.on("device_seen", {address = "aa-bb-cc-dd-ee-ff", min_signal = -55}, function(e)
    airwatch.log(e.address .. " " .. e.signal)
end)`)
	if !res.OK {
		t.Fatalf("dry run failed: %s", res.Error)
	}
	if len(res.Logs) != 1 || res.Logs[0] != "AA:BB:CC:DD:EE:FF -55" {
		t.Errorf("logs = %q", res.Logs)
	}
}

func TestDryRunErrors(t *testing.T) {
	e := NewEngine(tracker.NewView(), newTestLibrary(t), testLogger())

	tests := []struct {
		name string
		code string
	}{
		{"os is not opened", `os.exit(1)`},
		{"io is not opened", `io.open("/etc/passwd")`},
		{"require removed", `require("x")`},
		{"dofile removed", `dofile("/etc/passwd")`},
		{"syntax", `airwatch.log(`},
		{"bad address filter", `airwatch.on("device_seen", {address = "nope"}, function() end)`},
		{"negative delay", `airwatch.after(-1, function() end)`},
		{"handler error", `airwatch.on("*", function() error("boom") end)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.DryRunCode(tt.code)
			if res.OK || res.Error == "" {
				t.Errorf("result = %+v, want error", res)
			}
		})
	}
}

func TestDryRunTimeout(t *testing.T) {
	e := NewEngine(tracker.NewView(), newTestLibrary(t), testLogger())

	res := e.DryRunCode(`while true do end`)
	if res.OK {
		t.Fatal("infinite loop should fail")
	}
	if res.Error != "timeout after 5s" {
		t.Errorf("error = %q", res.Error)
	}
}

func TestDryRunStoredScript(t *testing.T) {
	lib := newTestLibrary(t)
	writeScript(t, lib, "hello", `airwatch.log("hi")`)
	e := NewEngine(tracker.NewView(), lib, testLogger())

	res, err := e.DryRun("hello")
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || len(res.Logs) != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := e.DryRun("missing"); !errors.Is(err, ErrScriptNotFound) {
		t.Errorf("DryRun(missing) = %v", err)
	}
}
