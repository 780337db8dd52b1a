package tracker

import (
	"log/slog"
	"os"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEventBusOnAndOnAll(t *testing.T) {
	eb := NewEventBus(quietLogger())

	var order []string
	eb.On(EventDeviceSeen, func(Event) { order = append(order, "seen1") })
	eb.On(EventSignalChanged, func(Event) { order = append(order, "changed") })
	eb.On(EventDeviceSeen, func(Event) { order = append(order, "seen2") })
	eb.OnAll(func(e Event) { order = append(order, "all:"+e.Type) })

	eb.Emit(Event{Type: EventDeviceSeen})

	want := []string{"seen1", "seen2", "all:device_seen"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(quietLogger())
	calls := 0
	unsub := eb.On(EventDeviceSeen, func(Event) { calls++ })
	unsubAll := eb.OnAll(func(Event) { calls++ })

	eb.Emit(Event{Type: EventDeviceSeen})
	unsub()
	unsubAll()
	eb.Emit(Event{Type: EventDeviceSeen})

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestEventBusRecoversPanic(t *testing.T) {
	eb := NewEventBus(quietLogger())
	reached := false
	eb.On(EventDeviceSeen, func(Event) { panic("boom") })
	eb.On(EventDeviceSeen, func(Event) { reached = true })

	eb.Emit(Event{Type: EventDeviceSeen})

	if !reached {
		t.Error("handler after a panicking handler was not called")
	}
}
