//go:build !no_automation

package automation

import (
	"log/slog"
	"time"

	lua "github.com/yuin/gopher-lua"

	"airwatch/internal/device"
	"airwatch/internal/tracker"
)

// registerAPI installs the airwatch global:
//
//	airwatch.on(type, [filter], fn)   type is an event type or "*"
//	airwatch.after(seconds, fn)
//	airwatch.log(msg, [level])
//	airwatch.notify(msg)
//	airwatch.devices()
//	airwatch.device(address)
//
// filter keys: address, manufacturer, min_signal.
func registerAPI(L *lua.LState, h host, view *tracker.View) {
	L.SetGlobal("airwatch", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"on": func(L *lua.LState) int {
			w := watch{kind: L.CheckString(1)}
			switch L.GetTop() {
			case 2:
				w.fn = L.CheckFunction(2)
			default:
				w.filter = checkFilter(L, 2)
				w.fn = L.CheckFunction(3)
			}
			if err := h.watch(w); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"after": func(L *lua.LState) int {
			secs := float64(L.CheckNumber(1))
			fn := L.CheckFunction(2)
			if secs < 0 {
				L.ArgError(1, "delay must not be negative")
			}
			h.after(time.Duration(secs*float64(time.Second)), fn)
			return 0
		},
		"log": func(L *lua.LState) int {
			msg := L.CheckString(1)
			h.log(logLevel(L.OptString(2, "info")), msg)
			return 0
		},
		"notify": func(L *lua.LState) int {
			h.notify(L.CheckString(1))
			return 0
		},
		"devices": func(L *lua.LState) int {
			states := view.List()
			t := L.CreateTable(len(states), 0)
			for _, st := range states {
				t.Append(deviceTable(L, st))
			}
			L.Push(t)
			return 1
		},
		"device": func(L *lua.LState) int {
			addr, err := device.ParseAddress(L.CheckString(1))
			if err != nil {
				L.Push(lua.LNil)
				return 1
			}
			st, ok := view.Get(addr.String())
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(deviceTable(L, st))
			return 1
		},
	}))
}

// checkFilter reads a filter table. Addresses use the same grammar as the
// scanner feed; a malformed one is an argument error.
func checkFilter(L *lua.LState, n int) filter {
	t := L.CheckTable(n)
	var f filter
	if v := t.RawGetString("address"); v != lua.LNil {
		addr, err := device.ParseAddress(v.String())
		if err != nil {
			L.ArgError(n, err.Error())
		}
		f.address = addr.String()
	}
	if v := t.RawGetString("manufacturer"); v != lua.LNil {
		f.manufacturer = v.String()
	}
	if v, ok := t.RawGetString("min_signal").(lua.LNumber); ok {
		f.minSignal = int(v)
		f.hasMinSignal = true
	}
	return f
}

func logLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
