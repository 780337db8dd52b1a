//go:build !no_automation

package automation

import (
	lua "github.com/yuin/gopher-lua"

	"airwatch/internal/tracker"
)

// Rules only get the pure libraries; os, io, package and debug are never
// opened.
var sandboxLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// Base library functions that reach the filesystem or load code.
var sandboxBlocked = []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "print"}

func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range sandboxLibs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range sandboxBlocked {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// deviceTable converts a device snapshot. signal is nil when unknown.
func deviceTable(L *lua.LState, st tracker.DeviceState) *lua.LTable {
	t := L.CreateTable(0, 6)
	t.RawSetString("address", lua.LString(st.Address))
	t.RawSetString("manufacturer", lua.LString(st.Manufacturer))
	if st.Signal.Known {
		t.RawSetString("signal", lua.LNumber(st.Signal.Value))
	}
	t.RawSetString("sightings", lua.LNumber(st.Sightings))
	t.RawSetString("first_seen", lua.LNumber(st.FirstSeen.Unix()))
	t.RawSetString("last_seen", lua.LNumber(st.LastSeen.Unix()))
	return t
}

// eventTable flattens an event for a handler: the device fields plus type,
// at and, for signal_changed, previous.
func eventTable(L *lua.LState, ev tracker.Event) *lua.LTable {
	var t *lua.LTable
	if ev.Device != nil {
		t = deviceTable(L, *ev.Device)
	} else {
		t = L.NewTable()
	}
	t.RawSetString("type", lua.LString(ev.Type))
	if !ev.At.IsZero() {
		t.RawSetString("at", lua.LNumber(ev.At.Unix()))
	}
	if ev.Previous != nil && ev.Previous.Known {
		t.RawSetString("previous", lua.LNumber(ev.Previous.Value))
	}
	if s := ev.Summary; s != nil {
		t.RawSetString("lines", lua.LNumber(s.Lines))
		t.RawSetString("devices", lua.LNumber(s.Devices))
		if s.Error != "" {
			t.RawSetString("error", lua.LString(s.Error))
		}
	}
	return t
}
