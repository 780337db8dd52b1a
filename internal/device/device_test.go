package device

import (
	"encoding/json"
	"errors"
	"testing"

	"airwatch/internal/oui"
)

func testLookup() oui.Lookup {
	return oui.LookupFunc(func(p oui.Prefix) string {
		switch p {
		case "80:ED:2C":
			return "Apple"
		case "08:C5:E1":
			return "Samsung Electro-Mechanics(Thailand)"
		}
		return oui.Unknown
	})
}

func mustDevice(t *testing.T, raw string) *NetworkDevice {
	t.Helper()
	dev, err := NewNetworkDevice(raw, testLookup())
	if err != nil {
		t.Fatal(err)
	}
	return dev
}

func TestNewNetworkDevice(t *testing.T) {
	iphone := mustDevice(t, "80:ED:2C:D3:6C:C4")
	if iphone.Address() != "80:ED:2C:D3:6C:C4" {
		t.Errorf("address = %q", iphone.Address())
	}
	if iphone.Manufacturer() != "Apple" {
		t.Errorf("manufacturer = %q, want Apple", iphone.Manufacturer())
	}
	if iphone.SignalStrength().Known {
		t.Error("new device should have no signal")
	}

	samsung := mustDevice(t, "08-C5-E1-D3-6C-C4")
	if samsung.Address() != "08:C5:E1:D3:6C:C4" {
		t.Errorf("address = %q", samsung.Address())
	}
	if samsung.Manufacturer() != "Samsung Electro-Mechanics(Thailand)" {
		t.Errorf("manufacturer = %q", samsung.Manufacturer())
	}
}

func TestNewNetworkDeviceNilLookup(t *testing.T) {
	dev, err := NewNetworkDevice("AA:BB:CC:DD:EE:FF", nil)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Manufacturer() != oui.Unknown {
		t.Errorf("manufacturer = %q, want %q", dev.Manufacturer(), oui.Unknown)
	}
}

func TestNewNetworkDeviceInvalid(t *testing.T) {
	_, err := NewNetworkDevice("not-a-mac", testLookup())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Input != "not-a-mac" {
		t.Errorf("Input = %q", verr.Input)
	}
}

func TestSetSignalStrengthNotifies(t *testing.T) {
	dev := mustDevice(t, "80:ED:2C:D3:6C:C4")

	type call struct {
		signal   Signal
		previous Signal
	}
	var calls []call
	dev.OnSignalStrengthChanged(func(d *NetworkDevice, prev Signal) {
		if d != dev {
			t.Error("handler got a different device")
		}
		calls = append(calls, call{d.SignalStrength(), prev})
	})

	dev.SetSignalStrength(SignalOf(-40)) // absent -> present
	dev.SetSignalStrength(SignalOf(-40)) // no-op
	dev.SetSignalStrength(SignalOf(-35))
	dev.SetSignalStrength(NoSignal)

	want := []call{
		{SignalOf(-40), NoSignal},
		{SignalOf(-35), SignalOf(-40)},
		{NoSignal, SignalOf(-35)},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %d, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestSignalHandlersRunInOrder(t *testing.T) {
	dev := mustDevice(t, "80:ED:2C:D3:6C:C4")
	var order []int
	for i := 1; i <= 3; i++ {
		dev.OnSignalStrengthChanged(func(*NetworkDevice, Signal) { order = append(order, i) })
	}
	dev.SetSignalStrength(SignalOf(-50))
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestHandlersArePerInstance(t *testing.T) {
	a := mustDevice(t, "80:ED:2C:D3:6C:C4")
	b := mustDevice(t, "08:C5:E1:D3:6C:C4")

	var aCalls, bCalls int
	a.OnSignalStrengthChanged(func(*NetworkDevice, Signal) { aCalls++ })
	b.OnSignalStrengthChanged(func(*NetworkDevice, Signal) { bCalls++ })

	a.SetSignalStrength(SignalOf(-60))
	if aCalls != 1 || bCalls != 0 {
		t.Errorf("after a change: aCalls=%d bCalls=%d, want 1 0", aCalls, bCalls)
	}
}

func TestSignalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Signal `json:"a"`
		B Signal `json:"b"`
	}{SignalOf(-52), NoSignal})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":-52,"b":null}` {
		t.Errorf("json = %s", data)
	}

	var got struct {
		A Signal `json:"a"`
		B Signal `json:"b"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.A != SignalOf(-52) || got.B != NoSignal {
		t.Errorf("unmarshal = %+v", got)
	}
}

func TestSignalPtr(t *testing.T) {
	if NoSignal.Ptr() != nil {
		t.Error("NoSignal.Ptr() should be nil")
	}
	if p := SignalOf(-7).Ptr(); p == nil || *p != -7 {
		t.Errorf("SignalOf(-7).Ptr() = %v", p)
	}
}
