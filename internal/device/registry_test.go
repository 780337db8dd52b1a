package device

import "testing"

func observation(t *testing.T, raw string, signal int) *NetworkDevice {
	t.Helper()
	dev := mustDevice(t, raw)
	dev.SetSignalStrength(SignalOf(signal))
	return dev
}

func TestRegistryUpdateNewDeviceNotifiesOnce(t *testing.T) {
	r := NewRegistry()
	var got []*NetworkDevice
	r.OnUpdate(func(d *NetworkDevice) { got = append(got, d) })

	obs := observation(t, "80:ED:2C:D3:6C:C4", -40)
	r.Update(obs)

	if len(got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(got))
	}
	if got[0] != obs {
		t.Error("new candidate should become the authoritative instance")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistryUpdateNewDeviceWithoutSignal(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.OnUpdate(func(*NetworkDevice) { calls++ })

	r.Update(mustDevice(t, "80:ED:2C:D3:6C:C4"))
	if calls != 1 {
		t.Errorf("first sight without signal: calls = %d, want 1", calls)
	}
}

func TestRegistryUpdateMergesSignalOnly(t *testing.T) {
	r := NewRegistry()
	first := observation(t, "80:ED:2C:D3:6C:C4", -40)
	r.Update(first)

	// Same address, different manufacturer lookup: manufacturer must not change.
	second, err := NewNetworkDevice("80-ed-2c-d3-6c-c4", nil)
	if err != nil {
		t.Fatal(err)
	}
	second.SetSignalStrength(SignalOf(-35))
	r.Update(second)

	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	dev, ok := r.Get("80:ED:2C:D3:6C:C4")
	if !ok {
		t.Fatal("device not found")
	}
	if dev != first {
		t.Error("stored instance replaced")
	}
	if dev.SignalStrength() != SignalOf(-35) {
		t.Errorf("signal = %v, want -35", dev.SignalStrength())
	}
	if dev.Manufacturer() != "Apple" {
		t.Errorf("manufacturer = %q, want Apple", dev.Manufacturer())
	}
}

func TestRegistryUpdateSameSignalIsSilent(t *testing.T) {
	r := NewRegistry()
	registryCalls := 0
	r.OnUpdate(func(*NetworkDevice) { registryCalls++ })

	r.Update(observation(t, "80:ED:2C:D3:6C:C4", -40))
	dev, _ := r.Get("80:ED:2C:D3:6C:C4")
	deviceCalls := 0
	dev.OnSignalStrengthChanged(func(*NetworkDevice, Signal) { deviceCalls++ })

	r.Update(observation(t, "80:ED:2C:D3:6C:C4", -40))

	if deviceCalls != 0 {
		t.Errorf("device notifications = %d, want 0", deviceCalls)
	}
	if registryCalls != 1 {
		t.Errorf("registry notifications = %d, want 1", registryCalls)
	}
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry()
	if dev, ok := r.Get("00:00:00:00:00:00"); ok || dev != nil {
		t.Errorf("Get on empty registry = %v, %v", dev, ok)
	}
}

func TestRegistryUpdateNil(t *testing.T) {
	r := NewRegistry()
	r.Update(nil)
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistryListSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Update(observation(t, "80:ED:2C:D3:6C:C4", -40))
	r.Update(observation(t, "08:C5:E1:D3:6C:C4", -60))

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	if list[0].Address() != "80:ED:2C:D3:6C:C4" || list[1].Address() != "08:C5:E1:D3:6C:C4" {
		t.Errorf("order = %s, %s", list[0].Address(), list[1].Address())
	}

	r.Update(observation(t, "04:18:D6:8D:7E:7B", -52))
	if len(list) != 2 {
		t.Error("snapshot grew after a later update")
	}

	// Devices in the snapshot are live.
	r.Update(observation(t, "80:ED:2C:D3:6C:C4", -30))
	if list[0].SignalStrength() != SignalOf(-30) {
		t.Errorf("snapshot device signal = %v, want -30", list[0].SignalStrength())
	}
}

func TestRegistriesDoNotShareHandlers(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	aCalls, bCalls := 0, 0
	a.OnUpdate(func(*NetworkDevice) { aCalls++ })
	b.OnUpdate(func(*NetworkDevice) { bCalls++ })

	a.Update(observation(t, "80:ED:2C:D3:6C:C4", -40))
	if aCalls != 1 || bCalls != 0 {
		t.Errorf("aCalls=%d bCalls=%d, want 1 0", aCalls, bCalls)
	}
	if b.Len() != 0 {
		t.Error("registries share storage")
	}
}
