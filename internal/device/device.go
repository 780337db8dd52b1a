// Package device holds the network device entity and the registry that
// deduplicates observations by hardware address.
//
// Nothing in this package locks. A device and its registry belong to a single
// consumer goroutine; other goroutines read snapshots published elsewhere.
package device

import (
	"airwatch/internal/oui"
)

// SignalHandler is called after a device's signal strength changes.
// previous is the value before the change and may be absent.
type SignalHandler func(dev *NetworkDevice, previous Signal)

// NetworkDevice is a physical device with WiFi capability, such as a phone.
type NetworkDevice struct {
	address      Address
	manufacturer string
	signal       Signal
	onSignal     []SignalHandler
}

// NewNetworkDevice parses raw and resolves the manufacturer once via lookup.
// A nil lookup resolves every device to oui.Unknown.
func NewNetworkDevice(raw string, lookup oui.Lookup) (*NetworkDevice, error) {
	addr, err := ParseAddress(raw)
	if err != nil {
		return nil, err
	}
	mfr := oui.Unknown
	if lookup != nil {
		mfr = lookup.Lookup(addr.OUI())
	}
	return &NetworkDevice{address: addr, manufacturer: mfr}, nil
}

// Address returns the canonical hardware address.
func (d *NetworkDevice) Address() Address { return d.address }

// Manufacturer returns the name resolved at construction.
func (d *NetworkDevice) Manufacturer() string { return d.manufacturer }

// SignalStrength returns the current signal, possibly absent.
func (d *NetworkDevice) SignalStrength() Signal { return d.signal }

// SetSignalStrength stores s and notifies subscribers in registration order.
// Setting the current value again does nothing.
func (d *NetworkDevice) SetSignalStrength(s Signal) {
	if d.signal == s {
		return
	}
	previous := d.signal
	d.signal = s
	for _, h := range d.onSignal {
		h(d, previous)
	}
}

// OnSignalStrengthChanged subscribes h to signal changes on this device.
func (d *NetworkDevice) OnSignalStrengthChanged(h SignalHandler) {
	d.onSignal = append(d.onSignal, h)
}
