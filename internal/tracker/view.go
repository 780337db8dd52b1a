package tracker

import (
	"sync"
	"time"

	"airwatch/internal/device"
)

// DeviceState is a value snapshot of a tracked device.
type DeviceState struct {
	Address      string        `json:"address"`
	Manufacturer string        `json:"manufacturer"`
	Signal       device.Signal `json:"signal"`
	FirstSeen    time.Time     `json:"first_seen"`
	LastSeen     time.Time     `json:"last_seen"`
	Sightings    int           `json:"sightings"`
}

// View is a concurrency-safe copy of the registry for readers that do not
// run on the tracker goroutine (HTTP handlers, MQTT callbacks, scripts).
type View struct {
	mu     sync.RWMutex
	states map[string]DeviceState
	order  []string
}

// NewView creates an empty view.
func NewView() *View {
	return &View{states: make(map[string]DeviceState)}
}

// List returns all device states in first-seen order.
func (v *View) List() []DeviceState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]DeviceState, 0, len(v.order))
	for _, addr := range v.order {
		out = append(out, v.states[addr])
	}
	return out
}

// Get returns the state for a canonical address.
func (v *View) Get(addr string) (DeviceState, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	st, ok := v.states[addr]
	return st, ok
}

// Len returns the number of devices.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.states)
}

// apply records dev's current fields and returns the previous state, if any.
func (v *View) apply(dev *device.NetworkDevice, now time.Time) (DeviceState, bool) {
	addr := dev.Address().String()

	v.mu.Lock()
	defer v.mu.Unlock()
	prev, ok := v.states[addr]
	st := prev
	if !ok {
		st = DeviceState{
			Address:      addr,
			Manufacturer: dev.Manufacturer(),
			FirstSeen:    now,
		}
		v.order = append(v.order, addr)
	}
	st.Signal = dev.SignalStrength()
	st.LastSeen = now
	v.states[addr] = st
	return prev, ok
}

// touch records one observation of addr.
func (v *View) touch(addr string, now time.Time) DeviceState {
	v.mu.Lock()
	defer v.mu.Unlock()
	st, ok := v.states[addr]
	if !ok {
		return st
	}
	st.Sightings++
	st.LastSeen = now
	v.states[addr] = st
	return st
}
