package device

// UpdateHandler is called when a registry device is added or its signal changes.
type UpdateHandler func(dev *NetworkDevice)

// Registry keeps a single authoritative NetworkDevice per address.
type Registry struct {
	devices  map[Address]*NetworkDevice
	order    []Address
	onUpdate []UpdateHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[Address]*NetworkDevice)}
}

// Update merges candidate into the registry. For a known address only the
// signal strength is copied, so notification happens through the stored
// device. A new address is stored as-is and always reported once.
func (r *Registry) Update(candidate *NetworkDevice) {
	if candidate == nil {
		return
	}
	if dev, ok := r.devices[candidate.address]; ok {
		dev.SetSignalStrength(candidate.signal)
		return
	}

	r.devices[candidate.address] = candidate
	r.order = append(r.order, candidate.address)
	candidate.OnSignalStrengthChanged(r.deviceChanged)
	r.notify(candidate)
}

// Get returns the device stored for addr.
func (r *Registry) Get(addr Address) (*NetworkDevice, bool) {
	dev, ok := r.devices[addr]
	return dev, ok
}

// List returns the devices in insertion order. The slice is a snapshot; the
// devices in it are live.
func (r *Registry) List() []*NetworkDevice {
	out := make([]*NetworkDevice, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, r.devices[addr])
	}
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int { return len(r.devices) }

// OnUpdate subscribes h to additions and signal changes.
func (r *Registry) OnUpdate(h UpdateHandler) {
	r.onUpdate = append(r.onUpdate, h)
}

func (r *Registry) deviceChanged(dev *NetworkDevice, _ Signal) {
	r.notify(dev)
}

func (r *Registry) notify(dev *NetworkDevice) {
	for _, h := range r.onUpdate {
		h(dev)
	}
}
