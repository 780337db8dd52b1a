//go:build !no_mqtt

package mqtt

import (
	"airwatch/internal/device"
	"airwatch/internal/tracker"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string
	Payload []byte
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is an HA sensor discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Device            haDevice `json:"device"`
}

func deviceTopic(prefix, addr string) string {
	return prefix + "/devices/" + device.Address(addr).Compact()
}

func bridgeStateTopic(prefix string) string {
	return prefix + "/bridge/state"
}

func bridgeSourceTopic(prefix string) string {
	return prefix + "/bridge/source"
}

func deviceIdentifier(addr string) string {
	return "airwatch_" + device.Address(addr).Compact()
}

func displayName(st tracker.DeviceState) string {
	if st.Manufacturer == "" {
		return st.Address
	}
	return st.Manufacturer + " " + st.Address
}

// buildDiscovery returns the signal strength sensor config for a device.
func buildDiscovery(st tracker.DeviceState, prefix, discoveryPrefix string) discoveryMsg {
	nodeID := deviceIdentifier(st.Address)
	name := displayName(st)
	payload := haDiscovery{
		Name:              name + " Signal",
		UniqueID:          nodeID + "_signal",
		StateTopic:        deviceTopic(prefix, st.Address),
		AvailabilityTopic: bridgeStateTopic(prefix),
		ValueTemplate:     "{{ value_json.signal }}",
		UnitOfMeasurement: "dBm",
		DeviceClass:       "signal_strength",
		StateClass:        "measurement",
		Device: haDevice{
			Identifiers:  []string{nodeID},
			Manufacturer: st.Manufacturer,
			Name:         name,
		},
	}
	return discoveryMsg{
		Topic:   discoveryPrefix + "/sensor/" + nodeID + "/signal/config",
		Payload: mustJSON(payload),
	}
}
