package store

import "time"

// Sighting is one recorded signal strength for a device.
type Sighting struct {
	Address string    `json:"address"`
	Signal  *int      `json:"signal"`
	At      time.Time `json:"at"`
}
