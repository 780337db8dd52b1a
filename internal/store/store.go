package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the sighting history interface. History is append-only and
// is never used to rebuild the live registry.
type Store interface {
	// Append records signal observations in a single transaction.
	Append(sightings ...*Sighting) error

	// History returns up to limit sightings for addr, oldest first.
	// A limit <= 0 returns everything. Unknown addresses return ErrNotFound.
	History(addr string, limit int) ([]*Sighting, error)

	// Addresses lists every address with recorded history, in key order.
	Addresses() ([]string, error)

	// Close the store
	Close() error
}
