package device

import (
	"encoding/json"
	"strconv"
)

// Signal is an optional received-signal indicator, typically negative dBm.
type Signal struct {
	Value int
	Known bool
}

// NoSignal is the absent signal.
var NoSignal = Signal{}

// SignalOf returns a known signal of v.
func SignalOf(v int) Signal {
	return Signal{Value: v, Known: true}
}

// Ptr returns nil for an absent signal, otherwise a pointer to a copy of the value.
func (s Signal) Ptr() *int {
	if !s.Known {
		return nil
	}
	v := s.Value
	return &v
}

func (s Signal) String() string {
	if !s.Known {
		return "-"
	}
	return strconv.Itoa(s.Value)
}

// MarshalJSON encodes the signal as a number or null.
func (s Signal) MarshalJSON() ([]byte, error) {
	if !s.Known {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(s.Value)), nil
}

// UnmarshalJSON accepts a number or null.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var v *int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*s = NoSignal
		return nil
	}
	*s = SignalOf(*v)
	return nil
}
