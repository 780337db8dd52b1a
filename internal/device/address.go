package device

import (
	"errors"
	"fmt"
	"strings"

	"airwatch/internal/oui"
)

// ErrInvalidAddress is wrapped by every ValidationError.
var ErrInvalidAddress = errors.New("invalid hardware address")

// ValidationError reports a malformed hardware address.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hardware address %q: %s", e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidAddress }

// Address is a canonical hardware address: six uppercase octets joined by ':'.
type Address string

const octetCount = 6

// ParseAddress normalises raw into an Address. Either ':' or '-' may delimit
// the octets; ':' wins when both appear. Octets are not checked for hex.
func ParseAddress(raw string) (Address, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	var octets []string
	switch {
	case strings.Contains(s, ":"):
		octets = strings.Split(s, ":")
	case strings.Contains(s, "-"):
		octets = strings.Split(s, "-")
	default:
		return "", &ValidationError{Input: raw, Reason: "no ':' or '-' delimiter"}
	}

	if len(octets) != octetCount {
		return "", &ValidationError{
			Input:  raw,
			Reason: fmt.Sprintf("want %d octets, got %d", octetCount, len(octets)),
		}
	}
	return Address(strings.Join(octets, ":")), nil
}

// Octets returns the six octets of a.
func (a Address) Octets() []string {
	return strings.Split(string(a), ":")
}

// OUI returns the manufacturer prefix of a.
func (a Address) OUI() oui.Prefix {
	o := a.Octets()
	if len(o) < 3 {
		return ""
	}
	return oui.NewPrefix(o[0], o[1], o[2])
}

// Compact returns the address without delimiters, for use in topics and keys.
func (a Address) Compact() string {
	return strings.ReplaceAll(string(a), ":", "")
}

func (a Address) String() string { return string(a) }
