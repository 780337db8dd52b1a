package device

import (
	"errors"
	"testing"
)

func TestParseAddressNormalises(t *testing.T) {
	tests := []struct {
		in   string
		want Address
	}{
		{"80:ED:2C:D3:6C:C4", "80:ED:2C:D3:6C:C4"},
		{"80:ed:2c:d3:6c:c4", "80:ED:2C:D3:6C:C4"},
		{"80-ED-2C-D3-6C-C4", "80:ED:2C:D3:6C:C4"},
		{"80-ed-2c-d3-6c-c4", "80:ED:2C:D3:6C:C4"},
		{"  08-C5-E1-D3-6C-C4\t", "08:C5:E1:D3:6C:C4"},
		// Octets are kept as-is, not checked for hex.
		{"zz:1:2:3:4:5", "ZZ:1:2:3:4:5"},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if err != nil {
			t.Errorf("ParseAddress(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAddressRejects(t *testing.T) {
	tests := []string{
		"",
		"80ED2CD36CC4",
		"80.ED.2C.D3.6C.C4",
		"80:ED:2C:D3:6C",
		"80:ED:2C:D3:6C:C4:00",
		"80-ED-2C-D3-6C",
		"MAC Address",
	}
	for _, in := range tests {
		_, err := ParseAddress(in)
		if err == nil {
			t.Errorf("ParseAddress(%q) expected error", in)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("ParseAddress(%q) err type = %T, want *ValidationError", in, err)
		}
		if !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("ParseAddress(%q) err does not wrap ErrInvalidAddress", in)
		}
	}
}

func TestParseAddressColonWins(t *testing.T) {
	// Mixed delimiters: ':' is used, so the '-' stays inside an octet.
	got, err := ParseAddress("AA-BB:CC:DD:EE:FF:00")
	if err != nil {
		t.Fatal(err)
	}
	if got != "AA-BB:CC:DD:EE:FF:00" {
		t.Errorf("got %q", got)
	}
	if _, err := ParseAddress("AA:BB-CC-DD-EE-FF"); err == nil {
		t.Error("expected error: colon split yields 2 octets")
	}
}

func TestAddressHelpers(t *testing.T) {
	a := Address("80:ED:2C:D3:6C:C4")
	if got := a.OUI(); got != "80:ED:2C" {
		t.Errorf("OUI() = %q", got)
	}
	if got := a.Compact(); got != "80ED2CD36CC4" {
		t.Errorf("Compact() = %q", got)
	}
	if got := len(a.Octets()); got != 6 {
		t.Errorf("len(Octets()) = %d", got)
	}
}
