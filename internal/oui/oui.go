// Package oui resolves manufacturer names from the organizationally unique
// identifier (first three octets) of a hardware address.
package oui

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unknown is returned for prefixes that have no known manufacturer.
const Unknown = "Unknown"

// Prefix is the canonical colon-delimited form of the first three octets,
// e.g. "80:ED:2C".
type Prefix string

// Lookup resolves a prefix to a manufacturer name, or Unknown.
type Lookup interface {
	Lookup(prefix Prefix) string
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(prefix Prefix) string

// Lookup calls f.
func (f LookupFunc) Lookup(prefix Prefix) string {
	return f(prefix)
}

// NewPrefix builds a prefix from three octets.
func NewPrefix(a, b, c string) Prefix {
	return Prefix(strings.ToUpper(a + ":" + b + ":" + c))
}

// ParsePrefix normalises "80-ed-2c" or "80:ED:2C" into a Prefix.
func ParsePrefix(raw string) (Prefix, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	var parts []string
	switch {
	case strings.Contains(s, ":"):
		parts = strings.Split(s, ":")
	case strings.Contains(s, "-"):
		parts = strings.Split(s, "-")
	default:
		return "", fmt.Errorf("oui prefix %q: no delimiter", raw)
	}
	if len(parts) != 3 {
		return "", fmt.Errorf("oui prefix %q: want 3 octets, got %d", raw, len(parts))
	}
	return NewPrefix(parts[0], parts[1], parts[2]), nil
}

// Table is a read-only in-memory manufacturer table.
type Table struct {
	names map[Prefix]string
}

// NewTable builds a table from prefix -> name pairs. Keys that do not parse
// as a prefix are rejected.
func NewTable(entries map[string]string) (*Table, error) {
	t := &Table{names: make(map[Prefix]string, len(entries))}
	for k, name := range entries {
		p, err := ParsePrefix(k)
		if err != nil {
			return nil, err
		}
		t.names[p] = name
	}
	return t, nil
}

// LoadFile reads a YAML mapping of prefix -> manufacturer name.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read oui table: %w", err)
	}
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse oui table: %w", err)
	}
	return NewTable(entries)
}

// Lookup returns the manufacturer for prefix, or Unknown.
func (t *Table) Lookup(prefix Prefix) string {
	if t == nil {
		return Unknown
	}
	if name, ok := t.names[prefix]; ok && name != "" {
		return name
	}
	return Unknown
}

// Len returns the number of prefixes in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}
