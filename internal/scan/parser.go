// Package scan turns a line-oriented scanner feed into device observations.
package scan

import (
	"regexp"
	"strconv"
	"strings"

	"airwatch/internal/device"
	"airwatch/internal/oui"
)

// csiRe matches ANSI CSI escape sequences that airodump-ng uses to redraw
// its terminal screen.
var csiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Parser extracts observations from scanner output lines.
type Parser struct {
	lookup oui.Lookup
}

// NewParser creates a parser that resolves manufacturers with lookup.
func NewParser(lookup oui.Lookup) *Parser {
	return &Parser{lookup: lookup}
}

// Parse converts a line of the form "<ADDR> <SIGNAL> ..." into a device with
// its address and signal set. Header, blank, and informational lines report
// false. Parse never returns an error: malformed lines are expected.
func (p *Parser) Parse(line string) (*device.NetworkDevice, bool) {
	line = csiRe.ReplaceAllString(line, "")
	line = strings.ReplaceAll(line, "\r", " ")

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, false
	}

	dev, err := device.NewNetworkDevice(fields[0], p.lookup)
	if err != nil {
		return nil, false
	}

	sig, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, false
	}
	dev.SetSignalStrength(device.SignalOf(sig))
	return dev, true
}
