package scan

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaud is used when OpenSerial is given a zero baud rate.
const DefaultBaud = 115200

// OpenSerial opens a serial port that prints scanner lines, such as a USB
// WiFi sniffer. The returned port is meant to be wrapped in a LineSource.
func OpenSerial(portName string, baud int) (io.ReadCloser, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	_ = port.SetDTR(true)
	_ = port.SetRTS(true)
	return port, nil
}
