package link

import (
	"io"

	"go.bug.st/serial"

	"range-remote/internal/protocol"
)

// OpenSerial opens a serial device at the given baud rate, 8 data bits, no
// parity, one stop bit.
func OpenSerial(device string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: protocol.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// Ports lists the serial devices present on the host.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}
