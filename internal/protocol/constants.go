// Package protocol implements the controller-to-indicator wire format: the
// bit-packed session state word and the checksummed packet framing used on the
// serial link.
package protocol

// Header is the fixed magic prefix of every packet.
var Header = [HeaderSize]byte{0xA4, 0x11, 0xE4, 0xD8}

// Packet layout:
//
//	Header (4) | Length (1) | Checksum (2, BE) | Data (0-249)
//
// Length counts the whole packet, header included.
const (
	HeaderSize      = 4
	LengthFieldSize = 1
	ChecksumSize    = 2

	// FrameOverhead is everything in a packet except the data segment.
	FrameOverhead = HeaderSize + LengthFieldSize + ChecksumSize

	MaxPacketSize = 256
	MaxDataSize   = MaxPacketSize - FrameOverhead

	// StateSegmentSize is the data segment carried by a state update:
	// state word, time, start beeps, end beeps (uint16 BE each).
	StateSegmentSize = 8

	lengthOffset   = HeaderSize
	checksumOffset = HeaderSize + LengthFieldSize
	dataOffset     = FrameOverhead
)

// Serial line parameters expected by the indicator unit (8N1).
const (
	BaudRate = 9600
	DataBits = 8
)

// Timing constants shared by the controller and the indicator.
const (
	PreStartSeconds    = 10
	PreStartStartBeeps = 2
	PreStartEndBeeps   = 1
	ActiveEndBeeps     = 3
	EmergencyStopBeeps = 5
)
