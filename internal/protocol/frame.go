package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Checksum is the additive checksum of a data segment: the sum of all bytes
// as unsigned values, wrapped to 16 bits.
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// EncodeFrame wraps a data segment in the packet header, length byte and
// checksum. It never truncates: a segment that would push the packet past
// MaxPacketSize yields ErrPacketTooLarge and no bytes.
//
// A packet of exactly MaxPacketSize bytes passes the size check but its
// length byte wraps to 0x00; DecodeFrame and Decoder read 0x00 back as 256.
func EncodeFrame(data []byte) ([]byte, error) {
	total := len(data) + FrameOverhead
	if total > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, total)
	}

	out := make([]byte, total)
	copy(out, Header[:])
	out[lengthOffset] = byte(total)
	binary.BigEndian.PutUint16(out[checksumOffset:dataOffset], Checksum(data))
	copy(out[dataOffset:], data)
	return out, nil
}

// DecodeFrame validates one complete packet and returns a copy of its data
// segment.
func DecodeFrame(packet []byte) ([]byte, error) {
	if len(packet) < FrameOverhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadLength, len(packet))
	}
	if !bytes.Equal(packet[:HeaderSize], Header[:]) {
		return nil, fmt.Errorf("%w: % X", ErrBadHeader, packet[:HeaderSize])
	}
	if n := packetLength(packet[lengthOffset]); n != len(packet) {
		return nil, fmt.Errorf("%w: length byte says %d, got %d", ErrBadLength, n, len(packet))
	}

	data := packet[dataOffset:]
	want := binary.BigEndian.Uint16(packet[checksumOffset:dataOffset])
	if got := Checksum(data); got != want {
		return nil, fmt.Errorf("%w: got %#04x, want %#04x", ErrChecksum, got, want)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func packetLength(b byte) int {
	if b == 0 {
		return MaxPacketSize
	}
	return int(b)
}

// Segment builds a packet data segment. Multi-byte values are big-endian.
// The zero value is ready to use.
type Segment struct {
	buf []byte
}

func (s *Segment) PutByte(b byte) { s.buf = append(s.buf, b) }

func (s *Segment) PutUint16(v uint16) { s.buf = binary.BigEndian.AppendUint16(s.buf, v) }

func (s *Segment) PutUint32(v uint32) { s.buf = binary.BigEndian.AppendUint32(s.buf, v) }

// Write appends p verbatim.
func (s *Segment) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *Segment) Len() int { return len(s.buf) }

// Bytes returns the segment contents. The slice aliases the builder.
func (s *Segment) Bytes() []byte { return s.buf }
