package protocol

import (
	"bytes"
	"encoding/binary"
)

// Decoder reassembles packets from an unreliable byte stream. It waits for
// the header and length byte, drops one leading byte at a time until a
// header matches, then collects the announced number of bytes. Packets with
// a bad checksum are discarded and counted.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf      []byte
	expected int

	frames    int
	corrupted int
	skipped   int
}

func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, MaxPacketSize), expected: -1}
}

// Feed consumes p and returns the data segments of every valid packet that
// completed within it, in order.
func (d *Decoder) Feed(p []byte) [][]byte {
	var out [][]byte
	for _, b := range p {
		d.buf = append(d.buf, b)

		if d.expected < 0 {
			d.sync()
			continue
		}

		if len(d.buf) == d.expected {
			if data, ok := d.finish(); ok {
				out = append(out, data)
			}
		}
	}
	return out
}

// sync validates the header once header and length byte are buffered.
func (d *Decoder) sync() {
	for len(d.buf) >= HeaderSize+LengthFieldSize {
		n := packetLength(d.buf[lengthOffset])
		if bytes.Equal(d.buf[:HeaderSize], Header[:]) && n >= FrameOverhead {
			d.expected = n
			return
		}
		d.buf = append(d.buf[:0], d.buf[1:]...)
		d.skipped++
	}
}

func (d *Decoder) finish() ([]byte, bool) {
	defer d.Reset()

	want := binary.BigEndian.Uint16(d.buf[checksumOffset:dataOffset])
	data := d.buf[dataOffset:]
	if Checksum(data) != want {
		d.corrupted++
		return nil, false
	}

	d.frames++
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Reset discards any partially received packet.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.expected = -1
}

// Stats reports valid packets, packets dropped for a bad checksum and bytes
// skipped while hunting for a header.
func (d *Decoder) Stats() (frames, corrupted, skipped int) {
	return d.frames, d.corrupted, d.skipped
}
