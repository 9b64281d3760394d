package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Detail is the archer detail shown on the indicator.
type Detail uint8

const (
	DetailOff Detail = iota
	DetailAB
	DetailCD
)

func (d Detail) String() string {
	switch d {
	case DetailOff:
		return "off"
	case DetailAB:
		return "ab"
	case DetailCD:
		return "cd"
	default:
		return fmt.Sprintf("detail(%d)", uint8(d))
	}
}

// Opposite returns the other lane of a match-play pair. DetailOff has no
// opposite and is returned unchanged.
func (d Detail) Opposite() Detail {
	switch d {
	case DetailAB:
		return DetailCD
	case DetailCD:
		return DetailAB
	default:
		return d
	}
}

// ParseDetail accepts "off", "ab", "cd" (any case). An empty string is DetailOff.
func ParseDetail(s string) (Detail, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return DetailOff, nil
	case "ab":
		return DetailAB, nil
	case "cd":
		return DetailCD, nil
	}
	return DetailOff, fmt.Errorf("unknown detail %q", s)
}

// MarshalText lets Detail appear as "ab" rather than 1 in JSON.
func (d Detail) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Detail) UnmarshalText(b []byte) error {
	v, err := ParseDetail(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Colour is the traffic-light state.
type Colour uint8

const (
	ColourRed Colour = iota
	ColourAmber
	ColourGreen
)

func (c Colour) String() string {
	switch c {
	case ColourRed:
		return "red"
	case ColourAmber:
		return "amber"
	case ColourGreen:
		return "green"
	default:
		return fmt.Sprintf("colour(%d)", uint8(c))
	}
}

func (c Colour) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Colour) UnmarshalText(b []byte) error {
	for _, v := range []Colour{ColourRed, ColourAmber, ColourGreen} {
		if strings.EqualFold(string(b), v.String()) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown colour %q", b)
}

// State word bit positions (bit 0 = least significant). Bits 15-10 are unused.
// These are part of the wire contract.
const (
	bitTimeEnabled        = 0
	shiftColour           = 1
	shiftDetail           = 3
	bitCountdown          = 5
	bitMatchplay          = 6
	bitEmergencyStop      = 7
	bitLastEnd            = 8
	bitCountdownContinues = 9

	enumMask = 0x3
)

// SessionState is the operator-visible state mirrored on the indicator unit.
// The zero value is the blank idle state (red, nothing shown).
type SessionState struct {
	CountdownContinues bool   `json:"countdownContinues"`
	LastEnd            bool   `json:"lastEnd"`
	EmergencyStop      bool   `json:"emergencyStop"`
	Matchplay          bool   `json:"matchplay"`
	Countdown          bool   `json:"countdown"`
	Detail             Detail `json:"detail"`
	Colour             Colour `json:"colour"`
	TimeEnabled        bool   `json:"timeEnabled"`
	Time               uint16 `json:"time"`
	StartNumBeeps      uint16 `json:"startNumBeeps"`
	EndNumBeeps        uint16 `json:"endNumBeeps"`
}

// Pack encodes the flag and enum fields into the 16-bit state word.
func (s SessionState) Pack() uint16 {
	var w uint16
	w |= flag(s.CountdownContinues) << bitCountdownContinues
	w |= flag(s.LastEnd) << bitLastEnd
	w |= flag(s.EmergencyStop) << bitEmergencyStop
	w |= flag(s.Matchplay) << bitMatchplay
	w |= flag(s.Countdown) << bitCountdown
	w |= (uint16(s.Detail) & enumMask) << shiftDetail
	w |= (uint16(s.Colour) & enumMask) << shiftColour
	w |= flag(s.TimeEnabled) << bitTimeEnabled
	return w
}

// Unpack is the inverse of Pack. The integer fields of the returned state are
// zero. Enum values outside their range yield ErrInvalidState; unused bits are
// ignored, as the indicator firmware does.
func Unpack(w uint16) (SessionState, error) {
	detail := Detail((w >> shiftDetail) & enumMask)
	colour := Colour((w >> shiftColour) & enumMask)
	if detail > DetailCD || colour > ColourGreen {
		return SessionState{}, fmt.Errorf("%w: %#04x", ErrInvalidState, w)
	}
	return SessionState{
		CountdownContinues: isSet(w, bitCountdownContinues),
		LastEnd:            isSet(w, bitLastEnd),
		EmergencyStop:      isSet(w, bitEmergencyStop),
		Matchplay:          isSet(w, bitMatchplay),
		Countdown:          isSet(w, bitCountdown),
		Detail:             detail,
		Colour:             colour,
		TimeEnabled:        isSet(w, bitTimeEnabled),
	}, nil
}

// DataSegment returns the 8-byte state update segment:
// [state word][time][start beeps][end beeps], all big-endian.
func (s SessionState) DataSegment() []byte {
	var seg Segment
	s.WriteTo(&seg)
	return seg.Bytes()
}

// WriteTo appends the state update fields to seg.
func (s SessionState) WriteTo(seg *Segment) {
	seg.PutUint16(s.Pack())
	seg.PutUint16(s.Time)
	seg.PutUint16(s.StartNumBeeps)
	seg.PutUint16(s.EndNumBeeps)
}

// DecodeState parses a state update data segment.
func DecodeState(data []byte) (SessionState, error) {
	if len(data) != StateSegmentSize {
		return SessionState{}, fmt.Errorf("%w: state segment is %d bytes, want %d", ErrBadLength, len(data), StateSegmentSize)
	}
	s, err := Unpack(binary.BigEndian.Uint16(data[0:2]))
	if err != nil {
		return SessionState{}, err
	}
	s.Time = binary.BigEndian.Uint16(data[2:4])
	s.StartNumBeeps = binary.BigEndian.Uint16(data[4:6])
	s.EndNumBeeps = binary.BigEndian.Uint16(data[6:8])
	return s, nil
}

func flag(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func isSet(w uint16, bit uint) bool {
	return w&(1<<bit) != 0
}
