package protocol

import "errors"

var (
	ErrPacketTooLarge = errors.New("packet exceeds 256 bytes")
	ErrBadHeader      = errors.New("bad packet header")
	ErrBadLength      = errors.New("bad packet length")
	ErrChecksum       = errors.New("checksum mismatch")
	ErrInvalidState   = errors.New("invalid state word")
)
