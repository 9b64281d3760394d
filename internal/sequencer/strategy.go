package sequencer

import "range-remote/internal/protocol"

// LaneStrategy decides which detail shoots the match-play end after end.
// numEnds is the configured matchplayNumEnds. ok is false when the match is
// over.
type LaneStrategy interface {
	Next(end, numEnds int, current protocol.Detail) (next protocol.Detail, ok bool)
}

// SingleSwap swaps AB and CD once after the first end and then stops,
// whatever numEnds says. Alternating across several ends is not implemented.
type SingleSwap struct{}

func (SingleSwap) Next(end, _ int, current protocol.Detail) (protocol.Detail, bool) {
	if end != 0 || current == protocol.DetailOff {
		return protocol.DetailOff, false
	}
	return current.Opposite(), true
}
