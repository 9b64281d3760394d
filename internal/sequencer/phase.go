package sequencer

import "fmt"

// Mode is the operating mode of a run.
type Mode int

const (
	ModeTarget Mode = iota
	ModeMatchplay
	ModeEquipmentFailure
)

func (m Mode) String() string {
	switch m {
	case ModeTarget:
		return "target"
	case ModeMatchplay:
		return "matchplay"
	case ModeEquipmentFailure:
		return "equipment_failure"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	for _, v := range []Mode{ModeTarget, ModeMatchplay, ModeEquipmentFailure} {
		if string(b) == v.String() {
			*m = v
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", b)
}

// PhaseKind is the sequencer state. PhaseIdle is terminal.
type PhaseKind int

const (
	PhaseIdle PhaseKind = iota
	PhasePreStart
	PhaseActive
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseIdle:
		return "idle"
	case PhasePreStart:
		return "pre_start"
	case PhaseActive:
		return "active"
	default:
		return fmt.Sprintf("PhaseKind(%d)", int(k))
	}
}

func (k PhaseKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PhaseKind) UnmarshalText(b []byte) error {
	for _, v := range []PhaseKind{PhaseIdle, PhasePreStart, PhaseActive} {
		if string(b) == v.String() {
			*k = v
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// aborted is the counter value an emergency stop leaves behind. A tick that
// observes it retires the phase without sending anything.
const aborted = -1

// Phase is the single in-flight sequence step.
type Phase struct {
	Kind PhaseKind
	Mode Mode
	// Remaining counts down once per tick.
	Remaining int
	// Duration is the length of the ACTIVE phase that follows (or is running).
	Duration int
	// End is the zero-based match-play end index.
	End   int
	RunID string
}
