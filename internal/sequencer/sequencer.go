// Package sequencer drives the countdown phases of a range session. A
// Sequencer is an explicit state machine (idle, pre-start, active) advanced by
// Tick; it is not safe for concurrent use and is owned by a Runner.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"range-remote/internal/platform/metrics"
	"range-remote/internal/protocol"
	"range-remote/internal/settings"
)

var (
	// ErrInvalidArgument is returned for out-of-range action parameters.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBusy is returned when the command loop does not accept a command in time.
	ErrBusy = errors.New("sequencer busy")
)

// Sender transmits a complete session state. *link.Link implements it.
type Sender interface {
	SendState(ctx context.Context, s protocol.SessionState) error
}

// SettingsSource supplies phase durations. *settings.Service implements it.
type SettingsSource interface {
	Current() settings.Settings
}

// Options configures a Sequencer. Sender and Settings are required.
type Options struct {
	Sender   Sender
	Settings SettingsSource
	// Strategy defaults to SingleSwap.
	Strategy LaneStrategy
	// ResendOnTick resends the state with the current counter on every
	// tick that does not end a phase.
	ResendOnTick bool
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	// NewRunID defaults to uuid.NewString.
	NewRunID func() string
}

// Snapshot is a read-only copy of the sequencer for the operator API.
type Snapshot struct {
	Phase           PhaseKind             `json:"phase"`
	Mode            Mode                  `json:"mode"`
	Remaining       int                   `json:"remaining"`
	End             int                   `json:"end"`
	RunID           string                `json:"runId,omitempty"`
	Warning         bool                  `json:"warning"`
	SuggestedDetail protocol.Detail       `json:"suggestedDetail"`
	State           protocol.SessionState `json:"state"`
}

// Sequencer owns the session state and the single active phase.
type Sequencer struct {
	sender       Sender
	settings     SettingsSource
	strategy     LaneStrategy
	resendOnTick bool
	log          *slog.Logger
	metrics      *metrics.Metrics
	newRunID     func() string

	state protocol.SessionState
	phase Phase
	// nominal is the full duration of the latest run; score and emergency
	// stop display it.
	nominal   int
	suggested protocol.Detail
}

// New returns an idle Sequencer.
func New(opts Options) *Sequencer {
	if opts.Strategy == nil {
		opts.Strategy = SingleSwap{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	s := &Sequencer{
		sender:       opts.Sender,
		settings:     opts.Settings,
		strategy:     opts.Strategy,
		resendOnTick: opts.ResendOnTick,
		log:          opts.Logger.With(slog.String("component", "sequencer")),
		metrics:      opts.Metrics,
		newRunID:     opts.NewRunID,
	}
	s.nominal = s.settings.Current().TargetMaxTime
	return s
}

// StartTarget cancels any phase and starts a target run on detail: a
// ten-second amber pre-start followed by targetMaxTime of green.
func (s *Sequencer) StartTarget(ctx context.Context, detail protocol.Detail) (string, error) {
	duration := s.settings.Current().TargetMaxTime
	s.suggested = detail
	return s.start(ctx, ModeTarget, detail, duration)
}

// StartEquipmentFailure starts a target-style run whose active phase lasts
// arrows × timePerArrow seconds. A zero timePerArrow selects equipFailTime.
func (s *Sequencer) StartEquipmentFailure(ctx context.Context, arrows, timePerArrow int, detail protocol.Detail) (string, error) {
	if timePerArrow == 0 {
		timePerArrow = s.settings.Current().EquipFailTime
	}
	if timePerArrow < 0 {
		return "", fmt.Errorf("%w: time per arrow must be positive, got %d", ErrInvalidArgument, timePerArrow)
	}
	if arrows < 1 {
		return "", fmt.Errorf("%w: arrows must be positive, got %d", ErrInvalidArgument, arrows)
	}
	// bound before multiplying so the product cannot wrap
	if timePerArrow > math.MaxUint16 || arrows > math.MaxUint16/timePerArrow {
		return "", fmt.Errorf("%w: %d arrows × %ds does not fit the time field", ErrInvalidArgument, arrows, timePerArrow)
	}
	return s.start(ctx, ModeEquipmentFailure, detail, arrows*timePerArrow)
}

// StartMatchplay starts a match-play run with detail (AB or CD) shooting the
// first end.
func (s *Sequencer) StartMatchplay(ctx context.Context, detail protocol.Detail) (string, error) {
	if detail != protocol.DetailAB && detail != protocol.DetailCD {
		return "", fmt.Errorf("%w: match-play needs detail ab or cd, got %s", ErrInvalidArgument, detail)
	}
	return s.start(ctx, ModeMatchplay, detail, s.settings.Current().MatchplayMaxTime)
}

func (s *Sequencer) start(ctx context.Context, mode Mode, detail protocol.Detail, duration int) (string, error) {
	s.cancel()
	s.nominal = duration
	s.phase = Phase{
		Kind:      PhasePreStart,
		Mode:      mode,
		Remaining: protocol.PreStartSeconds,
		Duration:  duration,
		RunID:     s.newRunID(),
	}
	s.state = protocol.SessionState{
		CountdownContinues: true,
		Matchplay:          mode == ModeMatchplay,
		Countdown:          true,
		Detail:             detail,
		Colour:             protocol.ColourAmber,
		TimeEnabled:        true,
		Time:               protocol.PreStartSeconds,
		StartNumBeeps:      protocol.PreStartStartBeeps,
		EndNumBeeps:        protocol.PreStartEndBeeps,
	}
	s.transitioned()
	return s.phase.RunID, s.send(ctx)
}

// Score cancels the current phase and resets the display to the nominal
// duration of the latest run. After a target run with autoToggleDetail set,
// the suggested detail flips to the other lane.
func (s *Sequencer) Score(ctx context.Context) (string, error) {
	mode := s.phase.Mode
	s.cancel()
	if mode == ModeTarget && s.settings.Current().AutoToggleDetail {
		s.suggested = s.suggested.Opposite()
	}
	s.state = protocol.SessionState{
		TimeEnabled: true,
		Time:        uint16(s.nominal),
		EndNumBeeps: protocol.ActiveEndBeeps,
	}
	runID := s.newRunID()
	s.log.Info("score", slog.String("mode", mode.String()), slog.String("run_id", runID))
	return runID, s.send(ctx)
}

// EmergencyStop aborts the current phase and sends one emergency-stop state.
// The state never carries the match-play flag so units on both lanes apply
// it. Nothing else is sent until the next start action.
func (s *Sequencer) EmergencyStop(ctx context.Context) (string, error) {
	s.phase.Remaining = aborted
	mode, kind := s.phase.Mode, s.phase.Kind
	s.retire()

	s.state = protocol.SessionState{
		EmergencyStop: true,
		Detail:        s.state.Detail,
		Colour:        protocol.ColourRed,
		Time:          uint16(s.nominal),
	}
	runID := s.newRunID()
	s.log.Warn("emergency stop",
		slog.String("mode", mode.String()),
		slog.String("interrupted", kind.String()),
		slog.String("run_id", runID),
	)
	return runID, s.send(ctx)
}

// Tick advances the active phase by one second. A counter reaching zero
// fires the phase completion exactly once; an aborted counter retires the
// phase silently.
func (s *Sequencer) Tick(ctx context.Context) error {
	if s.phase.Kind == PhaseIdle {
		return nil
	}
	if s.phase.Remaining < 0 {
		s.retire()
		return nil
	}

	s.phase.Remaining--
	s.metrics.SetPhaseRemaining(s.phase.Remaining)
	if s.phase.Remaining > 0 {
		if !s.resendOnTick {
			return nil
		}
		s.state.Time = uint16(s.phase.Remaining)
		s.state.StartNumBeeps = 0
		return s.send(ctx)
	}
	return s.complete(ctx)
}

func (s *Sequencer) complete(ctx context.Context) error {
	switch s.phase.Kind {
	case PhasePreStart:
		return s.enterActive(ctx, s.state.Detail)
	case PhaseActive:
		if s.phase.Mode == ModeMatchplay {
			if next, ok := s.strategy.Next(s.phase.End, s.numEnds(), s.state.Detail); ok {
				s.phase.End++
				return s.enterActive(ctx, next)
			}
		}
		s.log.Info("run complete", slog.String("mode", s.phase.Mode.String()), slog.String("run_id", s.phase.RunID))
		s.retire()
	}
	return nil
}

func (s *Sequencer) enterActive(ctx context.Context, detail protocol.Detail) error {
	s.phase.Kind = PhaseActive
	s.phase.Remaining = s.phase.Duration

	next := protocol.SessionState{
		Countdown:   true,
		Detail:      detail,
		Colour:      protocol.ColourGreen,
		TimeEnabled: true,
		Time:        uint16(s.phase.Duration),
		EndNumBeeps: protocol.ActiveEndBeeps,
	}
	if s.phase.Mode == ModeMatchplay {
		_, more := s.strategy.Next(s.phase.End, s.numEnds(), detail)
		next.Matchplay = true
		next.CountdownContinues = more
		next.LastEnd = !more
	}
	s.state = next
	s.transitioned()
	return s.send(ctx)
}

// cancel drops the in-flight phase, if any, without sending.
func (s *Sequencer) cancel() {
	if s.phase.Kind != PhaseIdle {
		s.log.Info("phase cancelled",
			slog.String("mode", s.phase.Mode.String()),
			slog.String("phase", s.phase.Kind.String()),
			slog.Int("remaining", s.phase.Remaining),
		)
	}
	s.retire()
}

func (s *Sequencer) retire() {
	if s.phase.Kind == PhaseIdle {
		return
	}
	s.phase.Kind = PhaseIdle
	s.metrics.IncPhaseTransition(s.phase.Mode.String(), PhaseIdle.String())
	s.metrics.SetPhaseRemaining(0)
}

func (s *Sequencer) transitioned() {
	s.log.Info("phase",
		slog.String("mode", s.phase.Mode.String()),
		slog.String("phase", s.phase.Kind.String()),
		slog.Int("remaining", s.phase.Remaining),
		slog.Int("end", s.phase.End),
		slog.String("detail", s.state.Detail.String()),
		slog.String("run_id", s.phase.RunID),
	)
	s.metrics.IncPhaseTransition(s.phase.Mode.String(), s.phase.Kind.String())
	s.metrics.SetPhaseRemaining(s.phase.Remaining)
}

func (s *Sequencer) send(ctx context.Context) error {
	if err := s.sender.SendState(ctx, s.state); err != nil {
		s.log.Warn("state not sent", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (s *Sequencer) numEnds() int {
	return s.settings.Current().MatchplayNumEnds
}

// SuggestedDetail is the detail a target start without an explicit detail
// uses.
func (s *Sequencer) SuggestedDetail() protocol.Detail {
	return s.suggested
}

// Snapshot returns a copy of the current phase and state.
func (s *Sequencer) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:           s.phase.Kind,
		Mode:            s.phase.Mode,
		End:             s.phase.End,
		RunID:           s.phase.RunID,
		SuggestedDetail: s.suggested,
		State:           s.state,
	}
	if s.phase.Kind != PhaseIdle {
		snap.Remaining = s.phase.Remaining
	}
	if s.phase.Kind == PhaseActive {
		cfg := s.settings.Current()
		warn := cfg.TargetWarnTime
		if s.phase.Mode == ModeMatchplay {
			warn = cfg.MatchplayWarnTime
		}
		snap.Warning = s.phase.Remaining <= warn
	}
	return snap
}
