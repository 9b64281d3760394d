package sequencer

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"

	"range-remote/internal/protocol"
	"range-remote/internal/settings"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.SessionState
	err  error
}

func (r *recordingSender) SendState(_ context.Context, s protocol.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, s)
	return r.err
}

func (r *recordingSender) States() []protocol.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.SessionState(nil), r.sent...)
}

type fixedSettings settings.Settings

func (f fixedSettings) Current() settings.Settings { return settings.Settings(f) }

func newTestSequencer(t *testing.T, cfg settings.Settings) (*Sequencer, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	n := 0
	seq := New(Options{
		Sender:   sender,
		Settings: fixedSettings(cfg),
		NewRunID: func() string {
			n++
			return "run-" + strconv.Itoa(n)
		},
	})
	return seq, sender
}

func tickN(t *testing.T, s *Sequencer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_ = s.Tick(context.Background())
	}
}

func TestSequencer_targetRun_sendsTwoStates(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	ctx := context.Background()

	runID, err := seq.StartTarget(ctx, protocol.DetailAB)
	if err != nil {
		t.Fatalf("StartTarget: %v", err)
	}
	if runID == "" {
		t.Error("expected a run id")
	}

	tickN(t, seq, protocol.PreStartSeconds-1)
	if got := seq.Snapshot().Phase; got != PhasePreStart {
		t.Fatalf("after 9 ticks phase = %s, want pre_start", got)
	}
	tickN(t, seq, 1)
	if got := seq.Snapshot().Phase; got != PhaseActive {
		t.Fatalf("after 10 ticks phase = %s, want active", got)
	}
	tickN(t, seq, settings.DefaultTargetMaxTime)
	if got := seq.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("after the active phase phase = %s, want idle", got)
	}
	tickN(t, seq, 50)

	want := []protocol.SessionState{
		{
			CountdownContinues: true, Countdown: true, Detail: protocol.DetailAB,
			Colour: protocol.ColourAmber, TimeEnabled: true,
			Time: 10, StartNumBeeps: 2, EndNumBeeps: 1,
		},
		{
			Countdown: true, Detail: protocol.DetailAB,
			Colour: protocol.ColourGreen, TimeEnabled: true,
			Time: 240, StartNumBeeps: 0, EndNumBeeps: 3,
		},
	}
	got := sender.States()
	if len(got) != len(want) {
		t.Fatalf("sent %d states, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("state %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSequencer_emergencyStopDuringPreStart(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	ctx := context.Background()

	if _, err := seq.StartTarget(ctx, protocol.DetailCD); err != nil {
		t.Fatalf("StartTarget: %v", err)
	}
	tickN(t, seq, 4)
	if _, err := seq.EmergencyStop(ctx); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}

	for i := 0; i < 300; i++ {
		_ = seq.Tick(ctx)
		if seq.Snapshot().Phase == PhaseActive {
			t.Fatal("emergency stop must prevent the active phase")
		}
	}
	if got := seq.Snapshot().Phase; got != PhaseIdle {
		t.Errorf("phase = %s, want idle", got)
	}

	states := sender.States()
	if len(states) != 2 {
		t.Fatalf("sent %d states, want start + emergency stop", len(states))
	}
	for _, s := range states {
		if s.Colour == protocol.ColourGreen {
			t.Errorf("green state sent after emergency stop: %+v", s)
		}
	}
	want := protocol.SessionState{
		EmergencyStop: true, Detail: protocol.DetailCD,
		Colour: protocol.ColourRed, Time: 240,
	}
	if states[1] != want {
		t.Errorf("emergency state = %+v, want %+v", states[1], want)
	}
}

func TestSequencer_emergencyStopWhileIdle(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())

	if _, err := seq.EmergencyStop(context.Background()); err != nil {
		t.Fatalf("EmergencyStop: %v", err)
	}
	states := sender.States()
	if len(states) != 1 || !states[0].EmergencyStop {
		t.Errorf("expected one emergency state, got %+v", states)
	}
	tickN(t, seq, 20)
	if len(sender.States()) != 1 {
		t.Error("ticks after emergency stop must not send")
	}
}

func TestSequencer_abortedCounterRetiresSilently(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	_, _ = seq.StartTarget(context.Background(), protocol.DetailAB)
	seq.phase.Remaining = aborted

	if err := seq.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if seq.Snapshot().Phase != PhaseIdle {
		t.Error("aborted phase should be idle after one tick")
	}
	if len(sender.States()) != 1 {
		t.Errorf("aborted tick must not send, got %d states", len(sender.States()))
	}
}

func TestSequencer_matchplaySwapsOnce(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	ctx := context.Background()

	if _, err := seq.StartMatchplay(ctx, protocol.DetailAB); err != nil {
		t.Fatalf("StartMatchplay: %v", err)
	}
	tickN(t, seq, protocol.PreStartSeconds)
	if snap := seq.Snapshot(); snap.Phase != PhaseActive || snap.End != 0 {
		t.Fatalf("after pre-start: %+v", snap)
	}
	tickN(t, seq, settings.DefaultMatchplayMaxTime)
	if snap := seq.Snapshot(); snap.Phase != PhaseActive || snap.End != 1 {
		t.Fatalf("after first end: %+v", snap)
	}
	tickN(t, seq, settings.DefaultMatchplayMaxTime)
	if got := seq.Snapshot().Phase; got != PhaseIdle {
		t.Fatalf("after second end phase = %s, want idle", got)
	}

	states := sender.States()
	if len(states) != 3 {
		t.Fatalf("sent %d states, want 3", len(states))
	}

	pre := states[0]
	if !pre.Matchplay || pre.Colour != protocol.ColourAmber || pre.Detail != protocol.DetailAB || pre.Time != 10 {
		t.Errorf("pre-start state = %+v", pre)
	}
	first := states[1]
	if !first.Matchplay || first.Detail != protocol.DetailAB || first.Colour != protocol.ColourGreen ||
		first.Time != 20 || !first.CountdownContinues || first.LastEnd {
		t.Errorf("first end state = %+v", first)
	}
	second := states[2]
	if !second.Matchplay || second.Detail != protocol.DetailCD || second.Colour != protocol.ColourGreen ||
		second.Time != 20 || second.CountdownContinues || !second.LastEnd {
		t.Errorf("second end state = %+v", second)
	}
}

func TestSequencer_StartMatchplay_needsLane(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	_, err := seq.StartMatchplay(context.Background(), protocol.DetailOff)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if len(sender.States()) != 0 {
		t.Error("rejected start must not send")
	}
}

func TestSequencer_Score(t *testing.T) {
	tests := []struct {
		name          string
		autoToggle    bool
		wantSuggested protocol.Detail
	}{
		{"toggles detail", true, protocol.DetailCD},
		{"keeps detail", false, protocol.DetailAB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := settings.Defaults()
			cfg.AutoToggleDetail = tt.autoToggle
			seq, sender := newTestSequencer(t, cfg)
			ctx := context.Background()

			_, _ = seq.StartTarget(ctx, protocol.DetailAB)
			tickN(t, seq, 15)
			if _, err := seq.Score(ctx); err != nil {
				t.Fatalf("Score: %v", err)
			}

			snap := seq.Snapshot()
			if snap.Phase != PhaseIdle {
				t.Errorf("phase = %s, want idle", snap.Phase)
			}
			if snap.SuggestedDetail != tt.wantSuggested {
				t.Errorf("suggested = %s, want %s", snap.SuggestedDetail, tt.wantSuggested)
			}

			states := sender.States()
			last := states[len(states)-1]
			want := protocol.SessionState{TimeEnabled: true, Time: 240, EndNumBeeps: 3}
			if last != want {
				t.Errorf("score state = %+v, want %+v", last, want)
			}

			tickN(t, seq, 300)
			if len(sender.States()) != len(states) {
				t.Error("score must cancel the running phase")
			}
		})
	}
}

func TestSequencer_equipmentFailure(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	ctx := context.Background()

	if _, err := seq.StartEquipmentFailure(ctx, 3, 0, protocol.DetailCD); err != nil {
		t.Fatalf("StartEquipmentFailure: %v", err)
	}
	tickN(t, seq, protocol.PreStartSeconds)

	states := sender.States()
	if len(states) != 2 {
		t.Fatalf("sent %d states, want 2", len(states))
	}
	active := states[1]
	if active.Time != 3*settings.DefaultEquipFailTime || active.Detail != protocol.DetailCD || active.Colour != protocol.ColourGreen {
		t.Errorf("active state = %+v", active)
	}

	tickN(t, seq, 3*settings.DefaultEquipFailTime)
	if seq.Snapshot().Phase != PhaseIdle {
		t.Error("equipment failure run should end idle")
	}

	if _, err := seq.Score(ctx); err != nil {
		t.Fatalf("Score: %v", err)
	}
	if last := sender.States()[2]; last.Time != 3*settings.DefaultEquipFailTime {
		t.Errorf("score after equipment failure shows %d, want run duration", last.Time)
	}
}

func TestSequencer_StartEquipmentFailure_invalid(t *testing.T) {
	tests := []struct {
		name         string
		arrows       int
		timePerArrow int
	}{
		{"no arrows", 0, 30},
		{"negative arrows", -2, 30},
		{"overflows time field", 1000, 1000},
		{"negative time per arrow", 3, -5},
		{"product wraps int", 1 << 32, 1 << 32},
		{"time per arrow beyond field", 1, math.MaxUint16 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq, sender := newTestSequencer(t, settings.Defaults())
			_, err := seq.StartEquipmentFailure(context.Background(), tt.arrows, tt.timePerArrow, protocol.DetailOff)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if len(sender.States()) != 0 {
				t.Error("rejected start must not send")
			}
		})
	}
}

func TestSequencer_newStartCancelsRunningPhase(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	ctx := context.Background()

	_, _ = seq.StartTarget(ctx, protocol.DetailAB)
	tickN(t, seq, 12)
	_, _ = seq.StartMatchplay(ctx, protocol.DetailCD)

	snap := seq.Snapshot()
	if snap.Mode != ModeMatchplay || snap.Phase != PhasePreStart || snap.Remaining != protocol.PreStartSeconds {
		t.Errorf("snapshot = %+v", snap)
	}
	tickN(t, seq, protocol.PreStartSeconds)
	states := sender.States()
	if last := states[len(states)-1]; last.Time != settings.DefaultMatchplayMaxTime {
		t.Errorf("active state time = %d, want match-play duration", last.Time)
	}
}

func TestSequencer_sendErrorKeepsPhase(t *testing.T) {
	seq, sender := newTestSequencer(t, settings.Defaults())
	errDown := errors.New("link down")
	sender.err = errDown

	runID, err := seq.StartTarget(context.Background(), protocol.DetailAB)
	if !errors.Is(err, errDown) {
		t.Fatalf("expected send error, got %v", err)
	}
	if runID == "" {
		t.Error("run id should be returned with a send error")
	}
	if seq.Snapshot().Phase != PhasePreStart {
		t.Error("phase should start even when the state was not sent")
	}
}

func TestSequencer_resendOnTick(t *testing.T) {
	sender := &recordingSender{}
	seq := New(Options{Sender: sender, Settings: fixedSettings(settings.Defaults()), ResendOnTick: true})
	ctx := context.Background()

	_, _ = seq.StartTarget(ctx, protocol.DetailAB)
	tickN(t, seq, 3)

	states := sender.States()
	if len(states) != 4 {
		t.Fatalf("sent %d states, want 4", len(states))
	}
	for i, want := range []uint16{10, 9, 8, 7} {
		if states[i].Time != want {
			t.Errorf("state %d time = %d, want %d", i, states[i].Time, want)
		}
	}
	if states[1].StartNumBeeps != 0 || states[1].Colour != protocol.ColourAmber {
		t.Errorf("resent state = %+v", states[1])
	}
}

func TestSequencer_Snapshot_warning(t *testing.T) {
	cfg := settings.Defaults()
	cfg.TargetMaxTime = 40
	cfg.TargetWarnTime = 30
	seq, _ := newTestSequencer(t, cfg)

	_, _ = seq.StartTarget(context.Background(), protocol.DetailAB)
	tickN(t, seq, protocol.PreStartSeconds)
	if seq.Snapshot().Warning {
		t.Error("no warning at the start of the active phase")
	}
	tickN(t, seq, 10)
	snap := seq.Snapshot()
	if !snap.Warning || snap.Remaining != 30 {
		t.Errorf("expected warning at 30s, got %+v", snap)
	}
}

func TestSingleSwap(t *testing.T) {
	tests := []struct {
		end     int
		current protocol.Detail
		want    protocol.Detail
		wantOK  bool
	}{
		{0, protocol.DetailAB, protocol.DetailCD, true},
		{0, protocol.DetailCD, protocol.DetailAB, true},
		{1, protocol.DetailCD, protocol.DetailOff, false},
		{0, protocol.DetailOff, protocol.DetailOff, false},
	}

	for _, tt := range tests {
		got, ok := SingleSwap{}.Next(tt.end, 5, tt.current)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Next(%d, %s) = %s, %v; want %s, %v", tt.end, tt.current, got, ok, tt.want, tt.wantOK)
		}
	}
}
