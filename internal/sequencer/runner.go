package sequencer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"range-remote/internal/protocol"
)

// TickInterval is the countdown resolution.
const TickInterval = time.Second

// enqueueTimeout bounds how long Do waits for the command loop to accept a
// command.
const enqueueTimeout = 150 * time.Millisecond

// CommandType enumerates the top-level operator actions.
type CommandType int

const (
	CmdStartTarget CommandType = iota
	CmdStartMatchplay
	CmdEquipmentFailure
	CmdScore
	CmdEmergencyStop
)

func (c CommandType) String() string {
	switch c {
	case CmdStartTarget:
		return "start_target"
	case CmdStartMatchplay:
		return "start_matchplay"
	case CmdEquipmentFailure:
		return "equipment_failure"
	case CmdScore:
		return "score"
	case CmdEmergencyStop:
		return "emergency_stop"
	default:
		return fmt.Sprintf("CommandType(%d)", int(c))
	}
}

// Command is the message sent to the Runner's command loop.
type Command struct {
	Type CommandType
	// Detail nil on CmdStartTarget selects the suggested detail.
	Detail       *protocol.Detail
	Arrows       int
	TimePerArrow int

	reply chan Result
}

// Result answers a Command. Err is set when the action was rejected or its
// state could not be sent; in the latter case the phase still advanced and
// RunID is set.
type Result struct {
	RunID    string
	Snapshot Snapshot
	Err      error
}

// Runner owns a Sequencer and is the only goroutine that touches it. It
// selects over operator commands and a one-second ticker.
type Runner struct {
	seq      *Sequencer
	interval time.Duration
	cmdCh    chan Command
	log      *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// NewRunner returns a Runner ticking seq every interval (TickInterval when
// interval <= 0). Call Run to start it.
func NewRunner(seq *Sequencer, interval time.Duration, log *slog.Logger) *Runner {
	if interval <= 0 {
		interval = TickInterval
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		seq:      seq,
		interval: interval,
		cmdCh:    make(chan Command, 16),
		log:      log.With(slog.String("component", "runner")),
		snap:     seq.Snapshot(),
	}
}

// Run processes commands and ticks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-r.cmdCh:
			res := r.apply(ctx, cmd)
			// the new phase ticks from its own start
			ticker.Reset(r.interval)
			res.Snapshot = r.publish()
			if cmd.reply != nil {
				select {
				case cmd.reply <- res:
				default:
				}
			}
		case <-ticker.C:
			if err := r.seq.Tick(ctx); err != nil {
				r.log.Debug("tick send failed", slog.String("error", err.Error()))
			}
			r.publish()
		}
	}
}

func (r *Runner) apply(ctx context.Context, cmd Command) Result {
	var (
		res Result
		err error
	)
	switch cmd.Type {
	case CmdStartTarget:
		detail := r.seq.SuggestedDetail()
		if cmd.Detail != nil {
			detail = *cmd.Detail
		}
		res.RunID, err = r.seq.StartTarget(ctx, detail)
	case CmdStartMatchplay:
		if cmd.Detail == nil {
			err = fmt.Errorf("%w: match-play needs a detail", ErrInvalidArgument)
			break
		}
		res.RunID, err = r.seq.StartMatchplay(ctx, *cmd.Detail)
	case CmdEquipmentFailure:
		detail := protocol.DetailOff
		if cmd.Detail != nil {
			detail = *cmd.Detail
		}
		res.RunID, err = r.seq.StartEquipmentFailure(ctx, cmd.Arrows, cmd.TimePerArrow, detail)
	case CmdScore:
		res.RunID, err = r.seq.Score(ctx)
	case CmdEmergencyStop:
		res.RunID, err = r.seq.EmergencyStop(ctx)
	default:
		err = fmt.Errorf("%w: unknown command %s", ErrInvalidArgument, cmd.Type)
	}
	res.Err = err
	return res
}

// Do hands cmd to the command loop and waits for its result. It returns
// ErrBusy when the loop does not accept the command within 150ms.
func (r *Runner) Do(ctx context.Context, cmd Command) (Result, error) {
	cmd.reply = make(chan Result, 1)

	timer := time.NewTimer(enqueueTimeout)
	defer timer.Stop()
	select {
	case r.cmdCh <- cmd:
	case <-timer.C:
		r.log.Warn("command dropped", slog.String("command", cmd.Type.String()))
		return Result{}, ErrBusy
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Snapshot returns the state as of the last command or tick. Safe for
// concurrent use.
func (r *Runner) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

func (r *Runner) publish() Snapshot {
	snap := r.seq.Snapshot()
	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
	return snap
}
