// Package indicator emulates the range indicator unit: the traffic light,
// timer display and buzzer at the far end of the serial link. A Unit is an
// io.ReadWriteCloser, so it can stand in for the serial port.
package indicator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"range-remote/internal/protocol"
)

// maxPendingOutput caps debug output nobody reads.
const maxPendingOutput = 16 << 10

// Options configures a Unit.
type Options struct {
	// Lane is the detail the unit answers to in match-play (AB or CD).
	Lane   protocol.Detail
	Buzzer *Buzzer
	Logger *slog.Logger
}

// Display is what the unit currently shows.
type Display struct {
	Colour    protocol.Colour `json:"colour"`
	Detail    protocol.Detail `json:"detail"`
	Time      uint16          `json:"time"`
	TimeShown bool            `json:"timeShown"`
	Blank     bool            `json:"blank"`
	Counting  bool            `json:"counting"`
	Buzzing   bool            `json:"buzzing"`
}

// Unit applies decoded state packets the way the indicator firmware does.
type Unit struct {
	mu     sync.Mutex
	cond   *sync.Cond
	out    bytes.Buffer
	closed bool

	lane    protocol.Detail
	dec     *protocol.Decoder
	state   protocol.SessionState
	blank   bool
	buzzing time.Duration
	beeps   []int

	buzzer *Buzzer
	sounds sync.WaitGroup
	log    *slog.Logger
}

// New returns a blank unit.
func New(opts Options) *Unit {
	if opts.Lane != protocol.DetailCD {
		opts.Lane = protocol.DetailAB
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	u := &Unit{
		lane:   opts.Lane,
		dec:    protocol.NewDecoder(),
		blank:  true,
		buzzer: opts.Buzzer,
		log:    opts.Logger.With(slog.String("component", "indicator")),
	}
	u.cond = sync.NewCond(&u.mu)
	return u
}

// Write feeds received bytes to the packet decoder and applies every
// complete, valid packet.
func (u *Unit) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, io.ErrClosedPipe
	}

	_, corruptBefore, _ := u.dec.Stats()
	frames := u.dec.Feed(p)
	if _, corrupt, _ := u.dec.Stats(); corrupt > corruptBefore {
		u.printf("Bad checksum: %d packet(s) dropped\n", corrupt-corruptBefore)
	}
	for _, data := range frames {
		s, err := protocol.DecodeState(data)
		if err != nil {
			u.printf("Bad state: %v\n", err)
			continue
		}
		u.apply(s)
	}
	return len(p), nil
}

func (u *Unit) apply(s protocol.SessionState) {
	if s.Matchplay && s.Detail != u.lane {
		return
	}
	old := u.state
	u.state = s
	u.printState()

	// a continuing countdown ignores a clear from a lagging controller
	if old.CountdownContinues && !s.CountdownContinues {
		u.state.CountdownContinues = true
	}

	if s.EmergencyStop {
		u.state.CountdownContinues = false
		u.beep(protocol.EmergencyStopBeeps)
		u.blank = true
		return
	}
	u.blank = false

	if old.Countdown != s.Countdown {
		if s.Countdown {
			if u.state.Time > 0 {
				u.state.Time--
			}
			u.beep(int(s.StartNumBeeps))
		} else {
			u.beep(int(s.EndNumBeeps))
			u.blank = true
		}
	}
}

// Tick advances the unit by one second: the countdown display and the
// buzzer.
func (u *Unit) Tick() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.buzzing > 0 {
		u.buzzing -= time.Second
		if u.buzzing < 0 {
			u.buzzing = 0
		}
	}

	if !u.state.Countdown {
		return
	}
	if u.state.Time > 1 {
		u.state.Time--
		return
	}

	u.beep(int(u.state.EndNumBeeps))
	if !u.state.CountdownContinues {
		u.state.Countdown = false
		u.blank = true
		return
	}
	u.state.CountdownContinues = false
}

// Run ticks the unit every interval until ctx is done or the unit is closed.
func (u *Unit) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if u.isClosed() {
				return
			}
			u.Tick()
		}
	}
}

func (u *Unit) beep(n int) {
	if n <= 0 {
		return
	}
	u.beeps = append(u.beeps, n)
	if d := patternDuration(n); d > u.buzzing {
		u.buzzing = d
	}
	u.printf("Beep x%d\n", n)
	if u.buzzer == nil || u.closed {
		return
	}
	u.sounds.Add(1)
	go func() {
		defer u.sounds.Done()
		if _, err := u.buzzer.Sound(n); err != nil {
			u.log.Warn("buzzer recording failed", slog.String("error", err.Error()))
		}
	}()
}

func (u *Unit) printState() {
	s := u.state
	u.printf("Updated State:\n")
	u.printf("  Countdown continues:  %t\n", s.CountdownContinues)
	u.printf("  Last end (matchplay): %t\n", s.LastEnd)
	u.printf("  Should count down:    %t\n", s.Countdown)
	u.printf("  Detail:               %s\n", s.Detail)
	u.printf("  Colour:               %s\n", s.Colour)
	u.printf("  Should show time:     %t\n", s.TimeEnabled)
	u.printf("  Time value:           %d\n", s.Time)
}

// printf queues a debug line for Read. Caller holds mu.
func (u *Unit) printf(format string, args ...any) {
	if u.out.Len() >= maxPendingOutput {
		return
	}
	fmt.Fprintf(&u.out, format, args...)
	u.cond.Broadcast()
}

// Read returns debug output, blocking until some is available. It returns
// io.EOF once the unit is closed and the output drained.
func (u *Unit) Read(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for u.out.Len() == 0 && !u.closed {
		u.cond.Wait()
	}
	if u.out.Len() == 0 {
		return 0, io.EOF
	}
	return u.out.Read(p)
}

// Close stops the unit and waits for pending buzzer recordings.
func (u *Unit) Close() error {
	u.mu.Lock()
	u.closed = true
	u.cond.Broadcast()
	u.mu.Unlock()
	u.sounds.Wait()
	return nil
}

func (u *Unit) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

// Lane returns the match-play detail the unit answers to.
func (u *Unit) Lane() protocol.Detail { return u.lane }

// State returns the last applied state, including local countdown progress.
func (u *Unit) State() protocol.SessionState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Display returns what the unit currently shows.
func (u *Unit) Display() Display {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.blank {
		return Display{Colour: protocol.ColourRed, Blank: true, Buzzing: u.buzzing > 0}
	}
	return Display{
		Colour:    u.state.Colour,
		Detail:    u.state.Detail,
		Time:      u.state.Time,
		TimeShown: u.state.TimeEnabled,
		Counting:  u.state.Countdown,
		Buzzing:   u.buzzing > 0,
	}
}

// Beeps returns the beep counts sounded so far, oldest first.
func (u *Unit) Beeps() []int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]int(nil), u.beeps...)
}
