// Package link owns the serial connection to the indicator unit. It frames
// session state updates and writes them with a bounded timeout; sends are
// fire-and-forget and never retried.
package link

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"range-remote/internal/platform/metrics"
	"range-remote/internal/protocol"
)

// DefaultWriteTimeout is the budget for one packet write.
const DefaultWriteTimeout = 200 * time.Millisecond

// readerStopTimeout bounds how long Disconnect waits for the diagnostics
// reader to notice the closed port.
const readerStopTimeout = time.Second

// Drop reasons reported to metrics.
const (
	dropNoTransport = "no_transport"
	dropTooLarge    = "too_large"
	dropTimeout     = "timeout"
	dropBusy        = "busy"
	dropWriteError  = "write_error"
)

// OpenFunc opens a named device. OpenSerial is the production implementation.
type OpenFunc func(device string, baud int) (io.ReadWriteCloser, error)

// Options configures a Link. Zero values select the defaults.
type Options struct {
	WriteTimeout time.Duration
	BaudRate     int
	Open         OpenFunc
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Status describes the current connection.
type Status struct {
	Connected   bool      `json:"connected"`
	Device      string    `json:"device,omitempty"`
	ConnectedAt time.Time `json:"connectedAt,omitempty"`
}

// Link is the controller side of the serial link. It is safe for concurrent
// use; attach, detach and writes are serialized.
type Link struct {
	mu          sync.Mutex
	port        io.ReadWriteCloser
	device      string
	connectedAt time.Time
	readerDone  chan struct{}
	// pending is closed when a write that overran its budget finally returns.
	pending chan struct{}

	writeTimeout time.Duration
	baud         int
	open         OpenFunc
	log          *slog.Logger
	unitLog      *slog.Logger
	metrics      *metrics.Metrics
}

// New returns a Link with no transport attached.
func New(opts Options) *Link {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = protocol.BaudRate
	}
	if opts.Open == nil {
		opts.Open = OpenSerial
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Link{
		writeTimeout: opts.WriteTimeout,
		baud:         opts.BaudRate,
		open:         opts.Open,
		log:          opts.Logger.With(slog.String("component", "link")),
		unitLog:      opts.Logger.With(slog.String("component", "unit")),
		metrics:      opts.Metrics,
	}
}

// Connect opens device and attaches it, replacing any current transport.
func (l *Link) Connect(device string) error {
	port, err := l.open(device, l.baud)
	if err != nil {
		l.log.Warn("connect failed", slog.String("device", device), slog.String("error", err.Error()))
		return fmt.Errorf("open %s: %w", device, err)
	}
	l.Attach(device, port)
	return nil
}

// Attach installs an already open transport. A previously attached port is
// released first. Session state is not touched.
func (l *Link) Attach(name string, port io.ReadWriteCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		l.detachLocked()
	}

	done := make(chan struct{})
	l.port = port
	l.device = name
	l.connectedAt = time.Now().UTC()
	l.readerDone = done
	l.pending = nil
	go l.readDiagnostics(port, done)

	l.metrics.SetLinkConnected(true)
	l.log.Info("link attached", slog.String("device", name))
}

// Disconnect closes the transport. It is a no-op when nothing is attached.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return nil
	}
	return l.detachLocked()
}

// detachLocked closes the port and waits for the reader to exit.
// Caller must hold l.mu.
func (l *Link) detachLocked() error {
	err := l.port.Close()

	select {
	case <-l.readerDone:
	case <-time.After(readerStopTimeout):
		l.log.Warn("diagnostics reader did not stop", slog.String("device", l.device))
	}

	l.log.Info("link detached", slog.String("device", l.device))
	l.port = nil
	l.device = ""
	l.connectedAt = time.Time{}
	l.readerDone = nil
	l.pending = nil
	l.metrics.SetLinkConnected(false)

	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Status reports whether a transport is attached.
func (l *Link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{Connected: l.port != nil, Device: l.device, ConnectedAt: l.connectedAt}
}

// SendState frames the full session state and writes it.
func (l *Link) SendState(ctx context.Context, s protocol.SessionState) error {
	return l.SendRaw(ctx, s.WriteTo)
}

// SendRaw frames whatever build writes into the data segment and writes it.
func (l *Link) SendRaw(ctx context.Context, build func(*protocol.Segment)) error {
	var seg protocol.Segment
	build(&seg)

	packet, err := protocol.EncodeFrame(seg.Bytes())
	if err != nil {
		l.metrics.IncFramesDropped(dropTooLarge)
		return err
	}
	return l.write(ctx, packet)
}

func (l *Link) write(ctx context.Context, packet []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		l.metrics.IncFramesDropped(dropNoTransport)
		return ErrNoTransport
	}

	if l.pending != nil {
		select {
		case <-l.pending:
			l.pending = nil
		default:
			l.metrics.IncFramesDropped(dropBusy)
			return fmt.Errorf("%w: previous write still blocked", ErrWriteTimeout)
		}
	}

	port := l.port
	result := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_, err := port.Write(packet)
		result <- err
	}()

	timer := time.NewTimer(l.writeTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			l.metrics.IncFramesDropped(dropWriteError)
			l.log.Warn("write failed", slog.String("error", err.Error()))
			return fmt.Errorf("write: %w", err)
		}
		l.metrics.ObserveFrameSent(len(packet))
		l.log.Debug("packet sent", slog.Int("bytes", len(packet)))
		return nil
	case <-timer.C:
		l.pending = finished
		l.metrics.IncFramesDropped(dropTimeout)
		l.log.Warn("write timed out, packet dropped", slog.Duration("budget", l.writeTimeout))
		return ErrWriteTimeout
	case <-ctx.Done():
		l.pending = finished
		l.metrics.IncFramesDropped(dropTimeout)
		return fmt.Errorf("%w: %w", ErrWriteTimeout, ctx.Err())
	}
}
