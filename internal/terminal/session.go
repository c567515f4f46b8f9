package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/faize-ai/termlink/internal/api"
	"github.com/faize-ai/termlink/internal/clock"
)

// Transport is the backend contract a session drives. *api.Client
// implements it.
type Transport interface {
	CreateSession(ctx context.Context, req api.CreateRequest) (api.CreateResponse, error)
	SendInput(ctx context.Context, req api.InputRequest) (api.InputAck, error)
	FetchOutput(ctx context.Context, sessionID string, fromCursor int64) (api.OutputDelta, error)
	Resize(ctx context.Context, req api.ResizeRequest) (api.ResizeAck, error)
	CloseSession(ctx context.Context, sessionID string, force bool) error
}

var _ Transport = (*api.Client)(nil)

// Session is one view onto a remote shell. All state lives behind mu; the
// poll, input and resize goroutines commit their results back under it.
type Session struct {
	transport Transport
	clock     clock.Clock
	opts      Options
	logger    *slog.Logger
	events    *dispatcher
	release   func(*Session)

	mu       sync.Mutex
	info     Info
	state    State
	conn     ConnectionState
	detached bool
	stats    Stats

	ticker   *clock.Ticker
	pollStop chan struct{}

	output outputState
	input  inputState
	resize resizeState
	recon  reconnectState
}

func newSession(info Info, transport Transport, opts Options, cb Callbacks, release func(*Session)) *Session {
	s := &Session{
		transport: transport,
		clock:     opts.Clock,
		opts:      opts,
		logger:    opts.Logger,
		events:    newDispatcher(cb),
		release:   release,
		info:      info,
		state:     StateOpening,
		conn:      ConnectionState{Status: ConnConnecting},
	}
	s.input.wake = make(chan struct{}, 1)
	return s
}

// start begins polling and input submission. The session ID must be known.
func (s *Session) start() {
	s.mu.Lock()
	s.logger = s.opts.Logger.With("session_id", s.info.ID)
	s.input.stop = make(chan struct{})
	go s.inputLoop(s.input.stop)
	s.startPollingLocked()
	s.mu.Unlock()

	s.pollNow()
}

// Info returns the session's identity.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// ID returns the server-issued session identifier.
func (s *Session) ID() string { return s.Info().ID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connection() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Cursor returns the byte offset of the next output fetch.
func (s *Session) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output.cursor
}

// LastSeq returns the highest client_seq handed to the transport.
func (s *Session) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input.lastSeq
}

// Geometry returns the last geometry the server acknowledged.
func (s *Session) Geometry() Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resize.lastSent
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Done is closed once every callback has been delivered after Close, or
// immediately after Detach.
func (s *Session) Done() <-chan struct{} { return s.events.done }

// Close ends the session. Local state moves to closed before the close
// request goes out, so no callback fires after Close returns except those
// already queued. Calling Close again is a no-op.
func (s *Session) Close(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	id := s.info.ID
	s.closeLocked(ReasonRequested)
	s.mu.Unlock()

	if err := s.transport.CloseSession(ctx, id, force); err != nil {
		if api.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// Detach tears down the view and leaves the remote session running.
// Pending callbacks are dropped and timers stopped.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detached {
		return
	}
	s.detached = true
	s.haltLocked()
	s.events.discard()
	s.logger.Debug("session detached", "cursor", s.output.cursor, "last_seq", s.input.lastSeq)
	if s.release != nil {
		s.release(s)
	}
}

// active reports whether the session may still talk to the server.
func (s *Session) activeLocked() bool {
	return !s.detached && !s.state.Terminal()
}

// haltLocked stops every timer and background loop and invalidates any
// request still in flight.
func (s *Session) haltLocked() {
	s.stopPollingLocked()
	s.output.epoch++
	s.output.inFlight = false
	s.stopResizeTimerLocked()
	s.cancelAutoReconnectLocked()
	if s.input.stop != nil {
		close(s.input.stop)
		s.input.stop = nil
	}
}

func (s *Session) closeLocked(reason CloseReason) {
	if s.state == StateClosed {
		return
	}
	s.haltLocked()
	s.dropQueuedInputLocked(nil)
	s.state = StateClosed
	s.conn = ConnectionState{Status: ConnDisconnected}
	s.emitStateLocked()
	s.events.push(func(cb Callbacks) {
		if cb.Close != nil {
			cb.Close(reason)
		}
	})
	s.events.finish()
	s.logger.Info("session closed", "reason", reason, "cursor", s.output.cursor)
	if s.release != nil {
		s.release(s)
	}
}

func (s *Session) failLocked(err error) {
	s.haltLocked()
	s.state = StateFailed
	s.conn = ConnectionState{Status: ConnError, Reason: err.Error()}
	s.emitStateLocked()
	s.events.finish()
}

func (s *Session) disconnectLocked(err error) {
	s.stopPollingLocked()
	s.output.epoch++
	s.output.inFlight = false
	s.dropQueuedInputLocked(ErrNotConnected)
	s.state = StateDisconnected
	s.conn = ConnectionState{Status: ConnError, Reason: err.Error()}
	s.emitStateLocked()
	s.events.push(func(cb Callbacks) {
		if cb.Disconnect != nil {
			cb.Disconnect(err)
		}
	})
	s.logger.Warn("session disconnected", "cursor", s.output.cursor, "error", err)
	s.scheduleAutoReconnectLocked()
}

// markConnectedLocked records a successful exchange with the server.
func (s *Session) markConnectedLocked() {
	s.recon.attempts = 0
	if s.state == StateRunning && s.conn.Status == ConnConnected {
		return
	}
	s.state = StateRunning
	s.conn = ConnectionState{Status: ConnConnected}
	s.emitStateLocked()
}

func (s *Session) emitStateLocked() {
	state, conn := s.state, s.conn
	s.events.push(func(cb Callbacks) {
		if cb.State != nil {
			cb.State(state, conn)
		}
	})
}

func (s *Session) emitNoticeLocked(n Notice) {
	s.events.push(func(cb Callbacks) {
		if cb.Notice != nil {
			cb.Notice(n)
		}
	})
}
