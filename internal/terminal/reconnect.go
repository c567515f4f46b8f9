package terminal

import (
	"fmt"
	"time"

	"github.com/faize-ai/termlink/internal/clock"
)

// reconnectState is the reconnection manager's share of the session.
type reconnectState struct {
	attempts int
	timer    *clock.Timer
}

// Reconnect resumes polling after a disconnect. The cursor it resumes from
// depends on the configured CursorPolicy.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	if !s.activeLocked() {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrNotDisconnected
	}
	s.cancelAutoReconnectLocked()
	s.reconnectLocked()
	s.mu.Unlock()

	s.afterReconnect()
	return nil
}

// Abandon gives up on a disconnected session without contacting the
// server. The remote shell is left to the server's own cleanup.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateClosed:
		return nil
	case !s.activeLocked():
		return ErrClosed
	case s.state != StateDisconnected:
		return ErrNotDisconnected
	}
	s.closeLocked(ReasonAbandoned)
	return nil
}

func (s *Session) reconnectLocked() {
	s.output.epoch++
	s.output.inFlight = false
	if s.opts.Reconnect.Policy == CursorRestart && s.output.cursor != 0 {
		s.logger.Info("restarting output stream", "discarded_cursor", s.output.cursor)
		s.output.cursor = 0
		s.emitNoticeLocked(Notice{
			Kind:    NoticeStreamReset,
			Message: "replaying output from the start of the server buffer",
		})
	}
	s.stats.Reconnects++
	s.state = StateRunning
	s.conn = ConnectionState{Status: ConnConnecting}
	s.emitStateLocked()
	s.startPollingLocked()
	s.logger.Info("reconnecting", "cursor", s.output.cursor)
}

// afterReconnect issues the immediate fetch and flushes any geometry that
// was held while disconnected.
func (s *Session) afterReconnect() {
	s.pollNow()
	s.flushResize()
}

func (s *Session) scheduleAutoReconnectLocked() {
	rc := s.opts.Reconnect
	if !rc.Auto {
		return
	}
	if rc.MaxAttempts > 0 && s.recon.attempts >= rc.MaxAttempts {
		s.logger.Warn("giving up on automatic reconnect", "attempts", s.recon.attempts)
		s.emitNoticeLocked(Notice{
			Kind:    NoticeReconnecting,
			Message: fmt.Sprintf("automatic reconnect gave up after %d attempts", s.recon.attempts),
		})
		return
	}

	delay := backoff(rc.MinBackoff, rc.MaxBackoff, s.recon.attempts)
	s.recon.attempts++
	s.recon.timer = s.clock.AfterFunc(delay, s.autoReconnect)
	s.emitNoticeLocked(Notice{
		Kind:    NoticeReconnecting,
		Message: fmt.Sprintf("reconnecting in %s (attempt %d)", delay, s.recon.attempts),
	})
}

func (s *Session) autoReconnect() {
	s.mu.Lock()
	s.recon.timer = nil
	if !s.activeLocked() || s.state != StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.reconnectLocked()
	s.mu.Unlock()

	s.afterReconnect()
}

func (s *Session) cancelAutoReconnectLocked() {
	if s.recon.timer != nil {
		s.recon.timer.Stop()
		s.recon.timer = nil
	}
}

// backoff doubles lo for every previous attempt, capped at hi.
func backoff(lo, hi time.Duration, attempt int) time.Duration {
	d := lo
	for i := 0; i < attempt && d < hi; i++ {
		d *= 2
	}
	if d > hi {
		d = hi
	}
	return d
}
