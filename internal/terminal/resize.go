package terminal

import (
	"context"
	"fmt"

	"github.com/faize-ai/termlink/internal/api"
	"github.com/faize-ai/termlink/internal/clock"
)

// resizeState is the resize negotiator's share of the session. Only the
// negotiator writes lastSent.
type resizeState struct {
	lastSent Geometry
	observed Geometry
	timer    *clock.Timer
	inFlight bool
}

// Resize records a geometry observed on the local surface. The remote side
// is told after the debounce interval, and only if the size really changed.
func (s *Session) Resize(cols, rows int) error {
	g := Geometry{Cols: cols, Rows: rows}
	if !g.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidGeometry, g)
	}

	s.mu.Lock()
	if !s.activeLocked() {
		s.mu.Unlock()
		return ErrClosed
	}
	s.resize.observed = g
	s.stopResizeTimerLocked()
	immediate := s.opts.ResizeDebounce <= 0
	if !immediate {
		s.resize.timer = s.clock.AfterFunc(s.opts.ResizeDebounce, s.flushResize)
	}
	s.mu.Unlock()

	if immediate {
		s.flushResize()
	}
	return nil
}

func (s *Session) stopResizeTimerLocked() {
	if s.resize.timer != nil {
		s.resize.timer.Stop()
		s.resize.timer = nil
	}
}

// flushResize sends the newest observed geometry if it differs from what
// the server last acknowledged.
func (s *Session) flushResize() {
	s.mu.Lock()
	s.resize.timer = nil
	g, ok := s.beginResizeLocked()
	s.mu.Unlock()

	if ok {
		go s.sendResize(g)
	}
}

func (s *Session) beginResizeLocked() (Geometry, bool) {
	switch {
	case !s.activeLocked(), s.state == StateDisconnected:
		return Geometry{}, false
	case s.resize.inFlight:
		return Geometry{}, false
	case !s.resize.observed.Valid(), s.resize.observed == s.resize.lastSent:
		return Geometry{}, false
	}
	s.resize.inFlight = true
	return s.resize.observed, true
}

func (s *Session) sendResize(g Geometry) {
	id := s.Info().ID
	for {
		_, err := s.transport.Resize(context.Background(), api.ResizeRequest{
			SessionID: id,
			Cols:      g.Cols,
			Rows:      g.Rows,
		})

		s.mu.Lock()
		s.resize.inFlight = false
		if !s.activeLocked() {
			s.mu.Unlock()
			return
		}
		if err != nil {
			if api.IsNotFound(err) {
				s.closeLocked(ReasonNotFound)
				s.mu.Unlock()
				return
			}
			s.logger.Warn("resize failed", "geometry", g.String(), "error", err)
			s.emitNoticeLocked(Notice{
				Kind:    NoticeResizeFailed,
				Message: fmt.Sprintf("could not resize remote terminal to %s", g),
				Err:     err,
			})
			s.mu.Unlock()
			return
		}
		s.resize.lastSent = g
		s.stats.ResizesSent++
		s.logger.Debug("resized", "geometry", g.String())

		// A newer geometry may have been observed while this one was in
		// flight, and its debounce may already have fired.
		next, ok := Geometry{}, false
		if s.resize.timer == nil {
			next, ok = s.beginResizeLocked()
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		g = next
	}
}
