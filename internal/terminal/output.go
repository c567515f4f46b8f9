package terminal

import (
	"context"
	"time"

	"github.com/faize-ai/termlink/internal/api"
)

// outputState is the output cursor reconciler's share of the session.
type outputState struct {
	cursor   int64
	inFlight bool
	// epoch invalidates fetches issued before a disconnect, reconnect or
	// close.
	epoch uint64
}

type fetchRequest struct {
	from  int64
	epoch uint64
}

func (s *Session) pollingLocked() bool {
	return !s.detached && (s.state == StateOpening || s.state == StateRunning)
}

func (s *Session) startPollingLocked() {
	if s.ticker != nil {
		return
	}
	s.ticker = s.clock.NewTicker(s.opts.PollInterval)
	s.pollStop = make(chan struct{})
	go s.pollLoop(s.ticker.C, s.pollStop)
}

func (s *Session) stopPollingLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.pollStop)
	s.ticker = nil
	s.pollStop = nil
}

func (s *Session) pollLoop(ticks <-chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticks:
		}
		select {
		case <-stop:
			return
		default:
		}
		s.pollNow()
	}
}

// pollNow starts a fetch unless one is already outstanding.
func (s *Session) pollNow() {
	s.mu.Lock()
	if !s.pollingLocked() {
		s.mu.Unlock()
		return
	}
	if s.output.inFlight {
		s.stats.SkippedTicks++
		s.mu.Unlock()
		return
	}
	s.output.inFlight = true
	req := fetchRequest{from: s.output.cursor, epoch: s.output.epoch}
	s.mu.Unlock()

	go s.fetchChain(req)
}

// fetchChain runs one fetch and any follow-ups the server asked for with
// has_more. The session's inFlight flag stays set for the whole chain.
func (s *Session) fetchChain(req fetchRequest) {
	id := s.Info().ID
	for {
		delta, err := s.transport.FetchOutput(context.Background(), id, req.from)
		next, more := s.commitFetch(req, delta, err)
		if !more {
			return
		}
		req = next
	}
}

func (s *Session) commitFetch(req fetchRequest, delta api.OutputDelta, err error) (fetchRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.epoch != s.output.epoch {
		return fetchRequest{}, false
	}
	s.output.inFlight = false
	if !s.pollingLocked() {
		return fetchRequest{}, false
	}

	if err != nil {
		if api.IsNotFound(err) {
			s.closeLocked(ReasonNotFound)
			return fetchRequest{}, false
		}
		s.disconnectLocked(err)
		return fetchRequest{}, false
	}

	if req.from > 0 && delta.ToCursor < req.from {
		// The server's stream restarted below our cursor.
		s.logger.Info("output stream reset by server", "cursor", req.from, "server_end", delta.ToCursor)
		s.output.cursor = 0
		s.emitNoticeLocked(Notice{
			Kind:    NoticeStreamReset,
			Message: "remote output stream restarted",
		})
		s.output.inFlight = true
		return fetchRequest{from: 0, epoch: s.output.epoch}, true
	}

	data := delta.Data
	if delta.FromCursor < req.from {
		overlap := req.from - delta.FromCursor
		if overlap > int64(len(data)) {
			overlap = int64(len(data))
		}
		data = data[overlap:]
	}

	if delta.Warning != nil || delta.FromCursor > req.from {
		w := &BufferOverflowWarning{From: req.from, To: delta.FromCursor}
		if delta.Warning != nil {
			w.Message = delta.Warning.Message
		} else {
			w.Message = "server skipped ahead"
		}
		s.stats.Warnings++
		s.logger.Warn("output lost", "from", w.From, "to", w.To, "message", w.Message)
		s.emitNoticeLocked(Notice{Kind: NoticeBufferOverflow, Message: w.Message, Err: w})
	}

	s.output.cursor = delta.ToCursor
	s.markConnectedLocked()

	if len(data) == 0 {
		s.stats.IdleTicks++
	} else {
		s.stats.Deltas++
		s.stats.BytesReceived += int64(len(data))
		out := append([]byte(nil), data...)
		s.events.push(func(cb Callbacks) {
			if cb.Output != nil {
				cb.Output(out)
			}
		})
	}

	if delta.HasMore && !delta.Empty() {
		s.output.inFlight = true
		return fetchRequest{from: s.output.cursor, epoch: s.output.epoch}, true
	}
	return fetchRequest{}, false
}
