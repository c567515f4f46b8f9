package terminal

import (
	"context"
	"fmt"

	"github.com/faize-ai/termlink/internal/api"
)

// interruptByte is what a terminal sends for Ctrl-C.
const interruptByte = 0x03

// inputState is the input sequencer's share of the session. Requests leave
// through a single worker so the server sees client_seq in order.
type inputState struct {
	lastSeq uint64
	queue   []api.InputRequest
	wake    chan struct{}
	stop    chan struct{}
}

// Send submits raw input bytes and returns the client_seq assigned to
// them. The sequence number is consumed even if delivery later fails.
func (s *Session) Send(data []byte) (uint64, error) {
	return s.submit(string(data), api.InputKindData)
}

// Interrupt sends Ctrl-C tagged so the server may act on it ahead of
// queued shell input.
func (s *Session) Interrupt() (uint64, error) {
	return s.submit(string([]byte{interruptByte}), api.InputKindInterrupt)
}

func (s *Session) submit(data, kind string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.detached || s.state.Terminal():
		return 0, ErrClosed
	case s.state == StateDisconnected:
		return 0, ErrNotConnected
	}

	s.input.lastSeq++
	seq := s.input.lastSeq
	s.input.queue = append(s.input.queue, api.InputRequest{
		SessionID: s.info.ID,
		InputData: data,
		ClientSeq: seq,
		Kind:      kind,
	})
	s.stats.InputsSent++
	select {
	case s.input.wake <- struct{}{}:
	default:
	}
	return seq, nil
}

func (s *Session) inputLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-s.input.wake:
		}
		for {
			req, ok := s.nextInput()
			if !ok {
				break
			}
			_, err := s.transport.SendInput(context.Background(), req)
			s.commitInput(req, err)
		}
	}
}

func (s *Session) nextInput() (api.InputRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() || s.state == StateDisconnected || len(s.input.queue) == 0 {
		return api.InputRequest{}, false
	}
	req := s.input.queue[0]
	s.input.queue = s.input.queue[1:]
	return req, true
}

func (s *Session) commitInput(req api.InputRequest, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.activeLocked() {
		return
	}
	if api.IsNotFound(err) {
		s.closeLocked(ReasonNotFound)
		return
	}
	s.logger.Warn("input not delivered", "client_seq", req.ClientSeq, "error", err)
	s.reportInputFailureLocked(req.ClientSeq, err)
}

// dropQueuedInputLocked discards input that was sequenced but not yet sent.
// With a non-nil err each dropped record is reported as failed.
func (s *Session) dropQueuedInputLocked(err error) {
	queued := s.input.queue
	s.input.queue = nil
	if err == nil {
		return
	}
	for _, req := range queued {
		s.reportInputFailureLocked(req.ClientSeq, err)
	}
}

func (s *Session) reportInputFailureLocked(seq uint64, err error) {
	s.stats.InputFailures++
	s.emitNoticeLocked(Notice{
		Kind:    NoticeInputFailed,
		Message: fmt.Sprintf("input #%d was not delivered", seq),
		Err:     err,
		Seq:     seq,
	})
}
