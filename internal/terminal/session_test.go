package terminal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faize-ai/termlink/internal/api"
)

const (
	prompt  = "Linux agent-1 6.1.0-21\r\nuser@agent-1:~$ "
	listing = "ls\r\nREADME.md  bin  cmd  go.mod  go.sum  internal\r\nMakefile.in\r\nuser@agent-1:~$ "
)

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session callbacks were not drained")
	}
}

func TestPromptInputAndRemoteClose(t *testing.T) {
	require.Len(t, prompt, 40)
	require.Len(t, listing, 80)

	h := newHarness(t)
	h.transport.push(delta(0, 40, prompt))

	s := h.open()
	assert.Equal(t, "sess-1", s.ID())
	eventually(t, settled(s, 40))
	eventually(t, func() bool { return h.rec.Output() == prompt })
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, ConnConnected, s.Connection().Status)

	seq, err := s.Send([]byte("ls\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	eventually(t, func() bool { return len(h.transport.Inputs()) == 1 })
	in := h.transport.Inputs()[0]
	assert.Equal(t, api.InputRequest{SessionID: "sess-1", InputData: "ls\n", ClientSeq: 1, Kind: api.InputKindData}, in)

	h.transport.push(delta(40, 120, listing))
	h.tick()
	eventually(t, settled(s, 120))
	eventually(t, func() bool { return h.rec.Output() == prompt+listing })

	h.transport.push(failure(errNotFound))
	h.tick()
	waitDone(t, s)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []CloseReason{ReasonNotFound}, h.rec.Closes())
	assert.Equal(t, []State{StateOpening, StateRunning, StateClosed}, h.rec.States())
	assert.Equal(t, int64(120), s.Cursor())
	assert.Equal(t, 0, h.clock.PendingCount(), "poll ticker must be stopped")

	fetches := len(h.transport.Fetches())
	h.tick()
	h.tick()
	assert.Len(t, h.transport.Fetches(), fetches)
	_, ok := h.manager.Get("sess-1")
	assert.False(t, ok)
}

func TestOverflowWarningOnIdleDelta(t *testing.T) {
	h := newHarness(t)
	h.transport.push(fetchResult{delta: api.OutputDelta{
		SessionID:  "sess-1",
		FromCursor: 1000,
		ToCursor:   1000,
		Warning:    &api.Warning{Message: "buffer overflow"},
	}})

	s := h.open()
	eventually(t, settled(s, 1000))
	eventually(t, func() bool { return len(h.rec.NoticesOf(NoticeBufferOverflow)) == 1 })

	n := h.rec.NoticesOf(NoticeBufferOverflow)[0]
	assert.Equal(t, "buffer overflow", n.Message)
	var w *BufferOverflowWarning
	require.ErrorAs(t, n.Err, &w)
	assert.Equal(t, int64(0), w.From)
	assert.Equal(t, int64(1000), w.To)
	assert.Empty(t, h.rec.Output())
	assert.Equal(t, StateRunning, s.State())

	h.tick()
	eventually(t, func() bool { return len(h.transport.Fetches()) == 2 })
	assert.Equal(t, []int64{0, 1000}, h.transport.Fetches())
	assert.Equal(t, 1, s.Stats().Warnings)
}

func TestCursorChainsAcrossDeltas(t *testing.T) {
	h := newHarness(t)
	h.transport.push(delta(0, 3, "abc"), delta(3, 3, ""), delta(3, 7, "defg"))

	s := h.open()
	eventually(t, settled(s, 3))
	h.tick()
	eventually(t, func() bool { return len(h.transport.Fetches()) == 2 })
	eventually(t, settled(s, 3))
	h.tick()
	eventually(t, settled(s, 7))

	assert.Equal(t, []int64{0, 3, 3}, h.transport.Fetches())
	eventually(t, func() bool { return h.rec.Output() == "abcdefg" })

	st := s.Stats()
	assert.Equal(t, 2, st.Deltas)
	assert.Equal(t, 1, st.IdleTicks)
	assert.Equal(t, int64(7), st.BytesReceived)
}

func TestSingleFetchInFlight(t *testing.T) {
	h := newHarness(t)
	h.transport.hold()
	h.transport.push(delta(0, 5, "hello"))

	s := h.open()
	eventually(t, func() bool { return len(h.transport.Fetches()) == 1 })

	for i := 1; i <= 5; i++ {
		h.tick()
		want := i
		eventually(t, func() bool { return s.Stats().SkippedTicks == want })
	}
	assert.Len(t, h.transport.Fetches(), 1)

	h.transport.releaseAll()
	eventually(t, settled(s, 5))
	assert.Len(t, h.transport.Fetches(), 1)
}

func TestHasMoreDrainsWithoutTick(t *testing.T) {
	h := newHarness(t)
	first := delta(0, 4, "1234")
	first.delta.HasMore = true
	second := delta(4, 8, "5678")
	second.delta.HasMore = true
	h.transport.push(first, second, delta(8, 10, "90"))

	s := h.open()
	eventually(t, settled(s, 10))
	assert.Equal(t, []int64{0, 4, 8}, h.transport.Fetches())
	eventually(t, func() bool { return h.rec.Output() == "1234567890" })
}

func TestTransportErrorDisconnects(t *testing.T) {
	h := newHarness(t)
	h.transport.push(delta(0, 40, prompt), failure(errOffline))

	s := h.open()
	eventually(t, settled(s, 40))
	h.tick()
	eventually(t, func() bool { return s.State() == StateDisconnected })

	assert.Equal(t, int64(40), s.Cursor(), "cursor must not advance on failure")
	conn := s.Connection()
	assert.Equal(t, ConnError, conn.Status)
	assert.Contains(t, conn.Reason, "503")
	assert.Equal(t, 0, h.clock.PendingCount(), "poll ticker must be stopped")
	eventually(t, func() bool { return len(h.rec.Disconnects()) == 1 })
	assert.True(t, api.IsTransport(h.rec.Disconnects()[0]))

	_, err := s.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)

	fetches := len(h.transport.Fetches())
	h.tick()
	h.tick()
	assert.Len(t, h.transport.Fetches(), fetches, "no polling while disconnected")
	assert.Empty(t, h.rec.Closes())
}

func TestReconnectPolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    CursorPolicy
		wantFrom  int64
		wantReset bool
	}{
		{name: "resume keeps cursor", policy: CursorResume, wantFrom: 40},
		{name: "restart rewinds", policy: CursorRestart, wantFrom: 0, wantReset: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.Reconnect.Policy = tt.policy })
			h.transport.push(delta(0, 40, prompt), failure(errOffline))

			s := h.open()
			eventually(t, settled(s, 40))
			h.tick()
			eventually(t, func() bool { return s.State() == StateDisconnected })

			require.NoError(t, s.Reconnect())
			eventually(t, func() bool { return s.Connection().Status == ConnConnected })

			fetches := h.transport.Fetches()
			assert.Equal(t, tt.wantFrom, fetches[len(fetches)-1])
			assert.Equal(t, StateRunning, s.State())
			assert.Equal(t, 1, s.Stats().Reconnects)
			if tt.wantReset {
				eventually(t, func() bool { return len(h.rec.NoticesOf(NoticeStreamReset)) == 1 })
			} else {
				assert.Empty(t, h.rec.NoticesOf(NoticeStreamReset))
			}
		})
	}
}

func TestReconnectRequiresDisconnected(t *testing.T) {
	h := newHarness(t)
	s := h.open()
	eventually(t, func() bool { return s.State() == StateRunning })

	assert.ErrorIs(t, s.Reconnect(), ErrNotDisconnected)
	assert.ErrorIs(t, s.Abandon(), ErrNotDisconnected)
}

func TestAbandonClosesWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	h.transport.push(failure(errOffline))

	s := h.open()
	eventually(t, func() bool { return s.State() == StateDisconnected })

	require.NoError(t, s.Abandon())
	waitDone(t, s)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []CloseReason{ReasonAbandoned}, h.rec.Closes())
	assert.Empty(t, h.transport.Closes())
	assert.NoError(t, s.Abandon(), "abandon after close is a no-op")
}

func TestStreamRotation(t *testing.T) {
	h := newHarness(t)
	h.transport.push(delta(0, 40, prompt), delta(0, 5, "fresh"), delta(0, 5, "fresh"))

	s := h.open()
	eventually(t, settled(s, 40))
	h.tick()
	eventually(t, settled(s, 5))

	assert.Equal(t, []int64{0, 40, 0}, h.transport.Fetches())
	eventually(t, func() bool { return len(h.rec.NoticesOf(NoticeStreamReset)) == 1 })
	eventually(t, func() bool { return h.rec.Output() == prompt+"fresh" })
}

func TestImplicitGapIsReported(t *testing.T) {
	h := newHarness(t)
	h.transport.push(delta(0, 40, prompt), delta(60, 70, "0123456789"))

	s := h.open()
	eventually(t, settled(s, 40))
	h.tick()
	eventually(t, settled(s, 70))
	eventually(t, func() bool { return len(h.rec.NoticesOf(NoticeBufferOverflow)) == 1 })

	var w *BufferOverflowWarning
	require.ErrorAs(t, h.rec.NoticesOf(NoticeBufferOverflow)[0].Err, &w)
	assert.Equal(t, int64(40), w.From)
	assert.Equal(t, int64(60), w.To)
}

func TestOverlappingDeltaIsTrimmed(t *testing.T) {
	h := newHarness(t)
	h.transport.push(delta(0, 4, "abcd"), delta(2, 6, "cdef"))

	s := h.open()
	eventually(t, settled(s, 4))
	h.tick()
	eventually(t, settled(s, 6))
	eventually(t, func() bool { return h.rec.Output() == "abcdef" })
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	s := h.open()
	eventually(t, func() bool { return s.State() == StateRunning })

	require.NoError(t, s.Close(context.Background(), false))
	require.NoError(t, s.Close(context.Background(), false))
	waitDone(t, s)

	assert.Equal(t, []string{"sess-1"}, h.transport.Closes())
	assert.Equal(t, []CloseReason{ReasonRequested}, h.rec.Closes())
	assert.Equal(t, 0, h.clock.PendingCount())

	_, err := s.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Resize(100, 40), ErrClosed)
}

func TestCloseTreatsNotFoundAsSuccess(t *testing.T) {
	h := newHarness(t)
	h.transport.closeErr = errNotFound
	s := h.open()

	assert.NoError(t, s.Close(context.Background(), true))
	assert.Equal(t, StateClosed, s.State())
}

func TestCloseReportsOtherFailures(t *testing.T) {
	h := newHarness(t)
	h.transport.closeErr = errOffline
	s := h.open()

	err := s.Close(context.Background(), false)
	require.Error(t, err)
	assert.True(t, api.IsTransport(err))
	assert.Equal(t, StateClosed, s.State(), "local state closes first")
}

func TestLateFetchAfterCloseIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.transport.hold()
	h.transport.push(delta(0, 5, "late!"))

	s := h.open()
	eventually(t, func() bool { return len(h.transport.Fetches()) == 1 })
	require.NoError(t, s.Close(context.Background(), false))
	h.transport.releaseAll()
	waitDone(t, s)

	assert.Empty(t, h.rec.Output())
	assert.Equal(t, int64(0), s.Cursor())
	assert.Equal(t, []CloseReason{ReasonRequested}, h.rec.Closes())
}

func TestDetachKeepsRemoteAlive(t *testing.T) {
	h := newHarness(t)
	s := h.open()
	eventually(t, func() bool { return s.State() == StateRunning })

	s.Detach()
	waitDone(t, s)
	assert.Empty(t, h.transport.Closes())
	assert.Empty(t, h.rec.Closes())
	assert.Equal(t, 0, h.clock.PendingCount())

	_, err := s.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, ok := h.manager.Get("sess-1")
	assert.False(t, ok)
}

func TestOpenFailure(t *testing.T) {
	h := newHarness(t)
	h.transport.createErr = &api.RequestError{StatusCode: 422, Code: "E_AGENT_NOT_FOUND", Message: "agent offline"}

	s, err := h.manager.Open(context.Background(), OpenRequest{AgentID: "agent-9", Shell: ShellZsh}, h.rec.callbacks())
	require.Error(t, err)
	assert.Nil(t, s)

	var ce *CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "agent-9", ce.AgentID)
	assert.Equal(t, ShellZsh, ce.Shell)
	assert.Contains(t, err.Error(), "E_AGENT_NOT_FOUND")

	eventually(t, func() bool { return len(h.rec.States()) == 2 })
	assert.Equal(t, []State{StateOpening, StateFailed}, h.rec.States())
	assert.Equal(t, ConnError, h.rec.LastConn().Status)
	assert.Empty(t, h.manager.Sessions())
	assert.Equal(t, 0, h.clock.PendingCount())
}

func TestOpenValidatesRequest(t *testing.T) {
	tests := []struct {
		name string
		req  OpenRequest
		want error
	}{
		{name: "unknown shell", req: OpenRequest{AgentID: "agent-1", Shell: "fish"}, want: ErrInvalidShell},
		{name: "missing agent", req: OpenRequest{Shell: ShellBash}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.manager.Open(context.Background(), tt.req, Callbacks{})
			var ce *CreationError
			require.ErrorAs(t, err, &ce)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Empty(t, h.transport.creates)
		})
	}
}

func TestOpenSendsGeometry(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.Open(context.Background(), OpenRequest{
		AgentID: "agent-1",
		Shell:   ShellPwsh,
		Cwd:     "/srv",
		Env:     map[string]string{"TERM": "xterm-256color"},
	}, Callbacks{})
	require.NoError(t, err)

	require.Len(t, h.transport.creates, 1)
	req := h.transport.creates[0]
	assert.Equal(t, "pwsh", req.ShellType)
	assert.Equal(t, "/srv", req.Cwd)
	assert.Equal(t, DefaultGeometry.Cols, req.Cols)
	assert.Equal(t, DefaultGeometry.Rows, req.Rows)
	assert.Equal(t, "xterm-256color", req.Env["TERM"])
}

func TestNotFoundErrorsMatchSentinel(t *testing.T) {
	assert.True(t, errors.Is(errNotFound, api.ErrSessionNotFound))
	assert.False(t, errors.Is(errOffline, api.ErrSessionNotFound))
}
