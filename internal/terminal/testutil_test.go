package terminal

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/faize-ai/termlink/internal/api"
	"github.com/faize-ai/termlink/internal/clock"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fetchResult struct {
	delta api.OutputDelta
	err   error
}

// fakeTransport scripts FetchOutput responses and records every request.
// Once the script runs out, fetches return an empty delta at the requested
// cursor.
type fakeTransport struct {
	mu sync.Mutex

	sessionID string
	createErr error
	creates   []api.CreateRequest

	script  []fetchResult
	fetches []int64
	gate    chan struct{}

	inputs   []api.InputRequest
	inputErr func(api.InputRequest) error

	resizes   []api.ResizeRequest
	resizeErr error

	closes   []string
	closeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sessionID: "sess-1"}
}

func (f *fakeTransport) CreateSession(_ context.Context, req api.CreateRequest) (api.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return api.CreateResponse{}, f.createErr
	}
	return api.CreateResponse{SessionID: f.sessionID}, nil
}

func (f *fakeTransport) FetchOutput(_ context.Context, sessionID string, from int64) (api.OutputDelta, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, from)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return api.OutputDelta{SessionID: sessionID, FromCursor: from, ToCursor: from}, nil
	}
	r := f.script[0]
	f.script = f.script[1:]
	return r.delta, r.err
}

func (f *fakeTransport) SendInput(_ context.Context, req api.InputRequest) (api.InputAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, req)
	if f.inputErr != nil {
		if err := f.inputErr(req); err != nil {
			return api.InputAck{}, err
		}
	}
	return api.InputAck{Status: "ok", ClientSeq: req.ClientSeq}, nil
}

func (f *fakeTransport) Resize(_ context.Context, req api.ResizeRequest) (api.ResizeAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, req)
	if f.resizeErr != nil {
		return api.ResizeAck{}, f.resizeErr
	}
	return api.ResizeAck{Status: "ok"}, nil
}

func (f *fakeTransport) CloseSession(_ context.Context, sessionID string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, sessionID)
	return f.closeErr
}

func (f *fakeTransport) push(results ...fetchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, results...)
}

func (f *fakeTransport) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// releaseAll unblocks every pending and future fetch.
func (f *fakeTransport) releaseAll() {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (f *fakeTransport) setResizeErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizeErr = err
}

func (f *fakeTransport) Fetches() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.fetches...)
}

func (f *fakeTransport) Inputs() []api.InputRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.InputRequest(nil), f.inputs...)
}

func (f *fakeTransport) Resizes() []api.ResizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.ResizeRequest(nil), f.resizes...)
}

func (f *fakeTransport) Closes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closes...)
}

func delta(from, to int64, data string) fetchResult {
	return fetchResult{delta: api.OutputDelta{SessionID: "sess-1", FromCursor: from, ToCursor: to, Data: []byte(data)}}
}

func failure(err error) fetchResult {
	return fetchResult{err: err}
}

var (
	errNotFound = &api.RequestError{StatusCode: 404, Code: "E_SESSION_NOT_FOUND", Message: "session not found"}
	errOffline  = &api.TransportError{Op: "fetch output", Err: &api.RequestError{StatusCode: 503, Code: "HTTP_503"}}
)

// recorder collects callbacks for assertions.
type recorder struct {
	mu          sync.Mutex
	output      bytes.Buffer
	notices     []Notice
	states      []State
	conns       []ConnectionState
	disconnects []error
	closes      []CloseReason
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		Output: func(data []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.output.Write(data)
		},
		Notice: func(n Notice) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.notices = append(r.notices, n)
		},
		State: func(s State, c ConnectionState) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
			r.conns = append(r.conns, c)
		},
		Disconnect: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.disconnects = append(r.disconnects, err)
		},
		Close: func(reason CloseReason) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.closes = append(r.closes, reason)
		},
	}
}

func (r *recorder) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output.String()
}

func (r *recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

func (r *recorder) NoticesOf(kind NoticeKind) []Notice {
	var out []Notice
	for _, n := range r.Notices() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) LastConn() ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns) == 0 {
		return ConnectionState{}
	}
	return r.conns[len(r.conns)-1]
}

func (r *recorder) Disconnects() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.disconnects...)
}

func (r *recorder) Closes() []CloseReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CloseReason(nil), r.closes...)
}

type harness struct {
	t         *testing.T
	clock     *clock.FakeClock
	transport *fakeTransport
	manager   *Manager
	rec       *recorder
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	fc := clock.Fake(epoch)
	opts := Options{
		PollInterval:   time.Second,
		ResizeDebounce: 150 * time.Millisecond,
		Clock:          fc,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, m := range mutate {
		m(&opts)
	}
	ft := newFakeTransport()
	h := &harness{
		t:         t,
		clock:     fc,
		transport: ft,
		manager:   NewManager(ft, opts),
		rec:       &recorder{},
	}
	t.Cleanup(func() {
		ft.releaseAll()
		h.manager.Shutdown()
	})
	return h
}

func (h *harness) open() *Session {
	h.t.Helper()
	s, err := h.manager.Open(context.Background(), OpenRequest{
		AgentID:  "agent-1",
		Shell:    ShellBash,
		Geometry: Geometry{Cols: 80, Rows: 24},
	}, h.rec.callbacks())
	require.NoError(h.t, err)
	return s
}

// tick advances the clock by one poll interval.
func (h *harness) tick() {
	h.clock.Advance(time.Second)
}

func eventually(t *testing.T, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msgAndArgs...)
}

// settled waits until no fetch is outstanding and the cursor is at want.
func settled(s *Session, want int64) func() bool {
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.output.inFlight && s.output.cursor == want
	}
}
