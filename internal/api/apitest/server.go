// Package apitest is an in-memory terminal backend speaking the same HTTP
// contract as the real one. Output is an append-only byte stream per session
// with a bounded retention window; input is deduplicated by client_seq.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/faize-ai/termlink/internal/api"
)

// DefaultRetention is how many trailing bytes of output a session keeps.
const DefaultRetention = 64 * 1024

var validShells = map[string]bool{
	"cmd": true, "powershell": true, "pwsh": true, "sh": true, "bash": true, "zsh": true,
}

type session struct {
	summary    api.SessionSummary
	base       int64 // stream offset of buf[0]
	buf        []byte
	highestSeq uint64
	inputs     []api.InputRequest
	cols, rows int
	resizes    int
}

func (s *session) end() int64 { return s.base + int64(len(s.buf)) }

type fault struct {
	status int
	body   string
}

// Server is an http.Handler implementing the terminal endpoints.
type Server struct {
	// Retention bounds the stored output per session.
	Retention int
	// MaxChunk bounds the bytes returned per output fetch; 0 means no limit.
	MaxChunk int
	// Echo, when set, produces the output appended for each accepted input.
	// The default echoes the input verbatim.
	Echo func(sessionID string, input api.InputRequest) string

	mu       sync.Mutex
	agents   map[string]bool
	sessions map[string]*session
	faults   map[string][]fault
	requests map[string]int
	now      func() time.Time
}

// NewServer returns a backend that accepts sessions for the given agents.
func NewServer(agents ...string) *Server {
	known := make(map[string]bool, len(agents))
	for _, a := range agents {
		known[a] = true
	}
	return &Server{
		Retention: DefaultRetention,
		agents:    known,
		sessions:  map[string]*session{},
		faults:    map[string][]fault{},
		requests:  map[string]int{},
		now:       time.Now,
	}
}

// Start serves s on a test HTTP server closed at the end of the test.
func Start(t testing.TB, s *Server) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

// ServeHTTP routes the terminal endpoints.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r.URL.Path)

	s.mu.Lock()
	s.requests[route]++
	if queued := s.faults[route]; len(queued) > 0 {
		f := queued[0]
		s.faults[route] = queued[1:]
		s.mu.Unlock()
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
		return
	}
	s.mu.Unlock()

	switch {
	case route == "create" && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case route == "input" && r.Method == http.MethodPost:
		s.handleInput(w, r)
	case route == "output" && r.Method == http.MethodGet:
		s.handleOutput(w, r)
	case route == "resize" && r.Method == http.MethodPost:
		s.handleResize(w, r)
	case route == "close" && r.Method == http.MethodPost:
		s.handleClose(w, r)
	case route == "sessions" && r.Method == http.MethodGet:
		s.handleSessions(w)
	default:
		writeError(w, http.StatusNotFound, "E_ROUTE", "no such route")
	}
}

func routeOf(path string) string {
	rest := strings.TrimPrefix(path, "/api/terminal/")
	if rest == path {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.agents[req.AgentID] {
		writeError(w, http.StatusNotFound, "E_AGENT_NOT_FOUND", "agent "+req.AgentID+" is not reachable")
		return
	}
	if !validShells[req.ShellType] {
		writeError(w, http.StatusBadRequest, "E_SHELL_UNAVAILABLE", "shell "+req.ShellType+" is not available")
		return
	}
	id := uuid.NewString()
	s.sessions[id] = &session{
		summary: api.SessionSummary{
			SessionID: id,
			AgentID:   req.AgentID,
			ShellType: req.ShellType,
			State:     "running",
			CreatedAt: s.now().UTC(),
		},
		cols: req.Cols,
		rows: req.Rows,
	}
	writeJSON(w, http.StatusOK, api.CreateResponse{SessionID: id})
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req api.InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", err.Error())
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "E_SESSION_NOT_FOUND", "session not found")
		return
	}
	if req.ClientSeq <= sess.highestSeq {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, api.StatusResponse{Status: "duplicate", ClientSeq: req.ClientSeq})
		return
	}
	sess.highestSeq = req.ClientSeq
	sess.inputs = append(sess.inputs, req)
	echo := s.Echo
	s.mu.Unlock()

	out := req.InputData
	if echo != nil {
		out = echo(req.SessionID, req)
	}
	if out != "" {
		s.Append(req.SessionID, out)
	}
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "ok", ClientSeq: req.ClientSeq})
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/terminal/output/")
	from, err := strconv.ParseInt(r.URL.Query().Get("from_cursor"), 10, 64)
	if err != nil || from < 0 {
		writeError(w, http.StatusBadRequest, "E_CURSOR_INVALID", "from_cursor must be a non-negative integer")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		writeError(w, http.StatusNotFound, "E_SESSION_NOT_FOUND", "session not found")
		return
	}

	resp := api.OutputResponse{SessionID: id, FromCursor: from}
	switch {
	case from > sess.end():
		// The client is ahead of this stream; report where it really ends.
		resp.FromCursor = sess.end()
		resp.ToCursor = sess.end()
		writeJSON(w, http.StatusOK, resp)
		return
	case from < sess.base:
		resp.Warning = "output before cursor " + strconv.FormatInt(sess.base, 10) + " was discarded"
		resp.FromCursor = sess.base
	}
	start := int(resp.FromCursor - sess.base)
	end := len(sess.buf)
	if s.MaxChunk > 0 && end-start > s.MaxChunk {
		end = start + s.MaxChunk
		resp.HasMore = true
	}
	resp.OutputData = string(sess.buf[start:end])
	resp.ToCursor = sess.base + int64(end)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req api.ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "E_BAD_REQUEST", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[req.SessionID]
	if !ok {
		writeError(w, http.StatusNotFound, "E_SESSION_NOT_FOUND", "session not found")
		return
	}
	sess.cols, sess.rows = req.Cols, req.Rows
	sess.resizes++
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "ok"})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/terminal/close/")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		writeError(w, http.StatusNotFound, "E_SESSION_NOT_FOUND", "session not found")
		return
	}
	delete(s.sessions, id)
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.summary)
	}
	writeJSON(w, http.StatusOK, out)
}

// Append writes data to the end of a session's output stream, discarding
// the oldest bytes beyond the retention window.
func (s *Server) Append(sessionID, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	sess.buf = append(sess.buf, data...)
	if limit := s.Retention; limit > 0 && len(sess.buf) > limit {
		drop := len(sess.buf) - limit
		sess.buf = append([]byte(nil), sess.buf[drop:]...)
		sess.base += int64(drop)
	}
}

// Rotate replaces a session's stream with an empty one under the same id,
// as a backend does when it recreates a shell.
func (s *Server) Rotate(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.buf = nil
		sess.base = 0
		sess.highestSeq = 0
	}
}

// Drop forgets a session without the client asking.
func (s *Server) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Fail makes the next request to route ("create", "input", "output",
// "resize", "close", "sessions") answer with status instead.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body := `{"error":{"code":"E_INJECTED","message":"injected failure"}}`
	s.faults[route] = append(s.faults[route], fault{status: status, body: body})
}

// Requests returns how many requests hit route.
func (s *Server) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// Inputs returns the accepted (non-duplicate) input records of a session.
func (s *Server) Inputs(sessionID string) []api.InputRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return append([]api.InputRequest(nil), sess.inputs...)
}

// Geometry returns the last geometry applied to a session.
func (s *Server) Geometry(sessionID string) (cols, rows, resizes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, 0, 0
	}
	return sess.cols, sess.rows, sess.resizes
}

// Has reports whether the backend still knows a session.
func (s *Server) Has(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	return ok
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: &api.APIError{Code: code, Message: message}})
}
