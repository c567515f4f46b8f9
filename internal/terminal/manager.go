// Package terminal keeps a local view in step with a remote shell that is
// reachable only through a polling HTTP backend. A Session owns one remote
// shell: it reconciles the output cursor, sequences input, negotiates
// geometry and recovers from transport failures. A Manager opens, attaches
// and tracks sessions.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/faize-ai/termlink/internal/api"
)

// OpenRequest describes a new remote shell.
type OpenRequest struct {
	AgentID  string
	Shell    ShellKind
	Cwd      string
	Env      map[string]string
	Geometry Geometry
}

// AttachOptions bind a view to a session that already exists remotely.
type AttachOptions struct {
	// Geometry is the local surface size; it is sent once attached.
	Geometry Geometry
	// InitialSeq is the highest client_seq any earlier view may have sent.
	// The next input uses InitialSeq+1.
	InitialSeq uint64
	// FromCursor is where output reading starts.
	FromCursor int64
}

// Manager tracks the sessions of one client.
type Manager struct {
	transport Transport
	opts      Options

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(transport Transport, opts Options) *Manager {
	return &Manager{
		transport: transport,
		opts:      opts.withDefaults(),
		sessions:  make(map[string]*Session),
	}
}

// Open creates a remote shell and returns its session in StateOpening. On
// failure the returned error is a *CreationError and the State callback has
// already been queued with StateFailed.
func (m *Manager) Open(ctx context.Context, req OpenRequest, cb Callbacks) (*Session, error) {
	geometry := req.Geometry
	if !geometry.Valid() {
		geometry = DefaultGeometry
	}

	s := newSession(Info{AgentID: req.AgentID, Shell: req.Shell}, m.transport, m.opts, cb, m.release)
	s.mu.Lock()
	s.emitStateLocked()
	s.mu.Unlock()

	fail := func(err error) (*Session, error) {
		s.mu.Lock()
		s.failLocked(err)
		s.mu.Unlock()
		m.opts.Logger.Warn("session open failed", "agent_id", req.AgentID, "shell", req.Shell, "error", err)
		return nil, &CreationError{AgentID: req.AgentID, Shell: req.Shell, Err: err}
	}

	if req.AgentID == "" {
		return fail(errors.New("agent id is required"))
	}
	if _, err := ParseShellKind(string(req.Shell)); err != nil {
		return fail(err)
	}

	resp, err := m.transport.CreateSession(ctx, api.CreateRequest{
		AgentID:   req.AgentID,
		ShellType: string(req.Shell),
		Cwd:       req.Cwd,
		Env:       req.Env,
		Cols:      geometry.Cols,
		Rows:      geometry.Rows,
	})
	if err != nil {
		return fail(err)
	}
	if resp.SessionID == "" {
		return fail(fmt.Errorf("server returned no session id: %w", api.ErrMalformedResponse))
	}

	s.mu.Lock()
	s.info.ID = resp.SessionID
	s.info.CreatedAt = m.opts.Clock.Now()
	s.resize.lastSent = geometry
	s.resize.observed = geometry
	s.mu.Unlock()

	m.track(s)
	s.start()
	m.opts.Logger.Info("session opened", "session_id", resp.SessionID, "agent_id", req.AgentID, "shell", req.Shell)
	return s, nil
}

// Attach binds a view to an existing remote session. The session starts in
// StateOpening and moves to running on the first successful fetch.
func (m *Manager) Attach(info Info, opts AttachOptions, cb Callbacks) (*Session, error) {
	if info.ID == "" {
		return nil, fmt.Errorf("attach: %w: empty session id", ErrUnknownSession)
	}
	m.mu.Lock()
	_, exists := m.sessions[info.ID]
	m.mu.Unlock()
	if exists {
		return nil, fmt.Errorf("attach %s: session already has a view", info.ID)
	}

	s := newSession(info, m.transport, m.opts, cb, m.release)
	s.mu.Lock()
	s.output.cursor = opts.FromCursor
	s.input.lastSeq = opts.InitialSeq
	s.emitStateLocked()
	s.mu.Unlock()

	m.track(s)
	s.start()
	if opts.Geometry.Valid() {
		// Only ErrClosed is possible here, and the Close callback reports it.
		_ = s.Resize(opts.Geometry.Cols, opts.Geometry.Rows)
	}
	m.opts.Logger.Info("session attached", "session_id", info.ID, "cursor", opts.FromCursor, "last_seq", opts.InitialSeq)
	return s, nil
}

// Get returns a tracked session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns the tracked sessions ordered by ID.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Close closes a session by ID. Sessions this manager does not track are
// closed on the server directly.
func (m *Manager) Close(ctx context.Context, id string, force bool) error {
	if s, ok := m.Get(id); ok {
		return s.Close(ctx, force)
	}
	if err := m.transport.CloseSession(ctx, id, force); err != nil && !api.IsNotFound(err) {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

func (m *Manager) Reconnect(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("reconnect %s: %w", id, ErrUnknownSession)
	}
	return s.Reconnect()
}

func (m *Manager) Abandon(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("abandon %s: %w", id, ErrUnknownSession)
	}
	return s.Abandon()
}

// Shutdown detaches every tracked session, leaving the remote shells alive.
func (m *Manager) Shutdown() {
	for _, s := range m.Sessions() {
		s.Detach()
	}
}

func (m *Manager) track(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.info.ID] = s
}

// release is called by a session, under its own lock, once it stops being
// live.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.info.ID] == s {
		delete(m.sessions, s.info.ID)
	}
}
