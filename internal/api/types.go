package api

import "time"

// CreateRequest is the body of POST /api/terminal/create.
type CreateRequest struct {
	AgentID   string            `json:"agent_id"`
	ShellType string            `json:"shell_type"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Cols      int               `json:"cols"`
	Rows      int               `json:"rows"`
}

type CreateResponse struct {
	SessionID string `json:"session_id"`
}

// Input kinds. Interrupts may be prioritized ahead of queued shell input by
// the remote side.
const (
	InputKindData      = "input"
	InputKindInterrupt = "interrupt"
)

// InputRequest is the body of POST /api/terminal/input.
type InputRequest struct {
	SessionID string `json:"session_id"`
	InputData string `json:"input_data"`
	ClientSeq uint64 `json:"client_seq"`
	Kind      string `json:"kind,omitempty"`
}

// ResizeRequest is the body of POST /api/terminal/resize.
type ResizeRequest struct {
	SessionID string `json:"session_id"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

// StatusResponse is returned by input, resize and close.
type StatusResponse struct {
	Type      string `json:"type,omitempty"`
	Status    string `json:"status"`
	ClientSeq uint64 `json:"client_seq,omitempty"`
}

// OutputResponse is the wire shape of GET /api/terminal/output/{id}.
type OutputResponse struct {
	Type       string `json:"type,omitempty"`
	SessionID  string `json:"session_id"`
	FromCursor int64  `json:"from_cursor"`
	ToCursor   int64  `json:"to_cursor"`
	OutputData string `json:"output_data"`
	HasMore    bool   `json:"has_more"`
	Warning    string `json:"warning,omitempty"`
}

// SessionSummary is one entry of GET /api/terminal/sessions.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	AgentID   string    `json:"agent_id"`
	ShellType string    `json:"shell_type"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse covers the error body shapes the backend emits.
type ErrorResponse struct {
	Error  *APIError `json:"error,omitempty"`
	Detail string    `json:"detail,omitempty"`
}
