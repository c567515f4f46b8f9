package session

import "time"

// Status values for a Record.
const (
	StatusOpen     = "open"     // a view is attached
	StatusDetached = "detached" // remote shell left running
	StatusClosed   = "closed"
	StatusFailed   = "failed"
)

// Record is what this client remembers about a remote terminal session.
// It never holds output; the server owns the stream.
type Record struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	Shell      string     `json:"shell"`
	Server     string     `json:"server"`
	Status     string     `json:"status"` // "open", "detached", "closed", "failed"
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ExitReason string     `json:"exit_reason,omitempty"` // "requested" | "not_found" | "abandoned" | "killed"
	LastSeq    uint64     `json:"last_seq"`              // highest client_seq any view sent
	Cursor     int64      `json:"cursor"`                // output offset when the last view ended
}

// Finished reports whether the remote session is known to be gone.
func (r *Record) Finished() bool {
	return r.Status == StatusClosed || r.Status == StatusFailed
}

// MarkClosed records the end of the session.
func (r *Record) MarkClosed(reason string, at time.Time) {
	r.Status = StatusClosed
	r.ExitReason = reason
	r.ClosedAt = &at
	r.UpdatedAt = at
}
