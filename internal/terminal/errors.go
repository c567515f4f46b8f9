package terminal

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShell    = errors.New("unsupported shell")
	ErrInvalidGeometry = errors.New("geometry must be positive")
	// ErrNotConnected is returned by Send while the session is disconnected.
	ErrNotConnected = errors.New("session is disconnected")
	// ErrClosed is returned by operations on a closed, failed or detached session.
	ErrClosed = errors.New("session is closed")
	// ErrNotDisconnected is returned by Reconnect and Abandon outside the
	// disconnected state.
	ErrNotDisconnected = errors.New("session is not disconnected")
	ErrUnknownSession  = errors.New("unknown session")
)

// CreationError means a session could not be opened. The attempt is over;
// the caller must retry explicitly.
type CreationError struct {
	AgentID string
	Shell   ShellKind
	Err     error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("open %s session on agent %s: %v", e.Shell, e.AgentID, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

// BufferOverflowWarning describes bytes the server discarded before the
// client could read them. It is informational and travels in a Notice.
type BufferOverflowWarning struct {
	From    int64
	To      int64
	Message string
}

func (w *BufferOverflowWarning) Error() string {
	if w.To > w.From {
		return fmt.Sprintf("output lost between cursor %d and %d: %s", w.From, w.To, w.Message)
	}
	return fmt.Sprintf("output lost before cursor %d: %s", w.To, w.Message)
}
