package terminal

import (
	"fmt"
	"strings"
	"time"
)

// ShellKind names the shell the backend spawns for a session.
type ShellKind string

const (
	ShellCmd        ShellKind = "cmd"
	ShellPowerShell ShellKind = "powershell"
	ShellPwsh       ShellKind = "pwsh"
	ShellSh         ShellKind = "sh"
	ShellBash       ShellKind = "bash"
	ShellZsh        ShellKind = "zsh"
)

// ShellKinds lists every supported shell in display order.
var ShellKinds = []ShellKind{ShellCmd, ShellPowerShell, ShellPwsh, ShellSh, ShellBash, ShellZsh}

// ParseShellKind validates a user-supplied shell name.
func ParseShellKind(s string) (ShellKind, error) {
	k := ShellKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ShellKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidShell, s)
}

// State is the lifecycle state of a session.
type State string

const (
	StateOpening      State = "opening"
	StateRunning      State = "running"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// ConnStatus is the coarse connection indicator shown to the user.
type ConnStatus string

const (
	ConnConnected    ConnStatus = "connected"
	ConnConnecting   ConnStatus = "connecting"
	ConnDisconnected ConnStatus = "disconnected"
	ConnError        ConnStatus = "error"
)

// ConnectionState pairs a status with the reason for ConnError.
type ConnectionState struct {
	Status ConnStatus
	Reason string
}

func (c ConnectionState) String() string {
	if c.Status == ConnError && c.Reason != "" {
		return fmt.Sprintf("error(%s)", c.Reason)
	}
	return string(c.Status)
}

// Geometry is a terminal size in character cells.
type Geometry struct {
	Cols int
	Rows int
}

// Valid reports whether both dimensions are positive.
func (g Geometry) Valid() bool { return g.Cols > 0 && g.Rows > 0 }

func (g Geometry) String() string { return fmt.Sprintf("%dx%d", g.Cols, g.Rows) }

// DefaultGeometry is used when the surface cannot report its size.
var DefaultGeometry = Geometry{Cols: 80, Rows: 24}

// Info identifies a remote session.
type Info struct {
	ID        string
	AgentID   string
	Shell     ShellKind
	CreatedAt time.Time
}

// CloseReason says why a session reached StateClosed.
type CloseReason string

const (
	ReasonRequested CloseReason = "requested"
	ReasonNotFound  CloseReason = "not_found"
	ReasonAbandoned CloseReason = "abandoned"
)

// NoticeKind classifies non-fatal events shown inline to the user.
type NoticeKind string

const (
	NoticeBufferOverflow NoticeKind = "buffer_overflow"
	NoticeInputFailed    NoticeKind = "input_failed"
	NoticeResizeFailed   NoticeKind = "resize_failed"
	NoticeStreamReset    NoticeKind = "stream_reset"
	NoticeReconnecting   NoticeKind = "reconnecting"
)

// Notice is a non-fatal event. The stream keeps flowing after one.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
	// Seq is the client_seq of a failed input.
	Seq uint64
}

// Stats counts what happened during a session's lifetime.
type Stats struct {
	BytesReceived int64
	Deltas        int
	IdleTicks     int
	SkippedTicks  int
	InputsSent    int
	InputFailures int
	ResizesSent   int
	Warnings      int
	Reconnects    int
}
