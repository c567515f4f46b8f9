package console

import (
	"io"
)

const escapeHelp = "\r\nSupported escape sequences:\r\n" +
	"  ~.  Detach from session (remote shell keeps running)\r\n" +
	"  ~#  Show connection status\r\n" +
	"  ~~  Send literal ~ character\r\n" +
	"  ~?  Show this help\r\n"

// EscapeWriter wraps an io.Writer to detect SSH-style escape sequences.
// Detects ~. (detach), ~# (status), ~~ (literal ~) and ~? (help) when ~
// follows a newline.
//
// EscapeWriter is not safe for concurrent use from multiple goroutines.
// It expects sequential Write() calls from a single source (stdin).
type EscapeWriter struct {
	w            io.Writer     // underlying writer to forward bytes to
	local        io.Writer     // help and status go here, never to the remote shell
	status       func() string // renders the ~# line
	afterNewline bool          // true if last byte was newline or at start
	pendingTilde bool          // true if we saw ~ and waiting for next char
	detachCh     chan struct{} // closed when ~. detected
	detached     bool
}

// NewEscapeWriter creates a new EscapeWriter that wraps w. status may be nil.
func NewEscapeWriter(w io.Writer, local io.Writer, status func() string) *EscapeWriter {
	return &EscapeWriter{
		w:            w,
		local:        local,
		status:       status,
		afterNewline: true, // treat start as after newline
		detachCh:     make(chan struct{}),
	}
}

// Write processes input bytes and detects escape sequences. Runs of plain
// bytes are forwarded in one call so the remote side sees whole chunks.
func (e *EscapeWriter) Write(p []byte) (n int, err error) {
	if e.detached {
		return len(p), nil
	}
	var run []byte
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		_, err := e.w.Write(run)
		run = run[:0]
		return err
	}

	for _, b := range p {
		if b == '\n' || b == '\r' {
			if e.pendingTilde {
				run = append(run, '~')
				e.pendingTilde = false
			}
			run = append(run, b)
			e.afterNewline = true
			continue
		}

		if e.afterNewline && b == '~' {
			e.pendingTilde = true
			e.afterNewline = false
			continue
		}

		if e.pendingTilde {
			e.pendingTilde = false
			switch b {
			case '.':
				if err := flush(); err != nil {
					return len(p), err
				}
				e.detached = true
				close(e.detachCh)
				return len(p), nil
			case '~':
				run = append(run, '~')
			case '?':
				if err := flush(); err != nil {
					return len(p), err
				}
				if _, err := io.WriteString(e.local, escapeHelp); err != nil {
					return len(p), err
				}
			case '#':
				if err := flush(); err != nil {
					return len(p), err
				}
				if e.status != nil {
					if _, err := io.WriteString(e.local, "\r\n"+e.status()+"\r\n"); err != nil {
						return len(p), err
					}
				}
			default:
				run = append(run, '~', b)
			}
			e.afterNewline = false
			continue
		}

		run = append(run, b)
		e.afterNewline = false
	}

	if err := flush(); err != nil {
		return len(p), err
	}
	return len(p), nil
}

// DetachChan returns a channel that is closed when ~. is detected
func (e *EscapeWriter) DetachChan() <-chan struct{} {
	return e.detachCh
}
