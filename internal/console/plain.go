package console

import (
	"bytes"
	"io"

	"github.com/charmbracelet/x/ansi"
)

// maxHeld bounds how much of an unterminated escape sequence PlainWriter
// waits on before giving up and flushing it.
const maxHeld = 4096

// PlainWriter strips ANSI escape sequences before writing. A sequence split
// across two writes is held back until it completes.
type PlainWriter struct {
	w    io.Writer
	held []byte
}

func NewPlainWriter(w io.Writer) *PlainWriter {
	return &PlainWriter{w: w}
}

func (p *PlainWriter) Write(b []byte) (int, error) {
	buf := append(p.held, b...)
	p.held = nil

	if i := unterminatedEscape(buf); i >= 0 && len(buf)-i < maxHeld {
		p.held = append([]byte(nil), buf[i:]...)
		buf = buf[:i]
	}
	if len(buf) == 0 {
		return len(b), nil
	}
	if _, err := io.WriteString(p.w, ansi.Strip(string(buf))); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Flush writes whatever is still held.
func (p *PlainWriter) Flush() error {
	if len(p.held) == 0 {
		return nil
	}
	held := p.held
	p.held = nil
	_, err := io.WriteString(p.w, ansi.Strip(string(held)))
	return err
}

// unterminatedEscape returns the index of a trailing escape sequence that
// has not been terminated yet, or -1.
func unterminatedEscape(b []byte) int {
	i := bytes.LastIndexByte(b, ansi.ESC)
	if i < 0 {
		return -1
	}
	rest := b[i+1:]
	if len(rest) == 0 {
		return i
	}
	switch rest[0] {
	case '[':
		for _, c := range rest[1:] {
			if c >= 0x40 && c <= 0x7e {
				return -1
			}
		}
		return i
	case ']', 'P', '_', '^':
		if bytes.IndexByte(rest, ansi.BEL) >= 0 {
			return -1
		}
		return i
	}
	return -1
}
