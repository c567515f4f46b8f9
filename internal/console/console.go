// Package console is the local presentation surface for a terminal
// session: it puts the TTY in raw mode, forwards keystrokes and window
// size changes, and writes remote output and notices back to the screen.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/faize-ai/termlink/internal/terminal"
)

// ErrDetached is returned by Run when the user typed ~. to leave the
// session running.
var ErrDetached = errors.New("detached from session")

const closeTimeout = 10 * time.Second

// Session is the part of *terminal.Session a console drives.
type Session interface {
	Sender
	Resize(cols, rows int) error
	Reconnect() error
	Close(ctx context.Context, force bool) error
	State() terminal.State
	Connection() terminal.ConnectionState
	Cursor() int64
	Stats() terminal.Stats
}

var _ Session = (*terminal.Session)(nil)

type Options struct {
	In  io.Reader
	Out io.Writer
	// Plain strips ANSI sequences from remote output.
	Plain bool
	// ReadOnly drops keystrokes other than escape sequences and never
	// resizes the remote terminal. Ctrl-C detaches.
	ReadOnly bool
	Logger   *slog.Logger
}

// Console connects one session to a terminal.
type Console struct {
	in       io.Reader
	out      io.Writer
	plain    *PlainWriter
	readOnly bool
	logger   *slog.Logger

	mu      sync.Mutex
	session Session
	input   *InputWriter
	panel   bool
	lastErr error
	reason  terminal.CloseReason

	closed    chan struct{}
	closeOnce sync.Once
	quit      chan struct{}
	quitOnce  sync.Once
}

func New(opts Options) *Console {
	c := &Console{
		in:       opts.In,
		out:      opts.Out,
		readOnly: opts.ReadOnly,
		logger:   opts.Logger,
		closed:   make(chan struct{}),
		quit:     make(chan struct{}),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if opts.Plain {
		c.plain = NewPlainWriter(opts.Out)
	}
	return c
}

// Callbacks returns the session callbacks that draw onto this console.
// They may be registered before Run is called.
func (c *Console) Callbacks() terminal.Callbacks {
	return terminal.Callbacks{
		Output: c.onOutput,
		Notice: func(n terminal.Notice) {
			c.writeLocal(renderNotice(n))
		},
		State: func(state terminal.State, conn terminal.ConnectionState) {
			c.logger.Debug("session state", "state", state, "connection", conn.String())
		},
		Disconnect: c.onDisconnect,
		Close:      c.onClose,
	}
}

// Closed is closed once the session reaches StateClosed.
func (c *Console) Closed() <-chan struct{} { return c.closed }

// Reason returns why the session closed, or "" if it has not.
func (c *Console) Reason() terminal.CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Run attaches the console to s and blocks until the user detaches, the
// session closes or ctx is cancelled.
func (c *Console) Run(ctx context.Context, s Session) error {
	c.mu.Lock()
	c.session = s
	c.input = NewInputWriter(s)
	c.mu.Unlock()

	if fd, ok := terminalFd(c.in); ok {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("failed to set raw mode: %w", err)
		}
		defer func() { _ = term.Restore(fd, oldState) }()

		if !c.readOnly {
			c.syncSize(fd, s)
			stop := watchResize(func() { c.syncSize(fd, s) })
			defer stop()
		}
	}

	escape := NewEscapeWriter(keyWriter{c}, localWriter{c}, c.status)
	errCh := make(chan error, 1)
	go func() {
		_, err := io.Copy(escape, c.in)
		errCh <- err
	}()

	select {
	case <-escape.DetachChan():
		return ErrDetached
	case <-c.quit:
		return ErrDetached
	case <-c.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}

	// Input ended; keep showing output until the session ends.
	select {
	case <-c.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Console) syncSize(fd int, s Session) {
	cols, rows, err := term.GetSize(fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return
	}
	if err := s.Resize(cols, rows); err != nil {
		c.logger.Debug("resize not forwarded", "error", err)
	}
}

func (c *Console) status() string {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return ""
	}
	return renderStatus(s.State(), s.Connection(), s.Stats(), s.Cursor())
}

func (c *Console) onOutput(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.plain != nil {
		_, err = c.plain.Write(data)
	} else {
		_, err = c.out.Write(data)
	}
	if err != nil {
		c.logger.Debug("write output", "error", err)
	}
}

func (c *Console) onDisconnect(err error) {
	c.mu.Lock()
	c.lastErr = err
	s := c.session
	c.mu.Unlock()

	var cursor int64
	if s != nil {
		cursor = s.Cursor()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panel = true
	c.writeLocked(renderPanel(err, cursor, c.readOnly))
}

func (c *Console) onClose(reason terminal.CloseReason) {
	c.mu.Lock()
	c.reason = reason
	if c.plain != nil {
		_ = c.plain.Flush()
	}
	switch reason {
	case terminal.ReasonNotFound:
		c.writeLocked(crlf("\n" + NoticeLabel.Render("[termlink]") + " remote session ended\n"))
	case terminal.ReasonAbandoned:
		c.writeLocked(crlf("\n" + NoticeLabel.Render("[termlink]") + " session abandoned\n"))
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.closed) })
}

// handleKeys routes keystrokes that survived escape processing.
func (c *Console) handleKeys(p []byte) {
	c.mu.Lock()
	s, input, panel := c.session, c.input, c.panel
	c.mu.Unlock()
	if s == nil {
		return
	}

	if panel || s.State() == terminal.StateDisconnected {
		c.panelInput(s, p)
		return
	}
	if c.readOnly {
		if bytes.IndexByte(p, interruptByte) >= 0 {
			c.quitOnce.Do(func() { close(c.quit) })
		}
		return
	}

	if _, err := input.Write(p); err != nil {
		if errors.Is(err, terminal.ErrNotConnected) {
			c.showPanel(s)
			return
		}
		c.logger.Debug("input dropped", "error", err)
	}
}

func (c *Console) showPanel(s Session) {
	cursor := s.Cursor()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panel {
		return
	}
	c.panel = true
	c.writeLocked(renderPanel(c.lastErr, cursor, c.readOnly))
}

func (c *Console) panelInput(s Session, p []byte) {
	c.mu.Lock()
	shown := c.panel
	c.mu.Unlock()
	if !shown {
		c.showPanel(s)
		return
	}

	for _, b := range p {
		switch panelKey(b) {
		case panelReconnect:
			c.hidePanel()
			if err := s.Reconnect(); err != nil && !errors.Is(err, terminal.ErrNotDisconnected) {
				c.writeLocal(crlf("\n" + ErrorLabel.Render("[termlink]") + " " + err.Error() + "\n"))
				return
			}
			c.writeLocal(crlf("\n" + Connected.Render("[termlink]") + " reconnecting\n"))
			return
		case panelClose:
			c.hidePanel()
			if c.readOnly {
				c.quitOnce.Do(func() { close(c.quit) })
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			err := s.Close(ctx, false)
			cancel()
			if err != nil {
				c.logger.Warn("close request failed", "error", err)
			}
			return
		case panelDismiss:
			c.hidePanel()
			c.writeLocal(crlf("\n" + StatusLine.Render("disconnected; press any key for options, ~. to detach") + "\n"))
			return
		}
	}
}

func (c *Console) hidePanel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.panel = false
}

func (c *Console) writeLocal(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLocked(s)
}

func (c *Console) writeLocked(s string) {
	if _, err := io.WriteString(c.out, s); err != nil {
		c.logger.Debug("write console", "error", err)
	}
}

type keyWriter struct{ c *Console }

func (w keyWriter) Write(p []byte) (int, error) {
	w.c.handleKeys(p)
	return len(p), nil
}

type localWriter struct{ c *Console }

func (w localWriter) Write(p []byte) (int, error) {
	w.c.writeLocal(string(p))
	return len(p), nil
}

// terminalFd returns r's file descriptor when r is a terminal.
func terminalFd(r io.Reader) (int, bool) {
	f, ok := r.(interface{ Fd() uintptr })
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}
