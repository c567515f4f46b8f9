package console

import (
	"fmt"
	"strings"

	"github.com/faize-ai/termlink/internal/terminal"
)

const keyEscape = 0x1b

type panelAction int

const (
	panelNone panelAction = iota
	panelReconnect
	panelClose
	panelDismiss
)

// panelKey maps a keystroke typed while the disconnect panel is showing.
func panelKey(b byte) panelAction {
	switch b {
	case 'r', 'R':
		return panelReconnect
	case 'q', 'Q':
		return panelClose
	case keyEscape:
		return panelDismiss
	}
	return panelNone
}

// renderPanel draws the disconnect panel with CRLF line endings for raw mode.
func renderPanel(err error, cursor int64, readOnly bool) string {
	reason := "connection lost"
	if err != nil {
		reason = err.Error()
	}
	quit := "close session"
	if readOnly {
		quit = "quit"
	}
	body := strings.Join([]string{
		PanelTitle.Render("Disconnected"),
		reason,
		fmt.Sprintf("output held at byte %d", cursor),
		"",
		fmt.Sprintf("%s reconnect   %s %s   %s dismiss",
			PanelKey.Render("r"), PanelKey.Render("q"), quit, PanelKey.Render("esc")),
	}, "\n")
	return crlf("\n" + Panel.Render(body) + "\n")
}

func renderNotice(n terminal.Notice) string {
	label := NoticeLabel.Render("[termlink]")
	if n.Kind == terminal.NoticeInputFailed || n.Kind == terminal.NoticeResizeFailed {
		label = ErrorLabel.Render("[termlink]")
	}
	msg := n.Message
	if n.Err != nil && n.Kind != terminal.NoticeBufferOverflow {
		msg = fmt.Sprintf("%s: %v", msg, n.Err)
	}
	return crlf("\n" + label + " " + NoticeText.Render(msg) + "\n")
}

func renderStatus(state terminal.State, conn terminal.ConnectionState, st terminal.Stats, cursor int64) string {
	connText := conn.String()
	if conn.Status == terminal.ConnConnected {
		connText = Connected.Render(connText)
	}
	return StatusLine.Render(fmt.Sprintf("state %s, ", state)) + connText +
		StatusLine.Render(fmt.Sprintf(", cursor %d, %d bytes in %d deltas, %d inputs (%d failed), %d reconnects",
			cursor, st.BytesReceived, st.Deltas, st.InputsSent, st.InputFailures, st.Reconnects))
}

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}
