package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/faize-ai/termlink/internal/terminal"
)

// printSummary prints what one view of a session saw.
func printSummary(w io.Writer, id string, st terminal.Stats) {
	_, _ = fmt.Fprintf(w, "\nSession %s\n", shortID(id))
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 40))
	_, _ = fmt.Fprintf(w, "  Output:  %s in %d deltas\n", formatSize(st.BytesReceived), st.Deltas)
	_, _ = fmt.Fprintf(w, "  Polls:   %d idle, %d skipped\n", st.IdleTicks, st.SkippedTicks)

	input := fmt.Sprintf("%d sent", st.InputsSent)
	if st.InputFailures > 0 {
		input += fmt.Sprintf(", %d failed", st.InputFailures)
	}
	_, _ = fmt.Fprintf(w, "  Input:   %s\n", input)

	if st.ResizesSent > 0 {
		_, _ = fmt.Fprintf(w, "  Resizes: %d\n", st.ResizesSent)
	}
	if st.Warnings > 0 {
		_, _ = fmt.Fprintf(w, "  Gaps:    %d (output discarded by server)\n", st.Warnings)
	}
	if st.Reconnects > 0 {
		_, _ = fmt.Fprintf(w, "  Reconnects: %d\n", st.Reconnects)
	}
}

// formatSize returns a human-readable byte count
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
