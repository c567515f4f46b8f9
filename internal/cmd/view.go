package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/faize-ai/termlink/internal/console"
	"github.com/faize-ai/termlink/internal/session"
	"github.com/faize-ai/termlink/internal/terminal"
)

// localGeometry returns the size of the controlling terminal, or the
// default when stdout is not one.
func localGeometry() terminal.Geometry {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return terminal.DefaultGeometry
	}
	return terminal.Geometry{Cols: cols, Rows: rows}
}

// runView drives an interactive view until it ends and records the outcome
// in the local store.
func runView(ctx context.Context, cmd *cobra.Command, e *env, con *console.Console, sess *terminal.Session, rec *session.Record) error {
	runErr := con.Run(ctx, sess)
	out := cmd.ErrOrStderr()

	if runErr == nil {
		rec.MarkClosed(string(con.Reason()), e.now())
	} else {
		sess.Detach()
		rec.Status = session.StatusDetached
		rec.UpdatedAt = e.now()
		if errors.Is(runErr, console.ErrDetached) || errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
	}

	if seq := sess.LastSeq(); seq > rec.LastSeq {
		rec.LastSeq = seq
	}
	rec.Cursor = sess.Cursor()
	if err := e.store.Save(rec); err != nil {
		_, _ = fmt.Fprintf(out, "Warning: failed to save session %s: %v\n", rec.ID, err)
	}

	if rec.Status == session.StatusDetached {
		_, _ = fmt.Fprintln(out, "\nDetached from session")
		_, _ = fmt.Fprintf(out, "Session %s still running. Reattach with: termlink attach %s\n", rec.ID, shortID(rec.ID))
	}
	printSummary(out, rec.ID, sess.Stats())
	return runErr
}
