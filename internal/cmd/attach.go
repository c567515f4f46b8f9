package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/faize-ai/termlink/internal/console"
	"github.com/faize-ai/termlink/internal/session"
	"github.com/faize-ai/termlink/internal/terminal"
)

var (
	attachFrom  int64
	attachPlain bool
)

var attachCmd = &cobra.Command{
	Use:   "attach <session-id>",
	Short: "Attach to a running remote shell",
	Long: `Attach this terminal to a remote shell that is still running.

The session ID can be a partial match (prefix). Output resumes where the
last view of the session stopped, unless --from is given.

Examples:
  termlink attach 3f2a9c1e-0d4b-4c55-9a8e-1b2c3d4e5f60
  termlink attach 3f2a  # partial match
  termlink attach 3f2a --from 0  # replay everything the server kept`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
	attachCmd.Flags().Int64Var(&attachFrom, "from", 0, "output cursor to start reading at")
	attachCmd.Flags().BoolVar(&attachPlain, "plain", false, "strip ANSI escape sequences from output")
}

func runAttach(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := resolveSession(ctx, e, args[0])
	if err != nil {
		return err
	}
	if rec.Finished() {
		return fmt.Errorf("session %s has ended (%s)", rec.ID, rec.ExitReason)
	}

	from := rec.Cursor
	if cmd.Flags().Changed("from") {
		if attachFrom < 0 {
			return fmt.Errorf("invalid --from %d: must not be negative", attachFrom)
		}
		from = attachFrom
	}

	con := console.New(console.Options{
		In:     os.Stdin,
		Out:    os.Stdout,
		Plain:  attachPlain,
		Logger: slog.Default(),
	})
	mgr := e.manager()
	defer mgr.Shutdown()

	sess, err := mgr.Attach(recordInfo(rec), terminal.AttachOptions{
		Geometry:   localGeometry(),
		InitialSeq: attachSeq(rec, time.Now()),
		FromCursor: from,
	}, con.Callbacks())
	if err != nil {
		return err
	}

	rec.Status = session.StatusOpen
	rec.UpdatedAt = e.now()
	if err := e.store.Save(rec); err != nil {
		Debug("Failed to save session %s: %v", rec.ID, err)
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Attaching to session %s... (~. to detach)\n", rec.ID)
	return runView(ctx, cmd, e, con, sess, rec)
}

func recordInfo(rec *session.Record) terminal.Info {
	return terminal.Info{
		ID:        rec.ID,
		AgentID:   rec.AgentID,
		Shell:     terminal.ShellKind(rec.Shell),
		CreatedAt: rec.CreatedAt,
	}
}

// attachSeq picks the client_seq floor for a new view. Another client may
// have sent input this store never saw, so the floor is at least the
// current Unix time in milliseconds.
func attachSeq(rec *session.Record, now time.Time) uint64 {
	floor := uint64(now.UnixMilli())
	if rec.LastSeq > floor {
		return rec.LastSeq
	}
	return floor
}
