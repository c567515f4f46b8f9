package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faize-ai/termlink/internal/api"
	"github.com/faize-ai/termlink/internal/console"
	"github.com/faize-ai/termlink/internal/terminal"
)

var (
	tailFrom   int64
	tailFollow bool
	tailPlain  bool
)

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Print a session's output",
	Long: `Print the output a remote shell has produced, without sending input.

By default prints everything the server still holds and exits. With
--follow it keeps printing new output until the session ends or Ctrl-C.

Examples:
  termlink tail 3f2a
  termlink tail 3f2a --from 4096
  termlink tail 3f2a --follow --plain`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().Int64Var(&tailFrom, "from", 0, "output cursor to start reading at")
	tailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "keep printing new output")
	tailCmd.Flags().BoolVar(&tailPlain, "plain", false, "strip ANSI escape sequences from output")
}

func runTail(cmd *cobra.Command, args []string) error {
	if tailFrom < 0 {
		return fmt.Errorf("invalid --from %d: must not be negative", tailFrom)
	}
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

	if !tailFollow {
		out := cmd.OutOrStdout()
		if tailPlain {
			pw := console.NewPlainWriter(out)
			defer func() { _ = pw.Flush() }()
			out = pw
		}
		cursor, err := dumpOutput(ctx, e.client, rec.ID, tailFrom, out, cmd.ErrOrStderr())
		Debug("Tail of %s stopped at cursor %d", rec.ID, cursor)
		return err
	}

	con := console.New(console.Options{
		In:       os.Stdin,
		Out:      cmd.OutOrStdout(),
		Plain:    tailPlain,
		ReadOnly: true,
		Logger:   slog.Default(),
	})
	mgr := e.manager()
	defer mgr.Shutdown()

	sess, err := mgr.Attach(recordInfo(rec), terminal.AttachOptions{FromCursor: tailFrom}, con.Callbacks())
	if err != nil {
		return err
	}
	err = con.Run(ctx, sess)
	sess.Detach()
	if errors.Is(err, console.ErrDetached) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dumpOutput copies the output held by the server from cursor onwards and
// returns the cursor it stopped at. Gaps and stream resets are reported on
// warn.
func dumpOutput(ctx context.Context, client *api.Client, id string, cursor int64, out, warn io.Writer) (int64, error) {
	for {
		delta, err := client.FetchOutput(ctx, id, cursor)
		if err != nil {
			return cursor, fmt.Errorf("failed to fetch output: %w", err)
		}

		switch {
		case cursor > 0 && delta.ToCursor < cursor:
			_, _ = fmt.Fprintf(warn, "Warning: output stream of %s was reset, reading from the start\n", id)
			cursor = 0
			continue
		case delta.Warning != nil:
			_, _ = fmt.Fprintf(warn, "Warning: %s\n", delta.Warning.Message)
		case delta.FromCursor > cursor:
			_, _ = fmt.Fprintf(warn, "Warning: output discarded by server (bytes %d-%d lost)\n", cursor, delta.FromCursor)
		}

		data := delta.Data
		if skip := cursor - delta.FromCursor; skip > 0 {
			if skip >= int64(len(data)) {
				data = nil
			} else {
				data = data[skip:]
			}
		}
		if len(data) > 0 {
			if _, err := out.Write(data); err != nil {
				return cursor, err
			}
		}
		if delta.ToCursor > cursor {
			cursor = delta.ToCursor
		}
		if !delta.HasMore || delta.Empty() {
			return cursor, nil
		}
	}
}
