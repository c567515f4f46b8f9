package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pruneAll bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove local records of ended sessions",
	Long: `Remove local session records that are no longer useful.

This command removes:
  - Sessions that were closed or failed
  - Sessions the server no longer knows

Remote shells are never touched. Use --all to forget every local record.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVarP(&pruneAll, "all", "a", false, "remove all local records (remote shells keep running)")
}

func runPrune(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	records, err := e.store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	var alive map[string]bool
	if !pruneAll {
		remote, err := e.client.ListSessions(cmd.Context())
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: server unreachable, only removing ended sessions: %v\n", err)
		} else {
			alive = make(map[string]bool, len(remote))
			for _, s := range remote {
				alive[s.SessionID] = true
			}
		}
	}

	removedCount := 0
	for _, rec := range records {
		gone := alive != nil && !alive[rec.ID]
		if !pruneAll && !rec.Finished() && !gone {
			continue
		}
		if err := e.store.Delete(rec.ID); err != nil {
			_, _ = fmt.Fprintf(out, "Warning: failed to delete session %s: %v\n", rec.ID, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "Removed session: %s (%s)\n", rec.ID, rec.Status)
		removedCount++
	}

	if removedCount == 0 {
		_, _ = fmt.Fprintln(out, "No sessions to remove.")
	} else {
		_, _ = fmt.Fprintf(out, "Removed %d session(s).\n", removedCount)
	}
	return nil
}
