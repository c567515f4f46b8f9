package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/faize-ai/termlink/internal/session"
)

var psAll bool

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List terminal sessions",
	Long: `List the terminal sessions the server reports, marked with whether this
machine has a record of them. Local records the server no longer knows are
shown as "gone".`,
	Args: cobra.NoArgs,
	RunE: runPs,
}

func init() {
	rootCmd.AddCommand(psCmd)
	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "also show sessions that have ended")
}

func runPs(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	records, err := e.store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	local := make(map[string]*session.Record, len(records))
	for _, rec := range records {
		local[rec.ID] = rec
	}

	remote, remoteErr := e.client.ListSessions(cmd.Context())
	if remoteErr != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not list server sessions: %v\n", remoteErr)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAGENT\tSHELL\tSTATE\tCREATED\tLOCAL")
	_, _ = fmt.Fprintln(w, "--\t-----\t-----\t-----\t-------\t-----")

	rows := 0
	seen := make(map[string]bool, len(remote))
	for _, s := range remote {
		seen[s.SessionID] = true
		mark := "-"
		if rec, ok := local[s.SessionID]; ok {
			mark = rec.Status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID, s.AgentID, s.ShellType, s.State,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"), mark)
		rows++
	}
	for _, rec := range records {
		if seen[rec.ID] {
			continue
		}
		state := rec.Status
		switch {
		case rec.Finished():
			if !psAll {
				continue
			}
		case remoteErr == nil:
			state = "gone"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.AgentID, rec.Shell, state,
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"), rec.Status)
		rows++
	}

	if rows == 0 {
		_, _ = fmt.Fprintln(out, "No sessions.")
		return nil
	}
	return w.Flush()
}
