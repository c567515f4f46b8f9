package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var killForce bool

var killCmd = &cobra.Command{
	Use:   "kill <session-id>",
	Short: "Close a remote shell",
	Long: `Close a remote shell on its agent and mark it ended locally.

The session ID can be a partial match (prefix). A session the server no
longer knows counts as closed. Use --force to kill the shell's process
tree instead of asking it to exit.`,
	Args: cobra.ExactArgs(1),
	RunE: runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
	killCmd.Flags().BoolVarP(&killForce, "force", "f", false, "kill the shell instead of asking it to exit")
}

func runKill(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	rec, err := resolveSession(ctx, e, args[0])
	if err != nil {
		return err
	}

	if err := e.manager().Close(ctx, rec.ID, killForce); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	rec.MarkClosed("killed", e.now())
	if err := e.store.Save(rec); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to save session %s: %v\n", rec.ID, err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Closed session: %s\n", rec.ID)
	return nil
}
