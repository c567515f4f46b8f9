package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faize-ai/termlink/internal/console"
	"github.com/faize-ai/termlink/internal/session"
	"github.com/faize-ai/termlink/internal/terminal"
)

var (
	openAgent string
	openShell string
	openCwd   string
	openEnv   []string
	openPlain bool
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open an interactive shell on an agent",
	Long: `Open a new remote shell on an agent and attach this terminal to it.

Type ~. at the start of a line to detach and leave the shell running,
~? for the list of escapes.

Examples:
  termlink open --agent agent-1
  termlink open --agent agent-1 --shell pwsh --cwd 'C:\src'
  termlink open --agent agent-1 --env TERM=xterm-256color --env LANG=C.UTF-8`,
	Args: cobra.NoArgs,
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().StringVarP(&openAgent, "agent", "a", "", "agent to open the shell on")
	openCmd.Flags().StringVarP(&openShell, "shell", "s", "", "shell type: "+shellList()+" (default from config)")
	openCmd.Flags().StringVar(&openCwd, "cwd", "", "working directory on the agent")
	openCmd.Flags().StringArrayVarP(&openEnv, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	openCmd.Flags().BoolVar(&openPlain, "plain", false, "strip ANSI escape sequences from output")
	_ = openCmd.MarkFlagRequired("agent")
}

func runOpen(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}

	name := openShell
	if name == "" {
		name = e.cfg.Terminal.DefaultShell
	}
	shell, err := terminal.ParseShellKind(name)
	if err != nil {
		return err
	}
	vars, err := parseEnv(openEnv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	con := console.New(console.Options{
		In:     os.Stdin,
		Out:    os.Stdout,
		Plain:  openPlain,
		Logger: slog.Default(),
	})
	mgr := e.manager()
	defer mgr.Shutdown()

	sess, err := mgr.Open(ctx, terminal.OpenRequest{
		AgentID:  openAgent,
		Shell:    shell,
		Cwd:      openCwd,
		Env:      vars,
		Geometry: localGeometry(),
	}, con.Callbacks())
	if err != nil {
		return err
	}

	info := sess.Info()
	rec := &session.Record{
		ID:        info.ID,
		AgentID:   info.AgentID,
		Shell:     string(info.Shell),
		Server:    e.client.BaseURL(),
		Status:    session.StatusOpen,
		CreatedAt: info.CreatedAt,
		UpdatedAt: e.now(),
	}
	if err := e.store.Save(rec); err != nil {
		Debug("Failed to save session %s: %v", rec.ID, err)
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Opened %s on %s as session %s (~. to detach)\n", info.Shell, info.AgentID, info.ID)
	return runView(ctx, cmd, e, con, sess, rec)
}

// parseEnv turns KEY=VALUE pairs into a map. Later pairs win.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q: expected KEY=VALUE", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

func shellList() string {
	names := make([]string, 0, len(terminal.ShellKinds))
	for _, k := range terminal.ShellKinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}
