package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/faize-ai/termlink/internal/api"
	"github.com/faize-ai/termlink/internal/config"
	"github.com/faize-ai/termlink/internal/session"
	"github.com/faize-ai/termlink/internal/terminal"
)

var (
	cfgFile string
	debug   bool
	logFile string
)

// Debug logs a formatted message at debug level
func Debug(format string, args ...interface{}) {
	slog.Debug(fmt.Sprintf(format, args...))
}

var rootCmd = &cobra.Command{
	Use:   "termlink",
	Short: "termlink - remote shells over a polling terminal broker",
	Long: `termlink opens interactive shells on remote agents through an HTTP
terminal broker, and keeps the local view in step with the remote output.

Open a shell:
  termlink open --agent agent-1
  termlink open --agent agent-1 --shell zsh --cwd /srv/app

List sessions:
  termlink ps

Reattach, follow or end a session:
  termlink attach <session-id>
  termlink tail <session-id> --follow
  termlink kill <session-id>
  termlink prune`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd.ErrOrStderr())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.termlink/config.yaml)")
	rootCmd.PersistentFlags().String("server", "", "terminal broker URL (overrides server.url)")
	rootCmd.PersistentFlags().Duration("request-timeout", 0, "per-request timeout (overrides server.request_timeout)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
}

// setupLogging installs the process-wide slog logger. Logs never go to
// stdout, which carries the remote terminal stream.
func setupLogging(stderr io.Writer) error {
	level := slog.LevelError
	if debug {
		level = slog.LevelDebug
	}
	out := stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		if !debug {
			level = slog.LevelInfo
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return nil
}

// env bundles what most subcommands need.
type env struct {
	cfg    *config.Config
	client *api.Client
	store  *session.Store
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	Debug("Using server %s (timeout %s)", cfg.Server.URL, cfg.Server.RequestTimeout)

	store, err := session.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to access session store: %w", err)
	}

	client := api.NewClient(cfg.Server.URL, &http.Client{}, slog.Default()).
		WithRequestTimeout(cfg.Server.RequestTimeout)
	return &env{cfg: cfg, client: client, store: store}, nil
}

func (e *env) manager() *terminal.Manager {
	opts := e.cfg.SessionOptions()
	opts.Logger = slog.Default()
	return terminal.NewManager(e.client, opts)
}

func (e *env) now() time.Time { return time.Now().UTC() }
