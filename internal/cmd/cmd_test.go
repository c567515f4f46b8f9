package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/require"

	"github.com/faize-ai/termlink/internal/api"
	"github.com/faize-ai/termlink/internal/api/apitest"
	"github.com/faize-ai/termlink/internal/session"
)

// fixture is a fake backend plus an isolated home directory.
type fixture struct {
	backend *apitest.Server
	url     string
	client  *api.Client
	store   *session.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	backend := apitest.NewServer("agent-1")
	srv := apitest.Start(t, backend)
	store, err := session.NewStoreAt(filepath.Join(home, ".termlink", "sessions"))
	require.NoError(t, err)
	return &fixture{
		backend: backend,
		url:     srv.URL,
		client:  api.NewClient(srv.URL, srv.Client(), nil),
		store:   store,
	}
}

func (f *fixture) env() *env {
	return &env{client: f.client, store: f.store}
}

// create opens a remote session directly on the backend.
func (f *fixture) create(t *testing.T) string {
	t.Helper()
	created, err := f.client.CreateSession(context.Background(), api.CreateRequest{
		AgentID: "agent-1", ShellType: "bash", Cols: 80, Rows: 24,
	})
	require.NoError(t, err)
	return created.SessionID
}

func (f *fixture) save(t *testing.T, id, status string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, f.store.Save(&session.Record{
		ID: id, AgentID: "agent-1", Shell: "bash", Server: f.url,
		Status: status, CreatedAt: now, UpdatedAt: now,
	}))
}

// execute runs the root command with args and returns everything it wrote.
func (f *fixture) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	psAll, pruneAll, killForce = false, false, false
	tailFrom, tailFollow, tailPlain = 0, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--server", f.url))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}
