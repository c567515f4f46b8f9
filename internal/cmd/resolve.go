package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/faize-ai/termlink/internal/api"
	"github.com/faize-ai/termlink/internal/session"
)

// resolveSession finds a session by ID or unique prefix, first among local
// records and then among the sessions the server reports.
func resolveSession(ctx context.Context, e *env, prefix string) (*session.Record, error) {
	rec, err := e.store.Resolve(prefix)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}

	remote, err := e.client.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("session %s not found locally and the server could not be asked: %w", prefix, err)
	}
	var match *api.SessionSummary
	for i := range remote {
		s := &remote[i]
		if s.SessionID == prefix {
			match = s
			break
		}
		if strings.HasPrefix(s.SessionID, prefix) {
			if match != nil {
				return nil, fmt.Errorf("%w: %s matches %s and %s", session.ErrAmbiguous, prefix, match.SessionID, s.SessionID)
			}
			match = s
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, prefix)
	}

	Debug("Resolved %s to remote session %s", prefix, match.SessionID)
	return &session.Record{
		ID:        match.SessionID,
		AgentID:   match.AgentID,
		Shell:     match.ShellType,
		Server:    e.client.BaseURL(),
		Status:    session.StatusDetached,
		CreatedAt: match.CreatedAt,
		UpdatedAt: e.now(),
	}, nil
}
