// Package api is the HTTP boundary to the terminal backend: wire types, the
// response variants, and the error taxonomy callers branch on.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 8 << 20
)

// Client talks to the terminal endpoints of one backend.
type Client struct {
	baseURL        string
	client         *http.Client
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewClient returns a client for baseURL. A nil httpClient uses a fresh
// http.Client; a nil logger uses slog.Default().
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         httpClient,
		requestTimeout: defaultRequestTimeout,
		logger:         logger,
	}
}

// WithRequestTimeout returns a copy bounding every request by timeout.
func (c *Client) WithRequestTimeout(timeout time.Duration) *Client {
	clone := *c
	clone.requestTimeout = timeout
	return &clone
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// CreateSession asks the backend to spawn a shell on an agent.
func (c *Client) CreateSession(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	body, err := c.request(ctx, http.MethodPost, "/api/terminal/create", nil, req)
	if err != nil {
		return CreateResponse{}, classify("create session", err)
	}
	var resp CreateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return CreateResponse{}, &TransportError{Op: "create session", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if strings.TrimSpace(resp.SessionID) == "" {
		return CreateResponse{}, &TransportError{Op: "create session", Err: fmt.Errorf("%w: empty session_id", ErrMalformedResponse)}
	}
	return resp, nil
}

// SendInput submits one sequenced input record.
func (c *Client) SendInput(ctx context.Context, req InputRequest) (InputAck, error) {
	body, err := c.request(ctx, http.MethodPost, "/api/terminal/input", nil, req)
	if err != nil {
		return InputAck{}, classify("send input", err)
	}
	msg, err := decodeMessage(KindInputAck, body)
	if err != nil {
		return InputAck{}, &TransportError{Op: "send input", Err: err}
	}
	ack, _ := msg.(InputAck)
	return ack, nil
}

// FetchOutput returns the stream suffix starting at fromCursor.
func (c *Client) FetchOutput(ctx context.Context, sessionID string, fromCursor int64) (OutputDelta, error) {
	query := url.Values{}
	query.Set("from_cursor", strconv.FormatInt(fromCursor, 10))
	path := "/api/terminal/output/" + url.PathEscape(sessionID)
	body, err := c.request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return OutputDelta{}, classify("fetch output", err)
	}
	msg, err := decodeMessage(KindOutput, body)
	if err != nil {
		return OutputDelta{}, &TransportError{Op: "fetch output", Err: err}
	}
	delta, _ := msg.(OutputDelta)
	if delta.SessionID == "" {
		delta.SessionID = sessionID
	}
	return delta, nil
}

// Resize informs the remote PTY of a new geometry.
func (c *Client) Resize(ctx context.Context, req ResizeRequest) (ResizeAck, error) {
	body, err := c.request(ctx, http.MethodPost, "/api/terminal/resize", nil, req)
	if err != nil {
		return ResizeAck{}, classify("resize", err)
	}
	msg, err := decodeMessage(KindResizeAck, body)
	if err != nil {
		return ResizeAck{}, &TransportError{Op: "resize", Err: err}
	}
	ack, _ := msg.(ResizeAck)
	return ack, nil
}

// CloseSession terminates the remote shell.
func (c *Client) CloseSession(ctx context.Context, sessionID string, force bool) error {
	query := url.Values{}
	query.Set("force", strconv.FormatBool(force))
	path := "/api/terminal/close/" + url.PathEscape(sessionID)
	if _, err := c.request(ctx, http.MethodPost, path, query, nil); err != nil {
		return classify("close session", err)
	}
	return nil
}

// ListSessions returns every session the backend knows about.
func (c *Client) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	body, err := c.request(ctx, http.MethodGet, "/api/terminal/sessions", nil, nil)
	if err != nil {
		return nil, classify("list sessions", err)
	}
	var sessions []SessionSummary
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, &TransportError{Op: "list sessions", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return sessions, nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.requestTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.requestTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("terminal request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug("terminal request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"elapsed", time.Since(started),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newRequestError(resp.StatusCode, payload)
	}
	return payload, nil
}

func newRequestError(status int, payload []byte) *RequestError {
	var er ErrorResponse
	if err := json.Unmarshal(payload, &er); err == nil {
		if er.Error != nil && er.Error.Code != "" {
			return &RequestError{StatusCode: status, Code: er.Error.Code, Message: er.Error.Message}
		}
		if er.Detail != "" {
			return &RequestError{StatusCode: status, Message: er.Detail}
		}
	}
	return &RequestError{
		StatusCode: status,
		Code:       fmt.Sprintf("HTTP_%d", status),
		Message:    strings.TrimSpace(string(payload)),
	}
}
