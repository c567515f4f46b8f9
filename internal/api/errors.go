package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrSessionNotFound means the backend no longer knows the session.
	// It is terminal: callers must not retry.
	ErrSessionNotFound = errors.New("terminal session not found")

	// ErrMalformedResponse marks a 2xx body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// RequestError carries the detail of a non-2xx HTTP response.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	switch {
	case code != "" && message != "":
		return fmt.Sprintf("http %d: %s: %s", e.StatusCode, code, message)
	case code != "":
		return fmt.Sprintf("http %d: %s", e.StatusCode, code)
	case message != "":
		return fmt.Sprintf("http %d: %s", e.StatusCode, message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Is lets errors.Is(err, ErrSessionNotFound) match a 404.
func (e *RequestError) Is(target error) bool {
	return target == ErrSessionNotFound && e != nil && e.StatusCode == http.StatusNotFound
}

// TransportError is a recoverable failure: the network, a non-404 error
// status, or an undecodable body.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status behind the failure, or 0 for network
// and decode errors.
func (e *TransportError) StatusCode() int {
	var reqErr *RequestError
	if errors.As(e.Err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err means the session is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsTransport reports whether err is a recoverable transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// classify sorts a raw request error into the boundary taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &TransportError{Op: op, Err: err}
}
