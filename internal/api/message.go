package api

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageKind tags the response variants the terminal endpoints return.
type MessageKind string

const (
	KindOutput    MessageKind = "output"
	KindInputAck  MessageKind = "input_ack"
	KindResizeAck MessageKind = "resize_ack"
	KindWarning   MessageKind = "warning"
)

// Message is implemented by every decoded response variant.
type Message interface {
	Kind() MessageKind
}

// OutputDelta is a slice of a session's append-only output stream.
type OutputDelta struct {
	SessionID  string
	FromCursor int64
	ToCursor   int64
	Data       []byte
	HasMore    bool
	// Warning is set when the server discarded bytes before FromCursor.
	Warning *Warning
}

func (OutputDelta) Kind() MessageKind { return KindOutput }

// Empty reports whether the delta carried no new bytes.
func (d OutputDelta) Empty() bool { return d.ToCursor == d.FromCursor }

type InputAck struct {
	Status    string
	ClientSeq uint64
}

func (InputAck) Kind() MessageKind { return KindInputAck }

type ResizeAck struct {
	Status string
}

func (ResizeAck) Kind() MessageKind { return KindResizeAck }

// Warning signals a data-loss gap in the output stream.
type Warning struct {
	Message string
}

func (Warning) Kind() MessageKind { return KindWarning }

// decodeMessage parses a 2xx body for the endpoint that produced it. An
// explicit "type" tag in the body must agree with the endpoint.
func decodeMessage(expect MessageKind, payload []byte) (Message, error) {
	var tag struct {
		Type string `json:"type"`
	}
	// Bodies without a tag, or non-object bodies such as "ok", are
	// handled by the per-kind decoders below.
	_ = json.Unmarshal(payload, &tag)
	if tag.Type != "" && MessageKind(tag.Type) != expect {
		if !(expect == KindOutput && MessageKind(tag.Type) == KindWarning) {
			return nil, fmt.Errorf("%w: expected %s message, got %q", ErrMalformedResponse, expect, tag.Type)
		}
	}

	switch expect {
	case KindOutput:
		var raw OutputResponse
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode output: %v", ErrMalformedResponse, err)
		}
		if raw.ToCursor < raw.FromCursor {
			return nil, fmt.Errorf("%w: to_cursor %d before from_cursor %d", ErrMalformedResponse, raw.ToCursor, raw.FromCursor)
		}
		delta := OutputDelta{
			SessionID:  raw.SessionID,
			FromCursor: raw.FromCursor,
			ToCursor:   raw.ToCursor,
			Data:       []byte(raw.OutputData),
			HasMore:    raw.HasMore,
		}
		if w := strings.TrimSpace(raw.Warning); w != "" || MessageKind(raw.Type) == KindWarning {
			if w == "" {
				w = "output discarded by server"
			}
			delta.Warning = &Warning{Message: w}
		}
		return delta, nil
	case KindInputAck:
		status, err := decodeStatus(payload)
		if err != nil {
			return nil, err
		}
		return InputAck{Status: status.Status, ClientSeq: status.ClientSeq}, nil
	case KindResizeAck:
		status, err := decodeStatus(payload)
		if err != nil {
			return nil, err
		}
		return ResizeAck{Status: status.Status}, nil
	case KindWarning:
		var raw struct {
			Warning string `json:"warning"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode warning: %v", ErrMalformedResponse, err)
		}
		msg := raw.Warning
		if msg == "" {
			msg = raw.Message
		}
		return Warning{Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrMalformedResponse, expect)
	}
}

func decodeStatus(payload []byte) (StatusResponse, error) {
	var status StatusResponse
	if len(strings.TrimSpace(string(payload))) == 0 {
		return StatusResponse{Status: "ok"}, nil
	}
	if err := json.Unmarshal(payload, &status); err != nil {
		return StatusResponse{}, fmt.Errorf("%w: decode status: %v", ErrMalformedResponse, err)
	}
	if status.Status == "" {
		status.Status = "ok"
	}
	return status, nil
}
