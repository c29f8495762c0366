package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent is returned when a frame names an event the server does not handle.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is the wire form of every frame: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ProtocolError reports a frame that could not be turned into a Request.
type ProtocolError struct {
	Event string
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("invalid frame: %v", e.Err)
	}
	return fmt.Sprintf("invalid %q event: %v", e.Event, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Details describes field type mismatches in a form suitable for an Error event.
func (e *ProtocolError) Details() []string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(e.Err, &typeErr) && typeErr.Field != "" {
		return []string{fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)}
	}
	return nil
}

// EncodeEvent marshals an event into its envelope.
func EncodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s payload: %w", e.EventName(), err)
	}

	return json.Marshal(Envelope{Event: e.EventName(), Data: data})
}

// EncodeRequest marshals a client request into its envelope.
func EncodeRequest(r Request) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s payload: %w", r.RequestName(), err)
	}

	return json.Marshal(Envelope{Event: r.RequestName(), Data: data})
}

// DecodeRequest parses one incoming frame. Missing data decodes to the zero
// value of the request; fields of the wrong JSON type are rejected here so the
// engine only ever sees well-typed requests.
func DecodeRequest(p []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(p, &env); err != nil {
		return nil, &ProtocolError{Err: err}
	}

	switch env.Event {
	case EventJoin, EventJoinChat:
		var req JoinRequest
		if err := decodeData(env.Data, &req); err != nil {
			return nil, &ProtocolError{Event: env.Event, Err: err}
		}
		return req, nil

	case EventSend, EventSendMessage:
		var req SendRequest
		if err := decodeData(env.Data, &req); err != nil {
			return nil, &ProtocolError{Event: env.Event, Err: err}
		}
		return req, nil

	case EventTyping:
		var req TypingRequest
		if err := decodeData(env.Data, &req); err != nil {
			return nil, &ProtocolError{Event: env.Event, Err: err}
		}
		return req, nil
	}

	return nil, &ProtocolError{Event: env.Event, Err: ErrUnknownEvent}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
