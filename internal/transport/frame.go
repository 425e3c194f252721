package transport

import (
	"encoding/json"
	"fmt"
)

// frame is the wire envelope exchanged on every namespace channel.
// Events carry an optional correlation id when an acknowledgement is
// requested; acks echo that id back.
type frame struct {
	Type  string          `json:"type"`
	ID    uint64          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	frameEvent = "event"
	frameAck   = "ack"
)

// Response is the decoded acknowledgement for an emitted event.
type Response struct {
	ok      bool
	Data    json.RawMessage
	Message string
}

// OK reports whether the server acknowledged the event as successful.
func (r Response) OK() bool { return r.ok }

// Err returns the server-provided failure, or nil on success.
func (r Response) Err() error {
	if r.ok {
		return nil
	}
	if r.Message != "" {
		return fmt.Errorf("server error: %s", r.Message)
	}
	return fmt.Errorf("server rejected event")
}

// decodeAck parses an ack payload into a Response. The canonical success
// discriminator is status "ok"; numeric 200 and a bare boolean true are
// accepted for compatibility with older server builds.
func decodeAck(raw json.RawMessage) Response {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return Response{ok: b}
	}

	var env struct {
		Status  any             `json:"status"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{Message: "malformed acknowledgement"}
	}

	ok := false
	switch s := env.Status.(type) {
	case string:
		ok = s == "ok"
	case float64:
		ok = s == 200
	case bool:
		ok = s
	}
	return Response{ok: ok, Data: env.Data, Message: env.Message}
}
