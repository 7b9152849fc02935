package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type names as they appear on the wire.
const (
	EventReasoning   = "on_reasoning"
	EventToolStart   = "on_tool_start"
	EventToolArgs    = "on_tool_args"
	EventToolRequest = "on_tool_request"
	EventToolOutput  = "on_tool_output"
	EventText        = "text"
)

// StreamEvent is one message delivered by a query stream.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

var ErrMalformedEvent = errors.New("malformed stream event")

type rawStreamEvent struct {
	Type    *string `json:"type"`
	Content *string `json:"content"`
}

// DecodeStreamEvent parses a {"type","content"} payload. Both keys must be
// present and be strings.
func DecodeStreamEvent(data []byte) (StreamEvent, error) {
	var raw rawStreamEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return StreamEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if raw.Type == nil {
		return StreamEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if raw.Content == nil {
		return StreamEvent{}, fmt.Errorf("%w: missing content", ErrMalformedEvent)
	}
	return StreamEvent{Type: *raw.Type, Content: *raw.Content}, nil
}

func EncodeStreamEvent(ev StreamEvent) []byte {
	data, _ := json.Marshal(ev)
	return data
}
