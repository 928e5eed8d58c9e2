// Package stream decodes the backend's event stream and applies it to the
// conversation transcript. Events arrive as Server-Sent Events frames; each
// frame carries a typed JSON payload. The event set is closed: unknown types
// are skipped, never fatal.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/lidahealth/lida/internal/transcript"
)

// Wire event types emitted by the backend.
const (
	TypeTextCreated       = "text.created"
	TypeTextDelta         = "text.delta"
	TypeImageReference    = "image.reference"
	TypeToolCallCreated   = "tool_call.created"
	TypeToolCallDelta     = "tool_call.delta"
	TypeRunRequiresAction = "run.requires_action"
	TypeRunCompleted      = "run.completed"
	TypeRunFailed         = "run.failed"
)

// KindCodeExecution is the tool-call kind rendered as a Code message.
const KindCodeExecution = "code_execution"

// Event is one element of a backend event stream.
type Event interface {
	eventType() string
}

// TextCreated announces a new assistant message.
type TextCreated struct{}

// TextDelta appends text to the open assistant message. Annotations, when
// present, are applied to the message immediately.
type TextDelta struct {
	Value       string                  `json:"value"`
	Annotations []transcript.Annotation `json:"annotations,omitempty"`
}

// ImageReference attaches a generated file to the open assistant message.
type ImageReference struct {
	FileID string `json:"file_id"`
}

// ToolCallCreated announces a tool invocation by the assistant.
type ToolCallCreated struct {
	Kind string `json:"kind"`
}

// ToolCallDelta streams incremental tool input.
type ToolCallDelta struct {
	Kind     string `json:"kind"`
	Fragment string `json:"fragment"`
}

// ToolCall is one delegated operation in a requires-action batch.
type ToolCall struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RunRequiresAction pauses the run until every tool call has an output.
type RunRequiresAction struct {
	RunID string     `json:"run_id"`
	Calls []ToolCall `json:"tool_calls"`
}

// RunCompleted is the successful terminal event of an exchange.
type RunCompleted struct{}

// RunFailed is the failing terminal event of an exchange.
type RunFailed struct {
	Reason string `json:"reason"`
}

func (TextCreated) eventType() string       { return TypeTextCreated }
func (TextDelta) eventType() string         { return TypeTextDelta }
func (ImageReference) eventType() string    { return TypeImageReference }
func (ToolCallCreated) eventType() string   { return TypeToolCallCreated }
func (ToolCallDelta) eventType() string     { return TypeToolCallDelta }
func (RunRequiresAction) eventType() string { return TypeRunRequiresAction }
func (RunCompleted) eventType() string      { return TypeRunCompleted }
func (RunFailed) eventType() string         { return TypeRunFailed }

// decodeEvent turns a wire frame into a typed event. Unknown types return
// (nil, nil) and are skipped by the decoder.
func decodeEvent(eventType string, data []byte) (Event, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch eventType {
	case TypeTextCreated:
		return TextCreated{}, nil
	case TypeTextDelta:
		var ev TextDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return ev, nil
	case TypeImageReference:
		var ev ImageReference
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return ev, nil
	case TypeToolCallCreated:
		var ev ToolCallCreated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return ev, nil
	case TypeToolCallDelta:
		var ev ToolCallDelta
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return ev, nil
	case TypeRunRequiresAction:
		var ev RunRequiresAction
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return ev, nil
	case TypeRunCompleted:
		return RunCompleted{}, nil
	case TypeRunFailed:
		var ev RunFailed
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return ev, nil
	default:
		return nil, nil
	}
}

// Marshal encodes an event as its wire type and JSON payload. Used by test
// backends and stream re-emitters; the inverse of decodeEvent.
func Marshal(ev Event) (eventType string, data []byte, err error) {
	data, err = json.Marshal(ev)
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s: %w", ev.eventType(), err)
	}
	return ev.eventType(), data, nil
}
