package models

// EventName enumerates the SSE event types on the /stream wire.
type EventName string

const (
	EventToolCall  EventName = "tool_call"
	EventText      EventName = "text"
	EventCitation  EventName = "citation"
	EventComponent EventName = "component"
	EventEnd       EventName = "end"
	EventError     EventName = "error"
)

// StreamEvent is one ordered event produced by the orchestrator. Data is the
// payload handed to the SSE encoder: structs become JSON objects, strings are
// written as-is.
type StreamEvent struct {
	Event EventName
	Data  any
}

// ToolCallPayload carries a human-readable progress message.
type ToolCallPayload struct {
	Message string `json:"message"`
}

// EndPayload is the fixed data of a terminal end event.
const EndPayload = "complete"
