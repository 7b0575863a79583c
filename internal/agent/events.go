package agent

import (
	"github.com/Kocoro-lab/lina/internal/llm"
)

// EventType names a lifecycle event of a conversation.
type EventType string

const (
	EventStatus  EventType = "status"
	EventToolUse EventType = "tool_use"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
)

// Terminal reports whether t ends the stream.
func (t EventType) Terminal() bool {
	return t == EventFinal || t == EventError
}

// Event is one record of the chat stream. Data is a string for status and error
// events, ToolUse for tool_use and Final for final.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// ToolUse announces a tool call before it runs.
type ToolUse struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Final carries the answer and the complete conversation.
type Final struct {
	Message llm.Message   `json:"message"`
	History []llm.Message `json:"history"`
}

// Emitter receives events in order. It must not retain Data beyond the call unless it
// copies it.
type Emitter func(Event)

func statusEvent(text string) Event { return Event{Type: EventStatus, Data: text} }

func errorEvent(text string) Event { return Event{Type: EventError, Data: text} }
