// Package llm talks to the chat model through the Ollama /api/chat protocol.
package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role discriminates messages in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of the conversation history. ToolCalls is only set on assistant
// messages and Name only on tool messages.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Name      string     `json:"name,omitempty"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// ToolResult builds the message answering a tool call.
func ToolResult(name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name}
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its arguments.
type FunctionCall struct {
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// Arguments is the argument object of a tool call. Some models send it as a JSON
// encoded string instead of an object; both forms decode to the same map.
type Arguments map[string]any

// UnmarshalJSON accepts an object, a string holding an object, or null.
func (a *Arguments) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Arguments{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = Arguments{}
			return nil
		}
		data = []byte(s)
	}
	m := map[string]any{}
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("tool call arguments: %w", err)
	}
	*a = m
	return nil
}

// Tool is a function the model may call, in the Ollama/OpenAI tools format.
type Tool struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes a callable function.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// FunctionTool wraps a function description as a Tool.
func FunctionTool(name, description string, parameters map[string]any) Tool {
	return Tool{Type: "function", Function: FunctionSpec{Name: name, Description: description, Parameters: parameters}}
}
