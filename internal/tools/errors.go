package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors for tool dispatch. Use errors.Is to check.
var (
	ErrUnknownTool   = errors.New("unknown tool")
	ErrValidation    = errors.New("invalid tool arguments")
	ErrToolExecution = errors.New("tool execution failed")
	ErrPolicyDenied  = errors.New("tool call denied by policy")
	ErrTimeout       = errors.New("tool execution timed out")
)

// ToolError is the typed form of a failed dispatch. Reason is safe to show to the model.
type ToolError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Kind returns a short label for the failure, used in metrics and HTTP status mapping.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPolicyDenied):
		return "policy"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "execution"
	}
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }
