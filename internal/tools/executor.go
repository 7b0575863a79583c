package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransport marks failures to reach the tool server. Use errors.Is to check.
var ErrTransport = errors.New("tool server unavailable")

// TransportError describes a failed exchange with a remote tool server.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tools %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tools %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Executor is the tool-execution boundary seen by the agent. Execute reports handler
// failures inside the Result; a non-nil error means the boundary itself failed and the
// conversation cannot continue.
type Executor interface {
	Definitions(ctx context.Context) ([]Definition, error)
	Execute(ctx context.Context, name string, args map[string]any) (Result, error)
}

// LocalExecutor runs tools in-process.
type LocalExecutor struct {
	dispatcher *Dispatcher
}

// NewLocalExecutor wraps dispatcher.
func NewLocalExecutor(dispatcher *Dispatcher) *LocalExecutor {
	return &LocalExecutor{dispatcher: dispatcher}
}

// Definitions returns the registered tools.
func (e *LocalExecutor) Definitions(context.Context) ([]Definition, error) {
	return e.dispatcher.Registry().Definitions(), nil
}

// Execute dispatches the call; it never returns an error.
func (e *LocalExecutor) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	return e.dispatcher.Dispatch(ctx, name, args), nil
}
