package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/metrics"
	"github.com/Kocoro-lab/lina/internal/policy"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 60 * time.Second

// Result is the outcome of one dispatch: {success, output} or {success:false, error}.
type Result struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`

	// Err carries the typed failure for callers inside the process.
	Err error `json:"-"`
}

// Failure builds a failed result from err.
func Failure(err error) Result {
	var te *ToolError
	msg := err.Error()
	if errors.As(err, &te) && te.Reason != "" {
		msg = te.Reason
	}
	return Result{Success: false, Error: msg, Err: err}
}

// Dispatcher validates and executes tool calls. A handler failure of any kind (error,
// panic, timeout) becomes a failed Result; Dispatch itself never fails.
type Dispatcher struct {
	registry *Registry
	policy   policy.Engine
	timeout  time.Duration
	logger   *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPolicy consults engine before each call.
func WithPolicy(engine policy.Engine) DispatcherOption {
	return func(d *Dispatcher) { d.policy = engine }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{registry: registry, timeout: DefaultTimeout, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the catalogue the dispatcher serves.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs the named tool.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	start := time.Now()
	res := d.dispatch(ctx, name, args)

	status := Kind(res.Err)
	metrics.RecordToolCall(name, status, time.Since(start).Seconds())
	if res.Success {
		d.logger.Debug("Tool executed", zap.String("tool", name), zap.Duration("duration", time.Since(start)))
	} else {
		d.logger.Warn("Tool failed",
			zap.String("tool", name),
			zap.String("kind", status),
			zap.Error(res.Err),
		)
	}
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, raw map[string]any) Result {
	t, ok := d.registry.lookup(name)
	if !ok {
		return Failure(&ToolError{Tool: name, Reason: fmt.Sprintf("Ferramenta não encontrada: %s", name), Err: ErrUnknownTool})
	}
	if raw == nil {
		raw = map[string]any{}
	}

	args := coerce(t.def.Parameters, raw)
	if err := t.schema.Validate(map[string]any(args)); err != nil {
		return Failure(&ToolError{Tool: name, Reason: "argumentos inválidos: " + err.Error(), Err: fmt.Errorf("%w: %v", ErrValidation, err)})
	}

	if d.policy != nil {
		decision, err := d.policy.Evaluate(ctx, &policy.Input{
			Tool:           name,
			Args:           args,
			ConversationID: ConversationID(ctx),
		})
		if err != nil && (decision == nil || !decision.Allow) {
			return Failure(&ToolError{Tool: name, Reason: "verificação de política falhou", Err: fmt.Errorf("%w: %v", ErrPolicyDenied, err)})
		}
		if decision != nil && !decision.Allow {
			return Failure(&ToolError{Tool: name, Reason: "bloqueado pela política: " + decision.Reason, Err: ErrPolicyDenied})
		}
	}

	output, err := d.execute(ctx, t, args)
	if err != nil {
		return Failure(err)
	}
	return Result{Success: true, Output: output}
}

// execute runs the handler under the dispatcher timeout. A handler that outlives the
// timeout keeps running; its result is discarded.
func (d *Dispatcher) execute(ctx context.Context, t *tool, args Arguments) (any, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("Tool handler panicked", zap.String("tool", t.def.Name), zap.Any("panic", p))
				done <- outcome{err: &ToolError{Tool: t.def.Name, Reason: "erro interno na ferramenta", Err: fmt.Errorf("%w: %w", ErrToolExecution, &panicError{value: p})}}
			}
		}()
		out, err := t.handler(ctx, args)
		if err != nil {
			err = &ToolError{Tool: t.def.Name, Reason: err.Error(), Err: fmt.Errorf("%w: %w", ErrToolExecution, err)}
		}
		done <- outcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-ctx.Done():
		return nil, &ToolError{Tool: t.def.Name, Reason: "tempo limite excedido", Err: fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())}
	}
}

type conversationKey struct{}

// WithConversationID tags ctx with the conversation a tool call belongs to.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationKey{}, id)
}

// ConversationID returns the id set by WithConversationID, or "".
func ConversationID(ctx context.Context) string {
	id, _ := ctx.Value(conversationKey{}).(string)
	return id
}
