// Package agent runs the bounded tool-calling conversation between the chat model and
// the credit tools.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/llm"
	"github.com/Kocoro-lab/lina/internal/metrics"
	"github.com/Kocoro-lab/lina/internal/tools"
	"github.com/Kocoro-lab/lina/internal/tracing"
)

// DefaultMaxTurns bounds the model calls of one conversation.
const DefaultMaxTurns = 5

// Config tunes the loop.
type Config struct {
	Model    string `mapstructure:"model"`
	MaxTurns int    `mapstructure:"max_turns"`
	Gating   Gating `mapstructure:"tool_gating"`
}

// Request starts a conversation.
type Request struct {
	// ConversationID is generated when empty.
	ConversationID string
	// Model overrides Config.Model.
	Model    string
	Messages []llm.Message
	// Transport labels metrics (http, websocket, cli).
	Transport string
}

// Outcome describes how a conversation ended.
type Outcome struct {
	ConversationID string
	Answer         *llm.Message
	History        []llm.Message
	Turns          int
}

// Agent drives conversations. It holds no per-conversation state and is safe for
// concurrent use.
type Agent struct {
	model    llm.Client
	executor tools.Executor
	prompt   PromptSource
	config   Config
	logger   *zap.Logger
}

// New creates an agent. A nil prompt uses DefaultSystemPrompt.
func New(model llm.Client, executor tools.Executor, prompt PromptSource, config Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompt == nil {
		prompt = StaticPrompt(DefaultSystemPrompt)
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	if config.Model == "" {
		config.Model = llm.DefaultModel
	}
	if config.Gating == "" {
		config.Gating = GateAlways
	}
	return &Agent{model: model, executor: executor, prompt: prompt, config: config, logger: logger}
}

// Run drives one conversation to completion. Every call emits exactly one terminal
// event: final on success, error otherwise. The returned error is nil exactly when
// the final event was emitted; it wraps llm.ErrTransport, tools.ErrTransport or
// ErrTurnLimitExceeded.
func (a *Agent) Run(ctx context.Context, req Request, emit Emitter) (*Outcome, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	model := req.Model
	if model == "" {
		model = a.config.Model
	}
	transport := req.Transport
	if transport == "" {
		transport = "unknown"
	}

	ctx, span := tracing.StartSpan(ctx, "agent.conversation",
		attribute.String("conversation.id", req.ConversationID),
		attribute.String("llm.model", model),
	)
	defer span.End()
	ctx = tools.WithConversationID(ctx, req.ConversationID)

	logger := a.logger.With(zap.String("conversation_id", req.ConversationID))
	metrics.ConversationsStarted.WithLabelValues(transport).Inc()
	start := time.Now()

	out := &Outcome{ConversationID: req.ConversationID}
	err := a.run(ctx, model, req.Messages, out, emit, logger)

	outcome := "final"
	if err != nil {
		outcome = errorOutcome(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.Int("agent.turns", out.Turns))
	metrics.RecordConversation(outcome, out.Turns)
	logger.Info("Conversation finished",
		zap.String("outcome", outcome),
		zap.Int("turns", out.Turns),
		zap.Duration("duration", time.Since(start)),
	)
	return out, err
}

func (a *Agent) run(ctx context.Context, model string, history []llm.Message, out *Outcome, emit Emitter, logger *zap.Logger) error {
	messages := a.withSystemPrompt(history)
	out.History = messages

	var offered []llm.Tool
	if a.config.Gating.wantsTools(messages) {
		emit(statusEvent(MsgLoadingTools))
		defs, err := a.executor.Definitions(ctx)
		if err != nil {
			logger.Warn("Tool catalogue unavailable", zap.Error(err))
			emit(errorEvent(MsgToolFailure))
			return err
		}
		offered = toLLMTools(defs)
	}

	for turn := 0; turn < a.config.MaxTurns; turn++ {
		out.Turns = turn + 1
		emit(statusEvent(MsgThinking))

		resp, err := a.chat(ctx, model, messages, offered, turn)
		if err != nil {
			logger.Warn("Model call failed", zap.Int("turn", turn+1), zap.Error(err))
			emit(errorEvent(MsgModelFailure))
			return err
		}

		msg := *resp.Message
		if msg.Role == "" {
			msg.Role = llm.RoleAssistant
		}
		messages = append(messages, msg)
		out.History = messages

		if len(msg.ToolCalls) == 0 {
			out.Answer = &msg
			emit(Event{Type: EventFinal, Data: Final{Message: msg, History: messages}})
			return nil
		}

		for _, call := range msg.ToolCalls {
			name := call.Function.Name
			args := map[string]any(call.Function.Arguments)
			if args == nil {
				args = map[string]any{}
			}
			emit(Event{Type: EventToolUse, Data: ToolUse{Name: name, Args: args}})
			emit(statusEvent(fmt.Sprintf(msgExecuting, name)))

			content, err := a.execute(ctx, name, args, logger)
			if err != nil {
				emit(errorEvent(MsgToolFailure))
				return err
			}
			messages = append(messages, llm.ToolResult(name, content))
			out.History = messages
		}
	}

	emit(errorEvent(MsgTurnLimit))
	return ErrTurnLimitExceeded
}

func (a *Agent) chat(ctx context.Context, model string, messages []llm.Message, offered []llm.Tool, turn int) (*llm.ChatResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "agent.turn",
		attribute.Int("agent.turn", turn+1),
		attribute.Int("agent.tools_offered", len(offered)),
	)
	defer span.End()

	resp, err := a.model.Chat(ctx, llm.ChatRequest{Model: model, Messages: messages, Tools: offered})
	if err == nil && (resp == nil || resp.Message == nil) {
		err = &llm.TransportError{Err: fmt.Errorf("response has no message")}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("agent.tool_calls", len(resp.Message.ToolCalls)))
	return resp, nil
}

// execute runs one tool call and renders the tool message content: the output on
// success, the whole result otherwise, so the model sees the failure reason.
func (a *Agent) execute(ctx context.Context, name string, args map[string]any, logger *zap.Logger) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "agent.tool", attribute.String("tool.name", name))
	defer span.End()

	res, err := a.executor.Execute(ctx, name, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool boundary failed")
		logger.Warn("Tool execution boundary failed", zap.String("tool", name), zap.Error(err))
		return "", err
	}
	span.SetAttributes(attribute.Bool("tool.success", res.Success))

	var payload any = res
	if res.Success {
		payload = res.Output
	} else {
		logger.Info("Tool returned failure", zap.String("tool", name), zap.String("error", res.Error))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(tools.Result{Success: false, Error: "resultado não serializável: " + err.Error()})
	}
	return string(data), nil
}

// withSystemPrompt copies history, prepending the system prompt unless the caller
// already supplied one.
func (a *Agent) withSystemPrompt(history []llm.Message) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1+2*a.config.MaxTurns)
	if len(history) == 0 || history[0].Role != llm.RoleSystem {
		messages = append(messages, llm.System(a.prompt.SystemPrompt()))
	}
	return append(messages, history...)
}

func toLLMTools(defs []tools.Definition) []llm.Tool {
	out := make([]llm.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, llm.FunctionTool(d.Name, d.Description, d.Parameters))
	}
	return out
}
