package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/lina/internal/decision"
	"github.com/Kocoro-lab/lina/internal/features"
	"github.com/Kocoro-lab/lina/internal/llm"
	"github.com/Kocoro-lab/lina/internal/ranking"
	"github.com/Kocoro-lab/lina/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedModel answers each Chat call with the next scripted response.
type scriptedModel struct {
	responses []*llm.ChatResponse
	errs      []error
	requests  []llm.ChatRequest
}

func (s *scriptedModel) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	i := len(s.requests)
	cp := req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	s.requests = append(s.requests, cp)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return s.responses[len(s.responses)-1], nil
}

func answer(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: &llm.Message{Role: llm.RoleAssistant, Content: text}}
}

func callTools(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{Message: &llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}}
}

func call(name string, args llm.Arguments) llm.ToolCall {
	return llm.ToolCall{Function: llm.FunctionCall{Name: name, Arguments: args}}
}

type fakeExecutor struct {
	defs      []tools.Definition
	defsErr   error
	results   map[string]tools.Result
	execErr   error
	executed  []string
	defsCalls int
}

func (f *fakeExecutor) Definitions(context.Context) ([]tools.Definition, error) {
	f.defsCalls++
	return f.defs, f.defsErr
}

func (f *fakeExecutor) Execute(_ context.Context, name string, _ map[string]any) (tools.Result, error) {
	f.executed = append(f.executed, name)
	if f.execErr != nil {
		return tools.Result{}, f.execErr
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return tools.Result{Success: false, Error: "Ferramenta não encontrada: " + name}, nil
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		defs: []tools.Definition{
			{Name: "listar_clientes", Description: "lista", Parameters: map[string]any{"type": "object"}},
			{Name: "buscar_cliente", Description: "busca", Parameters: map[string]any{"type": "object"}},
		},
		results: map[string]tools.Result{
			"listar_clientes": {Success: true, Output: []map[string]string{{"id": "1001", "nome": "Ana"}}},
			"buscar_cliente":  {Success: true, Output: map[string]any{"id": "1001", "renda": 18000}},
		},
	}
}

type recorder struct{ events []Event }

func (r *recorder) emit(e Event) { r.events = append(r.events, e) }

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) terminal(t *testing.T) Event {
	t.Helper()
	count := 0
	var last Event
	for _, e := range r.events {
		if e.Type.Terminal() {
			count++
			last = e
		}
	}
	require.Equal(t, 1, count, "exactly one terminal event")
	assert.Equal(t, last, r.events[len(r.events)-1], "terminal event is last")
	return last
}

func newTestAgent(t *testing.T, model llm.Client, exec tools.Executor, cfg Config) *Agent {
	t.Helper()
	return New(model, exec, StaticPrompt("Você é a Lina."), cfg, zaptest.NewLogger(t))
}

func TestPlainAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{answer("Olá! Como posso ajudar?")}}
	a := newTestAgent(t, model, newFakeExecutor(), Config{})
	rec := &recorder{}

	out, err := a.Run(context.Background(), Request{Messages: []llm.Message{llm.User("oi")}}, rec.emit)
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventStatus, EventStatus, EventFinal}, rec.types())
	assert.Equal(t, MsgLoadingTools, rec.events[0].Data)
	assert.Equal(t, MsgThinking, rec.events[1].Data)

	final := rec.terminal(t).Data.(Final)
	assert.Equal(t, "Olá! Como posso ajudar?", final.Message.Content)
	require.Len(t, final.History, 3)
	assert.Equal(t, llm.System("Você é a Lina."), final.History[0])
	assert.Equal(t, llm.RoleAssistant, final.History[2].Role)

	assert.NotEmpty(t, out.ConversationID)
	assert.Equal(t, 1, out.Turns)
	require.Len(t, model.requests, 1)
	assert.Equal(t, llm.DefaultModel, model.requests[0].Model)
	assert.Len(t, model.requests[0].Tools, 2)
	assert.Equal(t, "function", model.requests[0].Tools[0].Type)
}

func TestExistingSystemMessageKept(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{answer("ok")}}
	a := newTestAgent(t, model, newFakeExecutor(), Config{})

	out, err := a.Run(context.Background(), Request{
		Model:    "outro",
		Messages: []llm.Message{llm.System("custom"), llm.User("oi")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", out.History[0].Content)
	assert.Len(t, out.History, 3)
	assert.Equal(t, "outro", model.requests[0].Model)
}

func TestToolCallsRunSequentiallyAndFeedBack(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{
		callTools(
			call("listar_clientes", llm.Arguments{}),
			call("nao_existe", llm.Arguments{"x": 1.0}),
			call("buscar_cliente", llm.Arguments{"id": "1001"}),
		),
		answer("A Ana tem renda de 18 mil."),
	}}
	exec := newFakeExecutor()
	a := newTestAgent(t, model, exec, Config{})
	rec := &recorder{}

	out, err := a.Run(context.Background(), Request{Messages: []llm.Message{llm.User("liste os clientes")}}, rec.emit)
	require.NoError(t, err)

	assert.Equal(t, []string{"listar_clientes", "nao_existe", "buscar_cliente"}, exec.executed)
	assert.Equal(t, []EventType{
		EventStatus, EventStatus,
		EventToolUse, EventStatus,
		EventToolUse, EventStatus,
		EventToolUse, EventStatus,
		EventStatus, EventFinal,
	}, rec.types())
	assert.Equal(t, ToolUse{Name: "buscar_cliente", Args: map[string]any{"id": "1001"}}, rec.events[6].Data)
	assert.Equal(t, "Executando: buscar_cliente...", rec.events[7].Data)

	// system, user, assistant(tool_calls), 3 tool messages, final answer
	require.Len(t, out.History, 7)
	assert.Equal(t, 2, out.Turns)
	for i, name := range []string{"listar_clientes", "nao_existe", "buscar_cliente"} {
		msg := out.History[3+i]
		assert.Equal(t, llm.RoleTool, msg.Role)
		assert.Equal(t, name, msg.Name)
	}
	assert.JSONEq(t, `[{"id":"1001","nome":"Ana"}]`, out.History[3].Content)

	var failed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.History[4].Content), &failed))
	assert.Equal(t, false, failed["success"])
	assert.Contains(t, failed["error"], "nao_existe")

	// The second model call sees every tool result.
	require.Len(t, model.requests, 2)
	assert.Len(t, model.requests[1].Messages, 6)
}

func TestTurnLimit(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{callTools(call("listar_clientes", nil))}}
	exec := newFakeExecutor()
	a := newTestAgent(t, model, exec, Config{})
	rec := &recorder{}

	out, err := a.Run(context.Background(), Request{Messages: []llm.Message{llm.User("liste")}}, rec.emit)
	require.ErrorIs(t, err, ErrTurnLimitExceeded)

	assert.Equal(t, DefaultMaxTurns, out.Turns)
	assert.Len(t, model.requests, DefaultMaxTurns)
	assert.Len(t, exec.executed, DefaultMaxTurns)
	last := rec.terminal(t)
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, MsgTurnLimit, last.Data)
}

func TestModelFailureEndsConversation(t *testing.T) {
	transportErr := &llm.TransportError{StatusCode: 500, Err: errors.New("boom")}
	model := &scriptedModel{
		responses: []*llm.ChatResponse{callTools(call("listar_clientes", nil))},
		errs:      []error{nil, transportErr},
	}
	exec := newFakeExecutor()
	a := newTestAgent(t, model, exec, Config{})
	rec := &recorder{}

	_, err := a.Run(context.Background(), Request{Messages: []llm.Message{llm.User("liste")}}, rec.emit)
	require.ErrorIs(t, err, llm.ErrTransport)

	last := rec.terminal(t)
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, MsgModelFailure, last.Data)
	assert.Len(t, model.requests, 2, "no retry")
}

func TestResponseWithoutMessageIsTransportFailure(t *testing.T) {
	model := &scriptedModel{responses: []*llm.ChatResponse{{Done: true}}}
	a := newTestAgent(t, model, newFakeExecutor(), Config{})
	rec := &recorder{}

	_, err := a.Run(context.Background(), Request{Messages: []llm.Message{llm.User("oi")}}, rec.emit)
	require.ErrorIs(t, err, llm.ErrTransport)
	assert.Equal(t, MsgModelFailure, rec.terminal(t).Data)
}

func TestToolBoundaryFailure(t *testing.T) {
	t.Run("catalogue", func(t *testing.T) {
		exec := newFakeExecutor()
		exec.defsErr = &tools.TransportError{Op: "list", Err: errors.New("connection refused")}
		model := &scriptedModel{responses: []*llm.ChatResponse{answer("nunca")}}
		rec := &recorder{}

		_, err := newTestAgent(t, model, exec, Config{}).Run(context.Background(),
			Request{Messages: []llm.Message{llm.User("oi")}}, rec.emit)
		require.ErrorIs(t, err, tools.ErrTransport)
		assert.Equal(t, MsgToolFailure, rec.terminal(t).Data)
		assert.Empty(t, model.requests)
	})

	t.Run("execute", func(t *testing.T) {
		exec := newFakeExecutor()
		exec.execErr = &tools.TransportError{Op: "execute", StatusCode: 502, Err: errors.New("bad gateway")}
		model := &scriptedModel{responses: []*llm.ChatResponse{callTools(call("listar_clientes", nil))}}
		rec := &recorder{}

		_, err := newTestAgent(t, model, exec, Config{}).Run(context.Background(),
			Request{Messages: []llm.Message{llm.User("liste")}}, rec.emit)
		require.ErrorIs(t, err, tools.ErrTransport)
		assert.Equal(t, EventError, rec.terminal(t).Type)
	})
}

func TestGating(t *testing.T) {
	cases := []struct {
		gating      Gating
		message     string
		wantTools   bool
		wantCatalog bool
	}{
		{GateAlways, "bom dia", true, true},
		{GateKeyword, "bom dia", false, false},
		{GateKeyword, "Analise o cliente 1001", true, true},
		{GateKeyword, "qual o RISCO dele?", true, true},
		{GateNever, "analisar cliente", false, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.gating)+"/"+tc.message, func(t *testing.T) {
			model := &scriptedModel{responses: []*llm.ChatResponse{answer("ok")}}
			exec := newFakeExecutor()
			a := newTestAgent(t, model, exec, Config{Gating: tc.gating})

			_, err := a.Run(context.Background(), Request{Messages: []llm.Message{llm.User(tc.message)}}, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.wantTools, len(model.requests[0].Tools) > 0)
			assert.Equal(t, tc.wantCatalog, exec.defsCalls > 0)
		})
	}
}

func TestParseGating(t *testing.T) {
	g, err := ParseGating("")
	require.NoError(t, err)
	assert.Equal(t, GateAlways, g)

	g, err = ParseGating(" Keyword ")
	require.NoError(t, err)
	assert.Equal(t, GateKeyword, g)

	_, err = ParseGating("sometimes")
	assert.Error(t, err)
}

type fixedFraud float64

func (f fixedFraud) FraudScore(features.Vector) (float64, error) { return float64(f), nil }

type fixedRisk float64

func (r fixedRisk) RiskClass(features.Vector) (string, map[string]float64, error) {
	return "good", map[string]float64{"good": float64(r), "bad": 1 - float64(r)}, nil
}

func (fixedRisk) PositiveClass() string { return "good" }

func TestAnalysisThroughLocalTools(t *testing.T) {
	logger := zaptest.NewLogger(t)
	pipeline := decision.NewPipeline(fixedFraud(0.93), fixedRisk(0.96), ranking.NewRatioRanker(), decision.WithLogger(logger))
	registry, err := tools.NewCatalogue(pipeline, nil)
	require.NoError(t, err)
	exec := tools.NewLocalExecutor(tools.NewDispatcher(registry, logger))

	model := &scriptedModel{responses: []*llm.ChatResponse{
		callTools(call("analisar_cliente", llm.Arguments{
			"renda": 18000.0, "divida": 1500.0, "score": 850.0, "emprego": 48.0, "idade": 40.0,
		})),
		answer("Cliente aprovado com oferta GOLD."),
	}}
	a := New(model, exec, nil, Config{}, logger)
	rec := &recorder{}

	out, err := a.Run(context.Background(), Request{Messages: []llm.Message{llm.User("analise este cliente")}}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, DefaultSystemPrompt, out.History[0].Content)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out.History[3].Content), &result))
	assert.Equal(t, "APPROVED", result["decisao"])
	assert.Equal(t, "GOLD", result["oferta"])
	assert.Equal(t, EventFinal, rec.terminal(t).Type)
}
