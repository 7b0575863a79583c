package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(Config{BaseURL: srv.URL, Timeout: time.Second}, zaptest.NewLogger(t))
}

func TestChatSendsToolsAndDecodesToolCalls(t *testing.T) {
	var got ChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"lina","message":{"role":"assistant","content":"",
			"tool_calls":[{"function":{"name":"buscar_cliente","arguments":{"id":"1001"}}},
			{"function":{"name":"listar_clientes","arguments":"{}"}}]},"done":true}`))
	})

	resp, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{System("sys"), User("quem é o cliente 1001?")},
		Tools:    []Tool{FunctionTool("buscar_cliente", "busca", map[string]any{"type": "object"})},
		Stream:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "buscar_cliente", got.Tools[0].Function.Name)

	require.NotNil(t, resp.Message)
	require.Len(t, resp.Message.ToolCalls, 2)
	assert.Equal(t, Arguments{"id": "1001"}, resp.Message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, Arguments{}, resp.Message.ToolCalls[1].Function.Arguments)
}

func TestChatOmitsEmptyTools(t *testing.T) {
	var raw map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Olá!"}}`))
	})

	resp, err := c.Chat(context.Background(), ChatRequest{Model: "outro", Messages: []Message{User("oi")}})
	require.NoError(t, err)
	assert.Equal(t, "Olá!", resp.Message.Content)
	assert.NotContains(t, raw, "tools")
	assert.Equal(t, "outro", raw["model"])
}

func TestChatTransportErrors(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"non 2xx": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":`))
		},
		"missing message": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"done":true}`))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, handler)
			_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{User("oi")}})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
		})
	}
}

func TestChatUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewOllamaClient(Config{BaseURL: url, Timeout: time.Second}, zaptest.NewLogger(t))
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{User("oi")}})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestPing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[]}`))
	})
	assert.NoError(t, c.Ping(context.Background()))
}

func TestToolMessageCarriesName(t *testing.T) {
	data, err := json.Marshal(ToolResult("listar_clientes", `[]`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":"[]","name":"listar_clientes"}`, string(data))

	data, err = json.Marshal(User("oi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"oi"}`, string(data))
}
