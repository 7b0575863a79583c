package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Kocoro-lab/lina/internal/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRemoteExecutorRoundTrip(t *testing.T) {
	var gotConversation string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tools":
			_ = json.NewEncoder(w).Encode([]Definition{{Name: ListClients, Description: "lista", Parameters: objectSchema(map[string]any{})}})
		case "/execute":
			gotConversation = r.Header.Get("X-Conversation-ID")
			var req ExecuteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if req.Tool != ListClients {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Ferramenta não encontrada"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "output": []map[string]string{{"id": "1001", "nome": "Ana"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewRemoteExecutor(srv.URL+"/", time.Second, zaptest.NewLogger(t))

	defs, err := e.Definitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, ListClients, defs[0].Name)

	res, err := e.Execute(WithConversationID(context.Background(), "conv-9"), ListClients, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "conv-9", gotConversation)
	assert.Equal(t, []any{map[string]any{"id": "1001", "nome": "Ana"}}, res.Output)

	res, err = e.Execute(context.Background(), "nao_existe", map[string]any{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Ferramenta não encontrada", res.Error)
	assert.ErrorIs(t, res.Err, ErrUnknownTool)
}

func TestRemoteExecutorServerErrorWithBodyIsToolFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"divisão por zero"}`))
	}))
	defer srv.Close()

	e := NewRemoteExecutor(srv.URL, time.Second, zaptest.NewLogger(t))
	res, err := e.Execute(context.Background(), AnalyzeClient, scenarioA)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrToolExecution)
}

func TestRemoteExecutorToolFailuresKeepBreakerClosed(t *testing.T) {
	t.Setenv("CB_TOOLS_FAILURE_THRESHOLD", "2")
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"modelo de risco indisponível"}`))
	}))
	defer srv.Close()

	e := NewRemoteExecutor(srv.URL, time.Second, zaptest.NewLogger(t))
	for i := 0; i < 5; i++ {
		res, err := e.Execute(context.Background(), AnalyzeClient, scenarioA)
		require.NoError(t, err, "call %d", i)
		assert.False(t, res.Success)
		assert.Equal(t, "modelo de risco indisponível", res.Error)
	}
	assert.Equal(t, 5, calls)
	assert.NotEqual(t, circuitbreaker.StateOpen, e.Breaker().State())
}

func TestRemoteExecutorServerFaultsOpenBreaker(t *testing.T) {
	t.Setenv("CB_TOOLS_FAILURE_THRESHOLD", "2")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	e := NewRemoteExecutor(srv.URL, time.Second, zaptest.NewLogger(t))
	for i := 0; i < 2; i++ {
		_, err := e.Execute(context.Background(), AnalyzeClient, scenarioA)
		require.ErrorIs(t, err, ErrTransport)
	}
	assert.Equal(t, circuitbreaker.StateOpen, e.Breaker().State())

	_, err := e.Execute(context.Background(), AnalyzeClient, scenarioA)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestRemoteExecutorTransportFailures(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}))
		defer srv.Close()

		e := NewRemoteExecutor(srv.URL, time.Second, zaptest.NewLogger(t))
		_, err := e.Execute(context.Background(), AnalyzeClient, scenarioA)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)

		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, http.StatusBadGateway, te.StatusCode)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		e := NewRemoteExecutor(url, time.Second, zaptest.NewLogger(t))
		_, err := e.Definitions(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-block:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(block)

		e := NewRemoteExecutor(srv.URL, 50*time.Millisecond, zaptest.NewLogger(t))
		_, err := e.Execute(context.Background(), ListClients, nil)
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestLocalExecutor(t *testing.T) {
	d := newTestDispatcher(t, fixedFraud{score: 0.9}, fixedRisk{class: "good", probGood: 0.9}, newMemoryStore())
	e := NewLocalExecutor(d)

	defs, err := e.Definitions(context.Background())
	require.NoError(t, err)
	assert.Len(t, defs, 6)

	res, err := e.Execute(context.Background(), "nao_existe", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}
