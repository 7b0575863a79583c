package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/circuitbreaker"
	"github.com/Kocoro-lab/lina/internal/tracing"
)

// DefaultRemoteTimeout bounds each request to the tool server.
const DefaultRemoteTimeout = 60 * time.Second

// maxResponseBytes caps how much of a tool server response is read.
const maxResponseBytes = 8 << 20

// ExecuteRequest is the POST /execute body.
type ExecuteRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// RemoteExecutor calls a decision server over HTTP.
type RemoteExecutor struct {
	baseURL string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewRemoteExecutor creates an executor for the server at baseURL. A zero timeout
// uses DefaultRemoteTimeout.
func NewRemoteExecutor(baseURL string, timeout time.Duration, logger *zap.Logger) *RemoteExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	client := &http.Client{Timeout: timeout}
	return &RemoteExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: circuitbreaker.NewHTTPWrapper(client, "tool-server", "tools", circuitbreaker.GetToolServerConfig(), logger,
			circuitbreaker.WithFailureClassifier(serverFault)),
		logger: logger,
	}
}

// Breaker exposes the circuit breaker guarding the tool server.
func (e *RemoteExecutor) Breaker() *circuitbreaker.CircuitBreaker { return e.http.Breaker() }

// Definitions fetches GET /tools.
func (e *RemoteExecutor) Definitions(ctx context.Context) ([]Definition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/tools", nil)
	if err != nil {
		return nil, &TransportError{Op: "list", Err: err}
	}
	tracing.InjectTraceparent(ctx, req)
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "list", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: "list", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: "list", StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	}

	var defs []Definition
	if err := json.Unmarshal(body, &defs); err != nil {
		return nil, &TransportError{Op: "list", Err: fmt.Errorf("decode tool catalogue: %w", err)}
	}
	return defs, nil
}

// Execute posts the call to /execute. A non-2xx answer that still carries a
// {success:false, error} body is a tool failure, not a transport failure.
func (e *RemoteExecutor) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	payload, err := json.Marshal(ExecuteRequest{Tool: name, Args: args})
	if err != nil {
		return Result{}, &TransportError{Op: "execute", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return Result{}, &TransportError{Op: "execute", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	if id := ConversationID(ctx); id != "" {
		req.Header.Set("X-Conversation-ID", id)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return Result{}, &TransportError{Op: "execute", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, &TransportError{Op: "execute", Err: err}
	}

	var res Result
	decodeErr := json.Unmarshal(body, &res)
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299

	switch {
	case ok && decodeErr == nil:
		return res, nil
	case !ok && isToolFailure(body):
		e.logger.Debug("Tool server reported failure",
			zap.String("tool", name),
			zap.Int("status", resp.StatusCode),
			zap.String("error", res.Error),
		)
		res.Err = &ToolError{Tool: name, Reason: res.Error, Err: statusSentinel(resp.StatusCode)}
		return res, nil
	case ok:
		return Result{}, &TransportError{Op: "execute", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode result: %w", decodeErr)}
	default:
		return Result{}, &TransportError{Op: "execute", StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	}
}

// serverFault reports whether resp counts against the tool-server breaker. A 5xx
// carrying a {success:false, error} body is a handler failure the server already
// isolated, so only other 5xx responses count.
func serverFault(resp *http.Response) bool {
	if resp.StatusCode < 500 {
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return true
	}
	return !isToolFailure(body)
}

func isToolFailure(body []byte) bool {
	var res Result
	return json.Unmarshal(body, &res) == nil && !res.Success && res.Error != ""
}

// statusSentinel maps the decision server's status codes back to dispatch errors.
func statusSentinel(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusNotFound:
		return ErrUnknownTool
	case http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusForbidden:
		return ErrPolicyDenied
	case http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrToolExecution
	}
}

// StatusCode is the HTTP status the decision server answers a failed dispatch with.
func StatusCode(err error) int {
	switch Kind(err) {
	case "ok":
		return http.StatusOK
	case "unknown_tool":
		return http.StatusBadRequest
	case "validation":
		return http.StatusUnprocessableEntity
	case "policy":
		return http.StatusForbidden
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		s = "empty response"
	}
	return s
}
