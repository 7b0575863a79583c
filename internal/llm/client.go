package llm

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
	"github.com/Kocoro-lab/lina/internal/metrics"
	"github.com/Kocoro-lab/lina/internal/tracing"
)

const (
	// DefaultModel is the Ollama model tag the assistant is published under.
	DefaultModel = "lina"
	// DefaultTimeout bounds one model call.
	DefaultTimeout = 300 * time.Second

	maxResponseBytes = 16 << 20
)

// ErrTransport marks failures to obtain a usable model response. Use errors.Is to check.
var ErrTransport = errors.New("llm transport failure")

// TransportError describes a failed model call.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// ChatRequest is the /api/chat request body.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
	Stream   bool      `json:"stream"`
}

// ChatResponse is the /api/chat response body. Message is nil when the server omitted it.
type ChatResponse struct {
	Model      string   `json:"model,omitempty"`
	Message    *Message `json:"message"`
	Done       bool     `json:"done,omitempty"`
	DoneReason string   `json:"done_reason,omitempty"`
}

// Client is a chat model.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Config configures an OllamaClient.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OllamaClient calls a local Ollama server.
type OllamaClient struct {
	baseURL string
	model   string
	http    *circuitbreaker.HTTPWrapper
	logger  *zap.Logger
}

// NewOllamaClient creates a client. Zero values in cfg take the package defaults.
func NewOllamaClient(cfg Config, logger *zap.Logger) *OllamaClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: cfg.Timeout}
	return &OllamaClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    circuitbreaker.NewHTTPWrapper(client, "ollama", "llm", circuitbreaker.GetLLMConfig(), logger),
		logger:  logger,
	}
}

// Model returns the default model name.
func (c *OllamaClient) Model() string { return c.model }

// BaseURL returns the server address.
func (c *OllamaClient) BaseURL() string { return c.baseURL }

// Breaker exposes the circuit breaker guarding the model server.
func (c *OllamaClient) Breaker() *circuitbreaker.CircuitBreaker { return c.http.Breaker() }

// Chat performs one non-streaming chat completion.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = false

	start := time.Now()
	resp, err := c.chat(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMRequest(req.Model, status, time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("Model call failed", zap.String("model", req.Model), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("Model call completed",
		zap.String("model", req.Model),
		zap.Int("tool_calls", len(resp.Message.ToolCalls)),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (c *OllamaClient) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("encode request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, httpReq)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: err}
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Message == nil {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Err: errors.New("response has no message")}
	}
	return &out, nil
}

// Ping checks that the server answers GET /api/tags.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &TransportError{StatusCode: resp.StatusCode, Err: errors.New("unexpected status")}
	}
	return nil
}
