package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/agent"
	"github.com/Kocoro-lab/lina/internal/llm"
	"github.com/Kocoro-lab/lina/internal/metrics"
)

// maxChatBody caps POST /chat request bodies.
const maxChatBody = 4 << 20

// Runner runs one conversation; *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req agent.Request, emit agent.Emitter) (*agent.Outcome, error)
}

// ChatRequest is the body of POST /chat and the first frame of /chat/ws.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
}

func (r *ChatRequest) validate() error {
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	return nil
}

// ChatHandler streams agent conversations.
//
//	POST /chat     newline-delimited JSON events
//	GET  /chat/ws  one JSON frame per event
type ChatHandler struct {
	runner  Runner
	logger  *zap.Logger
	origins originSet

	pongWait   time.Duration
	pingPeriod time.Duration
}

// ChatOption configures a ChatHandler.
type ChatOption func(*ChatHandler)

// WithAllowedOrigins restricts WebSocket upgrades to browser origins in the list. Requests
// without an Origin header are not browsers and are always accepted.
func WithAllowedOrigins(origins []string) ChatOption {
	return func(h *ChatHandler) { h.origins = newOriginSet(origins) }
}

// NewChatHandler constructs a new handler.
func NewChatHandler(runner Runner, logger *zap.Logger, opts ...ChatOption) *ChatHandler {
	h := &ChatHandler{
		runner:     runner,
		logger:     logger,
		origins:    newOriginSet(nil),
		pongWait:   wsPongWait,
		pingPeriod: wsPingPeriod,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the chat endpoints on mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", h.handleChat)
	h.RegisterWebSocket(mux)
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	stream := newNDJSONWriter(w)
	out, err := h.runner.Run(r.Context(), agent.Request{
		Model:     req.Model,
		Messages:  req.Messages,
		Transport: "http",
	}, stream.emit)

	fields := []zap.Field{zap.Int("events", stream.written)}
	if out != nil {
		fields = append(fields, zap.String("conversation_id", out.ConversationID))
	}
	if stream.err != nil {
		// The client went away; the loop ran to completion regardless.
		fields = append(fields, zap.NamedError("write_error", stream.err))
	}
	if err != nil {
		h.logger.Info("Chat ended with error", append(fields, zap.Error(err))...)
		return
	}
	h.logger.Debug("Chat completed", fields...)
}

// ndjsonWriter writes one event per line and flushes after each one. After the first
// write error further events are dropped.
type ndjsonWriter struct {
	w       io.Writer
	flusher http.Flusher
	enc     *json.Encoder
	written int
	err     error
}

func newNDJSONWriter(w http.ResponseWriter) *ndjsonWriter {
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &ndjsonWriter{w: w, flusher: flusher, enc: enc}
}

func (s *ndjsonWriter) emit(e agent.Event) {
	if s.err != nil {
		return
	}
	// Encode terminates each record with '\n'.
	if err := s.enc.Encode(e); err != nil {
		s.err = err
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	s.written++
	metrics.StreamEvents.WithLabelValues("http", string(e.Type)).Inc()
}
