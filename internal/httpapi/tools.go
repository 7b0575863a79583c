package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/tools"
)

// maxExecuteBody caps POST /execute request bodies.
const maxExecuteBody = 1 << 20

// ToolsHandler serves the decision server's tool catalogue and execution endpoints.
//
//	GET  /tools
//	POST /execute
type ToolsHandler struct {
	dispatcher *tools.Dispatcher
	logger     *zap.Logger
}

// NewToolsHandler constructs a new handler.
func NewToolsHandler(dispatcher *tools.Dispatcher, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{dispatcher: dispatcher, logger: logger}
}

// RegisterRoutes registers the tool endpoints on mux.
func (h *ToolsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/tools", h.handleList)
	mux.HandleFunc("/execute", h.handleExecute)
}

func (h *ToolsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, h.dispatcher.Registry().Definitions())
}

func (h *ToolsHandler) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req tools.ExecuteRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxExecuteBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, tools.Result{Success: false, Error: "JSON inválido"})
		return
	}

	ctx := r.Context()
	if id := r.Header.Get("X-Conversation-ID"); id != "" {
		ctx = tools.WithConversationID(ctx, id)
	}

	res := h.dispatcher.Dispatch(ctx, req.Tool, req.Args)
	writeJSON(w, tools.StatusCode(res.Err), res)
}
