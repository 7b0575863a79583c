package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/auth"
)

// AuthHTTPHandler exchanges an API key for a short-lived bearer token.
// Endpoint:
//
//	POST /auth/token
type AuthHTTPHandler struct {
	authn  *auth.Authenticator
	logger *zap.Logger
}

// NewAuthHTTPHandler constructs a new handler.
func NewAuthHTTPHandler(authn *auth.Authenticator, logger *zap.Logger) *AuthHTTPHandler {
	return &AuthHTTPHandler{authn: authn, logger: logger}
}

// RegisterRoutes registers auth endpoints on the given mux.
func (h *AuthHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/token", h.handleToken)
}

func (h *AuthHTTPHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.authn.Enabled() || h.authn.Tokens() == nil {
		writeError(w, http.StatusNotFound, "token issuing disabled")
		return
	}

	key := r.Header.Get("X-API-Key")
	if key == "" {
		var body struct {
			APIKey string `json:"api_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			key = body.APIKey
		}
	}
	p, err := h.authn.Keys().Verify(key)
	if err != nil {
		h.logger.Warn("Token request rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	tokens, err := h.authn.Tokens().Issue(p.Subject, p.Scopes)
	if err != nil {
		h.logger.Error("Token issuing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": sanitizeErr(msg)})
}

// sanitizeErr trims error messages for safe client output (UTF-8 safe).
func sanitizeErr(s string) string {
	runes := []rune(s)
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return s
}
