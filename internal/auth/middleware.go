package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Authenticator resolves request credentials into a Principal.
type Authenticator struct {
	enabled bool
	jwt     *JWTManager
	keys    *KeyStore
	logger  *zap.Logger
}

// NewAuthenticator builds an authenticator from config. With auth disabled every
// request is let through as an anonymous principal holding all scopes.
func NewAuthenticator(cfg Config, logger *zap.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authenticator{enabled: cfg.Enabled, logger: logger}
	if !cfg.Enabled {
		return a, nil
	}
	if cfg.JWTSecret == "" && len(cfg.APIKeys) == 0 {
		return nil, errors.New("auth enabled but neither jwt_secret nor api_keys configured")
	}
	if cfg.JWTSecret != "" {
		a.jwt = NewJWTManager(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL)
	}
	keys, err := NewKeyStore(cfg.APIKeys)
	if err != nil {
		return nil, err
	}
	a.keys = keys
	return a, nil
}

// Enabled reports whether credentials are required.
func (a *Authenticator) Enabled() bool { return a.enabled }

// Tokens returns the JWT manager, or nil when bearer tokens are not configured.
func (a *Authenticator) Tokens() *JWTManager { return a.jwt }

// Keys returns the API key store.
func (a *Authenticator) Keys() *KeyStore { return a.keys }

// Authenticate checks the Authorization bearer token, then X-API-Key, then the
// api_key query parameter (browsers cannot set headers on websocket upgrades).
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	if !a.enabled {
		return &Principal{Subject: "anonymous", Method: MethodNone, Scopes: []string{"*"}}, nil
	}
	if header := r.Header.Get("Authorization"); header != "" {
		token, err := ExtractBearerToken(header)
		if err != nil {
			return nil, err
		}
		if a.jwt == nil {
			return nil, ErrInvalidCredentials
		}
		return a.jwt.Validate(token)
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return a.keys.Verify(key)
	}
	if key := r.URL.Query().Get("api_key"); key != "" && strings.HasSuffix(r.URL.Path, "/ws") {
		return a.keys.Verify(key)
	}
	return nil, ErrUnauthenticated
}

// Require wraps next, rejecting requests without valid credentials or without scope.
func (a *Authenticator) Require(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		p, err := a.Authenticate(r)
		if err != nil {
			a.logger.Debug("Authentication failed", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if scope != "" && !p.HasScope(scope) {
			writeError(w, http.StatusForbidden, ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// ExtractBearerToken extracts the token from an Authorization header value.
func ExtractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrUnauthenticated
	}
	return strings.TrimSpace(parts[1]), nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
