// Package auth authenticates gateway callers with HS256 bearer tokens or
// bcrypt-hashed API keys.
package auth

import (
	"context"
	"errors"
	"time"
)

// Scopes granted to callers.
const (
	ScopeChat  = "chat"
	ScopeTools = "tools"
)

// Authentication methods recorded on a Principal.
const (
	MethodJWT    = "jwt"
	MethodAPIKey = "api_key"
	MethodNone   = "none"
)

var (
	// ErrUnauthenticated means no usable credentials were presented.
	ErrUnauthenticated = errors.New("missing authentication")
	// ErrInvalidCredentials means the presented credentials were rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden means the caller lacks a required scope.
	ErrForbidden = errors.New("insufficient scope")
)

// Config configures gateway authentication.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	APIKeys   []APIKey      `mapstructure:"api_keys"`
}

// APIKey is a configured key. Only the bcrypt hash of the secret is stored; Prefix is
// the first characters of the key and narrows the candidates before hashing.
type APIKey struct {
	Name   string   `mapstructure:"name"`
	Prefix string   `mapstructure:"prefix"`
	Hash   string   `mapstructure:"hash"`
	Scopes []string `mapstructure:"scopes"`
}

// Principal is the authenticated caller.
type Principal struct {
	Subject   string    `json:"subject"`
	Method    string    `json:"method"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// HasScope reports whether p was granted scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by the middleware.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
