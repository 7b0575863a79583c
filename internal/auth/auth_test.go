package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("segredo", "", time.Minute)
	tok, err := m.Issue("ana", []string{ScopeChat})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, 60, tok.ExpiresIn)

	p, err := m.Validate(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ana", p.Subject)
	assert.Equal(t, MethodJWT, p.Method)
	assert.True(t, p.HasScope(ScopeChat))
	assert.False(t, p.HasScope(ScopeTools))

	_, err = NewJWTManager("outro", "", time.Minute).Validate(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = NewJWTManager("segredo", "outro-emissor", time.Minute).Validate(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestExpiredToken(t *testing.T) {
	m := NewJWTManager("segredo", "", time.Minute)
	m.ttl = -time.Minute
	tok, err := m.Issue("ana", nil)
	require.NoError(t, err)

	_, err = m.Validate(tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAPIKeys(t *testing.T) {
	key, entry, err := GenerateAPIKey("painel", []string{ScopeChat})
	require.NoError(t, err)
	assert.Len(t, entry.Prefix, KeyPrefixLen)

	store, err := NewKeyStore([]APIKey{entry})
	require.NoError(t, err)

	p, err := store.Verify(key)
	require.NoError(t, err)
	assert.Equal(t, "painel", p.Subject)
	assert.Equal(t, MethodAPIKey, p.Method)

	_, err = store.Verify(key + "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = store.Verify("")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = NewKeyStore([]APIKey{{Name: "ruim", Hash: "not-bcrypt"}})
	assert.Error(t, err)
}

func TestRequireMiddleware(t *testing.T) {
	key, entry, err := GenerateAPIKey("painel", []string{ScopeChat})
	require.NoError(t, err)
	a, err := NewAuthenticator(Config{Enabled: true, JWTSecret: "segredo", APIKeys: []APIKey{entry}}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var seen *Principal
	h := a.Require(ScopeChat, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
	}))

	serve := func(r *http.Request) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	r := httptest.NewRequest(http.MethodPost, "/chat", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r))

	r = httptest.NewRequest(http.MethodPost, "/chat", nil)
	r.Header.Set("X-API-Key", key)
	assert.Equal(t, http.StatusOK, serve(r))
	require.NotNil(t, seen)
	assert.Equal(t, "painel", seen.Subject)

	tok, err := a.Tokens().Issue("ana", []string{ScopeTools})
	require.NoError(t, err)
	r = httptest.NewRequest(http.MethodPost, "/chat", nil)
	r.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	assert.Equal(t, http.StatusForbidden, serve(r))

	r = httptest.NewRequest(http.MethodGet, "/chat/ws?api_key="+key, nil)
	assert.Equal(t, http.StatusOK, serve(r))

	r = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	assert.Equal(t, http.StatusOK, serve(r))
}

func TestDisabledAuthenticatorAllowsAll(t *testing.T) {
	a, err := NewAuthenticator(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	p, err := a.Authenticate(httptest.NewRequest(http.MethodPost, "/chat", nil))
	require.NoError(t, err)
	assert.True(t, p.HasScope(ScopeTools))
}

func TestExtractBearerToken(t *testing.T) {
	tok, err := ExtractBearerToken("bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = ExtractBearerToken("Basic abc")
	assert.Error(t, err)
	_, err = ExtractBearerToken("Bearer ")
	assert.Error(t, err)
}
