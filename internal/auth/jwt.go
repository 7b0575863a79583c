package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "lina-gateway"

// JWTManager issues and validates access tokens.
type JWTManager struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
}

// NewJWTManager creates a manager. Zero ttl means one hour.
func NewJWTManager(signingKey, issuer string, ttl time.Duration) *JWTManager {
	if issuer == "" {
		issuer = defaultIssuer
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &JWTManager{signingKey: []byte(signingKey), ttl: ttl, issuer: issuer}
}

// Claims are the access token claims.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// TokenResponse is returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Issue signs a token for subject.
func (j *JWTManager) Issue(subject string, scopes []string) (*TokenResponse, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			ID:        uuid.NewString(),
		},
		Scopes: scopes,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &TokenResponse{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int(j.ttl.Seconds())}, nil
}

// Validate parses and verifies a token.
func (j *JWTManager) Validate(tokenString string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.signingKey, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}

	p := &Principal{Subject: claims.Subject, Method: MethodJWT, Scopes: claims.Scopes}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
