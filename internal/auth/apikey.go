package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of a key are stored in clear.
const KeyPrefixLen = 8

// KeyStore verifies API keys against configured bcrypt hashes.
type KeyStore struct {
	keys []APIKey
}

// NewKeyStore validates the configured keys.
func NewKeyStore(keys []APIKey) (*KeyStore, error) {
	for i, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("api key %d: name is required", i)
		}
		if _, err := bcrypt.Cost([]byte(k.Hash)); err != nil {
			return nil, fmt.Errorf("api key %s: invalid bcrypt hash: %w", k.Name, err)
		}
	}
	return &KeyStore{keys: keys}, nil
}

// Len returns the number of configured keys.
func (s *KeyStore) Len() int { return len(s.keys) }

// Verify returns the principal for key.
func (s *KeyStore) Verify(key string) (*Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrUnauthenticated
	}
	for _, k := range s.keys {
		if k.Prefix != "" && !strings.HasPrefix(key, k.Prefix) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(key)) == nil {
			return &Principal{Subject: k.Name, Method: MethodAPIKey, Scopes: k.Scopes}, nil
		}
	}
	return nil, ErrInvalidCredentials
}

// GenerateAPIKey creates a new random key with its config entry.
func GenerateAPIKey(name string, scopes []string) (string, APIKey, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	key := "lk_" + base64.RawURLEncoding.EncodeToString(b)
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", APIKey{}, fmt.Errorf("hash api key: %w", err)
	}
	return key, APIKey{Name: name, Prefix: key[:KeyPrefixLen], Hash: string(hash), Scopes: scopes}, nil
}
