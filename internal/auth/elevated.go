// Package auth verifies the shared key that elevated callers present to delete
// suggestions they do not own.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HeaderAdminKey carries the elevated caller's key.
const HeaderAdminKey = "X-Admin-Key"

var (
	ErrElevationDisabled = errors.New("elevated access is not configured")
	ErrInvalidKey        = errors.New("invalid admin key")
)

type KeyVerifier struct {
	hash []byte
}

// NewKeyVerifier wraps a bcrypt hash. An empty hash disables elevation.
func NewKeyVerifier(hash string) *KeyVerifier {
	return &KeyVerifier{hash: []byte(strings.TrimSpace(hash))}
}

func (v *KeyVerifier) Enabled() bool {
	return v != nil && len(v.hash) > 0
}

func (v *KeyVerifier) Verify(key string) error {
	if !v.Enabled() {
		return ErrElevationDisabled
	}
	if key == "" {
		return ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(key)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// HashKey produces the value to configure as ADMIN_KEY_HASH.
func HashKey(key string) (string, error) {
	if len(key) < 12 {
		return "", errors.New("admin key must be at least 12 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin key: %w", err)
	}
	return string(hash), nil
}
