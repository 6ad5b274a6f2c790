// Package session keeps the per-identity whitelist of live refresh tokens.
// Tokens are stored as SHA-256 fingerprints, never in the clear.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrReuseDetected means the presented refresh token is not (or no longer)
	// whitelisted. Callers treat it as theft and revoke every session.
	ErrReuseDetected = errors.New("session: refresh token reuse detected")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session: store unavailable")
)

// Store is the refresh-token whitelist. Implementations must make Rotate
// atomic: of any number of concurrent rotations of the same token, exactly
// one succeeds.
type Store interface {
	// Add whitelists token for identityID until ttl elapses.
	Add(ctx context.Context, identityID, token string, ttl time.Duration) error
	// Remove drops token. Removing an unknown token is not an error.
	Remove(ctx context.Context, identityID, token string) error
	// Rotate atomically replaces oldToken with newToken, or returns
	// ErrReuseDetected and changes nothing when oldToken is not whitelisted.
	Rotate(ctx context.Context, identityID, oldToken, newToken string, ttl time.Duration) error
	// RevokeAll drops every token of identityID.
	RevokeAll(ctx context.Context, identityID string) error
	// Exists reports whether identityID has at least one live token.
	Exists(ctx context.Context, identityID string) (bool, error)
	// ConsumePending marks a pending-token id as used. It returns false when
	// the id was already consumed within ttl.
	ConsumePending(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// Fingerprint is the stored form of a token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
