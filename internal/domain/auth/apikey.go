// Package auth authenticates service callers by API key.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// Scopes granted to API keys.
const (
	ScopePricing  = "pricing"
	ScopeAdmin    = "admin"
	ScopePayments = "payments"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	// ErrKeyNotFound is returned by Repository when no active key has the hash.
	ErrKeyNotFound = errors.New("api key not found")
)

// APIKey is an authenticated caller.
type APIKey struct {
	ID      string
	Name    string
	KeyHash string
	Scopes  []string
}

// Allows reports whether the key carries scope. The admin scope allows everything.
func (k *APIKey) Allows(scope string) bool {
	return slices.Contains(k.Scopes, scope) || slices.Contains(k.Scopes, ScopeAdmin)
}

// Repository looks API keys up by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKey, error)
}

// Hash returns the hex HMAC-SHA256 of raw keyed by pepper.
func Hash(pepper []byte, raw string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator verifies raw API keys.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate resolves raw to an APIKey. Any failure is ErrUnauthorized
// except storage errors, which are returned wrapped.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*APIKey, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	hash := Hash(a.pepper, raw)

	key, err := a.keys.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	// The lookup matched on hash already; compare in constant time against
	// what was stored.
	if subtle.ConstantTimeCompare([]byte(hash), []byte(key.KeyHash)) != 1 {
		return nil, ErrUnauthorized
	}
	return key, nil
}

type keyCtx struct{}

// WithKey stores the authenticated key in ctx.
func WithKey(ctx context.Context, k *APIKey) context.Context {
	return context.WithValue(ctx, keyCtx{}, k)
}

// FromContext returns the authenticated key, if any.
func FromContext(ctx context.Context) (*APIKey, bool) {
	k, ok := ctx.Value(keyCtx{}).(*APIKey)
	return k, ok
}
