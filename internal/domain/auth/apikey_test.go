package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeys struct {
	byHash map[string]*APIKey
	err    error
}

func (m *mockKeys) FindByHash(_ context.Context, hash string) (*APIKey, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k, nil
}

func TestAuthenticate(t *testing.T) {
	pepper := []byte("pepper")
	hash := Hash(pepper, "secret-key")
	keys := &mockKeys{byHash: map[string]*APIKey{
		hash: {ID: "k1", Name: "checkout", KeyHash: hash, Scopes: []string{ScopePricing}},
	}}
	a := NewAuthenticator(keys, pepper)
	ctx := context.Background()

	k, err := a.Authenticate(ctx, "secret-key")
	require.NoError(t, err)
	assert.Equal(t, "k1", k.ID)
	assert.True(t, k.Allows(ScopePricing))
	assert.False(t, k.Allows(ScopePayments))

	_, err = a.Authenticate(ctx, "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Authenticate(ctx, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = NewAuthenticator(keys, []byte("other")).Authenticate(ctx, "secret-key")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_StorageError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewAuthenticator(&mockKeys{err: boom}, nil).Authenticate(context.Background(), "x")
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestAllows_Admin(t *testing.T) {
	k := &APIKey{Scopes: []string{ScopeAdmin}}
	assert.True(t, k.Allows(ScopePayments))
	assert.True(t, k.Allows(ScopePricing))
}
