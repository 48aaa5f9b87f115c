package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDenylist(t *testing.T) (*Denylist, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDenylist(client), mr
}

func TestDenylistRevokeAndCheck(t *testing.T) {
	dl, _ := newTestDenylist(t)
	ctx := context.Background()

	revoked, err := dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, dl.Revoke(ctx, "jti-1", time.Now().Add(10*time.Minute)))

	revoked, err = dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = dl.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestDenylistEntryExpiresWithToken(t *testing.T) {
	dl, mr := newTestDenylist(t)
	ctx := context.Background()

	require.NoError(t, dl.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	revoked, err := dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestDenylistSkipsAlreadyExpired(t *testing.T) {
	dl, mr := newTestDenylist(t)

	require.NoError(t, dl.Revoke(context.Background(), "jti-1", time.Now().Add(-time.Minute)))
	assert.Empty(t, mr.Keys())
}

func TestNilDenylistIsInert(t *testing.T) {
	var dl *Denylist
	ctx := context.Background()

	assert.NoError(t, dl.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)))

	revoked, err := dl.IsRevoked(ctx, "jti-1")
	assert.NoError(t, err)
	assert.False(t, revoked)

	assert.Nil(t, NewDenylist(nil))
}
