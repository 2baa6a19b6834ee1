package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Dial(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	s := NewRedisStore(client)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), "http://not-redis")
	assert.Error(t, err)
}

func TestRefreshSessionLifecycle(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.SaveRefreshSession(ctx, "hash-mario", "usr_mario", time.Now().Add(time.Hour)))
	require.NoError(t, s.SaveRefreshSession(ctx, "hash-lucia", "usr_lucia", time.Now().Add(time.Hour)))
	assert.True(t, mr.Exists("tablero:refresh:hash-mario"))

	user, err := s.LookupRefreshSession(ctx, "hash-mario")
	require.NoError(t, err)
	assert.Equal(t, "usr_mario", user.ID)
	assert.Empty(t, user.Email, "only the id is stored")

	require.NoError(t, s.RevokeRefreshSession(ctx, "hash-mario"))
	_, err = s.LookupRefreshSession(ctx, "hash-mario")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	user, err = s.LookupRefreshSession(ctx, "hash-lucia")
	require.NoError(t, err)
	assert.Equal(t, "usr_lucia", user.ID)

	// revoking twice is harmless
	assert.NoError(t, s.RevokeRefreshSession(ctx, "hash-mario"))
}

func TestRefreshSessionTTL(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn time.Duration
		wantTTL   time.Duration
	}{
		{name: "follows the token expiry", expiresIn: 2 * time.Hour, wantTTL: 2 * time.Hour},
		{name: "past expiry falls back to the default", expiresIn: -time.Minute, wantTTL: fallbackRefreshTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mr := newTestStore(t)
			require.NoError(t, s.SaveRefreshSession(context.Background(), "h", "usr_1", time.Now().Add(tt.expiresIn)))
			assert.InDelta(t, tt.wantTTL.Seconds(), mr.TTL("tablero:refresh:h").Seconds(), 5)
		})
	}
}

func TestRefreshSessionExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRefreshSession(ctx, "short", "usr_1", time.Now().Add(time.Second)))

	mr.FastForward(2 * time.Second)
	_, err := s.LookupRefreshSession(ctx, "short")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLookupCorruptRecord(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, mr.Set("tablero:refresh:bad", "{not json"))

	_, err := s.LookupRefreshSession(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestAccessTokenRevocation(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err := s.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.IsAccessTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = s.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked, "revocation lapses with the token")
}

func TestRevokeExpiredAccessTokenWritesNothing(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, s.RevokeAccessToken(context.Background(), "old", time.Now().Add(-time.Minute)))
	assert.Empty(t, mr.Keys())
}

func TestStoreSharesClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client)
	require.NoError(t, s.SaveRefreshSession(context.Background(), "h", "usr_1", time.Now().Add(time.Hour)))

	val, err := client.Get(context.Background(), "tablero:refresh:h").Result()
	require.NoError(t, err)
	assert.Contains(t, val, `"uid":"usr_1"`)
	require.NoError(t, s.Close())
}
