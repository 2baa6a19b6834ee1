// Package session keeps refresh sessions and access-token revocations in Redis
// for deployments running more than one API instance.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tablero/api/internal/store"
)

var ErrSessionNotFound = errors.New("refresh session not found or expired")

const (
	keyNamespace       = "tablero:"
	refreshKeyPrefix   = keyNamespace + "refresh:"
	revokedKeyPrefix   = keyNamespace + "revoked:"
	fallbackRefreshTTL = 30 * 24 * time.Hour
)

type refreshRecord struct {
	UserID   string    `json:"uid"`
	IssuedAt time.Time `json:"iat"`
}

type RedisStore struct {
	client redis.UniversalClient
}

// Dial parses a redis:// URL and checks the connection.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore shares client with the board locker; Close closes it for both.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	payload, err := json.Marshal(refreshRecord{UserID: userID, IssuedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode refresh session: %w", err)
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = fallbackRefreshTTL
	}
	if err := s.client.Set(ctx, refreshKeyPrefix+tokenHash, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

// LookupRefreshSession returns a user carrying only its id; the caller reloads
// the record so role and active flag are current.
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	raw, err := s.client.Get(ctx, refreshKeyPrefix+tokenHash).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return store.User{}, ErrSessionNotFound
	case err != nil:
		return store.User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	var rec refreshRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return store.User{}, fmt.Errorf("decode refresh session: %w", err)
	}
	return store.User{ID: rec.UserID}, nil
}

func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, refreshKeyPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeAccessToken remembers a jti until the token would have expired anyway.
func (s *RedisStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked access token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
