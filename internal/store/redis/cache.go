package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/redis/go-redis/v9"
)

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
}

// SaveToken caches an access token until it expires.
func (s *Store) SaveToken(ctx context.Context, tok domain.Token) error {
	var ttl time.Duration
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
		if ttl <= 0 {
			return nil
		}
	}

	data, err := json.Marshal(cachedToken{AccessToken: tok.AccessToken, Expiry: tok.Expiry})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.client.Set(ctx, KeyToken, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}

// LoadToken returns the cached token. The boolean is false on a cache miss.
func (s *Store) LoadToken(ctx context.Context) (domain.Token, bool, error) {
	data, err := s.client.Get(ctx, KeyToken).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Token{}, false, nil // Cache miss
		}
		return domain.Token{}, false, fmt.Errorf("failed to get cached token: %w", err)
	}

	var tok cachedToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return domain.Token{}, false, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return domain.Token{AccessToken: tok.AccessToken, Expiry: tok.Expiry}, true, nil
}

// DeleteToken drops the cached token.
func (s *Store) DeleteToken(ctx context.Context) error {
	if err := s.client.Del(ctx, KeyToken).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}
