package auth

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// TokenCache persists a token outside the process (shared between instances).
type TokenCache interface {
	LoadToken(ctx context.Context) (domain.Token, bool, error)
	SaveToken(ctx context.Context, tok domain.Token) error
	DeleteToken(ctx context.Context) error
}

// CachedSource memoizes tokens from an upstream Source until they expire
// or are invalidated. An optional TokenCache is consulted on a memory miss;
// cache failures are logged and never fail Token.
type CachedSource struct {
	src    Source
	cache  TokenCache
	logger logger.Logger
	now    func() time.Time

	mu  sync.Mutex
	tok domain.Token
}

// NewCachedSource wraps src. cache may be nil.
func NewCachedSource(src Source, cache TokenCache, log logger.Logger) *CachedSource {
	return &CachedSource{
		src:    src,
		cache:  cache,
		logger: log,
		now:    time.Now,
	}
}

func (c *CachedSource) Token(ctx context.Context, interactive bool) (domain.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.tok.Valid(now) {
		return c.tok, nil
	}

	if c.cache != nil {
		tok, ok, err := c.cache.LoadToken(ctx)
		switch {
		case err != nil:
			c.logger.Warn("failed to load cached token", logger.Error(err))
		case ok && tok.Valid(now):
			c.tok = tok
			return tok, nil
		}
	}

	tok, err := c.src.Token(ctx, interactive)
	if err != nil {
		return domain.Token{}, err
	}
	c.tok = tok

	if c.cache != nil {
		if err := c.cache.SaveToken(ctx, tok); err != nil {
			c.logger.Warn("failed to cache token", logger.Error(err))
		}
	}
	return tok, nil
}

// Invalidate forgets the current token so the next Token call asks upstream.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.tok = domain.Token{}
	c.mu.Unlock()

	if c.cache != nil {
		return c.cache.DeleteToken(ctx)
	}
	return nil
}
