package redis

import (
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultMaxRuns is how many runs are kept in the history list.
	DefaultMaxRuns = 50
)

// Store persists run history and the token cache in Redis.
type Store struct {
	client  *redis.Client
	maxRuns int64
}

// NewStore creates a new Redis store. maxRuns <= 0 uses DefaultMaxRuns.
func NewStore(client *redis.Client, maxRuns int) *Store {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &Store{
		client:  client,
		maxRuns: int64(maxRuns),
	}
}
