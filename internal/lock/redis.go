package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/logger"
	store "github.com/MrSnakeDoc/marksync/internal/store/redis"
)

const (
	DefaultTTL        = 2 * time.Minute
	DefaultRetryEvery = 250 * time.Millisecond
)

// Only the holder of the token may extend or delete the key.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a distributed lock on a single key (SET NX PX). While held, the
// key's TTL is refreshed in the background so long restores keep it.
type Redis struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	retryEvery time.Duration
	log        logger.Logger
}

// RedisOptions configures a Redis lock.
type RedisOptions struct {
	Name       string
	TTL        time.Duration
	RetryEvery time.Duration
}

func NewRedis(client *redis.Client, opts RedisOptions, log logger.Logger) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RetryEvery <= 0 {
		opts.RetryEvery = DefaultRetryEvery
	}
	return &Redis{
		client:     client,
		key:        store.LockKey(opts.Name),
		ttl:        opts.TTL,
		retryEvery: opts.RetryEvery,
		log:        log,
	}
}

func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()

	for attempt := 1; ; attempt++ {
		ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", r.key, err)
		}
		if ok {
			break
		}
		if attempt == 1 {
			r.log.Info("waiting for sync lock", logger.String("key", r.key))
		}

		timer := time.NewTimer(r.retryEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, r.key, ctx.Err())
		case <-timer.C:
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.keepAlive(token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
				r.log.Warn("failed to release sync lock", logger.String("key", r.key), logger.Error(err))
			}
		})
	}, nil
}

func (r *Redis) keepAlive(token string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			n, err := extendScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				r.log.Warn("failed to extend sync lock", logger.String("key", r.key), logger.Error(err))
			case n == 0:
				r.log.Error("sync lock lost", logger.String("key", r.key))
				return
			}
		}
	}
}
