package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

// ConnectOptions defines Redis connection retry behavior.
type ConnectOptions struct {
	Addr           string        // Redis address (ex: "localhost:6379")
	User           string        // Optional username
	Password       string        // Optional password
	RedisDB        int           // Redis DB number
	DialTimeout    time.Duration // Redis dial timeout
	ReadTimeout    time.Duration // Redis read timeout
	WriteTimeout   time.Duration // Redis write timeout
	PoolSize       int           // Redis connection pool size
	ConnectTimeout time.Duration // Total time allowed for connection attempts (ex: 30s)
	RetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	MaxWait        time.Duration // max wait between retries (ex: 10s)
	PingTimeout    time.Duration // timeout for each ping attempt (ex: 2s)
	WarnThreshold  int           // warn after this many attempts
}

func (o ConnectOptions) validate() error {
	var errs []error
	if o.Addr == "" {
		errs = append(errs, errors.New("Addr is required"))
	}
	for name, d := range map[string]time.Duration{
		"ConnectTimeout": o.ConnectTimeout,
		"RetryInterval":  o.RetryInterval,
		"MaxWait":        o.MaxWait,
		"PingTimeout":    o.PingTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %v", name, d))
		}
	}
	if o.WarnThreshold < 0 {
		errs = append(errs, fmt.Errorf("WarnThreshold must be >= 0, got %d", o.WarnThreshold))
	}
	return multierr.Combine(errs...)
}

// connector pings a client until it answers, backing off exponentially.
type connector struct {
	client *redis.Client
	opts   ConnectOptions
	logger logger.Logger
}

// New creates a Redis client and waits until it answers a PING. It retries
// with capped exponential backoff until ConnectTimeout elapses or ctx is
// cancelled; the client is closed on failure.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	if err := opts.validate(); err != nil {
		log.Error("invalid redis options", logger.Error(err))
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	c := &connector{
		client: redis.NewClient(&redis.Options{
			Addr:         opts.Addr,
			Username:     opts.User,
			Password:     opts.Password,
			DB:           opts.RedisDB,
			DialTimeout:  opts.DialTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			PoolSize:     opts.PoolSize,
		}),
		opts:   opts,
		logger: log.With(logger.String("addr", opts.Addr)),
	}

	if err := c.connect(ctx); err != nil {
		_ = c.client.Close()
		return nil, err
	}
	return c.client, nil
}

func (c *connector) connect(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, c.opts.ConnectTimeout)
	defer cancel()

	c.logger.Info("connecting to redis", logger.Duration("timeout", c.opts.ConnectTimeout))
	start := time.Now()
	wait := c.opts.RetryInterval

	for attempt := 1; ; attempt++ {
		err := c.ping(ctx)
		if err == nil {
			c.connected(attempt, time.Since(start))
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			if parent.Err() != nil {
				return fmt.Errorf("redis connection to %s cancelled: %w", c.opts.Addr, parent.Err())
			}
			c.logger.Error("redis unavailable - failed to connect after timeout",
				logger.Int("attempts", attempt),
				logger.Duration("timeout", c.opts.ConnectTimeout),
				logger.Error(err))
			return fmt.Errorf("redis unavailable at %s after %d attempts (timeout: %v): %w",
				c.opts.Addr, attempt, c.opts.ConnectTimeout, err)
		case <-timer.C:
		}

		c.retrying(attempt, timeLeft(ctx), wait, err)
		wait = min(wait*2, c.opts.MaxWait)
	}
}

func (c *connector) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.PingTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *connector) connected(attempts int, elapsed time.Duration) {
	if attempts == 1 {
		c.logger.Info("connected to redis")
		return
	}
	c.logger.Warn("connected to redis after retry",
		logger.Int("attempts", attempts),
		logger.Duration("elapsed", elapsed))
}

// retrying escalates from Warn to Error once WarnThreshold attempts have
// failed or the deadline is near.
func (c *connector) retrying(attempt int, remaining, next time.Duration, err error) {
	fields := []logger.Field{
		logger.Int("attempt", attempt),
		logger.Duration("next_retry_in", next),
		logger.Error(err),
	}
	switch {
	case remaining < 10*time.Second:
		c.logger.Error("redis still down - retrying but timeout approaching",
			append(fields, logger.Duration("remaining", remaining))...)
	case attempt <= c.opts.WarnThreshold:
		c.logger.Warn("redis connection failed, retrying", fields...)
	default:
		c.logger.Error("redis still unavailable - connection attempts failing", fields...)
	}
}

// timeLeft returns the remaining time before context deadline.
func timeLeft(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
