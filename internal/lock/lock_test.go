package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

func TestMutexExclusive(t *testing.T) {
	m := NewMutex()
	release, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx); !errors.Is(err, ErrNotAcquired) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Acquire() error = %v, want ErrNotAcquired", err)
	}

	release()
	release2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}

func TestMutexWaitsForRelease(t *testing.T) {
	m := NewMutex()
	release, _ := m.Acquire(context.Background())

	acquired := make(chan struct{})
	go func() {
		r, err := m.Acquire(context.Background())
		if err == nil {
			r()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

type recordingLocker struct {
	name string
	fail error
	log  *[]string
}

func (r recordingLocker) Acquire(context.Context) (func(), error) {
	if r.fail != nil {
		return nil, r.fail
	}
	*r.log = append(*r.log, "acquire "+r.name)
	return func() { *r.log = append(*r.log, "release "+r.name) }, nil
}

func TestChainOrder(t *testing.T) {
	var log []string
	chain := Chain{recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log}}

	release, err := chain.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()

	want := []string{"acquire a", "acquire b", "release b", "release a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestChainReleasesOnFailure(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	chain := Chain{recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", fail: boom, log: &log}}

	if _, err := chain.Acquire(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Acquire() error = %v, want %v", err, boom)
	}
	if len(log) != 2 || log[1] != "release a" {
		t.Errorf("log = %v, want a released", log)
	}
}

func TestRedisLock(t *testing.T) {
	addr := os.Getenv("MARKSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MARKSYNC_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })

	opts := RedisOptions{Name: "test-" + t.Name(), TTL: 300 * time.Millisecond, RetryEvery: 10 * time.Millisecond}
	a := NewRedis(client, opts, logger.New("error", false))
	b := NewRedis(client, opts, logger.New("error", false))

	release, err := a.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Held past its TTL thanks to the keep-alive.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if _, err := b.Acquire(ctx); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("contended Acquire() error = %v, want ErrNotAcquired", err)
	}

	release()
	releaseB, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	releaseB()
}
