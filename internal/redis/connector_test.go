package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marksync/internal/logger"
)

func validOptions() ConnectOptions {
	return ConnectOptions{
		Addr:           "127.0.0.1:1",
		DialTimeout:    100 * time.Millisecond,
		ConnectTimeout: 300 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
		MaxWait:        50 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *ConnectOptions)
	}{
		{name: "no address", mutate: func(o *ConnectOptions) { o.Addr = "" }},
		{name: "no connect timeout", mutate: func(o *ConnectOptions) { o.ConnectTimeout = 0 }},
		{name: "no retry interval", mutate: func(o *ConnectOptions) { o.RetryInterval = 0 }},
		{name: "no max wait", mutate: func(o *ConnectOptions) { o.MaxWait = 0 }},
		{name: "no ping timeout", mutate: func(o *ConnectOptions) { o.PingTimeout = 0 }},
		{name: "negative warn threshold", mutate: func(o *ConnectOptions) { o.WarnThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			if _, err := New(context.Background(), opts, logger.New("error", false)); err == nil {
				t.Fatal("New() should reject the options")
			}
		})
	}
}

func TestNewTimesOut(t *testing.T) {
	start := time.Now()
	client, err := New(context.Background(), validOptions(), logger.New("error", false))
	if err == nil {
		t.Fatal("New() should fail when nothing listens")
	}
	if client != nil {
		t.Error("client should be nil on failure")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("New() took %v, want about the connect timeout", elapsed)
	}
}

func TestNewStopsOnCancel(t *testing.T) {
	opts := validOptions()
	opts.ConnectTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := New(ctx, opts, logger.New("error", false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("New() error = %v, want the parent context error", err)
	}
}
