package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SaveRun records a finished run: it is pushed on the history list, stored
// as the latest run of its operation and counted in the stats hash.
func (s *Store) SaveRun(ctx context.Context, run *domain.SyncRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, KeyRuns, data)
	pipe.LTrim(ctx, KeyRuns, 0, s.maxRuns-1)
	pipe.Set(ctx, LastRunKey(run.Op), data, 0)
	pipe.HIncrBy(ctx, KeyStats, StatsField(run.Op, run.Success), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LastRun returns the latest run of op, or nil when none was recorded.
func (s *Store) LastRun(ctx context.Context, op domain.Operation) (*domain.SyncRun, error) {
	data, err := s.client.Get(ctx, LastRunKey(op)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}

	var run domain.SyncRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]*domain.SyncRun, error) {
	if limit <= 0 {
		return []*domain.SyncRun{}, nil
	}
	items, err := s.client.LRange(ctx, KeyRuns, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}

	runs := make([]*domain.SyncRun, 0, len(items))
	for _, item := range items {
		var run domain.SyncRun
		if err := json.Unmarshal([]byte(item), &run); err != nil {
			// Skip entries that couldn't be decoded
			continue
		}
		runs = append(runs, &run)
	}
	return runs, nil
}
