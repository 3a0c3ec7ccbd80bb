package redis

import (
	"context"
	"fmt"
	"strconv"
)

// Stats returns the run counters, keyed "<op>:success" / "<op>:failure".
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, KeyStats).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		stats[field] = n
	}
	return stats, nil
}
