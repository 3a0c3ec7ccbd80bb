// Package history keeps sync run records in memory. It is used when Redis
// is not configured.
package history

import (
	"context"
	"sync"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// DefaultMaxRuns is how many runs are retained.
const DefaultMaxRuns = 50

// Memory is an in-process run history.
type Memory struct {
	mu      sync.RWMutex
	runs    []*domain.SyncRun // newest first
	last    map[domain.Operation]*domain.SyncRun
	stats   map[string]int64
	maxRuns int
}

// NewMemory creates an empty history. maxRuns <= 0 uses DefaultMaxRuns.
func NewMemory(maxRuns int) *Memory {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &Memory{
		last:    make(map[domain.Operation]*domain.SyncRun),
		stats:   make(map[string]int64),
		maxRuns: maxRuns,
	}
}

// SaveRun records a finished run.
func (m *Memory) SaveRun(_ context.Context, run *domain.SyncRun) error {
	cp := *run

	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append([]*domain.SyncRun{&cp}, m.runs...)
	if len(m.runs) > m.maxRuns {
		m.runs = m.runs[:m.maxRuns]
	}
	m.last[cp.Op] = &cp
	m.stats[statsField(cp.Op, cp.Success)]++
	return nil
}

// LastRun returns the latest run of op, or nil.
func (m *Memory) LastRun(_ context.Context, op domain.Operation) (*domain.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.last[op]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

// RecentRuns returns up to limit runs, newest first.
func (m *Memory) RecentRuns(_ context.Context, limit int) ([]*domain.SyncRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(limit, len(m.runs))
	if n < 0 {
		n = 0
	}
	out := make([]*domain.SyncRun, 0, n)
	for _, r := range m.runs[:n] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// Stats returns the run counters, keyed "<op>:success" / "<op>:failure".
func (m *Memory) Stats(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out, nil
}

func statsField(op domain.Operation, success bool) string {
	if success {
		return string(op) + ":success"
	}
	return string(op) + ":failure"
}
