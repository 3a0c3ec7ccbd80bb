package redis

import "github.com/MrSnakeDoc/marksync/internal/domain"

const (
	// KeyPrefix namespaces every key written by marksync.
	KeyPrefix = "marksync:"
	// KeyRuns is the list of recent runs, newest first.
	KeyRuns = KeyPrefix + "runs"
	// KeyPrefixLastRun is the prefix for the latest run of each operation.
	KeyPrefixLastRun = KeyPrefix + "run:last:"
	// KeyStats is the hash of run counters.
	KeyStats = KeyPrefix + "stats"
	// KeyToken holds the cached access token.
	KeyToken = KeyPrefix + "token"
	// KeyPrefixLock is the prefix for distributed locks.
	KeyPrefixLock = KeyPrefix + "lock:"
)

// LastRunKey returns the key holding the latest run of op.
func LastRunKey(op domain.Operation) string {
	return KeyPrefixLastRun + string(op)
}

// LockKey returns the key of the named lock.
func LockKey(name string) string {
	return KeyPrefixLock + name
}

// StatsField returns the counter field for an operation outcome.
func StatsField(op domain.Operation, success bool) string {
	if success {
		return string(op) + ":success"
	}
	return string(op) + ":failure"
}
