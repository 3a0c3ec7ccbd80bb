package domain

import "time"

// RemoteObjectRef identifies the canonical snapshot object in the remote store.
type RemoteObjectRef struct {
	ID   string
	Name string
}

// Token is a bearer credential attached to every remote call.
type Token struct {
	AccessToken string
	// Expiry is zero when the provider did not report a lifetime.
	Expiry time.Time
}

// Valid reports whether the token carries a credential that has not expired yet.
// A small skew is applied so a token is not used right before it dies.
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(tokenExpirySkew).Before(t.Expiry)
}

const tokenExpirySkew = 30 * time.Second

// Operation names a sync pipeline.
type Operation string

const (
	OpBackup  Operation = "backup"
	OpRestore Operation = "restore"
)

// SyncRun records one Backup or Restore invocation.
type SyncRun struct {
	// ID is a random identifier (uuid) assigned when the run starts.
	ID string `json:"id"`

	// Op is the pipeline that ran.
	Op Operation `json:"op"`

	// Trigger tells who started the run (api, cli, schedule, watch).
	Trigger string `json:"trigger"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// RemoteID is the snapshot object id, when known.
	RemoteID string `json:"remote_id,omitempty"`

	// Bookmarks and Folders count the nodes pushed or restored.
	Bookmarks int `json:"bookmarks"`
	Folders   int `json:"folders"`
}

// Duration returns how long the run took.
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
