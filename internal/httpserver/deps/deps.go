package deps

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
)

// SyncService runs the gated pipelines.
type SyncService interface {
	Backup(ctx context.Context, trigger orchestrator.Trigger) orchestrator.Result
	Restore(ctx context.Context, trigger orchestrator.Trigger) orchestrator.Result
}

// RunHistory is the read side of the run history.
type RunHistory interface {
	LastRun(ctx context.Context, op domain.Operation) (*domain.SyncRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*domain.SyncRun, error)
	Stats(ctx context.Context) (map[string]int64, error)
}

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	AllowedCIDRS  []string      // IPs allowed to reach the API
	TrustProxy    bool          // true if running behind a trusted reverse proxy (e.g., cloudflared)
	APIKey        string        // required in X-API-Key for /api routes when set
	CORSOrigins   []string      // browser origins allowed to call the API
	SyncTimeout   time.Duration // per-request timeout of /api/backup
	Sync          SyncService   // Backup/Restore pipelines
	History       RunHistory    // run history (Redis or memory)
	StoreKind     string        // local bookmark store driver
	BookmarkFile  string        // local bookmark file, checked by readyz
	RedisClient   *redis.Client // Redis client connection (nil when disabled)
	BackupTrigger chan struct{} // Channel to trigger an asynchronous backup
}
