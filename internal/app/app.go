package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/marksync/internal/auth"
	"github.com/MrSnakeDoc/marksync/internal/config"
	"github.com/MrSnakeDoc/marksync/internal/drive"
	"github.com/MrSnakeDoc/marksync/internal/history"
	"github.com/MrSnakeDoc/marksync/internal/httpserver"
	"github.com/MrSnakeDoc/marksync/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marksync/internal/local"
	"github.com/MrSnakeDoc/marksync/internal/lock"
	"github.com/MrSnakeDoc/marksync/internal/logger"
	"github.com/MrSnakeDoc/marksync/internal/orchestrator"
	"github.com/MrSnakeDoc/marksync/internal/redis"
	"github.com/MrSnakeDoc/marksync/internal/scheduler"
	"github.com/MrSnakeDoc/marksync/internal/snapshot"
	redisstore "github.com/MrSnakeDoc/marksync/internal/store/redis"
	"github.com/MrSnakeDoc/marksync/internal/utils"
	"github.com/MrSnakeDoc/marksync/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	redisClient *goredis.Client
	history     deps.RunHistory
	service     *orchestrator.Service
}

// New wires the sync engine. Redis is optional: without it the gate is an
// in-process mutex and runs are kept in memory.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: loggerClient}

	if cfg.RedisAddr != "" {
		loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			RedisDB:        cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
			WarnThreshold:  cfg.RedisWarnThreshold,
		}, loggerClient)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
	} else {
		loggerClient.Info("redis not configured, using in-process lock and in-memory history")
	}

	localStore, err := local.Open(cfg.Store, cfg.BookmarkFile, loggerClient)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open bookmark store: %w", err)
	}

	driveClient := drive.NewClient(drive.Options{
		BaseURL:    cfg.DriveAPIURL,
		HTTPClient: &http.Client{Timeout: cfg.DriveTimeout},
		MaxRetries: cfg.DriveRetries,
	}, loggerClient)

	snapshots := snapshot.NewStore(driveClient, snapshot.Options{
		Name:   cfg.SnapshotName,
		Folder: cfg.FolderName,
	}, loggerClient)

	var (
		upstream auth.Source
		gate     lock.Locker
		runs     orchestrator.History
		tokens   *auth.CachedSource
	)
	if cfg.UseRefreshToken() {
		upstream = auth.NewRefreshSource(auth.RefreshConfig{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RefreshToken: cfg.RefreshToken,
			TokenURL:     cfg.TokenURL,
		})
	} else {
		upstream = auth.NewStaticSource(cfg.AccessToken)
	}

	if a.redisClient != nil {
		store := redisstore.NewStore(a.redisClient, cfg.MaxRuns)
		tokens = auth.NewCachedSource(upstream, store, loggerClient)
		gate = lock.Chain{
			lock.NewMutex(),
			lock.NewRedis(a.redisClient, lock.RedisOptions{Name: "sync", TTL: cfg.LockTTL}, loggerClient),
		}
		runs = store
		a.history = store
	} else {
		mem := history.NewMemory(cfg.MaxRuns)
		tokens = auth.NewCachedSource(upstream, nil, loggerClient)
		gate = lock.NewMutex()
		runs = mem
		a.history = mem
	}

	a.service = orchestrator.NewService(orchestrator.Deps{
		Local:    localStore,
		Snapshot: snapshots,
		Tokens:   tokens,
		Gate:     gate,
		History:  runs,
		Logger:   loggerClient,
	})

	loggerClient.Info("sync engine initialized",
		logger.String("store", cfg.Store),
		logger.String("bookmark_file", cfg.BookmarkFile),
		logger.String("snapshot", cfg.FolderName+"/"+cfg.SnapshotName),
		logger.Bool("refresh_token", cfg.UseRefreshToken()),
		logger.Bool("redis", a.redisClient != nil))

	return a, nil
}

// Service exposes the gated Backup/Restore pipelines (used by the CLI).
func (a *App) Service() *orchestrator.Service { return a.service }

// Run serves the HTTP command surface and the background triggers until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting marksync %s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("marksync %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	// Create manual backup trigger channel
	backupTrigger := make(chan struct{}, 1)
	backups := scheduler.NewBackupScheduler(a.service, a.logger, a.cfg.BackupInterval, backupTrigger)

	var watcher *scheduler.BookmarkWatcher
	if a.cfg.WatchBookmarks {
		w, err := scheduler.NewBookmarkWatcher(a.service, a.logger, a.cfg.BookmarkFile, a.cfg.WatchDebounce)
		if err != nil {
			return fmt.Errorf("failed to create bookmark watcher: %w", err)
		}
		// Restores rewrite the bookmark file; the watcher must not echo them back.
		a.service.Observe(w)
		watcher = w
	}

	server := httpserver.New(a.cfg.ListenPort, a.logger, deps.Deps{
		Logger:        a.logger,
		StartTime:     time.Now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		AllowedCIDRS:  a.cfg.AllowedCIDRS,
		TrustProxy:    a.cfg.TrustProxy,
		APIKey:        a.cfg.APIKey,
		CORSOrigins:   a.cfg.CORSOrigins,
		SyncTimeout:   a.cfg.SyncTimeout,
		Sync:          a.service,
		History:       a.history,
		StoreKind:     a.cfg.Store,
		BookmarkFile:  a.cfg.BookmarkFile,
		RedisClient:   a.redisClient,
		BackupTrigger: backupTrigger,
	})

	backups.Start(ctx)
	a.logger.Info("backup scheduler started",
		logger.Duration("interval", a.cfg.BackupInterval))

	if watcher != nil {
		if err := watcher.Start(ctx); err != nil {
			backups.Stop()
			return fmt.Errorf("failed to start bookmark watcher: %w", err)
		}
		a.logger.Info("bookmark watcher started",
			logger.String("file", a.cfg.BookmarkFile),
			logger.Duration("debounce", a.cfg.WatchDebounce))
	}

	if a.cfg.BackupOnStart {
		backupTrigger <- struct{}{}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	backups.Stop()
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			a.logger.Warn("failed to stop bookmark watcher", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("failed to stop server: %w", err))
	}

	if runErr == nil {
		a.logger.Info("✅ marksync stopped cleanly")
	}
	return runErr
}

// Close releases the Redis connection.
func (a *App) Close() {
	if a.redisClient != nil {
		utils.MustClose(a.logger, "redis", a.redisClient)
		a.redisClient = nil
	}
}
