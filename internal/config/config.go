package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

const redacted = "***REDACTED***"

type Config struct {
	ListenPort      string        // ex: ":8484"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel      string // "debug" | "info" | "warn" | "error"
	PrettyLog     bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile       string // optional rotating JSON log file
	LogMaxSizeMB  int
	LogMaxBackups int

	// Local bookmarks
	Store        string // "chromium" | "yaml"
	BookmarkFile string // path to the Chromium "Bookmarks" file or the YAML tree

	// Remote snapshot
	SnapshotName  string        // object name of the snapshot
	FolderName    string        // remote folder holding the snapshot
	DriveAPIURL   string        // ex: https://www.googleapis.com
	DriveTimeout  time.Duration // per-request HTTP timeout
	DriveRetries  int           // retries on 429/5xx/network errors
	SyncTimeout   time.Duration // upper bound of one HTTP backup run
	AccessToken   string        // static bearer token (dev/testing)
	ClientID      string        // OAuth refresh-token grant
	ClientSecret  string
	RefreshToken  string
	TokenURL      string
	BackupOnStart bool

	// Triggers
	BackupInterval time.Duration // 0 = no periodic backup
	WatchBookmarks bool          // back up when the bookmark file changes
	WatchDebounce  time.Duration

	// Redis (optional, empty address = in-process lock and history)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts
	LockTTL             time.Duration // distributed lock lease
	MaxRuns             int           // run history length

	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	APIKey       string   // optional shared secret for /api routes
	CORSOrigins  []string // browser origins allowed to call /api
}

// Load reads the optional env file, then the environment, and validates
// the result.
func Load() (*Config, error) {
	envFile := getenv("MARKSYNC_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("MARKSYNC_LISTEN_PORT", ":8484"),
		ShutdownTimeout: mustDuration("MARKSYNC_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:      getenv("MARKSYNC_LOG_LEVEL", "info"),
		PrettyLog:     mustBool("MARKSYNC_PRETTY_LOG", true),
		LogFile:       getenv("MARKSYNC_LOG_FILE", ""),
		LogMaxSizeMB:  getenvInt("MARKSYNC_LOG_MAX_SIZE_MB", 10),
		LogMaxBackups: getenvInt("MARKSYNC_LOG_MAX_BACKUPS", 3),

		// Local bookmarks
		Store:        getenv("MARKSYNC_STORE", "chromium"),
		BookmarkFile: getenv("MARKSYNC_BOOKMARK_FILE", ""),

		// Remote snapshot
		SnapshotName:  getenv("MARKSYNC_SNAPSHOT_NAME", "bookmarks-peasy-sync.json"),
		FolderName:    getenv("MARKSYNC_FOLDER_NAME", "Backup"),
		DriveAPIURL:   getenv("MARKSYNC_DRIVE_API_URL", "https://www.googleapis.com"),
		DriveTimeout:  mustDuration("MARKSYNC_DRIVE_TIMEOUT", 30*time.Second),
		DriveRetries:  getenvInt("MARKSYNC_DRIVE_RETRIES", 3),
		SyncTimeout:   mustDuration("MARKSYNC_SYNC_TIMEOUT", 2*time.Minute),
		AccessToken:   getenv("MARKSYNC_ACCESS_TOKEN", ""),
		ClientID:      getenv("MARKSYNC_CLIENT_ID", ""),
		ClientSecret:  getenv("MARKSYNC_CLIENT_SECRET", ""),
		RefreshToken:  getenv("MARKSYNC_REFRESH_TOKEN", ""),
		TokenURL:      getenv("MARKSYNC_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		BackupOnStart: mustBool("MARKSYNC_BACKUP_ON_START", false),

		// Triggers
		BackupInterval: mustDuration("MARKSYNC_BACKUP_INTERVAL", 0),
		WatchBookmarks: mustBool("MARKSYNC_WATCH_BOOKMARKS", false),
		WatchDebounce:  mustDuration("MARKSYNC_WATCH_DEBOUNCE", 30*time.Second),

		// Redis settings
		RedisAddr:           getenv("MARKSYNC_REDIS_ADDR", ""),
		RedisUser:           getenv("MARKSYNC_REDIS_USERNAME", ""),
		RedisPassword:       getenv("MARKSYNC_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("MARKSYNC_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),
		LockTTL:             mustDuration("MARKSYNC_LOCK_TTL", 2*time.Minute),
		MaxRuns:             getenvInt("MARKSYNC_MAX_RUNS", 50),

		// Access restrictions
		AllowedCIDRS: splitAndTrim(getenv("MARKSYNC_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("MARKSYNC_TRUST_PROXY", false),
		APIKey:       getenv("MARKSYNC_API_KEY", ""),
		CORSOrigins:  splitAndTrim(getenv("MARKSYNC_CORS_ORIGINS", "")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg, nil
}

// UseRefreshToken reports whether tokens come from the OAuth refresh grant
// rather than a static access token.
func (c *Config) UseRefreshToken() bool {
	return c.RefreshToken != ""
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	refresh := c.UseRefreshToken()
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.Store, validation.Required, validation.In("chromium", "yaml")),
		validation.Field(&c.BookmarkFile, validation.Required),
		validation.Field(&c.SnapshotName, validation.Required),
		validation.Field(&c.FolderName, validation.Required),
		validation.Field(&c.DriveAPIURL, validation.Required),
		validation.Field(&c.DriveTimeout, validation.Min(time.Second)),
		validation.Field(&c.DriveRetries, validation.Min(0)),
		validation.Field(&c.AccessToken,
			validation.When(!refresh, validation.Required.Error("is required unless MARKSYNC_REFRESH_TOKEN is set"))),
		validation.Field(&c.ClientID, validation.When(refresh, validation.Required)),
		validation.Field(&c.ClientSecret, validation.When(refresh, validation.Required)),
		validation.Field(&c.TokenURL, validation.When(refresh, validation.Required)),
		validation.Field(&c.BackupInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.WatchDebounce, validation.When(c.WatchBookmarks, validation.Min(time.Second))),
		validation.Field(&c.LockTTL, validation.Min(time.Second)),
		validation.Field(&c.MaxRuns, validation.Min(1)),
	)
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	cp := *c
	for _, s := range []*string{&cp.AccessToken, &cp.ClientSecret, &cp.RefreshToken, &cp.RedisPassword, &cp.APIKey} {
		if *s != "" {
			*s = redacted
		}
	}
	if cp.RedisUser != "" {
		cp.RedisUser = redacted
	}
	return cp
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
