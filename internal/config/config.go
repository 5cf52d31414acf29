// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/fitfi/service_layer/internal/remote"
	"github.com/fitfi/service_layer/internal/resilience"
	"github.com/fitfi/service_layer/internal/snapshot"
)

// Remote drivers.
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the full service configuration. It is built once at startup and
// passed explicitly to constructors.
type Config struct {
	Remote   RemoteConfig
	Retry    RetryConfig
	Snapshot SnapshotConfig
	Cache    CacheConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

// RemoteConfig selects and addresses the primary store.
type RemoteConfig struct {
	Enabled     bool   `env:"USE_SUPABASE,default=false"`
	Driver      string `env:"REMOTE_DRIVER,default=supabase"`
	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_ANON_KEY"`
	DatabaseURL string `env:"DATABASE_URL"`
	Migrate     bool   `env:"DB_MIGRATE,default=false"`
	Tables      TableConfig
}

// TableConfig names the remote tables backing each entity family.
type TableConfig struct {
	Products    string `env:"TABLE_PRODUCTS,default=products"`
	Outfits     string `env:"TABLE_OUTFITS,default=outfits"`
	Users       string `env:"TABLE_USERS,default=users"`
	Tribes      string `env:"TABLE_TRIBES,default=tribes"`
	TribeMember string `env:"TABLE_TRIBE_MEMBERS,default=tribe_members"`
	Challenges  string `env:"TABLE_CHALLENGES,default=tribe_challenges"`
	Submissions string `env:"TABLE_SUBMISSIONS,default=tribe_challenge_submissions"`
}

// RetryConfig configures the resilience wrapper around remote calls.
type RetryConfig struct {
	Attempts         int           `env:"RETRY_ATTEMPTS,default=3"`
	BaseDelay        time.Duration `env:"RETRY_BASE_DELAY,default=1s"`
	Timeout          time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	MaxDelay         time.Duration `env:"RETRY_MAX_DELAY,default=10s"`
	BreakerEnabled   bool          `env:"CIRCUIT_BREAKER_ENABLED,default=false"`
	FailureThreshold int           `env:"CIRCUIT_FAILURE_THRESHOLD,default=5"`
	OpenTimeout      time.Duration `env:"CIRCUIT_OPEN_TIMEOUT,default=30s"`
}

// SnapshotConfig locates the bundled snapshot files.
type SnapshotConfig struct {
	Dir         string `env:"SNAPSHOT_DIR,default=data/snapshot"`
	Products    string `env:"SNAPSHOT_PRODUCTS,default=products.json"`
	Outfits     string `env:"SNAPSHOT_OUTFITS,default=outfits.json"`
	Users       string `env:"SNAPSHOT_USERS,default=users.json"`
	Tribes      string `env:"SNAPSHOT_TRIBES,default=tribes.json"`
	TribeMember string `env:"SNAPSHOT_TRIBE_MEMBERS,default=tribe_members.json"`
	Challenges  string `env:"SNAPSHOT_CHALLENGES,default=tribe_challenges.json"`
	Submissions string `env:"SNAPSHOT_SUBMISSIONS,default=submissions.json"`
	Root        string `env:"SNAPSHOT_ROOT"`
}

// CacheConfig configures the cache store and its maintenance jobs.
type CacheConfig struct {
	TTL          time.Duration `env:"CACHE_TTL,default=5m"`
	Backend      string        `env:"CACHE_BACKEND,default=memory"`
	RedisURL     string        `env:"REDIS_URL"`
	Dedupe       bool          `env:"CACHE_DEDUPE,default=true"`
	WarmSchedule string        `env:"CACHE_WARM_SCHEDULE"`
	Realtime     bool          `env:"REALTIME_INVALIDATION,default=false"`
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Port           int      `env:"PORT,default=8080"`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST,default=40"`
	CORSOrigins    []string `env:"CORS_ALLOWED_ORIGINS"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string `env:"LOG_LEVEL,default=info"`
	Format  string `env:"LOG_FORMAT,default=json"`
	Service string `env:"SERVICE_NAME,default=fitfi-data"`
}

// Load reads an optional .env file, decodes the environment and validates the
// result. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations. Missing Supabase credentials are
// not an error: the remote adapter is simply not constructed.
func (c *Config) Validate() error {
	var problems []string

	if c.Retry.Attempts < 1 {
		problems = append(problems, "RETRY_ATTEMPTS must be >= 1")
	}
	if c.Retry.Timeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT must be > 0")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		problems = append(problems, "retry delays must be >= 0")
	}
	if c.Retry.BreakerEnabled && c.Retry.FailureThreshold < 1 {
		problems = append(problems, "CIRCUIT_FAILURE_THRESHOLD must be >= 1")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "CACHE_TTL must be > 0")
	}

	switch c.Remote.Driver {
	case DriverSupabase, DriverPostgres:
	default:
		problems = append(problems, fmt.Sprintf("unknown REMOTE_DRIVER %q", c.Remote.Driver))
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			problems = append(problems, "REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid PORT %d", c.HTTP.Port))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RemoteConfigured reports whether the remote store is enabled and has the
// settings its driver needs.
func (c *Config) RemoteConfigured() bool {
	if !c.Remote.Enabled {
		return false
	}
	if c.Remote.Driver == DriverPostgres {
		return c.Remote.DatabaseURL != ""
	}
	return c.Remote.SupabaseURL != "" && c.Remote.SupabaseKey != ""
}

// ResiliencePolicy converts the retry settings into a resilience policy.
func (c *Config) ResiliencePolicy() resilience.Policy {
	return resilience.Policy{
		Attempts:  c.Retry.Attempts,
		BaseDelay: c.Retry.BaseDelay,
		MaxDelay:  c.Retry.MaxDelay,
		Timeout:   c.Retry.Timeout,
	}
}

// BreakerConfig converts the circuit breaker settings. It returns nil when the
// breaker is disabled.
func (c *Config) BreakerConfig() *resilience.BreakerConfig {
	if !c.Retry.BreakerEnabled {
		return nil
	}
	return &resilience.BreakerConfig{
		FailureThreshold: c.Retry.FailureThreshold,
		OpenTimeout:      c.Retry.OpenTimeout,
	}
}

// RemoteTables returns the configured table names.
func (c *Config) RemoteTables() remote.Tables {
	t := c.Remote.Tables
	return remote.Tables{
		Products:     t.Products,
		Outfits:      t.Outfits,
		Users:        t.Users,
		Tribes:       t.Tribes,
		TribeMembers: t.TribeMember,
		Challenges:   t.Challenges,
		Submissions:  t.Submissions,
	}
}

// SnapshotPaths resolves the per-family snapshot files against the snapshot
// directory.
func (c *Config) SnapshotPaths() snapshot.Paths {
	s := c.Snapshot
	return snapshot.Paths{
		Products:     resolve(s.Dir, s.Products),
		Outfits:      resolve(s.Dir, s.Outfits),
		Users:        resolve(s.Dir, s.Users),
		Tribes:       resolve(s.Dir, s.Tribes),
		TribeMembers: resolve(s.Dir, s.TribeMember),
		Challenges:   resolve(s.Dir, s.Challenges),
		Submissions:  resolve(s.Dir, s.Submissions),
	}
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
