// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreBackend selects which store.Store implementation the server runs on.
type StoreBackend string

const (
	BackendMemory   StoreBackend = "memory"
	BackendPostgres StoreBackend = "postgres"
	BackendRedis    StoreBackend = "redis"
)

// Postgres holds connection settings for the pgx pool.
type Postgres struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
}

// ConnString renders the settings as a postgres:// URL.
func (p Postgres) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

// Redis holds connection settings for go-redis.
type Redis struct {
	Addr      string
	DB        int
	KeyPrefix string
}

// Historian controls the action-log queue.
type Historian struct {
	Enabled    bool
	QueueName  string
	BatchSize  int
	FlushDelay time.Duration
}

// Engine holds the timing knobs of the room state machine.
type Engine struct {
	ElectionWindow time.Duration
	HostGrace      time.Duration
	LivenessWindow time.Duration
	ResyncInterval time.Duration
	PenaltyPacing  time.Duration
}

// Auth controls player token issuing and checking.
type Auth struct {
	TokenTTL time.Duration // 0 means tokens never expire
	Required bool
}

// Config is the full server configuration.
type Config struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string
	Backend        StoreBackend
	Postgres       Postgres
	Redis          Redis
	Historian      Historian
	Engine         Engine
	Auth           Auth
}

// Load reads the configuration from the environment. Unset or malformed
// values fall back to defaults; only an unknown STORE_BACKEND is an error.
func Load() (Config, error) {
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		Backend:        StoreBackend(strings.ToLower(getEnv("STORE_BACKEND", string(BackendMemory)))),
		Postgres: Postgres{
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Database: getEnv("PG_DATABASE", "qrfun"),
		},
		Redis: Redis{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "qrfun"),
		},
		Historian: Historian{
			Enabled:    getEnvBool("HISTORIAN_ENABLED", false),
			QueueName:  getEnv("HISTORIAN_QUEUE_NAME", "qrfun_actions"),
			BatchSize:  getEnvInt("HISTORIAN_BATCH_SIZE", 20),
			FlushDelay: getEnvDuration("HISTORIAN_FLUSH_DELAY", 500*time.Millisecond),
		},
		Engine: Engine{
			ElectionWindow: getEnvDuration("ELECTION_WINDOW", 30*time.Second),
			HostGrace:      getEnvDuration("HOST_GRACE", 10*time.Second),
			LivenessWindow: getEnvDuration("LIVENESS_WINDOW", 20*time.Second),
			ResyncInterval: getEnvDuration("RESYNC_INTERVAL", 15*time.Second),
			PenaltyPacing:  getEnvDuration("PENALTY_PACING", 0),
		},
		Auth: Auth{
			TokenTTL: getEnvDuration("TOKEN_EXPIRE_TIME", 0),
			Required: getEnvBool("AUTH_REQUIRED", false),
		},
	}

	switch cfg.Backend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return cfg, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Backend)
	}
	return cfg, nil
}

// getEnv reads an environment variable or returns def.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as an integer, else returns def.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvBool(key string, def bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}

// getEnvDuration accepts Go durations ("30s") and the literal "never" or "0" for zero.
func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	switch s {
	case "":
		return def
	case "never", "0":
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
