package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	RepositoryRoot string

	JWTSecret           string
	JWTAccessTTL        time.Duration
	CORSOrigins         []string
	RateLimitRPM        int
	AuthRateLimitRPM    int
	DestroyRateLimitRPM int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheKeyPrefix string

	RegistryEnabled bool
	RegistryURL     string
	RegistryToken   string

	RemovalDelay       time.Duration
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	JobMaxAttempts     int
	JobRetryDelay      time.Duration
	JobStaleAfter      time.Duration
	JobHeartbeat       time.Duration

	HookTimeout time.Duration
	LogLevel    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 45*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  getInt32("DB_MAX_CONNS", 10),
		DBMinConns:  getInt32("DB_MIN_CONNS", 1),

		RepositoryRoot: getEnv("REPOSITORY_ROOT", "./repositories"),

		JWTSecret:           strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:        getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		CORSOrigins:         splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:        getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:    getInt("AUTH_RATE_LIMIT_RPM", 10),
		DestroyRateLimitRPM: getInt("DESTROY_RATE_LIMIT_RPM", 6),

		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getInt("REDIS_DB", 0),
		CacheKeyPrefix: getEnv("CACHE_KEY_PREFIX", "cache"),

		RegistryEnabled: getBool("REGISTRY_ENABLED", false),
		RegistryURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("REGISTRY_URL")), "/"),
		RegistryToken:   strings.TrimSpace(os.Getenv("REGISTRY_TOKEN")),

		RemovalDelay:       getDuration("REMOVAL_DELAY", 5*time.Minute),
		WorkerConcurrency:  getInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: getDuration("WORKER_POLL_INTERVAL", time.Second),
		JobMaxAttempts:     getInt("JOB_MAX_ATTEMPTS", 5),
		JobRetryDelay:      getDuration("JOB_RETRY_DELAY", 30*time.Second),
		JobStaleAfter:      getDuration("JOB_STALE_AFTER", 30*time.Minute),
		JobHeartbeat:       getDuration("JOB_HEARTBEAT_INTERVAL", 0),

		HookTimeout: getDuration("HOOK_TIMEOUT", 10*time.Second),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if strings.TrimSpace(c.RepositoryRoot) == "" {
		return fmt.Errorf("REPOSITORY_ROOT cannot be empty")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are inconsistent")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.RegistryEnabled && c.RegistryURL == "" {
		return fmt.Errorf("REGISTRY_URL is required when REGISTRY_ENABLED is set")
	}

	if c.RemovalDelay < 0 {
		return fmt.Errorf("REMOVAL_DELAY cannot be negative")
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	if c.WorkerPollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}

	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt32(key string, fallback int32) int32 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return fallback
	}

	return int32(v)
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
