package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://reaper@localhost/reaper")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REMOVAL_DELAY", "")
	t.Setenv("REGISTRY_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, cfg.RemovalDelay)
	require.False(t, cfg.RegistryEnabled)
	require.Equal(t, 4, cfg.WorkerConcurrency)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://reaper@localhost/reaper")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REMOVAL_DELAY", "90s")
	t.Setenv("REGISTRY_ENABLED", "true")
	t.Setenv("REGISTRY_URL", "https://registry.example.com/")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 90*time.Second, cfg.RemovalDelay)
	require.True(t, cfg.RegistryEnabled)
	require.Equal(t, "https://registry.example.com", cfg.RegistryURL)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	require.Equal(t, int32(10), cfg.DBMaxConns)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		return &Config{
			ServerPort:         "8080",
			DatabaseURL:        "postgres://localhost/db",
			JWTSecret:          "x",
			RepositoryRoot:     "/srv/repos",
			DBMaxConns:         4,
			DBMinConns:         1,
			RequestTimeout:     time.Second,
			WorkerConcurrency:  1,
			WorkerPollInterval: time.Second,
			JobMaxAttempts:     1,
		}
	}

	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"missing database":       func(c *Config) { c.DatabaseURL = "" },
		"missing secret":         func(c *Config) { c.JWTSecret = " " },
		"registry without url":   func(c *Config) { c.RegistryEnabled = true },
		"negative removal delay": func(c *Config) { c.RemovalDelay = -time.Second },
		"no workers":             func(c *Config) { c.WorkerConcurrency = 0 },
		"min above max conns":    func(c *Config) { c.DBMinConns = 8 },
		"zero attempts":          func(c *Config) { c.JobMaxAttempts = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
