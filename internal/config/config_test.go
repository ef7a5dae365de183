package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"ENVIRONMENT", "LOG_LEVEL", "LOG_FORMAT", "POD_NAME",
	"HTTP_PORT", "METRICS_PORT", "HTTP_READ_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"DATABASE_DRIVER", "DATABASE_URL", "DB_MIN_CONNS", "DB_MAX_CONNS",
	"REDIS_URL", "TASK_LEASE_TTL",
	"DEFAULT_HOST", "INGRESS_CLASS", "STORAGE_CLASS", "IMAGE_PULL_SECRET", "DEFAULT_REPLICAS",
	"READINESS_TIMEOUT", "READINESS_INTERVAL",
	"LEADER_ELECTION_ENABLED", "LEADER_ELECTION_RENEW_DEADLINE", "RECOVERY_INTERVAL", "ORPHAN_AFTER",
}

// clearEnv blanks every key the tests touch; getEnv treats empty as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("load with defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
		assert.Equal(t, "sqlite", cfg.DatabaseDriver)
		assert.Equal(t, 5, cfg.DBMinConns)
		assert.Equal(t, 20, cfg.DBMaxConns)
		assert.Equal(t, "localhost", cfg.DefaultHost)
		assert.Equal(t, "nginx", cfg.IngressClass)
		assert.Equal(t, "local-path", cfg.StorageClass)
		assert.Equal(t, 300*time.Second, cfg.ReadinessTimeout)
		assert.Equal(t, 10*time.Second, cfg.ReadinessInterval)
		assert.False(t, cfg.RedisEnabled())
		assert.False(t, cfg.LeaderElectionEnabled)
	})

	t.Run("load with custom env vars", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENVIRONMENT", "production")
		t.Setenv("LOG_LEVEL", "DEBUG")
		t.Setenv("HTTP_PORT", "9000")
		t.Setenv("HTTP_READ_TIMEOUT", "60s")
		t.Setenv("DATABASE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "postgres://orchestrator@db:5432/deployments?sslmode=disable")
		t.Setenv("REDIS_URL", "redis://redis:6379/1")
		t.Setenv("DEFAULT_HOST", "apps.example.com")
		t.Setenv("READINESS_TIMEOUT", "2m")
		t.Setenv("READINESS_INTERVAL", "5s")
		t.Setenv("ORPHAN_AFTER", "10m")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "production", cfg.Environment)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "9000", cfg.HTTPPort)
		assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
		assert.Equal(t, "postgres", cfg.DatabaseDriver)
		assert.True(t, cfg.RedisEnabled())
		assert.Equal(t, "apps.example.com", cfg.DefaultHost)
		assert.Equal(t, 2*time.Minute, cfg.ReadinessTimeout)
		assert.Equal(t, 5*time.Second, cfg.ReadinessInterval)
	})

	t.Run("invalid values fall back to defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HTTP_READ_TIMEOUT", "invalid")
		t.Setenv("DB_MAX_CONNS", "many")
		t.Setenv("LEADER_ELECTION_ENABLED", "maybe")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
		assert.Equal(t, 20, cfg.DBMaxConns)
		assert.False(t, cfg.LeaderElectionEnabled)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		errorKey string
	}{
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}, errorKey: "log_level"},
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "mysql"}, errorKey: "database_driver"},
		{name: "min above max", env: map[string]string{"DB_MIN_CONNS": "30"}, errorKey: "db_min_conns"},
		{name: "interval above timeout", env: map[string]string{"READINESS_TIMEOUT": "5s", "READINESS_INTERVAL": "10s", "ORPHAN_AFTER": "1m"}, errorKey: "readiness_interval"},
		{name: "orphan window too short", env: map[string]string{"ORPHAN_AFTER": "1m"}, errorKey: "orphan_after"},
		{name: "zero default replicas", env: map[string]string{"DEFAULT_REPLICAS": "0"}, errorKey: "default_replicas"},
		{name: "leader renew too close to retry", env: map[string]string{"LEADER_ELECTION_ENABLED": "true", "POD_NAME": "orchestrator-0", "REDIS_URL": "redis://redis:6379/1", "LEADER_ELECTION_RENEW_DEADLINE": "2s"}, errorKey: "renew_deadline"},
		{name: "leader election without redis", env: map[string]string{"LEADER_ELECTION_ENABLED": "true", "POD_NAME": "orchestrator-0"}, errorKey: "redis_url"},
		{name: "leader election with redis", env: map[string]string{"LEADER_ELECTION_ENABLED": "true", "POD_NAME": "orchestrator-0", "REDIS_URL": "redis://redis:6379/1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.errorKey == "" {
				require.NoError(t, err)
				assert.True(t, cfg.LeaderElectionEnabled)
				return
			}
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errorKey)
		})
	}
}
