package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Application
	Environment string
	LogLevel    string
	LogFormat   string
	PodName     string

	// HTTP server
	HTTPPort        string
	MetricsPort     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// State store
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string
	DBMinConns     int
	DBMaxConns     int
	DBConnLifetime time.Duration
	DBQueryTimeout time.Duration

	// Redis (optional, enables cross-replica stop and task leases)
	RedisURL         string
	RedisPoolSize    int
	RedisMinIdleConn int
	RedisMaxRetries  int
	RedisDialTimeout time.Duration
	TaskLeaseTTL     time.Duration

	// Kubernetes
	K8sInCluster      bool
	K8sKubeConfigPath string
	K8sRequestTimeout time.Duration
	K8sQPS            float32
	K8sBurst          int

	// Manifest generation
	DefaultHost     string
	IngressClass    string
	StorageClass    string
	ClusterIssuer   string
	ImagePullSecret string
	DefaultReplicas int
	DefaultCPU      string
	DefaultCPULimit string
	DefaultMemory   string
	DefaultMemLimit string

	// Readiness polling
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration

	// Leader election and orphan recovery
	LeaderElectionEnabled       bool
	LeaderElectionNamespace     string
	LeaderElectionLockName      string
	LeaderElectionDuration      time.Duration
	LeaderElectionRenewDeadline time.Duration
	LeaderElectionRetryPeriod   time.Duration
	RecoveryInterval            time.Duration
	OrphanAfter                 time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	hostname, _ := os.Hostname()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		PodName:     getEnv("POD_NAME", hostname),

		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:  getEnvDuration("HTTP_REQUEST_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", "file:deployments.db"),
		DBMinConns:     getEnvInt("DB_MIN_CONNS", 5),
		DBMaxConns:     getEnvInt("DB_MAX_CONNS", 20),
		DBConnLifetime: getEnvDuration("DB_CONN_LIFETIME", 30*time.Minute),
		DBQueryTimeout: getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisPoolSize:    getEnvInt("REDIS_POOL_SIZE", 20),
		RedisMinIdleConn: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
		RedisMaxRetries:  getEnvInt("REDIS_MAX_RETRIES", 3),
		RedisDialTimeout: getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		TaskLeaseTTL:     getEnvDuration("TASK_LEASE_TTL", 60*time.Second),

		K8sInCluster:      getEnvBool("K8S_IN_CLUSTER", false),
		K8sKubeConfigPath: getEnv("K8S_KUBECONFIG_PATH", ""),
		K8sRequestTimeout: getEnvDuration("K8S_REQUEST_TIMEOUT", 30*time.Second),
		K8sQPS:            float32(getEnvInt("K8S_QPS", 20)),
		K8sBurst:          getEnvInt("K8S_BURST", 40),

		DefaultHost:     getEnv("DEFAULT_HOST", "localhost"),
		IngressClass:    getEnv("INGRESS_CLASS", "nginx"),
		StorageClass:    getEnv("STORAGE_CLASS", "local-path"),
		ClusterIssuer:   getEnv("TLS_CLUSTER_ISSUER", "letsencrypt-prod"),
		ImagePullSecret: getEnv("IMAGE_PULL_SECRET", ""),
		DefaultReplicas: getEnvInt("DEFAULT_REPLICAS", 2),
		DefaultCPU:      getEnv("DEFAULT_CPU_REQUEST", "100m"),
		DefaultCPULimit: getEnv("DEFAULT_CPU_LIMIT", "500m"),
		DefaultMemory:   getEnv("DEFAULT_MEMORY_REQUEST", "128Mi"),
		DefaultMemLimit: getEnv("DEFAULT_MEMORY_LIMIT", "512Mi"),

		ReadinessTimeout:  getEnvDuration("READINESS_TIMEOUT", 300*time.Second),
		ReadinessInterval: getEnvDuration("READINESS_INTERVAL", 10*time.Second),

		LeaderElectionEnabled:       getEnvBool("LEADER_ELECTION_ENABLED", false),
		LeaderElectionNamespace:     getEnv("LEADER_ELECTION_NAMESPACE", "default"),
		LeaderElectionLockName:      getEnv("LEADER_ELECTION_LOCK_NAME", "deploy-orchestrator-leader"),
		LeaderElectionDuration:      getEnvDuration("LEADER_ELECTION_DURATION", 15*time.Second),
		LeaderElectionRenewDeadline: getEnvDuration("LEADER_ELECTION_RENEW_DEADLINE", 10*time.Second),
		LeaderElectionRetryPeriod:   getEnvDuration("LEADER_ELECTION_RETRY_PERIOD", 2*time.Second),
		RecoveryInterval:            getEnvDuration("RECOVERY_INTERVAL", time.Minute),
		OrphanAfter:                 getEnvDuration("ORPHAN_AFTER", 15*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug/info/warn/error)", c.LogLevel)
	}

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("invalid database_driver: %q (must be postgres or sqlite)", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("db_max_conns must be at least 1")
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("db_min_conns must be between 0 and db_max_conns")
	}

	if c.ReadinessTimeout <= 0 {
		return fmt.Errorf("readiness_timeout must be positive")
	}
	if c.ReadinessInterval <= 0 || c.ReadinessInterval > c.ReadinessTimeout {
		return fmt.Errorf("readiness_interval must be positive and not exceed readiness_timeout")
	}

	if c.DefaultHost == "" {
		return fmt.Errorf("default_host is required")
	}
	if c.DefaultReplicas < 1 {
		return fmt.Errorf("default_replicas must be at least 1")
	}

	if c.LeaderElectionEnabled {
		if c.PodName == "" {
			return fmt.Errorf("pod_name is required when leader election is enabled")
		}
		// client-go jitters the retry period by up to 1.2x
		if c.LeaderElectionDuration <= c.LeaderElectionRenewDeadline ||
			float64(c.LeaderElectionRenewDeadline) <= 1.2*float64(c.LeaderElectionRetryPeriod) {
			return fmt.Errorf("leader election timings must satisfy duration > renew_deadline > 1.2 * retry_period")
		}
		// Without shared leases the leader cannot see tasks on other replicas.
		if !c.RedisEnabled() {
			return fmt.Errorf("redis_url is required when leader election is enabled")
		}
	}
	if c.RecoveryInterval <= 0 {
		return fmt.Errorf("recovery_interval must be positive")
	}
	if c.OrphanAfter < c.ReadinessTimeout {
		return fmt.Errorf("orphan_after must not be shorter than readiness_timeout")
	}

	return nil
}

// RedisEnabled reports whether a Redis URL was configured
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return defaultVal
		}
		return b
	}
	return defaultVal
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal
		}
		return i
	}
	return defaultVal
}

// getEnvDuration retrieves a duration environment variable or returns a default value
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return defaultVal
		}
		return d
	}
	return defaultVal
}
