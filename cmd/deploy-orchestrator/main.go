package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deploy-orchestrator-go/internal/api"
	"deploy-orchestrator-go/internal/config"
	"deploy-orchestrator-go/internal/datastore/sqlstore"
	"deploy-orchestrator-go/internal/k8s"
	"deploy-orchestrator-go/internal/manifest"
	"deploy-orchestrator-go/internal/models"
	"deploy-orchestrator-go/internal/orchestrator"
	"deploy-orchestrator-go/internal/recovery"
	"deploy-orchestrator-go/internal/redisclient"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting deploy orchestrator",
		zap.String("version", "1.0.0"),
		zap.String("pod_name", cfg.PodName),
		zap.String("environment", cfg.Environment),
	)

	store, err := sqlstore.Open(ctx, sqlstore.Options{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxConns,
		MaxIdleConns:    cfg.DBMinConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		QueryTimeout:    cfg.DBQueryTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open state store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing state store", zap.Error(err))
		}
	}()
	logger.Info("State store ready", zap.String("driver", cfg.DatabaseDriver))

	cluster, err := k8s.NewClient(k8s.Settings{
		InCluster:      cfg.K8sInCluster,
		KubeConfigPath: cfg.K8sKubeConfigPath,
		RequestTimeout: cfg.K8sRequestTimeout,
		QPS:            cfg.K8sQPS,
		Burst:          cfg.K8sBurst,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create Kubernetes client", zap.Error(err))
	}
	if err := cluster.Ping(ctx); err != nil {
		// Not fatal: /health and /ready report it until the cluster answers.
		logger.Warn("Kubernetes API not reachable at startup", zap.Error(err))
	}

	// Redis is optional; without it stops and leases stay on this replica.
	var coord orchestrator.Coordinator
	if cfg.RedisEnabled() {
		redisClient, err := redisclient.NewClient(cfg)
		if err != nil {
			logger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Error closing Redis connection", zap.Error(err))
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		logger.Info("Connected to Redis")
		coord = redisclient.NewCoordinator(redisClient, cfg.PodName, cfg.TaskLeaseTTL, logger)
	} else {
		logger.Warn("REDIS_URL not set, running single-replica coordination")
	}

	generator := manifest.NewGenerator(generatorOptions(cfg))
	orch := orchestrator.New(store, cluster, coord, generator, orchestrator.Options{
		Defaults:          requestDefaults(cfg),
		ReadinessTimeout:  cfg.ReadinessTimeout,
		ReadinessInterval: cfg.ReadinessInterval,
	}, logger)

	go recovery.SafeGo(ctx, logger, "stopListener", func() {
		if err := orch.ListenForStops(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Stop listener failed", zap.Error(err))
		}
	})

	recoveryManager := recovery.NewManager(cluster.Clientset(), store, orch, cfg, logger)
	go func() {
		logger.Info("Starting orphan recovery", zap.Bool("leader_election", cfg.LeaderElectionEnabled))
		if err := recoveryManager.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Orphan recovery stopped with error", zap.Error(err))
		}
	}()

	router := api.NewRouter(orch, cluster, store, cfg, logger, recoveryManager)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Separate minimal mux for scrapes when the metrics port differs
	var metricsServer *http.Server
	if cfg.MetricsPort != cfg.HTTPPort {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		metricsServer = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info("Starting metrics server", zap.String("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Deploy orchestrator started successfully",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("metrics_port", cfg.MetricsPort),
		zap.Bool("redis", cfg.RedisEnabled()),
	)

	<-quit
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop taking requests first so no new task starts after the drain.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("Deployment tasks did not drain", zap.Error(err))
	}

	cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	logger.Info("Deploy orchestrator shutdown complete")
}

func setupLogger(cfg *config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)

	if cfg.LogFormat == "console" {
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return config.Build()
}

func generatorOptions(cfg *config.Config) manifest.Options {
	return manifest.Options{
		DefaultHost:     cfg.DefaultHost,
		IngressClass:    cfg.IngressClass,
		StorageClass:    cfg.StorageClass,
		ClusterIssuer:   cfg.ClusterIssuer,
		ImagePullSecret: cfg.ImagePullSecret,
	}
}

func requestDefaults(cfg *config.Config) models.Defaults {
	return models.Defaults{
		Replicas:      int32(cfg.DefaultReplicas),
		CPURequest:    cfg.DefaultCPU,
		CPULimit:      cfg.DefaultCPULimit,
		MemoryRequest: cfg.DefaultMemory,
		MemoryLimit:   cfg.DefaultMemLimit,
	}
}
