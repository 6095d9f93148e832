// cmd/sourcing-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"githire/internal/common/config"
	"githire/internal/common/database"
	"githire/internal/common/logger"
	"githire/internal/common/observability"
	"githire/internal/github"
	"githire/internal/models"
	"githire/internal/sourcing/batch"
	"githire/internal/sourcing/cache"
	"githire/internal/sourcing/collectors"
	"githire/internal/sourcing/coordinator"
	"githire/internal/sourcing/location"
	"githire/internal/sourcing/ratelimit"
	"githire/internal/sourcing/scoring"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sourcing engine...",
		zap.String("environment", cfg.App.Environment),
		zap.String("address", cfg.Server.Address),
	)

	obs := observability.New("sourcing-engine")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Load the gazetteer ---
	gaz, err := location.LoadGazetteer(cfg.Sourcing.Location.GazetteerPath)
	if err != nil {
		zapLog.Fatal("gazetteer load failed", zap.Error(err))
	}
	zapLog.Info("Gazetteer loaded", zap.Int("records", len(gaz.Records)))

	// --- Wire the pipeline ---
	governor := ratelimit.New(cfg.Sourcing.Retry, ratelimit.RealClock(), log)
	client := github.NewClient(cfg.Platform, governor, log)
	resolver := location.NewResolver(gaz, cfg.Sourcing.Location, log)
	twoTier := cache.New(redis, cfg.Sourcing.Cache, log)
	fetcher := batch.New(client, cfg.Sourcing.Batch.ChunkSize, log)
	orchestrator := collectors.NewOrchestrator(client, twoTier, log)
	scorer := scoring.NewEnsemble(cfg.Sourcing)

	coord := coordinator.New(client, fetcher, orchestrator, scorer, resolver, twoTier, obs, cfg.Sourcing, log)

	zapLog.Info("Sourcing pipeline wired")

	// --- HTTP API ---
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/discover", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var criteria models.JobRequirement
		if err := json.NewDecoder(r.Body).Decode(&criteria); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if len(criteria.RequiredSkills) == 0 {
			http.Error(w, "required_skills must not be empty", http.StatusBadRequest)
			return
		}

		result := coord.Discover(r.Context(), criteria)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(result); err != nil {
			zapLog.Error("failed to write discover response", zap.Error(err))
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "healthy"
		code := http.StatusOK
		if err := redis.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Sourcing.Budget() + 30*time.Second,
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining in-flight runs...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Sourcing engine stopped gracefully")
}
