// Package ratelimit tracks remaining upstream API quota and governs retries.
//
// Every upstream call goes through Execute. The governor moves between
// Ready, Paused (quota below the low-water mark, waiting for the reported
// reset) and Backoff (transient error, base^n wait). Quota state is the only
// mutable state in the engine with concurrent writers and is guarded by a
// single mutex; callers check-and-decrement atomically so concurrent batch
// fetches cannot overshoot the quota.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"githire/internal/common/config"
	cerrors "githire/internal/common/errors"
	"githire/internal/common/logger"
	"githire/internal/common/metrics"
)

// Clock abstracts time so tests run against a simulated clock.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RealClock returns the wall clock used in production.
func RealClock() Clock { return realClock{} }

// Quota is the remaining-quota report parsed from upstream response headers.
type Quota struct {
	Remaining int
	ResetAt   time.Time
	Known     bool
}

// Governor wraps every upstream call with quota tracking, pause-on-low-water
// and bounded exponential backoff.
type Governor struct {
	mu         sync.Mutex
	remaining  int
	resetAt    time.Time
	quotaKnown bool

	lowWater    int
	base        float64
	maxAttempts int
	clock       Clock
	logger      logger.Logger
}

func New(cfg config.RetryConfig, clock Clock, log logger.Logger) *Governor {
	if clock == nil {
		clock = realClock{}
	}
	return &Governor{
		lowWater:    cfg.LowWaterMark,
		base:        cfg.BackoffBaseSeconds,
		maxAttempts: cfg.MaxAttempts,
		clock:       clock,
		logger:      log.WithFields(map[string]interface{}{"component": "rate-governor"}),
	}
}

// Execute runs call under the governor's state machine. call reports the
// quota headers it observed alongside its error so already-in-flight
// responses still update shared state. Transient errors are retried up to
// the configured attempt bound, then surfaced as UPSTREAM_UNAVAILABLE.
func (g *Governor) Execute(ctx context.Context, name string, call func(ctx context.Context) (Quota, error)) error {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := g.acquire(ctx); err != nil {
			return err
		}

		quota, err := call(ctx)
		g.observe(quota)
		if err == nil {
			return nil
		}
		if !cerrors.IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt == g.maxAttempts {
			break
		}

		delay := time.Duration(math.Pow(g.base, float64(attempt)) * float64(time.Second))
		g.logger.Warn("transient upstream error, backing off", map[string]interface{}{
			"call":    name,
			"attempt": attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		if err := g.clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return cerrors.NewUpstreamUnavailableError(g.maxAttempts, lastErr)
}

// acquire blocks while the governor is Paused, then reserves one call from
// the tracked quota. In-flight calls are never interrupted by a pause; only
// new acquisitions wait.
func (g *Governor) acquire(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.clock.Now()

		// Past the reported reset the tracked window is stale; proceed and
		// let the next response re-establish it.
		if g.quotaKnown && !g.resetAt.After(now) {
			g.quotaKnown = false
		}

		if !g.quotaKnown || g.remaining > g.lowWater {
			if g.quotaKnown && g.remaining > 0 {
				g.remaining--
			}
			g.mu.Unlock()
			return nil
		}

		wait := g.resetAt.Sub(now)
		resetAt := g.resetAt
		g.mu.Unlock()

		metrics.RateLimitPausesTotal.Inc()
		g.logger.Warn("quota below low-water mark, pausing until reset", map[string]interface{}{
			"resetAt": resetAt.UTC().Format(time.RFC3339),
			"wait":    wait.String(),
		})
		if err := g.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (g *Governor) observe(quota Quota) {
	if !quota.Known {
		return
	}
	g.mu.Lock()
	g.remaining = quota.Remaining
	g.resetAt = quota.ResetAt
	g.quotaKnown = true
	g.mu.Unlock()
}

// Remaining reports the last observed quota. Used for logging and tests.
func (g *Governor) Remaining() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining, g.quotaKnown
}
