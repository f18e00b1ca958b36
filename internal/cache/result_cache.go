package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fleetstack/fleet-sentinel/internal/metrics"
	"github.com/fleetstack/fleet-sentinel/internal/models"
	"github.com/fleetstack/fleet-sentinel/internal/utils"
)

// resultKey is the singleflight key; the cache holds one batch for the fleet.
const resultKey = "alert-batch"

// BatchRunner produces a fresh alert batch. Exactly one run is in flight at
// any time regardless of caller count.
type BatchRunner interface {
	Run(ctx context.Context) (models.AlertBatch, error)
}

// Result is what crosses the cache boundary: a copied batch plus serving
// metadata. Callers can mutate it freely without racing the next regeneration.
type Result struct {
	Batch      models.AlertBatch
	Generation uint64
	Cached     bool
	Age        time.Duration
}

type cacheEntry struct {
	batch       models.AlertBatch
	completedAt time.Time
	generation  uint64
}

// ResultCache serves alert batches from a TTL window over a BatchRunner.
// Expired callers coalesce onto a single shared regeneration; a failed
// regeneration falls back to the previous (stale) entry when one exists.
type ResultCache struct {
	logger *slog.Logger
	runner BatchRunner
	ttl    time.Duration

	group singleflight.Group

	mu         sync.RWMutex
	entry      *cacheEntry
	generation uint64
}

// NewResultCache wraps the runner behind a TTL window.
func NewResultCache(logger *slog.Logger, runner BatchRunner, ttl time.Duration) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ResultCache{
		logger: logger,
		runner: runner,
		ttl:    ttl,
	}
}

// Get returns the current batch. A live entry is served immediately with its
// age measured from generation completion. On expiry the first caller
// installs a shared regeneration; everyone arriving before it completes
// blocks on the same pending result and receives the identical batch and
// generation counter.
func (c *ResultCache) Get(ctx context.Context) (Result, error) {
	if entry, ok := c.liveEntry(); ok {
		return c.serve(entry, true), nil
	}

	ch := c.group.DoChan(resultKey, func() (interface{}, error) {
		return c.regenerate(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		// The shared run continues for the callers still attached to it.
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return c.serve(res.Val.(*cacheEntry), false), nil
		}
		// Regeneration failed: retain and serve the stale entry when we
		// have one; only a service that has never produced a batch is
		// actually unavailable.
		c.mu.RLock()
		stale := c.entry
		c.mu.RUnlock()
		if stale != nil {
			c.logger.Warn("serving stale batch after failed regeneration", slog.Any("error", res.Err))
			return c.serve(stale, true), nil
		}
		return Result{}, utils.NewAppError("regenerate", "telemetry feed unavailable", res.Err)
	}
}

// regenerate runs the orchestrator to completion and installs the new entry.
// It always runs detached from any single caller's cancellation.
func (c *ResultCache) regenerate(ctx context.Context) (*cacheEntry, error) {
	start := time.Now()
	batch, err := c.runner.Run(ctx)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveRegeneration(duration, metrics.OutcomeError)
		return nil, err
	}
	metrics.ObserveRegeneration(duration, metrics.OutcomeSuccess)

	c.mu.Lock()
	c.generation++
	entry := &cacheEntry{
		batch:       batch,
		completedAt: time.Now(),
		generation:  c.generation,
	}
	c.entry = entry
	c.mu.Unlock()

	c.logger.Info("alert batch regenerated",
		slog.Uint64("generation", entry.generation),
		slog.Int("alerts", len(batch.Alerts)),
		slog.Duration("took", duration))
	return entry, nil
}

func (c *ResultCache) liveEntry() (*cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.entry == nil {
		return nil, false
	}
	if time.Since(c.entry.completedAt) >= c.ttl {
		return nil, false
	}
	return c.entry, true
}

// serve copies the entry's batch so no mutable state escapes the cache.
func (c *ResultCache) serve(entry *cacheEntry, cached bool) Result {
	return Result{
		Batch:      entry.batch.Clone(),
		Generation: entry.generation,
		Cached:     cached,
		Age:        time.Since(entry.completedAt),
	}
}
