package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fleetstack/fleet-sentinel/internal/models"
)

// SnapshotFeed supplies the current fleet telemetry snapshot. A feed failure
// is fatal to a single regeneration, never to the service.
type SnapshotFeed interface {
	FetchSnapshot(ctx context.Context) ([]models.AssetSnapshot, error)
}

// CorpusWriter persists similarity-resolved alerts back into the precedent
// corpus. Writes are best-effort.
type CorpusWriter interface {
	StoreResolution(ctx context.Context, alert models.ResolvedAlert) error
}

// Orchestrator runs one full regeneration: snapshot → scan → bounded-parallel
// resolution → ordered batch with aggregate statistics.
type Orchestrator struct {
	logger   *slog.Logger
	feed     SnapshotFeed
	scanner  *Scanner
	resolver *Resolver
	corpus   CorpusWriter
	workers  int
}

// NewOrchestrator constructs an orchestrator. Zero workers means available
// hardware concurrency; corpus may be nil to disable write-back.
func NewOrchestrator(logger *slog.Logger, feed SnapshotFeed, scanner *Scanner, resolver *Resolver, corpus CorpusWriter, workers int) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Orchestrator{
		logger:   logger,
		feed:     feed,
		scanner:  scanner,
		resolver: resolver,
		corpus:   corpus,
		workers:  workers,
	}
}

// Run produces one alert batch. Per-candidate resolution is order-insensitive;
// batch ordering is applied after all candidates have resolved.
func (o *Orchestrator) Run(ctx context.Context) (models.AlertBatch, error) {
	if o.feed == nil {
		return models.AlertBatch{}, fmt.Errorf("snapshot feed not configured")
	}

	assets, err := o.feed.FetchSnapshot(ctx)
	if err != nil {
		return models.AlertBatch{}, fmt.Errorf("fetch snapshot: %w", err)
	}

	now := time.Now().UTC()
	candidates, skipped := o.scanner.Scan(assets, now)
	o.logger.Debug("scan complete",
		slog.Int("assets", len(assets)),
		slog.Int("candidates", len(candidates)),
		slog.Int("skipped", skipped))

	byID := make(map[string]models.AssetSnapshot, len(assets))
	for _, asset := range assets {
		byID[asset.ID] = asset
	}

	alerts := make([]models.ResolvedAlert, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			alerts[i] = o.resolver.Resolve(gctx, candidate, byID[candidate.AssetID])
			return nil
		})
	}
	// Resolve never returns an error; Wait only orders the writes above.
	_ = g.Wait()

	sortBatch(alerts)

	batch := models.AlertBatch{
		Alerts: alerts,
		Stats:  computeStats(alerts, len(assets), skipped),
	}

	o.storeResolutions(ctx, alerts)
	return batch, nil
}

// storeResolutions writes similarity-sourced alerts back into the corpus so
// future incidents can match against them.
func (o *Orchestrator) storeResolutions(ctx context.Context, alerts []models.ResolvedAlert) {
	if o.corpus == nil {
		return
	}
	for _, alert := range alerts {
		if alert.ResolutionSource != models.SourceSimilarityMatch {
			continue
		}
		if err := o.corpus.StoreResolution(ctx, alert); err != nil {
			o.logger.Warn("failed to persist resolution", slog.String("alert_id", alert.ID), slog.Any("error", err))
		}
	}
}

// sortBatch orders alerts severe > moderate > minor with newest-first ties.
func sortBatch(alerts []models.ResolvedAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := models.SeverityRank(alerts[i].Severity), models.SeverityRank(alerts[j].Severity)
		if ri != rj {
			return ri > rj
		}
		return alerts[i].DetectedAt.After(alerts[j].DetectedAt)
	})
}

func computeStats(alerts []models.ResolvedAlert, assetsScanned, skipped int) models.Stats {
	stats := models.Stats{
		AssetsScanned:    assetsScanned,
		MalformedSkipped: skipped,
	}

	scoreSum := 0.0
	for _, alert := range alerts {
		switch alert.Severity {
		case models.SeveritySevere:
			stats.SevereCount++
		case models.SeverityModerate:
			stats.ModerateCount++
		case models.SeverityMinor:
			stats.MinorCount++
		}
		if alert.ResolutionSource == models.SourceSimilarityMatch {
			stats.SimilarityResolved++
			scoreSum += alert.Confidence
		}
	}
	if stats.SimilarityResolved > 0 {
		stats.AvgSimilarityScore = scoreSum / float64(stats.SimilarityResolved)
	}
	return stats
}
