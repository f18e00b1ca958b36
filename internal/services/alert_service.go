package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/cache"
	"github.com/fleetstack/fleet-sentinel/internal/models"
	"github.com/fleetstack/fleet-sentinel/internal/utils"
)

// BatchSource serves the current alert batch; the result cache implements it.
type BatchSource interface {
	Get(ctx context.Context) (cache.Result, error)
}

// AlertService is the query facade: it fetches the cached batch and applies
// the caller's severity/age/limit filter to a copy.
type AlertService struct {
	logger    *slog.Logger
	source    BatchSource
	latencies *utils.LatencyTracker
}

// NewAlertService constructs the service facade.
func NewAlertService(logger *slog.Logger, source BatchSource) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertService{
		logger:    logger,
		source:    source,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// GetAlerts returns the filtered view of the current batch. Filtering is
// applied after the batch's severity/time ordering, so Limit truncates the
// already-sorted sequence.
func (s *AlertService) GetAlerts(ctx context.Context, filter models.AlertFilter) (models.AlertsResult, error) {
	start := time.Now()
	res, err := s.source.Get(ctx)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("batch unavailable", slog.Any("error", err))
		return models.AlertsResult{}, err
	}

	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("alert query latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	alerts := applyFilter(res.Batch.Alerts, filter, time.Now())
	return models.AlertsResult{
		Alerts:          alerts,
		Stats:           res.Batch.Stats,
		Cached:          res.Cached,
		CacheAgeSeconds: res.Age.Seconds(),
		AssetsScanned:   res.Batch.Stats.AssetsScanned,
		Generation:      res.Generation,
	}, nil
}

func applyFilter(alerts []models.ResolvedAlert, filter models.AlertFilter, now time.Time) []models.ResolvedAlert {
	minRank := models.SeverityRank(filter.MinSeverity)
	out := make([]models.ResolvedAlert, 0, len(alerts))
	for _, alert := range alerts {
		if minRank > 0 && models.SeverityRank(alert.Severity) < minRank {
			continue
		}
		if filter.MaxAge > 0 && now.Sub(alert.DetectedAt) > filter.MaxAge {
			continue
		}
		out = append(out, alert)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}
