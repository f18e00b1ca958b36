package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/cache"
	"github.com/fleetstack/fleet-sentinel/internal/models"
)

type stubSource struct {
	result cache.Result
	err    error
}

func (s *stubSource) Get(_ context.Context) (cache.Result, error) {
	return s.result, s.err
}

func sortedBatch(now time.Time) models.AlertBatch {
	return models.AlertBatch{
		Alerts: []models.ResolvedAlert{
			{ID: "s1", Severity: models.SeveritySevere, DetectedAt: now.Add(-10 * time.Second)},
			{ID: "s2", Severity: models.SeveritySevere, DetectedAt: now.Add(-90 * time.Second)},
			{ID: "m1", Severity: models.SeverityModerate, DetectedAt: now.Add(-5 * time.Second)},
			{ID: "n1", Severity: models.SeverityMinor, DetectedAt: now.Add(-120 * time.Second)},
		},
		Stats: models.Stats{AssetsScanned: 10, SevereCount: 2, ModerateCount: 1, MinorCount: 1},
	}
}

func alertIDs(alerts []models.ResolvedAlert) []string {
	ids := make([]string, len(alerts))
	for i, a := range alerts {
		ids[i] = a.ID
	}
	return ids
}

func TestGetAlertsNoFilterReturnsFullBatch(t *testing.T) {
	now := time.Now()
	source := &stubSource{result: cache.Result{
		Batch:      sortedBatch(now),
		Generation: 3,
		Cached:     true,
		Age:        12 * time.Second,
	}}
	svc := NewAlertService(nil, source)

	res, err := svc.GetAlerts(context.Background(), models.AlertFilter{})
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	if len(res.Alerts) != 4 {
		t.Fatalf("got %d alerts, want 4", len(res.Alerts))
	}
	if !res.Cached || res.Generation != 3 {
		t.Fatalf("serving metadata not propagated: %+v", res)
	}
	if res.CacheAgeSeconds != 12 {
		t.Fatalf("cache age = %f, want 12", res.CacheAgeSeconds)
	}
	if res.AssetsScanned != 10 {
		t.Fatalf("assets scanned = %d, want 10", res.AssetsScanned)
	}
}

func TestGetAlertsMinSeverityFilter(t *testing.T) {
	now := time.Now()
	source := &stubSource{result: cache.Result{Batch: sortedBatch(now)}}
	svc := NewAlertService(nil, source)

	res, err := svc.GetAlerts(context.Background(), models.AlertFilter{MinSeverity: models.SeverityModerate})
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	want := []string{"s1", "s2", "m1"}
	got := alertIDs(res.Alerts)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestGetAlertsMaxAgeFilter(t *testing.T) {
	now := time.Now()
	source := &stubSource{result: cache.Result{Batch: sortedBatch(now)}}
	svc := NewAlertService(nil, source)

	res, err := svc.GetAlerts(context.Background(), models.AlertFilter{MaxAge: time.Minute})
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	for _, alert := range res.Alerts {
		if alert.ID == "s2" || alert.ID == "n1" {
			t.Fatalf("alert %s older than max age survived the filter", alert.ID)
		}
	}
	if len(res.Alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(res.Alerts))
	}
}

func TestGetAlertsLimitTruncatesSortedOrder(t *testing.T) {
	now := time.Now()
	source := &stubSource{result: cache.Result{Batch: sortedBatch(now)}}
	svc := NewAlertService(nil, source)

	res, err := svc.GetAlerts(context.Background(), models.AlertFilter{Limit: 2})
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	got := alertIDs(res.Alerts)
	if len(got) != 2 || got[0] != "s1" || got[1] != "s2" {
		t.Fatalf("limit did not keep the highest-ranked prefix: %v", got)
	}
}

func TestGetAlertsCombinedFilter(t *testing.T) {
	now := time.Now()
	source := &stubSource{result: cache.Result{Batch: sortedBatch(now)}}
	svc := NewAlertService(nil, source)

	res, err := svc.GetAlerts(context.Background(), models.AlertFilter{
		MinSeverity: models.SeveritySevere,
		MaxAge:      time.Minute,
		Limit:       5,
	})
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	got := alertIDs(res.Alerts)
	if len(got) != 1 || got[0] != "s1" {
		t.Fatalf("got %v, want [s1]", got)
	}
	if res.Stats.SevereCount != 2 {
		t.Fatalf("stats must describe the whole batch, not the filtered view: %+v", res.Stats)
	}
}

func TestGetAlertsPropagatesSourceError(t *testing.T) {
	srcErr := errors.New("no batch available")
	svc := NewAlertService(nil, &stubSource{err: srcErr})

	_, err := svc.GetAlerts(context.Background(), models.AlertFilter{})
	if !errors.Is(err, srcErr) {
		t.Fatalf("err = %v, want %v", err, srcErr)
	}
}

func TestGetAlertsEmptyBatch(t *testing.T) {
	svc := NewAlertService(nil, &stubSource{result: cache.Result{}})

	res, err := svc.GetAlerts(context.Background(), models.AlertFilter{MinSeverity: models.SeveritySevere})
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	if len(res.Alerts) != 0 {
		t.Fatalf("got %d alerts from an empty batch", len(res.Alerts))
	}
}
