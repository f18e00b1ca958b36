package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/models"
	"github.com/fleetstack/fleet-sentinel/internal/utils"
)

// AlertQuerier is the service surface the HTTP layer exposes.
type AlertQuerier interface {
	GetAlerts(ctx context.Context, filter models.AlertFilter) (models.AlertsResult, error)
}

// Handlers holds the HTTP handler set for the alert API.
type Handlers struct {
	logger  *slog.Logger
	service AlertQuerier
}

// NewHandlers constructs the handler set.
func NewHandlers(logger *slog.Logger, service AlertQuerier) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, service: service}
}

type alertView struct {
	ID                   string          `json:"id"`
	AssetID              string          `json:"assetId"`
	AssetName            string          `json:"assetName"`
	Route                string          `json:"route"`
	Operator             string          `json:"operator"`
	Position             models.Position `json:"position"`
	Type                 string          `json:"type"`
	Description          string          `json:"description"`
	Severity             string          `json:"severity"`
	Resolution           string          `json:"resolution"`
	ResolutionSource     string          `json:"resolutionSource"`
	Confidence           float64         `json:"confidence"`
	PrecedentsConsidered int             `json:"precedentsConsidered"`
	DetectedAt           time.Time       `json:"detectedAt"`
}

type statsView struct {
	AssetsScanned      int     `json:"assetsScanned"`
	MalformedSkipped   int     `json:"malformedSkipped"`
	SevereCount        int     `json:"severeCount"`
	ModerateCount      int     `json:"moderateCount"`
	MinorCount         int     `json:"minorCount"`
	SimilarityResolved int     `json:"similarityResolved"`
	AvgSimilarityScore float64 `json:"avgSimilarityScore"`
}

type alertsResponse struct {
	Alerts          []alertView `json:"alerts"`
	Stats           statsView   `json:"stats"`
	Cached          bool        `json:"cached"`
	CacheAgeSeconds float64     `json:"cacheAgeSeconds"`
	AssetsScanned   int         `json:"assetsScanned"`
	Generation      uint64      `json:"generation"`
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

// GetAlerts handles GET /api/v1/alerts.
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Category: "request"})
		return
	}

	result, err := h.service.GetAlerts(r.Context(), filter)
	if err != nil {
		status, body := classifyError(err)
		writeJSON(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, toAlertsResponse(result))
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func parseFilter(r *http.Request) (models.AlertFilter, error) {
	var filter models.AlertFilter
	q := r.URL.Query()

	if v := q.Get("min_severity"); v != "" {
		sev := models.ParseSeverity(v)
		if sev == "" {
			return models.AlertFilter{}, errors.New("min_severity must be one of minor, moderate, severe")
		}
		filter.MinSeverity = sev
	}
	if v := q.Get("max_age_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			return models.AlertFilter{}, errors.New("max_age_ms must be a non-negative integer")
		}
		filter.MaxAge = time.Duration(ms) * time.Millisecond
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return models.AlertFilter{}, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// classifyError maps service errors onto HTTP responses. Categorized
// dependency failures (no batch ever produced) are the only 503 source;
// callers otherwise always get a batch.
func classifyError(err error) (int, errorResponse) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return http.StatusServiceUnavailable, errorResponse{Error: appErr.Msg, Category: appErr.Op}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout, errorResponse{Error: "request cancelled", Category: "client"}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error", Category: "internal"}
}

func toAlertsResponse(result models.AlertsResult) alertsResponse {
	views := make([]alertView, 0, len(result.Alerts))
	for _, alert := range result.Alerts {
		views = append(views, alertView{
			ID:                   alert.ID,
			AssetID:              alert.AssetID,
			AssetName:            alert.AssetName,
			Route:                alert.Route,
			Operator:             alert.Operator,
			Position:             alert.Position,
			Type:                 string(alert.Type),
			Description:          alert.Description,
			Severity:             string(alert.Severity),
			Resolution:           alert.Resolution,
			ResolutionSource:     string(alert.ResolutionSource),
			Confidence:           alert.Confidence,
			PrecedentsConsidered: alert.PrecedentsConsidered,
			DetectedAt:           alert.DetectedAt,
		})
	}
	return alertsResponse{
		Alerts: views,
		Stats: statsView{
			AssetsScanned:      result.Stats.AssetsScanned,
			MalformedSkipped:   result.Stats.MalformedSkipped,
			SevereCount:        result.Stats.SevereCount,
			ModerateCount:      result.Stats.ModerateCount,
			MinorCount:         result.Stats.MinorCount,
			SimilarityResolved: result.Stats.SimilarityResolved,
			AvgSimilarityScore: result.Stats.AvgSimilarityScore,
		},
		Cached:          result.Cached,
		CacheAgeSeconds: result.CacheAgeSeconds,
		AssetsScanned:   result.AssetsScanned,
		Generation:      result.Generation,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
