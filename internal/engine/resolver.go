package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fleetstack/fleet-sentinel/internal/metrics"
	"github.com/fleetstack/fleet-sentinel/internal/models"
)

// Embedder turns free text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PrecedentIndex returns nearest-neighbour precedents for a vector, ordered
// descending by score.
type PrecedentIndex interface {
	Query(ctx context.Context, vector []float32, k int) ([]models.VectorMatch, error)
}

// Resolver attaches a remedial action to each candidate: the best precedent's
// stored resolution when its score clears the confidence threshold, otherwise
// the static (type, severity) template. Dependency failures are recovered
// locally; Resolve never fails the pipeline.
type Resolver struct {
	logger    *slog.Logger
	embedder  Embedder
	index     PrecedentIndex
	topK      int
	threshold float64
}

// NewResolver constructs a resolver with explicit top-K and confidence
// threshold configuration.
func NewResolver(logger *slog.Logger, embedder Embedder, index PrecedentIndex, topK int, threshold float64) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 3
	}
	return &Resolver{
		logger:    logger,
		embedder:  embedder,
		index:     index,
		topK:      topK,
		threshold: threshold,
	}
}

// Resolve produces the alert for a candidate, copying the asset's display
// attributes by value so the alert outlives the snapshot it came from.
func (r *Resolver) Resolve(ctx context.Context, candidate models.AlertCandidate, asset models.AssetSnapshot) models.ResolvedAlert {
	alert := models.ResolvedAlert{
		ID:          uuid.NewString(),
		AssetID:     candidate.AssetID,
		AssetName:   asset.Name,
		Route:       asset.Route,
		Operator:    asset.Operator,
		Position:    asset.Position,
		Type:        candidate.Type,
		Description: candidate.Description,
		Severity:    candidate.Severity,
		DetectedAt:  candidate.DetectedAt,
	}

	matches := r.lookupPrecedents(ctx, candidate.Description)
	alert.PrecedentsConsidered = len(matches)

	if len(matches) > 0 && matches[0].Score >= r.threshold {
		alert.Resolution = matches[0].Resolution
		alert.ResolutionSource = models.SourceSimilarityMatch
		alert.Confidence = matches[0].Score
	} else {
		alert.Resolution = TemplateResolution(candidate.Type, candidate.Severity)
		alert.ResolutionSource = models.SourceTemplateFallback
		alert.Confidence = 0
	}

	metrics.ObserveResolution(string(alert.ResolutionSource))
	return alert
}

// lookupPrecedents runs embed + top-K query, treating any failure as an
// empty result so the caller falls back to the template.
func (r *Resolver) lookupPrecedents(ctx context.Context, description string) []models.VectorMatch {
	if r.embedder == nil || r.index == nil {
		return nil
	}

	vector, err := r.embedder.Embed(ctx, description)
	if err != nil {
		r.logger.Warn("embedding failed, using template fallback", slog.Any("error", err))
		return nil
	}

	matches, err := r.index.Query(ctx, vector, r.topK)
	if err != nil {
		r.logger.Warn("precedent query failed, using template fallback", slog.Any("error", err))
		return nil
	}
	return matches
}
