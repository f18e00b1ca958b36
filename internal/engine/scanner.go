package engine

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/config"
	"github.com/fleetstack/fleet-sentinel/internal/models"
)

var weatherConditions = []SubCategory{SubFog, SubRain, SubSnow, SubStrongWind}

// Scanner applies per-asset detection rules to a telemetry snapshot and
// emits alert candidates. Rules are independent; an asset may yield several
// candidates per scan. The scanner performs no network or cache access.
type Scanner struct {
	logger     *slog.Logger
	classifier *Classifier
	rand       Rand
	cfg        config.DetectionConfig
}

// NewScanner constructs a scanner sharing the classifier's random source so
// seeded runs stay deterministic end to end.
func NewScanner(logger *slog.Logger, classifier *Classifier, source Rand, cfg config.DetectionConfig) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if source == nil {
		source = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if classifier == nil {
		classifier = NewClassifier(source)
	}
	return &Scanner{
		logger:     logger,
		classifier: classifier,
		rand:       source,
		cfg:        cfg,
	}
}

// Scan walks the snapshot and returns detected candidates plus the count of
// malformed records skipped. Malformed assets never abort the scan.
func (s *Scanner) Scan(assets []models.AssetSnapshot, now time.Time) ([]models.AlertCandidate, int) {
	candidates := make([]models.AlertCandidate, 0, len(assets))
	skipped := 0

	for _, asset := range assets {
		if asset.ID == "" || asset.Name == "" {
			skipped++
			s.logger.Debug("skipping malformed asset record", slog.String("asset_id", asset.ID))
			continue
		}
		candidates = append(candidates, s.scanAsset(asset, now)...)
	}

	return candidates, skipped
}

func (s *Scanner) scanAsset(asset models.AssetSnapshot, now time.Time) []models.AlertCandidate {
	var out []models.AlertCandidate

	emit := func(conflict models.ConflictType, severity models.Severity, description string) {
		out = append(out, models.AlertCandidate{
			AssetID:     asset.ID,
			Type:        conflict,
			Description: description,
			Severity:    severity,
			DetectedAt:  now,
		})
	}

	switch asset.Status {
	case models.StatusStopped:
		if asset.SpeedKmh != nil && *asset.SpeedKmh == 0 {
			emit(models.ConflictStoppedIncident,
				s.classifier.Classify(models.ConflictStoppedIncident, SubNone),
				fmt.Sprintf("%s stopped at %.5f,%.5f with zero speed on route %s",
					asset.Name, asset.Position.Latitude, asset.Position.Longitude, asset.Route))
		} else {
			emit(models.ConflictServiceStopped,
				s.classifier.Classify(models.ConflictServiceStopped, SubNone),
				fmt.Sprintf("Service halted for %s on route %s operated by %s",
					asset.Name, asset.Route, asset.Operator))
		}
	case models.StatusDelayed:
		emit(models.ConflictDelay,
			s.classifier.Classify(models.ConflictDelay, SubNone),
			fmt.Sprintf("%s on route %s operated by %s is running behind schedule",
				asset.Name, asset.Route, asset.Operator))
	}

	if asset.SpeedKmh != nil && *asset.SpeedKmh > s.cfg.HighSpeedKmh {
		emit(models.ConflictSpeedRestriction,
			models.SeverityMinor,
			fmt.Sprintf("%s exceeding %.0f km/h on route %s (current %.0f km/h)",
				asset.Name, s.cfg.HighSpeedKmh, asset.Route, *asset.SpeedKmh))
	}

	if s.rand.Float64() < s.cfg.WeatherProbability {
		condition := weatherConditions[int(s.rand.Float64()*float64(len(weatherConditions)))%len(weatherConditions)]
		emit(models.ConflictWeather,
			s.classifier.Classify(models.ConflictWeather, condition),
			fmt.Sprintf("Weather condition %s affecting %s on route %s",
				condition, asset.Name, asset.Route))
	}

	if isExpressRoute(asset.Route) && s.rand.Float64() < s.cfg.CongestionProbability {
		emit(models.ConflictCongestion,
			s.classifier.Classify(models.ConflictCongestion, SubNone),
			fmt.Sprintf("Congestion reported around %s on route %s",
				asset.Name, asset.Route))
	}

	if isWinterOperator(asset.Operator) && s.rand.Float64() < s.cfg.WinterProbability {
		emit(models.ConflictSpeedRestriction,
			s.classifier.Classify(models.ConflictSpeedRestriction, SubWinter),
			fmt.Sprintf("Winter speed restriction advised for %s operated by %s",
				asset.Name, asset.Operator))
	}

	return out
}

func isExpressRoute(route string) bool {
	lowered := strings.ToLower(route)
	return strings.Contains(lowered, "express") || strings.Contains(lowered, "intercity")
}

func isWinterOperator(operator string) bool {
	return strings.Contains(strings.ToLower(operator), "winter")
}
