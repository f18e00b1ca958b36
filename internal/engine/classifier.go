package engine

import (
	"math/rand"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/models"
)

// Rand is the uniform draw source used by the classifier and scanner.
// *math/rand.Rand satisfies it; tests inject seeded sources.
type Rand interface {
	Float64() float64
}

// SubCategory refines a conflict type for severity classification.
type SubCategory string

const (
	SubNone       SubCategory = ""
	SubWinter     SubCategory = "winter"
	SubFog        SubCategory = "fog"
	SubRain       SubCategory = "rain"
	SubSnow       SubCategory = "snow"
	SubStrongWind SubCategory = "strong-wind"
)

// severityWeights holds cumulative sampling weights; minor is the remainder.
type severityWeights struct {
	severe   float64
	moderate float64
}

// Per-type weight tables. Draws are compared severe first, then moderate,
// so e.g. a delay draw < 0.10 is severe, < 0.70 moderate, else minor.
var (
	conflictWeights = map[models.ConflictType]severityWeights{
		models.ConflictDelay:           {severe: 0.10, moderate: 0.60},
		models.ConflictStoppedIncident: {severe: 0.30, moderate: 0.70},
		models.ConflictServiceStopped:  {severe: 1.00},
		models.ConflictCongestion:      {moderate: 0.40},
	}

	winterWeights = severityWeights{severe: 0.20, moderate: 0.50}

	weatherWeights = map[SubCategory]severityWeights{
		SubFog:        {},
		SubRain:       {moderate: 1.00},
		SubSnow:       {moderate: 1.00},
		SubStrongWind: {severe: 1.00},
	}
)

// Classifier samples alert severities from fixed per-type weight tables.
type Classifier struct {
	rand Rand
}

// NewClassifier constructs a classifier. A nil source falls back to a
// time-seeded generator.
func NewClassifier(source Rand) *Classifier {
	if source == nil {
		source = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Classifier{rand: source}
}

// Classify returns a severity for the conflict type, refined by sub-category
// for weather and winter speed restrictions. One uniform draw per call; no
// side effects.
func (c *Classifier) Classify(conflict models.ConflictType, sub SubCategory) models.Severity {
	weights := c.lookupWeights(conflict, sub)
	draw := c.rand.Float64()
	switch {
	case draw < weights.severe:
		return models.SeveritySevere
	case draw < weights.severe+weights.moderate:
		return models.SeverityModerate
	default:
		return models.SeverityMinor
	}
}

func (c *Classifier) lookupWeights(conflict models.ConflictType, sub SubCategory) severityWeights {
	switch conflict {
	case models.ConflictWeather:
		if w, ok := weatherWeights[sub]; ok {
			return w
		}
		return severityWeights{moderate: 1.00}
	case models.ConflictSpeedRestriction:
		if sub == SubWinter {
			return winterWeights
		}
		// Plain over-speed detections are informational.
		return severityWeights{}
	default:
		if w, ok := conflictWeights[conflict]; ok {
			return w
		}
		return severityWeights{moderate: 1.00}
	}
}
