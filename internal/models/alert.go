package models

import "time"

// ConflictType enumerates detectable anomaly categories.
type ConflictType string

const (
	ConflictDelay            ConflictType = "delay"
	ConflictStoppedIncident  ConflictType = "stopped-incident"
	ConflictServiceStopped   ConflictType = "service-stopped"
	ConflictWeather          ConflictType = "weather"
	ConflictCongestion       ConflictType = "congestion"
	ConflictSpeedRestriction ConflictType = "speed-restriction"
)

// Severity captures alert impact levels.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// SeverityRank orders severities for filtering and batch sorting
// (minor < moderate < severe).
func SeverityRank(sev Severity) int {
	switch sev {
	case SeveritySevere:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a severity string onto the enum; unknown values yield
// the empty severity (rank 0), which filters reject nothing against.
func ParseSeverity(value string) Severity {
	switch Severity(value) {
	case SeverityMinor, SeverityModerate, SeveritySevere:
		return Severity(value)
	default:
		return ""
	}
}

// AlertCandidate is a detected but not yet resolved anomaly. The asset is
// referenced by id only; the scanner does not own snapshot records.
// Severity is assigned exactly once at detection time.
type AlertCandidate struct {
	AssetID     string
	Type        ConflictType
	Description string
	Severity    Severity
	DetectedAt  time.Time
}

// ResolutionSource records how an alert's remedial action was chosen.
type ResolutionSource string

const (
	SourceSimilarityMatch  ResolutionSource = "similarity-match"
	SourceTemplateFallback ResolutionSource = "template-fallback"
)

// VectorMatch is one nearest-neighbour hit from the precedent index.
// Result sets are ordered descending by score; only the best match gates
// confidence but the full count is retained for explainability.
type VectorMatch struct {
	Score      float64
	Resolution string
	IncidentID string
}

// ResolvedAlert is an AlertCandidate plus its chosen resolution and the
// originating asset's display attributes copied by value.
type ResolvedAlert struct {
	ID                   string
	AssetID              string
	AssetName            string
	Route                string
	Operator             string
	Position             Position
	Type                 ConflictType
	Description          string
	Severity             Severity
	Resolution           string
	ResolutionSource     ResolutionSource
	Confidence           float64
	PrecedentsConsidered int
	DetectedAt           time.Time
}

// Stats aggregates a batch. Severity counts are explicit fields so batches
// copy across the cache boundary without shared maps.
type Stats struct {
	AssetsScanned      int
	MalformedSkipped   int
	SevereCount        int
	ModerateCount      int
	MinorCount         int
	SimilarityResolved int
	AvgSimilarityScore float64
}

// AlertBatch is the ordered output of one orchestrator run: severe before
// moderate before minor, ties broken newest-first.
type AlertBatch struct {
	Alerts []ResolvedAlert
	Stats  Stats
}

// Clone returns a deep enough copy for handing across the cache boundary;
// alert values contain no shared references.
func (b AlertBatch) Clone() AlertBatch {
	return AlertBatch{
		Alerts: append([]ResolvedAlert(nil), b.Alerts...),
		Stats:  b.Stats,
	}
}
