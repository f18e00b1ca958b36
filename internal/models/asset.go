package models

// AssetStatus enumerates operational states reported by the telemetry feed.
type AssetStatus string

const (
	StatusOnTime  AssetStatus = "on-time"
	StatusDelayed AssetStatus = "delayed"
	StatusStopped AssetStatus = "stopped"
	StatusUnknown AssetStatus = "unknown"
)

// Position is a WGS84 coordinate pair.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AssetSnapshot is one tracked asset as supplied by the telemetry feed.
// Snapshots are created once per refresh cycle and are read-only to the
// pipeline; alerts copy the display fields they need rather than holding a
// reference into a snapshot that will be replaced wholesale.
type AssetSnapshot struct {
	ID       string
	Name     string
	Route    string
	Operator string
	SpeedKmh *float64
	Status   AssetStatus
	Position Position
}

// ParseAssetStatus maps feed status strings onto the enum, defaulting to
// StatusUnknown for anything unrecognised.
func ParseAssetStatus(value string) AssetStatus {
	switch AssetStatus(value) {
	case StatusOnTime, StatusDelayed, StatusStopped:
		return AssetStatus(value)
	default:
		return StatusUnknown
	}
}
