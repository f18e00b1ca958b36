package models

import "time"

// AlertFilter captures the caller's view constraints on a batch. Zero values
// disable the corresponding constraint.
type AlertFilter struct {
	MinSeverity Severity
	MaxAge      time.Duration
	Limit       int
}

// AlertsResult is the filtered view of the current batch plus serving state.
type AlertsResult struct {
	Alerts          []ResolvedAlert
	Stats           Stats
	Cached          bool
	CacheAgeSeconds float64
	AssetsScanned   int
	Generation      uint64
}
