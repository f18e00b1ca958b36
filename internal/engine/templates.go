package engine

import "github.com/fleetstack/fleet-sentinel/internal/models"

// resolutionTemplates maps (conflict type, severity) to a remedial action.
// The table is total and the lookup is pure: identical input always yields
// the identical string, which fallback-path golden tests rely on.
var resolutionTemplates = map[models.ConflictType]map[models.Severity]string{
	models.ConflictDelay: {
		models.SeverityMinor:    "Monitor the asset and publish an updated arrival estimate.",
		models.SeverityModerate: "Notify dispatch, adjust downstream schedules and inform passengers.",
		models.SeveritySevere:   "Escalate to operations control and arrange replacement capacity.",
	},
	models.ConflictStoppedIncident: {
		models.SeverityMinor:    "Contact the operator to confirm the stop is planned.",
		models.SeverityModerate: "Dispatch a field inspection and prepare passenger rerouting.",
		models.SeveritySevere:   "Trigger the incident response plan and send emergency assistance.",
	},
	models.ConflictServiceStopped: {
		models.SeverityMinor:    "Confirm the service suspension with the operator control desk.",
		models.SeverityModerate: "Publish a service suspension notice and activate alternate routes.",
		models.SeveritySevere:   "Activate full service disruption protocol and bridge replacement transport.",
	},
	models.ConflictWeather: {
		models.SeverityMinor:    "Advise reduced visibility caution along the affected corridor.",
		models.SeverityModerate: "Apply weather speed limits and increase headway on the affected routes.",
		models.SeveritySevere:   "Suspend exposed segments until the weather warning is lifted.",
	},
	models.ConflictCongestion: {
		models.SeverityMinor:    "Hold schedule and let the congestion clear naturally.",
		models.SeverityModerate: "Meter departures on the corridor and inform connecting services.",
		models.SeveritySevere:   "Reroute traffic away from the congested corridor immediately.",
	},
	models.ConflictSpeedRestriction: {
		models.SeverityMinor:    "Log the over-speed observation and remind the operator of the limit.",
		models.SeverityModerate: "Issue a corridor-wide speed restriction advisory to all operators.",
		models.SeveritySevere:   "Enforce the restriction and require operator acknowledgement before release.",
	},
}

// TemplateResolution returns the static remedial action for the pair.
func TemplateResolution(conflict models.ConflictType, severity models.Severity) string {
	if bySeverity, ok := resolutionTemplates[conflict]; ok {
		if text, ok := bySeverity[severity]; ok {
			return text
		}
	}
	return "Review the anomaly manually and record the chosen remediation."
}
