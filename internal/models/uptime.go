package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert severities.
const (
	AlertSeverityWarning  = "WARNING"
	AlertSeverityCritical = "CRITICAL"
)

// UptimeProbe is one end-to-end playback check. Append-only.
type UptimeProbe struct {
	ID               uuid.UUID `json:"id"`
	IsHealthy        bool      `json:"is_healthy"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CheckDurationMs  int64     `json:"check_duration_ms"`
	UptimePercentage float64   `json:"uptime_percentage"` // rolling, trailing window at probe time
	Timestamp        time.Time `json:"timestamp"`
}

// UptimeAlert is raised on a threshold crossing and resolved after
// five consecutive healthy probes.
type UptimeAlert struct {
	ID                  uuid.UUID  `json:"id"`
	Severity            string     `json:"severity"`
	Message             string     `json:"message"`
	UptimePercentage    float64    `json:"uptime_percentage"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Resolved            bool       `json:"resolved"`
	Timestamp           time.Time  `json:"timestamp"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
}

// UptimeStatistic is an hourly aggregate of probe results.
type UptimeStatistic struct {
	ID               uuid.UUID `json:"id"`
	HourBucket       time.Time `json:"hour_bucket"`
	TotalProbes      int       `json:"total_probes"`
	FailedProbes     int       `json:"failed_probes"`
	AvgDurationMs    float64   `json:"avg_duration_ms"`
	UptimePercentage float64   `json:"uptime_percentage"`
}
