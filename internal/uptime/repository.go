// Package uptime probes the playback path end to end and raises
// alerts when availability degrades.
package uptime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumen-academy/backend/internal/models"
)

// Repository persists probes, alerts, and hourly aggregates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an uptime repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordProbe appends one probe result.
func (r *Repository) RecordProbe(ctx context.Context, p *models.UptimeProbe) error {
	const q = `INSERT INTO uptime_monitoring (is_healthy, error_message, check_duration_ms, uptime_percentage)
		VALUES ($1, NULLIF($2,''), $3, $4)
		RETURNING id, timestamp`
	err := r.pool.QueryRow(ctx, q, p.IsHealthy, p.ErrorMessage, p.CheckDurationMs, p.UptimePercentage).
		Scan(&p.ID, &p.Timestamp)
	if err != nil {
		return fmt.Errorf("record probe: %w", err)
	}
	return nil
}

// SetProbeUptime backfills the rolling percentage once the probe is
// part of the window.
func (r *Repository) SetProbeUptime(ctx context.Context, id uuid.UUID, pct float64) error {
	const q = `UPDATE uptime_monitoring SET uptime_percentage = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, id, pct); err != nil {
		return fmt.Errorf("set probe uptime: %w", err)
	}
	return nil
}

// RollingUptime computes the healthy percentage over the latest
// windowProbes probes. An empty table reads as 100%.
func (r *Repository) RollingUptime(ctx context.Context, windowProbes int) (float64, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE is_healthy)
		FROM (SELECT is_healthy FROM uptime_monitoring ORDER BY timestamp DESC LIMIT $1) w`
	var total, healthy int
	if err := r.pool.QueryRow(ctx, q, windowProbes).Scan(&total, &healthy); err != nil {
		return 0, fmt.Errorf("rolling uptime: %w", err)
	}
	if total == 0 {
		return 100, nil
	}
	return float64(healthy) * 100 / float64(total), nil
}

// ConsecutiveFailures counts unhealthy probes since the last healthy
// one.
func (r *Repository) ConsecutiveFailures(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM uptime_monitoring
		WHERE timestamp > COALESCE(
			(SELECT MAX(timestamp) FROM uptime_monitoring WHERE is_healthy),
			'-infinity'::timestamptz)
		AND NOT is_healthy`
	var n int
	if err := r.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("consecutive failures: %w", err)
	}
	return n, nil
}

// ConsecutiveSuccesses counts healthy probes since the last unhealthy
// one. Deriving the streak from the table keeps alert resolution
// correct across monitor restarts.
func (r *Repository) ConsecutiveSuccesses(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM uptime_monitoring
		WHERE timestamp > COALESCE(
			(SELECT MAX(timestamp) FROM uptime_monitoring WHERE NOT is_healthy),
			'-infinity'::timestamptz)
		AND is_healthy`
	var n int
	if err := r.pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("consecutive successes: %w", err)
	}
	return n, nil
}

// OpenAlert returns the unresolved alert, or nil when none is open.
func (r *Repository) OpenAlert(ctx context.Context) (*models.UptimeAlert, error) {
	const q = `SELECT id, severity, message, uptime_percentage, consecutive_failures, resolved, timestamp, resolved_at
		FROM uptime_alerts WHERE NOT resolved ORDER BY timestamp DESC LIMIT 1`
	var a models.UptimeAlert
	err := r.pool.QueryRow(ctx, q).Scan(&a.ID, &a.Severity, &a.Message, &a.UptimePercentage,
		&a.ConsecutiveFailures, &a.Resolved, &a.Timestamp, &a.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open alert: %w", err)
	}
	return &a, nil
}

// CreateAlert opens a new alert.
func (r *Repository) CreateAlert(ctx context.Context, a *models.UptimeAlert) error {
	const q = `INSERT INTO uptime_alerts (severity, message, uptime_percentage, consecutive_failures)
		VALUES ($1, $2, $3, $4) RETURNING id, timestamp`
	err := r.pool.QueryRow(ctx, q, a.Severity, a.Message, a.UptimePercentage, a.ConsecutiveFailures).
		Scan(&a.ID, &a.Timestamp)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// EscalateAlert upgrades an open alert in place.
func (r *Repository) EscalateAlert(ctx context.Context, a *models.UptimeAlert) error {
	const q = `UPDATE uptime_alerts
		SET severity = $2, message = $3, uptime_percentage = $4, consecutive_failures = $5
		WHERE id = $1 AND NOT resolved`
	if _, err := r.pool.Exec(ctx, q, a.ID, a.Severity, a.Message, a.UptimePercentage, a.ConsecutiveFailures); err != nil {
		return fmt.Errorf("escalate alert: %w", err)
	}
	return nil
}

// ResolveAlerts closes every open alert.
func (r *Repository) ResolveAlerts(ctx context.Context) (int64, error) {
	const q = `UPDATE uptime_alerts SET resolved = TRUE, resolved_at = NOW() WHERE NOT resolved`
	tag, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("resolve alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertHourlyStatistics recomputes the aggregate row for the hour
// containing ts from raw probes.
func (r *Repository) UpsertHourlyStatistics(ctx context.Context, ts time.Time) error {
	const q = `INSERT INTO uptime_statistics (hour_bucket, total_probes, failed_probes, avg_duration_ms, uptime_percentage)
		SELECT date_trunc('hour', $1::timestamptz),
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT is_healthy),
			COALESCE(AVG(check_duration_ms), 0),
			CASE WHEN COUNT(*) = 0 THEN 100
				ELSE COUNT(*) FILTER (WHERE is_healthy) * 100.0 / COUNT(*) END
		FROM uptime_monitoring
		WHERE timestamp >= date_trunc('hour', $1::timestamptz)
		AND timestamp < date_trunc('hour', $1::timestamptz) + INTERVAL '1 hour'
		ON CONFLICT (hour_bucket) DO UPDATE SET
			total_probes = EXCLUDED.total_probes,
			failed_probes = EXCLUDED.failed_probes,
			avg_duration_ms = EXCLUDED.avg_duration_ms,
			uptime_percentage = EXCLUDED.uptime_percentage`
	if _, err := r.pool.Exec(ctx, q, ts); err != nil {
		return fmt.Errorf("upsert hourly statistics: %w", err)
	}
	return nil
}

// RecentProbes returns the latest probes, newest first.
func (r *Repository) RecentProbes(ctx context.Context, limit int) ([]models.UptimeProbe, error) {
	const q = `SELECT id, is_healthy, COALESCE(error_message,''), check_duration_ms, uptime_percentage, timestamp
		FROM uptime_monitoring ORDER BY timestamp DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("recent probes: %w", err)
	}
	defer rows.Close()
	var probes []models.UptimeProbe
	for rows.Next() {
		var p models.UptimeProbe
		if err := rows.Scan(&p.ID, &p.IsHealthy, &p.ErrorMessage, &p.CheckDurationMs, &p.UptimePercentage, &p.Timestamp); err != nil {
			return nil, err
		}
		probes = append(probes, p)
	}
	return probes, rows.Err()
}
