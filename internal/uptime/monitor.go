package uptime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/metrics"
	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/internal/playback"
)

const (
	// DefaultInterval between probes.
	DefaultInterval = time.Minute
	// DefaultWindowProbes is the trailing window for the rolling
	// percentage (24h at one probe per minute).
	DefaultWindowProbes = 1440
	// DefaultWarningThreshold and DefaultCriticalThreshold are rolling
	// uptime percentages.
	DefaultWarningThreshold  = 99.5
	DefaultCriticalThreshold = 99.0

	warningFailureStreak  = 3
	criticalFailureStreak = 5
	resolveHealthyStreak  = 5

	fetchTimeout = 10 * time.Second
)

// ProbeStore is the persistence surface the monitor needs.
type ProbeStore interface {
	RecordProbe(ctx context.Context, p *models.UptimeProbe) error
	SetProbeUptime(ctx context.Context, id uuid.UUID, pct float64) error
	RollingUptime(ctx context.Context, windowProbes int) (float64, error)
	ConsecutiveFailures(ctx context.Context) (int, error)
	ConsecutiveSuccesses(ctx context.Context) (int, error)
	OpenAlert(ctx context.Context) (*models.UptimeAlert, error)
	CreateAlert(ctx context.Context, a *models.UptimeAlert) error
	EscalateAlert(ctx context.Context, a *models.UptimeAlert) error
	ResolveAlerts(ctx context.Context) (int64, error)
	UpsertHourlyStatistics(ctx context.Context, ts time.Time) error
}

// Resolver is the playback surface the probe exercises.
type Resolver interface {
	Resolve(ctx context.Context, videoID uuid.UUID, userID *uuid.UUID, withTranscript bool) (*playback.Info, error)
}

// ReferencePicker supplies a fallback reference video when none is
// configured.
type ReferencePicker interface {
	LatestReady(ctx context.Context) (*models.Video, error)
}

// Doer issues the manifest fetch.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds monitor settings.
type Config struct {
	Interval          time.Duration
	WindowProbes      int
	WarningThreshold  float64
	CriticalThreshold float64
	ReferenceVideoID  uuid.UUID // zero value falls back to the latest ready video
}

// Monitor runs the end-to-end playback probe loop.
type Monitor struct {
	store    ProbeStore
	resolver Resolver
	picker   ReferencePicker
	client   Doer
	cfg      Config
	logger   *zap.Logger
}

// New creates a monitor. client may be nil to use a default HTTP client.
func New(store ProbeStore, resolver Resolver, picker ReferencePicker, client Doer, cfg Config, logger *zap.Logger) *Monitor {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.WindowProbes <= 0 {
		cfg.WindowProbes = DefaultWindowProbes
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = DefaultWarningThreshold
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultCriticalThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{store: store, resolver: resolver, picker: picker, client: client, cfg: cfg, logger: logger}
}

// Run probes once per interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.logger.Info("uptime monitor started", zap.Duration("interval", m.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("uptime monitor stopped")
			return
		case <-ticker.C:
			if err := m.Probe(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("probe cycle failed", zap.Error(err))
			}
		}
	}
}

// Probe runs one end-to-end check: resolve playback for the reference
// video, fetch the signed manifest, record the result, and drive the
// alert state machine.
func (m *Monitor) Probe(ctx context.Context) error {
	videoID, ok, err := m.referenceVideo(ctx)
	if err != nil {
		return err
	}
	if !ok {
		// Nothing is ready yet; there is no playback path to measure.
		m.logger.Debug("no reference video, skipping probe")
		return nil
	}

	start := time.Now()
	checkErr := m.check(ctx, videoID)
	p := &models.UptimeProbe{
		IsHealthy:       checkErr == nil,
		CheckDurationMs: time.Since(start).Milliseconds(),
	}
	if checkErr != nil {
		p.ErrorMessage = checkErr.Error()
	}
	if err := m.store.RecordProbe(ctx, p); err != nil {
		return err
	}

	uptime, err := m.store.RollingUptime(ctx, m.cfg.WindowProbes)
	if err != nil {
		return err
	}
	if err := m.store.SetProbeUptime(ctx, p.ID, uptime); err != nil {
		m.logger.Warn("backfill probe uptime failed", zap.Error(err))
	}
	metrics.RollingUptime.Set(uptime)

	if p.IsHealthy {
		metrics.ProbeResults.WithLabelValues("healthy").Inc()
	} else {
		metrics.ProbeResults.WithLabelValues("unhealthy").Inc()
		m.logger.Warn("probe unhealthy",
			zap.String("video_id", videoID.String()),
			zap.String("error", p.ErrorMessage),
			zap.Float64("rolling_uptime", uptime))
	}

	if err := m.updateAlerts(ctx, p, uptime); err != nil {
		return err
	}
	if err := m.store.UpsertHourlyStatistics(ctx, p.Timestamp); err != nil {
		m.logger.Warn("hourly statistics update failed", zap.Error(err))
	}
	return nil
}

func (m *Monitor) referenceVideo(ctx context.Context) (uuid.UUID, bool, error) {
	if m.cfg.ReferenceVideoID != uuid.Nil {
		return m.cfg.ReferenceVideoID, true, nil
	}
	v, err := m.picker.LatestReady(ctx)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("pick reference video: %w", err)
	}
	if v == nil {
		return uuid.Nil, false, nil
	}
	return v.ID, true, nil
}

// check resolves playback and fetches the signed manifest. Any step
// failing marks the probe unhealthy.
func (m *Monitor) check(ctx context.Context, videoID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	info, err := m.resolver.Resolve(ctx, videoID, nil, false)
	if err != nil {
		return fmt.Errorf("resolve playback: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.ManifestURL, nil)
	if err != nil {
		return fmt.Errorf("build manifest request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch manifest: status %d", resp.StatusCode)
	}
	return nil
}

// updateAlerts applies the threshold rules after each probe.
func (m *Monitor) updateAlerts(ctx context.Context, p *models.UptimeProbe, uptime float64) error {
	if p.IsHealthy {
		// Resolution requires both a sustained healthy streak and the
		// rolling percentage back above the warning threshold; the
		// streak comes from the probe table so it survives restarts.
		streak, err := m.store.ConsecutiveSuccesses(ctx)
		if err != nil {
			return err
		}
		if streak >= resolveHealthyStreak && uptime >= m.cfg.WarningThreshold {
			resolved, err := m.store.ResolveAlerts(ctx)
			if err != nil {
				return err
			}
			if resolved > 0 {
				m.logger.Info("alerts resolved", zap.Int64("count", resolved), zap.Float64("rolling_uptime", uptime))
			}
		}
		return nil
	}

	fails, err := m.store.ConsecutiveFailures(ctx)
	if err != nil {
		return err
	}
	severity := ""
	switch {
	case fails >= criticalFailureStreak || uptime < m.cfg.CriticalThreshold:
		severity = models.AlertSeverityCritical
	case fails >= warningFailureStreak || uptime < m.cfg.WarningThreshold:
		severity = models.AlertSeverityWarning
	}
	if severity == "" {
		return nil
	}

	alert := &models.UptimeAlert{
		Severity:            severity,
		Message:             fmt.Sprintf("playback probe failing: %s", p.ErrorMessage),
		UptimePercentage:    uptime,
		ConsecutiveFailures: fails,
	}

	open, err := m.store.OpenAlert(ctx)
	if err != nil {
		return err
	}
	if open == nil {
		if err := m.store.CreateAlert(ctx, alert); err != nil {
			return err
		}
		m.logger.Error("uptime alert raised",
			zap.String("severity", severity),
			zap.Int("consecutive_failures", fails),
			zap.Float64("rolling_uptime", uptime))
		return nil
	}
	if open.Severity == models.AlertSeverityWarning && severity == models.AlertSeverityCritical {
		alert.ID = open.ID
		if err := m.store.EscalateAlert(ctx, alert); err != nil {
			return err
		}
		m.logger.Error("uptime alert escalated to CRITICAL",
			zap.Int("consecutive_failures", fails),
			zap.Float64("rolling_uptime", uptime))
	}
	return nil
}
