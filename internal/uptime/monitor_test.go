package uptime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/internal/playback"
)

type memStore struct {
	probes       []models.UptimeProbe
	uptime       float64
	consecFails  int
	open         *models.UptimeAlert
	created      []models.UptimeAlert
	escalated    []models.UptimeAlert
	resolveCalls int
	statsCalls   int
}

func (m *memStore) RecordProbe(_ context.Context, p *models.UptimeProbe) error {
	p.ID = uuid.New()
	p.Timestamp = time.Now()
	m.probes = append(m.probes, *p)
	return nil
}

func (m *memStore) SetProbeUptime(context.Context, uuid.UUID, float64) error { return nil }

func (m *memStore) RollingUptime(context.Context, int) (float64, error) { return m.uptime, nil }

func (m *memStore) ConsecutiveFailures(context.Context) (int, error) { return m.consecFails, nil }

func (m *memStore) ConsecutiveSuccesses(context.Context) (int, error) {
	n := 0
	for i := len(m.probes) - 1; i >= 0; i-- {
		if !m.probes[i].IsHealthy {
			break
		}
		n++
	}
	return n, nil
}

func (m *memStore) OpenAlert(context.Context) (*models.UptimeAlert, error) { return m.open, nil }

func (m *memStore) CreateAlert(_ context.Context, a *models.UptimeAlert) error {
	m.created = append(m.created, *a)
	return nil
}

func (m *memStore) EscalateAlert(_ context.Context, a *models.UptimeAlert) error {
	m.escalated = append(m.escalated, *a)
	return nil
}

func (m *memStore) ResolveAlerts(context.Context) (int64, error) {
	m.resolveCalls++
	return 1, nil
}

func (m *memStore) UpsertHourlyStatistics(context.Context, time.Time) error {
	m.statsCalls++
	return nil
}

type stubResolver struct {
	info *playback.Info
	err  error
}

func (s *stubResolver) Resolve(context.Context, uuid.UUID, *uuid.UUID, bool) (*playback.Info, error) {
	return s.info, s.err
}

type stubPicker struct {
	video *models.Video
}

func (s *stubPicker) LatestReady(context.Context) (*models.Video, error) { return s.video, nil }

type stubDoer struct {
	status int
	err    error
}

func (s *stubDoer) Do(*http.Request) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{StatusCode: s.status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func newTestMonitor(store *memStore, resolver Resolver, doer Doer) *Monitor {
	return New(store, resolver, &stubPicker{video: &models.Video{ID: uuid.New()}}, doer, Config{}, nil)
}

func TestProbeHealthy(t *testing.T) {
	store := &memStore{uptime: 100}
	m := newTestMonitor(store, &stubResolver{info: &playback.Info{ManifestURL: "https://cdn.example.com/index.m3u8"}}, &stubDoer{status: 200})

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(store.probes) != 1 || !store.probes[0].IsHealthy {
		t.Fatalf("probes = %#v", store.probes)
	}
	if len(store.created) != 0 {
		t.Error("healthy probe must not raise alerts")
	}
	if store.statsCalls != 1 {
		t.Error("hourly statistics not updated")
	}
}

func TestProbeUnhealthyOnResolveError(t *testing.T) {
	store := &memStore{uptime: 100, consecFails: 1}
	m := newTestMonitor(store, &stubResolver{err: errors.New("gateway down")}, &stubDoer{status: 200})

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(store.probes) != 1 || store.probes[0].IsHealthy {
		t.Fatalf("probes = %#v", store.probes)
	}
	if store.probes[0].ErrorMessage == "" {
		t.Error("unhealthy probe must carry the failure reason")
	}
	if len(store.created) != 0 {
		t.Error("one failure must not raise an alert")
	}
}

func TestProbeUnhealthyOnBadManifestStatus(t *testing.T) {
	store := &memStore{uptime: 100}
	m := newTestMonitor(store, &stubResolver{info: &playback.Info{ManifestURL: "https://cdn.example.com/index.m3u8"}}, &stubDoer{status: 403})

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if store.probes[0].IsHealthy {
		t.Error("non-200 manifest fetch must be unhealthy")
	}
}

func TestWarningAfterThreeConsecutiveFailures(t *testing.T) {
	store := &memStore{uptime: 99.9, consecFails: 3}
	m := newTestMonitor(store, &stubResolver{err: errors.New("down")}, &stubDoer{})

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(store.created) != 1 || store.created[0].Severity != models.AlertSeverityWarning {
		t.Fatalf("alerts = %#v", store.created)
	}
}

func TestCriticalAfterFiveConsecutiveFailures(t *testing.T) {
	store := &memStore{uptime: 99.9, consecFails: 5}
	m := newTestMonitor(store, &stubResolver{err: errors.New("down")}, &stubDoer{})

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(store.created) != 1 || store.created[0].Severity != models.AlertSeverityCritical {
		t.Fatalf("alerts = %#v", store.created)
	}
}

func TestCriticalOnLowRollingUptime(t *testing.T) {
	store := &memStore{uptime: 98.5, consecFails: 1}
	m := newTestMonitor(store, &stubResolver{err: errors.New("down")}, &stubDoer{})

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(store.created) != 1 || store.created[0].Severity != models.AlertSeverityCritical {
		t.Fatalf("alerts = %#v", store.created)
	}
}

func TestWarningEscalatesToCritical(t *testing.T) {
	store := &memStore{
		uptime:      99.9,
		consecFails: 5,
		open:        &models.UptimeAlert{ID: uuid.New(), Severity: models.AlertSeverityWarning},
	}
	m := newTestMonitor(store, &stubResolver{err: errors.New("down")}, &stubDoer{})

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(store.created) != 0 {
		t.Error("must escalate the open alert, not open another")
	}
	if len(store.escalated) != 1 || store.escalated[0].Severity != models.AlertSeverityCritical {
		t.Fatalf("escalated = %#v", store.escalated)
	}
}

func TestAlertsResolveAfterFiveHealthyProbes(t *testing.T) {
	store := &memStore{uptime: 99.9}
	m := newTestMonitor(store, &stubResolver{info: &playback.Info{ManifestURL: "https://cdn.example.com/index.m3u8"}}, &stubDoer{status: 200})

	for i := 0; i < 4; i++ {
		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("Probe %d: %v", i, err)
		}
	}
	if store.resolveCalls != 0 {
		t.Error("alerts must not resolve before five healthy probes")
	}
	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if store.resolveCalls != 1 {
		t.Errorf("resolve calls = %d, want 1", store.resolveCalls)
	}
}

func TestAlertStaysOpenWhileUptimeBelowThreshold(t *testing.T) {
	store := &memStore{
		uptime: 95,
		open:   &models.UptimeAlert{ID: uuid.New(), Severity: models.AlertSeverityCritical},
	}
	m := newTestMonitor(store, &stubResolver{info: &playback.Info{ManifestURL: "https://cdn.example.com/index.m3u8"}}, &stubDoer{status: 200})

	for i := 0; i < 6; i++ {
		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("Probe %d: %v", i, err)
		}
	}
	if store.resolveCalls != 0 {
		t.Errorf("resolve calls = %d; alert must stay open while rolling uptime is below the warning threshold", store.resolveCalls)
	}
}

func TestHealthyStreakSurvivesRestart(t *testing.T) {
	store := &memStore{uptime: 99.9}
	resolver := &stubResolver{info: &playback.Info{ManifestURL: "https://cdn.example.com/index.m3u8"}}

	first := newTestMonitor(store, resolver, &stubDoer{status: 200})
	for i := 0; i < 4; i++ {
		if err := first.Probe(context.Background()); err != nil {
			t.Fatalf("Probe %d: %v", i, err)
		}
	}

	// A fresh monitor picks the streak up from the probe table.
	second := newTestMonitor(store, resolver, &stubDoer{status: 200})
	if err := second.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if store.resolveCalls != 1 {
		t.Errorf("resolve calls = %d, want 1", store.resolveCalls)
	}
}

func TestProbeSkippedWithoutReferenceVideo(t *testing.T) {
	store := &memStore{}
	m := New(store, &stubResolver{}, &stubPicker{video: nil}, &stubDoer{}, Config{}, nil)

	if err := m.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(store.probes) != 0 {
		t.Error("no probe should be recorded without a playback path")
	}
}
