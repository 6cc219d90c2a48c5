package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/models"
	"github.com/lumen-academy/backend/internal/transcoder"
	"github.com/lumen-academy/backend/internal/transcriber"
)

type mockQueue struct {
	completed map[uuid.UUID]any
	failed    map[uuid.UUID]string
	retryable map[uuid.UUID]bool
	requeue   bool // Fail returns the job back in queued state
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		completed: map[uuid.UUID]any{},
		failed:    map[uuid.UUID]string{},
		retryable: map[uuid.UUID]bool{},
	}
}

func (m *mockQueue) Lease(context.Context, []models.TaskType, string) (*models.ProcessingJob, error) {
	return nil, nil
}

func (m *mockQueue) Complete(_ context.Context, jobID uuid.UUID, result any) error {
	m.completed[jobID] = result
	return nil
}

func (m *mockQueue) Fail(_ context.Context, jobID uuid.UUID, errMsg string, retryable bool) (*models.ProcessingJob, error) {
	m.failed[jobID] = errMsg
	m.retryable[jobID] = retryable
	status := models.JobStatusFailed
	if m.requeue {
		status = models.JobStatusQueued
	}
	return &models.ProcessingJob{ID: jobID, Status: status}, nil
}

func (m *mockQueue) Subscribe(context.Context) <-chan struct{} {
	return make(chan struct{})
}

type mockVideos struct {
	video        *models.Video
	attempt      int
	attemptNext  *int // returned from the second CurrentAttempt call on
	attemptCalls int
	readyCalled  bool
	readyMoved   bool
	failedCalled bool
	failedMsg    string
}

func (m *mockVideos) GetByID(context.Context, uuid.UUID) (*models.Video, error) {
	return m.video, nil
}

func (m *mockVideos) CurrentAttempt(context.Context, uuid.UUID) (int, string, error) {
	m.attemptCalls++
	if m.attemptCalls > 1 && m.attemptNext != nil {
		return *m.attemptNext, m.video.Status, nil
	}
	return m.attempt, m.video.Status, nil
}

func (m *mockVideos) MarkReady(context.Context, uuid.UUID) (bool, error) {
	m.readyCalled = true
	return m.readyMoved, nil
}

func (m *mockVideos) MarkFailed(_ context.Context, _ uuid.UUID, msg string) (bool, error) {
	m.failedCalled = true
	m.failedMsg = msg
	return true, nil
}

type mockTranscripts struct {
	stored []models.Transcript
}

func (m *mockTranscripts) Upsert(_ context.Context, t *models.Transcript) error {
	m.stored = append(m.stored, *t)
	return nil
}

type putRecord struct {
	key         string
	contentType string
	body        []byte
}

type mockObjects struct {
	puts   []putRecord
	putErr error
}

func (m *mockObjects) Put(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	if m.putErr != nil {
		return m.putErr
	}
	raw, _ := io.ReadAll(body)
	m.puts = append(m.puts, putRecord{key: key, contentType: contentType, body: raw})
	return nil
}

type mockTranscoder struct {
	result    *transcoder.Result
	thumbKey  string
	err       error
	calls     int
	thumbErr  error
	thumbCall int
}

func (m *mockTranscoder) Transcode(context.Context, string, string, []string) (*transcoder.Result, error) {
	m.calls++
	return m.result, m.err
}

func (m *mockTranscoder) Thumbnail(context.Context, string, string) (string, error) {
	m.thumbCall++
	return m.thumbKey, m.thumbErr
}

type mockTranscriber struct {
	results []transcriber.Result
	err     error
}

func (m *mockTranscriber) Transcribe(context.Context, string, []string) ([]transcriber.Result, error) {
	return m.results, m.err
}

type mockNotifier struct {
	available int
	failed    int
}

func (m *mockNotifier) VideoAvailable(context.Context, uuid.UUID, uuid.UUID) error {
	m.available++
	return nil
}

func (m *mockNotifier) VideoFailed(context.Context, uuid.UUID, uuid.UUID, string) error {
	m.failed++
	return nil
}

type fixture struct {
	orch        *Orchestrator
	queue       *mockQueue
	videos      *mockVideos
	transcripts *mockTranscripts
	objects     *mockObjects
	transcoder  *mockTranscoder
	transcriber *mockTranscriber
	notifier    *mockNotifier
}

func newFixture() *fixture {
	f := &fixture{
		queue:       newMockQueue(),
		videos:      &mockVideos{attempt: 1, video: &models.Video{ID: uuid.New(), LessonID: uuid.New(), Status: models.VideoStatusProcessing}},
		transcripts: &mockTranscripts{},
		objects:     &mockObjects{},
		transcoder:  &mockTranscoder{},
		transcriber: &mockTranscriber{},
		notifier:    &mockNotifier{},
	}
	f.orch = New(f.queue, f.videos, f.transcripts, f.objects, f.transcoder, f.transcriber, f.notifier, Config{Workers: 1}, zap.NewNop())
	return f
}

func makeJob(t *testing.T, task models.TaskType, payload any) *models.ProcessingJob {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &models.ProcessingJob{
		ID:       uuid.New(),
		VideoID:  uuid.New(),
		TaskType: task,
		Status:   models.JobStatusRunning,
		Payload:  raw,
	}
}

func TestProcessThumbnailSuccess(t *testing.T) {
	f := newFixture()
	f.transcoder.thumbKey = "videos/abc/thumb.jpg"
	job := makeJob(t, models.TaskThumbnail, models.ThumbnailPayload{Attempt: 1, SourceKey: "src", TargetKey: "dst"})

	f.orch.process(context.Background(), zap.NewNop(), job)

	result, ok := f.queue.completed[job.ID].(models.ThumbnailResult)
	if !ok {
		t.Fatalf("expected thumbnail result recorded, got %#v", f.queue.completed[job.ID])
	}
	if result.ThumbnailKey != "videos/abc/thumb.jpg" {
		t.Errorf("thumbnail key = %q", result.ThumbnailKey)
	}
	if !f.videos.readyCalled {
		t.Error("expected a ready attempt after a required task succeeded")
	}
}

func TestProcessTranscodeSuccessMarksReady(t *testing.T) {
	f := newFixture()
	f.videos.readyMoved = true
	f.transcoder.result = &transcoder.Result{
		ManifestKey:     "videos/abc/hls/index.m3u8",
		DurationSeconds: 120,
		Width:           1920,
		Height:          1080,
		Codec:           "h264",
	}
	job := makeJob(t, models.TaskTranscode, models.TranscodePayload{Attempt: 1, SourceKey: "src", TargetPrefix: "videos/abc/hls/"})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if _, ok := f.queue.completed[job.ID]; !ok {
		t.Fatal("expected transcode completion recorded")
	}
	if f.notifier.available != 1 {
		t.Errorf("video_available notifications = %d, want 1", f.notifier.available)
	}
}

func TestProcessSupersededBeforeStart(t *testing.T) {
	f := newFixture()
	f.videos.attempt = 2
	job := makeJob(t, models.TaskTranscode, models.TranscodePayload{Attempt: 1, SourceKey: "src"})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if f.transcoder.calls != 0 {
		t.Error("driver must not run for a superseded job")
	}
	if f.queue.failed[job.ID] != models.CodeSuperseded {
		t.Errorf("fail reason = %q, want %q", f.queue.failed[job.ID], models.CodeSuperseded)
	}
	if f.queue.retryable[job.ID] {
		t.Error("superseded jobs must not retry")
	}
	if f.videos.failedCalled {
		t.Error("superseded jobs must not fail the video")
	}
}

func TestProcessRetryableFailureDoesNotFailVideo(t *testing.T) {
	f := newFixture()
	f.queue.requeue = true
	f.transcoder.err = models.TranscoderUnavailable(errors.New("503"))
	job := makeJob(t, models.TaskTranscode, models.TranscodePayload{Attempt: 1, SourceKey: "src"})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if !f.queue.retryable[job.ID] {
		t.Error("expected retryable failure")
	}
	if f.videos.failedCalled {
		t.Error("video must stay processing while retries remain")
	}
}

func TestProcessTerminalFailureFailsVideo(t *testing.T) {
	f := newFixture()
	f.transcoder.err = models.UnsupportedCodec("vp3")
	job := makeJob(t, models.TaskTranscode, models.TranscodePayload{Attempt: 1, SourceKey: "src"})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if f.queue.retryable[job.ID] {
		t.Error("unsupported codec must not retry")
	}
	if !f.videos.failedCalled {
		t.Error("terminal failure of a required task must fail the video")
	}
	if f.notifier.failed != 1 {
		t.Errorf("video_failed notifications = %d, want 1", f.notifier.failed)
	}
}

func TestProcessTranscribeFailureLeavesVideoAlone(t *testing.T) {
	f := newFixture()
	f.transcriber.err = models.LanguageNotSupported("xx")
	job := makeJob(t, models.TaskTranscribe, models.TranscribePayload{Attempt: 1, SourceKey: "src", Languages: []string{"xx"}})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if f.videos.failedCalled {
		t.Error("transcription failures must never fail the video")
	}
	if f.notifier.failed != 0 {
		t.Error("no failure notification for best-effort tasks")
	}
}

func TestProcessTranscribeStoresTranscripts(t *testing.T) {
	f := newFixture()
	f.transcriber.results = []transcriber.Result{
		{Language: "en", Text: "hello", Confidence: 0.93, Provider: "whisper"},
		{Language: "es", Text: "hola", Confidence: 0.88, Provider: "whisper"},
	}
	job := makeJob(t, models.TaskTranscribe, models.TranscribePayload{Attempt: 1, SourceKey: "src", Languages: []string{"en", "es"}})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if len(f.transcripts.stored) != 2 {
		t.Fatalf("stored transcripts = %d, want 2", len(f.transcripts.stored))
	}
	result, ok := f.queue.completed[job.ID].(models.TranscribeResult)
	if !ok {
		t.Fatalf("expected transcribe result recorded, got %#v", f.queue.completed[job.ID])
	}
	if len(result.Languages) != 2 {
		t.Errorf("result languages = %v", result.Languages)
	}
	if f.videos.readyCalled {
		t.Error("transcription must not gate readiness")
	}
}

func TestProcessTranscribeUploadsCaptions(t *testing.T) {
	f := newFixture()
	f.videos.video.DurationSeconds = 90
	f.transcriber.results = []transcriber.Result{
		{Language: "en", Text: "hello", Confidence: 0.93, Provider: "whisper"},
	}
	job := makeJob(t, models.TaskTranscribe, models.TranscribePayload{Attempt: 1, SourceKey: "src", Languages: []string{"en"}})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if len(f.objects.puts) != 1 {
		t.Fatalf("caption uploads = %d, want 1", len(f.objects.puts))
	}
	put := f.objects.puts[0]
	if want := "videos/" + job.VideoID.String() + "/captions/en.vtt"; put.key != want {
		t.Errorf("caption key = %q, want %q", put.key, want)
	}
	if put.contentType != "text/vtt" {
		t.Errorf("content type = %q, want text/vtt", put.contentType)
	}
	doc := string(put.body)
	if !strings.HasPrefix(doc, "WEBVTT\n") {
		t.Errorf("caption document missing WEBVTT header: %q", doc)
	}
	if !strings.Contains(doc, "00:00:00.000 --> 00:01:30.000") {
		t.Errorf("caption cue timing wrong: %q", doc)
	}
	if !strings.Contains(doc, "hello") {
		t.Errorf("caption document missing transcript text: %q", doc)
	}
}

func TestProcessTranscribeCaptionUploadFailureStillCompletes(t *testing.T) {
	f := newFixture()
	f.objects.putErr = errors.New("bucket gone")
	f.transcriber.results = []transcriber.Result{{Language: "en", Text: "hello"}}
	job := makeJob(t, models.TaskTranscribe, models.TranscribePayload{Attempt: 1, SourceKey: "src"})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if len(f.transcripts.stored) != 1 {
		t.Fatalf("stored transcripts = %d, want 1", len(f.transcripts.stored))
	}
	if _, ok := f.queue.completed[job.ID]; !ok {
		t.Error("transcript rows landed; the job must still complete")
	}
}

func TestProcessTranscribeSupersededMidRunDiscardsTranscripts(t *testing.T) {
	f := newFixture()
	next := 2
	f.videos.attemptNext = &next
	f.transcriber.results = []transcriber.Result{{Language: "en", Text: "stale", Confidence: 0.9}}
	job := makeJob(t, models.TaskTranscribe, models.TranscribePayload{Attempt: 1, SourceKey: "src", Languages: []string{"en"}})

	f.orch.process(context.Background(), zap.NewNop(), job)

	if len(f.transcripts.stored) != 0 {
		t.Errorf("stored transcripts = %d; a reset mid-run must discard the result", len(f.transcripts.stored))
	}
	if len(f.objects.puts) != 0 {
		t.Error("no captions may be uploaded for a superseded run")
	}
	if f.queue.failed[job.ID] != models.CodeSuperseded {
		t.Errorf("fail reason = %q, want %q", f.queue.failed[job.ID], models.CodeSuperseded)
	}
	if _, ok := f.queue.completed[job.ID]; ok {
		t.Error("superseded jobs must not complete")
	}
}
