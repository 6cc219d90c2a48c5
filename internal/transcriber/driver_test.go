package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lumen-academy/backend/internal/models"
)

func TestTranscribeSuccess(t *testing.T) {
	var gotReq transcribeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcribe" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transcripts": []Result{
				{Language: "en", Text: "hello world", Confidence: 0.94, Provider: "whisper"},
			},
		})
	}))
	defer srv.Close()

	d := New(srv.URL, "", time.Minute, nil)
	results, err := d.Transcribe(context.Background(), "videos/abc/original.mp4", nil)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(gotReq.Languages) != 1 || gotReq.Languages[0] != "en" {
		t.Errorf("languages = %v, want default [en]", gotReq.Languages)
	}
	if len(results) != 1 || results[0].Text != "hello world" {
		t.Errorf("results = %#v", results)
	}
}

func TestTranscribeEmptyTranscripts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transcripts": []}`))
	}))
	defer srv.Close()

	d := New(srv.URL, "", time.Minute, nil)
	_, err := d.Transcribe(context.Background(), "src", []string{"en"})
	if models.ErrorCode(err) != models.CodeAudioUnreadable {
		t.Errorf("err = %v, want audio unreadable", err)
	}
}

func TestTranscribeErrorMapping(t *testing.T) {
	cases := []struct {
		status    int
		code      string
		wantCode  string
		retryable bool
	}{
		{http.StatusNotFound, "", models.CodeAudioUnreadable, false},
		{http.StatusUnprocessableEntity, "language_not_supported", models.CodeLanguageNotSupported, false},
		{http.StatusUnprocessableEntity, "", models.CodeAudioUnreadable, false},
		{http.StatusServiceUnavailable, "", models.CodeTranscriberUnavailable, true},
		{http.StatusBadGateway, "", models.CodeTranscriberUnavailable, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": tc.code, "message": "boom"})
		}))

		d := New(srv.URL, "", time.Minute, nil)
		_, err := d.Transcribe(context.Background(), "src", []string{"en"})
		if models.ErrorCode(err) != tc.wantCode {
			t.Errorf("status %d code %q: got %q, want %q", tc.status, tc.code, models.ErrorCode(err), tc.wantCode)
		}
		if models.IsRetryable(err) != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, models.IsRetryable(err), tc.retryable)
		}
		srv.Close()
	}
}
