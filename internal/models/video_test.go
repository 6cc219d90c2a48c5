package models

import "testing"

func TestValidVideoTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{VideoStatusUploading, VideoStatusProcessing, true},
		{VideoStatusProcessing, VideoStatusReady, true},
		{VideoStatusProcessing, VideoStatusFailed, true},
		{VideoStatusFailed, VideoStatusProcessing, true}, // admin reset
		{VideoStatusUploading, VideoStatusReady, false},
		{VideoStatusReady, VideoStatusProcessing, false},
		{VideoStatusReady, VideoStatusFailed, false},
		{VideoStatusFailed, VideoStatusReady, false},
		{VideoStatusProcessing, VideoStatusUploading, false},
	}
	for _, tc := range cases {
		if got := ValidVideoTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("ValidVideoTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestPayloadAttempt(t *testing.T) {
	j := &ProcessingJob{Payload: []byte(`{"attempt": 3, "source_key": "videos/x/original.mp4"}`)}
	if got := j.PayloadAttempt(); got != 3 {
		t.Errorf("PayloadAttempt = %d, want 3", got)
	}
	j = &ProcessingJob{Payload: []byte(`not json`)}
	if got := j.PayloadAttempt(); got != 0 {
		t.Errorf("PayloadAttempt on bad payload = %d, want 0", got)
	}
}

func TestRequiredTaskTypes(t *testing.T) {
	if TaskTranscribe.IsRequired() {
		t.Error("transcription must not gate readiness")
	}
	if !TaskTranscode.IsRequired() || !TaskThumbnail.IsRequired() {
		t.Error("transcode and thumbnail gate readiness")
	}
}
