package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transcoder unavailable", TranscoderUnavailable(errors.New("503")), true},
		{"storage io", StorageIO(errors.New("timeout")), true},
		{"timeout", DriverTimeout("transcode", errors.New("deadline")), true},
		{"unsupported codec", UnsupportedCodec("vp3"), false},
		{"source unreadable", SourceUnreadable("object missing"), false},
		{"language not supported", LanguageNotSupported("xx"), false},
		{"superseded", Superseded(), false},
		{"unknown error treated retryable", errors.New("connection reset"), true},
		{"wrapped pipeline error", fmt.Errorf("run job: %w", UnsupportedCodec("vp3")), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	if got := ErrorCode(UnsupportedCodec("vp3")); got != CodeUnsupportedCodec {
		t.Errorf("ErrorCode = %q, want %q", got, CodeUnsupportedCodec)
	}
	if got := ErrorCode(fmt.Errorf("wrap: %w", Superseded())); got != CodeSuperseded {
		t.Errorf("ErrorCode through wrap = %q, want %q", got, CodeSuperseded)
	}
	if got := ErrorCode(errors.New("plain")); got != CodeInternal {
		t.Errorf("ErrorCode for plain error = %q, want %q", got, CodeInternal)
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := StorageIO(inner)
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match errors.Is")
	}
}
