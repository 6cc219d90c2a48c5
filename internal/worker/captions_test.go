package worker

import (
	"strings"
	"testing"
)

func TestRenderWebVTT(t *testing.T) {
	doc := string(renderWebVTT("first line\n\nsecond line", 3725.5))
	want := "WEBVTT\n\n00:00:00.000 --> 01:02:05.500\nfirst line\nsecond line\n"
	if doc != want {
		t.Errorf("document = %q, want %q", doc, want)
	}
}

func TestRenderWebVTTUnknownDuration(t *testing.T) {
	doc := string(renderWebVTT("text", 0))
	if !strings.Contains(doc, "00:00:00.000 --> 24:00:00.000") {
		t.Errorf("fallback cue span wrong: %q", doc)
	}
}

func TestVTTTimestamp(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.000"},
		{90, "00:01:30.000"},
		{59.999, "00:00:59.999"},
		{3600, "01:00:00.000"},
		{-3, "00:00:00.000"},
	}
	for _, tc := range cases {
		if got := vttTimestamp(tc.seconds); got != tc.want {
			t.Errorf("vttTimestamp(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
