package worker

import (
	"fmt"
	"math"
	"strings"
)

// captionSpanFallbackSeconds bounds the single caption cue when the
// video duration is not yet known (transcode may still be running).
const captionSpanFallbackSeconds = 24 * 3600

// renderWebVTT renders a plain transcript as a WebVTT document with one
// cue spanning the video. The engine returns no word timings, so the
// whole text is shown for the full duration.
func renderWebVTT(text string, durationSeconds float64) []byte {
	end := durationSeconds
	if end <= 0 {
		end = captionSpanFallbackSeconds
	}

	// Blank lines terminate a cue; collapse them out of the payload.
	lines := make([]string, 0, 8)
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}

	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	b.WriteString(vttTimestamp(0))
	b.WriteString(" --> ")
	b.WriteString(vttTimestamp(end))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	return []byte(b.String())
}

// vttTimestamp formats seconds as hh:mm:ss.mmm.
func vttTimestamp(seconds float64) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}
