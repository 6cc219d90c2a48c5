// Package transcriber wraps the external speech-to-text engine that
// produces per-language transcripts with confidence scores.
package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/models"
)

// DefaultTimeout is the hard timeout for a transcription call.
const DefaultTimeout = 20 * time.Minute

// DefaultLanguages is the preferred language list when the caller has
// no preference.
var DefaultLanguages = []string{"en"}

// Result is one per-language transcription.
type Result struct {
	Language   string  `json:"language"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Provider   string  `json:"provider"`
}

// Driver drives the external transcription engine over HTTP.
type Driver struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *zap.Logger
}

// New creates a transcriber driver.
func New(endpoint, token string, timeout time.Duration, logger *zap.Logger) *Driver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type transcribeRequest struct {
	SourceKey string   `json:"source_key"`
	Languages []string `json:"languages"`
}

type engineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Transcribe returns per-language transcripts for the source audio.
func (d *Driver) Transcribe(ctx context.Context, sourceKey string, languages []string) ([]Result, error) {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	body, err := json.Marshal(transcribeRequest{SourceKey: sourceKey, Languages: languages})
	if err != nil {
		return nil, models.Internal(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v1/transcribe", bytes.NewReader(body))
	if err != nil {
		return nil, models.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.DriverTimeout("transcribe", err)
		}
		return nil, models.TranscriberUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var out struct {
			Transcripts []Result `json:"transcripts"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, models.AudioUnreadable(fmt.Sprintf("malformed engine response: %v", err))
		}
		if len(out.Transcripts) == 0 {
			return nil, models.AudioUnreadable("engine returned no transcripts")
		}
		return out.Transcripts, nil
	}
	return nil, d.mapError(resp)
}

func (d *Driver) mapError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ee engineError
	_ = json.Unmarshal(raw, &ee)
	msg := ee.Message
	if msg == "" {
		msg = fmt.Sprintf("engine returned %d", resp.StatusCode)
	}
	d.logger.Debug("transcriber error",
		zap.Int("status", resp.StatusCode),
		zap.String("code", ee.Code),
		zap.String("message", msg))

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone, http.StatusUnsupportedMediaType:
		return models.AudioUnreadable(msg)
	case http.StatusUnprocessableEntity:
		if ee.Code == "language_not_supported" {
			return models.LanguageNotSupported(msg)
		}
		return models.AudioUnreadable(msg)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return models.TranscriberUnavailable(errors.New(msg))
	default:
		return models.AudioUnreadable(msg)
	}
}
