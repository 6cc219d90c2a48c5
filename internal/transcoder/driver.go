// Package transcoder wraps the external media-processing engine that
// produces HLS renditions, a poster thumbnail, and stream metadata.
package transcoder

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

const (
	// ThumbnailTimeout is the hard timeout for poster frame rendering.
	ThumbnailTimeout = 2 * time.Minute
	// DefaultTimeout is the hard timeout for a full transcode.
	DefaultTimeout = 30 * time.Minute
)

// Result is the engine output for a successful transcode.
type Result struct {
	ManifestKey     string  `json:"manifest_key"`
	ThumbnailKey    string  `json:"thumbnail_key"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
	Codec           string  `json:"codec"`
	SizeBytes       int64   `json:"size_bytes"`
}

// Driver drives the external transcoding engine over HTTP.
type Driver struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *zap.Logger
}

// New creates a transcoder driver. timeout bounds a single engine call;
// zero means DefaultTimeout.
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

type transcodeRequest struct {
	SourceKey    string   `json:"source_key"`
	TargetPrefix string   `json:"target_prefix"`
	Profiles     []string `json:"profiles"`
}

type thumbnailRequest struct {
	SourceKey string `json:"source_key"`
	TargetKey string `json:"target_key"`
}

type engineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Transcode renders HLS renditions under targetPrefix and returns the
// manifest key plus stream metadata.
func (d *Driver) Transcode(ctx context.Context, sourceKey, targetPrefix string, profiles []string) (*Result, error) {
	if len(profiles) == 0 {
		profiles = ProfileNames(DefaultProfiles)
	}
	var res Result
	err := d.post(ctx, "/v1/transcode", transcodeRequest{
		SourceKey:    sourceKey,
		TargetPrefix: targetPrefix,
		Profiles:     profiles,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.ManifestKey == "" || res.DurationSeconds <= 0 {
		return nil, models.EncodingFailure("engine returned incomplete metadata")
	}
	return &res, nil
}

// Thumbnail renders the poster frame to targetKey.
func (d *Driver) Thumbnail(ctx context.Context, sourceKey, targetKey string) (string, error) {
	var res struct {
		ThumbnailKey string `json:"thumbnail_key"`
	}
	ctx, cancel := context.WithTimeout(ctx, ThumbnailTimeout)
	defer cancel()
	err := d.post(ctx, "/v1/thumbnail", thumbnailRequest{
		SourceKey: sourceKey,
		TargetKey: targetKey,
	}, &res)
	if err != nil {
		return "", err
	}
	if res.ThumbnailKey == "" {
		res.ThumbnailKey = targetKey
	}
	return res.ThumbnailKey, nil
}

func (d *Driver) post(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return models.Internal(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return models.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.DriverTimeout("transcode", err)
		}
		return models.TranscoderUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return models.EncodingFailure(fmt.Sprintf("malformed engine response: %v", err))
		}
		return nil
	}
	return d.mapError(resp)
}

// mapError classifies an engine error response into the pipeline
// taxonomy. Only engine unavailability is retryable.
func (d *Driver) mapError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ee engineError
	_ = json.Unmarshal(raw, &ee)
	msg := ee.Message
	if msg == "" {
		msg = fmt.Sprintf("engine returned %d", resp.StatusCode)
	}
	d.logger.Debug("transcoder error",
		zap.Int("status", resp.StatusCode),
		zap.String("code", ee.Code),
		zap.String("message", msg))

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone:
		return models.SourceUnreadable(msg)
	case http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return models.UnsupportedCodec(msg)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return models.TranscoderUnavailable(errors.New(msg))
	default:
		if ee.Code == "source_unreadable" {
			return models.SourceUnreadable(msg)
		}
		return models.EncodingFailure(msg)
	}
}
