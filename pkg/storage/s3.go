package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/lumen-academy/backend/internal/models"
)

const (
	// MaxSignTTL caps every signed read URL.
	MaxSignTTL = time.Hour
	// PlaybackSignTTL is the default TTL for playback URLs.
	PlaybackSignTTL = 15 * time.Minute
)

// Config holds S3 client configuration.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string // optional custom endpoint (e.g. MinIO)
}

// Store provides object storage with signed time-bounded URLs. Keys
// are opaque to callers; use the Key* builders.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	cfg      Config
	logger   *zap.Logger
}

// New creates an S3-backed object store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	} else {
		logger.Warn("object store using default credential chain")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	logger.Info("object store ready", zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
	return &Store{
		client:   client,
		uploader: uploader,
		presign:  s3.NewPresignClient(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Key builders. Callers never construct keys by hand.

// KeyOriginal returns the storage key for the uploaded source:
// videos/{video_id}/original{ext}.
func KeyOriginal(videoID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("videos", videoID, "original"+ext)
}

// KeyThumbnail returns videos/{video_id}/thumb.jpg.
func KeyThumbnail(videoID string) string {
	return path.Join("videos", videoID, "thumb.jpg")
}

// KeyHLSPrefix returns videos/{video_id}/hls/.
func KeyHLSPrefix(videoID string) string {
	return path.Join("videos", videoID, "hls") + "/"
}

// KeyManifest returns videos/{video_id}/hls/index.m3u8.
func KeyManifest(videoID string) string {
	return path.Join("videos", videoID, "hls", "index.m3u8")
}

// KeyCaptions returns videos/{video_id}/captions/{lang}.vtt.
func KeyCaptions(videoID, lang string) string {
	return path.Join("videos", videoID, "captions", lang+".vtt")
}

// Put uploads an object. size may be zero when unknown (streaming).
func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) error {
	var sizePtr *int64
	if size > 0 {
		sizePtr = &size
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: sizePtr,
	})
	if err != nil {
		if apiCode(err) == "EntityTooLarge" || apiCode(err) == "QuotaExceeded" {
			return models.StorageQuotaExceeded(err)
		}
		return models.StorageIO(fmt.Errorf("put %s: %w", key, err))
	}
	return nil
}

// Get returns the object body and content type. Caller closes the body.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", models.StorageNotFound(key)
		}
		return nil, "", models.StorageIO(fmt.Errorf("get %s: %w", key, err))
	}
	ct := ""
	if out.ContentType != nil {
		ct = *out.ContentType
	}
	return out.Body, ct, nil
}

// Head returns object size, or StorageNotFound.
func (s *Store) Head(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, models.StorageNotFound(key)
		}
		return 0, models.StorageIO(fmt.Errorf("head %s: %w", key, err))
	}
	if out.ContentLength != nil {
		return *out.ContentLength, nil
	}
	return 0, nil
}

// SignRead returns a presigned GET URL whose authority to read the
// object expires after ttl (clamped to MaxSignTTL). The object must
// exist.
func (s *Store) SignRead(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxSignTTL {
		ttl = MaxSignTTL
	}
	if _, err := s.Head(ctx, key); err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", models.StorageIO(fmt.Errorf("presign get %s: %w", key, err))
	}
	return req.URL, nil
}

// SignWrite returns a presigned PUT URL for direct client upload.
func (s *Store) SignWrite(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > MaxSignTTL {
		ttl = MaxSignTTL
	}
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = ttl
	})
	if err != nil {
		return "", models.StorageIO(fmt.Errorf("presign put %s: %w", key, err))
	}
	return req.URL, nil
}

// Delete removes an object. Idempotent: deleting a missing key is not
// an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return models.StorageIO(fmt.Errorf("delete %s: %w", key, err))
	}
	return nil
}

func apiCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

func isNotFound(err error) bool {
	switch apiCode(err) {
	case "NoSuchKey", "NotFound", "NoSuchBucket":
		return true
	}
	return false
}
