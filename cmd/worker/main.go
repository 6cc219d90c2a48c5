// Package main runs the pipeline workers (transcode, thumbnail,
// transcribe) against the durable job queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumen-academy/backend/config"
	"github.com/lumen-academy/backend/internal/notify"
	"github.com/lumen-academy/backend/internal/transcoder"
	"github.com/lumen-academy/backend/internal/transcriber"
	"github.com/lumen-academy/backend/internal/videos"
	"github.com/lumen-academy/backend/internal/worker"
	"github.com/lumen-academy/backend/pkg/database"
	"github.com/lumen-academy/backend/pkg/queue"
	"github.com/lumen-academy/backend/pkg/redis"
	"github.com/lumen-academy/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store, err := storage.New(ctx, storage.Config{
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Bucket:          cfg.S3.Bucket,
		Endpoint:        cfg.S3.Endpoint,
	}, logger)
	if err != nil {
		logger.Fatal("object store", zap.Error(err))
	}

	jobQueue := queue.New(pool, rdb.Client, logger,
		queue.WithMaxRetries(cfg.Pipeline.MaxRetries),
		queue.WithLeaseTimeout(time.Duration(cfg.Pipeline.LeaseTimeoutMin)*time.Minute),
	)
	videoRepo := videos.NewRepository(pool, jobQueue)
	transcriptRepo := videos.NewTranscriptRepository(pool)
	notifier := notify.New(rdb.Client, logger)

	transcodeDriver := transcoder.New(cfg.Transcoder.Endpoint, cfg.Transcoder.APIToken,
		time.Duration(cfg.Transcoder.TimeoutMin)*time.Minute, logger)
	transcribeDriver := transcriber.New(cfg.Transcriber.Endpoint, cfg.Transcriber.APIToken,
		time.Duration(cfg.Transcriber.TimeoutMin)*time.Minute, logger)

	orch := worker.New(jobQueue, videoRepo, transcriptRepo, store, transcodeDriver, transcribeDriver, notifier,
		worker.Config{
			Workers:      cfg.Pipeline.WorkerCount,
			PollInterval: time.Duration(cfg.Pipeline.PollIntervalSec) * time.Second,
			Timeouts: worker.Timeouts{
				Thumbnail:  worker.DefaultTimeouts.Thumbnail,
				Transcode:  time.Duration(cfg.Transcoder.TimeoutMin) * time.Minute,
				Transcribe: time.Duration(cfg.Transcriber.TimeoutMin) * time.Minute,
			},
		}, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		orch.Run(workerCtx)
		close(done)
	}()
	logger.Info("workers started", zap.Int("count", cfg.Pipeline.WorkerCount))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("drain timed out")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
