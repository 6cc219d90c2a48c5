// Package main runs the video pipeline HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumen-academy/backend/config"
	"github.com/lumen-academy/backend/internal/analytics"
	"github.com/lumen-academy/backend/internal/auth"
	"github.com/lumen-academy/backend/internal/middleware"
	"github.com/lumen-academy/backend/internal/playback"
	"github.com/lumen-academy/backend/internal/uptime"
	"github.com/lumen-academy/backend/internal/videos"
	"github.com/lumen-academy/backend/pkg/database"
	"github.com/lumen-academy/backend/pkg/queue"
	"github.com/lumen-academy/backend/pkg/redis"
	"github.com/lumen-academy/backend/pkg/response"
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
		logger.Fatal("s3", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	jobQueue := queue.New(pool, rdb.Client, logger,
		queue.WithMaxRetries(cfg.Pipeline.MaxRetries),
		queue.WithLeaseTimeout(time.Duration(cfg.Pipeline.LeaseTimeoutMin)*time.Minute),
	)

	// Videos
	videoRepo := videos.NewRepository(pool, jobQueue)
	transcriptRepo := videos.NewTranscriptRepository(pool)
	videoHandler := videos.NewHandler(videoRepo, store, jobQueue, cfg.Pipeline.QueueSoftCap,
		time.Duration(cfg.Playback.UploadURLTTLSec)*time.Second, logger)

	// Playback
	gateway := playback.New(videoRepo, transcriptRepo, store, playback.AllowAll{},
		time.Duration(cfg.Playback.SignedURLTTLSec)*time.Second, logger)
	playbackHandler := playback.NewHandler(gateway, logger)

	// Analytics
	analyticsRepo := analytics.NewRepository(pool)
	ingestor := analytics.NewIngestor(analyticsRepo, videoRepo, logger)
	analyticsHandler := analytics.NewHandler(ingestor, analyticsRepo, logger)
	reaper := analytics.NewReaper(analyticsRepo, logger)

	// Uptime
	uptimeRepo := uptime.NewRepository(pool)
	uptimeCfg := uptime.Config{
		Interval:          time.Duration(cfg.Uptime.IntervalSec) * time.Second,
		WindowProbes:      cfg.Uptime.WindowProbes,
		WarningThreshold:  cfg.Uptime.WarningThreshold,
		CriticalThreshold: cfg.Uptime.CriticalThreshold,
	}
	if cfg.Uptime.ReferenceVideoID != "" {
		id, err := uuid.Parse(cfg.Uptime.ReferenceVideoID)
		if err != nil {
			logger.Fatal("UPTIME_REFERENCE_VIDEO_ID", zap.Error(err))
		}
		uptimeCfg.ReferenceVideoID = id
	}
	monitor := uptime.New(uptimeRepo, gateway, videoRepo, nil, uptimeCfg, logger)
	uptimeHandler := uptime.NewHandler(uptimeRepo, cfg.Uptime.WindowProbes, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Heartbeats accept anonymous viewers.
	router.POST("/videos/:id/heartbeat", middleware.OptionalJWT(jwtService), analyticsHandler.Heartbeat)

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/videos", videoHandler.Create)
		api.POST("/videos/:id/finalize", videoHandler.Finalize)
		api.GET("/videos/:id/status", videoHandler.Status)
		api.GET("/videos/:id/playback", playbackHandler.Resolve)

		admin := api.Group("/admin", middleware.RequireRole("admin"))
		{
			admin.POST("/videos/:id/reset", videoHandler.Reset)
			admin.GET("/videos/:id/analytics", analyticsHandler.Summary)
			admin.GET("/uptime", uptimeHandler.Status)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background loops: idle-session reaper and uptime monitor. The
	// pipeline workers run in cmd/worker.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go reaper.Run(bgCtx)
	go monitor.Run(bgCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
