package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	S3          S3Config
	Transcoder  EngineConfig
	Transcriber EngineConfig
	Pipeline    PipelineConfig
	Playback    PlaybackConfig
	Uptime      UptimeConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT validation settings. Tokens are issued by the
// platform's user service; the pipeline only validates them.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// S3Config holds object store credentials and bucket settings.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string // optional custom endpoint (e.g. MinIO)
}

// EngineConfig holds an external media engine endpoint and credentials;
// used for both the transcoder and the transcriber.
type EngineConfig struct {
	Endpoint   string
	APIToken   string
	TimeoutMin int
}

// PipelineConfig holds orchestrator worker pool settings.
type PipelineConfig struct {
	WorkerCount     int
	MaxRetries      int
	LeaseTimeoutMin int
	QueueSoftCap    int
	PollIntervalSec int
}

// PlaybackConfig holds signed URL settings.
type PlaybackConfig struct {
	SignedURLTTLSec int
	UploadURLTTLSec int
}

// UptimeConfig holds uptime monitor settings.
type UptimeConfig struct {
	IntervalSec       int
	WindowProbes      int
	WarningThreshold  float64 // rolling uptime % below which a WARNING fires
	CriticalThreshold float64 // rolling uptime % below which a CRITICAL fires
	ReferenceVideoID  string  // optional fixed probe target
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Validate checks the settings a running pipeline cannot do without.
func (c *Config) Validate() error {
	var missing []string
	if c.S3.Bucket == "" {
		missing = append(missing, "AWS_S3_VIDEOS_BUCKET")
	}
	if c.Transcoder.Endpoint == "" {
		missing = append(missing, "TRANSCODER_ENDPOINT")
	}
	if c.Transcriber.Endpoint == "" {
		missing = append(missing, "TRANSCRIBER_ENDPOINT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.Pipeline.WorkerCount < 1 {
		return fmt.Errorf("PIPELINE_WORKER_COUNT must be >= 1")
	}
	return nil
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "lumen"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("AWS_S3_VIDEOS_BUCKET", "lumen-videos"),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		Transcoder: EngineConfig{
			Endpoint:   getEnv("TRANSCODER_ENDPOINT", ""),
			APIToken:   getEnv("TRANSCODER_API_TOKEN", ""),
			TimeoutMin: getEnvInt("TRANSCODER_TIMEOUT_MIN", 30),
		},
		Transcriber: EngineConfig{
			Endpoint:   getEnv("TRANSCRIBER_ENDPOINT", ""),
			APIToken:   getEnv("TRANSCRIBER_API_TOKEN", ""),
			TimeoutMin: getEnvInt("TRANSCRIBER_TIMEOUT_MIN", 20),
		},
		Pipeline: PipelineConfig{
			WorkerCount:     getEnvInt("PIPELINE_WORKER_COUNT", 4),
			MaxRetries:      getEnvInt("PIPELINE_MAX_RETRIES", 3),
			LeaseTimeoutMin: getEnvInt("PIPELINE_LEASE_TIMEOUT_MIN", 15),
			QueueSoftCap:    getEnvInt("PIPELINE_QUEUE_SOFT_CAP", 200),
			PollIntervalSec: getEnvInt("PIPELINE_POLL_INTERVAL_SEC", 5),
		},
		Playback: PlaybackConfig{
			SignedURLTTLSec: getEnvInt("PLAYBACK_SIGNED_URL_TTL_SEC", 900),
			UploadURLTTLSec: getEnvInt("UPLOAD_SIGNED_URL_TTL_SEC", 3600),
		},
		Uptime: UptimeConfig{
			IntervalSec:       getEnvInt("UPTIME_INTERVAL_SEC", 60),
			WindowProbes:      getEnvInt("UPTIME_WINDOW_PROBES", 1440),
			WarningThreshold:  getEnvFloat("UPTIME_WARNING_THRESHOLD", 99.5),
			CriticalThreshold: getEnvFloat("UPTIME_CRITICAL_THRESHOLD", 99.0),
			ReferenceVideoID:  getEnv("UPTIME_REFERENCE_VIDEO_ID", ""),
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
