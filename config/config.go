package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config contains all configuration for the application. Camera records are
// not part of this struct: they live in the database, owned by the registry,
// and the recording supervisor polls them at runtime.
type Config struct {
	// Storage Configuration
	RecordingRoot string // Root directory for time-bucketed recordings and clips
	DatabasePath  string
	CamerasFile   string // optional JSON seed applied to the camera registry at boot

	// Server Configuration
	ServerPort string
	BaseURL    string

	// Supervisor / Janitor intervals
	ReconcileInterval time.Duration
	JanitorInterval   time.Duration

	// Retention default when a camera has no (or an invalid) value
	DefaultRetentionHours int

	// Live streaming settings (per-viewer MJPEG proxy)
	StreamMaxFPS            float64
	StreamJPEGQuality       int
	StreamConnectTimeout    time.Duration
	StreamIdleReconnect     time.Duration
	StreamHeartbeatInterval time.Duration

	// Clip extraction
	ClipMaxDuration time.Duration
	ClipConcurrency int

	// Archive (S3-compatible) Configuration
	ArchiveEnabled   bool
	ArchiveAccessKey string
	ArchiveSecretKey string
	ArchiveAccountID string
	ArchiveBucket    string
	ArchiveEndpoint  string
	ArchiveRegion    string
	ArchiveBaseURL   string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() Config {
	cfg := Config{
		RecordingRoot: getEnv("RECORDING_ROOT", "./data/recordings"),
		DatabasePath:  getEnv("DATABASE_PATH", "./data/simpleye.db"),
		CamerasFile:   getEnv("CAMERAS_FILE", ""),

		ServerPort: getEnv("SERVER_PORT", "8000"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8000"),

		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Second),
		JanitorInterval:   getEnvDuration("JANITOR_INTERVAL", 5*time.Minute),

		DefaultRetentionHours: getEnvInt("DEFAULT_RETENTION_HOURS", 24),

		StreamMaxFPS:            getEnvFloat("STREAM_MAX_FPS", 10),
		StreamJPEGQuality:       getEnvInt("STREAM_JPEG_QUALITY", 70),
		StreamConnectTimeout:    getEnvDuration("STREAM_CONNECT_TIMEOUT", 10*time.Second),
		StreamIdleReconnect:     getEnvDuration("STREAM_IDLE_RECONNECT", 10*time.Second),
		StreamHeartbeatInterval: getEnvDuration("STREAM_HEARTBEAT_INTERVAL", 2*time.Second),

		ClipMaxDuration: getEnvDuration("CLIP_MAX_DURATION", 30*time.Minute),
		ClipConcurrency: getEnvInt("CLIP_CONCURRENCY", 2),

		ArchiveEnabled:   getEnv("ARCHIVE_ENABLED", "false") == "true",
		ArchiveAccessKey: getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveAccountID: getEnv("ARCHIVE_ACCOUNT_ID", ""),
		ArchiveBucket:    getEnv("ARCHIVE_BUCKET", ""),
		ArchiveEndpoint:  getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveRegion:    getEnv("ARCHIVE_REGION", "auto"),
		ArchiveBaseURL:   getEnv("ARCHIVE_BASE_URL", ""),
	}

	log.Printf("Recording root: %s", cfg.RecordingRoot)
	log.Printf("Server running on port %s with base URL %s", cfg.ServerPort, cfg.BaseURL)
	log.Printf("Archive upload enabled: %v", cfg.ArchiveEnabled)

	return cfg
}

// EnsurePaths creates the directories the pipeline cannot run without.
// An unwritable recording root is the one configuration error that is fatal
// to the whole pipeline, so it is verified here with a probe file.
func EnsurePaths(cfg Config) error {
	if err := os.MkdirAll(cfg.RecordingRoot, 0755); err != nil {
		return fmt.Errorf("failed to create recording root %s: %w", cfg.RecordingRoot, err)
	}

	probe := filepath.Join(cfg.RecordingRoot, ".write_probe")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("recording root %s is not writable: %w", cfg.RecordingRoot, err)
	}
	f.Close()
	os.Remove(probe)

	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}

	return nil
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid integer for %s: %q, using %d", key, value, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid float for %s: %q, using %v", key, value, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// plain numbers are treated as seconds, matching the old deployment
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
		log.Printf("Warning: invalid duration for %s: %q, using %v", key, value, fallback)
	}
	return fallback
}
