package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"simpleye/api"
	"simpleye/clips"
	"simpleye/config"
	"simpleye/database"
	"simpleye/monitoring"
	"simpleye/recording"
	"simpleye/storage"
	"simpleye/streaming"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()
	if err := config.EnsurePaths(cfg); err != nil {
		log.Fatalf("Storage unusable: %v", err)
	}

	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer db.Close()

	if cfg.CamerasFile != "" {
		cameras, err := database.LoadCameraSeed(cfg.CamerasFile)
		if err != nil {
			log.Fatalf("Error loading camera seed: %v", err)
		}
		if err := db.SeedCameras(cameras); err != nil {
			log.Fatalf("Error seeding cameras: %v", err)
		}
		log.Printf("Seeded %d cameras from %s", len(cameras), cfg.CamerasFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	supervisor := recording.NewSupervisor(db, cfg.RecordingRoot, cfg.ReconcileInterval)
	supervisor.Start(ctx)

	janitor := recording.NewJanitor(db, cfg.RecordingRoot,
		time.Duration(cfg.DefaultRetentionHours)*time.Hour)
	if err := janitor.Start(cfg.JanitorInterval); err != nil {
		log.Fatalf("Error starting retention janitor: %v", err)
	}

	var archiver clips.Archiver
	if cfg.ArchiveEnabled {
		ac := storage.ArchiveConfig{
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			Endpoint:  cfg.ArchiveEndpoint,
			Region:    cfg.ArchiveRegion,
			BaseURL:   cfg.ArchiveBaseURL,
		}
		if ac.Endpoint == "" && cfg.ArchiveAccountID != "" {
			ac.Endpoint = "https://" + cfg.ArchiveAccountID + ".r2.cloudflarestorage.com"
		}
		if ac.Enabled() {
			a, err := storage.NewClipArchiver(ac)
			if err != nil {
				log.Fatalf("Error initializing clip archiver: %v", err)
			}
			archiver = a
			log.Println("Clip archiving enabled")
		} else {
			log.Println("Warning: ARCHIVE_ENABLED set but archive credentials incomplete, archiving disabled")
		}
	}

	extractor := clips.NewExtractor(db, cfg.RecordingRoot, cfg.ClipMaxDuration,
		int64(cfg.ClipConcurrency), archiver)

	proxy := streaming.NewProxy(streaming.ProxyOptions{
		MaxFPS:         cfg.StreamMaxFPS,
		JPEGQuality:    cfg.StreamJPEGQuality,
		ConnectTimeout: cfg.StreamConnectTimeout,
		Heartbeat:      cfg.StreamHeartbeatInterval,
		IdleReconnect:  cfg.StreamIdleReconnect,
	})

	monitor, err := monitoring.NewMonitor(cfg.RecordingRoot)
	if err != nil {
		log.Printf("Warning: resource monitoring unavailable: %v", err)
	} else {
		monitor.StartLogging(5 * time.Minute)
	}

	server := api.NewServer(cfg, db, proxy, extractor, monitor)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Printf("Received %s, shutting down", sig)
	case err := <-serverErr:
		log.Printf("API server failed: %v", err)
	}

	cancel()
	janitor.Stop()
	supervisor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown: %v", err)
	}
}
