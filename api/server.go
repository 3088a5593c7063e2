package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"simpleye/clips"
	"simpleye/config"
	"simpleye/database"
	"simpleye/monitoring"
	"simpleye/streaming"
)

// Server is the HTTP surface: live views, playback playlists, clip
// management and health.
type Server struct {
	config    config.Config
	db        database.Database
	proxy     *streaming.Proxy
	extractor *clips.Extractor
	monitor   *monitoring.Monitor

	httpServer *http.Server
}

// NewServer wires the HTTP layer. monitor may be nil; the health endpoint
// then reports process uptime only.
func NewServer(cfg config.Config, db database.Database, proxy *streaming.Proxy, extractor *clips.Extractor, monitor *monitoring.Monitor) *Server {
	return &Server{
		config:    cfg,
		db:        db,
		proxy:     proxy,
		extractor: extractor,
		monitor:   monitor,
	}
}

// Start runs the server until ListenAndServe returns.
func (s *Server) Start() error {
	r := gin.Default()
	s.setupCORS(r)
	s.setupRoutes(r)

	s.httpServer = &http.Server{
		Addr:    ":" + s.config.ServerPort,
		Handler: r,
	}
	log.Printf("[api] listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	// Recorded segments and snapshots are served straight off disk.
	r.Static("/recordings", s.config.RecordingRoot)

	r.GET("/live/:camera/stream.mjpg", s.liveStream)
	r.GET("/playback/:camera/playlist.m3u8", s.playbackPlaylist)

	api := r.Group("/api")
	{
		api.GET("/cameras", s.listCameras)
		api.GET("/system_health", s.systemHealth)

		api.POST("/clips", s.createClip)
		api.GET("/clips", s.listClips)
		api.GET("/clips/:id", s.getClip)
		api.GET("/clips/:id/download", s.downloadClip)
		api.PATCH("/clips/:id", s.renameClip)
		api.DELETE("/clips/:id", s.deleteClip)
	}
}

// startTime anchors the uptime reported by the health endpoint.
var startTime = time.Now()

func (s *Server) systemHealth(c *gin.Context) {
	resp := gin.H{
		"status":         "ok",
		"uptime_seconds": int(time.Since(startTime).Seconds()),
	}
	if _, err := s.db.GetCameras(); err != nil {
		resp["status"] = "degraded"
		resp["database"] = err.Error()
	}
	if s.monitor != nil {
		usage, err := s.monitor.Snapshot()
		if err != nil {
			resp["status"] = "degraded"
			resp["error"] = err.Error()
		} else {
			resp["resources"] = usage
		}
	}
	c.JSON(http.StatusOK, resp)
}
