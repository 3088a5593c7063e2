package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"simpleye/database"
	"simpleye/streaming"
)

func (s *Server) listCameras(c *gin.Context) {
	cameras, err := s.db.GetCameras()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(cameras))
	for _, cam := range cameras {
		out = append(out, gin.H{
			"id":             cam.ID,
			"name":           cam.Name,
			"enabled":        cam.Enabled,
			"recording_mode": string(cam.Mode()),
			"live_url":       "/live/" + cam.ID + "/stream.mjpg",
		})
	}
	c.JSON(http.StatusOK, gin.H{"cameras": out})
}

func (s *Server) liveStream(c *gin.Context) {
	camera, ok := s.lookupCamera(c)
	if !ok {
		return
	}
	if !camera.Enabled {
		c.JSON(http.StatusConflict, gin.H{"error": "camera is disabled"})
		return
	}

	// The proxy owns the response from here; it streams until the viewer
	// hangs up.
	if err := s.proxy.Serve(c.Request.Context(), c.Writer, *camera); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) playbackPlaylist(c *gin.Context) {
	camera, ok := s.lookupCamera(c)
	if !ok {
		return
	}

	from, err := parseTimeParam(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad start: " + err.Error()})
		return
	}
	to, err := parseTimeParam(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad end: " + err.Error()})
		return
	}
	if !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be after start"})
		return
	}

	playlist, err := streaming.StitchRange(s.config.RecordingRoot, "/recordings", camera.ID, from, to)
	if err != nil {
		if err == streaming.ErrNoRecordings {
			c.JSON(http.StatusNotFound, gin.H{"error": "no recordings in range"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "application/vnd.apple.mpegurl", []byte(playlist))
}

func (s *Server) lookupCamera(c *gin.Context) (*database.CameraConfig, bool) {
	camera, err := s.db.GetCamera(c.Param("camera"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if camera == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown camera"})
		return nil, false
	}
	return camera, true
}

// parseTimeParam accepts RFC 3339, a naive UTC timestamp, or unix seconds.
func parseTimeParam(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", v); err == nil {
		return ts.UTC(), nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
	}
	return time.Unix(secs, 0).UTC(), nil
}
