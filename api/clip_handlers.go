package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"simpleye/clips"
	"simpleye/database"
)

type createClipRequest struct {
	CameraID    string `json:"camera_id" binding:"required"`
	Start       string `json:"start" binding:"required"`
	End         string `json:"end" binding:"required"`
	Name        string `json:"name"`
	RequestedBy string `json:"requested_by"`
}

func (s *Server) createClip(c *gin.Context) {
	var req createClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := parseTimeParam(req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad start: " + err.Error()})
		return
	}
	end, err := parseTimeParam(req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad end: " + err.Error()})
		return
	}

	camera, err := s.db.GetCamera(req.CameraID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if camera == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown camera"})
		return
	}
	if camera.Mode() != database.ModeSegmented {
		c.JSON(http.StatusConflict, gin.H{"error": "camera does not record video segments"})
		return
	}

	record, err := s.extractor.Extract(c.Request.Context(), clips.Request{
		CameraID:    req.CameraID,
		Start:       start,
		End:         end,
		Name:        req.Name,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, clips.ErrBadRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, clips.ErrNoSegments):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			var te *clips.TranscodeError
			if errors.As(err, &te) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": te.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, clipResponse(record))
}

func (s *Server) listClips(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}

	records, err := s.db.ListClips(c.Query("camera_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(records))
	for i := range records {
		out = append(out, clipResponse(&records[i]))
	}
	c.JSON(http.StatusOK, gin.H{"clips": out})
}

func (s *Server) getClip(c *gin.Context) {
	record, ok := s.lookupClip(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, clipResponse(record))
}

func (s *Server) downloadClip(c *gin.Context) {
	record, ok := s.lookupClip(c)
	if !ok {
		return
	}
	path := filepath.Join(s.config.RecordingRoot, filepath.FromSlash(record.Path))
	c.FileAttachment(path, record.Name+".mp4")
}

type renameClipRequest struct {
	Name string `json:"name" binding:"required"`
}

func (s *Server) renameClip(c *gin.Context) {
	var req renameClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.db.RenameClip(c.Param("id"), req.Name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "name": req.Name})
}

func (s *Server) deleteClip(c *gin.Context) {
	record, ok := s.lookupClip(c)
	if !ok {
		return
	}

	if err := s.db.DeleteClip(record.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// The file goes after the row so a failed delete stays listable.
	path := filepath.Join(s.config.RecordingRoot, filepath.FromSlash(record.Path))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		c.JSON(http.StatusOK, gin.H{"deleted": record.ID, "warning": "metadata removed, file cleanup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": record.ID})
}

func (s *Server) lookupClip(c *gin.Context) (*database.ClipRecord, bool) {
	record, err := s.db.GetClip(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown clip"})
		return nil, false
	}
	return record, true
}

func clipResponse(r *database.ClipRecord) gin.H {
	return gin.H{
		"id":               r.ID,
		"camera_id":        r.CameraID,
		"name":             r.Name,
		"start":            r.Start,
		"end":              r.End,
		"duration_seconds": r.Duration,
		"size_bytes":       r.Size,
		"requested_by":     r.RequestedBy,
		"created_at":       r.CreatedAt,
		"download_url":     "/api/clips/" + r.ID + "/download",
	}
}
