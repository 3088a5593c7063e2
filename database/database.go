package database

import (
	"time"
)

// RecordingMode selects the recording strategy for a camera. It is fixed per
// worker at construction; a mode change in the registry replaces the worker.
type RecordingMode string

const (
	ModeSnapshot  RecordingMode = "snapshot"  // periodic still frames
	ModeSegmented RecordingMode = "segmented" // rolling HLS segments
)

// ParseRecordingMode normalizes a registry-supplied mode string. Unknown or
// empty values default to segmented, matching the old deployment.
func ParseRecordingMode(s string) RecordingMode {
	switch s {
	case string(ModeSnapshot), "jpeg":
		return ModeSnapshot
	default:
		return ModeSegmented
	}
}

// CameraConfig is one record of the camera configuration feed. The registry
// (outside this core) creates and edits these rows; the recording pipeline
// only reads snapshots of them.
type CameraConfig struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	RTSPURL        string  `json:"rtspUrl"`
	Enabled        bool    `json:"enabled"`
	RecordingMode  string  `json:"recordingMode"`  // "snapshot" or "segmented"
	MaxFPS         float64 `json:"maxFps"`         // snapshot mode frame rate cap
	JPEGQuality    int     `json:"jpegQuality"`    // snapshot / preview image quality, 1-100
	BitrateKbps    int     `json:"bitrateKbps"`    // segmented mode target bitrate
	SegmentSeconds int     `json:"segmentSeconds"` // segmented mode segment duration
	RetentionHours int     `json:"retentionHours"` // 0 means the configured default
	ConnectTimeout int     `json:"connectTimeout"` // seconds; 0 means default
}

// Mode returns the normalized recording mode.
func (c CameraConfig) Mode() RecordingMode {
	return ParseRecordingMode(c.RecordingMode)
}

// ClipRecord is the metadata for one extracted clip. Created by the clip
// extractor; read and deleted by the web layer. Only the display name is ever
// mutated after creation.
type ClipRecord struct {
	ID          string    `json:"id"`
	CameraID    string    `json:"cameraId"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Duration    float64   `json:"duration"` // realized duration in seconds
	Path        string    `json:"path"`     // relative to the recording root
	Size        int64     `json:"size"`     // bytes
	RequestedBy string    `json:"requestedBy"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CameraFeed is the read side of the camera registry. The supervisor and the
// janitor poll it; staleness up to one reconcile interval is acceptable.
type CameraFeed interface {
	GetCameras() ([]CameraConfig, error)
	GetCamera(id string) (*CameraConfig, error)
}

// Database defines the storage operations the pipeline needs: the read-only
// camera feed plus the clip metadata store.
type Database interface {
	CameraFeed

	// Clip operations
	CreateClip(clip ClipRecord) error
	GetClip(id string) (*ClipRecord, error)
	ListClips(cameraID string, limit, offset int) ([]ClipRecord, error)
	RenameClip(id, name string) error
	DeleteClip(id string) error

	Close() error
}
