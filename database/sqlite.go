package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	err = initTables(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist. The cameras
// table is shared with the registry: the registry writes it, this side reads.
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cameras (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			rtsp_url TEXT NOT NULL DEFAULT '',
			enabled INTEGER NOT NULL DEFAULT 1,
			recording_mode TEXT NOT NULL DEFAULT 'segmented',
			max_fps REAL NOT NULL DEFAULT 5,
			jpeg_quality INTEGER NOT NULL DEFAULT 75,
			bitrate_kbps INTEGER NOT NULL DEFAULT 1500,
			segment_seconds INTEGER NOT NULL DEFAULT 2,
			retention_hours INTEGER NOT NULL DEFAULT 24,
			connect_timeout INTEGER NOT NULL DEFAULT 10
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS clips (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			start_at TIMESTAMP NOT NULL,
			end_at TIMESTAMP NOT NULL,
			duration REAL NOT NULL DEFAULT 0,
			path TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			requested_by TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_clips_camera ON clips (camera_id, created_at)
	`)
	return err
}

// GetCameras returns a snapshot of every camera record in the registry.
func (s *SQLiteDB) GetCameras() ([]CameraConfig, error) {
	rows, err := s.db.Query(`
		SELECT id, name, rtsp_url, enabled, recording_mode, max_fps,
		       jpeg_quality, bitrate_kbps, segment_seconds, retention_hours,
		       connect_timeout
		FROM cameras ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %v", err)
	}
	defer rows.Close()

	var cameras []CameraConfig
	for rows.Next() {
		var c CameraConfig
		var enabled int
		err := rows.Scan(&c.ID, &c.Name, &c.RTSPURL, &enabled, &c.RecordingMode,
			&c.MaxFPS, &c.JPEGQuality, &c.BitrateKbps, &c.SegmentSeconds,
			&c.RetentionHours, &c.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera row: %v", err)
		}
		c.Enabled = enabled != 0
		cameras = append(cameras, c)
	}
	return cameras, rows.Err()
}

// GetCamera retrieves a camera by its ID, or nil if it does not exist.
func (s *SQLiteDB) GetCamera(id string) (*CameraConfig, error) {
	var c CameraConfig
	var enabled int
	err := s.db.QueryRow(`
		SELECT id, name, rtsp_url, enabled, recording_mode, max_fps,
		       jpeg_quality, bitrate_kbps, segment_seconds, retention_hours,
		       connect_timeout
		FROM cameras WHERE id = ?
	`, id).Scan(&c.ID, &c.Name, &c.RTSPURL, &enabled, &c.RecordingMode,
		&c.MaxFPS, &c.JPEGQuality, &c.BitrateKbps, &c.SegmentSeconds,
		&c.RetentionHours, &c.ConnectTimeout)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera %s: %v", id, err)
	}
	c.Enabled = enabled != 0
	return &c, nil
}

// UpsertCamera inserts or replaces one camera record. Used by the boot-time
// seed; the registry UI goes through the same path.
func (s *SQLiteDB) UpsertCamera(c CameraConfig) error {
	enabled := 0
	if c.Enabled {
		enabled = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO cameras (id, name, rtsp_url, enabled, recording_mode,
			max_fps, jpeg_quality, bitrate_kbps, segment_seconds,
			retention_hours, connect_timeout)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			rtsp_url = excluded.rtsp_url,
			enabled = excluded.enabled,
			recording_mode = excluded.recording_mode,
			max_fps = excluded.max_fps,
			jpeg_quality = excluded.jpeg_quality,
			bitrate_kbps = excluded.bitrate_kbps,
			segment_seconds = excluded.segment_seconds,
			retention_hours = excluded.retention_hours,
			connect_timeout = excluded.connect_timeout
	`, c.ID, c.Name, c.RTSPURL, enabled, string(c.Mode()), c.MaxFPS,
		c.JPEGQuality, c.BitrateKbps, c.SegmentSeconds, c.RetentionHours,
		c.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to upsert camera %s: %v", c.ID, err)
	}
	return nil
}

// CreateClip inserts a new clip record.
func (s *SQLiteDB) CreateClip(clip ClipRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO clips (
			id, camera_id, start_at, end_at, duration, path, size,
			requested_by, name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		clip.ID,
		clip.CameraID,
		clip.Start,
		clip.End,
		clip.Duration,
		clip.Path,
		clip.Size,
		clip.RequestedBy,
		clip.Name,
		clip.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create clip: %v", err)
	}
	return nil
}

// GetClip retrieves a clip by its ID, or nil if it does not exist.
func (s *SQLiteDB) GetClip(id string) (*ClipRecord, error) {
	var clip ClipRecord
	err := s.db.QueryRow(`
		SELECT id, camera_id, start_at, end_at, duration, path, size,
		       requested_by, name, created_at
		FROM clips WHERE id = ?
	`, id).Scan(&clip.ID, &clip.CameraID, &clip.Start, &clip.End, &clip.Duration,
		&clip.Path, &clip.Size, &clip.RequestedBy, &clip.Name, &clip.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get clip %s: %v", id, err)
	}
	return &clip, nil
}

// ListClips lists clip records newest first, optionally filtered by camera.
func (s *SQLiteDB) ListClips(cameraID string, limit, offset int) ([]ClipRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, camera_id, start_at, end_at, duration, path, size,
		       requested_by, name, created_at
		FROM clips
	`
	args := []interface{}{}
	if cameraID != "" {
		query += " WHERE camera_id = ?"
		args = append(args, cameraID)
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %v", err)
	}
	defer rows.Close()

	var clips []ClipRecord
	for rows.Next() {
		var clip ClipRecord
		err := rows.Scan(&clip.ID, &clip.CameraID, &clip.Start, &clip.End,
			&clip.Duration, &clip.Path, &clip.Size, &clip.RequestedBy,
			&clip.Name, &clip.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clip row: %v", err)
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// RenameClip updates the display name of a clip. The display name is the only
// mutable field of a clip record.
func (s *SQLiteDB) RenameClip(id, name string) error {
	result, err := s.db.Exec("UPDATE clips SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("failed to rename clip %s: %v", id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("clip %s not found", id)
	}
	return nil
}

// DeleteClip removes a clip record.
func (s *SQLiteDB) DeleteClip(id string) error {
	_, err := s.db.Exec("DELETE FROM clips WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete clip %s: %v", id, err)
	}
	return nil
}

// GetDB returns the underlying sql.DB (used by the registry side and tests).
func (s *SQLiteDB) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
