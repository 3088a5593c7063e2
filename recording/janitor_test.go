package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"simpleye/database"
)

type staticFeed struct {
	cameras []database.CameraConfig
}

func (f *staticFeed) GetCameras() ([]database.CameraConfig, error) { return f.cameras, nil }

func (f *staticFeed) GetCamera(id string) (*database.CameraConfig, error) {
	for i := range f.cameras {
		if f.cameras[i].ID == id {
			return &f.cameras[i], nil
		}
	}
	return nil, nil
}

func TestJanitorSweepRemovesExpiredBuckets(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	oldBucket := BucketPath(root, "cam1", now.Add(-25*time.Hour))
	freshBucket := BucketPath(root, "cam1", now.Add(-1*time.Hour))
	for _, dir := range []string{oldBucket, freshBucket} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "00_000.jpg"), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	clipPath := filepath.Join(root, "cam1", ClipsDirName, "old.mp4")
	if err := os.MkdirAll(filepath.Dir(clipPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(clipPath, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	feed := &staticFeed{cameras: []database.CameraConfig{{ID: "cam1", Enabled: true}}}
	j := NewJanitor(feed, root, 24*time.Hour)
	j.Sweep(now)

	if _, err := os.Stat(oldBucket); !os.IsNotExist(err) {
		t.Errorf("expired bucket still present: %v", err)
	}
	if _, err := os.Stat(freshBucket); err != nil {
		t.Errorf("fresh bucket removed: %v", err)
	}
	if _, err := os.Stat(clipPath); err != nil {
		t.Errorf("clip removed by sweep: %v", err)
	}
}

func TestJanitorPerCameraRetention(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	// Two hours old: expired for cam short (1h retention), kept for cam long.
	shortBucket := BucketPath(root, "short", now.Add(-2*time.Hour))
	longBucket := BucketPath(root, "long", now.Add(-2*time.Hour))
	for _, dir := range []string{shortBucket, longBucket} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	feed := &staticFeed{cameras: []database.CameraConfig{
		{ID: "short", Enabled: true, RetentionHours: 1},
		{ID: "long", Enabled: true, RetentionHours: 72},
	}}
	j := NewJanitor(feed, root, 24*time.Hour)
	j.Sweep(now)

	if _, err := os.Stat(shortBucket); !os.IsNotExist(err) {
		t.Errorf("bucket past short retention still present: %v", err)
	}
	if _, err := os.Stat(longBucket); err != nil {
		t.Errorf("bucket within long retention removed: %v", err)
	}
}

func TestJanitorPrunesEmptyParents(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	bucket := BucketPath(root, "cam1", now.Add(-48*time.Hour))
	if err := os.MkdirAll(bucket, 0755); err != nil {
		t.Fatal(err)
	}

	feed := &staticFeed{cameras: []database.CameraConfig{{ID: "cam1", Enabled: true}}}
	NewJanitor(feed, root, 24*time.Hour).Sweep(now)

	// The whole year tree should be gone; the camera root stays.
	entries, err := os.ReadDir(filepath.Join(root, "cam1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("camera root not pruned, %d entries remain", len(entries))
	}
}
