package recording

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"simpleye/database"
)

// Janitor deletes minute buckets older than each camera's retention window.
// It sweeps once at startup and then on a cron schedule.
type Janitor struct {
	feed             database.CameraFeed
	root             string
	defaultRetention time.Duration

	cron *cron.Cron
}

// NewJanitor creates a janitor. defaultRetention applies to cameras whose
// config does not set a retention of its own.
func NewJanitor(feed database.CameraFeed, root string, defaultRetention time.Duration) *Janitor {
	return &Janitor{
		feed:             feed,
		root:             root,
		defaultRetention: defaultRetention,
	}
}

// Start runs an immediate sweep and schedules recurring sweeps every
// interval.
func (j *Janitor) Start(interval time.Duration) error {
	go j.Sweep(time.Now().UTC())

	j.cron = cron.New()
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := j.cron.AddFunc(spec, func() { j.Sweep(time.Now().UTC()) }); err != nil {
		return fmt.Errorf("scheduling retention sweep: %w", err)
	}
	j.cron.Start()
	log.Printf("[janitor] retention sweep scheduled %s", spec)
	return nil
}

// Stop halts the schedule. A sweep already in flight finishes on its own.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

// Sweep removes, for every camera, all buckets strictly older than that
// camera's cutoff. Deletion failures are logged and skipped; one bad bucket
// must not stall the sweep.
func (j *Janitor) Sweep(now time.Time) {
	cameras, err := j.feed.GetCameras()
	if err != nil {
		log.Printf("[janitor] loading cameras: %v", err)
		return
	}

	for _, cam := range cameras {
		retention := j.defaultRetention
		if cam.RetentionHours > 0 {
			retention = time.Duration(cam.RetentionHours) * time.Hour
		}
		cutoff := now.Add(-retention)

		removed := j.sweepCamera(cam.ID, cutoff)
		if removed > 0 {
			log.Printf("[janitor] camera %s: removed %d expired buckets (cutoff %s)",
				cam.ID, removed, cutoff.Format(time.RFC3339))
		}
	}
}

func (j *Janitor) sweepCamera(cameraID string, cutoff time.Time) int {
	buckets, err := ListBuckets(j.root, cameraID)
	if err != nil {
		log.Printf("[janitor] camera %s: listing buckets: %v", cameraID, err)
		return 0
	}

	removed := 0
	for _, b := range buckets {
		if !b.Time.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(b.Path); err != nil {
			log.Printf("[janitor] camera %s: removing %s: %v", cameraID, b.Path, err)
			continue
		}
		pruneEmptyParents(b.Path, filepath.Join(j.root, cameraID))
		removed++
	}
	return removed
}

// pruneEmptyParents removes directories left empty by a bucket deletion,
// walking up from the bucket until stop or a non-empty directory.
func pruneEmptyParents(bucket, stop string) {
	for dir := filepath.Dir(bucket); dir != stop && len(dir) > len(stop); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}
