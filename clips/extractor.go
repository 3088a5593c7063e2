package clips

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"simpleye/database"
	"simpleye/recording"
	"simpleye/streaming"
)

// ErrNoSegments means no recorded video overlaps the requested window.
var ErrNoSegments = errors.New("no segments overlap the requested range")

// ErrBadRange means the requested window is empty or inverted.
var ErrBadRange = errors.New("clip end must be after clip start")

// TranscodeError carries ffmpeg's output when an export fails.
type TranscodeError struct {
	Output string
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed: %v: %s", e.Err, strings.TrimSpace(e.Output))
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// manifestPad widens the bucket scan past the requested window, so a segment
// that starts in the previous minute but overlaps the window is not missed.
const manifestPad = time.Minute

// Archiver uploads finished clips to remote storage.
type Archiver interface {
	UploadClip(ctx context.Context, localPath, key string) (string, error)
}

// Request describes one clip export.
type Request struct {
	CameraID    string
	Start       time.Time
	End         time.Time
	Name        string
	RequestedBy string
}

// Extractor cuts MP4 clips out of the per-minute HLS archive.
type Extractor struct {
	db          database.Database
	root        string
	maxDuration time.Duration
	sem         *semaphore.Weighted
	archiver    Archiver
}

// NewExtractor creates an extractor. maxConcurrent bounds simultaneous
// ffmpeg exports; archiver may be nil.
func NewExtractor(db database.Database, root string, maxDuration time.Duration, maxConcurrent int64, archiver Archiver) *Extractor {
	if maxDuration <= 0 {
		maxDuration = 30 * time.Minute
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Extractor{
		db:          db,
		root:        root,
		maxDuration: maxDuration,
		sem:         semaphore.NewWeighted(maxConcurrent),
		archiver:    archiver,
	}
}

// Extract cuts the requested window out of the archive, re-encodes it into a
// single MP4, records it in the database, and returns the stored record.
func (e *Extractor) Extract(ctx context.Context, req Request) (*database.ClipRecord, error) {
	if !req.End.After(req.Start) {
		return nil, ErrBadRange
	}
	req.End = capWindow(req.Start, req.End, e.maxDuration)

	segments, err := e.collectSegments(req.CameraID, req.Start, req.End)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	id := uuid.New().String()
	relPath := filepath.Join(req.CameraID, recording.ClipsDirName, req.Start.Format("2006/01/02"), id+".mp4")
	outPath := filepath.Join(e.root, relPath)
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, fmt.Errorf("creating clip directory: %w", err)
	}

	offset, duration := trimParams(segments[0].start, req.Start, req.End)

	if err := e.transcode(ctx, segments, offset, duration, outPath); err != nil {
		os.Remove(outPath)
		return nil, err
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, &TranscodeError{Output: "output file missing", Err: err}
	}

	record := &database.ClipRecord{
		ID:          id,
		CameraID:    req.CameraID,
		Start:       req.Start,
		End:         req.End,
		Duration:    duration,
		Path:        filepath.ToSlash(relPath),
		Size:        info.Size(),
		Name:        req.Name,
		RequestedBy: req.RequestedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if record.Name == "" {
		record.Name = fmt.Sprintf("%s %s", req.CameraID, req.Start.Format("2006-01-02 15:04:05"))
	}
	if err := e.db.CreateClip(*record); err != nil {
		return nil, fmt.Errorf("recording clip metadata: %w", err)
	}

	if e.archiver != nil {
		go e.archive(record, outPath)
	}
	return record, nil
}

func (e *Extractor) archive(record *database.ClipRecord, outPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	url, err := e.archiver.UploadClip(ctx, outPath, record.Path)
	if err != nil {
		log.Printf("[clips] archiving %s: %v", record.ID, err)
		return
	}
	log.Printf("[clips] archived %s to %s", record.ID, url)
}

// capWindow truncates the window's end so the clip never exceeds max. An
// over-long request still yields a clip rather than a rejection.
func capWindow(start, end time.Time, max time.Duration) time.Time {
	if end.Sub(start) > max {
		return start.Add(max)
	}
	return end
}

// trimParams converts the requested absolute window into concat-relative
// seek and duration arguments. The first segment usually starts before the
// window, so the seek skips into it; a window starting before the first
// segment clamps to zero instead of seeking backwards.
func trimParams(firstSegment, start, end time.Time) (offset, duration float64) {
	offset = start.Sub(firstSegment).Seconds()
	if offset < 0 {
		offset = 0
	}
	return offset, end.Sub(start).Seconds()
}

// timedSegment is a media segment with its absolute start resolved.
type timedSegment struct {
	path  string
	start time.Time
	dur   float64
}

// collectSegments gathers every segment overlapping [start, end) from the
// bucket manifests around the window, in chronological order.
func (e *Extractor) collectSegments(cameraID string, start, end time.Time) ([]timedSegment, error) {
	buckets, err := recording.BucketsInRange(e.root, cameraID, start.Add(-manifestPad), end.Add(manifestPad))
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	var out []timedSegment
	for _, b := range buckets {
		manifest, err := streaming.ParseManifestFile(filepath.Join(b.Path, recording.ManifestName))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			log.Printf("[clips] skipping unreadable manifest in %s: %v", b.Path, err)
			continue
		}

		// Manifests without date tags anchor to the bucket minute.
		elapsed := time.Duration(0)
		for _, seg := range manifest.Segments {
			segStart := seg.Start
			if segStart.IsZero() {
				segStart = b.Time.Add(elapsed)
			}
			elapsed += time.Duration(seg.Duration * float64(time.Second))

			segEnd := segStart.Add(time.Duration(seg.Duration * float64(time.Second)))
			if !segStart.Before(end) || !segEnd.After(start) {
				continue
			}
			out = append(out, timedSegment{
				path:  filepath.Join(b.Path, seg.URI),
				start: segStart,
				dur:   seg.Duration,
			})
		}
	}

	// Bucket listing plus manifest order is almost always chronological,
	// but skewed date tags or mtime-fallback buckets can break it.
	sort.Slice(out, func(i, j int) bool {
		return out[i].start.Before(out[j].start)
	})
	return out, nil
}

// transcode concatenates the segments and re-encodes the trimmed window in
// one ffmpeg pass.
func (e *Extractor) transcode(ctx context.Context, segments []timedSegment, offset, duration float64, outPath string) error {
	listFile, err := writeConcatList(segments)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listFile,
		"-ss", fmt.Sprintf("%.3f", offset),
		"-t", fmt.Sprintf("%.3f", duration),
		"-c:v", "libx264", "-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-y", outPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &TranscodeError{Output: string(output), Err: err}
	}
	return nil
}

// writeConcatList writes an ffmpeg concat demuxer list for the segments.
func writeConcatList(segments []timedSegment) (string, error) {
	f, err := os.CreateTemp("", "clip-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating concat list: %w", err)
	}
	for _, seg := range segments {
		if _, err := fmt.Fprintf(f, "file '%s'\n", seg.path); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
