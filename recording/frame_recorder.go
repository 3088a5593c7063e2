package recording

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"simpleye/capture"
	"simpleye/database"
)

const (
	readFailBackoff   = 250 * time.Millisecond
	reopenFailBackoff = time.Second
)

// FrameRecorder records a camera as periodic still images: one JPEG per tick
// written into the current minute bucket.
type FrameRecorder struct {
	camera database.CameraConfig
	root   string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFrameRecorder starts a snapshot-mode worker for the camera.
func NewFrameRecorder(ctx context.Context, camera database.CameraConfig, root string) *FrameRecorder {
	ctx, cancel := context.WithCancel(ctx)
	r := &FrameRecorder{
		camera: camera,
		root:   root,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

// Mode reports this worker's recording mode.
func (r *FrameRecorder) Mode() database.RecordingMode { return database.ModeSnapshot }

// Stop signals the worker to shut down. It does not wait.
func (r *FrameRecorder) Stop() { r.cancel() }

// Done is closed once the worker has released its session and exited.
func (r *FrameRecorder) Done() <-chan struct{} { return r.done }

func (r *FrameRecorder) run(ctx context.Context) {
	defer close(r.done)

	frameInterval := tickInterval(r.camera.MaxFPS)
	fps := float64(time.Second) / float64(frameInterval)

	opts := capture.Options{
		URL:            r.camera.RTSPURL,
		FPS:            fps,
		Quality:        r.camera.JPEGQuality,
		ConnectTimeout: time.Duration(r.camera.ConnectTimeout) * time.Second,
		Label:          r.camera.ID,
	}

	session, err := capture.Open(ctx, opts)
	if err != nil {
		log.Printf("[%s] snapshot recorder: initial connect failed: %v", r.camera.ID, err)
	}
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if session == nil {
			session, err = capture.Open(ctx, opts)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[%s] snapshot recorder: reconnect failed: %v", r.camera.ID, err)
				sleepCtx(ctx, reopenFailBackoff)
				continue
			}
		}

		frame, err := session.ReadFrame(frameInterval)
		if err != nil {
			if err == capture.ErrNoFrame {
				continue
			}
			// Decoder is gone: release and reconnect on the next tick.
			session.Close()
			session = nil
			sleepCtx(ctx, readFailBackoff)
			continue
		}

		if err := r.writeFrame(frame, time.Now().UTC()); err != nil {
			// Disk or permission trouble drops this frame only.
			log.Printf("[%s] snapshot recorder: write failed: %v", r.camera.ID, err)
		}
	}
}

// writeFrame stores one JPEG in the bucket for ts, named so that frames sort
// by second and millisecond within the minute.
func (r *FrameRecorder) writeFrame(frame []byte, ts time.Time) error {
	bucket := BucketPath(r.root, r.camera.ID, ts)
	if err := os.MkdirAll(bucket, 0755); err != nil {
		return err
	}

	name := fmt.Sprintf("%s_%03d.jpg", ts.Format("05"), ts.Nanosecond()/int(time.Millisecond))
	return os.WriteFile(filepath.Join(bucket, name), frame, 0644)
}

// tickInterval converts a frame rate cap into the snapshot loop period.
// Ticks, not sleeps, pace the loop, so two consecutive writes can never land
// closer together than this interval.
func tickInterval(fps float64) time.Duration {
	if fps < 0.5 {
		fps = 5
	}
	return time.Duration(float64(time.Second) / fps)
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
