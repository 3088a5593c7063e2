package recording

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"simpleye/database"
)

const (
	rotatePollInterval = 500 * time.Millisecond
	encoderStopTimeout = time.Second
)

// SegmentRecorder records a camera as HLS video. Each minute gets its own
// bucket directory with its own manifest and segments; at a minute boundary
// the encoder is stopped and a fresh one is started in the next bucket.
type SegmentRecorder struct {
	camera database.CameraConfig
	root   string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSegmentRecorder starts a segmented-mode worker for the camera.
func NewSegmentRecorder(ctx context.Context, camera database.CameraConfig, root string) *SegmentRecorder {
	ctx, cancel := context.WithCancel(ctx)
	r := &SegmentRecorder{
		camera: camera,
		root:   root,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.run(ctx)
	return r
}

// Mode reports this worker's recording mode.
func (r *SegmentRecorder) Mode() database.RecordingMode { return database.ModeSegmented }

// Stop signals the worker to shut down. It does not wait.
func (r *SegmentRecorder) Stop() { r.cancel() }

// Done is closed once the worker has stopped its encoder and exited.
func (r *SegmentRecorder) Done() <-chan struct{} { return r.done }

// errEncoderExited marks an unexpected encoder death between rotations.
var errEncoderExited = errors.New("encoder exited unexpectedly")

func (r *SegmentRecorder) run(ctx context.Context) {
	defer close(r.done)

	for ctx.Err() == nil {
		minute := time.Now().UTC().Truncate(time.Minute)
		if err := r.recordMinute(ctx, minute); err != nil && ctx.Err() == nil {
			log.Printf("[%s] segment recorder: %v", r.camera.ID, err)
			if d := restartDelay(err); d > 0 {
				sleepCtx(ctx, d)
			}
		}
	}
}

// restartDelay decides how long to wait before the next encoder attempt. A
// crash restarts immediately into the still-current bucket; anything else
// (unstartable process, unwritable bucket) backs off so a persistent fault
// cannot spin the loop.
func restartDelay(err error) time.Duration {
	if errors.Is(err, errEncoderExited) {
		return 0
	}
	return reopenFailBackoff
}

// recordMinute runs one encoder into the bucket for minute. It returns when
// the wall clock leaves the minute, the encoder dies, or ctx is cancelled.
func (r *SegmentRecorder) recordMinute(ctx context.Context, minute time.Time) error {
	bucket := BucketPath(r.root, r.camera.ID, minute)
	if err := os.MkdirAll(bucket, 0755); err != nil {
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}

	cmd := r.encoderCommand(bucket)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	log.Printf("[%s] segment recorder: encoding into %s (pid %d)", r.camera.ID, bucket, cmd.Process.Pid)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	ticker := time.NewTicker(rotatePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopEncoder(cmd, exited)
			return ctx.Err()
		case err := <-exited:
			return fmt.Errorf("%w: %v", errEncoderExited, err)
		case <-ticker.C:
			if !time.Now().UTC().Truncate(time.Minute).Equal(minute) {
				stopEncoder(cmd, exited)
				return nil
			}
		}
	}
}

func (r *SegmentRecorder) encoderCommand(bucket string) *exec.Cmd {
	segSeconds := r.camera.SegmentSeconds
	if segSeconds <= 0 {
		segSeconds = 2
	}
	bitrate := r.camera.BitrateKbps
	if bitrate <= 0 {
		bitrate = 2000
	}

	keyint := 2 * segSeconds
	if keyint > 2 {
		keyint = 2
	}
	if keyint < 1 {
		keyint = 1
	}
	keyint *= 30

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", r.camera.RTSPURL,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-b:v", fmt.Sprintf("%dk", bitrate),
		"-maxrate", fmt.Sprintf("%dk", bitrate),
		"-bufsize", fmt.Sprintf("%dk", 2*bitrate),
		"-g", fmt.Sprintf("%d", keyint),
		"-sc_threshold", "0",
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", segSeconds),
		"-hls_list_size", "0",
		"-hls_flags", "independent_segments+program_date_time",
		ManifestName,
	}

	cmd := exec.Command("ffmpeg", args...)
	cmd.Dir = bucket
	return cmd
}

// stopEncoder asks ffmpeg to finish cleanly so the open segment and manifest
// are flushed, then kills it if it lingers.
func stopEncoder(cmd *exec.Cmd, exited <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-exited:
	case <-time.After(encoderStopTimeout):
		_ = cmd.Process.Kill()
		<-exited
	}
}
