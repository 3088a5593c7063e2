package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrConnectTimeout is returned by Open when the source does not become
	// ready within the connect timeout.
	ErrConnectTimeout = errors.New("capture: connect timeout")
	// ErrNoFrame is returned by ReadFrame when no frame arrived within the
	// read timeout. The session stays open; the caller decides what to do.
	ErrNoFrame = errors.New("capture: no frame available")
	// ErrClosed is returned by ReadFrame once the session has been closed or
	// the underlying decoder has gone away.
	ErrClosed = errors.New("capture: session closed")
)

const openPollInterval = 200 * time.Millisecond

// Options configures a capture session.
type Options struct {
	URL            string
	FPS            float64       // frame rate cap applied at the decoder
	Quality        int           // JPEG quality 1-100
	ConnectTimeout time.Duration // how long Open waits for the first frame
	Label          string        // log prefix, typically the camera ID
}

// Session decodes a camera source into JPEG frames. It owns one ffmpeg child
// process whose stdout carries an MJPEG stream; a reader goroutine splits it
// into frames and keeps only the newest one.
type Session struct {
	opts   Options
	cmd    *exec.Cmd
	frames chan []byte
	dead   chan struct{} // closed when the reader goroutine exits

	closeOnce sync.Once
}

// Open connects to a camera source. It retries starting the decoder with a
// short poll interval until the first frame arrives or the connect timeout
// elapses; on timeout any partially started process is released.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.FPS <= 0 {
		opts.FPS = 5
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		opts.Quality = 75
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.Label == "" {
		opts.Label = opts.URL
	}

	deadline := time.Now().Add(opts.ConnectTimeout)
	for {
		s, err := start(ctx, opts)
		if err == nil {
			// Wait for the first frame within the time left on the deadline.
			remaining := time.Until(deadline)
			if remaining <= 0 {
				s.Close()
				return nil, ErrConnectTimeout
			}
			if _, err := s.ReadFrame(remaining); err == nil {
				return s, nil
			}
			s.Close()
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, ErrConnectTimeout
		}
		time.Sleep(openPollInterval)
	}
}

// start launches the decoder process and its frame reader.
func start(ctx context.Context, opts Options) (*Session, error) {
	args := []string{
		"-rtsp_transport", "tcp",
		"-fflags", "nobuffer",
		"-i", opts.URL,
		"-an",
		"-f", "mjpeg",
		"-q:v", fmt.Sprintf("%d", jpegQScale(opts.Quality)),
		"-r", fmt.Sprintf("%g", opts.FPS),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: failed to start decoder: %w", err)
	}

	s := &Session{
		opts:   opts,
		cmd:    cmd,
		frames: make(chan []byte, 1),
		dead:   make(chan struct{}),
	}

	go func() {
		defer close(s.dead)
		sc := newFrameScanner(stdout)
		for {
			frame, err := sc.Next()
			if err != nil {
				return
			}
			// Latest-wins: drop the buffered frame if the consumer is slow.
			select {
			case s.frames <- frame:
			default:
				select {
				case <-s.frames:
				default:
				}
				select {
				case s.frames <- frame:
				default:
				}
			}
		}
	}()

	// Reap the process when the reader ends so it never zombies.
	go func() {
		<-s.dead
		cmd.Wait()
	}()

	return s, nil
}

// ReadFrame returns the newest decoded frame, waiting up to timeout for one
// to arrive. A timeout returns ErrNoFrame and leaves the session open.
func (s *Session) ReadFrame(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.dead:
		// Drain a frame that may have been buffered before the decoder died.
		select {
		case frame := <-s.frames:
			return frame, nil
		default:
		}
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrNoFrame
	}
}

// Close releases the decoder process. Safe to call multiple times.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			s.cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-s.dead:
			case <-time.After(time.Second):
				log.Printf("[%s] decoder did not stop on SIGTERM, killing", s.opts.Label)
				s.cmd.Process.Kill()
			}
		}
	})
	return nil
}

// jpegQScale maps a 1-100 quality percentage to ffmpeg's 2-31 qscale range
// (lower qscale means higher quality).
func jpegQScale(quality int) int {
	q := 2 + (100-quality)*29/99
	if q < 2 {
		q = 2
	}
	if q > 31 {
		q = 31
	}
	return q
}
