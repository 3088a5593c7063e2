package streaming

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log"
	"net/http"
	"sync"
	"time"

	"simpleye/capture"
	"simpleye/database"
)

const mjpegBoundary = "frame"

// ProxyOptions tunes the live MJPEG proxy.
type ProxyOptions struct {
	// MaxFPS caps the delivery rate per viewer.
	MaxFPS float64
	// JPEGQuality is passed through to the capture decoder.
	JPEGQuality int
	// ConnectTimeout bounds each (re)connection attempt to the camera.
	ConnectTimeout time.Duration
	// Heartbeat is how often the last frame is resent when the camera is
	// quiet, so viewers and intermediaries keep the connection alive.
	Heartbeat time.Duration
	// IdleReconnect is how long the camera may stay quiet before the
	// session is torn down and reopened.
	IdleReconnect time.Duration
}

func (o *ProxyOptions) defaults() {
	if o.MaxFPS <= 0 {
		o.MaxFPS = 10
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 2 * time.Second
	}
	if o.IdleReconnect <= 0 {
		o.IdleReconnect = 15 * time.Second
	}
}

// frameSource is the part of a capture session the proxy needs.
type frameSource interface {
	ReadFrame(timeout time.Duration) ([]byte, error)
	Close() error
}

// sourceOpener dials a camera. Swappable in tests.
type sourceOpener func(ctx context.Context, opts capture.Options) (frameSource, error)

func openCapture(ctx context.Context, opts capture.Options) (frameSource, error) {
	return capture.Open(ctx, opts)
}

// Proxy serves live camera video as multipart MJPEG. Every viewer gets its
// own capture session; a viewer disconnecting never disturbs another.
type Proxy struct {
	opts ProxyOptions
	open sourceOpener
}

// NewProxy creates a live-view proxy with the given options.
func NewProxy(opts ProxyOptions) *Proxy {
	opts.defaults()
	return &Proxy{opts: opts, open: openCapture}
}

// Serve streams the camera to one HTTP viewer until the viewer disconnects
// or ctx is cancelled. The capture session is always released on return.
func (p *Proxy) Serve(ctx context.Context, w http.ResponseWriter, camera database.CameraConfig) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	h := w.Header()
	h.Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)

	fps := p.opts.MaxFPS
	if camera.MaxFPS > 0 && camera.MaxFPS < fps {
		fps = camera.MaxFPS
	}
	frameInterval := time.Duration(float64(time.Second) / fps)

	quality := camera.JPEGQuality
	if quality <= 0 {
		quality = p.opts.JPEGQuality
	}
	opts := capture.Options{
		URL:            camera.RTSPURL,
		FPS:            fps,
		Quality:        quality,
		ConnectTimeout: p.opts.ConnectTimeout,
		Label:          camera.ID + "-live",
	}

	var (
		session   frameSource
		lastFrame []byte
		lastRecv  = time.Now()
		lastSent  time.Time
	)
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	for ctx.Err() == nil {
		if session == nil {
			var err error
			session, err = p.open(ctx, opts)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("[%s] live proxy: connect failed: %v", camera.ID, err)
				// A viewer that has seen real frames keeps seeing the
				// last one; the placeholder is only for a stream that
				// never produced anything.
				keepAlive := lastFrame
				if keepAlive == nil {
					keepAlive = placeholderFrame()
				}
				if werr := writePart(w, flusher, keepAlive); werr != nil {
					return nil
				}
				if !sleepUnlessDone(ctx, p.opts.Heartbeat) {
					return nil
				}
				continue
			}
			lastRecv = time.Now()
		}

		frame, err := session.ReadFrame(p.opts.Heartbeat)
		now := time.Now()
		switch err {
		case nil:
			lastFrame = frame
			lastRecv = now
		case capture.ErrNoFrame:
			// Camera quiet: resend the last frame as a heartbeat, and
			// reconnect if the silence drags on.
			if now.Sub(lastRecv) > p.opts.IdleReconnect {
				log.Printf("[%s] live proxy: camera idle %s, reconnecting", camera.ID, now.Sub(lastRecv).Truncate(time.Second))
				session.Close()
				session = nil
				continue
			}
			if lastFrame == nil {
				lastFrame = placeholderFrame()
			}
		default:
			session.Close()
			session = nil
			continue
		}

		// Pace delivery so a fast camera cannot exceed the viewer cap.
		if wait := frameInterval - now.Sub(lastSent); wait > 0 && err == nil {
			if !sleepUnlessDone(ctx, wait) {
				return nil
			}
		}

		if werr := writePart(w, flusher, lastFrame); werr != nil {
			// Viewer went away.
			return nil
		}
		lastSent = time.Now()
	}
	return nil
}

func writePart(w http.ResponseWriter, flusher http.Flusher, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if _, err := fmt.Fprint(w, "\r\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func sleepUnlessDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var (
	placeholderOnce sync.Once
	placeholderJPEG []byte
)

// placeholderFrame is a flat gray image sent while no camera frames exist,
// so viewers see a picture instead of a stalled connection.
func placeholderFrame() []byte {
	placeholderOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 320, 240))
		gray := color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xFF}
		for y := 0; y < 240; y++ {
			for x := 0; x < 320; x++ {
				img.Set(x, y, gray)
			}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 60}); err != nil {
			placeholderJPEG = []byte{0xFF, 0xD8, 0xFF, 0xD9}
			return
		}
		placeholderJPEG = buf.Bytes()
	})
	return placeholderJPEG
}
