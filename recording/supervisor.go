package recording

import (
	"context"
	"log"
	"sync"
	"time"

	"simpleye/database"
)

// Worker is a running per-camera recorder.
type Worker interface {
	Mode() database.RecordingMode
	Stop()
	Done() <-chan struct{}
}

// workerFactory builds a worker for a camera. Swappable in tests.
type workerFactory func(ctx context.Context, camera database.CameraConfig, root string) Worker

// modeChangeDwell is how long a worker must have been running before a
// mode-only config change replaces it, so a flapping config row cannot
// restart the encoder every reconcile.
const modeChangeDwell = 10 * time.Second

type managedWorker struct {
	worker    Worker
	startedAt time.Time
}

// Supervisor keeps one recorder running per enabled camera, reconciling the
// set of workers against camera config on a fixed interval.
type Supervisor struct {
	feed     database.CameraFeed
	root     string
	interval time.Duration
	factory  workerFactory

	mu      sync.Mutex
	workers map[string]*managedWorker

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates a supervisor. Call Start to begin reconciling.
func NewSupervisor(feed database.CameraFeed, root string, interval time.Duration) *Supervisor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Supervisor{
		feed:     feed,
		root:     root,
		interval: interval,
		factory:  defaultWorkerFactory,
		workers:  make(map[string]*managedWorker),
	}
}

func defaultWorkerFactory(ctx context.Context, camera database.CameraConfig, root string) Worker {
	if camera.Mode() == database.ModeSnapshot {
		return NewFrameRecorder(ctx, camera, root)
	}
	return NewSegmentRecorder(ctx, camera, root)
}

// Start launches the reconcile loop. Calling Start twice is an error in the
// caller; the supervisor does not guard against it.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop tears down the loop and asks every worker to stop. It does not wait
// for workers to finish; sessions close in their own time.
func (s *Supervisor) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, mw := range s.workers {
		mw.worker.Stop()
		delete(s.workers, id)
	}
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	s.reconcile(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

// reconcile brings the worker set in line with camera config: start workers
// for enabled cameras without one, stop workers for disabled or deleted
// cameras, and replace workers whose recording mode changed.
func (s *Supervisor) reconcile(ctx context.Context) {
	cameras, err := s.feed.GetCameras()
	if err != nil {
		log.Printf("[supervisor] loading cameras: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	wanted := make(map[string]bool, len(cameras))

	for _, cam := range cameras {
		if !cam.Enabled || cam.RTSPURL == "" {
			continue
		}
		wanted[cam.ID] = true

		mw, ok := s.workers[cam.ID]
		if ok {
			if workerDead(mw.worker) {
				log.Printf("[supervisor] camera %s: worker died, restarting", cam.ID)
			} else if mw.worker.Mode() == cam.Mode() || now.Sub(mw.startedAt) < modeChangeDwell {
				// Workers recover from source failures on their own;
				// only a mode change forces a replacement, and only
				// after a dwell.
				continue
			} else {
				log.Printf("[supervisor] camera %s: mode changed to %s, replacing worker", cam.ID, cam.Mode())
				mw.worker.Stop()
			}
		} else {
			log.Printf("[supervisor] camera %s: starting %s worker", cam.ID, cam.Mode())
		}

		s.workers[cam.ID] = &managedWorker{
			worker:    s.factory(ctx, cam, s.root),
			startedAt: now,
		}
	}

	for id, mw := range s.workers {
		if wanted[id] {
			continue
		}
		log.Printf("[supervisor] camera %s: no longer enabled, stopping worker", id)
		mw.worker.Stop()
		delete(s.workers, id)
	}
}

func workerDead(w Worker) bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}

// WorkerCount reports how many workers are currently managed.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
