package recording

import (
	"context"
	"testing"
	"time"

	"simpleye/database"
)

type fakeWorker struct {
	mode    database.RecordingMode
	stopped bool
	done    chan struct{}
}

func (w *fakeWorker) Mode() database.RecordingMode { return w.mode }

func (w *fakeWorker) Stop() {
	if !w.stopped {
		w.stopped = true
		close(w.done)
	}
}

func (w *fakeWorker) Done() <-chan struct{} { return w.done }

func newTestSupervisor(feed database.CameraFeed) (*Supervisor, *[]*fakeWorker) {
	s := NewSupervisor(feed, "/tmp/unused", time.Second)
	var created []*fakeWorker
	s.factory = func(ctx context.Context, camera database.CameraConfig, root string) Worker {
		w := &fakeWorker{mode: camera.Mode(), done: make(chan struct{})}
		created = append(created, w)
		return w
	}
	return s, &created
}

func TestReconcileStartsAndStopsWorkers(t *testing.T) {
	feed := &staticFeed{cameras: []database.CameraConfig{
		{ID: "cam1", RTSPURL: "rtsp://x/1", Enabled: true, RecordingMode: string(database.ModeSegmented)},
		{ID: "cam2", RTSPURL: "rtsp://x/2", Enabled: true, RecordingMode: string(database.ModeSnapshot)},
		{ID: "cam3", Enabled: false},
	}}
	s, created := newTestSupervisor(feed)

	s.reconcile(context.Background())
	if got := s.WorkerCount(); got != 2 {
		t.Fatalf("WorkerCount = %d, want 2", got)
	}

	// Reconciling again with the same config changes nothing.
	s.reconcile(context.Background())
	if got := s.WorkerCount(); got != 2 {
		t.Fatalf("WorkerCount after second reconcile = %d, want 2", got)
	}
	if len(*created) != 2 {
		t.Fatalf("factory called %d times, want 2", len(*created))
	}

	// Disabling a camera stops its worker.
	feed.cameras[0].Enabled = false
	s.reconcile(context.Background())
	if got := s.WorkerCount(); got != 1 {
		t.Fatalf("WorkerCount after disable = %d, want 1", got)
	}
	if !(*created)[0].stopped {
		t.Error("worker for disabled camera not stopped")
	}
	if (*created)[1].stopped {
		t.Error("worker for still-enabled camera stopped")
	}
}

func TestReconcileReplacesWorkerOnModeChange(t *testing.T) {
	feed := &staticFeed{cameras: []database.CameraConfig{
		{ID: "cam1", RTSPURL: "rtsp://x/1", Enabled: true, RecordingMode: string(database.ModeSegmented)},
	}}
	s, created := newTestSupervisor(feed)

	s.reconcile(context.Background())
	if len(*created) != 1 {
		t.Fatalf("factory called %d times, want 1", len(*created))
	}

	// A mode flip inside the dwell window is ignored.
	feed.cameras[0].RecordingMode = string(database.ModeSnapshot)
	s.reconcile(context.Background())
	if len(*created) != 1 {
		t.Fatal("worker replaced before dwell elapsed")
	}

	// Age the worker past the dwell and reconcile again.
	s.mu.Lock()
	s.workers["cam1"].startedAt = time.Now().Add(-2 * modeChangeDwell)
	s.mu.Unlock()

	s.reconcile(context.Background())
	if len(*created) != 2 {
		t.Fatalf("factory called %d times after mode change, want 2", len(*created))
	}
	if !(*created)[0].stopped {
		t.Error("old worker not stopped on mode change")
	}
	if got := (*created)[1].mode; got != database.ModeSnapshot {
		t.Errorf("replacement worker mode = %s, want %s", got, database.ModeSnapshot)
	}
}

func TestReconcileRestartsDeadWorker(t *testing.T) {
	feed := &staticFeed{cameras: []database.CameraConfig{
		{ID: "cam1", RTSPURL: "rtsp://x/1", Enabled: true},
	}}
	s, created := newTestSupervisor(feed)

	s.reconcile(context.Background())
	(*created)[0].Stop() // simulate the worker goroutine exiting

	s.reconcile(context.Background())
	if len(*created) != 2 {
		t.Fatalf("factory called %d times, want 2 (dead worker restart)", len(*created))
	}
}

func TestReconcileSkipsCameraWithoutSource(t *testing.T) {
	feed := &staticFeed{cameras: []database.CameraConfig{
		{ID: "cam1", Enabled: true},
	}}
	s, _ := newTestSupervisor(feed)
	s.reconcile(context.Background())
	if got := s.WorkerCount(); got != 0 {
		t.Errorf("WorkerCount = %d, want 0 for camera without source URL", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	feed := &staticFeed{cameras: []database.CameraConfig{
		{ID: "cam1", RTSPURL: "rtsp://x/1", Enabled: true},
	}}
	s, created := newTestSupervisor(feed)
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for s.WorkerCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never started")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s.Stop()
	if got := s.WorkerCount(); got != 0 {
		t.Fatalf("WorkerCount after Stop = %d, want 0", got)
	}
	if !(*created)[0].stopped {
		t.Error("worker not stopped on supervisor Stop")
	}

	// A second Stop must not panic or block.
	s.Stop()
}
