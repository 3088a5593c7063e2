package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBucketPathLayout(t *testing.T) {
	ts := time.Date(2026, 3, 7, 9, 5, 42, 0, time.UTC)
	got := BucketPath("/data/recordings", "cam1", ts)
	want := filepath.Join("/data/recordings", "cam1", "2026", "03", "07", "09", "05")
	if got != want {
		t.Errorf("BucketPath = %s, want %s", got, want)
	}
	if rel := BucketRelPath(ts); rel != "2026/03/07/09/05" {
		t.Errorf("BucketRelPath = %s", rel)
	}
}

func TestParseBucketPath(t *testing.T) {
	tests := []struct {
		name    string
		parts   [5]string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "valid",
			parts: [5]string{"2026", "03", "07", "09", "05"},
			want:  time.Date(2026, 3, 7, 9, 5, 0, 0, time.UTC),
		},
		{
			name:    "non numeric",
			parts:   [5]string{"2026", "03", "xx", "09", "05"},
			wantErr: true,
		},
		{
			name:    "minute out of range",
			parts:   [5]string{"2026", "03", "07", "09", "61"},
			wantErr: true,
		},
		{
			name:    "month out of range",
			parts:   [5]string{"2026", "13", "07", "09", "05"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBucketPath(tt.parts[0], tt.parts[1], tt.parts[2], tt.parts[3], tt.parts[4])
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListBucketsSortedAndSkipsClips(t *testing.T) {
	root := t.TempDir()
	times := []time.Time{
		time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC),
		time.Date(2026, 1, 2, 10, 29, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC),
	}
	for _, ts := range times {
		if err := os.MkdirAll(BucketPath(root, "cam1", ts), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "cam1", ClipsDirName, "2026"), 0755); err != nil {
		t.Fatal(err)
	}

	buckets, err := ListBuckets(root, "cam1")
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(buckets))
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Time.Before(buckets[i-1].Time) {
			t.Errorf("buckets out of order: %v before %v", buckets[i].Time, buckets[i-1].Time)
		}
	}
	if !buckets[0].Time.Equal(times[2]) {
		t.Errorf("first bucket = %v, want %v", buckets[0].Time, times[2])
	}
}

func TestListBucketsMtimeFallback(t *testing.T) {
	root := t.TempDir()
	// A directory at bucket depth whose name does not parse as a minute.
	bad := filepath.Join(root, "cam1", "2026", "01", "02", "10", "junk")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(bad, old, old); err != nil {
		t.Fatal(err)
	}

	buckets, err := ListBuckets(root, "cam1")
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1", len(buckets))
	}
	if diff := buckets[0].Time.Sub(old); diff > time.Second || diff < -time.Second {
		t.Errorf("fallback time %v, want ~%v", buckets[0].Time, old)
	}
}

func TestBucketsInRange(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		if err := os.MkdirAll(BucketPath(root, "cam1", ts), 0755); err != nil {
			t.Fatal(err)
		}
	}

	// 10:01:30 through 10:03:10 touches the 10:01, 10:02 and 10:03 buckets.
	from := base.Add(time.Minute + 30*time.Second)
	to := base.Add(3*time.Minute + 10*time.Second)
	buckets, err := BucketsInRange(root, "cam1", from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(buckets))
	}
	if !buckets[0].Time.Equal(base.Add(time.Minute)) {
		t.Errorf("first bucket = %v", buckets[0].Time)
	}
	if !buckets[2].Time.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("last bucket = %v", buckets[2].Time)
	}
}

func TestBucketsInRangeMissingCamera(t *testing.T) {
	buckets, err := BucketsInRange(t.TempDir(), "ghost", time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != 0 {
		t.Errorf("got %d buckets, want 0", len(buckets))
	}
}
