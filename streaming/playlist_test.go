package streaming

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"simpleye/recording"
)

const sampleManifest = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:0
#EXT-X-PROGRAM-DATE-TIME:2026-01-02T10:00:00.000+0000
#EXTINF:2.000000,
index0.ts
#EXTINF:2.000000,
index1.ts
#EXTINF:1.500000,
index2.ts
#EXT-X-ENDLIST
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(sampleManifest))
	if err != nil {
		t.Fatal(err)
	}
	if m.TargetDuration != 2 {
		t.Errorf("TargetDuration = %v, want 2", m.TargetDuration)
	}
	if len(m.Segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(m.Segments))
	}
	if m.Segments[0].URI != "index0.ts" || m.Segments[0].Duration != 2 {
		t.Errorf("segment 0 = %+v", m.Segments[0])
	}
	if m.Segments[2].Duration != 1.5 {
		t.Errorf("segment 2 duration = %v, want 1.5", m.Segments[2].Duration)
	}

	// The date tag applies to the first segment and advances by duration.
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	if !m.Segments[0].Start.Equal(base) {
		t.Errorf("segment 0 start = %v", m.Segments[0].Start)
	}
	if !m.Segments[2].Start.Equal(base.Add(4 * time.Second)) {
		t.Errorf("segment 2 start = %v, want %v", m.Segments[2].Start, base.Add(4*time.Second))
	}
}

func TestParseManifestRejectsBadDuration(t *testing.T) {
	_, err := ParseManifest(strings.NewReader("#EXTM3U\n#EXTINF:abc,\nindex0.ts\n"))
	if err == nil {
		t.Fatal("expected error for malformed EXTINF")
	}
}

func bucketOf(durations ...float64) *Manifest {
	m := &Manifest{TargetDuration: 2}
	for i, d := range durations {
		m.Segments = append(m.Segments, Segment{
			URI:      "index" + string(rune('0'+i)) + ".ts",
			Duration: d,
		})
	}
	return m
}

func TestStitchInsertsDiscontinuityBetweenBuckets(t *testing.T) {
	out := Stitch([]BucketPlaylist{
		{URLPrefix: "/recordings/cam1/2026/01/02/10/00", Manifest: bucketOf(2, 2, 2)},
		{URLPrefix: "/recordings/cam1/2026/01/02/10/01", Manifest: bucketOf(2, 2, 2)},
	})

	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Error("missing #EXTM3U header")
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0\n") {
		t.Error("missing media sequence 0")
	}
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:2\n") {
		t.Error("missing target duration")
	}
	if !strings.HasSuffix(out, "#EXT-X-ENDLIST\n") {
		t.Error("missing endlist")
	}
	if got := strings.Count(out, "#EXT-X-DISCONTINUITY\n"); got != 1 {
		t.Errorf("got %d discontinuities, want 1", got)
	}
	if got := strings.Count(out, ".ts\n"); got != 6 {
		t.Errorf("got %d segment lines, want 6", got)
	}

	// The discontinuity sits between the buckets, after the third segment.
	idx := strings.Index(out, "#EXT-X-DISCONTINUITY")
	before := strings.Count(out[:idx], ".ts\n")
	if before != 3 {
		t.Errorf("discontinuity after %d segments, want 3", before)
	}
	if !strings.Contains(out, "/recordings/cam1/2026/01/02/10/01/index0.ts\n") {
		t.Error("second bucket URIs not prefixed")
	}
}

func TestStitchTargetDurationIsMaxSegment(t *testing.T) {
	out := Stitch([]BucketPlaylist{
		{URLPrefix: "a", Manifest: bucketOf(2, 2)},
		{URLPrefix: "b", Manifest: bucketOf(3.2, 1)},
	})
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:4\n") {
		t.Errorf("target duration not rounded up from longest segment:\n%s", out)
	}
}

func TestStitchRange(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		dir := recording.BucketPath(root, "cam1", base.Add(time.Duration(i)*time.Minute))
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, recording.ManifestName), []byte(sampleManifest), 0644); err != nil {
			t.Fatal(err)
		}
	}
	// A snapshot-mode bucket without a manifest must be skipped, not fatal.
	if err := os.MkdirAll(recording.BucketPath(root, "cam1", base.Add(2*time.Minute)), 0755); err != nil {
		t.Fatal(err)
	}

	out, err := StitchRange(root, "/recordings", "cam1", base, base.Add(3*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, ".ts\n"); got != 6 {
		t.Errorf("got %d segments, want 6", got)
	}
	if !strings.Contains(out, "/recordings/cam1/2026/01/02/10/01/index1.ts\n") {
		t.Error("segment URIs not rewritten under url root")
	}
}

func TestStitchRangeSkipsCorruptManifest(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	good := recording.BucketPath(root, "cam1", base)
	if err := os.MkdirAll(good, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(good, recording.ManifestName), []byte(sampleManifest), 0644); err != nil {
		t.Fatal(err)
	}

	bad := recording.BucketPath(root, "cam1", base.Add(time.Minute))
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, recording.ManifestName), []byte("#EXTM3U\n#EXTINF:garbage,\nindex0.ts\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := StitchRange(root, "/recordings", "cam1", base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("corrupt manifest should degrade, not fail: %v", err)
	}
	if got := strings.Count(out, ".ts\n"); got != 3 {
		t.Errorf("got %d segments, want 3 from the readable bucket", got)
	}
}

func TestStitchRangeEmpty(t *testing.T) {
	_, err := StitchRange(t.TempDir(), "/recordings", "cam1", time.Now().Add(-time.Hour), time.Now())
	if err != ErrNoRecordings {
		t.Fatalf("err = %v, want ErrNoRecordings", err)
	}
}
