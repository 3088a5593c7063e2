package streaming

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"simpleye/recording"
)

// ErrNoRecordings means no playable segments exist in the requested window.
var ErrNoRecordings = errors.New("no recordings in requested range")

// Segment is one media segment from an HLS manifest.
type Segment struct {
	URI      string
	Duration float64
	// Start is the segment's absolute start time, taken from
	// EXT-X-PROGRAM-DATE-TIME and advanced by duration for segments
	// without their own tag. Zero when the manifest carries no date tags.
	Start time.Time
}

// Manifest is a parsed per-bucket HLS playlist.
type Manifest struct {
	TargetDuration float64
	Segments       []Segment
}

// ParseManifest reads an m3u8 playlist. Only the tags the recorder writes are
// understood; unknown tags are ignored.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var (
		m        Manifest
		duration float64
		next     time.Time
		haveTime bool
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || line == "#EXTM3U":
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			v, err := strconv.ParseFloat(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:"), 64)
			if err != nil {
				return nil, fmt.Errorf("bad target duration %q: %w", line, err)
			}
			m.TargetDuration = v
		case strings.HasPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:"):
			ts, err := parseProgramDate(strings.TrimPrefix(line, "#EXT-X-PROGRAM-DATE-TIME:"))
			if err != nil {
				return nil, fmt.Errorf("bad program date %q: %w", line, err)
			}
			next = ts
			haveTime = true
		case strings.HasPrefix(line, "#EXTINF:"):
			spec := strings.TrimPrefix(line, "#EXTINF:")
			if i := strings.IndexByte(spec, ','); i >= 0 {
				spec = spec[:i]
			}
			v, err := strconv.ParseFloat(spec, 64)
			if err != nil {
				return nil, fmt.Errorf("bad segment duration %q: %w", line, err)
			}
			duration = v
		case strings.HasPrefix(line, "#"):
		default:
			seg := Segment{URI: line, Duration: duration}
			if haveTime {
				seg.Start = next
				next = next.Add(time.Duration(duration * float64(time.Second)))
			}
			m.Segments = append(m.Segments, seg)
			duration = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &m, nil
}

// parseProgramDate accepts both RFC 3339 offsets and the colon-less form
// ffmpeg writes ("+0000").
func parseProgramDate(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05.999-0700", s)
}

// ParseManifestFile parses the playlist at path.
func ParseManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// BucketPlaylist pairs a bucket's parsed manifest with the URL prefix its
// segment URIs should be served under.
type BucketPlaylist struct {
	URLPrefix string
	Manifest  *Manifest
}

// Stitch joins per-minute playlists into one VOD playlist. Each bucket
// boundary gets an EXT-X-DISCONTINUITY because the buckets come from
// independent encoder runs.
func Stitch(buckets []BucketPlaylist) string {
	var maxDur float64
	for _, b := range buckets {
		for _, seg := range b.Manifest.Segments {
			if seg.Duration > maxDur {
				maxDur = seg.Duration
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&sb, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(maxDur)))
	sb.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	sb.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	for i, b := range buckets {
		if i > 0 {
			sb.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		for _, seg := range b.Manifest.Segments {
			if !seg.Start.IsZero() {
				fmt.Fprintf(&sb, "#EXT-X-PROGRAM-DATE-TIME:%s\n", seg.Start.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
			}
			fmt.Fprintf(&sb, "#EXTINF:%.3f,\n", seg.Duration)
			sb.WriteString(joinURL(b.URLPrefix, seg.URI))
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("#EXT-X-ENDLIST\n")
	return sb.String()
}

// StitchRange builds a playable playlist for a camera's recordings between
// from and to by stitching every bucket manifest in the window. urlRoot is
// where the recording tree is mounted, e.g. "/recordings".
func StitchRange(root, urlRoot, cameraID string, from, to time.Time) (string, error) {
	buckets, err := recording.BucketsInRange(root, cameraID, from, to)
	if err != nil {
		return "", fmt.Errorf("listing buckets: %w", err)
	}

	playlists := make([]BucketPlaylist, 0, len(buckets))
	for _, b := range buckets {
		path := filepath.Join(b.Path, recording.ManifestName)
		m, err := ParseManifestFile(path)
		if err != nil {
			// Snapshot-mode minutes have no manifest, and a corrupt one
			// costs that minute only; playback degrades, never fails.
			if !os.IsNotExist(err) {
				log.Printf("[playback] skipping unreadable manifest %s: %v", path, err)
			}
			continue
		}
		if len(m.Segments) == 0 {
			continue
		}
		playlists = append(playlists, BucketPlaylist{
			URLPrefix: fmt.Sprintf("%s/%s/%s", urlRoot, cameraID, recording.BucketRelPath(b.Time)),
			Manifest:  m,
		})
	}
	if len(playlists) == 0 {
		return "", ErrNoRecordings
	}
	return Stitch(playlists), nil
}

func joinURL(prefix, uri string) string {
	if prefix == "" {
		return uri
	}
	return strings.TrimSuffix(prefix, "/") + "/" + uri
}
