package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// ManifestName is the per-bucket HLS playlist written by the segment recorder.
const ManifestName = "index.m3u8"

// ClipsDirName is the per-camera namespace for extracted clips. It lives next
// to the year directories and must never be treated as a recording bucket.
const ClipsDirName = "clips"

// BucketPath returns the minute-bucket directory for a camera at ts:
// <root>/<cameraID>/YYYY/MM/DD/HH/MM
func BucketPath(root, cameraID string, ts time.Time) string {
	return filepath.Join(
		root,
		cameraID,
		ts.Format("2006"), ts.Format("01"), ts.Format("02"),
		ts.Format("15"), ts.Format("04"),
	)
}

// BucketRelPath returns the bucket path relative to the camera root, using
// forward slashes (suitable for URLs).
func BucketRelPath(ts time.Time) string {
	return ts.Format("2006/01/02/15/04")
}

// ParseBucketPath reconstructs a bucket's timestamp from its five trailing
// path components. The components are year/month/day/hour/minute.
func ParseBucketPath(year, month, day, hour, minute string) (time.Time, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad year %q: %w", year, err)
	}
	mo, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad month %q: %w", month, err)
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad day %q: %w", day, err)
	}
	h, err := strconv.Atoi(hour)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad hour %q: %w", hour, err)
	}
	mi, err := strconv.Atoi(minute)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad minute %q: %w", minute, err)
	}
	if mo < 1 || mo > 12 || d < 1 || d > 31 || h < 0 || h > 23 || mi < 0 || mi > 59 {
		return time.Time{}, fmt.Errorf("path components out of range: %s/%s/%s/%s/%s", year, month, day, hour, minute)
	}
	return time.Date(y, time.Month(mo), d, h, mi, 0, 0, time.UTC), nil
}

// Bucket is one minute directory of recorded output with its reconstructed
// start time.
type Bucket struct {
	Path string
	Time time.Time
}

// ListBuckets walks a camera's bucket tree and returns every minute bucket
// with a parseable timestamp, sorted chronologically. Buckets whose path does
// not parse fall back to the directory's modification time. The clips
// namespace is skipped.
func ListBuckets(root, cameraID string) ([]Bucket, error) {
	camRoot := filepath.Join(root, cameraID)
	years, err := os.ReadDir(camRoot)
	if err != nil {
		return nil, err
	}

	var buckets []Bucket
	for _, y := range years {
		if !y.IsDir() || y.Name() == ClipsDirName {
			continue
		}
		walkLevel(filepath.Join(camRoot, y.Name()), []string{y.Name()}, &buckets)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Time.Before(buckets[j].Time)
	})
	return buckets, nil
}

// walkLevel recurses through month/day/hour/minute directories, collecting
// minute buckets once five components are known.
func walkLevel(dir string, components []string, buckets *[]Bucket) {
	if len(components) == 5 {
		ts, err := ParseBucketPath(components[0], components[1], components[2], components[3], components[4])
		if err != nil {
			// Malformed path: trust the filesystem instead.
			info, statErr := os.Stat(dir)
			if statErr != nil {
				return
			}
			ts = info.ModTime()
		}
		*buckets = append(*buckets, Bucket{Path: dir, Time: ts})
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		walkLevel(filepath.Join(dir, e.Name()), append(components, e.Name()), buckets)
	}
}

// BucketsInRange returns the camera's buckets whose minute overlaps
// [from, to], in chronological order.
func BucketsInRange(root, cameraID string, from, to time.Time) ([]Bucket, error) {
	all, err := ListBuckets(root, cameraID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Bucket
	for _, b := range all {
		// A bucket covers [b.Time, b.Time+1m).
		if b.Time.Add(time.Minute).After(from) && !b.Time.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}
