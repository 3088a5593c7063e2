package capture

import (
	"bytes"
	"io"
	"testing"
)

func jpegBytes(payload ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	frame = append(frame, 0xFF, 0xD9)
	return frame
}

func TestFrameScannerSplitsFrames(t *testing.T) {
	first := jpegBytes(0x01, 0x02, 0x03)
	second := jpegBytes(0x0A, 0x0B)

	var stream bytes.Buffer
	stream.Write(first)
	stream.Write(second)

	sc := newFrameScanner(&stream)

	got, err := sc.Next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Errorf("first frame = %x, want %x", got, first)
	}

	got, err = sc.Next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Errorf("second frame = %x, want %x", got, second)
	}

	if _, err := sc.Next(); err != io.EOF {
		t.Errorf("expected EOF after last frame, got %v", err)
	}
}

func TestFrameScannerSkipsLeadingGarbage(t *testing.T) {
	frame := jpegBytes(0x42)

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11, 0xFF, 0x00, 0x22})
	stream.Write(frame)

	sc := newFrameScanner(&stream)
	got, err := sc.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("frame = %x, want %x", got, frame)
	}
}

func TestFrameScannerTruncatedFrame(t *testing.T) {
	// SOI but no EOI: the scanner must surface the stream error, not hang.
	var stream bytes.Buffer
	stream.Write([]byte{0xFF, 0xD8, 0x01, 0x02})

	sc := newFrameScanner(&stream)
	if _, err := sc.Next(); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestJPEGQScale(t *testing.T) {
	tests := []struct {
		quality int
		min     int
		max     int
	}{
		{100, 2, 2},
		{75, 2, 12},
		{50, 10, 20},
		{1, 31, 31},
	}

	for _, tt := range tests {
		q := jpegQScale(tt.quality)
		if q < tt.min || q > tt.max {
			t.Errorf("jpegQScale(%d) = %d, want within [%d, %d]", tt.quality, q, tt.min, tt.max)
		}
		if q < 2 || q > 31 {
			t.Errorf("jpegQScale(%d) = %d, outside ffmpeg's 2-31 range", tt.quality, q)
		}
	}
}
