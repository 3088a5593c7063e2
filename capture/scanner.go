package capture

import (
	"bufio"
	"io"
)

// frameScanner splits a raw MJPEG byte stream into individual JPEG images by
// scanning for the SOI (FFD8) and EOI (FFD9) markers.
type frameScanner struct {
	r *bufio.Reader
}

func newFrameScanner(r io.Reader) *frameScanner {
	return &frameScanner{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next returns the next complete JPEG frame, or an error once the underlying
// stream ends.
func (s *frameScanner) Next() ([]byte, error) {
	if err := s.seekSOI(); err != nil {
		return nil, err
	}

	frame := []byte{0xFF, 0xD8}
	prev := byte(0)
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		frame = append(frame, b)
		if prev == 0xFF && b == 0xD9 {
			return frame, nil
		}
		prev = b
	}
}

// seekSOI discards bytes until a start-of-image marker has been consumed.
func (s *frameScanner) seekSOI() error {
	prev := byte(0)
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == 0xD8 {
			return nil
		}
		prev = b
	}
}
