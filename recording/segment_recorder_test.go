package recording

import (
	"errors"
	"fmt"
	"testing"
)

func TestRestartDelay(t *testing.T) {
	crash := fmt.Errorf("%w: exit status 1", errEncoderExited)
	if d := restartDelay(crash); d != 0 {
		t.Errorf("crash restart delayed by %v, want immediate restart", d)
	}

	startFail := errors.New("starting ffmpeg: executable not found")
	if d := restartDelay(startFail); d != reopenFailBackoff {
		t.Errorf("start-failure delay = %v, want %v", d, reopenFailBackoff)
	}
}
