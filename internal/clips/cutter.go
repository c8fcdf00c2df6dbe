package clips

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Cutter slices [start, end] seconds of src into dst.
type Cutter interface {
	Cut(ctx context.Context, src, dst string, startSec, endSec float64) error
}

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) Cut(ctx context.Context, src, dst string, startSec, endSec float64) error {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(src, dst, startSec, endSec)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[len(msg)-500:]
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}
	return nil
}

// Seeking after -i is slower but frame accurate.
func ffmpegArgs(src, dst string, startSec, endSec float64) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-ss", seconds(startSec),
		"-to", seconds(endSec),
		"-vn", "-acodec", "libmp3lame", "-q:a", "4",
		dst,
	}
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
