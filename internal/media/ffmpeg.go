package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner invokes the external media tool for a single operation. Every call
// blocks until the tool exits and returns an error on non-zero exit.
type Runner interface {
	// ExtractClip copies a window of the source starting at start seconds
	// and lasting duration seconds into dst. A window longer than the
	// remaining source is truncated by the tool itself.
	ExtractClip(ctx context.Context, src, dst string, start, duration float64) error

	// Concat joins the files named in listFile (ffmpeg concat demuxer
	// format) into dst using a stream copy, no re-encode.
	Concat(ctx context.Context, listFile, dst string) error

	// Overlay composites the watermark image onto src at a fixed corner
	// offset, writing the result to dst.
	Overlay(ctx context.Context, src, watermark, dst string) error
}

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	bin string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{bin: "ffmpeg"}
}

func (f *FFmpeg) ExtractClip(ctx context.Context, src, dst string, start, duration float64) error {
	return f.run(ctx, extractArgs(src, dst, start, duration))
}

func (f *FFmpeg) Concat(ctx context.Context, listFile, dst string) error {
	return f.run(ctx, concatArgs(listFile, dst))
}

func (f *FFmpeg) Overlay(ctx context.Context, src, watermark, dst string) error {
	return f.run(ctx, overlayArgs(src, watermark, dst))
}

func extractArgs(src, dst string, start, duration float64) []string {
	return []string{
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(duration),
		"-y", dst,
	}
}

func concatArgs(listFile, dst string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-y", dst,
	}
}

func overlayArgs(src, watermark, dst string) []string {
	return []string{
		"-i", src,
		"-i", watermark,
		"-filter_complex", "[0:v][1:v] overlay=10:main_h-overlay_h-10",
		"-y", dst,
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.bin, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", args[0], err, lastLines(stderr.String(), 3))
	}
	return nil
}

// lastLines keeps the tail of ffmpeg's stderr, which is where the actual
// failure reason ends up.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
