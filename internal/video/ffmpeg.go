package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder decodes videos with the ffprobe and ffmpeg binaries
type FFmpegDecoder struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpegDecoder creates a decoder using the given binaries
func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	return &FFmpegDecoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Open counts the frames of the first video stream.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (Video, error) {
	out, err := d.run(ctx, d.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-count_packets",
		"-show_entries", "stream=nb_read_packets",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return &ffmpegVideo{
		decoder: d,
		path:    path,
		frames:  parseFrameCount(out),
	}, nil
}

// parseFrameCount reads ffprobe's count; anything unparsable counts as 0.
func parseFrameCount(out string) int {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (d *FFmpegDecoder) run(ctx context.Context, bin string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

type ffmpegVideo struct {
	decoder *FFmpegDecoder
	path    string
	frames  int
}

func (v *ffmpegVideo) FrameCount() int {
	return v.frames
}

// ReadFrame selects exactly frame n of the stream and encodes it as JPEG.
func (v *ffmpegVideo) ReadFrame(ctx context.Context, index int, dst string) error {
	_, err := v.decoder.run(ctx, v.decoder.FFmpegPath,
		"-v", "error",
		"-y",
		"-i", v.path,
		"-vf", fmt.Sprintf(`select=eq(n\,%d)`, index),
		"-vsync", "0",
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		dst,
	)
	if err != nil {
		return fmt.Errorf("decode frame %d: %w", index, err)
	}

	// ffmpeg exits 0 without output when the index is past the end.
	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("decode frame %d: %w", index, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("decode frame %d: no output", index)
	}
	return nil
}

func (v *ffmpegVideo) Close() error {
	return nil
}
