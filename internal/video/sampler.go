// Package video samples still frames from uploaded videos.
package video

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("safeupload-video")

// DefaultMaxFrames is the number of frames sampled per video
const DefaultMaxFrames = 5

// Decoder opens videos for frame-accurate reads
type Decoder interface {
	Open(ctx context.Context, path string) (Video, error)
}

// Video is an opened video stream
type Video interface {
	// FrameCount returns the total number of frames, 0 if unknown.
	FrameCount() int
	// ReadFrame seeks to index and writes that frame as a JPEG to dst.
	ReadFrame(ctx context.Context, index int, dst string) error
	Close() error
}

// Frame is one decoded still image. The owner must call Release.
type Frame struct {
	Index int
	Path  string
}

// Data reads the encoded image
func (f *Frame) Data() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Release deletes the frame's file
func (f *Frame) Release() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove frame %d: %w", f.Index, err)
	}
	return nil
}

// SampleIndices returns maxFrames evenly strided indices into a video
// of total frames, always starting at 0.
func SampleIndices(total, maxFrames int) []int {
	if total <= 0 || maxFrames <= 0 {
		return nil
	}

	indices := make([]int, maxFrames)
	for i := range indices {
		indices[i] = i * total / maxFrames
	}
	return indices
}

// Sampler extracts frames with a Decoder into a scratch directory
type Sampler struct {
	decoder   Decoder
	maxFrames int
	tempDir   string
}

// NewSampler creates a sampler. Frames are written under tempDir, or the
// system temp directory when tempDir is empty.
func NewSampler(decoder Decoder, maxFrames int, tempDir string) *Sampler {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &Sampler{
		decoder:   decoder,
		maxFrames: maxFrames,
		tempDir:   tempDir,
	}
}

// Scan decodes sampled frames one at a time in index order and passes
// each to fn. The frame is released as soon as fn returns. Scan stops
// when fn returns false; later frames are never decoded. Frames that fail
// to decode are skipped.
func (s *Sampler) Scan(ctx context.Context, path string, fn func(*Frame) bool) error {
	ctx, span := tracer.Start(ctx, "video.scan")
	defer span.End()

	v, err := s.decoder.Open(ctx, path)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer v.Close()

	dir, err := os.MkdirTemp(s.tempDir, "frames-")
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create frame directory: %w", err)
	}
	defer os.RemoveAll(dir)

	indices := SampleIndices(v.FrameCount(), s.maxFrames)
	span.SetAttributes(
		attribute.Int("frame_count", v.FrameCount()),
		attribute.IntSlice("sample_indices", indices),
	)

	decoded := 0
	for _, idx := range indices {
		frame, ok := s.decode(ctx, v, dir, idx)
		if !ok {
			continue
		}
		decoded++

		more := s.visit(frame, fn)
		if !more {
			break
		}
	}

	span.SetAttributes(attribute.Int("frames_decoded", decoded))
	return nil
}

// visit runs fn and releases the frame on every exit path
func (s *Sampler) visit(frame *Frame, fn func(*Frame) bool) bool {
	defer func() {
		if err := frame.Release(); err != nil {
			log.Printf("Warning: %v", err)
		}
	}()
	return fn(frame)
}

// Sample decodes every sampled frame up front. Ownership of the returned
// frames passes to the caller, who must Release each one.
func (s *Sampler) Sample(ctx context.Context, path string) ([]*Frame, error) {
	v, err := s.decoder.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video: %w", err)
	}
	defer v.Close()

	var frames []*Frame
	for _, idx := range SampleIndices(v.FrameCount(), s.maxFrames) {
		if frame, ok := s.decode(ctx, v, s.tempDir, idx); ok {
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

func (s *Sampler) decode(ctx context.Context, v Video, dir string, idx int) (*Frame, bool) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("frame-%d-*.jpg", idx))
	if err != nil {
		log.Printf("Warning: failed to allocate frame %d: %v", idx, err)
		return nil, false
	}
	dst := f.Name()
	f.Close()

	if err := v.ReadFrame(ctx, idx, dst); err != nil {
		os.Remove(dst)
		return nil, false
	}
	return &Frame{Index: idx, Path: filepath.Clean(dst)}, true
}
