package extractor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bdougie/filmstrip/internal/fileutils"
	"github.com/bdougie/filmstrip/internal/video"
)

const (
	DefaultNumFrames = 10
	DefaultQuality   = 95
)

var ErrInvalidFrameCount = errors.New("number of frames must be > 0")

// Result describes the frames written by one extraction.
type Result struct {
	OutputDir   string
	Paths       []string
	Count       int
	TotalFrames int
	Stride      int
}

type Extractor struct {
	open    video.Opener
	quality int
	logger  *slog.Logger
}

// NewExtractor creates an extractor. A nil opener falls back to ffmpeg and a
// quality outside 1..100 falls back to DefaultQuality.
func NewExtractor(open video.Opener, quality int, logger *slog.Logger) *Extractor {
	if open == nil {
		open = video.OpenFFmpeg
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{open: open, quality: quality, logger: logger}
}

// FrameName is the file name of the n-th extracted frame.
func FrameName(n int) string {
	return fmt.Sprintf("frame%d.jpg", n)
}

// Stride is the decode-order gap between selected frames, never below 1.
func Stride(totalFrames, numFrames int) int {
	if numFrames <= 0 {
		return 1
	}
	return max(1, totalFrames/numFrames)
}

// ExtractKeyFrames reads the whole video and writes every Stride-th frame, from
// the start, as frame0.jpg, frame1.jpg, ... inside outputDir. Stride is derived
// from numFrames, so roughly numFrames files are written.
func (e *Extractor) ExtractKeyFrames(ctx context.Context, videoPath, outputDir string, numFrames int) (*Result, error) {
	if numFrames <= 0 {
		return nil, ErrInvalidFrameCount
	}

	src, err := e.open(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video '%s': %w", videoPath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", outputDir, err)
	}

	total := src.FrameCount()
	res := &Result{
		OutputDir:   outputDir,
		TotalFrames: total,
		Stride:      Stride(total, numFrames),
	}

	e.logger.Debug("extracting key frames",
		"video", videoPath,
		"total_frames", total,
		"stride", res.Stride,
		"num_frames", numFrames,
	)

	// The whole source is read; the written count is ceil(total/stride). With an
	// unknown frame count the stride is 1, so only the leading numFrames are kept.
	for count := 0; total > 0 || res.Count < numFrames; count++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", count, err)
		}
		if count%res.Stride != 0 {
			continue
		}

		path := filepath.Join(outputDir, FrameName(res.Count))
		if err := e.writeFrame(path, img); err != nil {
			return nil, fmt.Errorf("write frame '%s': %w", path, err)
		}
		res.Paths = append(res.Paths, path)
		res.Count++
	}

	if total > 0 && total < numFrames {
		e.logger.Warn("video is shorter than the requested frame count",
			"total_frames", total,
			"num_frames", numFrames,
			"written", res.Count,
		)
	}
	return res, nil
}

func (e *Extractor) writeFrame(path string, img image.Image) error {
	return fileutils.WriteAtomic(path, 0o644, func(w io.Writer) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: e.quality})
	})
}
