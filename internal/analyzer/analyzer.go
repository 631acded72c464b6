package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bdougie/filmstrip/internal/extractor"
	"github.com/bdougie/filmstrip/internal/fileutils"
	"github.com/bdougie/filmstrip/internal/metrics"
	"github.com/bdougie/filmstrip/internal/models"
	"github.com/bdougie/filmstrip/internal/stitcher"
	"github.com/bdougie/filmstrip/internal/storage"
	"github.com/bdougie/filmstrip/internal/upload"
)

// ImageDescriber returns a natural-language description of the image at a URL.
type ImageDescriber interface {
	Describe(ctx context.Context, imageURL string) (string, error)
	Model() string
}

// Processor runs the extract, stitch, upload and describe stages once, in order.
type Processor struct {
	extractor *extractor.Extractor
	uploader  upload.Uploader
	describer ImageDescriber
	storage   storage.Storage
	logger    *slog.Logger
}

// NewProcessor wires the pipeline stages. store may be nil.
func NewProcessor(ex *extractor.Extractor, up upload.Uploader, d ImageDescriber, store storage.Storage, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		extractor: ex,
		uploader:  up,
		describer: d,
		storage:   store,
		logger:    logger,
	}
}

// Job names the inputs and outputs of one pipeline run.
type Job struct {
	VideoPath    string
	OutputDir    string
	StitchedPath string
	NumFrames    int
	// JPEGQuality applies to a JPEG strip; zero means stitcher.DefaultQuality.
	JPEGQuality int
}

// ProcessVideo runs the full pipeline for job and returns the recorded
// description. The first failing stage aborts the run.
func (p *Processor) ProcessVideo(ctx context.Context, job Job) (desc *models.Description, err error) {
	defer func() {
		if err != nil {
			metrics.LastRunSuccess.Set(0)
		} else {
			metrics.LastRunSuccess.Set(1)
		}
	}()

	p.logger.Info("processing video", "video", job.VideoPath)

	p.logger.Info("extracting key frames", "count", job.NumFrames, "dir", job.OutputDir)
	frames, err := timeStage("extract", func() (*extractor.Result, error) {
		return p.extractor.ExtractKeyFrames(ctx, job.VideoPath, job.OutputDir, job.NumFrames)
	})
	if err != nil {
		return nil, fmt.Errorf("extract key frames: %w", err)
	}
	metrics.FramesExtractedTotal.Add(float64(frames.Count))
	if frames.Count == 0 {
		return nil, fmt.Errorf("extract key frames: %w", stitcher.ErrNoImages)
	}

	p.logger.Info("stitching images", "frames", frames.Count, "output", job.StitchedPath)
	strip, err := timeStage("stitch", func() (*stitcher.Result, error) {
		return stitcher.New(job.JPEGQuality).StitchFiles(frames.Paths, job.StitchedPath)
	})
	if err != nil {
		return nil, fmt.Errorf("stitch images: %w", err)
	}
	p.logger.Debug("stitched image written", "path", strip.Path, "width", strip.Width, "height", strip.Height)

	imageURL, err := timeStage("upload", func() (string, error) {
		return p.uploader.Upload(ctx, strip.Path)
	})
	if err != nil {
		return nil, fmt.Errorf("upload stitched image: %w", err)
	}

	p.logger.Info("requesting description", "model", p.describer.Model(), "url", imageURL)
	content, err := p.Describe(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	desc = models.NewDescription(fileutils.BaseName(job.VideoPath))
	desc.FrameCount = frames.Count
	desc.StitchedPath = strip.Path
	desc.ImageURL = imageURL
	desc.Model = p.describer.Model()
	desc.Content = content

	if p.storage != nil {
		if _, err := timeStage("record", func() (struct{}, error) {
			return struct{}{}, p.storage.Save(ctx, desc)
		}); err != nil {
			return nil, fmt.Errorf("record description: %w", err)
		}
	}

	return desc, nil
}

// Describe requests a description of imageURL, counting the outcome.
func (p *Processor) Describe(ctx context.Context, imageURL string) (string, error) {
	content, err := timeStage("describe", func() (string, error) {
		return p.describer.Describe(ctx, imageURL)
	})
	if err != nil {
		metrics.DescriptionRequestsTotal.WithLabelValues(outcome(err)).Inc()
		return "", fmt.Errorf("request description: %w", err)
	}
	metrics.DescriptionRequestsTotal.WithLabelValues("success").Inc()
	return content, nil
}

// DescribeFile uploads a local image and describes it.
func (p *Processor) DescribeFile(ctx context.Context, imagePath string) (string, error) {
	abs, err := filepath.Abs(imagePath)
	if err != nil {
		return "", err
	}
	imageURL, err := p.uploader.Upload(ctx, abs)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return p.Describe(ctx, imageURL)
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return "status_error"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func timeStage[T any](stage string, fn func() (T, error)) (T, error) {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(stage))
	defer timer.ObserveDuration()
	return fn()
}
