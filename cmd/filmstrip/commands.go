package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bdougie/filmstrip/internal/analyzer"
	"github.com/bdougie/filmstrip/internal/config"
	"github.com/bdougie/filmstrip/internal/extractor"
	"github.com/bdougie/filmstrip/internal/stitcher"
)

// app carries the resolved configuration and output streams shared by every
// subcommand.
type app struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
}

func newApp(cfg *config.Config, stdout, stderr io.Writer) *app {
	return &app{cfg: cfg, stdout: stdout, stderr: stderr}
}

// execute runs the command line in args and logs the error, if any, through the
// same handler as the progress lines.
func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		a.log().Error("command failed", "error", err)
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "filmstrip",
		Short: "Describe a video from a strip of its key frames",
		Long: `filmstrip samples evenly spaced key frames from a video, stitches them into
one horizontal strip and asks a vision model what the strip shows.

Examples:
  # Full pipeline, with the strip hosted at a known URL
  filmstrip run --video clip.mp4 --image-url https://i.example.com/stitched_image.jpg

  # Full pipeline, uploading the strip to MinIO
  MINIO_ENDPOINT=localhost:9000 filmstrip run --video clip.mp4

  # Individual stages
  filmstrip extract --video clip.mp4 --frames 12
  filmstrip stitch --output output --stitched output/stitched_image.jpg
  filmstrip describe https://i.example.com/stitched_image.jpg
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := config.ParseLogLevel(a.cfg.LogLevel)
			if err != nil {
				return err
			}
			a.logger = newLogger(a.stderr, level)
			return nil
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	cfg := a.cfg
	pf := root.PersistentFlags()
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pf.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file when the command finishes")
	pf.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "Directory the key frames are written to")
	pf.StringVar(&cfg.StitchedPath, "stitched", cfg.StitchedPath, "Path of the stitched image (.jpg or .png)")

	root.AddCommand(
		a.runCmd(),
		a.extractCmd(),
		a.stitchCmd(),
		a.describeCmd(),
		a.searchCmd(),
	)
	return root
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05",
	}))
}

// log returns the command logger, or an info-level one when the command failed
// before its flags were applied.
func (a *app) log() *slog.Logger {
	if a.logger == nil {
		a.logger = newLogger(a.stderr, slog.LevelInfo)
	}
	return a.logger
}

func addExtractFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.VideoPath, "video", cfg.VideoPath, "Path to the input video")
	f.IntVar(&cfg.NumFrames, "frames", cfg.NumFrames, "Number of key frames to extract")
	f.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality of the extracted frames and the stitched image (1-100)")
}

func addDescribeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.ImageURL, "image-url", cfg.ImageURL, "Public URL of the stitched image")
	f.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "API key for the chat-completions endpoint (default $OPENAI_API_KEY)")
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL of the chat-completions API (default $OPENAI_BASE_URL or https://api.openai.com/v1/)")
	f.StringVar(&cfg.Model, "model", cfg.Model, "Vision model name")
	f.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Maximum tokens in the description")
	f.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Timeout for the description request")
	f.StringVar(&cfg.MinIOEndpoint, "minio-endpoint", cfg.MinIOEndpoint, "MinIO endpoint to upload the image to when no --image-url is given")
	f.StringVar(&cfg.MinIOBucket, "minio-bucket", cfg.MinIOBucket, "MinIO bucket for uploaded images")
	f.StringVar(&cfg.MinIOPrefix, "minio-prefix", cfg.MinIOPrefix, "Object key prefix for uploaded images")
}

func addRecordFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.ResultsPath, "results", cfg.ResultsPath, "Append the description record to this JSON file")
	f.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Store description records in this PostgreSQL database")
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract key frames, stitch them and describe the strip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.writeMetrics()

			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()

			up, err := a.newUploader(ctx)
			if err != nil {
				return err
			}
			store, err := a.newStorage(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			p := analyzer.NewProcessor(a.newExtractor(), up, a.newDescriber(), store, a.logger)
			desc, err := p.ProcessVideo(ctx, analyzer.Job{
				VideoPath:    a.cfg.VideoPath,
				OutputDir:    a.cfg.OutputDir,
				StitchedPath: a.cfg.StitchedPath,
				NumFrames:    a.cfg.NumFrames,
				JPEGQuality:  a.cfg.JPEGQuality,
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(a.stdout, desc.Content)
			return nil
		},
	}
	addExtractFlags(cmd, a.cfg)
	addDescribeFlags(cmd, a.cfg)
	addRecordFlags(cmd, a.cfg)
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Write evenly spaced key frames of a video as frame<N>.jpg",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.writeMetrics()

			if err := a.cfg.ValidateExtract(); err != nil {
				return err
			}
			res, err := a.newExtractor().ExtractKeyFrames(cmd.Context(), a.cfg.VideoPath, a.cfg.OutputDir, a.cfg.NumFrames)
			if err != nil {
				return fmt.Errorf("extract key frames: %w", err)
			}
			a.logger.Info("extracted key frames", "count", res.Count, "total_frames", res.TotalFrames, "stride", res.Stride)
			for _, p := range res.Paths {
				fmt.Fprintln(a.stdout, p)
			}
			return nil
		},
	}
	addExtractFlags(cmd, a.cfg)
	return cmd
}

func (a *app) stitchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stitch [images...]",
		Short: "Stitch images left to right into one strip",
		Long: `Stitch the given images, in argument order, into one horizontal strip. With no
arguments every file in --output is used, sorted by file name (frame10.jpg sorts
before frame2.jpg).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateStitch(); err != nil {
				return err
			}

			var (
				res *stitcher.Result
				err error
			)
			s := stitcher.New(a.cfg.JPEGQuality)
			if len(args) > 0 {
				res, err = s.StitchFiles(args, a.cfg.StitchedPath)
			} else {
				res, err = s.StitchImages(a.cfg.OutputDir, a.cfg.StitchedPath)
			}
			if err != nil {
				return fmt.Errorf("stitch images: %w", err)
			}
			a.logger.Info("stitched images", "images", len(res.Offsets), "path", res.Path)
			fmt.Fprintf(a.stdout, "%s %dx%d\n", res.Path, res.Width, res.Height)
			return nil
		},
	}
	cmd.Flags().IntVar(&a.cfg.JPEGQuality, "jpeg-quality", a.cfg.JPEGQuality, "JPEG quality of the stitched image (1-100)")
	return cmd
}

func (a *app) describeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe [image-url-or-path]",
		Short: "Ask the vision model what an image shows",
		Long: `Describe an image by URL, or upload a local image first. With no argument the
--image-url flag is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.writeMetrics()

			if err := a.cfg.ValidateDescribe(); err != nil {
				return err
			}
			target := a.cfg.ImageURL
			if len(args) == 1 {
				target = args[0]
			}
			if target == "" {
				return errors.New("missing image URL or path")
			}

			ctx := cmd.Context()
			var (
				content string
				err     error
			)
			if isURL(target) {
				p := analyzer.NewProcessor(nil, nil, a.newDescriber(), nil, a.logger)
				content, err = p.Describe(ctx, target)
			} else {
				// A local file is never the configured URL.
				a.cfg.ImageURL = ""
				up, uerr := a.newUploader(ctx)
				if uerr != nil {
					return uerr
				}
				p := analyzer.NewProcessor(nil, up, a.newDescriber(), nil, a.logger)
				content, err = p.DescribeFile(ctx, target)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(a.stdout, content)
			return nil
		},
	}
	addDescribeFlags(cmd, a.cfg)
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "List stored descriptions most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DatabaseURL == "" {
				return errors.New("missing --database-url")
			}
			if a.cfg.APIKey == "" {
				return errors.New("missing OPENAI_API_KEY (or --api-key)")
			}
			ctx := cmd.Context()

			store, err := a.newPostgres(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.SearchSimilar(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				a.logger.Info("no matching descriptions")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(a.stdout, "%.4f\t%s\t%s\n", r.Similarity, r.VideoName, r.Content)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of results")
	cmd.Flags().StringVar(&a.cfg.DatabaseURL, "database-url", a.cfg.DatabaseURL, "PostgreSQL database holding description records")
	cmd.Flags().StringVar(&a.cfg.APIKey, "api-key", a.cfg.APIKey, "API key for the embeddings endpoint (default $OPENAI_API_KEY)")
	cmd.Flags().StringVar(&a.cfg.BaseURL, "base-url", a.cfg.BaseURL, "Base URL of the embeddings API")
	return cmd
}

func (a *app) newExtractor() *extractor.Extractor {
	return extractor.NewExtractor(nil, a.cfg.JPEGQuality, a.logger)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
