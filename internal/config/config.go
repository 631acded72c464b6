package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	VideoPath    string `env:"FILMSTRIP_VIDEO"`
	OutputDir    string `env:"FILMSTRIP_OUTPUT_DIR"    envDefault:"output"`
	StitchedPath string `env:"FILMSTRIP_STITCHED_PATH" envDefault:"output/stitched_image.jpg"`
	NumFrames    int    `env:"FILMSTRIP_NUM_FRAMES"    envDefault:"10"`
	JPEGQuality  int    `env:"FILMSTRIP_JPEG_QUALITY"  envDefault:"95"`

	// ImageURL is the public URL of the stitched image when it is hosted
	// outside of filmstrip. It takes precedence over MinIO uploads.
	ImageURL string `env:"FILMSTRIP_IMAGE_URL"`

	APIKey         string        `env:"OPENAI_API_KEY"`
	BaseURL        string        `env:"OPENAI_BASE_URL"`
	Model          string        `env:"FILMSTRIP_MODEL"           envDefault:"gpt-4o"`
	MaxTokens      int64         `env:"FILMSTRIP_MAX_TOKENS"      envDefault:"500"`
	RequestTimeout time.Duration `env:"FILMSTRIP_REQUEST_TIMEOUT" envDefault:"60s"`

	MinIOEndpoint      string        `env:"MINIO_ENDPOINT"`
	MinIOAccessKey     string        `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey     string        `env:"MINIO_SECRET_KEY"`
	MinIOUseSSL        bool          `env:"MINIO_USE_SSL"         envDefault:"false"`
	MinIOBucket        string        `env:"MINIO_BUCKET"          envDefault:"filmstrip"`
	MinIOPrefix        string        `env:"MINIO_PREFIX"`
	MinIOPublicBaseURL string        `env:"MINIO_PUBLIC_BASE_URL"`
	MinIOURLExpiry     time.Duration `env:"MINIO_URL_EXPIRY"      envDefault:"1h"`

	DatabaseURL         string `env:"DATABASE_URL"`
	EmbeddingModel      string `env:"FILMSTRIP_EMBEDDING_MODEL"      envDefault:"text-embedding-3-small"`
	EmbeddingDimensions int    `env:"FILMSTRIP_EMBEDDING_DIMENSIONS" envDefault:"1536"`
	ResultsPath         string `env:"FILMSTRIP_RESULTS_PATH"`

	MetricsFile string `env:"FILMSTRIP_METRICS_FILE"`
	LogLevel    string `env:"FILMSTRIP_LOG_LEVEL" envDefault:"info"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every default applied and nothing
// read from the environment.
func Default() Config {
	var cfg Config
	// Defaults come from struct tags, so an empty environment cannot fail.
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// UsesMinIO reports whether the stitched image should be uploaded to object
// storage rather than referenced by ImageURL.
func (c Config) UsesMinIO() bool {
	return c.ImageURL == "" && c.MinIOEndpoint != ""
}

func (c Config) Validate() error {
	if err := c.ValidateExtract(); err != nil {
		return err
	}
	if err := c.ValidateStitch(); err != nil {
		return err
	}
	if err := c.ValidateDescribe(); err != nil {
		return err
	}
	if c.ImageURL == "" && c.MinIOEndpoint == "" {
		return errors.New("missing --image-url (or MINIO_ENDPOINT to upload the stitched image)")
	}
	if c.MinIOURLExpiry < 0 {
		return errors.New("minio-url-expiry must be >= 0")
	}
	if c.DatabaseURL != "" && c.EmbeddingDimensions <= 0 {
		return errors.New("embedding-dimensions must be > 0")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func (c Config) ValidateExtract() error {
	if c.VideoPath == "" {
		return errors.New("missing --video")
	}
	if c.OutputDir == "" {
		return errors.New("missing --output")
	}
	if c.NumFrames <= 0 {
		return errors.New("frames must be > 0")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("jpeg-quality must be between 1 and 100")
	}
	return nil
}

func (c Config) ValidateStitch() error {
	if c.OutputDir == "" {
		return errors.New("missing --output")
	}
	if c.StitchedPath == "" {
		return errors.New("missing --stitched")
	}
	if filepath.Clean(c.StitchedPath) == filepath.Clean(c.OutputDir) {
		return errors.New("--stitched must be a file, not the frame directory")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("jpeg-quality must be between 1 and 100")
	}
	return nil
}

func (c Config) ValidateDescribe() error {
	if c.APIKey == "" {
		return errors.New("missing OPENAI_API_KEY (or --api-key)")
	}
	if c.Model == "" {
		return errors.New("missing --model")
	}
	if c.MaxTokens <= 0 {
		return errors.New("max-tokens must be > 0")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request-timeout must be >= 0")
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
