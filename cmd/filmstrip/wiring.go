package main

import (
	"context"
	"fmt"

	"github.com/bdougie/filmstrip/internal/analyzer"
	"github.com/bdougie/filmstrip/internal/embeddings"
	"github.com/bdougie/filmstrip/internal/metrics"
	"github.com/bdougie/filmstrip/internal/storage"
	"github.com/bdougie/filmstrip/internal/upload"
)

func (a *app) newDescriber() *analyzer.Describer {
	return analyzer.NewDescriber(analyzer.DescriberConfig{
		APIKey:    a.cfg.APIKey,
		BaseURL:   a.cfg.BaseURL,
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		Timeout:   a.cfg.RequestTimeout,
		Logger:    a.logger,
	})
}

// newUploader prefers a caller-supplied image URL and falls back to MinIO.
// With neither configured the returned uploader fails with upload.ErrNoURL.
func (a *app) newUploader(ctx context.Context) (upload.Uploader, error) {
	if !a.cfg.UsesMinIO() {
		return upload.Static(a.cfg.ImageURL), nil
	}

	m, err := upload.NewMinIO(upload.MinIOConfig{
		Endpoint:      a.cfg.MinIOEndpoint,
		AccessKey:     a.cfg.MinIOAccessKey,
		SecretKey:     a.cfg.MinIOSecretKey,
		UseSSL:        a.cfg.MinIOUseSSL,
		Bucket:        a.cfg.MinIOBucket,
		Prefix:        a.cfg.MinIOPrefix,
		PublicBaseURL: a.cfg.MinIOPublicBaseURL,
		URLExpiry:     a.cfg.MinIOURLExpiry,
	})
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	a.logger.Debug("uploading stitched image to minio", "endpoint", a.cfg.MinIOEndpoint, "bucket", a.cfg.MinIOBucket)
	return m, nil
}

// newStorage returns the configured record store, or nil when descriptions are
// only printed.
func (a *app) newStorage(ctx context.Context) (storage.Storage, error) {
	switch {
	case a.cfg.DatabaseURL != "":
		pg, err := a.newPostgres(ctx)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case a.cfg.ResultsPath != "":
		return storage.NewJSONStorage(a.cfg.ResultsPath, true), nil
	default:
		return nil, nil
	}
}

func (a *app) newPostgres(ctx context.Context) (*storage.PostgresStorage, error) {
	if err := storage.InitSchema(ctx, a.cfg.DatabaseURL, a.cfg.EmbeddingDimensions); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	embedder := embeddings.NewService(embeddings.Config{
		APIKey:     a.cfg.APIKey,
		BaseURL:    a.cfg.BaseURL,
		Model:      a.cfg.EmbeddingModel,
		Dimensions: a.cfg.EmbeddingDimensions,
	})
	return storage.NewPostgresStorage(ctx, a.cfg.DatabaseURL, embedder, a.logger)
}

func (a *app) writeMetrics() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.log().Warn("failed to write metrics", "error", err)
	}
}
