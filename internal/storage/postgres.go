package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/filmstrip/internal/embeddings"
	"github.com/bdougie/filmstrip/internal/models"
)

// PostgresStorage keeps descriptions in PostgreSQL with a pgvector embedding
// column for similarity search.
type PostgresStorage struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewPostgresStorage connects to databaseURL. embedder may be nil, in which case
// descriptions are stored without embeddings and SearchSimilar is unavailable.
func NewPostgresStorage(ctx context.Context, databaseURL string, embedder embeddings.Embedder, logger *slog.Logger) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStorage{pool: pool, embedder: embedder, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// getOrCreateVideo gets an existing video entry or creates a new one
func (s *PostgresStorage) getOrCreateVideo(ctx context.Context, videoName string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM videos WHERE name = $1",
		videoName).Scan(&id)

	if err == nil {
		return id, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("error checking for existing video: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO videos (name, created_at) VALUES ($1, now())
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		videoName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create video entry: %w", err)
	}

	return id, nil
}

// Save stores d, embedding its content when an embedder is configured
func (s *PostgresStorage) Save(ctx context.Context, d *models.Description) error {
	videoID, err := s.getOrCreateVideo(ctx, d.VideoName)
	if err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, d.Content)
		if err != nil {
			// The description itself is still worth keeping.
			s.logger.Warn("failed to generate embedding", "error", err)
		} else {
			v := pgvector.NewVector(vec)
			embedding = &v
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO descriptions
		(id, video_id, frame_count, stitched_path, image_url, model, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, videoID, d.FrameCount, d.StitchedPath, d.ImageURL, d.Model, d.Content, embedding, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store description: %w", err)
	}

	return nil
}

// SearchSimilar returns the stored descriptions closest to query by cosine distance
func (s *PostgresStorage) SearchSimilar(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if s.embedder == nil {
		return nil, errors.New("similarity search requires an embedder")
	}
	if limit <= 0 {
		limit = 5
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT v.name, d.image_url, d.content,
		1 - (d.embedding <=> $1) AS similarity
		FROM descriptions d
		JOIN videos v ON d.video_id = v.id
		WHERE d.embedding IS NOT NULL
		ORDER BY d.embedding <=> $1
		LIMIT $2`,
		pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar descriptions: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.VideoName, &r.ImageURL, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// InitSchema creates the pgvector extension, tables and indexes if missing.
// dimensions must match the embedder's vector length.
func InitSchema(ctx context.Context, databaseURL string, dimensions int) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS videos (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(name)
		);

		CREATE TABLE IF NOT EXISTS descriptions (
			id UUID PRIMARY KEY,
			video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
			frame_count INTEGER NOT NULL,
			stitched_path TEXT NOT NULL,
			image_url TEXT NOT NULL,
			model VARCHAR(255) NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		);
	`, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_descriptions_video_id ON descriptions(video_id);
		CREATE INDEX IF NOT EXISTS idx_descriptions_embedding ON descriptions USING hnsw (embedding vector_cosine_ops);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
