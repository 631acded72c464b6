package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel      = openai.EmbeddingModelTextEmbedding3Small
	DefaultDimensions = 1536
)

// Embedder turns text into a vector embedding.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// Service generates embeddings through the OpenAI embeddings endpoint and
// caches them by content.
type Service struct {
	client     openai.Client
	model      string
	dimensions int
	cache      sync.Map
}

func NewService(cfg Config) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Service{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Dimensions is the length of every vector returned by Embed.
func (s *Service) Dimensions() int {
	return s.dimensions
}

func (s *Service) Embed(ctx context.Context, content string) ([]float32, error) {
	if content == "" {
		return nil, errors.New("cannot embed empty content")
	}
	if cached, ok := s.cache.Load(content); ok {
		return cached.([]float32), nil
	}

	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(content)},
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: openai.Int(int64(s.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}

	embedding := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		embedding[i] = float32(v)
	}
	s.cache.Store(content, embedding)
	return embedding, nil
}
