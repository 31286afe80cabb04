// Package openai adapts go-openai to the completion and embedding ports of
// the chat pipeline.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions matches the source_chunks.embedding column.
	DefaultEmbeddingDimensions = 1536
)

var (
	ErrEmptyText = errors.New("text cannot be empty")
	ErrNoAPIKey  = errors.New("COUNSEL_OPENAI_API_KEY not set")
)

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
}

func newAPIClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// embeddingsAPI is the slice of *openai.Client the embedder needs.
type embeddingsAPI interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Embedder turns search queries into vectors comparable with the stored
// chunk embeddings.
type Embedder struct {
	api        embeddingsAPI
	model      openai.EmbeddingModel
	dimensions int
}

func NewEmbedder(cfg Config) *Embedder {
	return newEmbedder(newAPIClient(cfg), cfg)
}

func newEmbedder(api embeddingsAPI, cfg Config) *Embedder {
	e := &Embedder{api: api, model: cfg.EmbeddingModel, dimensions: cfg.EmbeddingDimensions}
	if e.model == "" {
		e.model = DefaultEmbeddingModel
	}
	if e.dimensions <= 0 {
		e.dimensions = DefaultEmbeddingDimensions
	}
	return e
}

// GenerateEmbedding embeds text. A vector of the wrong length is an error
// since pgvector would reject it at query time anyway.
func (e *Embedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", classifyError(err))
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("create embedding: empty response")
	}

	vec := resp.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("create embedding: got %d dimensions, want %d", len(vec), e.dimensions)
	}
	return vec, nil
}
