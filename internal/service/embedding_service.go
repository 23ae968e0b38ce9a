package service

import (
	"context"
	"fmt"

	"hokhau-ai/pkg/config"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// EmbeddingService computes text embeddings against an OpenAI-compatible
// endpoint. It backs the semantic half of hybrid matching; when it is not
// configured the matcher runs keyword-only.
type EmbeddingService struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewEmbeddingService(cfg *config.EmbeddingConfig, logger *zap.Logger) *EmbeddingService {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &EmbeddingService{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger,
	}
}

// Embed returns the embedding vector for a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
