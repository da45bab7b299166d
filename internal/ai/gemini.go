package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type geminiConfig struct {
	APIKey   string `json:"api_key"`
	TaskType string `json:"task_type"`
	BaseURL  string `json:"base_url"`
}

type geminiEmbedProvider struct {
	apiKey   string
	taskType string
	baseURL  string
}

func (p *geminiEmbedProvider) Name() string {
	return "gemini"
}

func (p *geminiEmbedProvider) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %w", ErrProviderRequest, err)
	}
	var config *genai.EmbedContentConfig
	if p.taskType != "" {
		config = &genai.EmbedContentConfig{
			TaskType: p.taskType,
		}
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %w", ErrProviderRequest, err)
	}
	out := make([][]float64, 0, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: gemini response has no embedding at %d", ErrProviderRequest, i)
		}
		out = append(out, toFloat64(emb.Values))
	}
	return out, nil
}

func createGeminiEmbedFactory(args ProviderArgs) (*EmbedProvider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args.Credentials, cfg); err != nil {
		return nil, err
	}
	return NewBatchProvider(&geminiEmbedProvider{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		taskType: strings.TrimSpace(cfg.TaskType),
		baseURL:  strings.TrimSpace(cfg.BaseURL),
	}), nil
}

func init() {
	RegisterEmbed("gemini", createGeminiEmbedFactory)
}
