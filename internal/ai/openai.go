package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIEmbedRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

type openAIEmbedProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (p *openAIEmbedProvider) Name() string {
	return "openai"
}

func (p *openAIEmbedProvider) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/embeddings"
	reqBody := openAIEmbedRequest{
		Model:          model,
		Input:          texts,
		EncodingFormat: "float",
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %w", ErrProviderRequest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: openai: %s: %s", ErrProviderRequest, resp.Status, strings.TrimSpace(string(body)))
	}
	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: openai: decode response: %w", ErrProviderRequest, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: openai returned %d embeddings for %d texts", ErrEmbeddingCountMismatch, len(out.Data), len(texts))
	}
	// place by index; every slot 0..n-1 must be filled exactly once
	embeddings := make([][]float64, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(texts) || embeddings[item.Index] != nil {
			return nil, fmt.Errorf("%w: openai response has invalid embedding index %d", ErrProviderRequest, item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("%w: openai response has no embedding at %d", ErrProviderRequest, item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}
	return embeddings, nil
}

func createOpenAIEmbedFactory(args ProviderArgs) (*EmbedProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args.Credentials, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return NewBatchProvider(&openAIEmbedProvider{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		client:  http.DefaultClient,
	}), nil
}

func init() {
	RegisterEmbed("openai", createOpenAIEmbedFactory)
}
