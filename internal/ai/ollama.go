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

const defaultOllamaServer = "http://localhost:11434"

type ollamaConfig struct {
	Server  string `json:"server"`
	BaseURL string `json:"base_url"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

type ollamaEmbedProvider struct {
	server string
	client *http.Client
}

func (p *ollamaEmbedProvider) Name() string {
	return "ollama"
}

func (p *ollamaEmbedProvider) Embed(ctx context.Context, model string, text string) ([]float64, error) {
	endpoint := strings.TrimRight(p.server, "/") + "/api/embeddings"
	data, err := json.Marshal(ollamaEmbedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %w", ErrProviderRequest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama: %s: %s", ErrProviderRequest, resp.Status, strings.TrimSpace(string(body)))
	}
	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: ollama: decode response: %w", ErrProviderRequest, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama response has no embedding", ErrProviderRequest)
	}
	return out.Embedding, nil
}

func createOllamaEmbedFactory(args ProviderArgs) (*EmbedProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args.Credentials, cfg); err != nil {
		return nil, err
	}
	server := strings.TrimSpace(cfg.Server)
	if server == "" {
		server = strings.TrimSpace(cfg.BaseURL)
	}
	if server == "" {
		server = defaultOllamaServer
	}
	return NewPerItemProvider(&ollamaEmbedProvider{
		server: server,
		client: http.DefaultClient,
	}, args.Concurrency), nil
}

func init() {
	RegisterEmbed("ollama", createOllamaEmbedFactory)
}
