package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrProviderRequest        = errors.New("embedding provider request failed")
	ErrUnavailable            = fmt.Errorf("%w: provider credentials not configured", ErrProviderRequest)
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	ErrUnsupportedProvider    = errors.New("unsupported embedding provider")
	defaultPerItemConcurrency = 8
)

// IBatchEmbedProvider embeds many texts with a single backend call.
type IBatchEmbedProvider interface {
	Name() string
	EmbedBatch(ctx context.Context, model string, texts []string) ([][]float64, error)
}

// IEmbedProvider embeds one text per backend call.
type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string) ([]float64, error)
}

type Kind int

const (
	KindBatch Kind = iota + 1
	KindPerItem
)

func (k Kind) String() string {
	switch k {
	case KindBatch:
		return "batch"
	case KindPerItem:
		return "per_item"
	default:
		return "unknown"
	}
}

// EmbedProvider is either a batch or a per-item backend. Embed hides the
// difference: both return one vector per input text, in input order.
type EmbedProvider struct {
	kind        Kind
	batch       IBatchEmbedProvider
	item        IEmbedProvider
	concurrency int
}

func NewBatchProvider(p IBatchEmbedProvider) *EmbedProvider {
	return &EmbedProvider{kind: KindBatch, batch: p}
}

// NewPerItemProvider wraps p; at most concurrency calls are outstanding at once.
func NewPerItemProvider(p IEmbedProvider, concurrency int) *EmbedProvider {
	if concurrency <= 0 {
		concurrency = defaultPerItemConcurrency
	}
	return &EmbedProvider{kind: KindPerItem, item: p, concurrency: concurrency}
}

func (p *EmbedProvider) Kind() Kind {
	return p.kind
}

func (p *EmbedProvider) Name() string {
	switch p.kind {
	case KindBatch:
		return p.batch.Name()
	case KindPerItem:
		return p.item.Name()
	}
	return ""
}

func (p *EmbedProvider) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var (
		out [][]float64
		err error
	)
	switch p.kind {
	case KindBatch:
		out, err = p.batch.EmbedBatch(ctx, model, texts)
	case KindPerItem:
		out, err = p.embedEach(ctx, model, texts)
	default:
		return nil, fmt.Errorf("%w: provider kind %d", ErrUnsupportedProvider, p.kind)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d embeddings for %d texts", ErrEmbeddingCountMismatch, p.Name(), len(out), len(texts))
	}
	for i, vec := range out {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: %s returned an empty embedding for text %d", ErrProviderRequest, p.Name(), i)
		}
	}
	return out, nil
}

// embedEach fans out one call per text. Results land at their input index, so
// completion order never matters; the first failure cancels the rest.
func (p *EmbedProvider) embedEach(ctx context.Context, model string, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := p.item.Embed(gctx, model, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logutil.GetLogger(ctx).Warn("per item embedding failed",
			zap.String("provider", p.item.Name()),
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return nil, err
	}
	return out, nil
}

// Embedder binds a provider to one model of the service it was built for.
type Embedder struct {
	service  string
	model    string
	provider *EmbedProvider
}

func NewEmbedder(service string, provider *EmbedProvider, model string) *Embedder {
	return &Embedder{service: service, provider: provider, model: model}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return e.provider.Embed(ctx, e.model, texts)
}

func (e *Embedder) ModelName() string {
	return e.model
}

func (e *Embedder) ServiceName() string {
	return e.service
}

func (e *Embedder) Kind() Kind {
	return e.provider.Kind()
}

type ProviderArgs struct {
	// Credentials come from the caller's user settings and are never persisted.
	Credentials interface{}
	Concurrency int
}

type EmbedProviderFactory func(args ProviderArgs) (*EmbedProvider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]EmbedProviderFactory{}
)

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// NewEmbedProvider builds the provider for an embedding service. Unknown
// services fail with ErrUnsupportedProvider without touching the network.
func NewEmbedProvider(service string, args ProviderArgs) (*EmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(service))
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, service)
	}
	return factory(args)
}

func SupportedServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode embedding provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode embedding provider config: %w", err)
	}
	return nil
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
