package embedcache

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/prompter/internal/ai"
)

// TextEmbedder is the provider side of the cache: one vector per text, in order.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Embedder fills embeddings through a Cache. It writes into the cache it was
// built with; callers must not run two Embedders over the same cache at the
// same time (overlapping writes would race, last write wins).
type Embedder struct {
	cache  Cache
	hasher *Hasher
}

func NewEmbedder(cache Cache, hasher *Hasher) *Embedder {
	return &Embedder{cache: cache, hasher: hasher}
}

type miss struct {
	index int
	text  string
	hash  string
}

// EmbedTexts returns one embedding per text, in the order of texts. Cached
// entries under spec are reused; the rest are requested from provider with a
// single call, in their relative order, then stored under spec. If the
// provider fails or returns the wrong number of vectors nothing is stored.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, spec ModelSpec, provider TextEmbedder) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	var misses []miss
	for i, text := range texts {
		hash := e.hasher.Hash(text)
		if emb, ok := e.cache.Get(spec, hash); ok {
			out[i] = emb
			continue
		}
		misses = append(misses, miss{index: i, text: text, hash: hash})
	}
	logger := logutil.GetLogger(ctx).With(zap.String("model_spec", string(spec)))
	logger.Debug("embedding cache lookup",
		zap.Int("texts", len(texts)),
		zap.Int("hits", len(texts)-len(misses)),
		zap.Int("misses", len(misses)),
	)
	if len(misses) == 0 {
		return out, nil
	}
	missTexts := make([]string, len(misses))
	for i, m := range misses {
		missTexts[i] = m.text
	}
	fresh, err := provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(misses) {
		return nil, fmt.Errorf("%w: requested %d, received %d", ai.ErrEmbeddingCountMismatch, len(misses), len(fresh))
	}
	for i, m := range misses {
		e.cache.Put(spec, m.hash, fresh[i])
		out[m.index] = fresh[i]
	}
	return out, nil
}
