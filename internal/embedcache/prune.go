package embedcache

import (
	"github.com/xxxsen/prompter/internal/model"
	"github.com/xxxsen/prompter/internal/segment"
)

// StepModelSpec is the cache partition a document index step reads and writes.
func StepModelSpec(step *model.DocumentIndexStep) ModelSpec {
	return NewModelSpec(step.EmbeddingService, step.EmbeddingModelName())
}

// Prune returns a new cache holding only the entries still addressed by the
// current segments of the given document index steps. Model specs no step
// uses are dropped; c is never modified. Embedding slices are shared with c.
// Query texts are never cached, so only document segments count.
func Prune(c Cache, steps []*model.DocumentIndexStep, hasher *Hasher) Cache {
	out := New()
	for _, step := range steps {
		spec := StepModelSpec(step)
		entries, ok := c[spec]
		if !ok {
			continue
		}
		kept, ok := out[spec]
		if !ok {
			kept = make(map[string]Embedding)
			out[spec] = kept
		}
		for _, seg := range segment.Step(step) {
			hash := hasher.Hash(seg.Text)
			if emb, ok := entries[hash]; ok {
				kept[hash] = emb
			}
		}
	}
	return out
}

// PruneChain prunes c against every document index step of chain.
func PruneChain(c Cache, chain *model.Chain, hasher *Hasher) (Cache, error) {
	steps, err := chain.DocumentIndexSteps()
	if err != nil {
		return nil, err
	}
	return Prune(c, steps, hasher), nil
}
