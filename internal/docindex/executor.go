package docindex

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/prompter/internal/ai"
	"github.com/xxxsen/prompter/internal/embedcache"
	"github.com/xxxsen/prompter/internal/model"
	"github.com/xxxsen/prompter/internal/segment"
	"github.com/xxxsen/prompter/internal/vectorindex"
)

// DefaultMaxResults applies to queries that do not set a positive bound.
const DefaultMaxResults = 4

type Executor struct {
	hasher *embedcache.Hasher
	metric vectorindex.Metric
	now    func() time.Time
}

func NewExecutor(hasher *embedcache.Hasher, metric vectorindex.Metric) *Executor {
	return &Executor{hasher: hasher, metric: metric, now: time.Now}
}

// Run executes one document index step: segment the documents, embed the
// segments through cache, index them and answer every query. Query texts go
// straight to the provider and are never cached.
//
// Any failure aborts the whole run. Segment embeddings already written to
// cache by a successful provider call stay there.
func (e *Executor) Run(ctx context.Context, step *model.DocumentIndexStep, provider embedcache.TextEmbedder, cache embedcache.Cache) (*model.DocumentIndexResult, error) {
	spec := embedcache.StepModelSpec(step)
	logger := logutil.GetLogger(ctx).With(zap.String("model_spec", string(spec)), zap.String("result_key", step.ResultKey))

	segs := segment.Step(step)
	vectors, err := embedcache.NewEmbedder(cache, e.hasher).EmbedTexts(ctx, segment.Texts(segs), spec, provider)
	if err != nil {
		logger.Error("embed document segments failed", zap.Int("segments", len(segs)), zap.Error(err))
		return nil, fmt.Errorf("embed segments: %w", err)
	}
	entries := make([]vectorindex.Entry, len(segs))
	for i, seg := range segs {
		entries[i] = vectorindex.Entry{DocID: seg.DocID, Text: seg.Text, Vector: vectors[i]}
	}
	index := vectorindex.New(entries, e.metric)

	result := &model.DocumentIndexResult{
		Datetime: e.now(),
		Segments: make(map[model.QueryKey][]model.DocumentIndexResultSegment, len(step.Queries)),
	}
	for _, query := range step.Queries {
		maxResults := query.MaxResults
		if maxResults <= 0 {
			maxResults = DefaultMaxResults
		}
		segments := []model.DocumentIndexResultSegment{}
		if index.Len() > 0 {
			queryVector, err := e.embedQuery(ctx, provider, query.Text)
			if err != nil {
				logger.Error("embed query failed", zap.String("query_key", query.Key), zap.Error(err))
				return nil, fmt.Errorf("embed query %q: %w", query.Key, err)
			}
			matches, err := index.Query(queryVector, maxResults)
			if err != nil {
				logger.Error("search index failed", zap.String("query_key", query.Key), zap.Error(err))
				return nil, fmt.Errorf("search query %q: %w", query.Key, err)
			}
			for _, match := range matches {
				segments = append(segments, model.DocumentIndexResultSegment{
					DocID: match.DocID,
					Text:  match.Text,
					Score: match.Score,
				})
			}
		}
		result.Segments[query.Key] = segments
	}
	logger.Info("document index step executed",
		zap.Int("documents", len(step.Documents)),
		zap.Int("segments", len(segs)),
		zap.Int("queries", len(step.Queries)),
	)
	return result, nil
}

func (e *Executor) embedQuery(ctx context.Context, provider embedcache.TextEmbedder, text string) ([]float64, error) {
	out, err := provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: requested 1, received %d", ai.ErrEmbeddingCountMismatch, len(out))
	}
	return out[0], nil
}
