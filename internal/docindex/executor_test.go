package docindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/prompter/internal/ai"
	"github.com/xxxsen/prompter/internal/embedcache"
	"github.com/xxxsen/prompter/internal/model"
	"github.com/xxxsen/prompter/internal/vectorindex"
)

// axisProvider maps known words onto fixed directions.
type axisProvider struct {
	calls    [][]string
	failText string
}

var axes = map[string][]float64{
	"cats":      {1, 0, 0},
	"dogs":      {0, 1, 0},
	"fish":      {0, 0, 1},
	"kittens":   {0.9, 0.1, 0},
	"aquariums": {0, 0.2, 0.9},
}

func (p *axisProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	p.calls = append(p.calls, append([]string(nil), texts...))
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		if text == p.failText {
			return nil, ai.ErrProviderRequest
		}
		out = append(out, axes[text])
	}
	return out, nil
}

func testStep() *model.DocumentIndexStep {
	return &model.DocumentIndexStep{
		StepType:          model.StepTypeDocumentIndex,
		ResultKey:         "result_1",
		EmbeddingService:  "openai",
		EmbeddingSettings: map[string]model.EmbeddingSettings{"openai": {ModelName: "m"}},
		Documents: []model.IndexedDocument{
			{ID: "pets.txt", Text: "cats\n\ndogs", SegmentSeparator: "\n\n", SegmentSize: 5},
			{ID: "sea.txt", Text: "fish", SegmentSeparator: "\n\n"},
		},
		Queries: []model.DocumentIndexQuery{
			{Key: "query_0", Text: "kittens", MaxResults: 2},
			{Key: "query_1", Text: "aquariums", MaxResults: 1},
		},
	}
}

func newTestExecutor() *Executor {
	e := NewExecutor(embedcache.NewHasher(), vectorindex.Cosine)
	e.now = func() time.Time { return time.Unix(1700000000, 0) }
	return e
}

func TestRun(t *testing.T) {
	p := &axisProvider{}
	cache := embedcache.New()
	res, err := newTestExecutor().Run(context.Background(), testStep(), p, cache)
	require.NoError(t, err)
	require.Equal(t, time.Unix(1700000000, 0), res.Datetime)

	q0 := res.Segments["query_0"]
	require.Len(t, q0, 2)
	require.Equal(t, "cats", q0[0].Text)
	require.Equal(t, "pets.txt", q0[0].DocID)
	require.Greater(t, q0[0].Score, q0[1].Score)

	q1 := res.Segments["query_1"]
	require.Len(t, q1, 1)
	require.Equal(t, model.DocumentIndexResultSegment{DocID: "sea.txt", Text: "fish", Score: q1[0].Score}, q1[0])

	// one segment batch plus one call per query
	require.Equal(t, [][]string{{"cats", "dogs", "fish"}, {"kittens"}, {"aquariums"}}, p.calls)
	require.Equal(t, 3, cache.Len())
	require.Contains(t, cache, embedcache.ModelSpec("openai|m"))
}

func TestRunReusesCachedSegments(t *testing.T) {
	p := &axisProvider{}
	cache := embedcache.New()
	e := newTestExecutor()
	_, err := e.Run(context.Background(), testStep(), p, cache)
	require.NoError(t, err)
	p.calls = nil

	_, err = e.Run(context.Background(), testStep(), p, cache)
	require.NoError(t, err)
	// queries are embedded again, segments are not
	require.Equal(t, [][]string{{"kittens"}, {"aquariums"}}, p.calls)
	require.Equal(t, 3, cache.Len())
}

func TestRunDefaultMaxResults(t *testing.T) {
	step := testStep()
	step.Queries = []model.DocumentIndexQuery{{Key: "q", Text: "cats"}}
	res, err := newTestExecutor().Run(context.Background(), step, &axisProvider{}, embedcache.New())
	require.NoError(t, err)
	require.Len(t, res.Segments["q"], 3)
}

func TestRunNoDocuments(t *testing.T) {
	step := testStep()
	step.Documents = nil
	p := &axisProvider{}
	res, err := newTestExecutor().Run(context.Background(), step, p, embedcache.New())
	require.NoError(t, err)
	require.Empty(t, p.calls)
	require.Equal(t, []model.DocumentIndexResultSegment{}, res.Segments["query_0"])
}

func TestRunQueryFailureKeepsSegmentCache(t *testing.T) {
	p := &axisProvider{failText: "aquariums"}
	cache := embedcache.New()
	res, err := newTestExecutor().Run(context.Background(), testStep(), p, cache)
	require.Nil(t, res)
	require.True(t, errors.Is(err, ai.ErrProviderRequest))
	require.Equal(t, 3, cache.Len())
}

func TestRunSegmentFailureAborts(t *testing.T) {
	p := &axisProvider{failText: "dogs"}
	cache := embedcache.New()
	_, err := newTestExecutor().Run(context.Background(), testStep(), p, cache)
	require.ErrorIs(t, err, ai.ErrProviderRequest)
	require.Zero(t, cache.Len())
	require.Len(t, p.calls, 1)
}

func TestRunMixedDimensionsFails(t *testing.T) {
	e := newTestExecutor()
	cache := embedcache.New()
	// left behind by a model that produced shorter vectors under the same name
	cache.Put("openai|m", e.hasher.Hash("cats"), embedcache.Embedding{1, 0})
	_, err := e.Run(context.Background(), testStep(), &axisProvider{}, cache)
	require.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestExportResults(t *testing.T) {
	step := testStep()
	require.Empty(t, ExportResults(step))

	res, err := newTestExecutor().Run(context.Background(), step, &axisProvider{}, embedcache.New())
	require.NoError(t, err)
	step.Results = []*model.DocumentIndexResult{res}

	out := ExportResults(step)
	require.Equal(t, map[model.QueryKey][]string{
		"query_0": {"cats", "dogs"},
		"query_1": {"fish"},
	}, out["result_1"])
	require.Equal(t, res.Segments, out["result_1__details"])
}
