package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/prompter/internal/ai"
	"github.com/xxxsen/prompter/internal/config"
	"github.com/xxxsen/prompter/internal/docindex"
	"github.com/xxxsen/prompter/internal/embedcache"
	"github.com/xxxsen/prompter/internal/filestore"
	"github.com/xxxsen/prompter/internal/model"
	appErr "github.com/xxxsen/prompter/internal/pkg/errors"
	"github.com/xxxsen/prompter/internal/vectorindex"
)

type countingProvider struct {
	mu    sync.Mutex
	texts []string
}

func (p *countingProvider) Name() string {
	return "counting"
}

func (p *countingProvider) EmbedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	p.mu.Lock()
	p.texts = append(p.texts, texts...)
	p.mu.Unlock()
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = []float64{float64(len(text)), 1}
	}
	return out, nil
}

func (p *countingProvider) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.texts...)
}

var testProvider = &countingProvider{}

func init() {
	ai.RegisterEmbed("counting", func(args ai.ProviderArgs) (*ai.EmbedProvider, error) {
		return ai.NewBatchProvider(testProvider), nil
	})
}

func newTestStore(t *testing.T) CacheStore {
	t.Helper()
	store, err := filestore.New(config.StorageConfig{
		Type:  config.StorageLocal,
		Local: config.LocalConfig{Dir: t.TempDir()},
	})
	require.NoError(t, err)
	return NewFileCacheStore(store)
}

func testChain(t *testing.T, text string) *model.Chain {
	t.Helper()
	prompt, err := json.Marshal(map[string]interface{}{"stepType": "prompt", "title": "p"})
	require.NoError(t, err)
	step, err := json.Marshal(&model.DocumentIndexStep{
		StepType:          model.StepTypeDocumentIndex,
		ResultKey:         "docs",
		EmbeddingService:  "counting",
		EmbeddingSettings: map[string]model.EmbeddingSettings{"counting": {ModelName: "m"}},
		Documents:         []model.IndexedDocument{{ID: "a.txt", Text: text, SegmentSeparator: "|"}},
		Queries:           []model.DocumentIndexQuery{{Key: "q", Text: "question", MaxResults: 1}},
	})
	require.NoError(t, err)
	return &model.Chain{Version: 1, Title: "t", Steps: []json.RawMessage{prompt, step}}
}

func TestSessionOpenAbsentBlobIsEmpty(t *testing.T) {
	svc := NewSessionService(newTestStore(t), embedcache.NewHasher(), SessionOptions{MaxSize: 10})
	sess, err := svc.Open(context.Background(), "chain1")
	require.NoError(t, err)
	require.Equal(t, 0, sess.CacheLen())

	again, err := svc.Open(context.Background(), "chain1")
	require.NoError(t, err)
	require.Same(t, sess, again)

	_, err = svc.Open(context.Background(), "../x")
	require.True(t, errors.Is(err, appErr.ErrInvalid))
}

func TestSessionOpenCorruptBlob(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Store(context.Background(), "chain1", []byte{0xff, 0xff}))
	svc := NewSessionService(store, embedcache.NewHasher(), SessionOptions{})
	_, err := svc.Open(context.Background(), "chain1")
	require.True(t, errors.Is(err, embedcache.ErrCacheDecode))
}

func TestSaveReplacesPrunesAndTrims(t *testing.T) {
	store := newTestStore(t)
	hasher := embedcache.NewHasher()
	svc := NewSessionService(store, hasher, SessionOptions{MaxSize: 2})
	ctx := context.Background()

	spec := embedcache.NewModelSpec("counting", "m")
	supplied := embedcache.New()
	supplied.Put(spec, hasher.Hash("one"), embedcache.Embedding{1})
	supplied.Put(spec, hasher.Hash("two"), embedcache.Embedding{2})
	supplied.Put(spec, hasher.Hash("three"), embedcache.Embedding{3})
	supplied.Put(spec, hasher.Hash("stale"), embedcache.Embedding{4})
	supplied.Put(embedcache.NewModelSpec("other", "m"), hasher.Hash("one"), embedcache.Embedding{5})

	data, err := svc.Save(ctx, "chain1", testChain(t, "one|two|three"), embedcache.Encode(supplied))
	require.NoError(t, err)

	saved, err := embedcache.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 2, saved.Len())
	_, ok := saved[embedcache.NewModelSpec("other", "m")]
	require.False(t, ok)
	_, ok = saved.Get(spec, hasher.Hash("stale"))
	require.False(t, ok)

	stored, err := store.Load(ctx, "chain1")
	require.NoError(t, err)
	require.Equal(t, data, stored)

	exported, err := svc.Export(ctx, "chain1")
	require.NoError(t, err)
	require.Equal(t, data, exported)
}

func TestSaveRejectsCorruptBytes(t *testing.T) {
	store := newTestStore(t)
	svc := NewSessionService(store, embedcache.NewHasher(), SessionOptions{MaxSize: 2})
	_, err := svc.Save(context.Background(), "chain1", testChain(t, "one"), []byte{0x08, 0x02})
	require.True(t, errors.Is(err, embedcache.ErrCacheDecode))
	_, err = store.Load(context.Background(), "chain1")
	require.True(t, appErr.IsNotFound(err))
}

func TestSaveRecoversFromCorruptStoredBlob(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Store(context.Background(), "chain1", []byte{0xff}))
	svc := NewSessionService(store, embedcache.NewHasher(), SessionOptions{MaxSize: 2})
	_, err := svc.Save(context.Background(), "chain1", testChain(t, "one"), []byte{})
	require.NoError(t, err)
}

func newRunService(t *testing.T, store CacheStore, maxSessions int) (*SessionService, *DocumentIndexService) {
	t.Helper()
	hasher := embedcache.NewHasher()
	sessions := NewSessionService(store, hasher, SessionOptions{MaxSize: 100, MaxSessions: maxSessions})
	runs := NewDocumentIndexService(sessions, docindex.NewExecutor(hasher, vectorindex.Cosine), DocumentIndexOptions{Timeout: time.Second})
	return sessions, runs
}

func TestDocumentIndexRunAndFlush(t *testing.T) {
	store := newTestStore(t)
	sessions, runs := newRunService(t, store, 0)
	ctx := context.Background()
	chain := testChain(t, "alpha|beta")

	out, err := runs.Run(ctx, "chain1", chain, 1, nil)
	require.NoError(t, err)
	require.Len(t, out.Result.Segments["q"], 1)
	require.Contains(t, out.Export, "docs")
	require.Contains(t, out.Export, "docs__details")

	step, err := out.Chain.StepAt(1)
	require.NoError(t, err)
	require.Len(t, step.Results, 1)

	sess, err := sessions.Open(ctx, "chain1")
	require.NoError(t, err)
	require.True(t, sess.Dirty())
	require.Equal(t, 2, sess.CacheLen())

	n, err := sessions.FlushDirty(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, sess.Dirty())

	data, err := store.Load(ctx, "chain1")
	require.NoError(t, err)
	cache, err := embedcache.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	// second run hits the cache for every segment, only the query is embedded
	before := len(testProvider.seen())
	_, err = runs.Run(ctx, "chain1", chain, 1, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"question"}, testProvider.seen()[before:])
	require.False(t, sess.Dirty())
}

func TestDocumentIndexRunInvalidInput(t *testing.T) {
	_, runs := newRunService(t, newTestStore(t), 0)
	ctx := context.Background()
	chain := testChain(t, "alpha")

	_, err := runs.Run(ctx, "chain1", chain, 0, nil)
	require.True(t, errors.Is(err, appErr.ErrInvalid))
	_, err = runs.Run(ctx, "chain1", chain, 5, nil)
	require.True(t, errors.Is(err, appErr.ErrInvalid))
	_, err = runs.Run(ctx, "chain1", nil, 1, nil)
	require.True(t, errors.Is(err, appErr.ErrInvalid))

	step, err := chain.StepAt(1)
	require.NoError(t, err)
	step.EmbeddingService = "nope"
	require.NoError(t, chain.ReplaceStep(1, step))
	_, err = runs.Run(ctx, "chain1", chain, 1, nil)
	require.True(t, errors.Is(err, ai.ErrUnsupportedProvider))
}

func TestFlushSkipsSessionsWithoutChain(t *testing.T) {
	sessions := NewSessionService(newTestStore(t), embedcache.NewHasher(), SessionOptions{})
	sess, err := sessions.Open(context.Background(), "chain1")
	require.NoError(t, err)
	sess.mu.Lock()
	sess.dirty = true
	sess.mu.Unlock()

	n, err := sessions.FlushDirty(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.True(t, sess.Dirty())
}

func TestEvictedDirtySessionIsFlushed(t *testing.T) {
	store := newTestStore(t)
	sessions, runs := newRunService(t, store, 1)
	ctx := context.Background()

	_, err := runs.Run(ctx, "chain1", testChain(t, "gamma"), 1, nil)
	require.NoError(t, err)
	_, err = sessions.Open(ctx, "chain2")
	require.NoError(t, err)

	n, err := sessions.FlushDirty(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = store.Load(ctx, "chain1")
	require.NoError(t, err)
}

func TestExpiredDirtySessionSurvivesReopen(t *testing.T) {
	store := newTestStore(t)
	hasher := embedcache.NewHasher()
	sessions := NewSessionService(store, hasher, SessionOptions{MaxSize: 100, TTL: 100 * time.Millisecond})
	runs := NewDocumentIndexService(sessions, docindex.NewExecutor(hasher, vectorindex.Cosine), DocumentIndexOptions{Timeout: time.Second})
	ctx := context.Background()

	_, err := runs.Run(ctx, "chain1", testChain(t, "delta|epsilon"), 1, nil)
	require.NoError(t, err)
	orig, err := sessions.Open(ctx, "chain1")
	require.NoError(t, err)
	require.True(t, orig.Dirty())

	// reopen across the expiry boundary, before and after the LRU sweep
	for i := 0; i < 30; i++ {
		time.Sleep(10 * time.Millisecond)
		sess, err := sessions.Open(ctx, "chain1")
		require.NoError(t, err)
		require.Same(t, orig, sess)
		require.Equal(t, 2, sess.CacheLen())
	}

	n, err := sessions.FlushDirty(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	data, err := store.Load(ctx, "chain1")
	require.NoError(t, err)
	cache, err := embedcache.Decode(data)
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())
}
