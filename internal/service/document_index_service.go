package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/prompter/internal/ai"
	"github.com/xxxsen/prompter/internal/docindex"
	"github.com/xxxsen/prompter/internal/model"
	appErr "github.com/xxxsen/prompter/internal/pkg/errors"
)

type DocumentIndexOptions struct {
	Timeout     time.Duration
	Concurrency int
}

type DocumentIndexService struct {
	sessions *SessionService
	executor *docindex.Executor
	opts     DocumentIndexOptions
}

type DocumentIndexRunResult struct {
	Chain  *model.Chain               `json:"chain"`
	Result *model.DocumentIndexResult `json:"result"`
	Export map[string]interface{}     `json:"export"`
}

func NewDocumentIndexService(sessions *SessionService, executor *docindex.Executor, opts DocumentIndexOptions) *DocumentIndexService {
	return &DocumentIndexService{sessions: sessions, executor: executor, opts: opts}
}

// Run executes the document index step at stepIndex of chain against the
// session cache of chainID. The chain is updated in place with the new
// result. Runs against the same chain are serialized.
func (s *DocumentIndexService) Run(ctx context.Context, chainID string, chain *model.Chain, stepIndex int, credentials interface{}) (*DocumentIndexRunResult, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: chain is required", appErr.ErrInvalid)
	}
	step, err := chain.StepAt(stepIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	provider, err := ai.NewEmbedProvider(step.EmbeddingService, ai.ProviderArgs{
		Credentials: credentials,
		Concurrency: s.opts.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	embedder := ai.NewEmbedder(step.EmbeddingService, provider, step.EmbeddingModelName())

	sess, err := s.sessions.Open(ctx, chainID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(
		zap.String("chain_id", chainID),
		zap.Int("step_index", stepIndex),
		zap.String("service", step.EmbeddingService),
		zap.String("provider_kind", embedder.Kind().String()),
	)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	runCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	before := sess.cache.Len()
	result, err := s.executor.Run(runCtx, step, embedder, sess.cache)
	if sess.cache.Len() != before {
		sess.dirty = true
	}
	if err != nil {
		logger.Error("document index run failed", zap.Error(err))
		return nil, err
	}
	step.Results = []*model.DocumentIndexResult{result}
	if err := chain.ReplaceStep(stepIndex, step); err != nil {
		return nil, err
	}
	sess.chain = chain
	logger.Info("document index run finished", zap.Int("cache_entries", sess.cache.Len()))
	return &DocumentIndexRunResult{
		Chain:  chain,
		Result: result,
		Export: docindex.ExportResults(step),
	}, nil
}
