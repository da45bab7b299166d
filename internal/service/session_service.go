package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/prompter/internal/embedcache"
	"github.com/xxxsen/prompter/internal/model"
	appErr "github.com/xxxsen/prompter/internal/pkg/errors"
)

type SessionOptions struct {
	MaxSize     int
	MaxSessions int
	TTL         time.Duration
}

// Session is the in-memory editing state of one chain. Everything touching
// Cache must hold the session lock.
type Session struct {
	mu      sync.Mutex
	chainID string
	cache   embedcache.Cache
	chain   *model.Chain
	dirty   bool
}

func (s *Session) ChainID() string {
	return s.chainID
}

// CacheLen reports the number of cached embeddings.
func (s *Session) CacheLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

type SessionService struct {
	store   CacheStore
	hasher  *embedcache.Hasher
	maxSize int

	mu       sync.Mutex
	sessions *expirable.LRU[string, *Session]

	// Evicted sessions wait here until the next flush. pendingMu is always
	// taken after mu, never before.
	pendingMu sync.Mutex
	pending   map[string]*Session
}

func NewSessionService(store CacheStore, hasher *embedcache.Hasher, opts SessionOptions) *SessionService {
	if opts.MaxSize < 0 {
		opts.MaxSize = 0
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 128
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	s := &SessionService{
		store:   store,
		hasher:  hasher,
		maxSize: opts.MaxSize,
		pending: make(map[string]*Session),
	}
	s.sessions = expirable.NewLRU[string, *Session](opts.MaxSessions, s.onEvict, opts.TTL)
	return s
}

// onEvict runs under the LRU lock, possibly from its expiry goroutine, so it
// must not touch the session lock.
func (s *SessionService) onEvict(chainID string, sess *Session) {
	s.pendingMu.Lock()
	s.pending[chainID] = sess
	s.pendingMu.Unlock()
}

func validateChainID(chainID string) error {
	if chainID == "" || strings.ContainsAny(chainID, `/\`) || chainID == "." || chainID == ".." {
		return fmt.Errorf("%w: chain id %q", appErr.ErrInvalid, chainID)
	}
	return nil
}

// Open returns the session of chainID, loading its persisted cache on first
// use. An absent blob starts an empty cache. A corrupt blob fails with
// embedcache.ErrCacheDecode.
func (s *SessionService) Open(ctx context.Context, chainID string) (*Session, error) {
	if err := validateChainID(chainID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(chainID); ok {
		return sess, nil
	}
	// Get misses an expired entry before the sweep removes it. Remove fires
	// onEvict, which parks that session in pending instead of letting Add
	// overwrite it silently.
	s.sessions.Remove(chainID)
	s.pendingMu.Lock()
	sess, ok := s.pending[chainID]
	delete(s.pending, chainID)
	s.pendingMu.Unlock()
	if ok {
		s.sessions.Add(chainID, sess)
		return sess, nil
	}
	cache, err := s.load(ctx, chainID)
	if err != nil {
		return nil, err
	}
	sess = &Session{chainID: chainID, cache: cache}
	s.sessions.Add(chainID, sess)
	return sess, nil
}

func (s *SessionService) load(ctx context.Context, chainID string) (embedcache.Cache, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("chain_id", chainID))
	data, err := s.store.Load(ctx, chainID)
	if appErr.IsNotFound(err) {
		logger.Debug("no persisted embedding cache, start empty")
		return embedcache.New(), nil
	}
	if err != nil {
		logger.Error("load embedding cache failed", zap.Error(err))
		return nil, fmt.Errorf("load embedding cache: %w", err)
	}
	cache, err := embedcache.Decode(data)
	if err != nil {
		logger.Warn("persisted embedding cache is corrupt", zap.Int("bytes", len(data)), zap.Error(err))
		return nil, err
	}
	logger.Debug("embedding cache loaded", zap.Int("entries", cache.Len()))
	return cache, nil
}

// Save runs the save boundary for chainID. When cacheBytes is non-nil it
// replaces the session cache first. The cache is then pruned against chain,
// trimmed to the size bound, encoded and persisted. The encoded bytes are
// returned.
func (s *SessionService) Save(ctx context.Context, chainID string, chain *model.Chain, cacheBytes []byte) ([]byte, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: chain is required", appErr.ErrInvalid)
	}
	var replacement embedcache.Cache
	if cacheBytes != nil {
		decoded, err := embedcache.Decode(cacheBytes)
		if err != nil {
			return nil, err
		}
		replacement = decoded
	}
	sess, err := s.Open(ctx, chainID)
	if err != nil {
		if replacement == nil || !errors.Is(err, embedcache.ErrCacheDecode) {
			return nil, err
		}
		// the client supplied a fresh cache, so a corrupt stored one is moot
		sess = s.replaceSession(chainID)
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if replacement != nil {
		sess.cache = replacement
	}
	return s.persistLocked(ctx, sess, chain)
}

func (s *SessionService) replaceSession(chainID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Remove(chainID)
	s.pendingMu.Lock()
	delete(s.pending, chainID)
	s.pendingMu.Unlock()
	sess := &Session{chainID: chainID, cache: embedcache.New()}
	s.sessions.Add(chainID, sess)
	return sess
}

func (s *SessionService) persistLocked(ctx context.Context, sess *Session, chain *model.Chain) ([]byte, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("chain_id", sess.chainID))
	before := sess.cache.Len()
	pruned, err := embedcache.PruneChain(sess.cache, chain, s.hasher)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrInvalid, err)
	}
	trimmed := embedcache.Trim(pruned, s.maxSize)
	data := embedcache.Encode(trimmed)
	sess.cache = trimmed
	sess.chain = chain
	sess.dirty = true
	if err := s.store.Store(ctx, sess.chainID, data); err != nil {
		logger.Error("store embedding cache failed", zap.Error(err))
		return nil, fmt.Errorf("store embedding cache: %w", err)
	}
	sess.dirty = false
	logger.Info("embedding cache saved",
		zap.Int("before", before),
		zap.Int("after", trimmed.Len()),
		zap.Int("bytes", len(data)),
	)
	return data, nil
}

// Export encodes the current session cache as it stands, without pruning.
func (s *SessionService) Export(ctx context.Context, chainID string) ([]byte, error) {
	sess, err := s.Open(ctx, chainID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return embedcache.Encode(sess.cache), nil
}

// FlushDirty persists every session changed by an execution since its last
// save. Sessions that never saw a chain are skipped since pruning needs one.
func (s *SessionService) FlushDirty(ctx context.Context) (int, error) {
	s.mu.Lock()
	candidates := s.sessions.Values()
	s.pendingMu.Lock()
	for chainID, sess := range s.pending {
		candidates = append(candidates, sess)
		delete(s.pending, chainID)
	}
	s.pendingMu.Unlock()
	s.mu.Unlock()

	logger := logutil.GetLogger(ctx)
	flushed := 0
	var errs []error
	for _, sess := range candidates {
		sess.mu.Lock()
		if !sess.dirty {
			sess.mu.Unlock()
			continue
		}
		if sess.chain == nil {
			logger.Warn("skip flushing session without chain", zap.String("chain_id", sess.chainID))
			sess.mu.Unlock()
			continue
		}
		_, err := s.persistLocked(ctx, sess, sess.chain)
		sess.mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("flush chain %s: %w", sess.chainID, err))
			continue
		}
		flushed++
	}
	return flushed, errors.Join(errs...)
}
