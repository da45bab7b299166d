package service

import (
	"context"
	"fmt"
	"path"

	"github.com/xxxsen/prompter/internal/filestore"
)

const embeddingCacheFileName = "embeddingCache.v1.proto"

// CacheStore persists the encoded embedding cache of a chain. Load of an
// unknown chain fails with an error matching errors.ErrNotFound.
type CacheStore interface {
	Load(ctx context.Context, chainID string) ([]byte, error)
	Store(ctx context.Context, chainID string, data []byte) error
}

type fileCacheStore struct {
	store filestore.Store
}

// NewFileCacheStore lays blobs out as <id[0]>/<id>/embeddingCache.v1.proto.
func NewFileCacheStore(store filestore.Store) CacheStore {
	return &fileCacheStore{store: store}
}

func cacheBlobKey(chainID string) (string, error) {
	if chainID == "" {
		return "", fmt.Errorf("empty chain id")
	}
	return path.Join(chainID[:1], chainID, embeddingCacheFileName), nil
}

func (s *fileCacheStore) Load(ctx context.Context, chainID string) ([]byte, error) {
	key, err := cacheBlobKey(chainID)
	if err != nil {
		return nil, err
	}
	return s.store.Load(ctx, key)
}

func (s *fileCacheStore) Store(ctx context.Context, chainID string, data []byte) error {
	key, err := cacheBlobKey(chainID)
	if err != nil {
		return err
	}
	return s.store.Save(ctx, key, data)
}
