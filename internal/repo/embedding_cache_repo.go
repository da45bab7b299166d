package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/prompter/internal/model"
	"github.com/xxxsen/prompter/internal/pkg/dbutil"
	appErr "github.com/xxxsen/prompter/internal/pkg/errors"
)

const embeddingCacheTable = "embedding_cache_blob"

// EmbeddingCacheRepo stores one encoded embedding cache per chain.
type EmbeddingCacheRepo struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewEmbeddingCacheRepo(db *sql.DB, driver string) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db, driver: driver, now: time.Now}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, chainID string) (*model.EmbeddingCacheBlob, error) {
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, map[string]interface{}{"chain_id": chainID}, []string{
		"chain_id", "data", "mtime",
	})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(r.driver, sqlStr, args)
	item := &model.EmbeddingCacheBlob{}
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&item.ChainID, &item.Data, &item.Mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding cache of chain %s: %w", chainID, appErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCacheBlob) error {
	const query = `
		INSERT INTO embedding_cache_blob (chain_id, data, mtime)
		VALUES (?, ?, ?)
		ON CONFLICT (chain_id) DO UPDATE SET
			data = EXCLUDED.data,
			mtime = EXCLUDED.mtime
	`
	data := item.Data
	if data == nil {
		data = []byte{}
	}
	sqlStr, args := dbutil.Finalize(r.driver, query, []interface{}{item.ChainID, data, item.Mtime})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(embeddingCacheTable, map[string]interface{}{"mtime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(r.driver, sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Load and Store let the repo back editing sessions directly.

func (r *EmbeddingCacheRepo) Load(ctx context.Context, chainID string) ([]byte, error) {
	item, err := r.Get(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return item.Data, nil
}

func (r *EmbeddingCacheRepo) Store(ctx context.Context, chainID string, data []byte) error {
	return r.Save(ctx, &model.EmbeddingCacheBlob{ChainID: chainID, Data: data, Mtime: r.now().Unix()})
}
