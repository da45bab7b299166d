package model

// EmbeddingCacheBlob is one persisted, encoded embedding cache of a chain.
type EmbeddingCacheBlob struct {
	ChainID string `json:"chain_id"`
	Data    []byte `json:"data"`
	Mtime   int64  `json:"mtime"`
}
