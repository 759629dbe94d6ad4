package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"document-insights-backend/internal/logger"
	"document-insights-backend/models"
)

// CachedRetriever wraps a Retriever with a Redis result cache keyed by query
// hash. Cache failures are soft: a miss or a Redis error always falls through
// to the inner retriever.
type CachedRetriever struct {
	inner Retriever
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedRetriever(inner Retriever, rdb *redis.Client, ttl time.Duration) *CachedRetriever {
	return &CachedRetriever{
		inner: inner,
		rdb:   rdb,
		ttl:   ttl,
	}
}

func (c *CachedRetriever) Search(ctx context.Context, query string, k int) ([]models.Chunk, error) {
	key := searchCacheKey(query, k)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var chunks []models.Chunk
		if err := json.Unmarshal(data, &chunks); err == nil {
			logger.Debug("Retrieval cache hit", "key", key, "chunks", len(chunks))
			return chunks, nil
		}
		// Corrupt entry; drop it and refetch
		c.rdb.Del(ctx, key)
	}

	chunks, err := c.inner.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(chunks); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			logger.Warn("Failed to cache retrieval result", "error", err)
		}
	}

	return chunks, nil
}

func searchCacheKey(query string, k int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("retrieval:%s:%d", hex.EncodeToString(sum[:16]), k)
}
