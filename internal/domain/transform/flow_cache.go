package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/dataio-go/internal/domain/model"
)

// FlowCache is the subset of a shared cache used to share loaded flows between processors.
// Get returns nil bytes on a miss.
type FlowCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachingFlowLoader serves flow versions from a shared cache before hitting the store.
// Flow versions are immutable, so entries never need invalidation.
type CachingFlowLoader struct {
	next   FlowLoader
	cache  FlowCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachingFlowLoader wraps next with cache. A zero ttl keeps entries for 24 hours.
func NewCachingFlowLoader(next FlowLoader, cache FlowCache, ttl time.Duration, logger *slog.Logger) *CachingFlowLoader {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingFlowLoader{next: next, cache: cache, ttl: ttl, logger: logger.With("component", "flow_cache")}
}

func flowCacheKey(id, version int64) string {
	return fmt.Sprintf("dataio:flow:%d:%d", id, version)
}

// GetFlow implements FlowLoader. Cache failures fall through to the store.
func (c *CachingFlowLoader) GetFlow(ctx context.Context, id, version int64) (*model.Flow, error) {
	key := flowCacheKey(id, version)
	if raw, err := c.cache.Get(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "flow cache read failed", "key", key, "error", err)
	} else if raw != nil {
		var flow model.Flow
		if err := json.Unmarshal(raw, &flow); err == nil {
			return &flow, nil
		}
	}

	flow, err := c.next.GetFlow(ctx, id, version)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(flow); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "flow cache write failed", "key", key, "error", err)
		}
	}
	return flow, nil
}
