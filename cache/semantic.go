package cache

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// SemanticCache 对历史已答查询做朴素的 token 重叠匹配。
// 快速缓存未命中时兜底，阈值默认 0.8。
type SemanticCache struct {
	manager   *Manager
	threshold float64
	logger    *zap.Logger
}

// NewSemanticCache wraps manager as the token-overlap cache. threshold
// is the minimum Jaccard similarity for a hit; values outside (0,1]
// fall back to 0.8.
func NewSemanticCache(manager *Manager, threshold float64, logger *zap.Logger) *SemanticCache {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemanticCache{
		manager:   manager,
		threshold: threshold,
		logger:    logger.With(zap.String("component", "semantic_cache")),
	}
}

// Lookup scans the semantic pool for the stored query with the highest
// token overlap against query. Returns ErrCacheMiss when nothing clears
// the threshold.
func (c *SemanticCache) Lookup(ctx context.Context, query string) (Entry, float64, error) {
	qTokens := tokenSet(NormalizeQuery(query))
	if len(qTokens) == 0 {
		return Entry{}, 0, ErrCacheMiss
	}

	keys, err := c.manager.ScanKeys(ctx, semPrefix+"*")
	if err != nil {
		return Entry{}, 0, err
	}

	var best Entry
	bestScore := 0.0
	for _, key := range keys {
		var e Entry
		if err := c.manager.GetJSON(ctx, key, &e); err != nil {
			continue
		}
		score := jaccard(qTokens, tokenSet(e.Query))
		if score > bestScore {
			best, bestScore = e, score
		}
	}
	if bestScore < c.threshold {
		return Entry{}, 0, ErrCacheMiss
	}
	c.logger.Debug("semantic cache hit",
		zap.String("query", best.Query),
		zap.Float64("score", bestScore))
	return best, bestScore, nil
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// jaccard 计算两个 token 集合的交并比。
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
