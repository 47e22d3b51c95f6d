package cache

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	fastPrefix = "fast:"
	semPrefix  = "sem:"
)

var punct = regexp.MustCompile(`[^a-z0-9\s]`)

// NormalizeQuery lowercases q, strips punctuation, collapses whitespace
// and drops a trailing question mark so that phrasing variants of the
// same question share one cache slot.
func NormalizeQuery(q string) string {
	s := strings.ToLower(strings.TrimSpace(q))
	s = strings.TrimSuffix(s, "?")
	s = punct.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// Entry 是一条已答查询的缓存条目。
type Entry struct {
	Query      string  `json:"query"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
}

// FastCache 精确匹配缓存。命中即短路整条管线。
type FastCache struct {
	manager *Manager
	logger  *zap.Logger
}

// NewFastCache wraps manager as the exact-match answer cache.
func NewFastCache(manager *Manager, logger *zap.Logger) *FastCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FastCache{
		manager: manager,
		logger:  logger.With(zap.String("component", "fast_cache")),
	}
}

// Lookup returns the cached entry for query, or ErrCacheMiss.
func (c *FastCache) Lookup(ctx context.Context, query string) (Entry, error) {
	key := NormalizeQuery(query)
	if key == "" {
		return Entry{}, ErrCacheMiss
	}
	var e Entry
	if err := c.manager.GetJSON(ctx, fastPrefix+key, &e); err != nil {
		return Entry{}, err
	}
	c.logger.Debug("fast cache hit", zap.String("query", key))
	return e, nil
}

// Store caches an answered query. The entry is mirrored into the
// semantic pool so near-duplicate phrasings can find it later.
func (c *FastCache) Store(ctx context.Context, query, answer string, confidence float64) error {
	key := NormalizeQuery(query)
	if key == "" || answer == "" {
		return nil
	}
	e := Entry{
		Query:      key,
		Answer:     answer,
		Confidence: confidence,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	}
	if err := c.manager.SetJSON(ctx, fastPrefix+key, e, 0); err != nil {
		return err
	}
	return c.manager.SetJSON(ctx, semPrefix+key, e, 0)
}

// Boost raises the confidence of an existing entry by amount, capped at
// 1.0, and returns the new confidence. Feedback handling uses this when
// the user confirms an answer. Missing entries return ErrCacheMiss.
func (c *FastCache) Boost(ctx context.Context, query string, amount float64) (float64, error) {
	key := NormalizeQuery(query)
	var e Entry
	if err := c.manager.GetJSON(ctx, fastPrefix+key, &e); err != nil {
		return 0, err
	}
	e.Confidence = min(1.0, e.Confidence+amount)
	if err := c.manager.SetJSON(ctx, fastPrefix+key, e, 0); err != nil {
		return 0, err
	}
	return e.Confidence, nil
}

// Invalidate drops the entry for query from both pools, so a stale
// answer is never replayed for that exact question.
func (c *FastCache) Invalidate(ctx context.Context, query string) error {
	key := NormalizeQuery(query)
	if key == "" {
		return nil
	}
	return c.manager.Delete(ctx, fastPrefix+key, semPrefix+key)
}

// Purge clears the whole fast cache pool.
func (c *FastCache) Purge(ctx context.Context) (int, error) {
	keys, err := c.manager.ScanKeys(ctx, fastPrefix+"*")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := c.manager.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	c.logger.Info("fast cache purged", zap.Int("entries", len(keys)))
	return len(keys), nil
}
