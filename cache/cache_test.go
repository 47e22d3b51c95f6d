package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestCache(t *testing.T) *Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	m, err := NewManager(Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "what is gravity", NormalizeQuery("What is gravity?"))
	assert.Equal(t, "what is gravity", NormalizeQuery("  what   IS Gravity "))
	assert.Equal(t, "why is the sky blue", NormalizeQuery("Why is the sky blue???"))
	assert.Equal(t, "", NormalizeQuery("  ?"))
}

func TestFastCache_StoreAndLookup(t *testing.T) {
	fc := NewFastCache(setupTestCache(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, fc.Store(ctx, "Why is the sky blue?", "Rayleigh scattering.", 0.85))

	// 同一问题的不同写法命中同一条目
	e, err := fc.Lookup(ctx, "why is the sky blue")
	require.NoError(t, err)
	assert.Equal(t, "Rayleigh scattering.", e.Answer)
	assert.InDelta(t, 0.85, e.Confidence, 1e-9)

	_, err = fc.Lookup(ctx, "why is the grass green")
	assert.True(t, IsCacheMiss(err))
}

func TestFastCache_Boost(t *testing.T) {
	fc := NewFastCache(setupTestCache(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, fc.Store(ctx, "what is 2+2", "4", 0.9))

	conf, err := fc.Boost(ctx, "what is 2+2", 0.15)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, conf, 1e-9) // 封顶 1.0

	_, err = fc.Boost(ctx, "never cached", 0.15)
	assert.True(t, IsCacheMiss(err))
}

func TestFastCache_Invalidate(t *testing.T) {
	fc := NewFastCache(setupTestCache(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, fc.Store(ctx, "is pluto a planet", "Pluto is a dwarf planet.", 0.8))
	require.NoError(t, fc.Invalidate(ctx, "is pluto a planet"))

	_, err := fc.Lookup(ctx, "is pluto a planet")
	assert.True(t, IsCacheMiss(err))
}

func TestFastCache_Purge(t *testing.T) {
	fc := NewFastCache(setupTestCache(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, fc.Store(ctx, "q1", "a1", 0.5))
	require.NoError(t, fc.Store(ctx, "q2", "a2", 0.5))

	n, err := fc.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = fc.Lookup(ctx, "q1")
	assert.True(t, IsCacheMiss(err))
}

func TestSemanticCache_Lookup(t *testing.T) {
	m := setupTestCache(t)
	fc := NewFastCache(m, zap.NewNop())
	sc := NewSemanticCache(m, 0.6, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, fc.Store(ctx, "why is the sky blue", "Rayleigh scattering.", 0.85))

	// 近似措辞应命中语义缓存
	e, score, err := sc.Lookup(ctx, "why is sky blue?")
	require.NoError(t, err)
	assert.Equal(t, "Rayleigh scattering.", e.Answer)
	assert.GreaterOrEqual(t, score, 0.6)

	// 不相关查询不命中
	_, _, err = sc.Lookup(ctx, "how do volcanoes erupt")
	assert.True(t, IsCacheMiss(err))
}

func TestSemanticCache_EmptyQuery(t *testing.T) {
	sc := NewSemanticCache(setupTestCache(t), 0.8, zap.NewNop())
	_, _, err := sc.Lookup(context.Background(), "")
	assert.True(t, IsCacheMiss(err))
}

func TestJaccard(t *testing.T) {
	a := tokenSet("the sky is blue")
	b := tokenSet("the sky is blue")
	assert.InDelta(t, 1.0, jaccard(a, b), 1e-9)

	c := tokenSet("completely different words")
	assert.InDelta(t, 0.0, jaccard(a, c), 1e-9)
	assert.InDelta(t, 0.0, jaccard(nil, b), 1e-9)
}
