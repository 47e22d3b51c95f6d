package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/cache"
)

func newFeedbackFixture(t *testing.T) (*Feedback, *cache.FastCache, *MetaConfidence) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	fc := cache.NewFastCache(manager, zap.NewNop())

	mc, err := NewMetaConfidence(filepath.Join(t.TempDir(), "meta_confidence.json"), zap.NewNop())
	require.NoError(t, err)

	return NewFeedback(mc, fc, zap.NewNop()), fc, mc
}

func TestFeedback_PositiveBoostsCachedAnswer(t *testing.T) {
	fb, fc, mc := newFeedbackFixture(t)
	ctx := context.Background()

	require.NoError(t, fc.Store(ctx, "what is gravity", "A force of attraction.", 0.7))
	fb.SetLastExchange("what is gravity", "A force of attraction.", 0.7)

	assert.Equal(t, "Noted.", fb.HandlePositive(ctx))

	e, err := fc.Lookup(ctx, "what is gravity")
	require.NoError(t, err)
	assert.InDelta(t, 0.85, e.Confidence, 1e-9)
	assert.Greater(t, mc.Adjustment("what is"), 0.0)
}

func TestFeedback_ConfigurableBoost(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	manager, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	fc := cache.NewFastCache(manager, zap.NewNop())

	fb := NewFeedback(nil, fc, zap.NewNop(), WithBoost(0.3))
	ctx := context.Background()

	require.NoError(t, fc.Store(ctx, "what is gravity", "A force of attraction.", 0.5))
	fb.SetLastExchange("what is gravity", "A force of attraction.", 0.5)
	fb.HandlePositive(ctx)

	e, err := fc.Lookup(ctx, "what is gravity")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, e.Confidence, 1e-9)
}

func TestFeedback_PositiveStoresWhenNotCached(t *testing.T) {
	fb, fc, _ := newFeedbackFixture(t)
	ctx := context.Background()

	fb.SetLastExchange("who was napoleon", "A French emperor.", 0.9)
	assert.Equal(t, "Noted.", fb.HandlePositive(ctx))

	e, err := fc.Lookup(ctx, "who was napoleon")
	require.NoError(t, err)
	assert.Equal(t, "A French emperor.", e.Answer)
	// 0.9 + 0.15 封顶 1.0
	assert.InDelta(t, 1.0, e.Confidence, 1e-9)
}

func TestFeedback_Negative(t *testing.T) {
	fb, _, mc := newFeedbackFixture(t)
	ctx := context.Background()

	fb.SetLastExchange("what is gravity", "magnetism", 0.6)
	assert.Equal(t, "I see. I'll try to do better.", fb.HandleNegative(ctx))
	assert.Less(t, mc.Adjustment("what is"), 0.0)
}

func TestFeedback_NoExchange(t *testing.T) {
	fb, _, _ := newFeedbackFixture(t)
	ctx := context.Background()

	assert.Equal(t, "Noted.", fb.HandlePositive(ctx))
	assert.Equal(t, "I see. I'll try to do better.", fb.HandleNegative(ctx))

	_, ok := fb.LastExchange()
	assert.False(t, ok)
}
