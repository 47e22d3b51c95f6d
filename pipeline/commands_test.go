package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/cache"
	"github.com/BaSui01/memflow/types"
)

func newTestRegistry(t *testing.T) *bank.Registry {
	t.Helper()
	reg, err := bank.NewRegistry(t.TempDir(), bank.RotationConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func newTestFastCache(t *testing.T) *cache.FastCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return cache.NewFastCache(m, zap.NewNop())
}

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("--status"))
	assert.True(t, IsCommand("  /cache purge"))
	assert.False(t, IsCommand("what is gravity?"))
	assert.False(t, IsCommand("-single dash prose"))
}

func TestCommands_Status(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	b, err := reg.Get("science")
	require.NoError(t, err)
	_, err = b.Store(ctx, types.Fact{Content: "water boils at 100 degrees", Confidence: 0.9})
	require.NoError(t, err)

	c := NewCommands(reg, nil, nil, "", zap.NewNop())
	msg, err := c.Route(ctx, "--status")
	require.NoError(t, err)

	var report statusReport
	require.NoError(t, json.Unmarshal([]byte(msg), &report))
	assert.Equal(t, 1, report.Banks["science"])
	assert.Equal(t, 1, report.TotalFacts)
	assert.Contains(t, report.Banks, "theories_and_contradictions")
}

func TestCommands_CachePurge(t *testing.T) {
	fc := newTestFastCache(t)
	ctx := context.Background()
	c := NewCommands(nil, fc, nil, "", zap.NewNop())

	msg, err := c.Route(ctx, "--cache purge")
	require.NoError(t, err)
	assert.Equal(t, "Fast cache is already empty.", msg)

	require.NoError(t, fc.Store(ctx, "why is the sky blue", "Rayleigh scattering.", 0.8))
	for _, sub := range []string{"purge", "clear", "reset"} {
		require.NoError(t, fc.Store(ctx, "why is the sky blue", "Rayleigh scattering.", 0.8))
		msg, err = c.Route(ctx, "/cache "+sub)
		require.NoError(t, err)
		assert.Equal(t, "Fast cache purged.", msg)
	}

	_, err = c.Route(ctx, "--cache flush")
	assert.ErrorIs(t, err, ErrUnknownCacheCommand)
	_, err = c.Route(ctx, "--cache")
	assert.ErrorIs(t, err, ErrUnknownCacheCommand)
}

func TestCommands_Say(t *testing.T) {
	dir := t.TempDir()
	c := NewCommands(nil, nil, nil, dir, zap.NewNop())
	ctx := context.Background()

	msg, err := c.Route(ctx, "--say hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I assist you?", msg)

	// 第二人称说法重映射
	msg, err = c.Route(ctx, "--you say thank you so much")
	require.NoError(t, err)
	assert.Equal(t, "Thank you so much! You're welcome.", msg)

	msg, err = c.Route(ctx, "/speak the weather is nice")
	require.NoError(t, err)
	assert.Equal(t, "The weather is nice", msg)

	_, err = c.Route(ctx, "--say")
	assert.ErrorIs(t, err, ErrNothingToSay)

	data, err := os.ReadFile(filepath.Join(dir, "behavior_rules.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phrase":"hello"`)
}

func TestCommands_Unknown(t *testing.T) {
	c := NewCommands(nil, nil, nil, "", zap.NewNop())
	ctx := context.Background()

	_, err := c.Route(ctx, "--frobnicate")
	assert.ErrorIs(t, err, ErrUnknownCommand)
	_, err = c.Route(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
	_, err = c.Route(ctx, "---")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}
