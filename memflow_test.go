package memflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/reason"
	"github.com/BaSui01/memflow/types"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.ReportsDir = filepath.Join(dir, "reports")
	cfg.Redis.Addr = mr.Addr()

	sys, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sys.Close() })
	return sys
}

func TestSystem_EndToEnd(t *testing.T) {
	sys := newTestSystem(t)
	ctx := context.Background()

	b, err := sys.Registry().Get("science")
	require.NoError(t, err)
	_, err = b.Store(ctx, types.Fact{Content: "the sky is blue because sunlight scatters", Confidence: 0.9})
	require.NoError(t, err)

	answer, err := sys.Chat(ctx, "Why is the sky blue?")
	require.NoError(t, err)
	assert.Equal(t, "the sky is blue because sunlight scatters", answer)

	// 追问命中缓存
	res, err := sys.Run(ctx, "why is the sky blue?", 1.0)
	require.NoError(t, err)
	assert.Equal(t, "fast", res.CacheHit)

	explanation := sys.ExplainLast()
	assert.Contains(t, explanation, "why is the sky blue")
}

func TestSystem_WorkingMemoryRecall(t *testing.T) {
	sys := newTestSystem(t)
	ctx := context.Background()

	require.NoError(t, sys.WorkingMemory().Put("where did we park", "level 3 row c", 0.9, 0))

	res, err := sys.Run(ctx, "where did we park", 1.0)
	require.NoError(t, err)
	assert.Equal(t, types.ModeWMRetrieved, res.Evaluation.Mode)
	assert.Equal(t, "level 3 row c", res.Answer)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)
}

func TestSystem_KnowledgeGraphAnswer(t *testing.T) {
	sys := newTestSystem(t)
	ctx := context.Background()

	require.NoError(t, sys.KnowledgeGraph().AddFact("mars", "is", "the red planet"))

	res, err := sys.Run(ctx, "what is mars?", 1.0)
	require.NoError(t, err)
	assert.Equal(t, types.ModeKGAnswer, res.Evaluation.Mode)
	assert.Equal(t, "the red planet", res.Answer)
}

func TestSystem_HealthCheck(t *testing.T) {
	sys := newTestSystem(t)
	report, err := sys.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Banks, 13)
	assert.Zero(t, report.Repairs)
}

func TestSystem_ApplyRules(t *testing.T) {
	sys := newTestSystem(t)
	ctx := context.Background()

	answer, err := sys.Chat(ctx, "tell me about the moon phases")
	require.NoError(t, err)
	require.NotContains(t, answer, "revisit this question")

	sys.ApplyRules(reason.Config{SafetyRules: []string{"moon phases"}})
	res, err := sys.Run(ctx, "tell me about the moon phases", 1.0)
	require.NoError(t, err)
	assert.Equal(t, types.ModeSafetyFilter, res.Evaluation.Mode)
}

func TestSystem_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = ""
	_, err := Open(cfg)
	assert.Error(t, err)
}
