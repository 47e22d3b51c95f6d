package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/bank"
	"github.com/BaSui01/memflow/internal/pool"
	"github.com/BaSui01/memflow/types"
)

func newTestRegistry(t *testing.T) *bank.Registry {
	t.Helper()
	reg, err := bank.NewRegistry(t.TempDir(), bank.RotationConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func mustStore(t *testing.T, reg *bank.Registry, bankName, content string, conf float64) {
	t.Helper()
	b, err := reg.Get(bankName)
	require.NoError(t, err)
	_, err = b.Store(context.Background(), types.Fact{Content: content, Confidence: conf})
	require.NoError(t, err)
}

func TestSearcher_FanOut(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustStore(t, reg, "science", "water boils at 100 degrees", 0.9)
	mustStore(t, reg, "history", "the roman empire fell in 476", 0.8)
	mustStore(t, reg, "geography", "paris is the capital of france", 0.9)

	workers := pool.New(pool.DefaultConfig())
	defer workers.Close()

	s := NewSearcher(reg, workers)
	ev, err := s.Search(ctx, "water boils", 5)
	require.NoError(t, err)
	require.Len(t, ev.Results, 1)
	assert.Equal(t, "science", ev.Results[0].SourceBank)

	// 所有银行都被扫描过
	assert.Contains(t, ev.Banks, "science")
	assert.Contains(t, ev.Banks, "history")
	assert.Contains(t, ev.Banks, "working_theories")
	assert.Contains(t, ev.Banks, "theories_and_contradictions")
}

func TestSearcher_OrdersByOverlapThenRecency(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustStore(t, reg, "science", "light is fast", 0.9)
	mustStore(t, reg, "science", "light travels fast in vacuum and bends in glass", 0.9)

	s := NewSearcher(reg, nil)
	ev, err := s.Search(ctx, "light fast", 5)
	require.NoError(t, err)
	require.Len(t, ev.Results, 2)

	// 两条重叠度相同(均含全部查询词元),后写入的在前。
	assert.Equal(t, "light travels fast in vacuum and bends in glass", ev.Results[0].Content)
}

func TestSearcher_LimitAndDefault(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, c := range []string{
		"gravity pulls objects down",
		"gravity bends light",
		"gravity is a force",
		"gravity acts at a distance",
		"gravity holds planets in orbit",
		"gravity waves were detected in 2015",
	} {
		mustStore(t, reg, "science", c, 0.8)
	}

	s := NewSearcher(reg, nil)
	ev, err := s.Search(ctx, "gravity", 0)
	require.NoError(t, err)
	assert.Len(t, ev.Results, DefaultTopK)

	ev, err = s.Search(ctx, "gravity", 2)
	require.NoError(t, err)
	assert.Len(t, ev.Results, 2)
}

func TestSearcher_NoMatches(t *testing.T) {
	reg := newTestRegistry(t)

	s := NewSearcher(reg, nil)
	ev, err := s.Search(context.Background(), "quantum chromodynamics", 5)
	require.NoError(t, err)
	assert.Empty(t, ev.Results)
	assert.NotEmpty(t, ev.Banks)
}

func TestOverlap(t *testing.T) {
	q := bank.Tokenize("water boils hot")
	assert.InDelta(t, 2.0/3.0, overlap(q, "water boils at 100 degrees"), 1e-9)
	assert.Equal(t, 0.0, overlap(nil, "anything"))
	assert.Equal(t, 1.0, overlap(bank.Tokenize("water"), "Water, water everywhere"))
}
