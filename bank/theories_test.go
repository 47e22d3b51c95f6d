package bank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

func newTheoriesBank(t *testing.T) *TheoriesBank {
	t.Helper()
	tb, err := NewTheories(t.TempDir(), RotationConfig{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tb.Close() })
	return tb
}

func TestTheoriesBank_StoreTheory(t *testing.T) {
	tb := newTheoriesBank(t)
	ctx := context.Background()

	res, err := tb.StoreTheory(ctx, types.Fact{Content: "penguins probably have feathers"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.StoredID)

	got, err := tb.Retrieve(ctx, "penguins", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, RecordTheory, got[0].Type)
	assert.Equal(t, StatusOpen, got[0].Status)
	assert.Equal(t, types.VerificationEducatedGuess, got[0].VerificationLevel)
}

func TestTheoriesBank_SameContentTwice(t *testing.T) {
	tb := newTheoriesBank(t)
	ctx := context.Background()

	// 理论允许重复入库，每次猜测是独立事件
	first, err := tb.StoreTheory(ctx, types.Fact{Content: "the moon affects tides"})
	require.NoError(t, err)
	second, err := tb.StoreTheory(ctx, types.Fact{Content: "the moon affects tides"})
	require.NoError(t, err)
	assert.NotEqual(t, first.StoredID, second.StoredID)
	assert.Equal(t, 2, tb.Counts().STM)
}

func TestTheoriesBank_StoreContradiction(t *testing.T) {
	tb := newTheoriesBank(t)
	ctx := context.Background()

	_, err := tb.StoreContradiction(ctx, types.Fact{Content: "the sky is green"})
	require.NoError(t, err)

	got, err := tb.Retrieve(ctx, "sky", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, RecordContradiction, got[0].Type)
	assert.Equal(t, types.VerificationUnknown, got[0].VerificationLevel)
}

func TestTheoriesBank_ResolveMatches(t *testing.T) {
	tb := newTheoriesBank(t)
	ctx := context.Background()

	stored, err := tb.StoreTheory(ctx, types.Fact{Content: "Light bends in water"})
	require.NoError(t, err)
	_, err = tb.StoreTheory(ctx, types.Fact{Content: "unrelated guess"})
	require.NoError(t, err)

	matched, err := tb.ResolveMatches(ctx, "light bends in water")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, stored.StoredID, matched[0])

	// 应追加一条指向原理论的 resolution 记录
	var resolutions []types.Record
	got, err := tb.Retrieve(ctx, "", 0)
	require.NoError(t, err)
	for _, rec := range got {
		if rec.Type == RecordResolution {
			resolutions = append(resolutions, rec)
		}
	}
	require.Len(t, resolutions, 1)
	assert.Equal(t, stored.StoredID, resolutions[0].LinkedFactID)
	assert.Equal(t, StatusResolved, resolutions[0].Status)
}

func TestTheoriesBank_ResolveNoMatch(t *testing.T) {
	tb := newTheoriesBank(t)
	matched, err := tb.ResolveMatches(context.Background(), "never stored")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestTheoriesBank_Supersede(t *testing.T) {
	tb := newTheoriesBank(t)
	ctx := context.Background()

	old, err := tb.StoreTheory(ctx, types.Fact{Content: "tomatoes are vegetables"})
	require.NoError(t, err)

	res, err := tb.Supersede(ctx, old.StoredID, types.Fact{Content: "tomatoes are fruits", Confidence: 0.8})
	require.NoError(t, err)
	assert.NotEqual(t, old.StoredID, res.StoredID)

	got, err := tb.Retrieve(ctx, "", 0)
	require.NoError(t, err)

	var oldRec, newRec *types.Record
	for i := range got {
		switch got[i].ID {
		case old.StoredID:
			oldRec = &got[i]
		case res.StoredID:
			newRec = &got[i]
		}
	}
	require.NotNil(t, oldRec)
	require.NotNil(t, newRec)
	assert.Equal(t, StatusSuperseded, oldRec.Status)
	assert.Equal(t, old.StoredID, newRec.Metadata["supersedes"])
}
