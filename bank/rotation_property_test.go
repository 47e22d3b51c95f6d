package bank

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/memflow/types"
)

// 属性：无论滚动阈值与写入序列如何，
//  1. 总记录数 = 去重后的唯一内容数（记录绝不丢失、绝不复制）；
//  2. STM/MTM/LTM 各自不超过其阈值；
//  3. 未滚入 cold 的记录全部可被检回，且内容都是写入过的。
func TestBank_RotationProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rotation := RotationConfig{
			STMRecords: rapid.IntRange(1, 5).Draw(rt, "stm_limit"),
			MTMRecords: rapid.IntRange(1, 5).Draw(rt, "mtm_limit"),
			LTMRecords: rapid.IntRange(1, 5).Draw(rt, "ltm_limit"),
		}
		b, err := New("prop", t.TempDir(), rotation, zap.NewNop())
		require.NoError(rt, err)
		defer b.Close()

		ctx := context.Background()
		n := rapid.IntRange(0, 40).Draw(rt, "writes")
		unique := map[string]bool{}
		for i := 0; i < n; i++ {
			// 限定词汇表以制造重复写入
			word := rapid.SampledFrom([]string{"alpha", "beta", "gamma", "delta", "epsilon"}).Draw(rt, "word")
			num := rapid.IntRange(0, 9).Draw(rt, "num")
			content := fmt.Sprintf("%s fact %d", word, num)

			res, err := b.Store(ctx, types.Fact{Content: content})
			require.NoError(rt, err)
			require.Equal(rt, unique[content], res.Duplicate)
			unique[content] = true
		}

		c := b.Counts()
		require.Equal(rt, len(unique), c.Total())
		require.LessOrEqual(rt, c.STM, rotation.STMRecords)
		require.LessOrEqual(rt, c.MTM, rotation.MTMRecords)
		require.LessOrEqual(rt, c.LTM, rotation.LTMRecords)

		live, err := b.Retrieve(ctx, "", 0)
		require.NoError(rt, err)
		require.Len(rt, live, len(unique)-c.Cold)
		for _, rec := range live {
			require.Truef(rt, unique[rec.Content], "unexpected content %q", rec.Content)
		}
	})
}
