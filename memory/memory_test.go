package memory

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQAMemory_AppendLookup(t *testing.T) {
	qa, err := NewQAMemory(filepath.Join(t.TempDir(), "qa_memory.jsonl"), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, qa.Append("What is the capital of France?", "Paris", 0.85))
	require.NoError(t, qa.Append("What is the capital of France?", "Paris, France", 0.9))

	// 规范化匹配:大小写与结尾问号不影响命中,最新条目优先。
	entry, err := qa.Lookup("what is the capital of france")
	require.NoError(t, err)
	assert.Equal(t, "Paris, France", entry.Answer)
	assert.Equal(t, 0.9, entry.Confidence)
}

func TestQAMemory_Miss(t *testing.T) {
	qa, err := NewQAMemory(filepath.Join(t.TempDir(), "qa_memory.jsonl"), zap.NewNop())
	require.NoError(t, err)

	_, err = qa.Lookup("never asked")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = qa.Lookup("   ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQAMemory_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa_memory.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n{\"question\":\"q1\",\"answer\":\"a1\",\"confidence\":0.8}\n"), 0o644))

	qa, err := NewQAMemory(path, zap.NewNop())
	require.NoError(t, err)

	entry, err := qa.Lookup("q1")
	require.NoError(t, err)
	assert.Equal(t, "a1", entry.Answer)
}

func TestWorkingMemory_PutGet(t *testing.T) {
	wm := NewWorkingMemory(0, "", zap.NewNop())

	require.NoError(t, wm.Put("color", "blue", 0.8, 0))
	require.NoError(t, wm.Put("color", "green", 0.9, 0))

	entries := wm.Get("color")
	require.Len(t, entries, 2)
	assert.Equal(t, "green", entries[len(entries)-1].Value)
	assert.Empty(t, wm.Get("missing"))
}

func TestWorkingMemory_TTLExpiry(t *testing.T) {
	wm := NewWorkingMemory(0, "", zap.NewNop())

	require.NoError(t, wm.Put("k", "v", 0.5, 10*time.Millisecond))
	require.Len(t, wm.Get("k"), 1)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, wm.Get("k"))
}

func TestWorkingMemory_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wm_store.jsonl")

	wm := NewWorkingMemory(0, path, zap.NewNop())
	require.NoError(t, wm.Put("stable", "value", 0.7, 0))
	require.NoError(t, wm.Put("ephemeral", "gone", 0.7, 10*time.Millisecond))

	time.Sleep(20 * time.Millisecond)

	// 重新打开:过期条目被跳过。
	restored := NewWorkingMemory(0, path, zap.NewNop())
	require.Len(t, restored.Get("stable"), 1)
	assert.Empty(t, restored.Get("ephemeral"))
}

func TestWorkingMemory_CapacityEviction(t *testing.T) {
	wm := NewWorkingMemory(2, "", zap.NewNop())

	require.NoError(t, wm.Put("a", "1", 0.5, 0))
	require.NoError(t, wm.Put("b", "2", 0.5, 0))
	require.NoError(t, wm.Put("c", "3", 0.5, 0))

	assert.Empty(t, wm.Get("a"))
	assert.Len(t, wm.Get("b"), 1)
	assert.Len(t, wm.Get("c"), 1)
}

func TestWorkingMemory_CapacityBoundsSingleKey(t *testing.T) {
	wm := NewWorkingMemory(4, "", zap.NewNop())

	for i := 0; i < 100; i++ {
		require.NoError(t, wm.Put("same-key", strconv.Itoa(i), 0.5, 0))
	}

	assert.LessOrEqual(t, wm.Len(), 4)
	entries := wm.Get("same-key")
	require.Len(t, entries, 4)
	// 保留的是最新写入的条目
	assert.Equal(t, "99", entries[len(entries)-1].Value)
	assert.Equal(t, "96", entries[0].Value)
}

func TestTopicKey(t *testing.T) {
	assert.Equal(t, "what is", TopicKey("What is the capital of France?"))
	assert.Equal(t, "gravity", TopicKey("Gravity!"))
	assert.Equal(t, "", TopicKey("   "))
}

func TestTopicStats_FamiliarityCurve(t *testing.T) {
	stats, err := NewTopicStats(filepath.Join(t.TempDir(), "topic_stats.json"), zap.NewNop())
	require.NoError(t, err)

	// 未见过的主题受到轻微惩罚。
	assert.InDelta(t, -0.02, stats.Familiarity("what is gravity"), 1e-9)

	require.NoError(t, stats.Update("what is gravity"))
	assert.InDelta(t, 0.02, stats.Familiarity("what is gravity"), 1e-9)

	for i := 0; i < 5; i++ {
		require.NoError(t, stats.Update("what is gravity"))
	}
	// 加成封顶 +0.06
	assert.InDelta(t, 0.06, stats.Familiarity("what is gravity"), 1e-9)
}

func TestTopicStats_Top(t *testing.T) {
	stats, err := NewTopicStats(filepath.Join(t.TempDir(), "topic_stats.json"), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, stats.Update("what is gravity"))
	require.NoError(t, stats.Update("what is gravity"))
	require.NoError(t, stats.Update("who was napoleon"))

	top := stats.Top(10)
	require.Len(t, top, 2)
	assert.Equal(t, TopicCount{Topic: "what is", Count: 2}, top[0])
	assert.Equal(t, TopicCount{Topic: "who was", Count: 1}, top[1])

	assert.Len(t, stats.Top(1), 1)
}

func TestMetaConfidence_Adjustment(t *testing.T) {
	mc, err := NewMetaConfidence(filepath.Join(t.TempDir(), "meta_confidence.json"), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 0.0, mc.Adjustment("unknown domain"))

	require.NoError(t, mc.Update("what is", true, 1.0))
	require.NoError(t, mc.Update("what is", true, 1.0))
	// 全部成功 → 正向修正,封顶 +0.1
	assert.InDelta(t, 0.1, mc.Adjustment("what is"), 1e-6)

	require.NoError(t, mc.Update("who was", false, 1.0))
	assert.InDelta(t, -0.1, mc.Adjustment("who was"), 1e-6)

	// 成败参半 → 接近中性
	require.NoError(t, mc.Update("mixed", true, 1.0))
	require.NoError(t, mc.Update("mixed", false, 1.0))
	assert.InDelta(t, 0.0, mc.Adjustment("mixed"), 1e-3)
}

func TestMetaConfidence_DecayReducesInfluence(t *testing.T) {
	mc, err := NewMetaConfidence(filepath.Join(t.TempDir(), "meta_confidence.json"), zap.NewNop())
	require.NoError(t, err)

	base := time.Now()
	mc.now = func() time.Time { return base }
	require.NoError(t, mc.Update("physics", true, 1.0))

	// 三十天后的一次失败盖过衰减后的旧成功。
	mc.now = func() time.Time { return base.Add(30 * 24 * time.Hour) }
	require.NoError(t, mc.Update("physics", false, 1.0))
	assert.Less(t, mc.Adjustment("physics"), 0.0)
}

func TestMetaConfidence_Stats(t *testing.T) {
	mc, err := NewMetaConfidence(filepath.Join(t.TempDir(), "meta_confidence.json"), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, mc.Update("alpha", true, 1.0))
	require.NoError(t, mc.Update("alpha", false, 1.0))
	require.NoError(t, mc.Update("beta", true, 1.0))

	stats := mc.Stats(10)
	require.Len(t, stats, 2)
	assert.Equal(t, "alpha", stats[0].Domain)
	assert.Equal(t, 2, stats[0].Total)
}

func TestFeedbackDetection(t *testing.T) {
	assert.True(t, IsPositiveFeedback("yes"))
	assert.True(t, IsPositiveFeedback("That's correct!"))
	assert.False(t, IsPositiveFeedback("what is correctness"))

	assert.True(t, IsNegativeFeedback("no"))
	assert.True(t, IsNegativeFeedback("that is wrong"))
	assert.False(t, IsNegativeFeedback("yes"))
}
