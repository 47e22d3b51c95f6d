package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/memflow/types"
)

func TestNormalize(t *testing.T) {
	n := Normalize("  What   IS  Gravity ")
	assert.Equal(t, "what is gravity", n.Text)
	assert.Equal(t, "text", n.Type)
	assert.Equal(t, "english", n.Language)

	n = Normalize("42")
	assert.Equal(t, "number", n.Type)

	n = Normalize("route 66 is famous")
	assert.Equal(t, "mix", n.Type)

	n = Normalize("什么是重力")
	assert.Equal(t, "unknown", n.Language)
}

func TestClassify_Types(t *testing.T) {
	cases := []struct {
		text string
		want types.StorableType
	}{
		{"what is gravity?", types.StorableQuestion},
		{"where is paris", types.StorableQuestion},
		{"--status", types.StorableCommand},
		{"/cache purge", types.StorableCommand},
		{"please open the window", types.StorableRequest},
		{"can you summarize this", types.StorableRequest},
		{"i feel great today", types.StorableEmotion},
		{"in my opinion cats are better", types.StorableOpinion},
		{"water boils at 100 degrees", types.StorableFact},
		{"", types.StorableUnknown},
		{"12345", types.StorableUnknown},
	}
	for _, tc := range cases {
		got := Classify(tc.text, 0.1)
		assert.Equal(t, tc.want, got.Type, "text=%q", tc.text)
	}
}

func TestClassify_HedgePenalty(t *testing.T) {
	c := Classify("i think the sky is blue", 0.1)
	assert.Equal(t, types.StorableFact, c.Type)
	assert.InDelta(t, 0.1, c.Penalty, 1e-9)
	assert.Equal(t, []string{"i think"}, c.Hedges)

	// 多处模糊措辞累加罚分
	c = Classify("maybe the earth is probably round", 0.1)
	assert.InDelta(t, 0.2, c.Penalty, 1e-9)

	c = Classify("the earth is round", 0.1)
	assert.Zero(t, c.Penalty)
	assert.Empty(t, c.Hedges)
}

func TestClassify_QuestionMarkWinsOverRequest(t *testing.T) {
	c := Classify("can you hear me?", 0.1)
	assert.Equal(t, types.StorableQuestion, c.Type)
}
