package router

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVocabTokens(t *testing.T) {
	toks := vocabTokens("The atom IS a building-block of matter!")
	assert.Equal(t, []string{"atom", "building", "block", "matter"}, toks)
}

func TestVocabLearnAndBest(t *testing.T) {
	v := NewVocab(filepath.Join(t.TempDir(), "vocab.json"), zap.NewNop())

	require.NoError(t, v.Learn("science", "photons carry momentum"))
	require.NoError(t, v.Learn("science", "photons scatter off electrons"))
	require.NoError(t, v.Learn("history", "dynasties rise and fall"))

	best, score := v.Best("photons have no mass")
	assert.Equal(t, "science", best)
	assert.Greater(t, score, 0.0)

	best, score = v.Best("dynasties keep records")
	assert.Equal(t, "history", best)
	assert.Greater(t, score, 0.0)
}

func TestVocabBestNoSignal(t *testing.T) {
	v := NewVocab(filepath.Join(t.TempDir(), "vocab.json"), zap.NewNop())

	best, score := v.Best("completely unrelated words")
	assert.Equal(t, "arts", best)
	assert.Equal(t, 0.0, score)
}

func TestVocabPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")

	v1 := NewVocab(path, zap.NewNop())
	require.NoError(t, v1.Learn("math", "integers divide evenly"))

	v2 := NewVocab(path, zap.NewNop())
	best, score := v2.Best("integers are countable")
	assert.Equal(t, "math", best)
	assert.Greater(t, score, 0.0)
}

func TestVocabIgnoresUnknownBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.json")
	v := NewVocab(path, zap.NewNop())

	require.NoError(t, v.Learn("nonsense_bank", "anything at all"))
	_, score := v.Best("anything at all")
	assert.Equal(t, 0.0, score)
}
