package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

func TestSplit_FixedExactMultiple(t *testing.T) {
	text := strings.Repeat("a", 300)
	chunks, err := Split(text, Options{Strategy: StrategyFixed, ChunkSize: 100})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Len(t, c, 100)
	}
}

func TestSplit_FixedShortTail(t *testing.T) {
	// 1100 chars at size 100 -> exactly 11 chunks, all full size.
	text := strings.Repeat("x", 1100)
	chunks, err := Split(text, Options{Strategy: StrategyFixed, ChunkSize: 100})
	require.NoError(t, err)
	require.Len(t, chunks, 11)
	assert.Len(t, chunks[10], 100)

	// 1050 chars -> 11 chunks, last one shorter.
	chunks, err = Split(strings.Repeat("x", 1050), Options{Strategy: StrategyFixed, ChunkSize: 100})
	require.NoError(t, err)
	require.Len(t, chunks, 11)
	assert.Len(t, chunks[10], 50)
}

func TestSplit_FixedCeilProperty(t *testing.T) {
	for _, n := range []int{1, 7, 99, 100, 101, 512, 1023} {
		text := strings.Repeat("q", n)
		chunks, err := Split(text, Options{Strategy: StrategyFixed, ChunkSize: 100})
		require.NoError(t, err)
		want := (n + 99) / 100
		assert.Len(t, chunks, want, "n=%d", n)
		assert.Equal(t, text, strings.Join(chunks, ""), "fixed chunks must reassemble the input")
	}
}

func TestSplit_FixedCountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("é", 10)
	chunks, err := Split(text, Options{Strategy: StrategyFixed, ChunkSize: 4})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("é", 4), chunks[0])
	assert.Equal(t, strings.Repeat("é", 2), chunks[2])
}

func TestSplit_EmptyInput(t *testing.T) {
	for _, strategy := range []Strategy{StrategyFixed, StrategySliding, StrategySemantic} {
		chunks, err := Split("", Options{Strategy: strategy, ChunkSize: 100, Overlap: 10})
		require.NoError(t, err)
		assert.NotNil(t, chunks)
		assert.Empty(t, chunks, "strategy=%s", strategy)
	}
}

func TestSplit_SlidingWindows(t *testing.T) {
	// 10 chars, size 4, overlap 2 -> windows at 0,2,4,6: abcd cdef efgh ghij
	chunks, err := Split("abcdefghij", Options{Strategy: StrategySliding, ChunkSize: 4, Overlap: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "cdef", "efgh", "ghij"}, chunks)
}

func TestSplit_SlidingShortTextSingleChunk(t *testing.T) {
	chunks, err := Split("short", Options{Strategy: StrategySliding, ChunkSize: 100, Overlap: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"short"}, chunks)
}

func TestSplit_SlidingOverlapValidation(t *testing.T) {
	_, err := Split("some text", Options{Strategy: StrategySliding, ChunkSize: 10, Overlap: 10})
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindValidation))

	_, err = Split("some text", Options{Strategy: StrategySliding, ChunkSize: 10, Overlap: 20})
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindValidation))
}

func TestSplit_UnknownStrategy(t *testing.T) {
	_, err := Split("text", Options{Strategy: "langchain", ChunkSize: 100})
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindValidation))
}

func TestSplit_SemanticPacksSentences(t *testing.T) {
	text := "One two three. Four five six. Seven eight nine."
	chunks, err := Split(text, Options{Strategy: StrategySemantic, ChunkSize: 32})
	require.NoError(t, err)
	// "One two three." + " " + "Four five six." = 29 chars, adding the next
	// sentence would exceed 32.
	assert.Equal(t, []string{"One two three. Four five six.", "Seven eight nine."}, chunks)
}

func TestSplit_SemanticLongSentenceKeptWhole(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	chunks, err := Split(long, Options{Strategy: StrategySemantic, ChunkSize: 50})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Greater(t, len(chunks[0]), 50)
}

func TestSplit_SemanticNoTerminator(t *testing.T) {
	chunks, err := Split("no punctuation here", Options{Strategy: StrategySemantic, ChunkSize: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"no punctuation here"}, chunks)
}

func TestSplit_Deterministic(t *testing.T) {
	text := "Alpha beta. Gamma delta! Epsilon zeta? Eta theta."
	for _, strategy := range []Strategy{StrategyFixed, StrategySliding, StrategySemantic} {
		opts := Options{Strategy: strategy, ChunkSize: 20, Overlap: 5}
		first, err := Split(text, opts)
		require.NoError(t, err)
		second, err := Split(text, opts)
		require.NoError(t, err)
		assert.Equal(t, first, second, "strategy=%s", strategy)
	}
}
