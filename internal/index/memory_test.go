package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

func testEntry(id, docID string, chunkIndex int, category string, vector []float32) Entry {
	return Entry{
		ID:     id,
		Vector: vector,
		Payload: Payload{
			DocumentID: docID,
			Filename:   docID + ".txt",
			ChunkIndex: chunkIndex,
			Text:       "chunk " + id,
			Category:   category,
		},
	}
}

func newTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx := NewMemoryIndex()
	require.NoError(t, idx.EnsureCollection(context.Background(), 3))
	return idx
}

func TestMemoryIndex_UpsertBeforeCreateFails(t *testing.T) {
	idx := NewMemoryIndex()
	err := idx.Upsert(context.Background(), []Entry{testEntry("c1", "d1", 0, "", []float32{1, 0, 0})})
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindCollectionMissing))
}

func TestMemoryIndex_EnsureCollectionIdempotent(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 3))
	require.NoError(t, idx.EnsureCollection(ctx, 3))
}

func TestMemoryIndex_SearchOrdersBySimilarity(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{
		testEntry("c1", "d1", 0, "", []float32{1, 0, 0}),
		testEntry("c2", "d1", 1, "", []float32{0, 1, 0}),
		testEntry("c3", "d1", 2, "", []float32{0.9, 0.1, 0}),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2, 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Payload.ChunkIndex)
	assert.Equal(t, 2, hits[1].Payload.ChunkIndex)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 1e-5)
}

func TestMemoryIndex_SearchScoreFloor(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{
		testEntry("c1", "d1", 0, "", []float32{1, 0, 0}),
		testEntry("c2", "d1", 1, "", []float32{0, 1, 0}), // orthogonal, sim 0
	}))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, 0.5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].Payload.ChunkIndex)
}

func TestMemoryIndex_SearchFilter(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{
		testEntry("c1", "d1", 0, "A", []float32{1, 0, 0}),
		testEntry("c2", "d2", 0, "B", []float32{1, 0.01, 0}),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, 0, Filter{"category": "B"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2", hits[0].Payload.DocumentID)
}

func TestMemoryIndex_UpsertReplacesByID(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{testEntry("c1", "d1", 0, "", []float32{1, 0, 0})}))
	updated := testEntry("c1", "d1", 0, "", []float32{0, 1, 0})
	updated.Payload.Text = "updated"
	require.NoError(t, idx.Upsert(ctx, []Entry{updated}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := idx.Search(ctx, []float32{0, 1, 0}, 1, 0.9, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "updated", hits[0].Payload.Text)
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Upsert(context.Background(), []Entry{testEntry("c1", "d1", 0, "", []float32{1, 0})})
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindStorage))
}

func TestMemoryIndex_DeleteByFilter(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{
		testEntry("c1", "d1", 0, "", []float32{1, 0, 0}),
		testEntry("c2", "d1", 1, "", []float32{0, 1, 0}),
		testEntry("c3", "d2", 0, "", []float32{0, 0, 1}),
	}))

	require.NoError(t, idx.DeleteByFilter(ctx, Filter{"document_id": "d1"}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 10, 0, nil)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "d1", h.Payload.DocumentID)
	}

	// Second delete is a no-op success.
	require.NoError(t, idx.DeleteByFilter(ctx, Filter{"document_id": "d1"}))
}

func TestMemoryIndex_DeleteEmptyFilterRejected(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.DeleteByFilter(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindValidation))
}

func TestMemoryIndex_ScrollInsertionOrder(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Entry{
		testEntry("c1", "d1", 0, "A", []float32{1, 0, 0}),
		testEntry("c2", "d2", 0, "B", []float32{0, 1, 0}),
		testEntry("c3", "d1", 1, "A", []float32{0, 0, 1}),
	}))

	payloads, err := idx.Scroll(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, payloads, 3)
	assert.Equal(t, "d1", payloads[0].DocumentID)
	assert.Equal(t, "d2", payloads[1].DocumentID)

	filtered, err := idx.Scroll(ctx, Filter{"category": "A"}, 0)
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	limited, err := idx.Scroll(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryIndex_ScrollBeforeCreateIsEmpty(t *testing.T) {
	idx := NewMemoryIndex()
	payloads, err := idx.Scroll(context.Background(), nil, 100)
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestFilter_Matches(t *testing.T) {
	p := Payload{
		DocumentID: "d1",
		Filename:   "report.txt",
		Category:   "finance",
		Metadata:   map[string]any{"author": "pat", "year": 2026},
	}

	assert.True(t, Filter(nil).Matches(p))
	assert.True(t, Filter{"document_id": "d1"}.Matches(p))
	assert.True(t, Filter{"category": "finance", "author": "pat"}.Matches(p))
	assert.True(t, Filter{"year": "2026"}.Matches(p))
	assert.False(t, Filter{"category": "legal"}.Matches(p))
	assert.False(t, Filter{"missing_field": "x"}.Matches(p))
}
