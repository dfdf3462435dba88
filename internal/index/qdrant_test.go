package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

// newFakeQdrant starts an httptest server and returns a client pointed at it.
func newFakeQdrant(t *testing.T, handler http.HandlerFunc) *QdrantIndex {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(parsed.Port())
	require.NoError(t, err)

	return NewQdrantIndex(QdrantConfig{
		Host:       parsed.Hostname(),
		Port:       port,
		Timeout:    2 * time.Second,
		Collection: "documents",
	})
}

func TestQdrantIndex_UpsertSendsBatch(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})

	entries := []Entry{
		testEntry("11111111-1111-1111-1111-111111111111", "d1", 0, "A", []float32{0.1, 0.2}),
		testEntry("22222222-2222-2222-2222-222222222222", "d1", 1, "A", []float32{0.3, 0.4}),
	}
	require.NoError(t, idx.Upsert(context.Background(), entries))

	assert.Equal(t, "/collections/documents/points", gotPath)
	points := gotBody["points"].([]any)
	require.Len(t, points, 2)
	first := points[0].(map[string]any)
	payload := first["payload"].(map[string]any)
	assert.Equal(t, "d1", payload["document_id"])
	assert.Equal(t, float64(0), payload["chunk_index"])
	assert.Equal(t, "A", payload["category"])
}

func TestQdrantIndex_UpsertMissingCollection(t *testing.T) {
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Collection 'documents' doesn't exist!"}}`))
	})

	err := idx.Upsert(context.Background(), []Entry{testEntry("c1", "d1", 0, "", []float32{1})})
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindCollectionMissing))
}

func TestQdrantIndex_Upsert5xxIsTransient(t *testing.T) {
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := idx.Upsert(context.Background(), []Entry{testEntry("c1", "d1", 0, "", []float32{1})})
	require.Error(t, err)
	assert.True(t, qerr.IsRetryable(err))
}

func TestQdrantIndex_UnreachableBackendIsTransient(t *testing.T) {
	idx := NewQdrantIndex(QdrantConfig{
		Host:    "127.0.0.1",
		Port:    1, // nothing listens here
		Timeout: 500 * time.Millisecond,
	})

	err := idx.Upsert(context.Background(), []Entry{testEntry("c1", "d1", 0, "", []float32{1})})
	require.Error(t, err)
	assert.True(t, qerr.IsRetryable(err))
}

func TestQdrantIndex_SearchParsesHits(t *testing.T) {
	var gotBody map[string]any
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"result":[
			{"id":"a","score":0.91,"payload":{"document_id":"d1","chunk_index":0,"text":"first","filename":"f.txt"}},
			{"id":"b","score":0.72,"payload":{"document_id":"d2","chunk_index":3,"text":"second","filename":"g.txt"}}
		]}`))
	})

	hits, err := idx.Search(context.Background(), []float32{0.5, 0.5}, 5, 0.7, Filter{"category": "A"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "d1", hits[0].Payload.DocumentID)
	assert.InDelta(t, 0.91, float64(hits[0].Score), 1e-6)
	assert.Equal(t, 3, hits[1].Payload.ChunkIndex)

	assert.Equal(t, float64(5), gotBody["limit"])
	assert.InDelta(t, 0.7, gotBody["score_threshold"].(float64), 1e-6)
	filter := gotBody["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "category", cond["key"])
}

func TestQdrantIndex_ScrollMissingCollectionIsEmpty(t *testing.T) {
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Collection 'documents' doesn't exist!"}}`))
	})

	payloads, err := idx.Scroll(context.Background(), nil, 1000)
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestQdrantIndex_DeleteMissingCollectionIsNoop(t *testing.T) {
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":{"error":"Collection 'documents' doesn't exist!"}}`))
	})

	err := idx.DeleteByFilter(context.Background(), Filter{"document_id": "gone"})
	require.NoError(t, err)
}

func TestQdrantIndex_EnsureCollectionConflictIsSuccess(t *testing.T) {
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"status":{"error":"Collection 'documents' already exists!"}}`))
	})

	require.NoError(t, idx.EnsureCollection(context.Background(), 384))
}

func TestQdrantIndex_EnsureCollectionSendsDimensions(t *testing.T) {
	var gotBody map[string]any
	idx := newFakeQdrant(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"result":true}`))
	})

	require.NoError(t, idx.EnsureCollection(context.Background(), 384))
	vectors := gotBody["vectors"].(map[string]any)
	assert.Equal(t, float64(384), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}
