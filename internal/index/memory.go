package index

import (
	"context"
	"math"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

// MemoryIndex implements VectorIndex with an embedded coder/hnsw graph.
// It backs local mode (no external vector service) and the test suite.
// Payloads are kept beside the graph; filters are applied exactly after
// graph traversal.
type MemoryIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]

	dimensions int
	created    bool
	closed     bool

	// ID mapping (entry ID <-> graph key)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	// entries holds payloads keyed by entry ID; order preserves first
	// insertion so Scroll is deterministic.
	entries map[string]Entry
	order   []string
}

// Verify interface implementation at compile time
var _ VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty embedded vector index. The backing
// collection is created lazily via EnsureCollection, mirroring the remote
// backend's lifecycle.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		entries: make(map[string]Entry),
	}
}

// EnsureCollection initializes the graph for the given dimensionality.
// Calling it again is a no-op, also under concurrent callers.
func (m *MemoryIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qerr.Storage("index is closed", nil)
	}
	if m.created {
		return nil
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	m.graph = graph
	m.dimensions = dimensions
	m.created = true
	return nil
}

// Upsert inserts entries, replacing any existing IDs. Replaced graph
// nodes are orphaned lazily, the same strategy as deletion.
func (m *MemoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qerr.Storage("index is closed", nil)
	}
	if !m.created {
		return qerr.CollectionMissing("collection does not exist", nil)
	}
	for _, e := range entries {
		if len(e.Vector) != m.dimensions {
			return qerr.Storage("vector dimension mismatch", nil).
				WithDetail("expected", strconv.Itoa(m.dimensions)).
				WithDetail("got", strconv.Itoa(len(e.Vector)))
		}
	}

	for _, e := range entries {
		if existingKey, exists := m.idMap[e.ID]; exists {
			delete(m.keyMap, existingKey)
			delete(m.idMap, e.ID)
		} else {
			m.order = append(m.order, e.ID)
		}

		key := m.nextKey
		m.nextKey++

		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		normalizeInPlace(vec)

		m.graph.Add(hnsw.MakeNode(key, vec))
		m.idMap[e.ID] = key
		m.keyMap[key] = e.ID
		m.entries[e.ID] = e
	}
	return nil
}

// Search finds the topK most similar stored entries whose payload matches
// the filter and whose cosine similarity reaches scoreFloor.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, topK int, scoreFloor float32, filter Filter) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, qerr.Storage("index is closed", nil)
	}
	if !m.created {
		return nil, qerr.CollectionMissing("collection does not exist", nil)
	}
	if topK <= 0 || m.graph.Len() == 0 {
		return []Hit{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	// With a filter or a score floor the first topK neighbors may all be
	// rejected, so traverse the full graph. Sizes here are small by
	// construction (local mode, tests).
	k := topK
	if len(filter) > 0 || scoreFloor > 0 {
		k = m.graph.Len()
	}

	nodes := m.graph.Search(query, k)
	hits := make([]Hit, 0, topK)
	for _, node := range nodes {
		id, exists := m.keyMap[node.Key]
		if !exists {
			// Orphaned by lazy deletion.
			continue
		}
		entry := m.entries[id]
		if !filter.Matches(entry.Payload) {
			continue
		}
		// coder/hnsw cosine distance is 1 - cos_sim.
		score := 1.0 - m.graph.Distance(query, node.Value)
		if score < scoreFloor {
			continue
		}
		hits = append(hits, Hit{Payload: entry.Payload, Score: score})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// Scroll enumerates payloads matching the filter in insertion order.
func (m *MemoryIndex) Scroll(ctx context.Context, filter Filter, limit int) ([]Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, qerr.Storage("index is closed", nil)
	}
	if !m.created {
		return []Payload{}, nil
	}

	payloads := make([]Payload, 0, limit)
	for _, id := range m.order {
		entry, exists := m.entries[id]
		if !exists || !filter.Matches(entry.Payload) {
			continue
		}
		payloads = append(payloads, entry.Payload)
		if limit > 0 && len(payloads) == limit {
			break
		}
	}
	return payloads, nil
}

// DeleteByFilter removes entries whose payload matches the filter, using
// lazy graph deletion. No matches is a no-op success.
func (m *MemoryIndex) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return qerr.Validation("refusing to delete with an empty filter", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return qerr.Storage("index is closed", nil)
	}
	if !m.created {
		return nil
	}

	remaining := m.order[:0]
	for _, id := range m.order {
		entry := m.entries[id]
		if !filter.Matches(entry.Payload) {
			remaining = append(remaining, id)
			continue
		}
		if key, exists := m.idMap[id]; exists {
			delete(m.keyMap, key)
			delete(m.idMap, id)
		}
		delete(m.entries, id)
	}
	m.order = remaining
	return nil
}

// Count returns the number of live entries.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, qerr.Storage("index is closed", nil)
	}
	return len(m.entries), nil
}

// Close releases the graph.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.graph = nil
	return nil
}

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
