// Package index provides the vector index adapter used by the retrieval
// engine: a remote Qdrant-compatible backend for production and an
// embedded HNSW implementation for local mode and tests.
package index

import (
	"context"
	"fmt"
)

// Payload is the non-vector record stored alongside each indexed chunk.
// Both the vector backend and the lexical ranker consume this shape.
type Payload struct {
	// DocumentID ties the chunk back to its parent document.
	DocumentID string `json:"document_id"`

	// Filename is the original upload name of the parent document.
	Filename string `json:"filename"`

	// ChunkIndex is the 0-based position of the chunk in the document.
	ChunkIndex int `json:"chunk_index"`

	// Text is the chunk content. Kept in the payload so the lexical
	// ranker can derive its corpus from stored entries.
	Text string `json:"text"`

	// Category is flattened out of Metadata so it can serve as an
	// equality filter field.
	Category string `json:"category,omitempty"`

	// Metadata is the raw document metadata mapping.
	Metadata map[string]any `json:"doc_metadata,omitempty"`
}

// Field returns the filterable value for a payload field name.
// Unknown names fall back to the metadata mapping, with non-string
// values rendered as strings for equality comparison.
func (p Payload) Field(name string) (string, bool) {
	switch name {
	case "document_id":
		return p.DocumentID, true
	case "filename":
		return p.Filename, true
	case "category":
		return p.Category, p.Category != ""
	default:
		v, ok := p.Metadata[name]
		if !ok {
			return "", false
		}
		if s, ok := v.(string); ok {
			return s, true
		}
		return fmt.Sprint(v), true
	}
}

// Entry is one persisted (id, vector, payload) triple.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Filter maps payload field names to required equality values.
// All conditions must match (AND semantics).
type Filter map[string]string

// Matches reports whether a payload satisfies every filter condition.
func (f Filter) Matches(p Payload) bool {
	for field, want := range f {
		got, ok := p.Field(field)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Hit is a scored search result. Score is cosine similarity.
type Hit struct {
	Payload Payload
	Score   float32
}

// VectorIndex stores chunk embeddings and answers filtered top-k
// similarity queries. Implementations must make EnsureCollection safe
// under concurrent callers: a second creation attempt observes "already
// exists" and proceeds.
type VectorIndex interface {
	// EnsureCollection creates the backing collection sized to the given
	// embedding dimensionality if it does not exist yet. Idempotent.
	EnsureCollection(ctx context.Context, dimensions int) error

	// Upsert writes entries in one batch. Idempotent per entry ID.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to topK hits ordered by descending similarity,
	// excluding hits below scoreFloor and payloads not matching filter.
	Search(ctx context.Context, vector []float32, topK int, scoreFloor float32, filter Filter) ([]Hit, error)

	// Scroll enumerates stored payloads matching filter, up to limit,
	// in a deterministic backend order.
	Scroll(ctx context.Context, filter Filter, limit int) ([]Payload, error)

	// DeleteByFilter removes every entry whose payload matches filter.
	// Deleting with no matches is a no-op success.
	DeleteByFilter(ctx context.Context, filter Filter) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
