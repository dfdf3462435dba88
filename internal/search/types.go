// Package search implements hybrid retrieval: dense vector search fused
// with lazy keyword ranking over the same stored payloads.
package search

import (
	"github.com/quarry-search/quarry/internal/index"
)

// Result sources.
const (
	SourceDense   = "dense"
	SourceLexical = "lexical"
)

// DefaultTopK is the default number of results per query.
const DefaultTopK = 5

// Options control a single query.
type Options struct {
	// TopK is the maximum number of results. Non-positive selects
	// DefaultTopK.
	TopK int

	// ScoreFloor drops dense hits scoring below it. Zero disables the
	// floor. Lexical hits are not subject to the floor; BM25 scores
	// live on a different scale.
	ScoreFloor float32

	// Filter restricts candidates to payloads matching every key.
	Filter index.Filter

	// UseHybrid enables the keyword leg alongside dense retrieval.
	UseHybrid bool
}

// Result is one retrieved chunk.
type Result struct {
	Payload index.Payload `json:"payload"`
	Score   float64       `json:"score"`
	Source  string        `json:"source"`
}

// Response is the outcome of one query.
type Response struct {
	Results []Result `json:"results"`

	// LatencyMs is the retrieval time in milliseconds. Zero when the
	// query degraded before reaching the backend.
	LatencyMs float64 `json:"latency_ms"`
}

// DocumentInfo summarizes one indexed document.
type DocumentInfo struct {
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename"`
	Category   string         `json:"category,omitempty"`
	Metadata   map[string]any `json:"doc_metadata,omitempty"`
	ChunkCount int            `json:"chunk_count"`
}
