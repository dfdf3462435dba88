// Package ingest coordinates document writes: chunking, embedding and
// indexing as one operation with retry and lazy collection creation.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quarry-search/quarry/internal/chunk"
	"github.com/quarry-search/quarry/internal/docmeta"
	"github.com/quarry-search/quarry/internal/embed"
	qerr "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/index"
	"github.com/quarry-search/quarry/internal/metrics"
)

// Request describes one document to ingest.
type Request struct {
	// DocumentID identifies the document. Empty generates a new ID.
	DocumentID string

	// Filename is the original upload name, stored on every chunk.
	Filename string

	// Text is the extracted document text.
	Text string

	// Metadata is arbitrary caller metadata stored on every chunk. A
	// string "category" value is additionally lifted to the filterable
	// category field.
	Metadata map[string]any

	// Chunking controls how Text is split.
	Chunking chunk.Options
}

// Result reports a completed ingest.
type Result struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
}

// Coordinator serializes mutations against the vector backend and the
// metadata store. Reads go directly to the backend; only writes pass
// through here.
type Coordinator struct {
	embedder embed.Embedder
	store    index.VectorIndex
	docs     *docmeta.Store
	retry    qerr.RetryConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewCoordinator creates a mutation coordinator. docs, logger and m may
// be nil.
func NewCoordinator(embedder embed.Embedder, store index.VectorIndex, docs *docmeta.Store, retry qerr.RetryConfig, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		embedder: embedder,
		store:    store,
		docs:     docs,
		retry:    retry,
		logger:   logger,
		metrics:  m,
	}
}

// Ingest splits, embeds and indexes one document.
//
// A text that yields no chunks succeeds without touching the backend.
// An embedding failure aborts before any index write. Transient backend
// failures are retried; a missing collection is created lazily, sized
// to the embeddings at hand, and the write retried once more.
func (c *Coordinator) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := req.Chunking.Validate(); err != nil {
		return nil, err
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}

	chunks, err := chunk.Split(req.Text, req.Chunking)
	if err != nil {
		return nil, err
	}
	// The metadata record is written up front; listings only surface
	// documents whose chunks actually reached the index, so a record
	// from a later-failing ingest stays invisible.
	if err := c.saveRecord(ctx, docID, req, len(chunks)); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		c.logger.Info("document produced no chunks, nothing to index",
			slog.String("document_id", docID),
			slog.String("filename", req.Filename))
		return &Result{DocumentID: docID, ChunkCount: 0}, nil
	}

	embedStart := time.Now()
	vectors, err := c.embedder.EmbedBatch(ctx, chunks)
	c.metrics.ObserveEmbeddingTime(time.Since(embedStart).Seconds())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, qerr.Timeout("ingest timed out while embedding", err)
		}
		return nil, qerr.EmbeddingProvider("failed to embed document chunks", err).
			WithDetail("document_id", docID)
	}
	if len(vectors) != len(chunks) {
		return nil, qerr.EmbeddingProvider("embedding count does not match chunk count", nil).
			WithDetail("document_id", docID)
	}

	entries := make([]index.Entry, len(chunks))
	totalChars := 0
	for i, text := range chunks {
		totalChars += len(text)
		entries[i] = index.Entry{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: index.Payload{
				DocumentID: docID,
				Filename:   req.Filename,
				ChunkIndex: i,
				Text:       text,
				Category:   categoryOf(req.Metadata),
				Metadata:   req.Metadata,
			},
		}
	}
	c.metrics.SetAverageChunkSize(float64(totalChars) / float64(len(chunks)))

	if err := c.upsert(ctx, entries, len(vectors[0])); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, qerr.Timeout("ingest timed out while indexing", err)
		}
		return nil, err
	}

	c.logger.Info("document ingested",
		slog.String("document_id", docID),
		slog.String("filename", req.Filename),
		slog.Int("chunks", len(chunks)))
	return &Result{DocumentID: docID, ChunkCount: len(chunks)}, nil
}

// saveRecord writes the per-document ingestion record, when a metadata
// store is configured.
func (c *Coordinator) saveRecord(ctx context.Context, docID string, req Request, chunkCount int) error {
	if c.docs == nil {
		return nil
	}
	return c.docs.Save(ctx, docmeta.Record{
		ID:         docID,
		Filename:   req.Filename,
		Metadata:   req.Metadata,
		Strategy:   string(req.Chunking.Strategy),
		ChunkSize:  req.Chunking.ChunkSize,
		Overlap:    req.Chunking.Overlap,
		ChunkCount: chunkCount,
		CreatedAt:  time.Now(),
	})
}

// upsert writes entries with retry. On a missing collection it creates
// one sized to dims and retries the write.
func (c *Coordinator) upsert(ctx context.Context, entries []index.Entry, dims int) error {
	err := c.timedUpsert(ctx, entries)
	if err == nil {
		return nil
	}
	if !qerr.HasKind(err, qerr.KindCollectionMissing) {
		return err
	}

	c.logger.Info("collection missing, creating it",
		slog.Int("dimensions", dims))
	if err := c.store.EnsureCollection(ctx, dims); err != nil {
		return err
	}
	return c.timedUpsert(ctx, entries)
}

func (c *Coordinator) timedUpsert(ctx context.Context, entries []index.Entry) error {
	start := time.Now()
	err := qerr.Retry(ctx, c.retry, func() error {
		return c.store.Upsert(ctx, entries)
	})
	c.metrics.ObserveIndexLatency("upsert", time.Since(start).Seconds())
	return err
}

// Delete removes every chunk of the document and its metadata record.
// Deleting an unknown document succeeds.
func (c *Coordinator) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return qerr.Validation("document_id is required", nil)
	}

	start := time.Now()
	err := qerr.Retry(ctx, c.retry, func() error {
		return c.store.DeleteByFilter(ctx, index.Filter{"document_id": documentID})
	})
	c.metrics.ObserveIndexLatency("delete", time.Since(start).Seconds())
	if err != nil {
		return err
	}

	if c.docs != nil {
		if err := c.docs.Delete(ctx, documentID); err != nil {
			return err
		}
	}

	c.logger.Info("document deleted", slog.String("document_id", documentID))
	return nil
}

// categoryOf lifts a string category out of caller metadata.
func categoryOf(metadata map[string]any) string {
	if category, ok := metadata["category"].(string); ok {
		return category
	}
	return ""
}
