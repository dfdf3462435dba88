package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarry-search/quarry/internal/embed"
	"github.com/quarry-search/quarry/internal/index"
	"github.com/quarry-search/quarry/internal/lexical"
	"github.com/quarry-search/quarry/internal/metrics"
)

// Engine answers queries by fusing dense vector search with keyword
// ranking. Both legs read the same backend, so results never disagree
// about what is indexed.
type Engine struct {
	embedder embed.Embedder
	store    index.VectorIndex
	lexical  *lexical.Index
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewEngine creates a query engine. logger and m may be nil.
func NewEngine(embedder embed.Embedder, store index.VectorIndex, lex *lexical.Index, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		lexical:  lex,
		logger:   logger,
		metrics:  m,
	}
}

// Query retrieves chunks relevant to the query text.
//
// Retrieval degrades rather than fails: an embedding failure returns an
// empty response with zero latency, and a backend read failure on either
// leg drops that leg's results. Only context cancellation propagates as
// an error.
func (e *Engine) Query(ctx context.Context, query string, opts Options) (*Response, error) {
	start := time.Now()
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("query embedding failed, returning empty results",
			slog.String("error", err.Error()))
		return &Response{Results: []Result{}, LatencyMs: 0}, nil
	}

	var denseHits []index.Hit
	var lexicalHits []lexical.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		searchStart := time.Now()
		hits, err := e.store.Search(gctx, vector, opts.TopK, opts.ScoreFloor, opts.Filter)
		e.metrics.ObserveIndexLatency("search", time.Since(searchStart).Seconds())
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			e.logger.Warn("dense search failed, dropping dense results",
				slog.String("error", err.Error()))
			return nil
		}
		denseHits = hits
		return nil
	})
	if opts.UseHybrid && e.lexical != nil {
		g.Go(func() error {
			results, err := e.lexical.Search(gctx, query, opts.TopK, opts.Filter)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("lexical search failed, dropping lexical results",
					slog.String("error", err.Error()))
				return nil
			}
			lexicalHits = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := fuse(denseHits, lexicalHits, opts.TopK)
	latency := time.Since(start)

	e.logger.Debug("query completed",
		slog.Int("dense_hits", len(denseHits)),
		slog.Int("lexical_hits", len(lexicalHits)),
		slog.Int("results", len(results)),
		slog.Bool("hybrid", opts.UseHybrid),
		slog.Duration("latency", latency))

	return &Response{
		Results:   results,
		LatencyMs: float64(latency.Microseconds()) / 1000.0,
	}, nil
}

// chunkKey identifies one chunk across both result lists.
type chunkKey struct {
	documentID string
	chunkIndex int
}

// fuse merges the two legs. Dense wins on duplicates: a chunk found by
// both keeps its dense score and source. The merged list is sorted by
// descending score, ties keeping dense-before-lexical order, and
// truncated to topK.
func fuse(dense []index.Hit, lexicalHits []lexical.Result, topK int) []Result {
	results := make([]Result, 0, len(dense)+len(lexicalHits))
	seen := make(map[chunkKey]bool, len(dense))

	for _, hit := range dense {
		key := chunkKey{hit.Payload.DocumentID, hit.Payload.ChunkIndex}
		seen[key] = true
		results = append(results, Result{
			Payload: hit.Payload,
			Score:   float64(hit.Score),
			Source:  SourceDense,
		})
	}
	for _, hit := range lexicalHits {
		key := chunkKey{hit.Payload.DocumentID, hit.Payload.ChunkIndex}
		if seen[key] {
			continue
		}
		results = append(results, Result{
			Payload: hit.Payload,
			Score:   hit.Score,
			Source:  SourceLexical,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// ListDocuments scans stored payloads and summarizes them per document.
// The first payload seen for a document supplies its filename, category
// and metadata; later chunks only bump the count.
func (e *Engine) ListDocuments(ctx context.Context, limit int) ([]DocumentInfo, error) {
	if limit <= 0 {
		limit = lexical.DefaultScanLimit
	}
	payloads, err := e.store.Scroll(ctx, nil, limit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*DocumentInfo, len(payloads))
	order := make([]string, 0, len(payloads))
	for _, p := range payloads {
		if info, ok := byID[p.DocumentID]; ok {
			info.ChunkCount++
			continue
		}
		byID[p.DocumentID] = &DocumentInfo{
			DocumentID: p.DocumentID,
			Filename:   p.Filename,
			Category:   p.Category,
			Metadata:   p.Metadata,
			ChunkCount: 1,
		}
		order = append(order, p.DocumentID)
	}

	docs := make([]DocumentInfo, 0, len(order))
	for _, id := range order {
		docs = append(docs, *byID[id])
	}
	return docs, nil
}
