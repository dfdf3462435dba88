package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/quarry-search/quarry/internal/chunk"
	"github.com/quarry-search/quarry/internal/docmeta"
	qerr "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/index"
	"github.com/quarry-search/quarry/internal/ingest"
	"github.com/quarry-search/quarry/internal/search"
	"github.com/quarry-search/quarry/internal/validate"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":             "ok",
		"embedder_available": s.embedder.Available(c.Request().Context()),
	})
}

// handleIngest accepts a multipart upload and indexes it. Form fields
// may override the configured chunking defaults.
func (s *Server) handleIngest(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return qerr.Validation("multipart field \"file\" is required", err)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return qerr.Validation("failed to open uploaded file", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, validate.MaxDocumentBytes+1))
	if err != nil {
		return qerr.Internal("failed to read uploaded file", err)
	}

	text, err := validate.ExtractText(fileHeader.Filename, data)
	if err != nil {
		return err
	}

	opts, err := s.chunkOptions(c)
	if err != nil {
		return err
	}

	var metadata map[string]any
	if raw := c.FormValue("doc_metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return qerr.Validation("doc_metadata is not valid JSON", err)
		}
	}

	result, err := s.coordinator.Ingest(c.Request().Context(), ingest.Request{
		Filename: fileHeader.Filename,
		Text:     text,
		Metadata: metadata,
		Chunking: opts,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"document_id": result.DocumentID,
		"filename":    fileHeader.Filename,
		"chunk_count": result.ChunkCount,
	})
}

// chunkOptions merges form overrides onto the configured defaults.
func (s *Server) chunkOptions(c echo.Context) (chunk.Options, error) {
	opts := s.cfg.ChunkOptions()
	if v := c.FormValue("chunking_strategy"); v != "" {
		opts.Strategy = chunk.Strategy(v)
	}
	if v := c.FormValue("chunk_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, qerr.Validation("chunk_size must be an integer", err)
		}
		opts.ChunkSize = n
	}
	if v := c.FormValue("overlap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, qerr.Validation("overlap must be an integer", err)
		}
		opts.Overlap = n
	}
	return opts, opts.Validate()
}

type queryRequest struct {
	Query      string            `json:"query"`
	TopK       int               `json:"top_k"`
	ScoreFloor float32           `json:"score_floor"`
	Filter     map[string]string `json:"filter"`
	UseHybrid  *bool             `json:"use_hybrid"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return qerr.Validation("invalid query request body", err)
	}
	if req.Query == "" {
		return qerr.Validation("query is required", nil)
	}

	opts := search.Options{
		TopK:       req.TopK,
		ScoreFloor: req.ScoreFloor,
		Filter:     index.Filter(req.Filter),
		UseHybrid:  s.cfg.Search.UseHybrid,
	}
	if opts.TopK <= 0 {
		opts.TopK = s.cfg.Search.TopK
	}
	if req.UseHybrid != nil {
		opts.UseHybrid = *req.UseHybrid
	}

	resp, err := s.engine.Query(c.Request().Context(), req.Query, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// documentEntry is one listed document, enriched with its ingestion
// record when the metadata store has one.
type documentEntry struct {
	search.DocumentInfo
	Strategy  string `json:"chunking_strategy,omitempty"`
	ChunkSize int    `json:"chunk_size,omitempty"`
	Overlap   int    `json:"overlap,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (s *Server) handleListDocuments(c echo.Context) error {
	ctx := c.Request().Context()
	docs, err := s.engine.ListDocuments(ctx, s.cfg.Search.ScanLimit)
	if err != nil {
		return err
	}
	total, err := s.index.Count(ctx)
	if err != nil {
		return err
	}

	records := map[string]docmeta.Record{}
	if s.docs != nil {
		all, err := s.docs.List(ctx)
		if err != nil {
			return err
		}
		for _, rec := range all {
			records[rec.ID] = rec
		}
	}

	entries := make([]documentEntry, 0, len(docs))
	for _, doc := range docs {
		entry := documentEntry{DocumentInfo: doc}
		if rec, ok := records[doc.DocumentID]; ok {
			entry.Strategy = rec.Strategy
			entry.ChunkSize = rec.ChunkSize
			entry.Overlap = rec.Overlap
			entry.CreatedAt = rec.CreatedAt.UTC().Format(time.RFC3339)
		}
		entries = append(entries, entry)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"documents":    entries,
		"total_chunks": total,
	})
}

func (s *Server) handleDelete(c echo.Context) error {
	id := c.Param("id")
	if err := s.coordinator.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"document_id": id, "deleted": true})
}
