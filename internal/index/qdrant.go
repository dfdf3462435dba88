package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

// Default Qdrant connection settings.
const (
	DefaultQdrantHost       = "localhost"
	DefaultQdrantPort       = 6333
	DefaultQdrantTimeout    = 90 * time.Second
	DefaultQdrantCollection = "documents"
	QdrantPoolSize          = 8
)

// QdrantConfig configures the remote vector index connection.
type QdrantConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Timeout    time.Duration `yaml:"timeout"`
	Collection string        `yaml:"collection"`
}

// DefaultQdrantConfig returns the default connection settings.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:       DefaultQdrantHost,
		Port:       DefaultQdrantPort,
		Timeout:    DefaultQdrantTimeout,
		Collection: DefaultQdrantCollection,
	}
}

// QdrantIndex implements VectorIndex against a Qdrant-compatible REST
// backend: batch upsert, filtered cosine search, filtered bulk delete,
// payload scroll, and collection existence/creation.
type QdrantIndex struct {
	client    *http.Client
	transport *http.Transport
	config    QdrantConfig
	baseURL   string

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*QdrantIndex)(nil)

// NewQdrantIndex creates a new Qdrant-backed vector index client.
func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	if cfg.Host == "" {
		cfg.Host = DefaultQdrantHost
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultQdrantPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQdrantTimeout
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultQdrantCollection
	}

	transport := &http.Transport{
		MaxIdleConns:        QdrantPoolSize,
		MaxIdleConnsPerHost: QdrantPoolSize,
		IdleConnTimeout:     30 * time.Second,
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	return &QdrantIndex{
		client:    client,
		transport: transport,
		config:    cfg,
		baseURL:   fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
	}
}

// Collection returns the configured collection name.
func (q *QdrantIndex) Collection() string {
	return q.config.Collection
}

// qdrantCondition is one equality condition of a payload filter.
type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

// qdrantFilter is the must-match filter wrapper.
type qdrantFilter struct {
	Must []qdrantCondition `json:"must"`
}

// buildFilter converts a Filter to the wire representation.
// Returns nil for an empty filter so the field is omitted entirely.
func buildFilter(f Filter) *qdrantFilter {
	if len(f) == 0 {
		return nil
	}
	qf := &qdrantFilter{Must: make([]qdrantCondition, 0, len(f))}
	for key, value := range f {
		var cond qdrantCondition
		cond.Key = key
		cond.Match.Value = value
		qf.Must = append(qf.Must, cond)
	}
	return qf
}

type qdrantPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector,omitempty"`
	Payload Payload   `json:"payload"`
}

// EnsureCollection creates the collection with cosine distance if absent.
// A concurrent creation racing this call surfaces as "already exists" from
// the backend and is treated as success.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	status, respBody, err := q.do(ctx, http.MethodPut, "/collections/"+q.config.Collection, body)
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusConflict || strings.Contains(respBody, "already exists") {
		return nil
	}
	return q.classify(status, respBody, "create collection")
}

// Upsert writes all entries in one batch call with wait=true so that a
// successful return means the points are visible to search.
func (q *QdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(entries))
	for i, e := range entries {
		points[i] = qdrantPoint{ID: e.ID, Vector: e.Vector, Payload: e.Payload}
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", q.config.Collection)
	status, respBody, err := q.do(ctx, http.MethodPut, path, map[string]any{"points": points})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return q.classify(status, respBody, "upsert")
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      string  `json:"id"`
		Score   float32 `json:"score"`
		Payload Payload `json:"payload"`
	} `json:"result"`
}

// Search runs a filtered cosine similarity query.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int, scoreFloor float32, filter Filter) ([]Hit, error) {
	body := map[string]any{
		"vector":          vector,
		"limit":           topK,
		"score_threshold": scoreFloor,
		"with_payload":    true,
	}
	if qf := buildFilter(filter); qf != nil {
		body["filter"] = qf
	}
	path := fmt.Sprintf("/collections/%s/points/search", q.config.Collection)
	status, respBody, err := q.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, q.classify(status, respBody, "search")
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal([]byte(respBody), &parsed); err != nil {
		return nil, qerr.Storage("decode search response", err)
	}
	hits := make([]Hit, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		hits = append(hits, Hit{Payload: r.Payload, Score: r.Score})
	}
	return hits, nil
}

type qdrantScrollResponse struct {
	Result struct {
		Points []qdrantPoint `json:"points"`
	} `json:"result"`
}

// Scroll enumerates stored payloads matching the filter, up to limit.
// A missing collection yields an empty result, keeping reads no-op safe.
func (q *QdrantIndex) Scroll(ctx context.Context, filter Filter, limit int) ([]Payload, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	if qf := buildFilter(filter); qf != nil {
		body["filter"] = qf
	}
	path := fmt.Sprintf("/collections/%s/points/scroll", q.config.Collection)
	status, respBody, err := q.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		clsErr := q.classify(status, respBody, "scroll")
		if qerr.HasKind(clsErr, qerr.KindCollectionMissing) {
			return []Payload{}, nil
		}
		return nil, clsErr
	}

	var parsed qdrantScrollResponse
	if err := json.Unmarshal([]byte(respBody), &parsed); err != nil {
		return nil, qerr.Storage("decode scroll response", err)
	}
	payloads := make([]Payload, 0, len(parsed.Result.Points))
	for _, p := range parsed.Result.Points {
		payloads = append(payloads, p.Payload)
	}
	return payloads, nil
}

// DeleteByFilter removes every point matching the filter. Deleting from a
// missing collection or with no matches is a no-op success.
func (q *QdrantIndex) DeleteByFilter(ctx context.Context, filter Filter) error {
	qf := buildFilter(filter)
	if qf == nil {
		return qerr.Validation("refusing to delete with an empty filter", nil)
	}
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", q.config.Collection)
	status, respBody, err := q.do(ctx, http.MethodPost, path, map[string]any{"filter": qf})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		clsErr := q.classify(status, respBody, "delete")
		if qerr.HasKind(clsErr, qerr.KindCollectionMissing) {
			return nil
		}
		return clsErr
	}
	return nil
}

type qdrantCollectionInfo struct {
	Result struct {
		PointsCount int `json:"points_count"`
	} `json:"result"`
}

// Count returns the number of points in the collection, 0 if it is absent.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	status, respBody, err := q.do(ctx, http.MethodGet, "/collections/"+q.config.Collection, nil)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, nil
	}
	if status != http.StatusOK {
		return 0, q.classify(status, respBody, "collection info")
	}
	var parsed qdrantCollectionInfo
	if err := json.Unmarshal([]byte(respBody), &parsed); err != nil {
		return 0, qerr.Storage("decode collection info", err)
	}
	return parsed.Result.PointsCount, nil
}

// Close releases idle connections.
func (q *QdrantIndex) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	q.transport.CloseIdleConnections()
	return nil
}

// do executes one request and returns status code plus raw body.
// Transport-level failures (refused connections, timeouts) classify as
// transient so the retry policy applies.
func (q *QdrantIndex) do(ctx context.Context, method, path string, body any) (int, string, error) {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return 0, "", qerr.Storage("index client is closed", nil)
	}
	q.mu.RUnlock()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, "", qerr.Storage("encode request body", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, reader)
	if err != nil {
		return 0, "", qerr.Storage("build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		return 0, "", qerr.TransientBackend("vector backend unreachable: "+err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", qerr.TransientBackend("read response body", err)
	}
	return resp.StatusCode, string(respBody), nil
}

// classify maps an unexpected status code to an error kind.
func (q *QdrantIndex) classify(status int, body, operation string) error {
	msg := fmt.Sprintf("%s failed with status %d: %s", operation, status, truncate(body, 200))
	switch {
	case status == http.StatusNotFound:
		if strings.Contains(body, "exist") || strings.Contains(body, "not found") || strings.Contains(body, "Not found") {
			return qerr.CollectionMissing(msg, nil)
		}
		return qerr.NotFound(msg, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return qerr.TransientBackend(msg, nil)
	default:
		return qerr.Storage(msg, nil)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
