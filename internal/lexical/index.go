package lexical

import (
	"context"

	"github.com/quarry-search/quarry/internal/index"
)

// DefaultScanLimit bounds how many stored payloads one query may scan
// when deriving the candidate set.
const DefaultScanLimit = 1000

// Index answers keyword queries by scanning stored payloads from the
// vector backend and ranking them on demand.
type Index struct {
	store     index.VectorIndex
	ranker    *Ranker
	scanLimit int
}

// NewIndex creates a lexical index over the given payload store.
// scanLimit <= 0 selects DefaultScanLimit.
func NewIndex(store index.VectorIndex, scanLimit int) *Index {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &Index{
		store:     store,
		ranker:    NewRanker(),
		scanLimit: scanLimit,
	}
}

// Search scans up to the scan limit of payloads matching the filter and
// returns the topK BM25-ranked candidates. An empty index is an empty
// result, not an error.
func (x *Index) Search(ctx context.Context, query string, topK int, filter index.Filter) ([]Result, error) {
	candidates, err := x.store.Scroll(ctx, filter, x.scanLimit)
	if err != nil {
		return nil, err
	}
	return x.ranker.Rank(query, candidates, topK), nil
}
