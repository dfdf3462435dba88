// Package lexical provides keyword relevance ranking over stored chunk
// payloads. The index is derived lazily per query: candidates are scanned
// from the vector backend's payloads and ranked with BM25, so there is no
// second persistent store to keep consistent.
package lexical

import (
	"math"
	"sort"
	"strings"

	"github.com/quarry-search/quarry/internal/index"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Result is one ranked candidate. Score is on the BM25 scale, which is
// unbounded above and not comparable to cosine similarity.
type Result struct {
	Payload index.Payload
	Score   float64
}

// Ranker scores a candidate set against a query using the Okapi BM25
// formulation with whitespace tokenization.
type Ranker struct {
	K1 float64
	B  float64
}

// NewRanker returns a Ranker with default parameters.
func NewRanker() *Ranker {
	return &Ranker{K1: DefaultK1, B: DefaultB}
}

// Rank scores candidates against the query and returns up to topK results
// with score > 0, sorted by descending score. Ties keep candidate order.
// An empty candidate set or zero token overlap yields an empty result.
func (r *Ranker) Rank(query string, candidates []index.Payload, topK int) []Result {
	queryTerms := strings.Fields(query)
	if len(queryTerms) == 0 || len(candidates) == 0 || topK <= 0 {
		return []Result{}
	}

	// Tokenize the corpus and collect per-document term frequencies.
	docFreqs := make([]map[string]int, len(candidates))
	docLens := make([]int, len(candidates))
	totalLen := 0
	termDocCount := make(map[string]int)

	for i, candidate := range candidates {
		tokens := strings.Fields(candidate.Text)
		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}
		for term := range freqs {
			termDocCount[term]++
		}
		docFreqs[i] = freqs
		docLens[i] = len(tokens)
		totalLen += len(tokens)
	}

	n := float64(len(candidates))
	avgDocLen := float64(totalLen) / n

	results := make([]Result, 0, len(candidates))
	for i, candidate := range candidates {
		score := 0.0
		for _, term := range queryTerms {
			tf := float64(docFreqs[i][term])
			if tf == 0 {
				continue
			}
			df := float64(termDocCount[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := r.K1 * (1 - r.B + r.B*float64(docLens[i])/avgDocLen)
			score += idf * tf * (r.K1 + 1) / (tf + norm)
		}
		if score > 0 {
			results = append(results, Result{Payload: candidate, Score: score})
		}
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
