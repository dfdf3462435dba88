// Package chunk splits document text into retrievable units.
//
// Splitting is a pure function of its inputs: the same text and options
// always produce the same chunk boundaries. Sizes are measured in
// characters (runes), not bytes.
package chunk

import (
	"fmt"
	"strings"
	"unicode"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

// Strategy selects how text is divided into chunks.
type Strategy string

const (
	// StrategyFixed emits non-overlapping slices of exactly ChunkSize
	// characters; the final slice may be shorter.
	StrategyFixed Strategy = "fixed"

	// StrategySliding emits ChunkSize-character windows advancing by
	// ChunkSize - Overlap characters per step.
	StrategySliding Strategy = "sliding"

	// StrategySemantic packs consecutive sentences greedily while the
	// running length stays within ChunkSize.
	StrategySemantic Strategy = "semantic"
)

// Default chunking parameters, matching the ingestion API defaults.
const (
	DefaultChunkSize = 512
	DefaultOverlap   = 50
)

// Options configures a split operation.
type Options struct {
	Strategy  Strategy
	ChunkSize int
	Overlap   int
}

// DefaultOptions returns the default chunking configuration.
func DefaultOptions() Options {
	return Options{
		Strategy:  StrategyFixed,
		ChunkSize: DefaultChunkSize,
		Overlap:   DefaultOverlap,
	}
}

// Validate checks option consistency. It must be called (and succeed)
// before any embedding work is started, so that bad parameters never cost
// an embedding round-trip.
func (o Options) Validate() error {
	switch o.Strategy {
	case StrategyFixed, StrategySliding, StrategySemantic:
	default:
		return qerr.Validation(fmt.Sprintf("unknown chunking strategy: %q", o.Strategy), nil)
	}
	if o.ChunkSize <= 0 {
		return qerr.Validation(fmt.Sprintf("chunk_size must be positive, got %d", o.ChunkSize), nil)
	}
	if o.Strategy == StrategySliding && o.Overlap >= o.ChunkSize {
		return qerr.Validation(
			fmt.Sprintf("overlap (%d) must be smaller than chunk_size (%d) for sliding strategy", o.Overlap, o.ChunkSize), nil)
	}
	if o.Overlap < 0 {
		return qerr.Validation(fmt.Sprintf("overlap must not be negative, got %d", o.Overlap), nil)
	}
	return nil
}

// Split divides text into ordered chunks per the selected strategy.
// Empty input yields an empty (non-nil) slice for every strategy.
func Split(text string, opts Options) ([]string, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}

	switch opts.Strategy {
	case StrategyFixed:
		return splitFixed(text, opts.ChunkSize), nil
	case StrategySliding:
		return splitSliding(text, opts.ChunkSize, opts.Overlap), nil
	default:
		return splitSemantic(text, opts.ChunkSize), nil
	}
}

// splitFixed emits ceil(len/size) non-overlapping slices.
func splitFixed(text string, size int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// splitSliding emits full-size windows advancing by size-overlap.
// Text that fits in a single window is returned whole.
func splitSliding(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for i := 0; i+size <= len(runes); i += step {
		chunks = append(chunks, string(runes[i:i+size]))
	}
	return chunks
}

// splitSemantic groups consecutive sentences while the accumulated length
// stays within size. A single sentence longer than size is kept whole.
func splitSemantic(text string, size int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []string{}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, sentence := range sentences {
		sentLen := len([]rune(sentence))
		switch {
		case currentLen == 0:
			current.WriteString(sentence)
			currentLen = sentLen
		case currentLen+1+sentLen <= size:
			current.WriteByte(' ')
			current.WriteString(sentence)
			currentLen += 1 + sentLen
		default:
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(sentence)
			currentLen = sentLen
		}
	}
	if currentLen > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitSentences divides text into sentence units on terminal punctuation
// followed by whitespace. The terminator stays attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isSentenceTerminator(runes[i]) {
			continue
		}
		// Consume runs of terminators ("...", "?!").
		end := i
		for end+1 < len(runes) && isSentenceTerminator(runes[end+1]) {
			end++
		}
		if end+1 == len(runes) || unicode.IsSpace(runes[end+1]) {
			sentence := strings.TrimSpace(string(runes[start : end+1]))
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			start = end + 1
		}
		i = end
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
