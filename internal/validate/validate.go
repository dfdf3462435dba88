// Package validate checks uploaded documents and extracts their text.
package validate

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

// MaxDocumentBytes bounds a single uploaded document.
const MaxDocumentBytes = 10 << 20

// supportedExtensions maps accepted file extensions to their handling.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".text": true,
	".json": true,
}

// SupportedExtensions returns the accepted extensions, for error
// messages and docs.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".text", ".json"}
}

// ExtractText validates the uploaded document and returns its plain
// text. Plain-text formats must be valid UTF-8. JSON documents are
// parsed; their string values become the text, walked in document
// order. An empty upload extracts to empty text, which ingestion
// records as a zero-chunk document.
func ExtractText(filename string, data []byte) (string, error) {
	if len(data) == 0 {
		ext := strings.ToLower(filepath.Ext(filename))
		if !supportedExtensions[ext] {
			return "", unsupportedTypeError(filename, ext)
		}
		return "", nil
	}
	if len(data) > MaxDocumentBytes {
		return "", qerr.Validation("document exceeds maximum size", nil).
			WithDetail("filename", filename).
			WithDetail("max_bytes", "10485760")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !supportedExtensions[ext] {
		return "", unsupportedTypeError(filename, ext)
	}

	if ext == ".json" {
		return extractJSONText(filename, data)
	}

	if !utf8.Valid(data) {
		return "", qerr.Validation("document is not valid UTF-8", nil).WithDetail("filename", filename)
	}
	return string(data), nil
}

func unsupportedTypeError(filename, ext string) error {
	return qerr.Validation("unsupported document type: "+ext, nil).
		WithDetail("filename", filename).
		WithDetail("supported", strings.Join(SupportedExtensions(), ", "))
}

// extractJSONText parses JSON and joins its string values with newlines.
// Keys and non-string scalars are skipped; structure is not preserved.
func extractJSONText(filename string, data []byte) (string, error) {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", qerr.Validation("document is not valid JSON", nil).
			WithDetail("filename", filename).
			WithDetail("parse_error", err.Error())
	}

	var parts []string
	collectStrings(parsed, &parts)
	if len(parts) == 0 {
		return "", qerr.Validation("JSON document contains no text", nil).WithDetail("filename", filename)
	}
	return strings.Join(parts, "\n"), nil
}

func collectStrings(v any, out *[]string) {
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) != "" {
			*out = append(*out, val)
		}
	case []any:
		for _, item := range val {
			collectStrings(item, out)
		}
	case map[string]any:
		// Object keys are sorted for deterministic extraction.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(val[k], out)
		}
	}
}
