// Package extract provides text extraction from various document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extractor extracts plain text from document files. Output is capped at
// maxBytes of source text before conversion; zero means no cap. The cap is
// part of the chunk-determinism contract: index-time and query-time
// re-extraction must see identical text.
type Extractor struct {
	maxBytes int
}

// NewExtractor returns an Extractor capping input at maxBytes (0 = unlimited).
func NewExtractor(maxBytes int) *Extractor {
	return &Extractor{maxBytes: maxBytes}
}

// Extract reads the file at path and returns its text content.
// Plain text formats (.txt, .md, .rst and unknown extensions) are returned
// as-is with invalid UTF-8 repaired. PDF, DOCX, and XLSX are parsed into
// plain text. Returns an error if the file cannot be read or parsed; the
// caller is expected to treat that as "skip this file", not abort.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if e.maxBytes > 0 && len(content) > e.maxBytes {
		content = content[:e.maxBytes]
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	default:
		// .txt, .md, .rst, and anything else: treat as plain text
		return extractPlain(content)
	}
}
