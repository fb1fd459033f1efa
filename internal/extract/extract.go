// Package extract provides text extraction from document attachments.
// Supports PDF, DOCX, Markdown, and plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned for file extensions outside the supported
// set. Rejected before any parsing is attempted; caller-facing, not a
// system fault.
var ErrUnsupportedType = errors.New("unsupported document type")

// Parsed holds the extraction result for one document.
type Parsed struct {
	Content   string
	FileType  string
	PageCount int
	WordCount int
}

var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".md":   true,
	".txt":  true,
}

// IsSupported reports whether the filename's extension can be parsed.
func IsSupported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Parse extracts plain text from document bytes, detecting the format from
// the filename extension. Returns ErrUnsupportedType for anything outside
// the supported set.
func Parse(content []byte, filename string) (*Parsed, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return parsePDF(content)
	case ".docx":
		return parseDOCX(content)
	case ".md":
		return parseMarkdown(content)
	case ".txt":
		return parsePlain(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

func countWords(s string) int {
	return len(strings.Fields(s))
}
