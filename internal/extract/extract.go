// Package extract dispatches a stored blob to the Extractor registered for
// its file-type tag and returns plain UTF-8 text. Extractors are pure: they
// never touch the database (spec.md §4.2).
package extract

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/docengine/itdoc/internal/apperr"
)

// Extractor converts a stored blob into plain text.
type Extractor interface {
	Extract(blobPath string) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(blobPath string) (string, error)

func (f ExtractorFunc) Extract(blobPath string) (string, error) { return f(blobPath) }

// Registry maps a file-type tag to its Extractor.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry builds the default registry: a real extractor for txt/md,
// and extractors for the binary formats that are explicitly out of scope
// per spec.md §1 ("concrete file-format extractors beyond their
// interface") — they surface a clear unsupported_format rather than
// silently mis-parsing.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register("txt", ExtractorFunc(extractPlainText))
	r.Register("md", ExtractorFunc(extractPlainText))
	r.Register("pdf", ExtractorFunc(unsupportedBinaryExtractor("pdf")))
	r.Register("docx", ExtractorFunc(unsupportedBinaryExtractor("docx")))
	r.Register("pptx", ExtractorFunc(unsupportedBinaryExtractor("pptx")))
	return r
}

// Register installs an Extractor for a file-type tag, overwriting any
// previous registration. Useful for tests and for wiring a real binary
// parser in a deployment that has one.
func (r *Registry) Register(fileType string, e Extractor) {
	r.extractors[strings.ToLower(fileType)] = e
}

// Extract dispatches to the registered Extractor for fileType.
func (r *Registry) Extract(fileType, blobPath string) (string, error) {
	e, ok := r.extractors[strings.ToLower(fileType)]
	if !ok {
		return "", apperr.New(apperr.KindUnsupportedFormat, "extract", fmt.Sprintf("no extractor registered for %q", fileType))
	}
	text, err := e.Extract(blobPath)
	if err != nil {
		var ae *apperr.Error
		if asAppErr(err, &ae) {
			return "", err
		}
		return "", apperr.Wrap(apperr.KindExtractionFailed, "extract", fmt.Sprintf("extractor for %q failed", fileType), err)
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return stripBinaryArtifacts(text), nil
}

func asAppErr(err error, target **apperr.Error) bool {
	if e, ok := err.(*apperr.Error); ok {
		*target = e
		return true
	}
	return false
}

// extractPlainText reads a .txt or .md file verbatim.
func extractPlainText(blobPath string) (string, error) {
	data, err := os.ReadFile(blobPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExtractionFailed, "extract", "read blob", err)
	}
	return string(data), nil
}

// unsupportedBinaryExtractor returns an extractor that always reports the
// format as requiring an external collaborator, per spec.md §1's explicit
// scope boundary.
func unsupportedBinaryExtractor(kind string) func(string) (string, error) {
	return func(string) (string, error) {
		return "", apperr.New(apperr.KindUnsupportedFormat, "extract",
			fmt.Sprintf("%s extraction requires an external collaborator not provided by this core", kind))
	}
}

// stripBinaryArtifacts removes NUL bytes, which sometimes survive a lossy
// binary-to-text conversion. Other control characters are left in place.
func stripBinaryArtifacts(s string) string {
	if !bytes.ContainsRune([]byte(s), 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}
