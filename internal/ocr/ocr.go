// Package ocr turns uploaded bill files into plain text.
package ocr

import (
	"context"
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

// Document is one uploaded file.
type Document struct {
	Name    string
	Content []byte
}

// Extractor reads the text of a document. apiKey is ignored by backends
// that do not call a remote service.
type Extractor interface {
	Extract(ctx context.Context, doc Document, apiKey string) (string, error)
}

// BatchExtractor reads several documents in one call and returns a single
// text for all of them.
type BatchExtractor interface {
	ExtractAll(ctx context.Context, docs []Document, apiKey string) (string, error)
}

var ErrUnsupported = errors.New("unsupported document type")

// MimeType guesses a document's MIME type from its filename, falling back to
// a fixed table for the accepted extensions.
func MimeType(name string) string {
	ext := filepath.Ext(name)
	if ext != "" {
		if mt := mime.TypeByExtension(strings.ToLower(ext)); mt != "" {
			if i := strings.IndexByte(mt, ';'); i >= 0 {
				mt = strings.TrimSpace(mt[:i])
			}
			return mt
		}
	}
	return constants.FallbackMIME(constants.ExtOf(name))
}
