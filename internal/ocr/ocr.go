// Package ocr turns resume documents into plain text.
package ocr

import (
	"bytes"
	"context"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
	ExtractBytes(ctx context.Context, data []byte) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) Extractor {
	return NewPdfToText(cfg.PdfToTextPath)
}

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// DocumentText returns the text of a resume. PDFs go through ext; anything
// else must already be UTF-8 text.
func DocumentText(ctx context.Context, ext Extractor, data []byte) (string, error) {
	if len(data) == 0 {
		return "", eris.New("ocr: empty document")
	}
	if IsPDF(data) {
		return ext.ExtractBytes(ctx, data)
	}
	if !utf8.Valid(data) {
		return "", eris.New("ocr: document is neither PDF nor UTF-8 text")
	}
	return string(data), nil
}
