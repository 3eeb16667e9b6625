package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sentinel-edge/logger"

	"github.com/ledongthuc/pdf"
)

// TextExtractor returns the raw text of a document on disk
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// PDFExtractor extracts page text from PDF files. Pages are trimmed, empty
// pages dropped, and the rest joined with a blank line.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// ExtractText implements TextExtractor
func (e *PDFExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Log.WithField("page", i).Warnf("failed to extract text from page: %v", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return strings.Join(pages, "\n\n"), nil
}

// FileExtractor handles PDFs and plain-text files, chosen by extension
type FileExtractor struct {
	pdf *PDFExtractor
}

// NewFileExtractor creates an extractor for .pdf, .txt and .md files
func NewFileExtractor() *FileExtractor {
	return &FileExtractor{pdf: NewPDFExtractor()}
}

// ExtractText implements TextExtractor
func (e *FileExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.pdf.ExtractText(ctx, path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Base(path))
	}
}

// IsPDF reports whether filename has a .pdf extension
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
