// Package document reads diploma PDFs and embeds verification markers
// into them.
package document

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Reader extracts plain text from PDF documents.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// ExtractText returns the plain text of every page of the document at
// path. Corrupt or unreadable documents yield an error; callers treat
// that as a per-item failure, not a batch abort.
func (r *Reader) ExtractText(path string) (string, error) {
	f, doc, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	reader, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read document text: %w", err)
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, reader); err != nil {
		return "", fmt.Errorf("failed to read document text: %w", err)
	}

	return sb.String(), nil
}
