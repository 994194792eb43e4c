// Package pdftext extracts the plain-text content of a PDF document,
// wrapping github.com/ledongthuc/pdf.
//
// Grounded directly on the teacher's chromedp_test.go usage
// (pdf.NewReader(bytes.NewReader(buf), size).GetPlainText()), generalized
// from a test assertion helper into a standalone function.
package pdftext

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// Extract returns the plain text content of pdfBytes.
func Extract(pdfBytes []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, text); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}
