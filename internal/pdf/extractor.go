// Package pdfutil inspects uploaded PDFs.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned for content without a PDF header.
var ErrNotPDF = errors.New("not a pdf")

var header = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, header)
}

// PageCount returns the number of pages of a PDF using ledongthuc/pdf. The
// parser panics on some malformed input, so the call is guarded.
func PageCount(data []byte) (n int, err error) {
	if !IsPDF(data) {
		return 0, ErrNotPDF
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("parse pdf: %v", r)
		}
	}()
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("new pdf reader: %w", err)
	}
	return doc.NumPage(), nil
}
