// Package pdftest builds small valid PDFs for tests.
package pdftest

import (
	"fmt"
	"strings"
)

// MinimalPDF builds a valid PDF with the given number of empty pages and a
// correct cross-reference table.
func MinimalPDF(pages int) []byte {
	return Tagged(pages, "")
}

// Tagged is MinimalPDF with a comment line carrying tag, so callers can build
// PDFs with distinct fingerprints.
func Tagged(pages int, tag string) []byte {
	var objs []string
	kids := make([]string, pages)
	for i := 0; i < pages; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	if tag != "" {
		fmt.Fprintf(&b, "%%%s\n", strings.ReplaceAll(tag, "\n", " "))
	}
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(b.String())
}
