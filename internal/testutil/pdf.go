// Package testutil provides fixtures shared by pipeline tests.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"testing"
)

// WriteMinimalPDF writes a structurally valid single-page PDF to path. The
// xref offsets are computed while building so the file passes strict parsers.
func WriteMinimalPDF(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, MinimalPDF(), 0o644); err != nil {
		t.Fatalf("write minimal pdf: %v", err)
	}
}

// MinimalPDF returns the bytes of a valid single-page PDF document.
func MinimalPDF() []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, 4)

	buf.WriteString("%PDF-1.4\n")

	objects := []string{
		"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n",
		"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n",
		"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>\nendobj\n",
	}
	for _, obj := range objects {
		offsets = append(offsets, buf.Len())
		buf.WriteString(obj)
	}

	xrefStart := buf.Len()
	buf.WriteString("xref\n")
	fmt.Fprintf(&buf, "0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\n", len(objects)+1)
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	return buf.Bytes()
}
