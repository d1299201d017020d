package pdf

import (
	"context"
	"testing"
)

func TestExtractRejectsNonPDF(t *testing.T) {
	if _, err := NewExtractor().Extract(context.Background(), []byte("plain text, not a pdf")); err == nil {
		t.Fatalf("expected error for non-pdf input")
	}
}
