package pdf

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

func TestExtractRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	if err := os.WriteFile(path, []byte("this is not a pdf"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := NewExtractor().Extract(context.Background(), path)
	if !domain.IsKind(err, domain.ErrUnsupportedDocument) {
		t.Fatalf("expected ErrUnsupportedDocument, got %v", err)
	}
}
