package plaintext

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

// Extractor reads UTF-8 text files. BOMs are dropped, other invalid input is rejected.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}

	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrUnsupportedDocument, "extract text", fmt.Errorf("%s is not valid utf-8", path))
	}

	return strings.TrimPrefix(string(raw), "\ufeff"), nil
}
