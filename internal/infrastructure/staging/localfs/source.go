package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

type extractorEntry struct {
	format    domain.DocumentFormat
	extractor ports.TextExtractor
}

// Source walks a staging directory and extracts every supported file.
type Source struct {
	extractors map[string]extractorEntry
}

func NewSource() *Source {
	return &Source{extractors: make(map[string]extractorEntry)}
}

// Register binds a file extension (".pdf") to an extractor.
func (s *Source) Register(ext string, format domain.DocumentFormat, extractor ports.TextExtractor) *Source {
	s.extractors[strings.ToLower(ext)] = extractorEntry{format: format, extractor: extractor}
	return s
}

func (s *Source) Load(ctx context.Context, stagingPath string) ([]domain.Document, []domain.SkippedDocument, error) {
	info, err := os.Stat(stagingPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("stat staging area: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "load staging area", fmt.Errorf("%s is not a directory", stagingPath))
	}

	var docs []domain.Document
	var skipped []domain.SkippedDocument
	err = filepath.WalkDir(stagingPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			skipped = append(skipped, domain.SkippedDocument{Path: path, Reason: walkErr.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != stagingPath {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		entry, ok := s.extractors[strings.ToLower(filepath.Ext(path))]
		if !ok {
			skipped = append(skipped, domain.SkippedDocument{Path: path, Reason: "unsupported file type"})
			return nil
		}

		text, err := entry.extractor.Extract(ctx, path)
		if err != nil {
			skipped = append(skipped, domain.SkippedDocument{Path: path, Reason: err.Error()})
			return nil
		}
		docs = append(docs, domain.Document{
			Name:   filepath.Base(path),
			Path:   path,
			Format: entry.format,
			Text:   text,
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk staging area: %w", err)
	}
	return docs, skipped, nil
}
