package flatindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

const (
	fileFormat  = "cv-shortlist/flatindex"
	fileVersion = 1
)

type fileEntry struct {
	SourcePath string
	SourceName string
	Ordinal    int
	Offset     int
	Text       string
	Vector     []float32
}

type fileSnapshot struct {
	Format    string
	Version   int
	BuildID   string
	Model     string
	CreatedAt time.Time
	Entries   []fileEntry
}

// Store keeps one index generation in a single file and replaces it by atomic rename.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Commit(ctx context.Context, snapshot domain.IndexSnapshot) (ports.VectorIndex, error) {
	idx, err := newIndex(snapshot)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "commit index", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.writeAtomic(toFile(snapshot)); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *Store) Load(_ context.Context) (ports.VectorIndex, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrIndexUnavailable, "load index", err)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var snap fileSnapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode index file: %w", err)
	}
	if snap.Format != fileFormat || snap.Version != fileVersion {
		return nil, fmt.Errorf("unsupported index file %s v%d", snap.Format, snap.Version)
	}

	idx, err := newIndex(fromFile(snap))
	if err != nil {
		return nil, fmt.Errorf("rebuild index from file: %w", err)
	}
	return idx, nil
}

// writeAtomic writes next to the target and renames over it, so readers see
// either the old file or the complete new one.
func (s *Store) writeAtomic(snap fileSnapshot) (err error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}

	if d, derr := os.Open(dir); derr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

func toFile(snapshot domain.IndexSnapshot) fileSnapshot {
	entries := make([]fileEntry, len(snapshot.Entries))
	for i, e := range snapshot.Entries {
		entries[i] = fileEntry{
			SourcePath: e.Chunk.SourcePath,
			SourceName: e.Chunk.SourceName,
			Ordinal:    e.Chunk.Ordinal,
			Offset:     e.Chunk.Offset,
			Text:       e.Chunk.Text,
			Vector:     e.Vector,
		}
	}
	return fileSnapshot{
		Format:    fileFormat,
		Version:   fileVersion,
		BuildID:   snapshot.BuildID,
		Model:     snapshot.Model,
		CreatedAt: snapshot.CreatedAt,
		Entries:   entries,
	}
}

func fromFile(snap fileSnapshot) domain.IndexSnapshot {
	entries := make([]domain.IndexEntry, len(snap.Entries))
	for i, e := range snap.Entries {
		entries[i] = domain.IndexEntry{
			Chunk: domain.Chunk{
				SourcePath: e.SourcePath,
				SourceName: e.SourceName,
				Ordinal:    e.Ordinal,
				Offset:     e.Offset,
				Text:       e.Text,
			},
			Vector: e.Vector,
		}
	}
	return domain.IndexSnapshot{
		BuildID:   snap.BuildID,
		Model:     snap.Model,
		CreatedAt: snap.CreatedAt,
		Entries:   entries,
	}
}
