package flatindex

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

// Index is an exact nearest-neighbour index over squared L2 distance. It is
// immutable once built and safe for concurrent searches.
type Index struct {
	info    domain.IndexInfo
	chunks  []domain.Chunk
	vectors [][]float32
}

func newIndex(snapshot domain.IndexSnapshot) (*Index, error) {
	if len(snapshot.Entries) == 0 {
		return nil, errors.New("index has no entries")
	}
	dim := len(snapshot.Entries[0].Vector)
	if dim == 0 {
		return nil, errors.New("index vectors are empty")
	}

	sources := make(map[string]struct{})
	chunks := make([]domain.Chunk, len(snapshot.Entries))
	vectors := make([][]float32, len(snapshot.Entries))
	for i, e := range snapshot.Entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("entry %d: vector dimension %d, want %d", i, len(e.Vector), dim)
		}
		v := make([]float32, dim)
		copy(v, e.Vector)
		vectors[i] = v
		chunks[i] = e.Chunk
		sources[e.Chunk.SourcePath] = struct{}{}
	}

	return &Index{
		info: domain.IndexInfo{
			BuildID:   snapshot.BuildID,
			Model:     snapshot.Model,
			Documents: len(sources),
			Chunks:    len(chunks),
			Dimension: dim,
			CreatedAt: snapshot.CreatedAt,
		},
		chunks:  chunks,
		vectors: vectors,
	}, nil
}

func (idx *Index) Info() domain.IndexInfo {
	return idx.info
}

// Search returns the k closest chunks, closest first. Equal distances keep
// insertion order.
func (idx *Index) Search(ctx context.Context, queryVector []float32, k int) ([]domain.RetrievalHit, error) {
	if len(queryVector) != idx.info.Dimension {
		// The embedder changed since the build; only a rebuild helps.
		return nil, domain.WrapError(
			domain.ErrIndexUnavailable,
			"search index",
			fmt.Errorf("query dimension %d, index dimension %d (model %q): reindex required",
				len(queryVector), idx.info.Dimension, idx.info.Model),
		)
	}
	if k <= 0 {
		return []domain.RetrievalHit{}, nil
	}
	if k > len(idx.vectors) {
		k = len(idx.vectors)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type scored struct {
		pos      int
		distance float64
	}
	all := make([]scored, len(idx.vectors))
	for i, v := range idx.vectors {
		all[i] = scored{pos: i, distance: squaredL2(queryVector, v)}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].distance < all[j].distance
	})

	out := make([]domain.RetrievalHit, 0, k)
	for _, s := range all[:k] {
		out = append(out, domain.RetrievalHit{
			Chunk:    idx.chunks[s.pos],
			Distance: s.distance,
		})
	}
	return out, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
