package usecase

import (
	"path/filepath"
	"strings"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

const unknownSource = "unknown"

// mergeHitsBySource folds hits into one candidate per source document. Candidates
// keep the order in which their source first appeared, chunk texts keep retrieval
// order and the distance is the mean over the source's hits.
func mergeHitsBySource(hits []domain.RetrievalHit) []domain.MergedCandidate {
	if len(hits) == 0 {
		return nil
	}

	type group struct {
		name      string
		texts     []string
		distances float64
	}

	order := make([]string, 0, len(hits))
	groups := make(map[string]*group, len(hits))
	for _, hit := range hits {
		key := hit.Chunk.SourcePath
		if key == "" {
			key = unknownSource
		}
		g, ok := groups[key]
		if !ok {
			name := hit.Chunk.SourceName
			if name == "" {
				name = filepath.Base(key)
			}
			g = &group{name: name}
			groups[key] = g
			order = append(order, key)
		}
		g.texts = append(g.texts, hit.Chunk.Text)
		g.distances += hit.Distance
	}

	out := make([]domain.MergedCandidate, 0, len(order))
	for rank, key := range order {
		g := groups[key]
		out = append(out, domain.MergedCandidate{
			SourcePath: key,
			SourceName: g.name,
			Text:       strings.Join(g.texts, "\n"),
			Distance:   g.distances / float64(len(g.texts)),
			Hits:       len(g.texts),
			Rank:       rank,
		})
	}
	return out
}
