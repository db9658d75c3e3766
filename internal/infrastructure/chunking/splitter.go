package chunking

import "github.com/kirillkom/cv-shortlist/internal/core/domain"

const (
	DefaultChunkSize = 200
	DefaultOverlap   = 20
)

// Splitter cuts text into fixed rune windows. Every window but the last holds
// exactly ChunkSize runes and consecutive windows share Overlap runes.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// NewSplitter clamps out-of-range values. Services reject them earlier through
// config.Config.Validate.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []domain.TextWindow {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	out := make([]domain.TextWindow, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, domain.TextWindow{
			Offset: start,
			Text:   string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return out
}

// Join rebuilds the source text from windows produced with the given overlap.
func Join(windows []domain.TextWindow, overlap int) string {
	var out []rune
	for i, w := range windows {
		r := []rune(w.Text)
		if i > 0 {
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}
