package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

// keywordEmbedder maps texts mentioning Go or Java onto two orthogonal axes.
type keywordEmbedder struct {
	mu      sync.Mutex
	batches []int
	err     error
	queries []string
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func keywordVector(text string) []float32 {
	switch {
	case strings.Contains(text, "Go"):
		return []float32{1, 0}
	case strings.Contains(text, "Java"):
		return []float32{0, 1}
	default:
		return []float32{0.5, 0.5}
	}
}

func (f *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.entered != nil {
		f.once.Do(func() { close(f.entered) })
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, len(texts))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = keywordVector(t)
	}
	return out, nil
}

func (f *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return keywordVector(text), nil
}

// memIndex returns fixed hits when set, otherwise ranks its entries by squared L2.
type memIndex struct {
	info    domain.IndexInfo
	entries []domain.IndexEntry
	hits    []domain.RetrievalHit
	lastK   int
}

func newMemIndex(snapshot domain.IndexSnapshot) *memIndex {
	sources := map[string]struct{}{}
	for _, e := range snapshot.Entries {
		sources[e.Chunk.SourcePath] = struct{}{}
	}
	return &memIndex{
		info: domain.IndexInfo{
			BuildID:   snapshot.BuildID,
			Model:     snapshot.Model,
			Documents: len(sources),
			Chunks:    len(snapshot.Entries),
			Dimension: 2,
			CreatedAt: snapshot.CreatedAt,
		},
		entries: snapshot.Entries,
	}
}

func (m *memIndex) Info() domain.IndexInfo { return m.info }

func (m *memIndex) Search(_ context.Context, query []float32, k int) ([]domain.RetrievalHit, error) {
	m.lastK = k
	if m.hits != nil {
		if k > len(m.hits) {
			k = len(m.hits)
		}
		return m.hits[:k], nil
	}
	out := make([]domain.RetrievalHit, 0, len(m.entries))
	for _, e := range m.entries {
		var d float64
		for i := range query {
			diff := float64(query[i] - e.Vector[i])
			d += diff * diff
		}
		out = append(out, domain.RetrievalHit{Chunk: e.Chunk, Distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

type memStore struct {
	mu        sync.Mutex
	commits   []domain.IndexSnapshot
	current   *memIndex
	commitErr error
	loadErr   error
}

func (s *memStore) Commit(_ context.Context, snapshot domain.IndexSnapshot) (ports.VectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	s.commits = append(s.commits, snapshot)
	s.current = newMemIndex(snapshot)
	return s.current, nil
}

func (s *memStore) Load(context.Context) (ports.VectorIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.current == nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "load index", errors.New("no file"))
	}
	return s.current, nil
}

// scriptedChat answers judge prompts with reply and records every prompt.
type scriptedChat struct {
	mu      sync.Mutex
	prompts []string
	systems []string
	reply   func(ctx context.Context, prompt string) (string, error)
}

func (c *scriptedChat) ModelName() string { return "test-model" }

func (c *scriptedChat) Chat(ctx context.Context, system, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.systems = append(c.systems, system)
	c.mu.Unlock()
	return c.reply(ctx, prompt)
}

func (c *scriptedChat) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

// scoreByMarker replies with the score of the first marker found in the prompt.
func scoreByMarker(scores map[string]string) func(context.Context, string) (string, error) {
	return func(_ context.Context, prompt string) (string, error) {
		cvText := prompt[strings.LastIndex(prompt, "CV text:"):]
		keys := make([]string, 0, len(scores))
		for k := range scores {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.Contains(cvText, k) {
				return scores[k], nil
			}
		}
		return "NOTE: 1/10 — Decision: REJECT\nJustification: Unrelated profile.", nil
	}
}

type mapCache struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *mapCache) Put(_ context.Context, key, response string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = map[string]string{}
	}
	c.values[key] = response
	return nil
}

type recordingObserver struct {
	mu        sync.Mutex
	asks      []string
	judgments map[string]int
	builds    []string
}

func (o *recordingObserver) ObserveAsk(status string, _ int, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.asks = append(o.asks, status)
}

func (o *recordingObserver) ObserveJudgment(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.judgments == nil {
		o.judgments = map[string]int{}
	}
	o.judgments[outcome]++
}

func (o *recordingObserver) ObserveBuild(status string, _, _ int, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.builds = append(o.builds, status)
}

type staticSource struct {
	docs    []domain.Document
	skipped []domain.SkippedDocument
	err     error
}

func (s *staticSource) Load(context.Context, string) ([]domain.Document, []domain.SkippedDocument, error) {
	return s.docs, s.skipped, s.err
}

// paragraphChunker splits on blank lines.
type paragraphChunker struct{}

func (paragraphChunker) Split(text string) []domain.TextWindow {
	var out []domain.TextWindow
	offset := 0
	for _, part := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(part) != "" {
			out = append(out, domain.TextWindow{Offset: offset, Text: part})
		}
		offset += len([]rune(part)) + 2
	}
	return out
}

type memHistory struct {
	mu       sync.Mutex
	created  []domain.IndexBuild
	finished []domain.IndexBuild
}

func (h *memHistory) CreateBuild(_ context.Context, b *domain.IndexBuild) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, *b)
	return nil
}

func (h *memHistory) FinishBuild(_ context.Context, b *domain.IndexBuild) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, *b)
	return nil
}

func (h *memHistory) ListBuilds(_ context.Context, limit int) ([]domain.IndexBuild, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]domain.IndexBuild(nil), h.finished...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memEvents struct {
	mu      sync.Mutex
	rebuilt []string
}

func (e *memEvents) PublishReindexRequested(context.Context, string) error { return nil }
func (e *memEvents) SubscribeReindexRequested(context.Context, func(context.Context, string) error) error {
	return nil
}
func (e *memEvents) PublishIndexRebuilt(_ context.Context, buildID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rebuilt = append(e.rebuilt, buildID)
	return nil
}
func (e *memEvents) SubscribeIndexRebuilt(context.Context, func(context.Context, string) error) error {
	return nil
}
