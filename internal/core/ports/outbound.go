package ports

import (
	"context"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

// DocumentSource enumerates and decodes documents under a staging area.
type DocumentSource interface {
	Load(ctx context.Context, stagingPath string) ([]domain.Document, []domain.SkippedDocument, error)
}

// TextExtractor extracts plain text from one file.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Chunker splits text into overlapping windows.
type Chunker interface {
	Split(text string) []domain.TextWindow
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is a read-only, loaded index generation.
type VectorIndex interface {
	Search(ctx context.Context, queryVector []float32, k int) ([]domain.RetrievalHit, error)
	Info() domain.IndexInfo
}

// IndexStore persists index generations and loads the current one.
type IndexStore interface {
	Commit(ctx context.Context, snapshot domain.IndexSnapshot) (VectorIndex, error)
	Load(ctx context.Context) (VectorIndex, error)
}

// ChatModel is the language-model oracle behind the relevance judge.
type ChatModel interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
	ModelName() string
}

// JudgmentCache stores raw judge responses keyed by prompt digest.
type JudgmentCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, response string) error
}

// BuildHistory records index builds.
type BuildHistory interface {
	CreateBuild(ctx context.Context, build *domain.IndexBuild) error
	FinishBuild(ctx context.Context, build *domain.IndexBuild) error
	ListBuilds(ctx context.Context, limit int) ([]domain.IndexBuild, error)
}

// IndexEvents carries rebuild requests and rebuilt notifications between processes.
type IndexEvents interface {
	PublishReindexRequested(ctx context.Context, stagingPath string) error
	SubscribeReindexRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexRebuilt(ctx context.Context, buildID string) error
	SubscribeIndexRebuilt(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineObserver receives pipeline measurements. Implementations must be safe for concurrent use.
type PipelineObserver interface {
	ObserveAsk(status string, candidates int, durationSeconds float64)
	ObserveJudgment(outcome string)
	ObserveBuild(status string, documents, chunks int, durationSeconds float64)
}
