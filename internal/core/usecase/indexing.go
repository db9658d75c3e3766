package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

const defaultEmbedBatchSize = 64

type IndexingOptions struct {
	EmbedBatchSize int
	Model          string
	History        ports.BuildHistory
	Events         ports.IndexEvents
	Observer       ports.PipelineObserver
	Logger         *slog.Logger
}

type IndexingUseCase struct {
	source   ports.DocumentSource
	chunker  ports.Chunker
	embedder ports.Embedder
	store    ports.IndexStore
	registry *IndexRegistry

	batchSize int
	model     string
	history   ports.BuildHistory
	events    ports.IndexEvents
	observer  ports.PipelineObserver
	logger    *slog.Logger

	buildMu sync.Mutex
}

func NewIndexingUseCase(
	source ports.DocumentSource,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.IndexStore,
	registry *IndexRegistry,
	opts IndexingOptions,
) *IndexingUseCase {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = defaultEmbedBatchSize
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &IndexingUseCase{
		source:    source,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		registry:  registry,
		batchSize: opts.EmbedBatchSize,
		model:     opts.Model,
		history:   opts.History,
		events:    opts.Events,
		observer:  opts.Observer,
		logger:    opts.Logger,
	}
}

// Reindex is the admin-facing form of Build.
func (uc *IndexingUseCase) Reindex(ctx context.Context, stagingPath string) (bool, string) {
	report, err := uc.Build(ctx, stagingPath)
	if err != nil {
		return false, fmt.Sprintf("indexing failed: %v", err)
	}
	return true, buildMessage(report)
}

// Build replaces the whole index with one built from the staging area. The
// previously persisted index is untouched unless the new one commits.
func (uc *IndexingUseCase) Build(ctx context.Context, stagingPath string) (*domain.BuildReport, error) {
	if !uc.buildMu.TryLock() {
		return nil, domain.WrapError(domain.ErrBuildInProgress, "build index", errors.New("retry later"))
	}
	defer uc.buildMu.Unlock()

	start := time.Now()
	build := domain.IndexBuild{
		ID:          uuid.NewString(),
		StagingPath: stagingPath,
		Status:      domain.BuildRunning,
		StartedAt:   start.UTC(),
	}
	uc.recordStart(ctx, &build)

	report, err := uc.runBuild(ctx, &build)

	finished := time.Now().UTC()
	build.FinishedAt = &finished
	status := "success"
	if err != nil {
		status = buildFailureStatus(err)
		build.Status = domain.BuildFailed
		build.Message = err.Error()
	} else {
		build.Status = domain.BuildSucceeded
		report.Build = build
		build.Message = buildMessage(report)
		report.Build.Message = build.Message
	}
	uc.recordFinish(ctx, &build)
	uc.observer.ObserveBuild(status, build.Documents, build.Chunks, time.Since(start).Seconds())

	if err != nil {
		uc.logger.Error("index_build_failed", "build_id", build.ID, "staging_path", stagingPath, "error", err)
		return nil, err
	}

	uc.logger.Info("index_build_finished",
		"build_id", build.ID,
		"documents", build.Documents,
		"chunks", build.Chunks,
		"skipped", build.Skipped,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	uc.notifyRebuilt(ctx, build.ID)
	return report, nil
}

func (uc *IndexingUseCase) runBuild(ctx context.Context, build *domain.IndexBuild) (*domain.BuildReport, error) {
	docs, skipped, err := uc.source.Load(ctx, build.StagingPath)
	if err != nil {
		return nil, fmt.Errorf("load staging area: %w", err)
	}

	chunks, empty := uc.chunkDocuments(docs)
	skipped = append(skipped, empty...)
	for _, s := range skipped {
		uc.logger.Warn("document_skipped", "build_id", build.ID, "path", s.Path, "reason", s.Reason)
	}
	build.Skipped = len(skipped)
	build.Documents = len(docs) - len(empty)

	if len(chunks) == 0 {
		return nil, domain.WrapError(
			domain.ErrCorpusEmpty,
			"build index",
			fmt.Errorf("staging area %q: %d files skipped", build.StagingPath, len(skipped)),
		)
	}

	vectors, err := uc.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexEntry{Chunk: chunks[i], Vector: vectors[i]}
	}

	idx, err := uc.store.Commit(ctx, domain.IndexSnapshot{
		BuildID:   build.ID,
		Model:     uc.model,
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
	})
	if err != nil {
		return nil, fmt.Errorf("commit index: %w", err)
	}
	build.Chunks = len(chunks)
	uc.registry.Swap(idx)

	return &domain.BuildReport{
		Index:   idx.Info(),
		Skipped: skipped,
	}, nil
}

// chunkDocuments expands documents into chunks. Documents producing no chunk
// are reported back as skipped.
func (uc *IndexingUseCase) chunkDocuments(docs []domain.Document) ([]domain.Chunk, []domain.SkippedDocument) {
	var chunks []domain.Chunk
	var empty []domain.SkippedDocument
	for _, doc := range docs {
		windows := uc.chunker.Split(doc.Text)
		if len(windows) == 0 {
			empty = append(empty, domain.SkippedDocument{Path: doc.Path, Reason: "no extractable text"})
			continue
		}
		for ordinal, w := range windows {
			chunks = append(chunks, domain.Chunk{
				SourcePath: doc.Path,
				SourceName: doc.Name,
				Ordinal:    ordinal,
				Offset:     w.Offset,
				Text:       w.Text,
			})
		}
	}
	return chunks, empty
}

func (uc *IndexingUseCase) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, domain.WrapError(domain.ErrOracleFailure, "embed chunks", err)
		}
		if len(batch) != len(texts) {
			return nil, domain.WrapError(
				domain.ErrOracleFailure,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(batch), len(texts)),
			)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (uc *IndexingUseCase) recordStart(ctx context.Context, build *domain.IndexBuild) {
	if uc.history == nil {
		return
	}
	if err := uc.history.CreateBuild(ctx, build); err != nil {
		uc.logger.Warn("build_history_create_failed", "build_id", build.ID, "error", err)
	}
}

func (uc *IndexingUseCase) recordFinish(ctx context.Context, build *domain.IndexBuild) {
	if uc.history == nil {
		return
	}
	// The build context may already be cancelled; the history row must still close.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.history.FinishBuild(finishCtx, build); err != nil {
		uc.logger.Warn("build_history_finish_failed", "build_id", build.ID, "error", err)
	}
}

func (uc *IndexingUseCase) notifyRebuilt(ctx context.Context, buildID string) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishIndexRebuilt(ctx, buildID); err != nil {
		uc.logger.Warn("index_rebuilt_publish_failed", "build_id", buildID, "error", err)
	}
}

func (uc *IndexingUseCase) RecentBuilds(ctx context.Context, limit int) ([]domain.IndexBuild, error) {
	if uc.history == nil {
		return []domain.IndexBuild{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	builds, err := uc.history.ListBuilds(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list index builds: %w", err)
	}
	return builds, nil
}

func (uc *IndexingUseCase) Active() (domain.IndexInfo, bool) {
	return uc.registry.Active()
}

func buildFailureStatus(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrCorpusEmpty):
		return "corpus_empty"
	case domain.IsKind(err, domain.ErrOracleFailure):
		return "oracle_failure"
	default:
		return "error"
	}
}

func buildMessage(report *domain.BuildReport) string {
	if report == nil {
		return ""
	}
	return fmt.Sprintf(
		"indexing finished: %d documents, %d chunks, %d skipped",
		report.Index.Documents,
		report.Index.Chunks,
		len(report.Skipped),
	)
}
