package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

const (
	defaultTopK             = 10
	defaultJudgeConcurrency = 1
)

type QueryOptions struct {
	TopK             int
	JudgeConcurrency int
	Observer         ports.PipelineObserver
	Logger           *slog.Logger
}

type QueryUseCase struct {
	embedder    ports.Embedder
	registry    *IndexRegistry
	judge       *RelevanceJudge
	topK        int
	concurrency int
	observer    ports.PipelineObserver
	logger      *slog.Logger
}

func NewQueryUseCase(
	embedder ports.Embedder,
	registry *IndexRegistry,
	judge *RelevanceJudge,
	opts QueryOptions,
) *QueryUseCase {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.JudgeConcurrency <= 0 {
		opts.JudgeConcurrency = defaultJudgeConcurrency
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QueryUseCase{
		embedder:    embedder,
		registry:    registry,
		judge:       judge,
		topK:        opts.TopK,
		concurrency: opts.JudgeConcurrency,
		observer:    opts.Observer,
		logger:      opts.Logger,
	}
}

// Ask runs retrieve, merge, judge and rank for one hiring need. It returns
// either a complete shortlist or an error, never both.
func (uc *QueryUseCase) Ask(
	ctx context.Context,
	question string,
	conversation []domain.ConversationTurn,
) (*domain.Shortlist, error) {
	start := time.Now()
	shortlist, err := uc.ask(ctx, domain.AskRequest{
		Question:     strings.TrimSpace(question),
		Conversation: conversation,
	})

	status := "success"
	candidates := 0
	switch {
	case err != nil:
		status = askFailureStatus(err)
	default:
		candidates = len(shortlist.Candidates)
	}
	duration := time.Since(start)
	uc.observer.ObserveAsk(status, candidates, duration.Seconds())
	if err != nil {
		uc.logger.Warn("shortlist_ask_failed", "status", status, "error", err)
		return nil, err
	}
	uc.logger.Info("shortlist_ask",
		"candidates", candidates,
		"conversation_turns", len(conversation),
		"duration_ms", float64(duration.Microseconds())/1000.0,
	)
	return shortlist, nil
}

func (uc *QueryUseCase) ask(ctx context.Context, req domain.AskRequest) (*domain.Shortlist, error) {
	if req.Question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}
	conversation, err := domain.NormalizeConversation(req.Conversation)
	if err != nil {
		return nil, err
	}
	req.Conversation = conversation

	idx, ok := uc.registry.Current()
	if !ok {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "ask", errors.New("run indexing first"))
	}

	hits, err := uc.retrieve(ctx, idx, req.Question)
	if err != nil {
		return nil, err
	}

	candidates := mergeHitsBySource(hits)
	judged, err := uc.judgeAll(ctx, req, candidates)
	if err != nil {
		return nil, err
	}

	return &domain.Shortlist{
		Question:   req.Question,
		BuildID:    idx.Info().BuildID,
		Candidates: rankJudged(judged),
	}, nil
}

func (uc *QueryUseCase) retrieve(ctx context.Context, idx ports.VectorIndex, question string) ([]domain.RetrievalHit, error) {
	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrOracleFailure, "embed question", err)
	}

	hits, err := idx.Search(ctx, queryVector, uc.topK)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	return hits, nil
}

// judgeAll judges every candidate on a bounded pool. Each result is written to
// its candidate's slot, so completion order never leaks into the output.
// Judge failures degrade per candidate; a done caller context fails the call.
func (uc *QueryUseCase) judgeAll(
	ctx context.Context,
	req domain.AskRequest,
	candidates []domain.MergedCandidate,
) ([]domain.JudgedCandidate, error) {
	transcript := renderConversation(req.Conversation)
	judged := make([]domain.JudgedCandidate, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			judged[i] = domain.JudgedCandidate{
				Candidate: candidates[i],
				Judgment:  uc.judge.Judge(gctx, req.Question, transcript, candidates[i]),
			}
			return nil
		})
	}
	waitErr := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("judge candidates: %w", err)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("judge candidates: %w", waitErr)
	}
	return judged, nil
}

func askFailureStatus(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrIndexUnavailable):
		return "index_unavailable"
	case domain.IsKind(err, domain.ErrOracleFailure):
		return "oracle_failure"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "error"
	}
}
