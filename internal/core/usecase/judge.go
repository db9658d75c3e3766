package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

const (
	judgeOutcomeOK            = "ok"
	judgeOutcomeCacheHit      = "cache_hit"
	judgeOutcomeParseFailure  = "parse_failure"
	judgeOutcomeOracleFailure = "oracle_failure"
	judgeOutcomeTimeout       = "timeout"
	judgeOutcomeCancelled     = "cancelled"
)

type JudgeOptions struct {
	Timeout  time.Duration
	Cache    ports.JudgmentCache
	Observer ports.PipelineObserver
	Logger   *slog.Logger
}

// RelevanceJudge scores one merged candidate against a hiring need. It never
// fails: oracle errors, timeouts and unparseable answers degrade to score 0.
// Callers detect their own cancellation through ctx.
type RelevanceJudge struct {
	model    ports.ChatModel
	timeout  time.Duration
	cache    ports.JudgmentCache
	observer ports.PipelineObserver
	logger   *slog.Logger
}

func NewRelevanceJudge(model ports.ChatModel, opts JudgeOptions) *RelevanceJudge {
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RelevanceJudge{
		model:    model,
		timeout:  opts.Timeout,
		cache:    opts.Cache,
		observer: observer,
		logger:   logger,
	}
}

func (j *RelevanceJudge) Judge(ctx context.Context, question, transcript string, candidate domain.MergedCandidate) domain.Judgment {
	prompt := buildJudgePrompt(question, transcript, candidate.Text)
	key := j.cacheKey(prompt)

	if response, ok := j.cached(ctx, key); ok {
		j.observer.ObserveJudgment(judgeOutcomeCacheHit)
		return j.interpret(candidate, response)
	}

	response, err := j.call(ctx, prompt)
	if err != nil {
		outcome := judgeOutcomeOracleFailure
		switch {
		case ctx.Err() != nil:
			outcome = judgeOutcomeCancelled
		case errors.Is(err, context.DeadlineExceeded):
			outcome = judgeOutcomeTimeout
		}
		j.observer.ObserveJudgment(outcome)
		j.logger.Warn("judge_degraded",
			"source", candidate.SourcePath,
			"outcome", outcome,
			"error", err,
		)
		return domain.Judgment{
			Score:    0,
			Decision: domain.DecisionUnknown,
			Degraded: outcome,
		}
	}

	j.store(ctx, key, response)
	return j.interpret(candidate, response)
}

func (j *RelevanceJudge) call(ctx context.Context, prompt string) (string, error) {
	callCtx := ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	response, err := j.model.Chat(callCtx, judgeSystemPrompt, prompt)
	if err != nil {
		if callCtx.Err() != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", domain.WrapError(domain.ErrOracleFailure, "judge candidate", callCtx.Err())
		}
		return "", domain.WrapError(domain.ErrOracleFailure, "judge candidate", err)
	}
	return response, nil
}

func (j *RelevanceJudge) interpret(candidate domain.MergedCandidate, response string) domain.Judgment {
	judgment := domain.Judgment{
		Decision:      parseDecision(response),
		Justification: extractJustification(response),
	}
	score, err := parseJudgeScore(response)
	if err != nil {
		j.observer.ObserveJudgment(judgeOutcomeParseFailure)
		j.logger.Warn("judge_degraded",
			"source", candidate.SourcePath,
			"outcome", judgeOutcomeParseFailure,
			"error", err,
		)
		judgment.Degraded = judgeOutcomeParseFailure
		return judgment
	}
	j.observer.ObserveJudgment(judgeOutcomeOK)
	judgment.Score = score
	return judgment
}

func (j *RelevanceJudge) cacheKey(prompt string) string {
	if j.cache == nil {
		return ""
	}
	sum := sha256.Sum256([]byte(j.model.ModelName() + "\x00" + judgeSystemPrompt + "\x00" + prompt))
	return "judge:" + hex.EncodeToString(sum[:])
}

func (j *RelevanceJudge) cached(ctx context.Context, key string) (string, bool) {
	if j.cache == nil {
		return "", false
	}
	response, ok, err := j.cache.Get(ctx, key)
	if err != nil {
		j.logger.Warn("judge_cache_get_failed", "error", err)
		return "", false
	}
	return response, ok
}

func (j *RelevanceJudge) store(ctx context.Context, key, response string) {
	if j.cache == nil {
		return
	}
	if err := j.cache.Put(ctx, key, response); err != nil {
		j.logger.Warn("judge_cache_put_failed", "error", err)
	}
}

type noopObserver struct{}

func (noopObserver) ObserveAsk(string, int, float64)        {}
func (noopObserver) ObserveJudgment(string)                 {}
func (noopObserver) ObserveBuild(string, int, int, float64) {}
