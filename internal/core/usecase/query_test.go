package usecase

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

func hit(source, text string, distance float64) domain.RetrievalHit {
	return domain.RetrievalHit{
		Chunk: domain.Chunk{
			SourcePath: "/staging/" + source,
			SourceName: source,
			Text:       text,
		},
		Distance: distance,
	}
}

func newQueryFixture(t *testing.T, hits []domain.RetrievalHit, chat *scriptedChat, opts QueryOptions, judgeOpts JudgeOptions) (*QueryUseCase, *memIndex) {
	t.Helper()
	store := &memStore{}
	registry := NewIndexRegistry(store, nil)
	idx := &memIndex{info: domain.IndexInfo{BuildID: "b-1", Dimension: 2}, hits: hits}
	registry.Swap(idx)
	judge := NewRelevanceJudge(chat, judgeOpts)
	return NewQueryUseCase(&keywordEmbedder{}, registry, judge, opts), idx
}

func candidateNames(s *domain.Shortlist) []string {
	out := make([]string, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		out = append(out, c.SourceName)
	}
	return out
}

func TestAskRanksByScoreAndKeepsRetrievalOrderOnTies(t *testing.T) {
	hits := []domain.RetrievalHit{
		hit("A.txt", "cv-A", 0.1),
		hit("B.txt", "cv-B", 0.2),
		hit("C.txt", "cv-C", 0.3),
		hit("D.txt", "cv-D", 0.4),
	}
	chat := &scriptedChat{reply: scoreByMarker(map[string]string{
		"cv-A": "NOTE: 7/10 — Decision: KEEP\nJustification: Solid.",
		"cv-B": "NOTE: 9/10 — Decision: KEEP\nJustification: Best fit.",
		"cv-C": "NOTE: 7/10 — Decision: KEEP\nJustification: Solid too.",
		"cv-D": "NOTE: 3/10 — Decision: REJECT\nJustification: Weak.",
	})}
	uc, idx := newQueryFixture(t, hits, chat, QueryOptions{}, JudgeOptions{})

	shortlist, err := uc.Ask(context.Background(), "  backend engineer  ", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	got := strings.Join(candidateNames(shortlist), ",")
	if got != "B.txt,A.txt,C.txt,D.txt" {
		t.Fatalf("unexpected order %s", got)
	}
	if shortlist.Question != "backend engineer" || shortlist.BuildID != "b-1" {
		t.Fatalf("unexpected shortlist header: %+v", shortlist)
	}
	if idx.lastK != defaultTopK {
		t.Fatalf("expected default top k=%d, got %d", defaultTopK, idx.lastK)
	}
	if shortlist.Candidates[0].Decision != domain.DecisionKeep || shortlist.Candidates[3].Decision != domain.DecisionReject {
		t.Fatalf("unexpected decisions: %+v", shortlist.Candidates)
	}
	if shortlist.Candidates[0].Justification != "Best fit." {
		t.Fatalf("unexpected justification %q", shortlist.Candidates[0].Justification)
	}
	if chat.systems[0] != judgeSystemPrompt {
		t.Fatalf("unexpected system prompt %q", chat.systems[0])
	}
}

func TestAskMergesChunksOfTheSameSource(t *testing.T) {
	hits := []domain.RetrievalHit{
		hit("A.txt", "cv-A part one", 0.1),
		hit("B.txt", "cv-B", 0.2),
		hit("A.txt", "cv-A part two", 0.3),
	}
	chat := &scriptedChat{reply: scoreByMarker(map[string]string{
		"cv-A": "NOTE: 5/10 — Decision: KEEP\nJustification: ok.",
		"cv-B": "NOTE: 5/10 — Decision: KEEP\nJustification: ok.",
	})}
	uc, _ := newQueryFixture(t, hits, chat, QueryOptions{}, JudgeOptions{})

	shortlist, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(shortlist.Candidates) != 2 || chat.calls() != 2 {
		t.Fatalf("expected 2 candidates and 2 judge calls, got %d and %d", len(shortlist.Candidates), chat.calls())
	}
	if shortlist.Candidates[0].SourceName != "A.txt" || shortlist.Candidates[0].FaissScore != 0.2 {
		t.Fatalf("unexpected merged candidate: %+v", shortlist.Candidates[0])
	}
	if !strings.Contains(chat.prompts[0], "cv-A part one\ncv-A part two") {
		t.Fatalf("merged text missing from prompt: %s", chat.prompts[0])
	}
}

func TestAskMalformedJudgeOutputScoresZero(t *testing.T) {
	chat := &scriptedChat{reply: func(context.Context, string) (string, error) {
		return "This candidate looks great to me.", nil
	}}
	observer := &recordingObserver{}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}, chat,
		QueryOptions{Observer: observer}, JudgeOptions{Observer: observer})

	shortlist, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	c := shortlist.Candidates[0]
	if c.LLMScore != 0 || c.Degraded != "parse_failure" {
		t.Fatalf("expected degraded zero score, got %+v", c)
	}
	if c.Justification != "This candidate looks great to me." {
		t.Fatalf("expected raw response as justification, got %q", c.Justification)
	}
	if observer.judgments["parse_failure"] != 1 || observer.asks[0] != "success" {
		t.Fatalf("unexpected observations: %+v", observer)
	}
}

func TestAskClampsScoresAboveScale(t *testing.T) {
	chat := &scriptedChat{reply: func(context.Context, string) (string, error) {
		return "NOTE: 12/10 — Decision: KEEP\nJustification: Outstanding.", nil
	}}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}, chat, QueryOptions{}, JudgeOptions{})

	shortlist, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if shortlist.Candidates[0].LLMScore != domain.MaxJudgeScore {
		t.Fatalf("expected clamped score, got %d", shortlist.Candidates[0].LLMScore)
	}
}

func TestAskJudgeFailuresDegradeInsteadOfFailing(t *testing.T) {
	hits := []domain.RetrievalHit{
		hit("A.txt", "cv-A", 0.1),
		hit("B.txt", "cv-B", 0.2),
		hit("C.txt", "cv-C", 0.3),
	}
	chat := &scriptedChat{reply: func(ctx context.Context, prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "cv-B"):
			return "", errors.New("model unavailable")
		case strings.Contains(prompt, "cv-C"):
			<-ctx.Done()
			return "", ctx.Err()
		default:
			return "NOTE: 6/10 — Decision: KEEP\nJustification: fine.", nil
		}
	}}
	observer := &recordingObserver{}
	uc, _ := newQueryFixture(t, hits, chat, QueryOptions{}, JudgeOptions{Timeout: 20 * time.Millisecond, Observer: observer})

	shortlist, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got := strings.Join(candidateNames(shortlist), ","); got != "A.txt,B.txt,C.txt" {
		t.Fatalf("unexpected order %s", got)
	}
	if shortlist.Candidates[1].Degraded != "oracle_failure" || shortlist.Candidates[2].Degraded != "timeout" {
		t.Fatalf("unexpected degradation: %+v", shortlist.Candidates)
	}
	if shortlist.Candidates[1].Decision != domain.DecisionUnknown || shortlist.Candidates[2].LLMScore != 0 {
		t.Fatalf("degraded candidates must score 0 with unknown decision: %+v", shortlist.Candidates)
	}
	if observer.judgments["timeout"] != 1 || observer.judgments["oracle_failure"] != 1 || observer.judgments["ok"] != 1 {
		t.Fatalf("unexpected judgment outcomes: %v", observer.judgments)
	}
}

func TestAskCallerCancellationFailsTheCall(t *testing.T) {
	hits := []domain.RetrievalHit{
		hit("A.txt", "cv-A", 0.1),
		hit("B.txt", "cv-B", 0.2),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chat := &scriptedChat{reply: func(c context.Context, _ string) (string, error) {
		cancel()
		return "", c.Err()
	}}
	observer := &recordingObserver{}
	uc, _ := newQueryFixture(t, hits, chat, QueryOptions{Observer: observer}, JudgeOptions{Observer: observer})

	shortlist, err := uc.Ask(ctx, "backend", nil)
	if shortlist != nil {
		t.Fatalf("expected no shortlist for a cancelled call, got %+v", shortlist)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(observer.asks) != 1 || observer.asks[0] != "cancelled" {
		t.Fatalf("unexpected ask status %v", observer.asks)
	}
	if chat.calls() != 1 {
		t.Fatalf("expected remaining judge calls to be skipped, got %d calls", chat.calls())
	}
}

func TestAskWithoutIndexReturnsIndexUnavailable(t *testing.T) {
	chat := &scriptedChat{reply: scoreByMarker(nil)}
	registry := NewIndexRegistry(&memStore{}, nil)
	uc := NewQueryUseCase(&keywordEmbedder{}, registry, NewRelevanceJudge(chat, JudgeOptions{}), QueryOptions{})

	_, err := uc.Ask(context.Background(), "q", nil)
	if !domain.IsKind(err, domain.ErrIndexUnavailable) {
		t.Fatalf("expected ErrIndexUnavailable, got %v", err)
	}
	if chat.calls() != 0 {
		t.Fatalf("judge must not run without an index")
	}
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	chat := &scriptedChat{reply: scoreByMarker(nil)}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}, chat, QueryOptions{}, JudgeOptions{})

	_, err := uc.Ask(context.Background(), " \n\t", nil)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAskEmbedFailureIsOracleFailure(t *testing.T) {
	registry := NewIndexRegistry(&memStore{}, nil)
	registry.Swap(&memIndex{hits: []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}})
	chat := &scriptedChat{reply: scoreByMarker(nil)}
	observer := &recordingObserver{}
	uc := NewQueryUseCase(&keywordEmbedder{err: errors.New("embed fail")}, registry,
		NewRelevanceJudge(chat, JudgeOptions{}), QueryOptions{Observer: observer})

	shortlist, err := uc.Ask(context.Background(), "q", nil)
	if shortlist != nil {
		t.Fatalf("expected no shortlist on failure")
	}
	if !domain.IsKind(err, domain.ErrOracleFailure) {
		t.Fatalf("expected ErrOracleFailure, got %v", err)
	}
	if observer.asks[0] != "oracle_failure" {
		t.Fatalf("unexpected ask status %v", observer.asks)
	}
}

func TestAskEmptyRetrievalReturnsEmptyShortlist(t *testing.T) {
	chat := &scriptedChat{reply: scoreByMarker(nil)}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{}, chat, QueryOptions{TopK: 3}, JudgeOptions{})

	shortlist, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(shortlist.Candidates) != 0 || shortlist.Summary() != domain.NoMatchMessage {
		t.Fatalf("expected empty shortlist, got %+v", shortlist)
	}
}

func TestAskConversationIsRenderedIntoPrompt(t *testing.T) {
	chat := &scriptedChat{reply: scoreByMarker(map[string]string{
		"cv-A": "NOTE: 8/10 — Decision: KEEP\nJustification: ok.",
	})}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}, chat, QueryOptions{}, JudgeOptions{})

	if _, err := uc.Ask(context.Background(), "and with Kubernetes?", nil); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	conversation := []domain.ConversationTurn{
		{Role: "User", Content: "I need a Go developer"},
		{Role: " ASSISTANT", Content: "Most relevant CVs: A.txt"},
	}
	if _, err := uc.Ask(context.Background(), "and with Kubernetes?", conversation); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if chat.prompts[0] == chat.prompts[1] {
		t.Fatalf("conversation must change the judge prompt")
	}
	if strings.Contains(chat.prompts[0], "Previous conversation") {
		t.Fatalf("empty conversation must not render a transcript")
	}
	if !strings.Contains(chat.prompts[1], "User: I need a Go developer\nAssistant: Most relevant CVs: A.txt\n") {
		t.Fatalf("transcript missing from prompt: %s", chat.prompts[1])
	}
}

func TestAskRejectsUnknownConversationRole(t *testing.T) {
	chat := &scriptedChat{reply: scoreByMarker(nil)}
	observer := &recordingObserver{}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}, chat, QueryOptions{Observer: observer}, JudgeOptions{})

	_, err := uc.Ask(context.Background(), "go", []domain.ConversationTurn{{Role: "system", Content: "x"}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if chat.calls() != 0 || observer.asks[0] != "invalid_input" {
		t.Fatalf("expected rejection before judging: calls=%d asks=%v", chat.calls(), observer.asks)
	}
}

func TestAskUsesJudgmentCache(t *testing.T) {
	chat := &scriptedChat{reply: scoreByMarker(map[string]string{
		"cv-A": "NOTE: 8/10 — Decision: KEEP\nJustification: ok.",
	})}
	cache := &mapCache{}
	observer := &recordingObserver{}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}, chat,
		QueryOptions{}, JudgeOptions{Cache: cache, Observer: observer})

	first, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	second, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if chat.calls() != 1 {
		t.Fatalf("expected one oracle call, got %d", chat.calls())
	}
	if first.Candidates[0] != second.Candidates[0] {
		t.Fatalf("cached result differs: %+v vs %+v", first.Candidates[0], second.Candidates[0])
	}
	if observer.judgments["cache_hit"] != 1 {
		t.Fatalf("expected a cache hit, got %v", observer.judgments)
	}
}

func TestAskCacheErrorsAreIgnored(t *testing.T) {
	chat := &scriptedChat{reply: scoreByMarker(map[string]string{
		"cv-A": "NOTE: 4/10 — Decision: REJECT\nJustification: no.",
	})}
	uc, _ := newQueryFixture(t, []domain.RetrievalHit{hit("A.txt", "cv-A", 0.1)}, chat,
		QueryOptions{}, JudgeOptions{Cache: &mapCache{getErr: errors.New("redis down")}})

	shortlist, err := uc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if shortlist.Candidates[0].LLMScore != 4 {
		t.Fatalf("unexpected candidate %+v", shortlist.Candidates[0])
	}
}

func TestAskConcurrentJudgesMatchSequentialResult(t *testing.T) {
	var hits []domain.RetrievalHit
	scores := map[string]string{}
	for i, s := range []string{"3", "8", "8", "1", "10", "8", "0", "5"} {
		marker := "cv-" + string(rune('a'+i))
		hits = append(hits, hit(marker+".txt", marker, float64(i)/10))
		scores[marker] = "NOTE: " + s + "/10 — Decision: KEEP\nJustification: j."
	}
	sequential := &scriptedChat{reply: scoreByMarker(scores)}
	seqUC, _ := newQueryFixture(t, hits, sequential, QueryOptions{}, JudgeOptions{})

	base := scoreByMarker(scores)
	concurrent := &scriptedChat{reply: func(ctx context.Context, prompt string) (string, error) {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return base(ctx, prompt)
	}}
	parUC, _ := newQueryFixture(t, hits, concurrent, QueryOptions{JudgeConcurrency: 4}, JudgeOptions{})

	want, err := seqUC.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("sequential Ask() error = %v", err)
	}
	got, err := parUC.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("concurrent Ask() error = %v", err)
	}
	if strings.Join(candidateNames(want), ",") != strings.Join(candidateNames(got), ",") {
		t.Fatalf("concurrency changed the ranking: %v vs %v", candidateNames(want), candidateNames(got))
	}
	if names := candidateNames(got); names[0] != "cv-e.txt" || names[1] != "cv-b.txt" || names[2] != "cv-c.txt" || names[3] != "cv-f.txt" {
		t.Fatalf("unexpected ranking %v", names)
	}
}
