package domain

import (
	"fmt"
	"strings"
)

type AskRequest struct {
	Question     string             `json:"question"`
	Conversation []ConversationTurn `json:"conversation_context,omitempty"`
}

// RetrievalHit is one chunk returned by a similarity query. Lower distance is closer.
type RetrievalHit struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// MergedCandidate aggregates every hit of one source document within a query.
type MergedCandidate struct {
	SourcePath string  `json:"source_path"`
	SourceName string  `json:"source_name"`
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
	Hits       int     `json:"hits"`
	Rank       int     `json:"rank"`
}

type Decision string

const (
	DecisionKeep    Decision = "keep"
	DecisionReject  Decision = "reject"
	DecisionUnknown Decision = "unknown"
)

const MaxJudgeScore = 10

type Judgment struct {
	Score         int      `json:"score"`
	Decision      Decision `json:"decision"`
	Justification string   `json:"justification"`
	Degraded      string   `json:"degraded,omitempty"`
}

type JudgedCandidate struct {
	Candidate MergedCandidate
	Judgment  Judgment
}

// RankedCandidate is the wire shape handed back to callers of Ask.
type RankedCandidate struct {
	SourceName    string   `json:"source_name"`
	SourcePath    string   `json:"source_path"`
	LLMScore      int      `json:"llm_score"`
	FaissScore    float64  `json:"faiss_score"`
	Decision      Decision `json:"decision"`
	Justification string   `json:"justification"`
	Degraded      string   `json:"degraded,omitempty"`
}

type Shortlist struct {
	Question   string            `json:"question"`
	BuildID    string            `json:"build_id,omitempty"`
	Candidates []RankedCandidate `json:"results"`
}

const NoMatchMessage = "No relevant CV found. Try rephrasing the hiring need."

// Summary renders the numbered plain-text answer shown to chat users.
func (s *Shortlist) Summary() string {
	if s == nil || len(s.Candidates) == 0 {
		return NoMatchMessage
	}
	items := make([]string, 0, len(s.Candidates))
	for i, c := range s.Candidates {
		items = append(items, fmt.Sprintf(
			"%d. **%s** — LLM score: %d/%d, distance: %.3f\nJustification: %s",
			i+1, c.SourceName, c.LLMScore, MaxJudgeScore, c.FaissScore, c.Justification,
		))
	}
	return "Most relevant CVs:\n\n" + strings.Join(items, "\n\n")
}
