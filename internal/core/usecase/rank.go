package usecase

import (
	"math"
	"sort"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

// rankJudged orders candidates by judge score, highest first. Equal scores keep
// retrieval order.
func rankJudged(judged []domain.JudgedCandidate) []domain.RankedCandidate {
	ordered := make([]domain.JudgedCandidate, len(judged))
	copy(ordered, judged)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Candidate.Rank < ordered[j].Candidate.Rank
	})
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Judgment.Score > ordered[j].Judgment.Score
	})

	out := make([]domain.RankedCandidate, 0, len(ordered))
	for _, jc := range ordered {
		out = append(out, domain.RankedCandidate{
			SourceName:    jc.Candidate.SourceName,
			SourcePath:    jc.Candidate.SourcePath,
			LLMScore:      jc.Judgment.Score,
			FaissScore:    roundDistance(jc.Candidate.Distance),
			Decision:      jc.Judgment.Decision,
			Justification: jc.Judgment.Justification,
			Degraded:      jc.Judgment.Degraded,
		})
	}
	return out
}

func roundDistance(v float64) float64 {
	return math.Round(v*1000) / 1000
}
