package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

const judgeSystemPrompt = "You are an HR assistant."

var (
	judgeScorePattern = regexp.MustCompile(`(?i)NOTE\s*:\s*(\d+)`)
	justificationMark = regexp.MustCompile(`(?i)justification\s*:`)
)

func buildJudgePrompt(question, transcript, candidateText string) string {
	return fmt.Sprintf(`You are a recruiter. Decide whether this candidate matches the following hiring need.

Company need:
"%s"

%s
You must:
1. Read the CV content.
2. Give a score out of 10 for the relevance of the profile.
3. Take a decision: **KEEP** or **REJECT**.
4. Give a clear and concise justification, **in a single paragraph**.

Mandatory format:
NOTE: X/10 — Decision: KEEP / REJECT
Justification: [one paragraph without line breaks, 3-4 sentences max]

CV text:
%s
`, question, transcript, candidateText)
}

// parseJudgeScore extracts the NOTE: X/10 score, clamped to the judge scale.
func parseJudgeScore(response string) (int, error) {
	match := judgeScorePattern.FindStringSubmatch(response)
	if match == nil {
		return 0, domain.WrapError(domain.ErrParseFailure, "parse judge score", fmt.Errorf("no NOTE token"))
	}
	score, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, domain.WrapError(domain.ErrParseFailure, "parse judge score", err)
	}
	if score > domain.MaxJudgeScore {
		score = domain.MaxJudgeScore
	}
	return score, nil
}

// parseDecision reads the decision line. A line naming both outcomes, such as
// an echoed template, is ambiguous and yields unknown.
func parseDecision(response string) domain.Decision {
	line := decisionLine(response)
	reject := containsAny(line, "reject", "écarter", "ecarter")
	keep := containsAny(line, "keep", "conserver")
	switch {
	case reject && keep:
		return domain.DecisionUnknown
	case reject:
		return domain.DecisionReject
	case keep:
		return domain.DecisionKeep
	default:
		return domain.DecisionUnknown
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func decisionLine(response string) string {
	lower := strings.ToLower(response)
	for _, line := range strings.Split(lower, "\n") {
		for _, marker := range []string{"decision", "décision"} {
			if idx := strings.Index(line, marker); idx >= 0 {
				return line[idx+len(marker):]
			}
		}
	}
	first, _, _ := strings.Cut(lower, "\n")
	return first
}

// extractJustification returns the text after "Justification:" or the whole
// response when the marker is missing.
func extractJustification(response string) string {
	trimmed := strings.TrimSpace(response)
	loc := justificationMark.FindStringIndex(trimmed)
	if loc == nil {
		return trimmed
	}
	if rest := strings.TrimSpace(trimmed[loc[1]:]); rest != "" {
		return rest
	}
	return trimmed
}
