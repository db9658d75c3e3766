package usecase

import (
	"strings"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

// renderConversation serializes prior turns as a labelled transcript for the
// judge prompt. Roles are already normalized.
func renderConversation(turns []domain.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, turn := range turns {
		label := "Assistant"
		if turn.Role == domain.RoleUser {
			label = "User"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	return b.String()
}
