package domain

import (
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NormalizeConversation checks every turn's role and returns a copy with roles
// in canonical lowercase form. Roles match case-insensitively, surrounding
// whitespace ignored.
func NormalizeConversation(turns []ConversationTurn) ([]ConversationTurn, error) {
	if len(turns) == 0 {
		return nil, nil
	}
	out := make([]ConversationTurn, len(turns))
	for i, turn := range turns {
		role := strings.ToLower(strings.TrimSpace(turn.Role))
		if role != RoleUser && role != RoleAssistant {
			return nil, WrapError(ErrInvalidInput, "conversation_context",
				fmt.Errorf("turn %d: role must be %q or %q, got %q", i, RoleUser, RoleAssistant, turn.Role))
		}
		out[i] = ConversationTurn{Role: role, Content: turn.Content}
	}
	return out, nil
}
