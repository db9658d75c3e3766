package ports

import (
	"context"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

// CandidateRanker is the inbound contract for shortlist queries.
type CandidateRanker interface {
	Ask(ctx context.Context, question string, conversation []domain.ConversationTurn) (*domain.Shortlist, error)
}

// IndexBuilder is the inbound contract for full index rebuilds.
type IndexBuilder interface {
	Build(ctx context.Context, stagingPath string) (*domain.BuildReport, error)
	Reindex(ctx context.Context, stagingPath string) (bool, string)
}

// IndexStatusReader is the inbound read model for the active index and its history.
type IndexStatusReader interface {
	Active() (domain.IndexInfo, bool)
	RecentBuilds(ctx context.Context, limit int) ([]domain.IndexBuild, error)
}
