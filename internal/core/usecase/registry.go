package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

type indexSlot struct {
	index ports.VectorIndex
}

// IndexRegistry owns the process-wide active index. Handles are immutable;
// replacing one never disturbs queries still holding the previous handle.
type IndexRegistry struct {
	store      ports.IndexStore
	logger     *slog.Logger
	embedModel string
	current    atomic.Pointer[indexSlot]
}

func NewIndexRegistry(store ports.IndexStore, logger *slog.Logger) *IndexRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexRegistry{store: store, logger: logger}
}

// ExpectEmbedModel names the embedding model queries will use. Activating an
// index built with another model logs a warning. Call it before Init.
func (r *IndexRegistry) ExpectEmbedModel(model string) {
	r.embedModel = model
}

// Init loads the persisted index if one exists. A missing index is not an error.
func (r *IndexRegistry) Init(ctx context.Context) error {
	idx, err := r.store.Load(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrIndexUnavailable) {
			r.logger.Info("index_absent", "reason", err.Error())
			return nil
		}
		return fmt.Errorf("load index: %w", err)
	}
	r.Swap(idx)
	return nil
}

// Reload replaces the active handle with the persisted index. On failure the
// previous handle stays active.
func (r *IndexRegistry) Reload(ctx context.Context) error {
	idx, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload index: %w", err)
	}
	r.Swap(idx)
	return nil
}

func (r *IndexRegistry) Swap(idx ports.VectorIndex) {
	if idx == nil {
		return
	}
	r.current.Store(&indexSlot{index: idx})
	info := idx.Info()
	r.logger.Info("index_activated",
		"build_id", info.BuildID,
		"documents", info.Documents,
		"chunks", info.Chunks,
		"dimension", info.Dimension,
	)
	if r.embedModel != "" && info.Model != "" && info.Model != r.embedModel {
		r.logger.Warn("index_model_mismatch",
			"build_id", info.BuildID,
			"index_model", info.Model,
			"embed_model", r.embedModel,
			"hint", "reindex required",
		)
	}
}

func (r *IndexRegistry) Current() (ports.VectorIndex, bool) {
	slot := r.current.Load()
	if slot == nil {
		return nil, false
	}
	return slot.index, true
}

func (r *IndexRegistry) Active() (domain.IndexInfo, bool) {
	idx, ok := r.Current()
	if !ok {
		return domain.IndexInfo{}, false
	}
	return idx.Info(), true
}
