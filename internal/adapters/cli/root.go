// Package cli implements the cvctl command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/cv-shortlist/internal/config"
	"github.com/kirillkom/cv-shortlist/internal/core/ports"
)

// Runtime is the wired pipeline a command runs against.
type Runtime struct {
	Ranker  ports.CandidateRanker
	Indexer ports.IndexBuilder
	Status  ports.IndexStatusReader
}

// OpenFunc wires a Runtime on demand so that help and stage never touch the LLM stack.
type OpenFunc func(ctx context.Context) (*Runtime, func(), error)

type rootState struct {
	cfg     config.Config
	open    OpenFunc
	version string
}

func NewRootCommand(cfg config.Config, version string, open OpenFunc) *cobra.Command {
	state := &rootState{cfg: cfg, open: open, version: version}

	root := &cobra.Command{
		Use:           "cvctl",
		Short:         "Index a staging folder of CVs and shortlist candidates for a hiring need",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&state.cfg.StagingPath, "staging", cfg.StagingPath, "staging directory holding the CVs")

	root.AddCommand(
		newReindexCommand(state),
		newAskCommand(state),
		newStatusCommand(state),
		newBuildsCommand(state),
		newStageCommand(state),
		newMCPCommand(state),
	)
	return root
}

func (s *rootState) runtime(ctx context.Context) (*Runtime, func(), error) {
	if s.open == nil {
		return nil, nil, fmt.Errorf("no runtime configured")
	}
	rt, closeFn, err := s.open(ctx)
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() {}
	}
	return rt, closeFn, nil
}
