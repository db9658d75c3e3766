package cli

import (
	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/cv-shortlist/internal/adapters/mcp"
)

func newMCPCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the shortlist tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closeFn, err := state.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			srv := mcpadapter.NewServer(state.version, state.cfg.StagingPath, rt.Ranker, rt.Indexer, rt.Status)
			return srv.ServeStdio()
		},
	}
}
