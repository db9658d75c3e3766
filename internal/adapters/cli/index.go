package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
)

func newReindexCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from the staging directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closeFn, err := state.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			ok, message := rt.Indexer.Reindex(cmd.Context(), state.cfg.StagingPath)
			fmt.Fprintln(cmd.OutOrStdout(), message)
			if !ok {
				return errReported
			}
			return nil
		},
	}
}

func newStatusCommand(state *rootState) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, closeFn, err := state.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			info, ok := rt.Status.Active()
			out := cmd.OutOrStdout()
			if asJSON {
				payload := map[string]any{"ready": ok}
				if ok {
					payload["index"] = info
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}
			if !ok {
				fmt.Fprintln(out, "no index loaded; run `cvctl reindex`")
				return nil
			}
			fmt.Fprintf(out, "build:     %s\nmodel:     %s\ndocuments: %d\nchunks:    %d\ndimension: %d\ncreated:   %s\n",
				info.BuildID, info.Model, info.Documents, info.Chunks, info.Dimension, info.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newBuildsCommand(state *rootState) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "builds",
		Short: "List recent index builds (requires POSTGRES_DSN)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			rt, closeFn, err := state.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			builds, err := rt.Status.RecentBuilds(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printBuilds(cmd, builds)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum builds to list")
	return cmd
}

func printBuilds(cmd *cobra.Command, builds []domain.IndexBuild) error {
	out := cmd.OutOrStdout()
	if len(builds) == 0 {
		fmt.Fprintln(out, "no builds recorded")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDOCS\tCHUNKS\tSKIPPED\tSTARTED\tMESSAGE")
	for _, b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			b.ID, b.Status, b.Documents, b.Chunks, b.Skipped, b.StartedAt.Format(time.RFC3339), b.Message)
	}
	return tw.Flush()
}
