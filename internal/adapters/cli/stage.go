package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/cv-shortlist/internal/infrastructure/staging/localfs"
)

func newStageCommand(state *rootState) *cobra.Command {
	var appendFiles bool
	cmd := &cobra.Command{
		Use:   "stage FILE...",
		Short: "Replace the staging directory content with the given CV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, err := localfs.New(state.cfg.StagingPath)
			if err != nil {
				return err
			}
			if !appendFiles {
				if err := storage.Clear(cmd.Context()); err != nil {
					return err
				}
			}
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open %s: %w", path, err)
				}
				dest, err := storage.Save(cmd.Context(), path, f)
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("stage %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "staged %s\n", dest)
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "run `cvctl reindex` to make the new files searchable")
			return nil
		},
	}
	cmd.Flags().BoolVar(&appendFiles, "append", false, "keep files that are already staged")
	return cmd
}
