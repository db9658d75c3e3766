package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/cv-shortlist/internal/core/domain"
	"github.com/kirillkom/cv-shortlist/internal/infrastructure/export/xlsx"
)

// errReported signals a failure whose message was already printed.
var errReported = errors.New("command failed")

func IsReported(err error) bool {
	return errors.Is(err, errReported)
}

type askFlags struct {
	format      string
	contextFile string
	xlsxPath    string
}

func newAskCommand(state *rootState) *cobra.Command {
	flags := &askFlags{}
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Shortlist the indexed CVs for a hiring need",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch flags.format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("--format must be text, json or yaml")
			}
			conversation, err := readConversation(flags.contextFile)
			if err != nil {
				return err
			}

			rt, closeFn, err := state.runtime(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			shortlist, err := rt.Ranker.Ask(cmd.Context(), strings.Join(args, " "), conversation)
			if err != nil {
				return err
			}
			if flags.xlsxPath != "" {
				if err := xlsx.SaveShortlist(flags.xlsxPath, shortlist); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "shortlist written to %s\n", flags.xlsxPath)
			}
			return writeShortlist(cmd.OutOrStdout(), flags.format, shortlist)
		},
	}
	cmd.Flags().StringVar(&flags.format, "format", "text", "output format: text, json or yaml")
	cmd.Flags().StringVar(&flags.contextFile, "context", "", "JSON file with earlier conversation turns")
	cmd.Flags().StringVar(&flags.xlsxPath, "xlsx", "", "also write the shortlist to this .xlsx file")
	return cmd
}

func readConversation(path string) ([]domain.ConversationTurn, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conversation context: %w", err)
	}
	var turns []domain.ConversationTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parse conversation context %s: %w", path, err)
	}
	return domain.NormalizeConversation(turns)
}

type candidateView struct {
	Rank          int     `yaml:"rank"`
	Name          string  `yaml:"name"`
	Path          string  `yaml:"path"`
	LLMScore      int     `yaml:"llm_score"`
	Distance      float64 `yaml:"distance"`
	Decision      string  `yaml:"decision"`
	Justification string  `yaml:"justification"`
	Degraded      string  `yaml:"degraded,omitempty"`
}

type shortlistView struct {
	Question   string          `yaml:"question"`
	BuildID    string          `yaml:"build_id,omitempty"`
	Candidates []candidateView `yaml:"candidates"`
}

func writeShortlist(w io.Writer, format string, shortlist *domain.Shortlist) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(shortlist)
	case "yaml":
		view := shortlistView{Question: shortlist.Question, BuildID: shortlist.BuildID, Candidates: []candidateView{}}
		for i, c := range shortlist.Candidates {
			view.Candidates = append(view.Candidates, candidateView{
				Rank:          i + 1,
				Name:          c.SourceName,
				Path:          c.SourcePath,
				LLMScore:      c.LLMScore,
				Distance:      c.FaissScore,
				Decision:      string(c.Decision),
				Justification: c.Justification,
				Degraded:      c.Degraded,
			})
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintln(w, shortlist.Summary())
		return err
	}
}
