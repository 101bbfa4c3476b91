package commands

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli/output"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/engine"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Limit int
	Width int
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show processing state",
		Long: `Show record counts by status, successful nodes by type and the most
recent failures recorded in the state store.`,
		Example: `  # Summary of the default state store
  oigen status

  # Show up to 50 failures as JSON
  oigen status --limit 50 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", engine.DefaultFailureLimit, "Maximum failed records to list")
	cmd.Flags().IntVar(&opts.Width, "width", engine.DefaultErrorWidth, "Maximum error text width")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := engine.Summarize(cmd.Context(), cc.Store, opts.Limit, opts.Width)
	if err != nil {
		return err
	}
	return renderStatus(cc.Renderer, cc.Store.Path(), summary)
}

func renderStatus(r *output.Renderer, statePath string, s *engine.StatusSummary) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(s)
	}

	titleCaser := cases.Title(language.English)

	r.Header("Processing Status")
	r.KeyValues([][2]string{
		{"State", statePath},
		{"Tracked", strconv.Itoa(s.Total)},
	})

	var statusRows [][]string
	for _, st := range core.AllStatuses {
		if n := s.Counts[st]; n > 0 {
			statusRows = append(statusRows, []string{titleCaser.String(string(st)), strconv.Itoa(n)})
		}
	}
	r.Table([]string{"Status", "Records"}, statusRows)

	if len(s.Kinds) > 0 {
		kinds := make([]string, 0, len(s.Kinds))
		for k := range s.Kinds {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		kindRows := make([][]string, len(kinds))
		for i, k := range kinds {
			kindRows[i] = []string{titleCaser.String(k), strconv.Itoa(s.Kinds[k])}
		}
		r.Header("Generated Nodes")
		r.Table([]string{"Type", "Nodes"}, kindRows)
	}

	if len(s.Failed) > 0 {
		failRows := make([][]string, len(s.Failed))
		for i, f := range s.Failed {
			failRows[i] = []string{strconv.Itoa(f.Row), f.Identifier, f.Error}
		}
		r.Header("Failures")
		r.Table([]string{"Row", "Identifier", "Error"}, failRows)
		if s.MoreFail {
			r.Println(r.Muted("more failures not shown; raise --limit to list them"))
		}
	}
	return nil
}
