package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli/output"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/reconcile"
)

// ReprocessOptions holds options for the reprocess command.
type ReprocessOptions struct {
	Out    string
	Skip   []string
	DryRun bool
}

// NewReprocessCommand creates the reprocess command.
func NewReprocessCommand() *cobra.Command {
	opts := &ReprocessOptions{}

	cmd := &cobra.Command{
		Use:   "reprocess <failure-report>",
		Short: "Regenerate nodes listed in an ingestion failure report",
		Long: `Match every failed node of an ingestion failure report to its stored
record, regenerate the node from the original source row with the current
mapping and write the matches to a new import document.

Matched records are marked reprocessed. Entries without a stored record or
source row are listed and left out.`,
		Example: `  # Regenerate everything that can be matched
  oigen reprocess batch_1_uncreated.xml

  # Preview matches without writing
  oigen reprocess batch_1_uncreated.xml --dry-run

  # Leave two entries out
  oigen reprocess batch_1_uncreated.xml --skip "Budget 2024" --skip "Minutes"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReprocess(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "Output document (default: <report>_reprocess.xml)")
	cmd.Flags().StringArrayVar(&opts.Skip, "skip", nil, "Identifier to leave out (repeatable)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List matches without writing")

	return cmd
}

// defaultReprocessPath derives the output path from the report path.
func defaultReprocessPath(report string) string {
	ext := filepath.Ext(report)
	return strings.TrimSuffix(report, ext) + "_reprocess.xml"
}

func runReprocess(cmd *cobra.Command, reportPath string, opts *ReprocessOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	entries, err := reconcile.ParseFailureReportFile(reportPath)
	if err != nil {
		return err
	}
	cc.Logger.Info("failure report parsed", "path", reportPath, "entries", len(entries))

	mapper, err := cc.Cfg.Mapper()
	if err != nil {
		return err
	}
	m, err := reconcile.NewMatcher(reconcile.Config{
		Store:         cc.Store,
		Mapper:        mapper,
		Transform:     cc.Cfg.TransformOptions(),
		DocNumberBase: cc.Cfg.Run.DocNumberBase,
		Logger:        cc.Logger,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session, err := m.Match(ctx, entries)
	if err != nil {
		return err
	}
	for i, c := range session.Candidates {
		if slices.Contains(opts.Skip, c.Entry.Identifier) {
			if err := session.SetDisposition(i, reconcile.Skip); err != nil {
				return err
			}
		}
	}

	if opts.DryRun {
		return renderCandidates(cc.Renderer, session, nil)
	}

	out := opts.Out
	if out == "" {
		out = defaultReprocessPath(reportPath)
	}
	res, err := session.Export(ctx, out, cc.Cfg.CDATA())
	if errors.Is(err, reconcile.ErrNothingToExport) {
		if err := renderCandidates(cc.Renderer, session, nil); err != nil {
			return err
		}
		cc.Renderer.Warning("nothing to re-import")
		return nil
	}
	if err != nil {
		return err
	}
	return renderCandidates(cc.Renderer, session, res)
}

type reprocessJSON struct {
	Stats      reconcile.Stats         `json:"stats"`
	Candidates []candidateJSON         `json:"candidates"`
	Export     *reconcile.ExportResult `json:"export,omitempty"`
}

type candidateJSON struct {
	Line        int    `json:"line"`
	Identifier  string `json:"identifier"`
	Error       string `json:"error"`
	Outcome     string `json:"outcome"`
	Disposition string `json:"disposition"`
	RecordID    string `json:"record_id,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

func renderCandidates(r *output.Renderer, s *reconcile.Session, res *reconcile.ExportResult) error {
	if r.EffectiveMode() == output.ModeJSON {
		doc := reprocessJSON{Stats: s.Stats(), Export: res}
		for _, c := range s.Candidates {
			cj := candidateJSON{
				Line:        c.Entry.Line,
				Identifier:  c.Entry.Identifier,
				Error:       c.Entry.ErrorText,
				Outcome:     string(c.Outcome),
				Disposition: string(c.Disposition),
				Detail:      c.Detail,
			}
			if c.Record != nil {
				cj.RecordID = c.Record.ID
			}
			doc.Candidates = append(doc.Candidates, cj)
		}
		return r.JSON(doc)
	}

	rows := make([][]string, len(s.Candidates))
	for i, c := range s.Candidates {
		note := c.Entry.ErrorText
		if c.Detail != "" {
			note = c.Detail
		}
		rows[i] = []string{strconv.Itoa(c.Entry.Line), c.Entry.Identifier, string(c.Outcome), string(c.Disposition), note}
	}
	r.Header("Failure Report")
	r.Table([]string{"Line", "Identifier", "Outcome", "Disposition", "Error"}, rows)

	st := s.Stats()
	r.KeyValues([][2]string{
		{"Matched", strconv.Itoa(st.Matched)},
		{"Unmatched", strconv.Itoa(st.Unmatched)},
		{"Missing data", strconv.Itoa(st.MissingData)},
		{"Regeneration failed", strconv.Itoa(st.RegenFailed)},
		{"Re-import", strconv.Itoa(st.Reimport)},
	})

	if res != nil {
		r.Success(fmt.Sprintf("Wrote %d nodes to %s", res.Nodes, res.Path))
		if res.Store.NotFound > 0 || res.Store.Rejected > 0 {
			r.Warning(fmt.Sprintf("%d records could not be marked reprocessed", res.Store.NotFound+res.Store.Rejected))
		}
	}
	return nil
}
