package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli/output"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/engine"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// DefaultProgressInterval is how often a running generation logs store counts.
const DefaultProgressInterval = 5 * time.Second

// RunOptions holds options for the run command.
type RunOptions struct {
	Progress time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [source.csv]",
		Short: "Generate import batches from a CSV source",
		Long: `Read the CSV source, register every row in the state store and write
pending rows as Object Importer XML batches.

Rows that already succeeded are skipped unless --force is set, so an
interrupted run resumes where it stopped when a stable identity mode
(column or content) is configured.`,
		Example: `  # Generate batches of 500 nodes into out/import_N.xml
  oigen run objects.csv

  # Smaller batches with a fixed location and operator
  oigen run objects.csv --batch-size 100 --location "Enterprise:Imports" --operator admin

  # Stable ids from a business key, reprocessing everything
  oigen run objects.csv --identity column --key-column Reference --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().String("source", "", "Path to the CSV source")
	cmd.Flags().String("delimiter", "", "Field delimiter (default: detect)")
	cmd.Flags().String("quote", "", `Quote character (default: ")`)
	cmd.Flags().String("identity", "", "Record identity mode (random|column|content)")
	cmd.Flags().String("key-column", "", "Business key column for --identity column")
	cmd.Flags().String("output-base", "", "Batch file template (default: out/import.xml)")
	cmd.Flags().Int("batch-size", 0, "Maximum nodes per batch file")
	cmd.Flags().String("cdata", "", `Comma-separated fields wrapped in CDATA ("*" for all)`)
	cmd.Flags().String("location", "", "Default location for rows without one")
	cmd.Flags().String("category", "", "Default category for metadata attributes")
	cmd.Flags().String("operator", "", "Operator written to createdby")
	cmd.Flags().String("action", "", "Override the action of every row (none to disable)")
	cmd.Flags().String("node-kind", "", "Override the node type of every row (none to disable)")
	cmd.Flags().Bool("force", false, "Reprocess rows that already succeeded")
	cmd.Flags().String("path-report", "", "Authoritative path report; suppresses the rename script")
	cmd.Flags().DurationVar(&opts.Progress, "progress", DefaultProgressInterval, "Progress log interval (0 to disable)")

	_ = cmd.RegisterFlagCompletionFunc("identity", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"random", "column", "content"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	engCfg, err := cc.Cfg.EngineConfig(cc.Store, cc.Logger)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		engCfg.SourcePath = args[0]
	}
	if engCfg.SourcePath == "" {
		return errors.New("no source file: pass a path or set source.path")
	}

	eng, err := engine.New(engCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	done := make(chan struct{})
	var report *engine.RunReport

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		var runErr error
		report, runErr = eng.Run(gctx)
		return runErr
	})
	if opts.Progress > 0 {
		g.Go(func() error {
			reportProgress(gctx, done, cc.Store, cc.Logger, opts.Progress)
			return nil
		})
	}
	runErr := g.Wait()

	if report != nil {
		if err := renderRunReport(cc.Renderer, report, time.Since(start)); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	return nil
}

// reportProgress logs store counts every interval until done is closed or
// ctx is cancelled.
func reportProgress(ctx context.Context, done <-chan struct{}, store core.RecordStore, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := store.CountsByStatus(ctx)
			if err != nil {
				logger.Warn("progress query failed", "error", err)
				continue
			}
			logger.Info("progress",
				"pending", counts[core.StatusPending],
				"processing", counts[core.StatusProcessing],
				"success", counts[core.StatusSuccess],
				"failed", counts[core.StatusFailed],
			)
		}
	}
}

func renderRunReport(r *output.Renderer, report *engine.RunReport, elapsed time.Duration) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(report)
	}

	for _, w := range report.Warnings {
		r.Warning(w)
	}

	r.Header("Run Summary")
	r.KeyValues([][2]string{
		{"Rows", strconv.Itoa(report.Total)},
		{"Registered", strconv.Itoa(report.Registered)},
		{"Already present", strconv.Itoa(report.AlreadyPresent)},
		{"Duplicates", strconv.Itoa(report.Duplicates)},
		{"Processed", strconv.Itoa(report.Processed)},
		{"Skipped", strconv.Itoa(report.Skipped)},
		{"Failed", strconv.Itoa(report.Failed)},
		{"Elapsed", elapsed.Round(time.Millisecond).String()},
	})

	if len(report.Batches) > 0 {
		rows := make([][]string, len(report.Batches))
		for i, b := range report.Batches {
			rows[i] = []string{strconv.Itoa(i + 1), b}
		}
		r.Table([]string{"Batch", "File"}, rows)
	}
	if report.RenameScript != "" {
		r.Printf("Rename script: %s (%d files)\n", report.RenameScript, len(report.Renames))
	}

	switch {
	case report.Stopped:
		r.Warning("run stopped before all rows were processed; run again to resume")
	case report.Failed > 0:
		r.Warning(fmt.Sprintf("%d rows failed; see `oigen status`", report.Failed))
	default:
		r.Success(fmt.Sprintf("Generated %d nodes in %d batches", report.Processed, len(report.Batches)))
	}
	return nil
}
