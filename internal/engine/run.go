package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/source"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/transform"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// RunReport summarizes one run. On a run-level failure it holds the counts
// gathered before the failure.
type RunReport struct {
	// Total is the number of data rows read from the source
	Total int
	// Registered and AlreadyPresent split Total by registration outcome
	Registered     int
	AlreadyPresent int
	// Duplicates counts rows whose id repeated an earlier row in the same source
	Duplicates int

	Processed int
	Skipped   int
	Failed    int

	// Batches lists the written batch files in order
	Batches []string
	// Kinds tallies successful nodes by node kind
	Kinds map[string]int
	// Renames lists file paths altered by normalization
	Renames []transform.Rename
	// RenameScript is the path of the written rename script, if any
	RenameScript string

	// Stopped is set when the run halted on cancellation
	Stopped bool
	// Flush is the outcome of the final batched status update
	Flush core.BatchResult

	// Warnings carries source parsing warnings
	Warnings []string
}

// staged is a node waiting for its batch file.
type staged struct {
	node   *core.Node
	update int
}

// run holds the mutable state of one Run call.
type run struct {
	e       *Engine
	report  *RunReport
	updates []core.StatusUpdate
	batch   []staged
}

// Run performs one generation run. Cancelling ctx stops the run at the next
// row or store call; everything staged so far is still written and flushed.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{Kinds: make(map[string]int)}

	table, err := source.Read(e.sourcePath, e.sourceOpts)
	if err != nil {
		return report, err
	}
	report.Total = len(table.Rows)
	report.Warnings = table.Warnings
	for _, w := range table.Warnings {
		e.logger.Warn("source warning", "path", table.Path, "warning", w)
	}
	e.logger.Info("read source", "path", table.Path, "rows", report.Total,
		"delimiter", string(table.Delimiter), "encoding", table.Encoding)

	if e.identity == IdentityColumn && !hasColumn(table.Header, e.keyColumn) {
		return report, fmt.Errorf("key column %q not found in source header", e.keyColumn)
	}

	records, ids, err := e.buildRecords(table)
	if err != nil {
		return report, err
	}

	reg, err := e.store.RegisterIfAbsent(ctx, records)
	if err != nil {
		return report, fmt.Errorf("failed to register rows: %w", err)
	}
	report.Registered = reg.Inserted
	report.AlreadyPresent = reg.AlreadyPresent
	e.logger.Info("registered rows", "added", reg.Inserted, "existing", reg.AlreadyPresent)

	if report.Total == 0 {
		e.logger.Info("no data rows to process")
		return report, nil
	}

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return report, fmt.Errorf("failed to create output directory: %w", err)
	}

	r := &run{e: e, report: report}
	tr := transform.New(e.mapper, e.transform, transform.NewDocCounter(e.docNumberBase))

	loopErr := r.process(ctx, table, ids, tr)
	// Every staged success needs its batch file before the flush, including
	// after a failed row loop.
	if err := r.writeBatch(); err != nil {
		loopErr = errors.Join(loopErr, err)
	}

	// Staged updates are flushed even when the caller has cancelled.
	flushErr := r.flush(context.WithoutCancel(ctx))
	if err := errors.Join(loopErr, flushErr); err != nil {
		return report, err
	}

	if len(report.Renames) > 0 {
		if e.pathReportFile != "" {
			e.logger.Info("path report configured, skipping rename script", "renames", len(report.Renames), "report", e.pathReportFile)
		} else {
			path, err := WriteRenameScript(e.outputDir, report.Renames)
			if err != nil {
				return report, err
			}
			report.RenameScript = path
			e.logger.Info("rename script written", "path", path, "renames", len(report.Renames))
		}
	}

	e.logger.Info("run finished",
		"total", report.Total,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"batches", len(report.Batches),
		"stopped", report.Stopped,
	)
	return report, nil
}

func (e *Engine) buildRecords(table *source.Table) ([]*core.Record, []string, error) {
	records := make([]*core.Record, 0, len(table.Rows))
	ids := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		id, err := e.identity.recordID(row.Data, e.keyColumn)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", row.Index, err)
		}
		ids[i] = id
		records = append(records, &core.Record{
			ID:             id,
			SourceRowIndex: row.Index,
			Status:         core.StatusPending,
			RawRow:         row.Data,
		})
	}
	return records, ids, nil
}

func (r *run) process(ctx context.Context, table *source.Table, ids []string, tr *transform.Engine) error {
	e := r.e
	seen := make(map[string]int, len(ids))

	for i, row := range table.Rows {
		if ctx.Err() != nil {
			e.logger.Warn("stop requested, halting", "next_row", row.Index)
			r.report.Stopped = true
			return nil
		}

		id := ids[i]
		if first, dup := seen[id]; dup {
			e.logger.Warn("duplicate record id, skipping row", "row", row.Index, "first_row", first, "id", id)
			r.report.Duplicates++
			continue
		}
		seen[id] = row.Index

		rec, err := e.store.GetByID(ctx, id)
		if err != nil {
			if r.stopRequested(ctx, row.Index, err) {
				return nil
			}
			return fmt.Errorf("failed to load record for row %d: %w", row.Index, err)
		}
		if rec == nil {
			e.logger.Error("record missing after registration, skipping", "row", row.Index, "id", id)
			r.report.Skipped++
			continue
		}
		if rec.Status == core.StatusSuccess && !e.force {
			e.logger.Debug("skipping successful record", "row", row.Index, "id", id)
			r.report.Skipped++
			continue
		}
		if rec.Status == core.StatusProcessing {
			e.logger.Warn("record left in processing by an earlier run, re-processing", "row", row.Index, "id", id)
		}

		if err := e.store.UpdateStatus(ctx, core.StatusUpdate{ID: id, Status: core.StatusProcessing, ErrorMessage: rec.ErrorMessage}); err != nil {
			if r.stopRequested(ctx, row.Index, err) {
				return nil
			}
			return fmt.Errorf("failed to mark row %d processing: %w", row.Index, err)
		}

		res := tr.Transform(row.Index, row.Data)
		for _, ev := range res.Events {
			e.logger.Debug("cleansed value", "row", ev.Row, "field", ev.Field, "rule", ev.Rule, "before", ev.Before, "after", ev.After)
		}

		if res.Err != nil {
			r.report.Failed++
			e.logger.Warn("row failed", "row", row.Index, "error", res.Err)
			r.updates = append(r.updates, core.StatusUpdate{
				ID:           id,
				Status:       core.StatusFailed,
				ErrorMessage: res.Err.Error(),
			})
			continue
		}

		node := res.Node
		identifier := node.Identifier()
		if identifier == "" {
			identifier = fmt.Sprintf("Row_%d_Object", row.Index)
		}
		r.report.Processed++
		r.report.Kinds[node.Kind]++
		r.report.Renames = append(r.report.Renames, res.Renames...)

		r.updates = append(r.updates, core.StatusUpdate{
			ID:         id,
			Status:     core.StatusSuccess,
			NodeKind:   node.Kind,
			Action:     string(node.Action),
			Identifier: identifier,
			OutputNode: oixml.MarshalNode(node, e.cdata),
		})
		r.batch = append(r.batch, staged{node: node, update: len(r.updates) - 1})

		if len(r.batch) >= e.batchSize {
			if err := r.writeBatch(); err != nil {
				return err
			}
		}
	}
	return nil
}

// stopRequested reports whether a store error was caused by the run context
// ending, and if so records the stop.
func (r *run) stopRequested(ctx context.Context, row int, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	r.e.logger.Warn("stop requested during store call, halting", "row", row, "error", err)
	r.report.Stopped = true
	return true
}

// flush applies every staged update in one transaction.
func (r *run) flush(ctx context.Context) error {
	if len(r.updates) == 0 {
		return nil
	}
	r.e.logger.Info("flushing status updates", "count", len(r.updates))
	res, err := r.e.store.BatchUpdateStatus(ctx, r.updates)
	if err != nil {
		return fmt.Errorf("failed to flush status updates: %w", err)
	}
	r.report.Flush = res
	if res.NotFound > 0 || res.Rejected > 0 {
		r.e.logger.Warn("some status updates were not applied", "updated", res.Updated, "not_found", res.NotFound, "rejected", res.Rejected)
	}
	r.updates = nil
	return nil
}

func hasColumn(header []string, column string) bool {
	key := core.NormalizeColumn(column)
	for _, h := range header {
		if core.NormalizeColumn(h) == key {
			return true
		}
	}
	return false
}
