package engine

import (
	"context"
	"fmt"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// Summary defaults used by the status report.
const (
	DefaultFailureLimit = 20
	DefaultErrorWidth   = 100
)

// FailedRecord is one failed row in a status summary.
type FailedRecord struct {
	ID         string
	Row        int
	Identifier string
	Error      string
}

// StatusSummary is a point-in-time view of the store.
type StatusSummary struct {
	Total    int
	Counts   map[core.RecordStatus]int
	Kinds    map[string]int
	Failed   []FailedRecord
	MoreFail bool
}

// Summarize reads status and kind counts plus up to limit failed records with
// error text cut to width runes. Non-positive limit and width use defaults.
func Summarize(ctx context.Context, store core.RecordStore, limit, width int) (*StatusSummary, error) {
	if limit <= 0 {
		limit = DefaultFailureLimit
	}
	if width <= 0 {
		width = DefaultErrorWidth
	}

	counts, err := store.CountsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count statuses: %w", err)
	}
	kinds, err := store.CountsByKind(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count node kinds: %w", err)
	}
	failed, err := store.QueryByStatus(ctx, core.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed records: %w", err)
	}

	s := &StatusSummary{Counts: counts, Kinds: kinds}
	for _, n := range counts {
		s.Total += n
	}
	for i, rec := range failed {
		if i == limit {
			s.MoreFail = true
			break
		}
		s.Failed = append(s.Failed, FailedRecord{
			ID:         rec.ID,
			Row:        rec.SourceRowIndex,
			Identifier: rec.Identifier,
			Error:      truncate(rec.ErrorMessage, width),
		})
	}
	return s, nil
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}
