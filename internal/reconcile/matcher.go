package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/mapping"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/transform"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// Outcome classifies how a report entry was resolved.
type Outcome string

// Match outcomes.
const (
	OutcomeMatched     Outcome = "matched"
	OutcomeUnmatched   Outcome = "unmatched"
	OutcomeMissingData Outcome = "missing-data"
	OutcomeRegenFailed Outcome = "regen-failed"
)

// Disposition is what export does with a candidate.
type Disposition string

// Dispositions.
const (
	Reimport Disposition = "re-import"
	Skip     Disposition = "skip"
)

var (
	// ErrNothingToExport is returned by Export when no candidate is marked
	// for re-import.
	ErrNothingToExport = errors.New("no entries marked for re-import")

	// ErrNoCandidate is returned when re-import is requested for an entry
	// without a regenerated node.
	ErrNoCandidate = errors.New("entry has no regenerated node")
)

// Candidate is one report entry with its lookup and regeneration result.
type Candidate struct {
	Entry   Entry
	Outcome Outcome
	// Record is nil for unmatched entries
	Record *core.Record
	// Node is the regenerated node, set only for OutcomeMatched
	Node *core.Node
	// Detail explains a missing-data or regen-failed outcome
	Detail      string
	Disposition Disposition
}

// Config holds matcher configuration.
type Config struct {
	Store core.RecordStore
	// Mapper and Transform must match the settings of the original run
	Mapper        *mapping.Mapper
	Transform     transform.Options
	DocNumberBase int64
	Logger        *slog.Logger
}

// Matcher resolves failure report entries against the store.
type Matcher struct {
	store   core.RecordStore
	mapper  *mapping.Mapper
	opts    transform.Options
	docBase int64
	logger  *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(cfg Config) (*Matcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("state store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	docBase := cfg.DocNumberBase
	if docBase == 0 {
		docBase = transform.DefaultDocNumberBase
	}
	return &Matcher{
		store:   cfg.Store,
		mapper:  cfg.Mapper,
		opts:    cfg.Transform,
		docBase: docBase,
		logger:  logger,
	}, nil
}

// Match looks up every entry and regenerates a node from each matched
// record's stored row. Lookup misses are outcomes, not errors; only store
// failures are returned.
func (m *Matcher) Match(ctx context.Context, entries []Entry) (*Session, error) {
	tr := transform.New(m.mapper, m.opts, transform.NewDocCounter(m.docBase))
	s := &Session{store: m.store, logger: m.logger}

	for _, entry := range entries {
		c := &Candidate{Entry: entry, Disposition: Skip}
		s.Candidates = append(s.Candidates, c)

		rec, err := m.store.GetByIdentifier(ctx, entry.Identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %q: %w", entry.Identifier, err)
		}
		if rec == nil {
			c.Outcome = OutcomeUnmatched
			m.logger.Debug("no record for failure entry", "identifier", entry.Identifier)
			continue
		}
		c.Record = rec

		if rec.RawRow.Len() == 0 {
			c.Outcome = OutcomeMissingData
			c.Detail = "original source row missing"
			continue
		}

		res := tr.Transform(rec.SourceRowIndex, rec.RawRow)
		if res.Err != nil {
			c.Outcome = OutcomeRegenFailed
			c.Detail = res.Err.Error()
			m.logger.Warn("regeneration failed", "identifier", entry.Identifier, "id", rec.ID, "error", res.Err)
			continue
		}
		c.Outcome = OutcomeMatched
		c.Node = res.Node
		c.Disposition = Reimport
	}

	st := s.Stats()
	m.logger.Info("failure report matched",
		"entries", len(entries),
		"matched", st.Matched,
		"unmatched", st.Unmatched,
		"missing_data", st.MissingData,
		"regen_failed", st.RegenFailed,
	)
	return s, nil
}

// Stats counts candidates by outcome.
type Stats struct {
	Matched     int
	Unmatched   int
	MissingData int
	RegenFailed int
	Reimport    int
}

// Session holds the candidates of one reconciliation pass.
type Session struct {
	store      core.RecordStore
	logger     *slog.Logger
	Candidates []*Candidate
}

// Stats returns outcome and disposition counts.
func (s *Session) Stats() Stats {
	var st Stats
	for _, c := range s.Candidates {
		switch c.Outcome {
		case OutcomeMatched:
			st.Matched++
		case OutcomeUnmatched:
			st.Unmatched++
		case OutcomeMissingData:
			st.MissingData++
		case OutcomeRegenFailed:
			st.RegenFailed++
		}
		if c.Disposition == Reimport {
			st.Reimport++
		}
	}
	return st
}

// SetDisposition changes the disposition of candidate i.
func (s *Session) SetDisposition(i int, d Disposition) error {
	if i < 0 || i >= len(s.Candidates) {
		return fmt.Errorf("candidate %d out of range", i)
	}
	switch d {
	case Skip:
	case Reimport:
		if s.Candidates[i].Node == nil {
			return fmt.Errorf("candidate %d (%s): %w", i, s.Candidates[i].Entry.Identifier, ErrNoCandidate)
		}
	default:
		return fmt.Errorf("unknown disposition %q", d)
	}
	s.Candidates[i].Disposition = d
	return nil
}

// ExportResult describes a written re-import document.
type ExportResult struct {
	Path  string
	Nodes int
	Store core.BatchResult
}

// Export writes every candidate marked for re-import to path and marks the
// included records reprocessed. A record appearing more than once is
// written once.
func (s *Session) Export(ctx context.Context, path string, sel oixml.CDATASelector) (*ExportResult, error) {
	var (
		nodes   []*core.Node
		updates []core.StatusUpdate
		seen    = make(map[string]bool)
	)
	for _, c := range s.Candidates {
		if c.Disposition != Reimport || c.Node == nil || c.Record == nil {
			continue
		}
		if seen[c.Record.ID] {
			s.logger.Warn("record listed more than once, exporting once", "identifier", c.Entry.Identifier, "id", c.Record.ID)
			continue
		}
		seen[c.Record.ID] = true
		nodes = append(nodes, c.Node)

		identifier := c.Node.Identifier()
		if identifier == "" {
			identifier = c.Record.Identifier
		}
		updates = append(updates, core.StatusUpdate{
			ID:              c.Record.ID,
			Status:          core.StatusReprocessed,
			NodeKind:        c.Node.Kind,
			Action:          string(c.Node.Action),
			Identifier:      identifier,
			OutputNode:      oixml.MarshalNode(c.Node, sel),
			OutputBatchFile: path,
			ErrorMessage:    c.Entry.ErrorText,
		})
	}
	if len(nodes) == 0 {
		return nil, ErrNothingToExport
	}

	if err := oixml.WriteFile(path, nodes, sel); err != nil {
		return nil, fmt.Errorf("failed to write re-import document: %w", err)
	}

	res, err := s.store.BatchUpdateStatus(ctx, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to mark records reprocessed: %w", err)
	}
	if res.NotFound > 0 || res.Rejected > 0 {
		s.logger.Warn("some records were not marked reprocessed", "updated", res.Updated, "not_found", res.NotFound, "rejected", res.Rejected)
	}
	s.logger.Info("re-import document written", "path", path, "nodes", len(nodes))
	return &ExportResult{Path: path, Nodes: len(nodes), Store: res}, nil
}
