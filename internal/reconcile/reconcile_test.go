package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/state"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/testutil"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/transform"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

const failureReport = `<?xml version="1.0" encoding="utf-8"?>
<import>
<!-- Error: Category 'Finance' not found -->
<node type="document" action="create">
  <location>Enterprise:Finance</location>
  <title>Budget 2024</title>
</node>
<!-- Error:Folder already exists-->
<node type="folder" action="create"><location>Enterprise:Gone</location><title>Unknown Folder</title></node>
<!-- Error: no identifier -->
<node type="document" action="create"><location></location></node>
</import>
`

func TestParseFailureReport(t *testing.T) {
	entries, err := ParseFailureReport(strings.NewReader(failureReport))
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		{Identifier: "Budget 2024", ErrorText: "Category 'Finance' not found", Line: 4},
		{Identifier: "Unknown Folder", ErrorText: "Folder already exists", Line: 9},
	}, entries)
}

func TestParseFailureReport_LocationFallbackAndUnknownError(t *testing.T) {
	report := "<import>\n<node type=\"folder\" action=\"create\"><location>A:B</location></node>\n</import>\n"
	entries, err := ParseFailureReport(strings.NewReader(report))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "A:B", entries[0].Identifier)
	assert.Equal(t, UnknownError, entries[0].ErrorText)
}

func TestParseFailureReport_ErrorTextDoesNotCarryOver(t *testing.T) {
	report := strings.Join([]string{
		"<!-- Error: first -->",
		"<node type=\"folder\" action=\"create\"><title>One</title></node>",
		"<node type=\"folder\" action=\"create\"><title>Two</title></node>",
	}, "\n")
	entries, err := ParseFailureReport(strings.NewReader(report))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].ErrorText)
	assert.Equal(t, UnknownError, entries[1].ErrorText)
}

func TestParseFailureReport_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		report   string
		wantLine int
	}{
		{"mismatched tag", "<!-- Error: x -->\n<node type=\"document\">\n<title>Bad</titl>\n</node>\n", 2},
		{"unterminated", "<node type=\"document\">\n<title>Half</title>\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFailureReport(strings.NewReader(tt.report))
			require.Error(t, err)
			var perr *core.ReconciliationParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantLine, perr.Line)
		})
	}
}

func TestParseFailureReport_IgnoresNodesContainer(t *testing.T) {
	entries, err := ParseFailureReport(strings.NewReader("<nodes>\n</nodes>\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseFailureReportFile(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "batch_uncreated.xml", failureReport)
	entries, err := ParseFailureReportFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = ParseFailureReportFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func rawRow(pairs ...string) core.RawRow {
	var header, values []string
	for i := 0; i+1 < len(pairs); i += 2 {
		header = append(header, pairs[i])
		values = append(values, pairs[i+1])
	}
	return core.NewRawRow(header, values)
}

// seedStore registers records and moves them to the given status with an identifier.
func seedStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	ctx := context.Background()
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })

	seeds := []struct {
		id, identifier string
		status         core.RecordStatus
		row            core.RawRow
	}{
		{"r1", "Budget 2024", core.StatusSuccess, rawRow("title", "Budget 2024", "location", "Enterprise:Finance", "nodetype", "document", "action", "create")},
		{"r2", "Empty Row", core.StatusFailed, core.RawRow{}},
		{"r3", "No Action", core.StatusSuccess, rawRow("title", "No Action", "location", "Enterprise")},
		{"r4", "Still Pending", core.StatusPending, rawRow("title", "Still Pending", "location", "Enterprise", "nodetype", "folder", "action", "create")},
	}
	for i, s := range seeds {
		_, err := store.RegisterIfAbsent(ctx, []*core.Record{{ID: s.id, SourceRowIndex: i + 1, RawRow: s.row}})
		require.NoError(t, err)
		if s.status == core.StatusPending {
			continue
		}
		require.NoError(t, store.UpdateStatus(ctx, core.StatusUpdate{ID: s.id, Status: core.StatusProcessing}))
		require.NoError(t, store.UpdateStatus(ctx, core.StatusUpdate{ID: s.id, Status: s.status, Identifier: s.identifier}))
	}
	return store
}

func newMatcher(t *testing.T, store core.RecordStore) *Matcher {
	t.Helper()
	opts := transform.DefaultOptions()
	opts.Operator = "importer"
	m, err := NewMatcher(Config{Store: store, Transform: opts, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return m
}

func TestNewMatcher_RequiresStore(t *testing.T) {
	_, err := NewMatcher(Config{})
	assert.Error(t, err)
}

func TestMatch_Outcomes(t *testing.T) {
	store := seedStore(t)
	m := newMatcher(t, store)

	session, err := m.Match(context.Background(), []Entry{
		{Identifier: "Budget 2024", ErrorText: "Category not found"},
		{Identifier: "Nowhere", ErrorText: "Folder missing"},
		{Identifier: "Empty Row", ErrorText: "x"},
		{Identifier: "No Action", ErrorText: "y"},
	})
	require.NoError(t, err)
	require.Len(t, session.Candidates, 4)

	matched := session.Candidates[0]
	assert.Equal(t, OutcomeMatched, matched.Outcome)
	assert.Equal(t, Reimport, matched.Disposition)
	require.NotNil(t, matched.Record)
	assert.Equal(t, "r1", matched.Record.ID)
	require.NotNil(t, matched.Node)
	assert.Equal(t, "Budget 2024", matched.Node.Identifier())
	assert.Equal(t, core.ActionCreate, matched.Node.Action)

	unmatched := session.Candidates[1]
	assert.Equal(t, OutcomeUnmatched, unmatched.Outcome)
	assert.Equal(t, Skip, unmatched.Disposition)
	assert.Nil(t, unmatched.Record)
	assert.Nil(t, unmatched.Node)

	missing := session.Candidates[2]
	assert.Equal(t, OutcomeMissingData, missing.Outcome)
	assert.Equal(t, Skip, missing.Disposition)
	assert.NotEmpty(t, missing.Detail)

	regen := session.Candidates[3]
	assert.Equal(t, OutcomeRegenFailed, regen.Outcome)
	assert.Equal(t, Skip, regen.Disposition)
	assert.Contains(t, regen.Detail, "action")

	assert.Equal(t, Stats{Matched: 1, Unmatched: 1, MissingData: 1, RegenFailed: 1, Reimport: 1}, session.Stats())
}

func TestSession_SetDisposition(t *testing.T) {
	store := seedStore(t)
	session, err := newMatcher(t, store).Match(context.Background(), []Entry{
		{Identifier: "Budget 2024"},
		{Identifier: "Nowhere"},
	})
	require.NoError(t, err)

	require.NoError(t, session.SetDisposition(0, Skip))
	assert.Equal(t, Skip, session.Candidates[0].Disposition)
	require.NoError(t, session.SetDisposition(0, Reimport))
	assert.Equal(t, Reimport, session.Candidates[0].Disposition)

	err = session.SetDisposition(1, Reimport)
	assert.ErrorIs(t, err, ErrNoCandidate)
	assert.Error(t, session.SetDisposition(5, Skip))
	assert.Error(t, session.SetDisposition(0, "later"))
}

func TestSession_Export(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()
	session, err := newMatcher(t, store).Match(ctx, []Entry{
		{Identifier: "Budget 2024", ErrorText: "Category not found"},
		{Identifier: "Budget 2024", ErrorText: "Category not found"},
		{Identifier: "Nowhere"},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reprocess.xml")
	res, err := session.Export(ctx, path, oixml.CDATASelector{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Nodes)
	assert.Equal(t, 1, res.Store.Updated)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	nodes, err := oixml.ParseDocument(f)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Budget 2024", nodes[0].Identifier())

	rec, err := store.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusReprocessed, rec.Status)
	assert.Equal(t, path, rec.OutputBatchFile)
	assert.Equal(t, "Category not found", rec.ErrorMessage)
	assert.Contains(t, rec.OutputNode, "<title>Budget 2024</title>")
}

func TestSession_ExportRejectsPendingRecord(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	// Pending records carry no identifier, so the candidate is built directly.
	rec, err := store.GetByID(ctx, "r4")
	require.NoError(t, err)
	node := &core.Node{Kind: core.KindFolder, Action: core.ActionCreate, Fields: []core.Field{{Name: "title", Value: "Still Pending"}}}
	session := &Session{
		store:      store,
		logger:     testutil.NewTestLogger(t),
		Candidates: []*Candidate{{Entry: Entry{Identifier: "Still Pending"}, Outcome: OutcomeMatched, Record: rec, Node: node, Disposition: Reimport}},
	}

	res, err := session.Export(ctx, filepath.Join(t.TempDir(), "out.xml"), oixml.CDATASelector{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Store.Rejected)

	rec, err = store.GetByID(ctx, "r4")
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, rec.Status)
}

func TestSession_ExportNothing(t *testing.T) {
	store := seedStore(t)
	session, err := newMatcher(t, store).Match(context.Background(), []Entry{{Identifier: "Budget 2024"}})
	require.NoError(t, err)
	require.NoError(t, session.SetDisposition(0, Skip))

	path := filepath.Join(t.TempDir(), "reprocess.xml")
	_, err = session.Export(context.Background(), path, oixml.CDATASelector{})
	assert.ErrorIs(t, err, ErrNothingToExport)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
