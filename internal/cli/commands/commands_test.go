package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli/config"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/engine"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/mapping"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/testutil"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

var sampleCSV = testutil.CSV(
	"Title,Location,NodeType,Action,Cost Centre",
	"Budget 2024,Enterprise:Finance,document,create,CC-10",
	"Archive,Enterprise,folder,create,",
	"Broken,Enterprise,document,,CC-20",
)

const testConfigYAML = `
state_path: state.db
output_format: json
source:
  path: objects.csv
  identity: content
output:
  base: out/import.xml
  batch_size: 1
run:
  operator: importer
  path_report_file: paths.csv
`

// setupProject writes a config and source into a fresh working directory and
// loads the config the way the root command does.
func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	testutil.WriteFile(t, dir, "oigen.yaml", testConfigYAML)
	testutil.WriteFile(t, dir, "objects.csv", sampleCSV)
	_, err := config.LoadConfig("", nil)
	require.NoError(t, err)
	return dir
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	assert.Equal(t, "run [source.csv]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"source", "identity", "key-column", "output-base", "batch-size", "cdata", "location", "operator", "action", "node-kind", "force", "path-report", "progress"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestNewStatusCommand(t *testing.T) {
	cmd := NewStatusCommand()

	assert.Equal(t, "status", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("limit"))
	assert.NotNil(t, cmd.Flags().Lookup("width"))
}

func TestNewReprocessCommand(t *testing.T) {
	cmd := NewReprocessCommand()

	assert.Equal(t, "reprocess <failure-report>", cmd.Use)
	for _, flag := range []string{"out", "skip", "dry-run"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Error(t, cmd.Args(cmd, nil), "report path is required")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, NewVersionCommand("1.2.3", "2026-01-01", "abc123"))
	require.NoError(t, err)
	assert.Contains(t, out, "oigen v1.2.3")
	assert.Contains(t, out, "abc123")
}

func TestDefaultReprocessPath(t *testing.T) {
	assert.Equal(t, "out/batch_1_uncreated_reprocess.xml", defaultReprocessPath("out/batch_1_uncreated.xml"))
	assert.Equal(t, "report_reprocess.xml", defaultReprocessPath("report"))
}

func TestMappingEntries(t *testing.T) {
	m, err := mapping.New(map[string]mapping.Rule{
		"Cost Centre": {Disposition: mapping.Metadata, Target: "CostCentre", Categories: []string{"Finance"}},
	})
	require.NoError(t, err)

	entries := mappingEntries(m, []string{"Title", "Cost Centre", "Notes"})
	assert.Equal(t, []config.MappingEntry{
		{Column: "Title", Disposition: mapping.Standard, Target: "title"},
		{Column: "Cost Centre", Disposition: mapping.Metadata, Target: "CostCentre", Categories: []string{"Finance"}},
		{Column: "Notes", Disposition: mapping.Metadata, Target: "Notes"},
	}, entries)
}

func TestMappingCommand_PrintsYAML(t *testing.T) {
	setupProject(t)

	out, err := execute(t, NewMappingCommand())
	require.NoError(t, err)

	var doc struct {
		Mapping []struct {
			Column      string `yaml:"column"`
			Disposition string `yaml:"disposition"`
			Target      string `yaml:"target"`
		} `yaml:"mapping"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Mapping, 5)
	assert.Equal(t, "Title", doc.Mapping[0].Column)
	assert.Equal(t, "standard", doc.Mapping[0].Disposition)
	assert.Equal(t, "title", doc.Mapping[0].Target)
	assert.Equal(t, "metadata", doc.Mapping[4].Disposition)
}

func TestRunStatusReprocessClear(t *testing.T) {
	dir := setupProject(t)

	// run
	out, err := execute(t, NewRunCommand(), "--progress", "0")
	require.NoError(t, err)
	var report engine.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Batches, 2)
	assert.FileExists(t, filepath.Join(dir, "out", "import_1.xml"))

	// status
	out, err = execute(t, NewStatusCommand())
	require.NoError(t, err)
	var summary engine.StatusSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Counts[core.StatusSuccess])
	assert.Equal(t, 1, summary.Counts[core.StatusFailed])
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, 3, summary.Failed[0].Row)

	// reprocess
	report1 := testutil.WriteFile(t, dir, "import_1_uncreated.xml", strings.Join([]string{
		`<?xml version="1.0" encoding="utf-8"?>`,
		"<import>",
		"<!-- Error: Category not found -->",
		`<node type="document" action="create"><location>Enterprise:Finance</location><title>Budget 2024</title></node>`,
		"<!-- Error: Unknown parent -->",
		`<node type="folder" action="create"><location>Nowhere</location><title>Ghost</title></node>`,
		"</import>",
	}, "\n"))
	out, err = execute(t, NewReprocessCommand(), report1)
	require.NoError(t, err)
	var rep struct {
		Stats struct {
			Matched   int
			Unmatched int
			Reimport  int
		} `json:"stats"`
		Candidates []struct {
			Identifier string `json:"identifier"`
			Outcome    string `json:"outcome"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Stats.Matched)
	assert.Equal(t, 1, rep.Stats.Unmatched)
	require.Len(t, rep.Candidates, 2)
	assert.Equal(t, "matched", rep.Candidates[0].Outcome)
	assert.Equal(t, "unmatched", rep.Candidates[1].Outcome)

	regenerated := testutil.ReadFile(t, filepath.Join(dir, "import_1_uncreated_reprocess.xml"))
	assert.Contains(t, regenerated, "<title>Budget 2024</title>")
	assert.NotContains(t, regenerated, "Ghost")

	// clear
	_, err = execute(t, NewClearCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	_, err = execute(t, NewClearCommand(), "--yes")
	require.NoError(t, err)
	out, err = execute(t, NewStatusCommand())
	require.NoError(t, err)
	summary = engine.StatusSummary{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Zero(t, summary.Total)
}

func TestReprocess_DryRunWritesNothing(t *testing.T) {
	dir := setupProject(t)
	_, err := execute(t, NewRunCommand(), "--progress", "0")
	require.NoError(t, err)

	report := testutil.WriteFile(t, dir, "uncreated.xml",
		"<!-- Error: x -->\n<node type=\"folder\" action=\"create\"><location>Enterprise</location><title>Archive</title></node>\n")
	_, err = execute(t, NewReprocessCommand(), report, "--dry-run")
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "uncreated_reprocess.xml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReprocess_SkipLeavesNothingToExport(t *testing.T) {
	dir := setupProject(t)
	_, err := execute(t, NewRunCommand(), "--progress", "0")
	require.NoError(t, err)

	report := testutil.WriteFile(t, dir, "uncreated.xml",
		"<!-- Error: x -->\n<node type=\"folder\" action=\"create\"><location>Enterprise</location><title>Archive</title></node>\n")
	_, err = execute(t, NewReprocessCommand(), report, "--skip", "Archive")
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "uncreated_reprocess.xml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_MissingSource(t *testing.T) {
	dir := setupProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "objects.csv")))

	_, err := execute(t, NewRunCommand(), "--progress", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run failed")
}
