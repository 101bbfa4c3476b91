// Package main provides tests for the oigen CLI.
package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli/config"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/testutil"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	config.ResetConfig()
	cmd := cli.NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "oigen v"+cli.Version)
}

func TestRunAndStatus(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(config.ResetConfig)
	testutil.WriteFile(t, dir, "objects.csv", testutil.CSV(
		"title,location,nodetype,action",
		"Budget 2024,Enterprise:Finance,document,create",
		"Minutes,Enterprise:Board,document,create",
		"Archive,Enterprise,folder,create",
	))

	out, _, err := runCLI(t, "run", "objects.csv",
		"--state", "state/oigen.db",
		"--output-base", "out/batch.xml",
		"--batch-size", "2",
		"--identity", "content",
		"--operator", "importer",
		"--progress", "0",
		"-o", "json",
	)
	require.NoError(t, err)

	var report struct {
		Total     int
		Processed int
		Batches   []string
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Processed)
	assert.Len(t, report.Batches, 2)
	assert.FileExists(t, filepath.Join(dir, "out", "batch_1.xml"))
	assert.FileExists(t, filepath.Join(dir, "out", "batch_2.xml"))
	assert.FileExists(t, filepath.Join(dir, "state", "oigen.db"))

	// A second run with the same stable identity has nothing left to do.
	out, _, err = runCLI(t, "run", "objects.csv", "--state", "state/oigen.db", "--output-base", "out/batch.xml",
		"--identity", "content", "--progress", "0", "-o", "json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 0, report.Processed)

	out, _, err = runCLI(t, "status", "--state", "state/oigen.db", "-o", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "## Processing Status")
	assert.Contains(t, out, "| Success | 3 |")
	assert.Contains(t, out, "| Document | 2 |")
}

func TestConfigFileAndInvalidFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(config.ResetConfig)
	testutil.WriteFile(t, dir, "custom.yaml", "output:\n  batch_size: 0\n")

	_, _, err := runCLI(t, "status", "--config", "custom.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")

	_, _, err = runCLI(t, "status", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output_format")
}

func TestVerboseLogsToStderr(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(config.ResetConfig)
	testutil.WriteFile(t, dir, "oigen.yaml", "state_path: s.db\n")

	_, errOut, err := runCLI(t, "status", "-v")
	require.NoError(t, err)
	assert.True(t, strings.Contains(errOut, "using config file"), "stderr: %s", errOut)
}
