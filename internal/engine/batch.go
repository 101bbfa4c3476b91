package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/transform"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

func batchName(stem string, n int, ext string) string {
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}

// writeBatch writes the current batch to the next numbered file and amends
// the staged updates with its path. When the write fails the batch's rows
// are demoted to failed and the error is returned.
func (r *run) writeBatch() error {
	if len(r.batch) == 0 {
		return nil
	}
	e := r.e
	path := e.BatchPath(len(r.report.Batches) + 1)

	nodes := make([]*core.Node, len(r.batch))
	for i, s := range r.batch {
		nodes[i] = s.node
	}

	if err := oixml.WriteFile(path, nodes, e.cdata); err != nil {
		e.logger.Error("failed to write batch", "path", path, "nodes", len(nodes), "error", err)
		for _, s := range r.batch {
			u := &r.updates[s.update]
			u.Status = core.StatusFailed
			u.ErrorMessage = fmt.Sprintf("batch write failed: %v", err)
			u.OutputNode = ""
			u.OutputBatchFile = ""
			r.report.Processed--
			r.report.Failed++
			r.report.Kinds[s.node.Kind]--
			if r.report.Kinds[s.node.Kind] == 0 {
				delete(r.report.Kinds, s.node.Kind)
			}
		}
		r.batch = r.batch[:0]
		return fmt.Errorf("failed to write batch %s: %w", path, err)
	}

	for _, s := range r.batch {
		r.updates[s.update].OutputBatchFile = path
	}
	r.report.Batches = append(r.report.Batches, path)
	e.logger.Info("batch written", "path", path, "nodes", len(nodes))
	r.batch = r.batch[:0]
	return nil
}

// WriteRenameScript writes a PowerShell script renaming every original file
// to its normalized base name and returns the script path.
func WriteRenameScript(dir string, renames []transform.Rename) (string, error) {
	var sb strings.Builder
	sb.WriteString("# PowerShell script to rename files whose names were normalized\n")
	for _, rn := range renames {
		fmt.Fprintf(&sb, "Rename-Item -Path \"%s\" -NewName \"%s\" -ErrorAction SilentlyContinue\n",
			psQuote(rn.Original), psQuote(filepath.Base(filepath.FromSlash(rn.New))))
	}

	path := filepath.Join(dir, RenameScriptName)
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write rename script: %w", err)
	}
	return path, nil
}

// psQuote escapes a value for a double-quoted PowerShell string.
func psQuote(s string) string {
	return strings.ReplaceAll(s, `"`, "`\"")
}
