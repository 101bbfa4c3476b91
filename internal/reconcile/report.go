// Package reconcile matches entries of an ingestion failure report back to
// stored records, regenerates candidate nodes from the stored source rows and
// re-emits a selected subset as a new import document.
package reconcile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// UnknownError is the error text of a node with no preceding annotation.
const UnknownError = "Unknown error"

// maxLine bounds a single report line.
const maxLine = 16 << 20

var errorAnnotation = regexp.MustCompile(`^<!--\s*Error:(.*?)-->`)

// Entry is one failed node from a failure report.
type Entry struct {
	Identifier string
	ErrorText  string
	// Line is the 1-based line the node starts on
	Line int
}

// ParseFailureReportFile parses the failure report at path.
func ParseFailureReportFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open failure report: %w", err)
	}
	defer f.Close()
	return ParseFailureReport(f)
}

// ParseFailureReport reads error annotations and the node fragments that
// follow them. Nodes without a title or location are skipped. A fragment that
// is not well-formed fails the whole parse with a *core.ReconciliationParseError.
func ParseFailureReport(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var (
		entries   []Entry
		errText   string
		fragment  []string
		inNode    bool
		startLine int
		line      int
	)

	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}

		if !inNode {
			if m := errorAnnotation.FindStringSubmatch(text); m != nil {
				errText = strings.TrimSpace(m[1])
				continue
			}
			if !isNodeStart(text) {
				continue
			}
			inNode = true
			startLine = line
			fragment = fragment[:0]
		}

		fragment = append(fragment, text)
		if !strings.HasSuffix(text, "</node>") {
			continue
		}
		inNode = false

		node, err := oixml.ParseNode(strings.Join(fragment, "\n"))
		if err != nil {
			return nil, &core.ReconciliationParseError{Line: startLine, Err: err}
		}

		msg := errText
		if msg == "" {
			msg = UnknownError
		}
		errText = ""

		id := node.Identifier()
		if id == "" {
			continue
		}
		entries = append(entries, Entry{Identifier: id, ErrorText: msg, Line: startLine})
	}
	if err := sc.Err(); err != nil {
		return nil, &core.ReconciliationParseError{Line: line, Err: err}
	}
	if inNode {
		return nil, &core.ReconciliationParseError{Line: startLine, Err: errors.New("unterminated node")}
	}
	return entries, nil
}

func isNodeStart(line string) bool {
	rest, ok := strings.CutPrefix(line, "<node")
	return ok && (rest == "" || strings.ContainsRune(" \t>/", rune(rest[0])))
}
