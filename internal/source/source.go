// Package source reads the tabular source file into raw rows.
package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// sniffSample is how many bytes are inspected when detecting the delimiter.
const sniffSample = 2048

// Delimiters tried by auto-detection, in order of preference.
var Delimiters = []rune{',', ';', '\t', '|'}

// ErrNoHeader is returned when the source has no usable header row.
var ErrNoHeader = errors.New("no header row")

// Options control how the source is parsed. Zero values mean auto-detect
// the delimiter and use '"' for quoting.
type Options struct {
	Delimiter rune
	Quote     rune
}

// Row is one data row with its 1-based position among data rows.
type Row struct {
	Index int
	Data  core.RawRow
}

// Table is a fully read source.
type Table struct {
	Path      string
	Header    []string
	Rows      []Row
	Delimiter rune
	Encoding  string
	Warnings  []string
}

// Read reads the whole file at path.
func Read(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.SourceReadError{Path: path, Err: err}
	}
	defer f.Close()

	t, err := ReadFrom(f, opts)
	if err != nil {
		var srcErr *core.SourceReadError
		if errors.As(err, &srcErr) {
			srcErr.Path = path
		}
		return nil, err
	}
	t.Path = path
	return t, nil
}

// ReadFrom reads a whole table from r.
func ReadFrom(r io.Reader, opts Options) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &core.SourceReadError{Err: err}
	}

	text, enc, err := decode(raw)
	if err != nil {
		return nil, &core.SourceReadError{Err: err}
	}

	t := &Table{Encoding: enc, Delimiter: opts.Delimiter}
	if t.Delimiter == 0 {
		t.Delimiter = Sniff(text)
	}
	quote := opts.Quote
	if quote == 0 {
		quote = '"'
	}
	if quote == t.Delimiter {
		return nil, &core.SourceReadError{Err: fmt.Errorf("quote and delimiter are both %q", quote)}
	}

	swap := quoteSwapper(quote)
	cr := csv.NewReader(strings.NewReader(swap(text)))
	cr.Comma = t.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = t.Delimiter != '\t'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &core.SourceReadError{Err: ErrNoHeader}
	}
	if err != nil {
		return nil, &core.SourceReadError{Err: fmt.Errorf("failed to read header: %w", err)}
	}
	blank := true
	for i := range header {
		header[i] = strings.TrimSpace(swap(header[i]))
		if header[i] != "" {
			blank = false
		}
	}
	if blank {
		return nil, &core.SourceReadError{Err: ErrNoHeader}
	}
	t.Header = header

	for n := 1; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &core.SourceReadError{Err: fmt.Errorf("failed to read row %d: %w", n, err)}
		}
		switch {
		case len(rec) < len(header):
			t.Warnings = append(t.Warnings, fmt.Sprintf("row %d has %d fields, expected %d; missing values are empty", n, len(rec), len(header)))
		case len(rec) > len(header):
			t.Warnings = append(t.Warnings, fmt.Sprintf("row %d has %d fields, expected %d; extra values dropped", n, len(rec), len(header)))
		}
		for i := range rec {
			rec[i] = swap(rec[i])
		}
		t.Rows = append(t.Rows, Row{Index: n, Data: core.NewRawRow(header, rec)})
	}
	return t, nil
}

// decode converts raw bytes to UTF-8 text. A byte order mark selects UTF-8
// or UTF-16; otherwise valid UTF-8 is used as is and anything else is read
// as Windows-1252.
func decode(raw []byte) (string, string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), "utf-8-bom", nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}), bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
		if err != nil {
			return "", "", fmt.Errorf("failed to decode UTF-16: %w", err)
		}
		return string(out), "utf-16", nil
	case utf8.Valid(raw):
		return string(raw), "utf-8", nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode Windows-1252: %w", err)
	}
	return string(out), "windows-1252", nil
}

// quoteSwapper exchanges the configured quote character with '"' so the
// standard CSV reader can parse it. Applying it twice is the identity.
func quoteSwapper(quote rune) func(string) string {
	if quote == '"' {
		return func(s string) string { return s }
	}
	r := strings.NewReplacer(`"`, string(quote), string(quote), `"`)
	return r.Replace
}

// Sniff guesses the delimiter from the first lines of text. A delimiter that
// appears the same non-zero number of times on every sampled line wins;
// otherwise the most frequent one. Comma is the fallback.
func Sniff(text string) rune {
	sample := text
	if len(sample) > sniffSample {
		sample = sample[:sniffSample]
		if i := strings.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i]
		}
	}

	var lines []string
	for _, l := range strings.Split(sample, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestScore := ',', 0
	for _, d := range Delimiters {
		counts := make([]int, len(lines))
		total := 0
		for i, l := range lines {
			counts[i] = countUnquoted(l, d)
			total += counts[i]
		}
		if total == 0 {
			continue
		}
		score := total
		if consistent(counts) {
			score += 1 << 20
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func countUnquoted(line string, d rune) int {
	n, inQuote := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == d && !inQuote:
			n++
		}
	}
	return n
}

func consistent(counts []int) bool {
	for _, c := range counts {
		if c == 0 || c != counts[0] {
			return false
		}
	}
	return true
}
