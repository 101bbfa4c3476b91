// Package mapping resolves source columns to mapping rules.
//
// Every column resolves to exactly one Rule. Explicit rules win; otherwise a
// default is synthesized from the recognized standard-field vocabulary.
package mapping

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// Disposition says what happens to a column's value.
type Disposition int

// Dispositions.
const (
	Metadata Disposition = iota
	Standard
	Ignore
)

var dispositionNames = map[Disposition]string{
	Metadata: "metadata",
	Standard: "standard",
	Ignore:   "ignore",
}

func (d Disposition) String() string {
	if name, ok := dispositionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Disposition(%d)", int(d))
}

// ParseDisposition parses a disposition name case-insensitively.
func ParseDisposition(s string) (Disposition, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d, name := range dispositionNames {
		if name == key {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown disposition %q (want standard, metadata or ignore)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d Disposition) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Disposition) UnmarshalText(text []byte) error {
	parsed, err := ParseDisposition(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// StandardFields is the recognized standard-field vocabulary.
var StandardFields = []string{
	"nodetype", "title", "description", "location", "created", "modified",
	"createdby", "createby", "action", "file", "category", "version",
	"docnum", "modifiedby",
}

// IsStandardField reports whether name belongs to the standard vocabulary.
func IsStandardField(name string) bool {
	return slices.Contains(StandardFields, core.NormalizeColumn(name))
}

// Rule is the mapping for one source column.
type Rule struct {
	Disposition Disposition `koanf:"disposition" yaml:"disposition"`
	Target      string      `koanf:"target" yaml:"target,omitempty"`
	Categories  []string    `koanf:"categories" yaml:"categories,omitempty,flow"`
}

// Validate checks the rule for the given column.
func (r Rule) Validate(column string) error {
	if _, ok := dispositionNames[r.Disposition]; !ok {
		return &core.MappingError{Column: column, Message: fmt.Sprintf("invalid disposition %d", int(r.Disposition))}
	}
	if r.Disposition != Ignore && strings.TrimSpace(r.Target) == "" {
		return &core.MappingError{Column: column, Message: "target field is required unless the column is ignored"}
	}
	if r.Disposition == Standard && !oixml.IsElementName(strings.TrimSpace(r.Target)) {
		return &core.MappingError{Column: column, Message: fmt.Sprintf("standard target %q is not a valid element name", r.Target)}
	}
	for _, c := range r.Categories {
		if strings.TrimSpace(c) == "" {
			return &core.MappingError{Column: column, Message: "empty category name"}
		}
	}
	return nil
}

// normalize trims the rule and lower-cases recognized standard targets so
// "Title" and "title" land on the same field.
func (r Rule) normalize() Rule {
	out := Rule{Disposition: r.Disposition, Target: strings.TrimSpace(r.Target)}
	if out.Disposition == Standard && IsStandardField(out.Target) {
		out.Target = strings.ToLower(out.Target)
	}
	for _, c := range r.Categories {
		if c = strings.TrimSpace(c); c != "" && !slices.Contains(out.Categories, c) {
			out.Categories = append(out.Categories, c)
		}
	}
	return out
}

// DefaultRule synthesizes the rule for a column with no explicit mapping.
func DefaultRule(column string) Rule {
	target := strings.TrimSpace(column)
	if IsStandardField(target) {
		return Rule{Disposition: Standard, Target: strings.ToLower(target)}
	}
	return Rule{Disposition: Metadata, Target: target}
}

// DefaultRules synthesizes rules for every column of a header, keyed by the
// normalized column name.
func DefaultRules(header []string) map[string]Rule {
	rules := make(map[string]Rule, len(header))
	for _, col := range header {
		key := core.NormalizeColumn(col)
		if key == "" {
			continue
		}
		if _, ok := rules[key]; !ok {
			rules[key] = DefaultRule(col)
		}
	}
	return rules
}

// Mapper resolves columns to rules. It is read-only after construction and
// safe for concurrent use.
type Mapper struct {
	rules map[string]Rule
}

// New validates the explicit rules and builds a Mapper. Column keys are
// matched case-insensitively after trimming.
func New(rules map[string]Rule) (*Mapper, error) {
	m := &Mapper{rules: make(map[string]Rule, len(rules))}
	for col, r := range rules {
		key := core.NormalizeColumn(col)
		if key == "" {
			return nil, &core.MappingError{Column: col, Message: "empty column name"}
		}
		if err := r.Validate(col); err != nil {
			return nil, err
		}
		if _, dup := m.rules[key]; dup {
			return nil, &core.MappingError{Column: col, Message: "duplicate rule for column"}
		}
		m.rules[key] = r.normalize()
	}
	return m, nil
}

// Resolve returns the rule for a column and whether it was explicitly configured.
func (m *Mapper) Resolve(column string) (Rule, bool) {
	if m != nil {
		if r, ok := m.rules[core.NormalizeColumn(column)]; ok {
			return r, true
		}
	}
	return DefaultRule(column), false
}

// Rules returns the effective rule set for a header, explicit rules first
// and synthesized defaults for the rest. Keys are normalized column names.
func (m *Mapper) Rules(header []string) map[string]Rule {
	out := DefaultRules(header)
	if m != nil {
		for k, r := range m.rules {
			out[k] = r
		}
	}
	return out
}

// Len returns the number of explicit rules.
func (m *Mapper) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}
