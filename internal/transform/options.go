package transform

import (
	"sort"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// DefaultLocationSegments is how many leading ":"-delimited location segments
// are left untouched by location colon cleaning.
const DefaultLocationSegments = 3

// DefaultSpecialChars is the literal substitution map applied to emitted values.
func DefaultSpecialChars() map[string]string {
	return map[string]string{
		"&": "and",
		"’": "'",
		"“": `"`,
		"”": `"`,
	}
}

// Options are the run-wide defaults and overrides.
type Options struct {
	DefaultLocation    string
	DefaultCategory    string
	Operator           string
	UseSourceCreatedBy bool

	// Action and NodeKind override row values when non-empty.
	Action   core.Action
	NodeKind string

	NormalizePaths bool
	Cleansing      Cleansing
}

// Cleansing configures text cleansing. Each rule is independently toggleable.
type Cleansing struct {
	StripTitleColons bool
	TitleReplacement string

	StripLocationColons bool
	LocationReplacement string
	LocationSegments    int

	ApplySpecialChars bool
	SpecialChars      map[string]string

	FileNameReplacement string
}

// DefaultOptions returns Options with every cleansing rule enabled.
func DefaultOptions() Options {
	return Options{
		NormalizePaths: true,
		Cleansing: Cleansing{
			StripTitleColons:    true,
			StripLocationColons: true,
			LocationSegments:    DefaultLocationSegments,
			ApplySpecialChars:   true,
			SpecialChars:        DefaultSpecialChars(),
		},
	}
}

// replacement is one literal substitution.
type replacement struct {
	old, new string
}

// specialCharPlan orders the substitution map so application is
// deterministic: longer keys first, then lexicographic.
func specialCharPlan(m map[string]string) []replacement {
	plan := make([]replacement, 0, len(m))
	for k, v := range m {
		if k == "" {
			continue
		}
		plan = append(plan, replacement{old: k, new: v})
	}
	sort.Slice(plan, func(i, j int) bool {
		if len(plan[i].old) != len(plan[j].old) {
			return len(plan[i].old) > len(plan[j].old)
		}
		return plan[i].old < plan[j].old
	})
	return plan
}

func applyPlan(plan []replacement, s string) string {
	for _, r := range plan {
		s = strings.ReplaceAll(s, r.old, r.new)
	}
	return s
}
