// Package transform turns one raw source row into an output node.
//
// The Engine is pure apart from the document-number counter it is handed:
// the same row, rules and options always produce the same node, and every
// failure (including a panic) comes back as a *core.RowProcessingError in
// the Result rather than aborting the caller.
package transform

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/mapping"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// canonicalOrder is the emission order of well-known standard fields.
// Remaining fields follow in lexicographic order.
var canonicalOrder = []string{
	"location", "title", "description", "created", "createby",
	"version", "file", "mimetype", "docnum", "createdby",
}

// Cleanse rule names reported in CleanseEvent.Rule.
const (
	RuleTitleColons    = "title_colons"
	RuleLocationColons = "location_colons"
	RuleFileName       = "file_name"
	RuleSpecialChars   = "special_chars"
)

// Rename is a file path altered by normalization.
type Rename struct {
	Original string
	New      string
}

// CleanseEvent records one value changed by text cleansing.
type CleanseEvent struct {
	Row    int
	Field  string
	Rule   string
	Before string
	After  string
}

// Result is the outcome of transforming one row. Exactly one of Node and Err
// is set.
type Result struct {
	Node    *core.Node
	Err     error
	Renames []Rename
	Events  []CleanseEvent
}

// Engine transforms rows with a fixed rule set and options.
type Engine struct {
	mapper  *mapping.Mapper
	opts    Options
	counter *DocCounter
	special []replacement
}

// New creates an Engine. A nil counter gets a fresh one seeded at
// DefaultDocNumberBase.
func New(mapper *mapping.Mapper, opts Options, counter *DocCounter) *Engine {
	if counter == nil {
		counter = NewDocCounter(DefaultDocNumberBase)
	}
	if opts.Cleansing.LocationSegments < 1 {
		opts.Cleansing.LocationSegments = 1
	}
	return &Engine{
		mapper:  mapper,
		opts:    opts,
		counter: counter,
		special: specialCharPlan(opts.Cleansing.SpecialChars),
	}
}

// Counter returns the document-number counter used by the engine.
func (e *Engine) Counter() *DocCounter {
	return e.counter
}

// rowState accumulates one row's fields while the pipeline runs.
type rowState struct {
	row    int
	std    map[string]string
	cats   []core.Category
	result Result
}

func (s *rowState) has(key string) bool {
	_, ok := s.std[key]
	return ok
}

// attach sets an attribute on a category, creating the category on first use.
// Category and attribute order follow first assignment.
func (s *rowState) attach(category, name, value string) {
	for i := range s.cats {
		if s.cats[i].Name != category {
			continue
		}
		for j := range s.cats[i].Attributes {
			if s.cats[i].Attributes[j].Name == name {
				s.cats[i].Attributes[j].Value = value
				return
			}
		}
		s.cats[i].Attributes = append(s.cats[i].Attributes, core.Attribute{Name: name, Value: value})
		return
	}
	s.cats = append(s.cats, core.Category{Name: category, Attributes: []core.Attribute{{Name: name, Value: value}}})
}

func (s *rowState) event(field, rule, before, after string) {
	s.result.Events = append(s.result.Events, CleanseEvent{Row: s.row, Field: field, Rule: rule, Before: before, After: after})
}

// Transform converts one row into a node or a row-scoped error.
func (e *Engine) Transform(rowIndex int, row core.RawRow) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &core.RowProcessingError{Row: rowIndex, Err: fmt.Errorf("panic: %v", r)}}
		}
	}()

	s := &rowState{row: rowIndex, std: make(map[string]string)}
	e.assign(s, row)
	e.applyDefaults(s)
	e.normalizeFile(s)

	action := strings.ToLower(strings.TrimSpace(s.std["action"]))
	if core.Action(action) == core.ActionUpdateMetadata {
		action = string(core.ActionUpdate)
		delete(s.std, "file")
		delete(s.std, "filepath")
	}
	kind := strings.ToLower(strings.TrimSpace(s.std["nodetype"]))

	switch core.Action(action) {
	case core.ActionDelete, core.ActionAddVersion, core.ActionUpdate:
	default:
		if v := strings.TrimSpace(s.std["version"]); laterVersion(v) {
			s.std["version"] = v
			action = string(core.ActionAddVersion)
		}
	}

	if kind == core.KindDocument && strings.TrimSpace(s.std["docnum"]) == "" {
		switch core.Action(action) {
		case core.ActionDelete, core.ActionUpdate:
		default:
			s.std["docnum"] = strconv.FormatInt(e.counter.Next(), 10)
		}
	}

	e.cleanse(s)

	var missing []string
	if action == "" {
		missing = append(missing, "action")
	}
	if kind == "" {
		missing = append(missing, "nodetype")
	}
	if len(missing) > 0 {
		return Result{Err: &core.RowProcessingError{
			Row: rowIndex,
			Err: &core.MissingRequiredFieldError{Row: rowIndex, Fields: missing},
		}}
	}

	s.result.Node = e.build(s, kind, core.Action(action))
	return s.result
}

// assign routes each column value according to its rule.
func (e *Engine) assign(s *rowState, row core.RawRow) {
	row.Each(func(column, value string) {
		rule, _ := e.mapper.Resolve(column)
		value = strings.TrimSpace(value)

		switch rule.Disposition {
		case mapping.Ignore:
			return
		case mapping.Standard:
			s.std[rule.Target] = value
			for _, c := range rule.Categories {
				s.attach(c, rule.Target, value)
			}
		case mapping.Metadata:
			cats := rule.Categories
			if len(cats) == 0 {
				cats = []string{e.opts.DefaultCategory}
			}
			for _, c := range cats {
				if c != "" {
					s.attach(c, rule.Target, value)
				}
			}
		}
	})
}

func (e *Engine) applyDefaults(s *rowState) {
	if e.opts.DefaultLocation != "" && !s.has("location") {
		s.std["location"] = e.opts.DefaultLocation
	}
	if !e.opts.UseSourceCreatedBy || !s.has("createdby") {
		s.std["createdby"] = e.opts.Operator
	}
	if e.opts.Action != "" {
		s.std["action"] = string(e.opts.Action)
	}
	if e.opts.NodeKind != "" {
		s.std["nodetype"] = e.opts.NodeKind
	}
}

// normalizeFile canonicalizes the file path, strips colons from its base name
// and infers the MIME type from the extension.
func (e *Engine) normalizeFile(s *rowState) {
	key := "file"
	if strings.TrimSpace(s.std[key]) == "" {
		key = "filepath"
	}
	original := s.std[key]
	if strings.TrimSpace(original) == "" {
		e.defaultMIME(s)
		return
	}

	standardized := strings.ReplaceAll(original, `\`, "/")
	base := path.Base(standardized)

	if e.opts.NormalizePaths {
		dir, name := path.Split(path.Clean(standardized))
		base = strings.ReplaceAll(name, ":", e.opts.Cleansing.FileNameReplacement)
		if base != name {
			s.event(key, RuleFileName, name, base)
		}

		var normalized string
		switch dir {
		case "", "./":
			normalized = base
		case "/":
			normalized = "/" + base
		default:
			normalized = strings.TrimSuffix(dir, "/") + "/" + base
		}

		if normalized != standardized {
			s.result.Renames = append(s.result.Renames, Rename{Original: original, New: normalized})
		}
		s.std[key] = normalized
	}

	if t, ok := MIMEType(path.Ext(base)); ok {
		s.std["mimetype"] = t
		return
	}
	e.defaultMIME(s)
}

func (e *Engine) defaultMIME(s *rowState) {
	if strings.EqualFold(strings.TrimSpace(s.std["nodetype"]), core.KindDocument) && strings.TrimSpace(s.std["mimetype"]) == "" {
		s.std["mimetype"] = DefaultMIMEType
	}
}

// laterVersion reports whether v is an ASCII integer greater than 1.
func laterVersion(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
	}
	digits := strings.TrimLeft(v, "0")
	return len(digits) > 1 || (len(digits) == 1 && digits[0] > '1')
}

func (e *Engine) cleanse(s *rowState) {
	c := e.opts.Cleansing

	if title, ok := s.std["title"]; ok && c.StripTitleColons {
		if cleaned := strings.ReplaceAll(title, ":", c.TitleReplacement); cleaned != title {
			s.std["title"] = cleaned
			s.event("title", RuleTitleColons, title, cleaned)
		}
	}

	if loc, ok := s.std["location"]; ok && c.StripLocationColons {
		if cleaned := cleanLocation(loc, c.LocationSegments, c.LocationReplacement); cleaned != loc {
			s.std["location"] = cleaned
			s.event("location", RuleLocationColons, loc, cleaned)
		}
	}
}

// cleanLocation keeps the first keep ":"-delimited segments as hierarchy and
// removes the colons inside the final segment made of everything after them.
func cleanLocation(loc string, keep int, repl string) string {
	parts := strings.Split(loc, ":")
	if len(parts) <= keep {
		return loc
	}
	return strings.Join(parts[:keep], ":") + ":" + strings.Join(parts[keep:], repl)
}

// emit applies the special-character map to a value about to be written.
func (e *Engine) emit(s *rowState, field, value string) string {
	if !e.opts.Cleansing.ApplySpecialChars || len(e.special) == 0 {
		return value
	}
	out := applyPlan(e.special, value)
	if out != value {
		s.event(field, RuleSpecialChars, value, out)
	}
	return out
}

func (e *Engine) build(s *rowState, kind string, action core.Action) *core.Node {
	node := &core.Node{Kind: kind, Action: action}

	if action.IsMinimal() {
		if loc, ok := s.std["location"]; ok {
			node.Fields = append(node.Fields, core.Field{Name: "location", Value: e.emit(s, "location", loc), Type: "0"})
		}
		if action == core.ActionAddVersion {
			file := s.std["file"]
			if file == "" {
				file = s.std["filepath"]
			}
			if file != "" {
				node.Fields = append(node.Fields, core.Field{Name: "file", Value: e.emit(s, "file", file), Type: "0"})
			}
			if kind == core.KindDocument {
				mime := s.std["mimetype"]
				if mime == "" {
					mime = DefaultMIMEType
				}
				node.Fields = append(node.Fields, core.Field{Name: "mimetype", Value: mime})
			}
			if v, ok := s.std["version"]; ok {
				node.Fields = append(node.Fields, core.Field{Name: "version", Value: v})
			}
		}
		return node
	}

	if kind == core.KindDocument && s.std["mimetype"] == "" {
		s.std["mimetype"] = DefaultMIMEType
	}

	for _, key := range canonicalOrder {
		v, ok := s.std[key]
		if !ok {
			continue
		}
		f := core.Field{Name: key, Value: e.emit(s, key, v)}
		if key == "createdby" {
			f.Type = "0"
		}
		node.Fields = append(node.Fields, f)
	}

	extra := make([]string, 0, len(s.std))
	for k := range s.std {
		if k == "action" || k == "nodetype" || slices.Contains(canonicalOrder, k) {
			continue
		}
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		node.Fields = append(node.Fields, core.Field{Name: k, Value: e.emit(s, k, s.std[k])})
	}

	for _, cat := range s.cats {
		out := core.Category{Name: cat.Name, Attributes: make([]core.Attribute, 0, len(cat.Attributes))}
		for _, a := range cat.Attributes {
			field := cat.Name + "/" + a.Name
			out.Attributes = append(out.Attributes, core.Attribute{
				Name:  e.emit(s, field, a.Name),
				Value: e.emit(s, field, a.Value),
			})
		}
		node.Categories = append(node.Categories, out)
	}
	return node
}
