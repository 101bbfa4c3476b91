// Package oixml reads and writes Object Importer documents.
//
// A document is an XML declaration followed by one <import> root holding one
// <node> element per line. Writing is byte-for-byte deterministic, so a
// parsed document re-serializes to the same text given the same CDATA
// selection.
package oixml

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// Header is the XML declaration written at the top of every document.
const Header = `<?xml version="1.0" encoding="utf-8"?>`

// CDATASelector chooses which element texts are wrapped in CDATA sections.
// Elements are matched by name: standard fields by field name, category
// attributes by "attribute".
type CDATASelector struct {
	all    bool
	fields map[string]bool
}

// ParseCDATASelector parses a comma-separated list of element names.
// "*" selects every element.
func ParseCDATASelector(s string) CDATASelector {
	sel := CDATASelector{fields: make(map[string]bool)}
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "":
		case "*":
			sel.all = true
		default:
			sel.fields[f] = true
		}
	}
	return sel
}

// Wraps reports whether text of the named element is CDATA-wrapped.
func (s CDATASelector) Wraps(element string) bool {
	return s.all || s.fields[strings.ToLower(element)]
}

// String returns the selector in its parseable form.
func (s CDATASelector) String() string {
	if s.all {
		return "*"
	}
	names := make([]string, 0, len(s.fields))
	for f := range s.fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\n", "&#xA;", "\r", "&#xD;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;", "\n", "&#xA;", "\r", "&#xD;", "\t", "&#x9;")
)

// xmlChars drops runes that XML 1.0 does not allow in character data.
func xmlChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		}
		return r
	}, s)
}

func writeText(sb *strings.Builder, element, text string, sel CDATASelector) {
	text = xmlChars(text)
	if text == "" {
		return
	}
	// line breaks stay escaped so every node occupies exactly one line
	if sel.Wraps(element) && !strings.ContainsAny(text, "\r\n") {
		sb.WriteString("<![CDATA[")
		sb.WriteString(strings.ReplaceAll(text, "]]>", "]]]]><![CDATA[>"))
		sb.WriteString("]]>")
		return
	}
	sb.WriteString(textEscaper.Replace(text))
}

func writeAttr(sb *strings.Builder, name, value string) {
	sb.WriteByte(' ')
	sb.WriteString(name)
	sb.WriteString(`="`)
	sb.WriteString(attrEscaper.Replace(xmlChars(value)))
	sb.WriteByte('"')
}

// MarshalNode renders a single node element on one line.
func MarshalNode(n *core.Node, sel CDATASelector) string {
	var sb strings.Builder
	sb.WriteString("<node")
	writeAttr(&sb, "type", n.Kind)
	writeAttr(&sb, "action", string(n.Action))
	sb.WriteByte('>')

	for _, f := range n.Fields {
		sb.WriteByte('<')
		sb.WriteString(f.Name)
		if f.Type != "" {
			writeAttr(&sb, "type", f.Type)
		}
		sb.WriteByte('>')
		writeText(&sb, f.Name, f.Value, sel)
		sb.WriteString("</")
		sb.WriteString(f.Name)
		sb.WriteByte('>')
	}

	for _, c := range n.Categories {
		sb.WriteString("<category")
		writeAttr(&sb, "name", c.Name)
		sb.WriteByte('>')
		for _, a := range c.Attributes {
			sb.WriteString("<attribute")
			writeAttr(&sb, "name", a.Name)
			sb.WriteByte('>')
			writeText(&sb, "attribute", a.Value, sel)
			sb.WriteString("</attribute>")
		}
		sb.WriteString("</category>")
	}

	sb.WriteString("</node>")
	return sb.String()
}

// WriteDocument writes nodes in order under a single import root.
func WriteDocument(w io.Writer, nodes []*core.Node, sel CDATASelector) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Header + "\n<import>\n"); err != nil {
		return err
	}
	for _, n := range nodes {
		if err := validateNames(n); err != nil {
			return err
		}
		if _, err := bw.WriteString(MarshalNode(n, sel) + "\n"); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("</import>\n"); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFile writes a document to path atomically: the content goes to a
// temporary file in the same directory which is then renamed into place.
func WriteFile(path string, nodes []*core.Node, sel CDATASelector) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = WriteDocument(tmp, nodes, sel); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

// validateNames rejects field names that would produce malformed XML.
func validateNames(n *core.Node) error {
	for _, f := range n.Fields {
		if !IsElementName(f.Name) {
			return fmt.Errorf("invalid element name %q", f.Name)
		}
	}
	return nil
}

// IsElementName reports whether s can be used as a field element name.
// Namespace prefixes are not allowed.
func IsElementName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || r > 0x7f:
		case i > 0 && (r == '-' || r == '.' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}
