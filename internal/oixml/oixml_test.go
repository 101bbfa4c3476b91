package oixml

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

func sampleNodes() []*core.Node {
	return []*core.Node{
		{
			Kind:   "document",
			Action: core.ActionCreate,
			Fields: []core.Field{
				{Name: "location", Value: "Enterprise:Finance"},
				{Name: "title", Value: `Budget <2024> & "Plan" ]]> end`},
				{Name: "file", Value: "reports/budget.pdf"},
				{Name: "mimetype", Value: "application/x-pdf"},
				{Name: "createdby", Value: "ops", Type: "0"},
				{Name: "empty", Value: ""},
			},
			Categories: []core.Category{
				{Name: `Finance "Cat" & Co`, Attributes: []core.Attribute{
					{Name: "Cost Centre", Value: "CC-1 < CC-2"},
					{Name: "Line\tBreak", Value: "multi\nline"},
				}},
			},
		},
		{
			Kind:   "folder",
			Action: core.ActionDelete,
			Fields: []core.Field{{Name: "location", Value: "A:B:C", Type: "0"}},
		},
	}
}

func render(t *testing.T, nodes []*core.Node, sel CDATASelector) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteDocument(&buf, nodes, sel))
	return buf.String()
}

func TestWriteDocument_Layout(t *testing.T) {
	out := render(t, sampleNodes(), ParseCDATASelector(""))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	require.Len(t, lines, 5)
	assert.Equal(t, Header, lines[0])
	assert.Equal(t, "<import>", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], `<node type="document" action="create">`))
	assert.Equal(t, `<node type="folder" action="delete"><location type="0">A:B:C</location></node>`, lines[3])
	assert.Equal(t, "</import>", lines[4])

	assert.Contains(t, lines[2], `<title>Budget &lt;2024&gt; &amp; "Plan" ]]&gt; end</title>`)
	assert.Contains(t, lines[2], `<createdby type="0">ops</createdby>`)
	assert.Contains(t, lines[2], `<empty></empty>`)
	assert.Contains(t, lines[2], `<category name="Finance &quot;Cat&quot; &amp; Co">`)
}

func TestWriteDocument_CDATA(t *testing.T) {
	out := render(t, sampleNodes(), ParseCDATASelector(" Title , attribute"))
	assert.Contains(t, out, `<title><![CDATA[Budget <2024> & "Plan" ]]]]><![CDATA[> end]]></title>`)
	assert.Contains(t, out, `<attribute name="Cost Centre"><![CDATA[CC-1 < CC-2]]></attribute>`)
	assert.Contains(t, out, `<location>Enterprise:Finance</location>`)

	all := render(t, sampleNodes(), ParseCDATASelector("*"))
	assert.Contains(t, all, `<location><![CDATA[Enterprise:Finance]]></location>`)
	assert.Contains(t, all, `<empty></empty>`, "empty text is never wrapped")
}

func TestRoundTrip(t *testing.T) {
	for _, selector := range []string{"", "title", "*"} {
		t.Run("cdata="+selector, func(t *testing.T) {
			sel := ParseCDATASelector(selector)
			first := render(t, sampleNodes(), sel)

			parsed, err := ParseDocument(strings.NewReader(first))
			require.NoError(t, err)
			require.Len(t, parsed, 2)

			want := sampleNodes()
			for i := range want {
				assert.Equal(t, want[i].Kind, parsed[i].Kind)
				assert.Equal(t, want[i].Action, parsed[i].Action)
				assert.Equal(t, want[i].Fields, parsed[i].Fields)
				assert.Equal(t, len(want[i].Categories), len(parsed[i].Categories))
			}
			assert.Equal(t, want[0].Categories, parsed[0].Categories)

			second := render(t, parsed, sel)
			assert.Equal(t, first, second, "re-serializing parsed output is byte-identical")
		})
	}
}

func TestRoundTrip_DropsInvalidXMLChars(t *testing.T) {
	nodes := []*core.Node{{
		Kind:   "document",
		Action: core.ActionCreate,
		Fields: []core.Field{
			{Name: "title", Value: "Line1\vLine2\x07"},
			{Name: "description", Value: "tab\tkept\uFFFE"},
		},
		Categories: []core.Category{{Name: "Fin\x01ance", Attributes: []core.Attribute{{Name: "Code", Value: "\x1fA1"}}}},
	}}
	for _, selector := range []string{"", "*"} {
		t.Run("cdata="+selector, func(t *testing.T) {
			out := render(t, nodes, ParseCDATASelector(selector))

			parsed, err := ParseDocument(strings.NewReader(out))
			require.NoError(t, err)
			require.Len(t, parsed, 1)
			assert.Equal(t, "Line1Line2", parsed[0].Fields[0].Value)
			assert.Equal(t, "tab\tkept", parsed[0].Fields[1].Value)
			require.Len(t, parsed[0].Categories, 1)
			assert.Equal(t, "Finance", parsed[0].Categories[0].Name)
			assert.Equal(t, "A1", parsed[0].Categories[0].Attributes[0].Value)
		})
	}
}

func TestParseNode(t *testing.T) {
	line := MarshalNode(sampleNodes()[1], CDATASelector{})
	n, err := ParseNode(line)
	require.NoError(t, err)
	assert.Equal(t, sampleNodes()[1], n)

	_, err = ParseNode("<category/>")
	assert.Error(t, err)

	_, err = ParseNode("<node><title>unterminated")
	assert.Error(t, err)
}

func TestParseDocument_Malformed(t *testing.T) {
	_, err := ParseDocument(strings.NewReader("<import><node><title></node></import>"))
	assert.Error(t, err)
}

func TestWriteDocument_RejectsInvalidFieldName(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDocument(&buf, []*core.Node{{Kind: "folder", Action: "create", Fields: []core.Field{{Name: "Cost Centre", Value: "x"}}}}, CDATASelector{})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "import_1.xml")

	require.NoError(t, WriteFile(path, sampleNodes(), ParseCDATASelector("")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, render(t, sampleNodes(), ParseCDATASelector("")), string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.xml"), sampleNodes(), CDATASelector{})
	assert.Error(t, err)
}

func TestCDATASelector(t *testing.T) {
	sel := ParseCDATASelector("Title, description,,")
	assert.True(t, sel.Wraps("TITLE"))
	assert.True(t, sel.Wraps("description"))
	assert.False(t, sel.Wraps("location"))
	assert.Equal(t, "description,title", sel.String())

	assert.Equal(t, "*", ParseCDATASelector("*").String())
	assert.False(t, CDATASelector{}.Wraps("title"))
}

func TestIsElementName(t *testing.T) {
	for _, ok := range []string{"title", "docnum", "x-ref", "_a", "a1.b"} {
		assert.True(t, IsElementName(ok), ok)
	}
	for _, bad := range []string{"", "1a", "Cost Centre", "ns:title", "-a"} {
		assert.False(t, IsElementName(bad), bad)
	}
}
