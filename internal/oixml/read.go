package oixml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

type xmlField struct {
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

type xmlCategory struct {
	Name       string `xml:"name,attr"`
	Attributes []struct {
		Name string `xml:"name,attr"`
		Text string `xml:",chardata"`
	} `xml:"attribute"`
}

// ParseDocument parses every <node> element in r, in document order.
// The root element name is not checked.
func ParseDocument(r io.Reader) ([]*core.Node, error) {
	dec := xml.NewDecoder(r)
	var nodes []*core.Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nodes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "node" {
			continue
		}
		n, err := decodeNode(dec, start)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

// ParseNode parses a single <node> element.
func ParseNode(s string) (*core.Node, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse node: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			if start.Name.Local != "node" {
				return nil, fmt.Errorf("failed to parse node: unexpected element <%s>", start.Name.Local)
			}
			return decodeNode(dec, start)
		}
	}
}

func decodeNode(dec *xml.Decoder, start xml.StartElement) (*core.Node, error) {
	n := &core.Node{}
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "type":
			n.Kind = a.Value
		case "action":
			n.Action = core.Action(a.Value)
		}
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse node: %w", err)
		}
		switch t := tok.(type) {
		case xml.EndElement:
			return n, nil
		case xml.StartElement:
			if t.Name.Local == "category" {
				var c xmlCategory
				if err := dec.DecodeElement(&c, &t); err != nil {
					return nil, fmt.Errorf("failed to parse category: %w", err)
				}
				cat := core.Category{Name: c.Name}
				for _, a := range c.Attributes {
					cat.Attributes = append(cat.Attributes, core.Attribute{Name: a.Name, Value: a.Text})
				}
				n.Categories = append(n.Categories, cat)
				continue
			}
			var f xmlField
			if err := dec.DecodeElement(&f, &t); err != nil {
				return nil, fmt.Errorf("failed to parse field %s: %w", t.Name.Local, err)
			}
			n.Fields = append(n.Fields, core.Field{Name: t.Name.Local, Value: f.Text, Type: f.Type})
		}
	}
}
