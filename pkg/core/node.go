package core

import "strings"

// Action is the operation the ingestion system performs on a node.
type Action string

// Action constants. Values are the literal attribute values of the import format.
const (
	ActionCreate     Action = "create"
	ActionSync       Action = "sync"
	ActionAddVersion Action = "addversion"
	ActionDelete     Action = "delete"
	ActionUpdate     Action = "update"

	// ActionUpdateMetadata is accepted as input only; it is rewritten to ActionUpdate.
	ActionUpdateMetadata Action = "update (metadata)"
)

// ParseAction lower-cases and trims a user supplied action.
// "none" and the empty string both mean "no action".
func ParseAction(s string) Action {
	a := strings.ToLower(strings.TrimSpace(s))
	if a == "none" {
		return ""
	}
	return Action(a)
}

// IsMinimal reports whether nodes with this action carry only the minimal field subset.
func (a Action) IsMinimal() bool {
	return a == ActionAddVersion || a == ActionDelete
}

// Node kinds used by the engine. Other kinds pass through unchanged.
const (
	KindDocument = "document"
	KindFolder   = "folder"
)

// Field is one standard element of a node.
type Field struct {
	Name  string
	Value string
	// Type is emitted as the element's type attribute when non-empty.
	Type string
}

// Attribute is one category attribute.
type Attribute struct {
	Name  string
	Value string
}

// Category is a named group of metadata attributes attached to a node.
type Category struct {
	Name       string
	Attributes []Attribute
}

// Node is the structured output unit for one source row.
// Fields and Categories are kept in emission order.
type Node struct {
	Kind       string
	Action     Action
	Fields     []Field
	Categories []Category
}

// Field returns the value of the first field with the given name.
func (n *Node) Field(name string) (string, bool) {
	for _, f := range n.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Category returns the category with the given name, or nil.
func (n *Node) Category(name string) *Category {
	for i := range n.Categories {
		if n.Categories[i].Name == name {
			return &n.Categories[i]
		}
	}
	return nil
}

// Attribute returns the value of the named attribute.
func (c *Category) Attribute(name string) (string, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Identifier returns the human-legible label used to correlate a node with
// failure reports: the title, falling back to the location.
func (n *Node) Identifier() string {
	if t, _ := n.Field("title"); strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if l, _ := n.Field("location"); strings.TrimSpace(l) != "" {
		return strings.TrimSpace(l)
	}
	return ""
}
