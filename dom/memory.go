package dom

import (
	"fmt"
	"html"
	"slices"
	"sort"
	"strings"
)

// Mutation is a recorded write on a MemoryElement
type Mutation struct {
	Kind  string // style, attribute, class or tree
	Name  string
	Value string
}

// MemoryDocument creates MemoryElement values
type MemoryDocument struct{}

// CreateElement returns a detached *MemoryElement
func (MemoryDocument) CreateElement(tag string) Element {
	return NewMemoryElement(tag)
}

// MemoryElement is an in-process Element recording every mutation.
// It is not safe for concurrent use.
type MemoryElement struct {
	tag        string
	style      map[string]string
	attributes map[string]string
	classes    []string
	parent     *MemoryElement
	children   []*MemoryElement
	mutations  []Mutation
}

// NewMemoryElement creates a detached element
func NewMemoryElement(tag string) *MemoryElement {
	return &MemoryElement{
		tag:        tag,
		style:      make(map[string]string),
		attributes: make(map[string]string),
	}
}

// Tag is the element name
func (e *MemoryElement) Tag() string { return e.tag }

// Style returns an inline style value, empty when unset
func (e *MemoryElement) Style(property string) string {
	return e.style[property]
}

// SetStyle writes an inline style. An empty value removes the property.
func (e *MemoryElement) SetStyle(property, value string) {
	if value == "" {
		delete(e.style, property)
	} else {
		e.style[property] = value
	}
	e.record("style", property, value)
}

// Attribute returns an attribute value, empty when unset
func (e *MemoryElement) Attribute(name string) string {
	return e.attributes[name]
}

// SetAttribute writes an attribute
func (e *MemoryElement) SetAttribute(name, value string) {
	e.attributes[name] = value
	e.record("attribute", name, value)
}

// HasClass reports whether the class list holds name
func (e *MemoryElement) HasClass(name string) bool {
	return slices.Contains(e.classes, name)
}

// AddClass appends name to the class list, once
func (e *MemoryElement) AddClass(name string) {
	if e.HasClass(name) {
		return
	}
	e.classes = append(e.classes, name)
	e.record("class", name, "add")
}

// RemoveClass drops name from the class list
func (e *MemoryElement) RemoveClass(name string) {
	i := slices.Index(e.classes, name)
	if i < 0 {
		return
	}
	e.classes = slices.Delete(e.classes, i, i+1)
	e.record("class", name, "remove")
}

// Parent is nil for a detached element
func (e *MemoryElement) Parent() Element {
	if e.parent == nil {
		return nil
	}
	return e.parent
}

// AppendChild moves child under e. Elements from another implementation are ignored.
func (e *MemoryElement) AppendChild(child Element) {
	c, ok := child.(*MemoryElement)
	if !ok || c == nil {
		return
	}
	if c.parent != nil {
		c.parent.RemoveChild(c)
	}
	c.parent = e
	e.children = append(e.children, c)
	e.record("tree", "append", c.tag)
}

// RemoveChild detaches child. Unknown children are ignored.
func (e *MemoryElement) RemoveChild(child Element) {
	c, ok := child.(*MemoryElement)
	if !ok {
		return
	}
	i := slices.Index(e.children, c)
	if i < 0 {
		return
	}
	e.children = slices.Delete(e.children, i, i+1)
	c.parent = nil
	e.record("tree", "remove", c.tag)
}

// Children returns the direct children in document order
func (e *MemoryElement) Children() []*MemoryElement {
	return slices.Clone(e.children)
}

// Mutations returns the writes recorded since the last ResetMutations
func (e *MemoryElement) Mutations() []Mutation {
	return slices.Clone(e.mutations)
}

// MutationCount counts writes on e, optionally filtered by style property name
func (e *MemoryElement) MutationCount(property ...string) int {
	if len(property) == 0 {
		return len(e.mutations)
	}
	n := 0
	for _, m := range e.mutations {
		if m.Kind == "style" && slices.Contains(property, m.Name) {
			n++
		}
	}
	return n
}

// ResetMutations clears the mutation log of e and its whole subtree
func (e *MemoryElement) ResetMutations() {
	e.mutations = e.mutations[:0]
	for _, c := range e.children {
		c.ResetMutations()
	}
}

// TreeMutationCount sums MutationCount over e and its subtree
func (e *MemoryElement) TreeMutationCount() int {
	n := len(e.mutations)
	for _, c := range e.children {
		n += c.TreeMutationCount()
	}
	return n
}

func (e *MemoryElement) record(kind, name, value string) {
	e.mutations = append(e.mutations, Mutation{Kind: kind, Name: name, Value: value})
}

// String renders the subtree as HTML
func (e *MemoryElement) String() string {
	var sb strings.Builder
	e.render(&sb, 0)
	return sb.String()
}

func (e *MemoryElement) render(sb *strings.Builder, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(sb, "%s<%s", indent, e.tag)

	if len(e.classes) > 0 {
		fmt.Fprintf(sb, ` class="%s"`, html.EscapeString(strings.Join(e.classes, " ")))
	}

	names := make([]string, 0, len(e.attributes))
	for name := range e.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(sb, ` %s="%s"`, name, html.EscapeString(e.attributes[name]))
	}

	if len(e.style) > 0 {
		properties := make([]string, 0, len(e.style))
		for property := range e.style {
			properties = append(properties, property)
		}
		sort.Strings(properties)

		declarations := make([]string, 0, len(properties))
		for _, property := range properties {
			declarations = append(declarations, property+": "+e.style[property])
		}
		fmt.Fprintf(sb, ` style="%s"`, html.EscapeString(strings.Join(declarations, "; ")))
	}

	if len(e.children) == 0 {
		fmt.Fprintf(sb, "></%s>\n", e.tag)
		return
	}

	sb.WriteString(">\n")
	for _, c := range e.children {
		c.render(sb, depth+1)
	}
	fmt.Fprintf(sb, "%s</%s>\n", indent, e.tag)
}
