// Package dom abstracts the few DOM operations the overlay layer needs.
//
// The host supplies a Document backed by the real page; Memory is a
// retained in-process implementation used by tests and offline tooling.
package dom

// Element is a DOM node with inline style, attributes and classes.
type Element interface {
	Tag() string

	Style(property string) string
	SetStyle(property, value string)

	Attribute(name string) string
	SetAttribute(name, value string)

	HasClass(name string) bool
	AddClass(name string)
	RemoveClass(name string)

	// Parent returns nil for detached elements.
	Parent() Element
	AppendChild(child Element)
	RemoveChild(child Element)
}

// Document creates elements.
type Document interface {
	CreateElement(tag string) Element
}

// Detach removes e from its parent, if any.
func Detach(e Element) {
	if e == nil {
		return
	}
	if parent := e.Parent(); parent != nil {
		parent.RemoveChild(e)
	}
}
