package overlay

import (
	"slices"

	"github.com/akmonengine/lens/dom"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
)

// Node is an element of the overlay tree. Nodes with an Element are drawn,
// nodes without one only group their children. A parent owns its children.
type Node struct {
	Name    string
	Element dom.Element

	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3

	// Visible only applies to this node, children keep their own flag
	Visible bool
	// Sprite nodes always face the camera
	Sprite bool

	parent   *Node
	children []*Node
}

// NewNode creates a visible node drawing element at the origin
func NewNode(element dom.Element) *Node {
	return &Node{
		Element:  element,
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
		Visible:  true,
	}
}

// NewGroup creates a node with no element, typically the overlay root
func NewGroup() *Node {
	return NewNode(nil)
}

// SetTransform copies a transform snapshot into the node
func (n *Node) SetTransform(t volume.Transform) {
	n.Position = t.Position
	n.Rotation = t.Rotation
	n.Scale = t.Scale
}

// Transform returns the local transform of the node
func (n *Node) Transform() volume.Transform {
	return volume.Transform{Position: n.Position, Rotation: n.Rotation, Scale: n.Scale}
}

// LocalMatrix is the node transform relative to its parent
func (n *Node) LocalMatrix() mgl64.Mat4 {
	return n.Transform().Matrix()
}

// WorldMatrix composes the local matrices from the root down to n
func (n *Node) WorldMatrix() mgl64.Mat4 {
	if n.parent == nil {
		return n.LocalMatrix()
	}
	return n.parent.WorldMatrix().Mul4(n.LocalMatrix())
}

// Parent is nil for a root node
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns a copy of the child list
func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

// Add attaches children to n, detaching them from any previous parent.
// Adding n or one of its ancestors is ignored.
func (n *Node) Add(children ...*Node) {
	for _, child := range children {
		if child == nil || child.isAncestorOf(n) {
			continue
		}
		if child.parent != nil {
			child.parent.detach(child)
		}
		child.parent = n
		n.children = append(n.children, child)
	}
}

// Remove detaches child and pulls the elements of its subtree out of the DOM
func (n *Node) Remove(child *Node) bool {
	if !n.detach(child) {
		return false
	}
	child.Traverse(func(node *Node) {
		dom.Detach(node.Element)
	})
	return true
}

func (n *Node) detach(child *Node) bool {
	i := slices.Index(n.children, child)
	if i < 0 {
		return false
	}
	n.children = slices.Delete(n.children, i, i+1)
	child.parent = nil
	return true
}

func (n *Node) isAncestorOf(other *Node) bool {
	for p := other; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// Traverse visits n and its descendants depth-first, parents before children
func (n *Node) Traverse(fn func(node *Node)) {
	stack := []*Node{n}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fn(node)

		for i := len(node.children) - 1; i >= 0; i-- {
			stack = append(stack, node.children[i])
		}
	}
}

// Flatten returns the drawable nodes of the subtree in traversal order
func (n *Node) Flatten() []*Node {
	var nodes []*Node
	n.Traverse(func(node *Node) {
		if node.Element != nil {
			nodes = append(nodes, node)
		}
	})
	return nodes
}
