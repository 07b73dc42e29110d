package overlay

import (
	"fmt"
	"regexp"

	"github.com/akmonengine/lens/dom"
	"github.com/akmonengine/lens/internal/logging"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
)

// DepthMode selects how overlapping elements are ordered
type DepthMode int

const (
	// DepthPreserve3D lets the browser depth-sort through transform-style: preserve-3d
	DepthPreserve3D DepthMode = iota
	// DepthZIndex sorts elements by camera distance and writes z-index
	DepthZIndex
)

var tridentPattern = regexp.MustCompile(`(?i)Trident`)

// DetectDepthMode picks DepthZIndex for browsers without preserve-3d support
func DetectDepthMode(userAgent string) DepthMode {
	if tridentPattern.MatchString(userAgent) {
		return DepthZIndex
	}
	return DepthPreserve3D
}

type cameraCache struct {
	valid bool
	kind  ProjectionKind
	focal float64
	style string
}

type nodeCache struct {
	frame    uint64
	style    string
	zIndex   string
	distance float64
	written  bool
}

// Renderer keeps DOM elements aligned with an external 3D camera.
// It is driven from a single goroutine, one Render per frame.
type Renderer struct {
	depthMode DepthMode

	root          dom.Element
	cameraElement dom.Element

	width, height         float64
	widthHalf, heightHalf float64

	camera cameraCache
	nodes  map[*Node]*nodeCache
	frame  uint64
}

// NewRenderer creates the root and camera elements. The depth mode is fixed
// for the lifetime of the renderer.
func NewRenderer(document dom.Document, depthMode DepthMode) *Renderer {
	root := document.CreateElement("div")
	root.SetStyle("overflow", "hidden")

	cameraElement := document.CreateElement("div")
	cameraElement.SetStyle("transform-style", "preserve-3d")
	cameraElement.SetStyle("pointer-events", "none")
	root.AppendChild(cameraElement)

	return &Renderer{
		depthMode:     depthMode,
		root:          root,
		cameraElement: cameraElement,
		nodes:         make(map[*Node]*nodeCache),
	}
}

// Root is the element to insert into the page
func (r *Renderer) Root() dom.Element {
	return r.root
}

// CameraElement is the container every node element is attached to
func (r *Renderer) CameraElement() dom.Element {
	return r.cameraElement
}

// DepthMode is the mode chosen at construction
func (r *Renderer) DepthMode() DepthMode {
	return r.depthMode
}

// SetSize applies a new viewport size in pixels. The next Render picks it up.
func (r *Renderer) SetSize(width, height float64) {
	r.width, r.height = width, height
	r.widthHalf, r.heightHalf = width/2, height/2

	r.root.SetStyle("width", Pixels(width))
	r.root.SetStyle("height", Pixels(height))
	r.cameraElement.SetStyle("width", Pixels(width))
	r.cameraElement.SetStyle("height", Pixels(height))
}

// Size is the last size applied with SetSize
func (r *Renderer) Size() (width, height float64) {
	return r.width, r.height
}

// Render updates the DOM for one frame. A camera with a singular world matrix
// skips the frame and returns volume.ErrSingularMatrix.
func (r *Renderer) Render(scene *Node, camera Camera) error {
	focal := camera.Focal(r.heightHalf)
	r.updatePerspective(camera.Kind, focal)

	if !volume.Invertible(camera.World) {
		return fmt.Errorf("overlay: camera: %w", volume.ErrSingularMatrix)
	}
	inverse := camera.World.Inv()

	var cameraCSS string
	if camera.Kind == Orthographic {
		tx := -(camera.Right + camera.Left) / 2
		ty := (camera.Top + camera.Bottom) / 2
		cameraCSS = "scale(" + formatNumber(focal) + ")" +
			translate2D(epsilon(tx), epsilon(ty)) +
			CameraCSSMatrix(inverse)
	} else {
		cameraCSS = "translateZ(" + Pixels(focal) + ")" + CameraCSSMatrix(inverse)
	}

	style := cameraCSS + translate2D(r.widthHalf, r.heightHalf)
	if r.depthMode == DepthPreserve3D && r.camera.style != style {
		r.cameraElement.SetStyle("transform", style)
		r.camera.style = style
	}

	r.frame++
	frame := renderFrame{
		camera:    camera,
		inverse:   inverse,
		cameraCSS: cameraCSS,
		position:  camera.Position(),
	}
	if scene != nil {
		r.renderNode(scene, mgl64.Ident4(), &frame)
	}

	if r.depthMode == DepthZIndex && scene != nil {
		r.zOrder(scene)
	}

	r.prune()

	logging.Logger().Debug("overlay frame rendered",
		"frame", r.frame,
		"projection", camera.Kind.String(),
		"focal", focal,
		"nodes", len(r.nodes),
	)

	return nil
}

// updatePerspective only touches the root when the projection changed
func (r *Renderer) updatePerspective(kind ProjectionKind, focal float64) {
	if r.camera.valid && r.camera.kind == kind && r.camera.focal == focal {
		return
	}

	if kind == Perspective {
		r.root.SetStyle("perspective", Pixels(focal))
	} else {
		r.root.SetStyle("perspective", "")
	}

	r.camera.valid = true
	r.camera.kind = kind
	r.camera.focal = focal
}

type renderFrame struct {
	camera    Camera
	inverse   mgl64.Mat4
	cameraCSS string
	position  mgl64.Vec3
}

func (r *Renderer) renderNode(node *Node, parentWorld mgl64.Mat4, frame *renderFrame) {
	world := parentWorld.Mul4(node.LocalMatrix())

	if element := node.Element; element != nil {
		var style string
		if node.Sprite {
			style = r.objectCSS(billboard(frame.inverse, world, node.Scale), frame.cameraCSS)
		} else {
			style = r.objectCSS(world, frame.cameraCSS)
		}

		cache, ok := r.nodes[node]
		if !ok {
			cache = &nodeCache{}
			r.nodes[node] = cache
		}
		cache.frame = r.frame

		if !cache.written || cache.style != style {
			element.SetStyle("transform", style)
			cache.style = style
			cache.written = true
		}

		display := ""
		if !node.Visible {
			display = "none"
		}
		if element.Style("display") != display {
			element.SetStyle("display", display)
		}

		if r.depthMode == DepthZIndex {
			position := mgl64.Vec3{world[12], world[13], world[14]}
			cache.distance = position.Sub(frame.position).LenSqr()
		}

		if element.Parent() != r.cameraElement {
			r.cameraElement.AppendChild(element)
		}
	}

	for _, child := range node.children {
		r.renderNode(child, world, frame)
	}
}

func (r *Renderer) objectCSS(world mgl64.Mat4, cameraCSS string) string {
	if r.depthMode == DepthZIndex {
		return "translate(-50%,-50%)" +
			translate2D(r.widthHalf, r.heightHalf) +
			cameraCSS +
			ObjectCSSMatrix(world)
	}
	return "translate(-50%,-50%)" + ObjectCSSMatrix(world)
}

// billboard faces the camera while keeping the node position and scale
func billboard(cameraInverse, world mgl64.Mat4, scale mgl64.Vec3) mgl64.Mat4 {
	m := cameraInverse.Transpose()
	m[12], m[13], m[14] = world[12], world[13], world[14]
	m = m.Mul4(mgl64.Scale3D(scale.X(), scale.Y(), scale.Z()))
	m[3], m[7], m[11], m[15] = 0, 0, 0, 1
	return m
}

// prune forgets nodes that were not visited this frame
func (r *Renderer) prune() {
	for node, cache := range r.nodes {
		if cache.frame != r.frame {
			delete(r.nodes, node)
		}
	}
}
