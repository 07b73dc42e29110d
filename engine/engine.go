// Package engine describes the external 3D engine lens consumes: entity
// discovery, transform queries and writes, visibility and lifecycle
// notifications. Memory is an in-process implementation of the contract.
package engine

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/akmonengine/lens/overlay"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
)

// Component names understood by lens
const (
	ComponentBoxGeometry     = "box_geometry"
	ComponentPhysicsMaterial = "physics_material"
	ComponentSceneRef        = "scene_ref"
	ComponentCamera          = "camera"
)

var (
	ErrEntityNotFound   = errors.New("engine: entity not found")
	ErrViewportNotFound = errors.New("engine: viewport not found")
)

type EntityID string

// BoxGeometry is the box_geometry component. HalfExtents is the distance
// from the center to each face along the local axes.
type BoxGeometry struct {
	HalfExtents mgl64.Vec3
	Offset      mgl64.Vec3
}

// Entity is a snapshot of an engine entity
type Entity struct {
	ID         EntityID
	Name       string
	Components map[string]any
}

// Has reports whether the component is attached
func (e Entity) Has(component string) bool {
	_, ok := e.Components[component]
	return ok
}

// Box returns the box_geometry component, if attached
func (e Entity) Box() (BoxGeometry, bool) {
	box, ok := e.Components[ComponentBoxGeometry].(BoxGeometry)
	return box, ok
}

// HasNamePrefix is a case-sensitive prefix match on the entity name
func (e Entity) HasNamePrefix(prefix string) bool {
	return strings.HasPrefix(e.Name, prefix)
}

// Filter selects entities by attached components
type Filter struct {
	Mandatory []string
	Forbidden []string
}

// Match reports whether e carries every mandatory and no forbidden component
func (f Filter) Match(e Entity) bool {
	for _, c := range f.Mandatory {
		if !e.Has(c) {
			return false
		}
	}
	return !slices.ContainsFunc(f.Forbidden, e.Has)
}

// TransformUpdate is a partial global transform write. Nil fields are untouched.
type TransformUpdate struct {
	Position *mgl64.Vec3
	Rotation *mgl64.Quat
	Scale    *mgl64.Vec3
}

// Viewport is an active view on the scene. Camera is nil until the engine
// has produced matrices for it.
type Viewport struct {
	ID        int
	Transform volume.Transform
	Camera    *overlay.Camera
}

// Engine is the set of engine calls lens relies on. Calls taking a context
// may suspend; they are not retried.
type Engine interface {
	FilterEntities(ctx context.Context, filter Filter) ([]Entity, error)
	Children(ctx context.Context, id EntityID) ([]Entity, error)

	GlobalTransform(ctx context.Context, id EntityID) (volume.Transform, error)
	GlobalMatrix(ctx context.Context, id EntityID) (mgl64.Mat4, error)
	SetGlobalTransform(ctx context.Context, id EntityID, update TransformUpdate) error
	PropagateChanges(ctx context.Context) error

	SetEntityVisibility(ctx context.Context, id EntityID, visible bool) error

	ActiveViewports() []Viewport
	Notifier() *Notifier
}
