package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/akmonengine/lens/overlay"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
)

// Op names a Memory call, for error injection
type Op string

const (
	OpFilterEntities      Op = "FilterEntities"
	OpChildren            Op = "Children"
	OpGlobalTransform     Op = "GlobalTransform"
	OpGlobalMatrix        Op = "GlobalMatrix"
	OpSetGlobalTransform  Op = "SetGlobalTransform"
	OpPropagateChanges    Op = "PropagateChanges"
	OpSetEntityVisibility Op = "SetEntityVisibility"
)

// EntitySpec describes an entity to create in a Memory engine
type EntitySpec struct {
	ID         EntityID
	Name       string
	Parent     EntityID
	Transform  volume.Transform
	Components map[string]any
}

type memoryEntity struct {
	id         EntityID
	name       string
	parent     EntityID
	children   []EntityID
	local      volume.Transform
	components map[string]any
	visible    bool
}

// Memory is an in-process Engine. Entities are returned in creation order.
// Global transform writes are staged until PropagateChanges.
type Memory struct {
	mu sync.RWMutex

	entities map[EntityID]*memoryEntity
	order    []EntityID
	pending  map[EntityID]TransformUpdate

	viewports []Viewport
	notifier  *Notifier

	propagations int
	visibility   []VisibilityChange
	failures     map[Op]error
	nextID       int
}

// VisibilityChange records one SetEntityVisibility call
type VisibilityChange struct {
	ID      EntityID
	Visible bool
}

func NewMemory() *Memory {
	return &Memory{
		entities: make(map[EntityID]*memoryEntity),
		pending:  make(map[EntityID]TransformUpdate),
		notifier: NewNotifier(),
		failures: make(map[Op]error),
	}
}

// AddEntity creates an entity and returns its id. A zero scale or rotation
// in the entity transform is read as identity.
func (m *Memory) AddEntity(spec EntitySpec) (EntityID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := spec.ID
	if id == "" {
		m.nextID++
		id = EntityID(fmt.Sprintf("entity-%d", m.nextID))
	}
	if _, exists := m.entities[id]; exists {
		return "", fmt.Errorf("engine: duplicate entity %q", id)
	}
	if spec.Parent != "" {
		if _, ok := m.entities[spec.Parent]; !ok {
			return "", fmt.Errorf("engine: parent %q: %w", spec.Parent, ErrEntityNotFound)
		}
	}

	local := spec.Transform
	if local.Scale == (mgl64.Vec3{}) {
		local.Scale = mgl64.Vec3{1, 1, 1}
	}
	if local.Rotation.Len() == 0 {
		local.Rotation = mgl64.QuatIdent()
	}

	components := maps.Clone(spec.Components)
	if components == nil {
		components = make(map[string]any)
	}

	m.entities[id] = &memoryEntity{
		id:         id,
		name:       spec.Name,
		parent:     spec.Parent,
		local:      local,
		components: components,
		visible:    true,
	}
	m.order = append(m.order, id)
	if spec.Parent != "" {
		parent := m.entities[spec.Parent]
		parent.children = append(parent.children, id)
	}

	return id, nil
}

// RemoveEntity deletes an entity and its descendants
func (m *Memory) RemoveEntity(id EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entity, ok := m.entities[id]
	if !ok {
		return
	}
	if parent, ok := m.entities[entity.parent]; ok {
		parent.children = slices.DeleteFunc(parent.children, func(c EntityID) bool { return c == id })
	}

	var remove func(id EntityID)
	remove = func(id EntityID) {
		e := m.entities[id]
		for _, c := range e.children {
			remove(c)
		}
		delete(m.entities, id)
		delete(m.pending, id)
		m.order = slices.DeleteFunc(m.order, func(o EntityID) bool { return o == id })
	}
	remove(id)
}

func (m *Memory) snapshot(e *memoryEntity) Entity {
	return Entity{
		ID:         e.id,
		Name:       e.name,
		Components: maps.Clone(e.components),
	}
}

func (m *Memory) fail(op Op) error {
	if err, ok := m.failures[op]; ok {
		return err
	}
	return nil
}

// InjectError makes every subsequent call of op fail with err. A nil err
// clears the injection.
func (m *Memory) InjectError(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

func (m *Memory) FilterEntities(_ context.Context, filter Filter) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail(OpFilterEntities); err != nil {
		return nil, err
	}

	var entities []Entity
	for _, id := range m.order {
		e := m.snapshot(m.entities[id])
		if filter.Match(e) {
			entities = append(entities, e)
		}
	}
	return entities, nil
}

func (m *Memory) Children(_ context.Context, id EntityID) ([]Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail(OpChildren); err != nil {
		return nil, err
	}

	entity, ok := m.entities[id]
	if !ok {
		return nil, fmt.Errorf("children of %q: %w", id, ErrEntityNotFound)
	}

	children := make([]Entity, 0, len(entity.children))
	for _, c := range entity.children {
		children = append(children, m.snapshot(m.entities[c]))
	}
	return children, nil
}

// globalMatrix must be called with the lock held
func (m *Memory) globalMatrix(id EntityID) (mgl64.Mat4, error) {
	entity, ok := m.entities[id]
	if !ok {
		return mgl64.Mat4{}, fmt.Errorf("global matrix of %q: %w", id, ErrEntityNotFound)
	}
	if entity.parent == "" {
		return entity.local.Matrix(), nil
	}
	parent, err := m.globalMatrix(entity.parent)
	if err != nil {
		return mgl64.Mat4{}, err
	}
	return parent.Mul4(entity.local.Matrix()), nil
}

// globalTransform must be called with the lock held
func (m *Memory) globalTransform(id EntityID) (volume.Transform, error) {
	entity, ok := m.entities[id]
	if !ok {
		return volume.Transform{}, fmt.Errorf("global transform of %q: %w", id, ErrEntityNotFound)
	}
	if entity.parent == "" {
		return entity.local, nil
	}

	parent, err := m.globalTransform(entity.parent)
	if err != nil {
		return volume.Transform{}, err
	}
	matrix, err := m.globalMatrix(id)
	if err != nil {
		return volume.Transform{}, err
	}

	return volume.Transform{
		Position: mgl64.Vec3{matrix[12], matrix[13], matrix[14]},
		Rotation: parent.Rotation.Mul(entity.local.Rotation).Normalize(),
		Scale: mgl64.Vec3{
			parent.Scale.X() * entity.local.Scale.X(),
			parent.Scale.Y() * entity.local.Scale.Y(),
			parent.Scale.Z() * entity.local.Scale.Z(),
		},
	}, nil
}

func (m *Memory) GlobalTransform(_ context.Context, id EntityID) (volume.Transform, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail(OpGlobalTransform); err != nil {
		return volume.Transform{}, err
	}
	return m.globalTransform(id)
}

func (m *Memory) GlobalMatrix(_ context.Context, id EntityID) (mgl64.Mat4, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail(OpGlobalMatrix); err != nil {
		return mgl64.Mat4{}, err
	}
	return m.globalMatrix(id)
}

// SetGlobalTransform stages a write, applied by PropagateChanges
func (m *Memory) SetGlobalTransform(_ context.Context, id EntityID, update TransformUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail(OpSetGlobalTransform); err != nil {
		return err
	}
	if _, ok := m.entities[id]; !ok {
		return fmt.Errorf("set global transform of %q: %w", id, ErrEntityNotFound)
	}

	staged := m.pending[id]
	if update.Position != nil {
		position := *update.Position
		staged.Position = &position
	}
	if update.Rotation != nil {
		rotation := *update.Rotation
		staged.Rotation = &rotation
	}
	if update.Scale != nil {
		scale := *update.Scale
		staged.Scale = &scale
	}
	m.pending[id] = staged
	return nil
}

// PropagateChanges commits staged global writes into local transforms, in
// creation order so a parent moved in the same call is seen by its children.
// The call is atomic: when one write fails, the applied ones are rolled back
// and every write stays staged.
func (m *Memory) PropagateChanges(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail(OpPropagateChanges); err != nil {
		return err
	}

	previous := make(map[EntityID]volume.Transform, len(m.pending))
	for _, id := range m.order {
		update, ok := m.pending[id]
		if !ok {
			continue
		}
		entity := m.entities[id]
		local, err := m.resolve(entity, update)
		if err != nil {
			for rollback, local := range previous {
				m.entities[rollback].local = local
			}
			return fmt.Errorf("propagate %q: %w", id, err)
		}
		previous[id] = entity.local
		entity.local = local
	}

	clear(m.pending)
	m.propagations++
	return nil
}

// resolve converts a staged global write into the local transform of entity.
// It must be called with the lock held.
func (m *Memory) resolve(entity *memoryEntity, update TransformUpdate) (volume.Transform, error) {
	local := entity.local

	parentMatrix := mgl64.Ident4()
	parentRotation := mgl64.QuatIdent()
	parentScale := mgl64.Vec3{1, 1, 1}
	if entity.parent != "" {
		var err error
		if parentMatrix, err = m.globalMatrix(entity.parent); err != nil {
			return volume.Transform{}, err
		}
		parent, err := m.globalTransform(entity.parent)
		if err != nil {
			return volume.Transform{}, err
		}
		parentRotation, parentScale = parent.Rotation, parent.Scale
	}

	if update.Position != nil {
		if !volume.Invertible(parentMatrix) {
			return volume.Transform{}, volume.ErrSingularMatrix
		}
		local.Position = parentMatrix.Inv().Mul4x1(update.Position.Vec4(1)).Vec3()
	}
	if update.Rotation != nil {
		local.Rotation = parentRotation.Inverse().Mul(*update.Rotation).Normalize()
	}
	if update.Scale != nil {
		if parentScale.X() == 0 || parentScale.Y() == 0 || parentScale.Z() == 0 {
			return volume.Transform{}, volume.ErrSingularMatrix
		}
		local.Scale = mgl64.Vec3{
			update.Scale.X() / parentScale.X(),
			update.Scale.Y() / parentScale.Y(),
			update.Scale.Z() / parentScale.Z(),
		}
	}
	return local, nil
}

// Propagations counts successful PropagateChanges calls
func (m *Memory) Propagations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.propagations
}

func (m *Memory) SetEntityVisibility(_ context.Context, id EntityID, visible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail(OpSetEntityVisibility); err != nil {
		return err
	}
	entity, ok := m.entities[id]
	if !ok {
		return fmt.Errorf("set visibility of %q: %w", id, ErrEntityNotFound)
	}
	entity.visible = visible
	m.visibility = append(m.visibility, VisibilityChange{ID: id, Visible: visible})
	return nil
}

// Visible reports the last visibility set on id, true by default
func (m *Memory) Visible(id EntityID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entity, ok := m.entities[id]
	return ok && entity.visible
}

// VisibilityChanges returns every SetEntityVisibility call in order
func (m *Memory) VisibilityChanges() []VisibilityChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.visibility)
}

// SetViewports replaces the active viewports
func (m *Memory) SetViewports(viewports ...Viewport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewports = slices.Clone(viewports)
}

func (m *Memory) ActiveViewports() []Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.viewports)
}

// MoveViewport sets a viewport position, keeps its camera in sync and
// notifies the camera listeners.
func (m *Memory) MoveViewport(ctx context.Context, viewportID int, position mgl64.Vec3) error {
	m.mu.Lock()
	i := slices.IndexFunc(m.viewports, func(v Viewport) bool { return v.ID == viewportID })
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("move viewport %d: %w", viewportID, ErrViewportNotFound)
	}

	viewport := &m.viewports[i]
	viewport.Transform.Position = position
	if viewport.Camera != nil {
		camera := *viewport.Camera
		camera.World = viewport.Transform.Matrix()
		viewport.Camera = &camera
	}
	viewports := slices.Clone(m.viewports)
	m.mu.Unlock()

	m.notifier.EmitCamerasUpdated(ctx, CamerasUpdatedEvent{Viewports: viewports})
	return nil
}

// RenderFrame notifies the frame listeners
func (m *Memory) RenderFrame(ctx context.Context, frame uint64) {
	m.notifier.EmitFrameRendered(ctx, FrameRenderedEvent{Frame: frame})
}

// ResizeCanvas notifies the resize listeners
func (m *Memory) ResizeCanvas(ctx context.Context, width, height float64) {
	m.notifier.EmitCanvasResized(ctx, CanvasResizedEvent{Width: width, Height: height})
}

func (m *Memory) Notifier() *Notifier {
	return m.notifier
}

// NewViewportCamera builds a perspective camera placed at transform
func NewViewportCamera(transform volume.Transform, fovy, aspect float64) *overlay.Camera {
	camera := overlay.NewPerspectiveCamera(transform.Matrix(), fovy, aspect, 0.1, 10000)
	return &camera
}
