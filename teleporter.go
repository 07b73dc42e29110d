package lens

import (
	"context"
	"fmt"
	"sync"

	"github.com/akmonengine/lens/config"
	"github.com/akmonengine/lens/engine"
	"github.com/akmonengine/lens/internal/logging"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/singleflight"
)

// Teleporter moves the player to a destination when the active viewport is
// inside a source volume. Source placements are queried again on every
// evaluation, so moving sources keep working.
//
// Source volumes are box_geometry entities whose name starts with the source
// prefix, physics colliders excluded. The destination is the first child of
// the source whose name starts with the destination prefix. When volumes
// overlap, the first one in discovery order wins.
type Teleporter struct {
	engine  engine.Engine
	player  engine.EntityID
	options config.TeleporterOptions
	events  *Events

	mu      sync.RWMutex
	sources []triggerVolume

	// overlapping evaluations share a single children lookup per source
	lookups      singleflight.Group
	subscription *engine.Subscription
}

// NewTeleporter creates an idle teleporter, Initialize starts it
func NewTeleporter(eng engine.Engine, player engine.EntityID, options config.TeleporterOptions) *Teleporter {
	return &Teleporter{
		engine:  eng,
		player:  player,
		options: options,
		events:  NewEvents(),
	}
}

// Events emits a TELEPORT event after every teleport
func (t *Teleporter) Events() *Events {
	return t.events
}

// Initialize discovers the source volumes and starts listening to camera
// updates. It does nothing when the teleporter is disabled.
func (t *Teleporter) Initialize(ctx context.Context) error {
	if !t.options.Enabled {
		logging.Logger().Debug("teleporter disabled")
		return nil
	}
	if err := t.Refresh(ctx); err != nil {
		return err
	}

	if t.subscription == nil {
		sub := t.engine.Notifier().OnCamerasUpdated(t.onCamerasUpdated)
		t.subscription = &sub
	}
	return nil
}

// Refresh rediscovers the source volumes
func (t *Teleporter) Refresh(ctx context.Context) error {
	entities, err := t.engine.FilterEntities(ctx, engine.Filter{
		Mandatory: []string{engine.ComponentBoxGeometry},
		Forbidden: []string{engine.ComponentPhysicsMaterial},
	})
	if err != nil {
		return fmt.Errorf("teleporter: discover sources: %w", err)
	}

	var sources []triggerVolume
	for _, entity := range entities {
		if !entity.HasNamePrefix(t.options.SourcePrefix) {
			continue
		}
		if source, ok := newTriggerVolume(entity); ok {
			sources = append(sources, source)
		}
	}

	t.mu.Lock()
	t.sources = sources
	t.mu.Unlock()

	logging.Logger().Info("teleporters discovered", "count", len(sources), "prefix", t.options.SourcePrefix)
	return nil
}

// Sources returns the discovered source volumes in discovery order
func (t *Teleporter) Sources() []engine.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entities := make([]engine.Entity, len(t.sources))
	for i, source := range t.sources {
		entities[i] = source.entity
	}
	return entities
}

// Close stops listening to camera updates
func (t *Teleporter) Close() {
	if t.subscription != nil {
		t.engine.Notifier().Unsubscribe(*t.subscription)
		t.subscription = nil
	}
}

func (t *Teleporter) onCamerasUpdated(ctx context.Context, event engine.CamerasUpdatedEvent) {
	// No active viewport until the canvas got focus
	position, ok := observerPosition(t.engine, event.Viewports)
	if !ok {
		return
	}

	if _, err := t.Evaluate(ctx, position); err != nil {
		logging.Logger().Error("teleporter evaluation failed", "error", err)
	}
}

// Evaluate teleports the player if position is inside a source volume with a
// destination. It reports whether a teleport happened. Missing volumes or
// destinations are not errors.
func (t *Teleporter) Evaluate(ctx context.Context, position mgl64.Vec3) (bool, error) {
	t.mu.RLock()
	sources := t.sources
	t.mu.RUnlock()

	source, found, err := t.firstMatch(ctx, sources, position)
	if err != nil || !found {
		return false, err
	}

	destination, found, err := t.destination(ctx, source)
	if err != nil {
		return false, err
	}
	if !found {
		logging.Logger().Debug("teleporter has no destination", "source", source.entity.Name)
		return false, nil
	}

	target, err := t.engine.GlobalTransform(ctx, destination.ID)
	if err != nil {
		return false, fmt.Errorf("teleporter: destination %q: %w", destination.ID, err)
	}

	targetPosition := target.Position
	if err := t.engine.SetGlobalTransform(ctx, t.player, engine.TransformUpdate{Position: &targetPosition}); err != nil {
		return false, fmt.Errorf("teleporter: move player: %w", err)
	}
	if err := t.engine.PropagateChanges(ctx); err != nil {
		return false, fmt.Errorf("teleporter: propagate: %w", err)
	}

	logging.Logger().Info("player teleported",
		"source", source.entity.Name,
		"destination", destination.Name,
		"position", targetPosition,
	)
	t.events.emit(TeleportEvent{
		Source:      source.entity.ID,
		Destination: destination.ID,
		Position:    targetPosition,
	})

	return true, nil
}

// firstMatch queries the current placement of every source, narrows them
// with a volume index built from those placements and returns the first
// source containing position, in discovery order.
func (t *Teleporter) firstMatch(ctx context.Context, sources []triggerVolume, position mgl64.Vec3) (triggerVolume, bool, error) {
	if len(sources) == 0 {
		return triggerVolume{}, false, nil
	}

	boxes := make([]volume.OrientedBox, len(sources))
	for i, source := range sources {
		box, err := orientedBox(ctx, t.engine, source)
		if err != nil {
			return triggerVolume{}, false, fmt.Errorf("teleporter: %w", err)
		}
		boxes[i] = box
	}

	index := NewVolumeIndex(t.options.CellSize, len(boxes)*8)
	index.Build(boxes, t.options.Workers)

	for _, i := range index.Candidates(position) {
		inside, err := boxContains(sources[i], boxes[i], position)
		if err != nil {
			return triggerVolume{}, false, fmt.Errorf("teleporter: %w", err)
		}
		if inside {
			return sources[i], true, nil
		}
	}
	return triggerVolume{}, false, nil
}

func (t *Teleporter) destination(ctx context.Context, source triggerVolume) (engine.Entity, bool, error) {
	v, err, _ := t.lookups.Do(string(source.entity.ID), func() (any, error) {
		return t.engine.Children(ctx, source.entity.ID)
	})
	if err != nil {
		return engine.Entity{}, false, fmt.Errorf("teleporter: children of %q: %w", source.entity.ID, err)
	}

	for _, child := range v.([]engine.Entity) {
		if child.HasNamePrefix(t.options.DestinationPrefix) {
			return child, true, nil
		}
	}
	return engine.Entity{}, false, nil
}
