package lens

import (
	"context"
	"errors"
	"fmt"

	"github.com/akmonengine/lens/engine"
	"github.com/akmonengine/lens/internal/logging"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
)

// triggerVolume is an entity carrying a box_geometry component
type triggerVolume struct {
	entity   engine.Entity
	geometry engine.BoxGeometry
}

func newTriggerVolume(entity engine.Entity) (triggerVolume, bool) {
	geometry, ok := entity.Box()
	if !ok {
		return triggerVolume{}, false
	}
	return triggerVolume{entity: entity, geometry: geometry}, true
}

// orientedBox queries the current world matrix of v
func orientedBox(ctx context.Context, eng engine.Engine, v triggerVolume) (volume.OrientedBox, error) {
	world, err := eng.GlobalMatrix(ctx, v.entity.ID)
	if err != nil {
		return volume.OrientedBox{}, fmt.Errorf("volume %q: %w", v.entity.ID, err)
	}

	return volume.OrientedBox{
		World:       world,
		HalfExtents: v.geometry.HalfExtents,
		Offset:      v.geometry.Offset,
	}, nil
}

// containsPosition tests position against the current placement of v
func containsPosition(ctx context.Context, eng engine.Engine, v triggerVolume, position mgl64.Vec3) (bool, error) {
	box, err := orientedBox(ctx, eng, v)
	if err != nil {
		return false, err
	}
	return boxContains(v, box, position)
}

// boxContains tests position against box, the placement of v.
// Degenerate volumes are logged and reported outside.
func boxContains(v triggerVolume, box volume.OrientedBox, position mgl64.Vec3) (bool, error) {
	inside, err := box.Contains(position)
	if errors.Is(err, volume.ErrSingularMatrix) {
		logging.Logger().Warn("skipping degenerate trigger volume", "volume", v.entity.ID, "name", v.entity.Name)
		return false, nil
	}
	return inside, err
}

// observerPosition reads the first active viewport
func observerPosition(eng engine.Engine, viewports []engine.Viewport) (mgl64.Vec3, bool) {
	if len(viewports) == 0 {
		viewports = eng.ActiveViewports()
	}
	if len(viewports) == 0 {
		return mgl64.Vec3{}, false
	}
	return viewports[0].Transform.Position, true
}
