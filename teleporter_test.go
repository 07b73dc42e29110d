package lens

import (
	"context"
	"errors"
	"testing"

	"github.com/akmonengine/lens/config"
	"github.com/akmonengine/lens/engine"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlayer engine.EntityID = "player"

func at(x, y, z float64) volume.Transform {
	t := volume.NewTransform()
	t.Position = mgl64.Vec3{x, y, z}
	return t
}

func box(hx, hy, hz float64) map[string]any {
	return map[string]any{
		engine.ComponentBoxGeometry: engine.BoxGeometry{HalfExtents: mgl64.Vec3{hx, hy, hz}},
	}
}

// newTestEngine creates an engine with a player and a single viewport at the origin
func newTestEngine(t *testing.T) *engine.Memory {
	t.Helper()
	m := engine.NewMemory()
	_, err := m.AddEntity(engine.EntitySpec{ID: testPlayer, Name: "Player"})
	require.NoError(t, err)

	viewport := volume.NewTransform()
	m.SetViewports(engine.Viewport{
		ID:        1,
		Transform: viewport,
		Camera:    engine.NewViewportCamera(viewport, mgl64.DegToRad(60), 4.0/3.0),
	})
	return m
}

func addEntity(t *testing.T, m *engine.Memory, spec engine.EntitySpec) engine.EntityID {
	t.Helper()
	id, err := m.AddEntity(spec)
	require.NoError(t, err)
	return id
}

// addTeleporter adds a source at position with a destination child at destination
func addTeleporter(t *testing.T, m *engine.Memory, name string, position, destination mgl64.Vec3, halfExtent float64) engine.EntityID {
	t.Helper()
	source := addEntity(t, m, engine.EntitySpec{
		Name:       "Teleporter " + name,
		Transform:  at(position.X(), position.Y(), position.Z()),
		Components: box(halfExtent, halfExtent, halfExtent),
	})
	local := destination.Sub(position)
	addEntity(t, m, engine.EntitySpec{
		Name:      "Destination " + name,
		Parent:    source,
		Transform: at(local.X(), local.Y(), local.Z()),
	})
	return source
}

func teleporterOptions() config.TeleporterOptions {
	options := config.Default().Teleporter
	options.Enabled = true
	return options
}

func playerPosition(t *testing.T, m *engine.Memory) mgl64.Vec3 {
	t.Helper()
	transform, err := m.GlobalTransform(context.Background(), testPlayer)
	require.NoError(t, err)
	return transform.Position
}

func assertVec3(t *testing.T, want, got mgl64.Vec3) {
	t.Helper()
	assert.InDeltaSlice(t, want[:], got[:], 1e-9)
}

func TestTeleporter_MovesPlayerToDestination(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	source := addTeleporter(t, m, "Lobby", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	var events []TeleportEvent
	tp.Events().Subscribe(TELEPORT, func(event Event) {
		events = append(events, event.(TeleportEvent))
	})

	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{10.5, 0, 0}))
	assertVec3(t, mgl64.Vec3{50, 0, 0}, playerPosition(t, m))
	assert.Equal(t, 1, m.Propagations())
	require.Len(t, events, 1)
	assert.Equal(t, source, events[0].Source)
	assertVec3(t, mgl64.Vec3{50, 0, 0}, events[0].Position)

	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{100, 0, 0}))
	assert.Equal(t, 1, m.Propagations())
	assert.Len(t, events, 1)
}

func TestTeleporter_FiresOnEveryUpdateInside(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addTeleporter(t, m, "Lobby", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	// The memory engine does not move the viewport with the player
	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{10.5, 0, 0}))
	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{10.6, 0, 0}))
	assert.Equal(t, 2, m.Propagations())
}

func TestTeleporter_SourceDiscovery(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	first := addTeleporter(t, m, "A", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{100, 0, 0}, 1)
	addEntity(t, m, engine.EntitySpec{
		Name: "Teleporter Wall",
		Components: map[string]any{
			engine.ComponentBoxGeometry:     engine.BoxGeometry{HalfExtents: mgl64.Vec3{1, 1, 1}},
			engine.ComponentPhysicsMaterial: struct{}{},
		},
	})
	addEntity(t, m, engine.EntitySpec{Name: "teleporter lowercase", Components: box(1, 1, 1)})
	addEntity(t, m, engine.EntitySpec{Name: "Teleporter without box"})
	second := addTeleporter(t, m, "B", mgl64.Vec3{20, 0, 0}, mgl64.Vec3{200, 0, 0}, 1)

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	sources := tp.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, first, sources[0].ID)
	assert.Equal(t, second, sources[1].ID)
}

func TestTeleporter_MovedSource(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	source := addTeleporter(t, m, "Lift", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	lifted := mgl64.Vec3{200, 0, 0}
	require.NoError(t, m.SetGlobalTransform(ctx, source, engine.TransformUpdate{Position: &lifted}))
	require.NoError(t, m.PropagateChanges(ctx))

	teleported, err := tp.Evaluate(ctx, mgl64.Vec3{10.5, 0, 0})
	require.NoError(t, err)
	assert.False(t, teleported, "the old placement no longer triggers")

	teleported, err = tp.Evaluate(ctx, mgl64.Vec3{200.5, 0, 0})
	require.NoError(t, err)
	assert.True(t, teleported)
	assertVec3(t, mgl64.Vec3{240, 0, 0}, playerPosition(t, m))
	assert.Equal(t, 2, m.Propagations())
}

func TestTeleporter_InvalidCellSize(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addTeleporter(t, m, "Lobby", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

	options := teleporterOptions()
	options.CellSize = 0
	options.Workers = 0
	tp := NewTeleporter(m, testPlayer, options)
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	teleported, err := tp.Evaluate(ctx, mgl64.Vec3{10.5, 0, 0})
	require.NoError(t, err)
	assert.True(t, teleported)
}

func TestTeleporter_FirstSourceWins(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addTeleporter(t, m, "A", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{100, 0, 0}, 2)
	addTeleporter(t, m, "B", mgl64.Vec3{1, 0, 0}, mgl64.Vec3{200, 0, 0}, 2)

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	teleported, err := tp.Evaluate(ctx, mgl64.Vec3{0.5, 0, 0})
	require.NoError(t, err)
	assert.True(t, teleported)
	assertVec3(t, mgl64.Vec3{100, 0, 0}, playerPosition(t, m))
}

func TestTeleporter_RotatedSource(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)

	transform := volume.NewTransform()
	transform.Rotation = mgl64.QuatRotate(mgl64.DegToRad(90), mgl64.Vec3{0, 1, 0})
	source := addEntity(t, m, engine.EntitySpec{
		Name:       "Teleporter Corridor",
		Transform:  transform,
		Components: box(4, 1, 1),
	})
	addEntity(t, m, engine.EntitySpec{Name: "Destination", Parent: source, Transform: at(0, 10, 0)})

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	// The long local x axis lies along world z
	teleported, err := tp.Evaluate(ctx, mgl64.Vec3{3, 0, 0})
	require.NoError(t, err)
	assert.False(t, teleported)

	teleported, err = tp.Evaluate(ctx, mgl64.Vec3{0, 0, 3})
	require.NoError(t, err)
	assert.True(t, teleported)
	assertVec3(t, mgl64.Vec3{0, 10, 0}, playerPosition(t, m))
}

func TestTeleporter_NoOps(t *testing.T) {
	ctx := context.Background()

	t.Run("no destination", func(t *testing.T) {
		m := newTestEngine(t)
		source := addEntity(t, m, engine.EntitySpec{Name: "Teleporter Alone", Components: box(2, 2, 2)})
		addEntity(t, m, engine.EntitySpec{Name: "Decoration", Parent: source})

		tp := NewTeleporter(m, testPlayer, teleporterOptions())
		require.NoError(t, tp.Initialize(ctx))
		t.Cleanup(tp.Close)

		teleported, err := tp.Evaluate(ctx, mgl64.Vec3{0, 0, 0})
		require.NoError(t, err)
		assert.False(t, teleported)
		assert.Equal(t, 0, m.Propagations())
	})

	t.Run("disabled", func(t *testing.T) {
		m := newTestEngine(t)
		addTeleporter(t, m, "Lobby", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

		options := teleporterOptions()
		options.Enabled = false
		tp := NewTeleporter(m, testPlayer, options)
		require.NoError(t, tp.Initialize(ctx))

		assert.Equal(t, 0, m.Notifier().Listeners(engine.CamerasUpdated))
		require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{0, 0, 0}))
		assert.Equal(t, 0, m.Propagations())
	})

	t.Run("no viewport", func(t *testing.T) {
		m := newTestEngine(t)
		m.SetViewports()
		addTeleporter(t, m, "Lobby", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

		tp := NewTeleporter(m, testPlayer, teleporterOptions())
		require.NoError(t, tp.Initialize(ctx))
		t.Cleanup(tp.Close)

		m.Notifier().EmitCamerasUpdated(ctx, engine.CamerasUpdatedEvent{})
		assert.Equal(t, 0, m.Propagations())
	})

	t.Run("no source", func(t *testing.T) {
		m := newTestEngine(t)
		tp := NewTeleporter(m, testPlayer, teleporterOptions())
		require.NoError(t, tp.Initialize(ctx))
		t.Cleanup(tp.Close)

		teleported, err := tp.Evaluate(ctx, mgl64.Vec3{0, 0, 0})
		require.NoError(t, err)
		assert.False(t, teleported)
	})
}

func TestTeleporter_SkipsDegenerateSource(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)

	flat := at(0, 0, 0)
	flat.Scale = mgl64.Vec3{1, 0, 1}
	degenerate := addEntity(t, m, engine.EntitySpec{Name: "Teleporter Flat", Transform: flat, Components: box(2, 2, 2)})
	addEntity(t, m, engine.EntitySpec{Name: "Destination Flat", Parent: degenerate})
	addTeleporter(t, m, "Valid", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{30, 0, 0}, 2)

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	t.Cleanup(tp.Close)

	teleported, err := tp.Evaluate(ctx, mgl64.Vec3{0.5, 0, 0})
	require.NoError(t, err)
	assert.True(t, teleported)
	assertVec3(t, mgl64.Vec3{30, 0, 0}, playerPosition(t, m))
}

func TestTeleporter_EngineErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	tests := []struct {
		name string
		op   engine.Op
	}{
		{"matrix", engine.OpGlobalMatrix},
		{"children", engine.OpChildren},
		{"destination", engine.OpGlobalTransform},
		{"move", engine.OpSetGlobalTransform},
		{"propagate", engine.OpPropagateChanges},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestEngine(t)
			addTeleporter(t, m, "Lobby", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

			tp := NewTeleporter(m, testPlayer, teleporterOptions())
			require.NoError(t, tp.Initialize(ctx))
			t.Cleanup(tp.Close)

			m.InjectError(tt.op, boom)
			teleported, err := tp.Evaluate(ctx, mgl64.Vec3{0, 0, 0})
			assert.ErrorIs(t, err, boom)
			assert.False(t, teleported)
			assert.Equal(t, 0, m.Propagations())
		})
	}

	t.Run("discovery", func(t *testing.T) {
		m := newTestEngine(t)
		m.InjectError(engine.OpFilterEntities, boom)

		tp := NewTeleporter(m, testPlayer, teleporterOptions())
		assert.ErrorIs(t, tp.Initialize(ctx), boom)
		assert.Equal(t, 0, m.Notifier().Listeners(engine.CamerasUpdated))
	})
}

func TestTeleporter_Close(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addTeleporter(t, m, "Lobby", mgl64.Vec3{0, 0, 0}, mgl64.Vec3{50, 0, 0}, 2)

	tp := NewTeleporter(m, testPlayer, teleporterOptions())
	require.NoError(t, tp.Initialize(ctx))
	require.NoError(t, tp.Initialize(ctx))
	assert.Equal(t, 1, m.Notifier().Listeners(engine.CamerasUpdated))

	tp.Close()
	assert.Equal(t, 0, m.Notifier().Listeners(engine.CamerasUpdated))

	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{0, 0, 0}))
	assert.Equal(t, 0, m.Propagations())
}
