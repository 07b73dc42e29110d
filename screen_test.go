package lens

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akmonengine/lens/config"
	"github.com/akmonengine/lens/dom"
	"github.com/akmonengine/lens/engine"
	"github.com/akmonengine/lens/overlay"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func screenOptions() config.VideoScreenOptions {
	options := config.Default().VideoScreen
	options.Enabled = true
	return options
}

// addScreen adds a 2x1 screen at position with a volume child centered on
// zone, half-extent being given in world units.
func addScreen(t *testing.T, m *engine.Memory, id string, position, zone mgl64.Vec3, halfExtent float64) engine.EntityID {
	t.Helper()
	transform := at(position.X(), position.Y(), position.Z())
	transform.Scale = mgl64.Vec3{2, 1, 1}
	screen := addEntity(t, m, engine.EntitySpec{
		Name:       "Screen #[" + id + "]",
		Transform:  transform,
		Components: map[string]any{engine.ComponentSceneRef: "video"},
	})

	local := zone.Sub(position)
	addEntity(t, m, engine.EntitySpec{
		Name:       "Zone " + id,
		Parent:     screen,
		Transform:  at(local.X()/2, local.Y(), local.Z()),
		Components: box(halfExtent/2, halfExtent, halfExtent),
	})
	return screen
}

func newTestScreens(t *testing.T, m *engine.Memory, options config.VideoScreenOptions) (*ScreenController, *dom.MemoryElement) {
	t.Helper()
	controller, err := NewScreenController(m, testPlayer, dom.MemoryDocument{}, overlay.DepthPreserve3D, options)
	require.NoError(t, err)

	container := dom.NewMemoryElement("div")
	require.NoError(t, controller.Initialize(context.Background(), container, 800, 600))
	t.Cleanup(controller.Close)
	return controller, container
}

func memoryElement(t *testing.T, e dom.Element) *dom.MemoryElement {
	t.Helper()
	element, ok := e.(*dom.MemoryElement)
	require.True(t, ok)
	return element
}

func TestScreenController_Initialize(t *testing.T) {
	m := newTestEngine(t)
	screen := addScreen(t, m, "abc123", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 3)
	addEntity(t, m, engine.EntitySpec{Name: "Poster", Components: map[string]any{engine.ComponentSceneRef: "poster"}})
	addEntity(t, m, engine.EntitySpec{Name: "Screen #[no-scene-ref]"})

	controller, container := newTestScreens(t, m, screenOptions())

	screens := controller.Screens()
	require.Len(t, screens, 1)
	s := screens[0]
	assert.Equal(t, screen, s.Entity.ID)
	assert.Equal(t, "abc123", s.ScreenID)
	assert.Equal(t, "https://www.youtube.com/embed/abc123?rel=0&autoplay=1", s.URL)
	assert.False(t, s.Visible())
	require.Len(t, s.Volumes(), 1)

	element := memoryElement(t, s.Node.Element)
	assert.True(t, element.HasClass("video-element"))
	assert.Equal(t, "800px", element.Style("width"))
	assert.Equal(t, "400px", element.Style("height"))
	require.Len(t, element.Children(), 1)
	iframe := element.Children()[0]
	assert.Equal(t, "iframe", iframe.Tag())
	assert.Equal(t, "0px", iframe.Style("border"))
	assert.Equal(t, "800px", iframe.Style("width"))
	assert.Empty(t, iframe.Attribute("src"))

	assertVec3(t, mgl64.Vec3{0, 2, -5}, s.Node.Position)
	assertVec3(t, mgl64.Vec3{2.0 / 400, 2.0 / 400, 1}, s.Node.Scale)

	require.Len(t, container.Children(), 1)
	root := container.Children()[0]
	assert.Equal(t, "absolute", root.Style("position"))
	assert.Equal(t, "none", root.Style("pointer-events"))
	assert.Equal(t, "800px", root.Style("width"))

	assert.Equal(t, []engine.VisibilityChange{
		{ID: testPlayer, Visible: false},
		{ID: testPlayer, Visible: true},
	}, m.VisibilityChanges())

	notifier := m.Notifier()
	assert.Equal(t, 1, notifier.Listeners(engine.CamerasUpdated))
	assert.Equal(t, 1, notifier.Listeners(engine.FrameRendered))
	assert.Equal(t, 1, notifier.Listeners(engine.CanvasResized))
}

func TestScreenController_EnterExit(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addScreen(t, m, "abc123", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 3)
	controller, _ := newTestScreens(t, m, screenOptions())
	s := controller.Screens()[0]
	iframe := memoryElement(t, s.Node.Element).Children()[0]

	var edges []EventType
	record := func(event Event) { edges = append(edges, event.Type()) }
	controller.Events().Subscribe(TRIGGER_ENTER, record)
	controller.Events().Subscribe(TRIGGER_EXIT, record)

	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{0, 0, 0}))
	assert.True(t, s.Visible())
	assert.Equal(t, s.URL, iframe.Attribute("src"))
	assert.False(t, m.Visible(testPlayer))
	changes := len(m.VisibilityChanges())

	// Staying inside is not a transition
	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{1, 0, 1}))
	assert.True(t, s.Visible())
	assert.Len(t, m.VisibilityChanges(), changes)

	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{20, 0, 0}))
	assert.False(t, s.Visible())
	assert.Empty(t, iframe.Attribute("src"))
	assert.True(t, m.Visible(testPlayer))

	// Staying outside is not a transition either
	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{30, 0, 0}))
	assert.Equal(t, []EventType{TRIGGER_ENTER, TRIGGER_EXIT}, edges)
}

func TestScreenController_OverlappingScreens(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addScreen(t, m, "small", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 2)
	addScreen(t, m, "large", mgl64.Vec3{0, 2, 5}, mgl64.Vec3{0, 0, 0}, 8)
	controller, _ := newTestScreens(t, m, screenOptions())
	screens := controller.Screens()
	require.Len(t, screens, 2)
	small, large := screens[0], screens[1]

	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{0, 0, 0}))
	assert.True(t, small.Visible())
	assert.True(t, large.Visible())
	assert.False(t, m.Visible(testPlayer))

	// Leaving the small volume shows the player although the large screen is still shown
	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{5, 0, 0}))
	assert.False(t, small.Visible())
	assert.True(t, large.Visible())
	assert.True(t, m.Visible(testPlayer))
}

func TestScreenController_Render(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addScreen(t, m, "abc123", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 3)
	controller, _ := newTestScreens(t, m, screenOptions())
	s := controller.Screens()[0]
	element := memoryElement(t, s.Node.Element)

	m.RenderFrame(ctx, 1)
	cameraElement := memoryElement(t, controller.Renderer().CameraElement())
	require.Len(t, cameraElement.Children(), 1)
	assert.Same(t, element, cameraElement.Children()[0])
	assert.True(t, strings.HasPrefix(element.Style("transform"), "translate(-50%,-50%)matrix3d("))
	assert.Equal(t, "none", element.Style("display"))

	require.NoError(t, m.MoveViewport(ctx, 1, mgl64.Vec3{0, 0, 0}))
	m.RenderFrame(ctx, 2)
	assert.Empty(t, element.Style("display"))

	m.ResizeCanvas(ctx, 1024, 768)
	width, height := controller.Renderer().Size()
	assert.Equal(t, 1024.0, width)
	assert.Equal(t, 768.0, height)
}

func TestScreenController_Idle(t *testing.T) {
	t.Run("no screen", func(t *testing.T) {
		m := newTestEngine(t)
		controller, container := newTestScreens(t, m, screenOptions())

		assert.Empty(t, controller.Screens())
		assert.Empty(t, container.Children())
		assert.Equal(t, 0, m.Notifier().Listeners(engine.FrameRendered))
	})

	t.Run("disabled", func(t *testing.T) {
		m := newTestEngine(t)
		addScreen(t, m, "abc123", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 3)
		options := screenOptions()
		options.Enabled = false
		controller, container := newTestScreens(t, m, options)

		assert.Empty(t, controller.Screens())
		assert.Empty(t, container.Children())
		assert.Empty(t, m.VisibilityChanges())
	})
}

func TestScreenController_InvalidPattern(t *testing.T) {
	options := screenOptions()
	options.ScreenPattern = "Screen #[("
	_, err := NewScreenController(engine.NewMemory(), testPlayer, dom.MemoryDocument{}, overlay.DepthPreserve3D, options)
	assert.Error(t, err)
}

func TestScreenController_EngineErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	for _, op := range []engine.Op{engine.OpFilterEntities, engine.OpChildren, engine.OpGlobalTransform, engine.OpSetEntityVisibility} {
		t.Run(string(op), func(t *testing.T) {
			m := newTestEngine(t)
			addScreen(t, m, "abc123", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 3)
			m.InjectError(op, boom)

			controller, err := NewScreenController(m, testPlayer, dom.MemoryDocument{}, overlay.DepthPreserve3D, screenOptions())
			require.NoError(t, err)
			assert.ErrorIs(t, controller.Initialize(ctx, dom.NewMemoryElement("div"), 800, 600), boom)
			assert.Equal(t, 0, m.Notifier().Listeners(engine.CamerasUpdated))
		})
	}

	t.Run("evaluate", func(t *testing.T) {
		m := newTestEngine(t)
		addScreen(t, m, "a", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 3)
		addScreen(t, m, "b", mgl64.Vec3{0, 2, 5}, mgl64.Vec3{0, 0, 0}, 3)
		controller, _ := newTestScreens(t, m, screenOptions())

		m.InjectError(engine.OpGlobalMatrix, boom)
		err := controller.Evaluate(ctx, mgl64.Vec3{0, 0, 0})
		assert.ErrorIs(t, err, boom)
		for _, s := range controller.Screens() {
			assert.False(t, s.Visible())
		}
	})
}

func TestScreenController_Close(t *testing.T) {
	ctx := context.Background()
	m := newTestEngine(t)
	addScreen(t, m, "abc123", mgl64.Vec3{0, 2, -5}, mgl64.Vec3{0, 0, 0}, 3)

	controller, err := NewScreenController(m, testPlayer, dom.MemoryDocument{}, overlay.DepthPreserve3D, screenOptions())
	require.NoError(t, err)
	container := dom.NewMemoryElement("div")
	require.NoError(t, controller.Initialize(ctx, container, 800, 600))

	controller.Close()
	assert.Empty(t, container.Children())
	assert.Empty(t, controller.Screens())
	assert.Empty(t, controller.Scene().Children())
	assert.Equal(t, 0, m.Notifier().Listeners(engine.CamerasUpdated))
	assert.Equal(t, 0, m.Notifier().Listeners(engine.FrameRendered))
}
