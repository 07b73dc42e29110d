package lens

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sync"

	"github.com/akmonengine/lens/config"
	"github.com/akmonengine/lens/dom"
	"github.com/akmonengine/lens/engine"
	"github.com/akmonengine/lens/internal/logging"
	"github.com/akmonengine/lens/overlay"
	"github.com/akmonengine/lens/volume"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"
)

// The screen plane spans 2 units in width and height in its local space
const (
	planeWidth  = 2.0
	planeHeight = 2.0
)

const visibleClass = "visible"

// Screen is a DOM overlay placed on a screen entity, shown while the observer
// stands in one of its volumes.
type Screen struct {
	Entity   engine.Entity
	ScreenID string
	Node     *overlay.Node
	URL      string

	iframe  dom.Element
	volumes []triggerVolume
}

// Visible reports whether the overlay is shown
func (s *Screen) Visible() bool {
	return s.Node.Visible && s.Node.Element.HasClass(visibleClass)
}

// SetVisibility shows or hides the overlay. The embedded page is unloaded
// while hidden.
func (s *Screen) SetVisibility(visible bool) {
	s.Node.Visible = visible
	if visible {
		s.Node.Element.AddClass(visibleClass)
		s.iframe.SetAttribute("src", s.URL)
	} else {
		s.Node.Element.RemoveClass(visibleClass)
		s.iframe.SetAttribute("src", "")
	}
}

// Volumes returns the box volumes attached to the screen
func (s *Screen) Volumes() []engine.Entity {
	entities := make([]engine.Entity, len(s.volumes))
	for i, v := range s.volumes {
		entities[i] = v.entity
	}
	return entities
}

// ScreenController shows a screen overlay while the active viewport is inside
// any of the screen volumes, and hides the player meanwhile. Screens are
// independent: when several claim the observer, they all show and the player
// visibility follows the last transition applied.
type ScreenController struct {
	engine   engine.Engine
	player   engine.EntityID
	options  config.VideoScreenOptions
	document dom.Document
	pattern  *regexp.Regexp

	renderer *overlay.Renderer
	scene    *overlay.Node
	events   *Events
	tracker  EdgeTracker

	mu            sync.RWMutex
	screens       []*Screen
	subscriptions []engine.Subscription
}

// NewScreenController creates an idle controller. It fails when the screen
// pattern does not compile.
func NewScreenController(eng engine.Engine, player engine.EntityID, document dom.Document, depthMode overlay.DepthMode, options config.VideoScreenOptions) (*ScreenController, error) {
	pattern, err := regexp.Compile(options.ScreenPattern)
	if err != nil {
		return nil, fmt.Errorf("screens: pattern: %w", err)
	}

	return &ScreenController{
		engine:   eng,
		player:   player,
		options:  options,
		document: document,
		pattern:  pattern,
		renderer: overlay.NewRenderer(document, depthMode),
		scene:    overlay.NewGroup(),
		events:   NewEvents(),
	}, nil
}

// Renderer draws the screen overlays
func (c *ScreenController) Renderer() *overlay.Renderer {
	return c.renderer
}

// Scene is the overlay tree holding one node per screen
func (c *ScreenController) Scene() *overlay.Node {
	return c.scene
}

// Events emits TRIGGER_ENTER and TRIGGER_EXIT events, keyed by screen entity
func (c *ScreenController) Events() *Events {
	return c.events
}

// Screens returns the discovered screens in discovery order
func (c *ScreenController) Screens() []*Screen {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Screen(nil), c.screens...)
}

// Initialize discovers the screens, attaches the renderer root to container
// and subscribes to the engine notifications. Finding no screen is not an
// error, the controller then stays idle.
func (c *ScreenController) Initialize(ctx context.Context, container dom.Element, width, height float64) error {
	if !c.options.Enabled {
		logging.Logger().Debug("video screens disabled")
		return nil
	}

	// A player hidden when the page was reloaded is shown again
	if err := c.engine.SetEntityVisibility(ctx, c.player, false); err != nil {
		return fmt.Errorf("screens: reset player visibility: %w", err)
	}
	if err := c.engine.SetEntityVisibility(ctx, c.player, true); err != nil {
		return fmt.Errorf("screens: reset player visibility: %w", err)
	}

	candidates, err := c.findScreens(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		logging.Logger().Warn("no screen entity detected", "pattern", c.pattern.String())
		return nil
	}

	screens, err := c.buildScreens(ctx, candidates)
	if err != nil {
		return err
	}

	c.renderer.SetSize(width, height)
	root := c.renderer.Root()
	root.SetStyle("position", "absolute")
	root.SetStyle("top", "0")
	root.SetStyle("pointer-events", "none")
	if container != nil {
		container.AppendChild(root)
	}

	for _, screen := range screens {
		c.scene.Add(screen.Node)
	}

	notifier := c.engine.Notifier()
	c.mu.Lock()
	c.screens = screens
	c.subscriptions = append(c.subscriptions,
		notifier.OnFrameRendered(c.onFrameRendered),
		notifier.OnCanvasResized(c.onCanvasResized),
		notifier.OnCamerasUpdated(c.onCamerasUpdated),
	)
	c.mu.Unlock()

	ids := make([]string, len(screens))
	for i, screen := range screens {
		ids[i] = screen.ScreenID
	}
	logging.Logger().Info("screens detected", "count", len(screens), "ids", ids)
	return nil
}

type screenCandidate struct {
	entity   engine.Entity
	screenID string
}

func (c *ScreenController) findScreens(ctx context.Context) ([]screenCandidate, error) {
	entities, err := c.engine.FilterEntities(ctx, engine.Filter{
		Mandatory: []string{engine.ComponentSceneRef},
	})
	if err != nil {
		return nil, fmt.Errorf("screens: discover: %w", err)
	}

	var candidates []screenCandidate
	for _, entity := range entities {
		match := c.pattern.FindStringSubmatch(entity.Name)
		if len(match) > 1 {
			candidates = append(candidates, screenCandidate{entity: entity, screenID: match[1]})
		}
	}
	return candidates, nil
}

// buildScreens queries every screen concurrently, then creates the DOM
// elements in discovery order.
func (c *ScreenController) buildScreens(ctx context.Context, candidates []screenCandidate) ([]*Screen, error) {
	transforms := make([]volume.Transform, len(candidates))
	children := make([][]engine.Entity, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		g.Go(func() error {
			transform, err := c.engine.GlobalTransform(gctx, candidate.entity.ID)
			if err != nil {
				return fmt.Errorf("screens: %q transform: %w", candidate.entity.Name, err)
			}
			entities, err := c.engine.Children(gctx, candidate.entity.ID)
			if err != nil {
				return fmt.Errorf("screens: %q children: %w", candidate.entity.Name, err)
			}
			transforms[i] = transform
			children[i] = entities
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	screens := make([]*Screen, len(candidates))
	for i, candidate := range candidates {
		screens[i] = c.newScreen(candidate, transforms[i], children[i])
	}
	return screens, nil
}

func (c *ScreenController) newScreen(candidate screenCandidate, transform volume.Transform, children []engine.Entity) *Screen {
	scale := c.options.PixelToUnitScale
	width := overlay.Pixels(transform.Scale.X() * scale)
	height := overlay.Pixels(transform.Scale.Y() * scale)

	element := c.document.CreateElement("div")
	element.SetStyle("position", "absolute")
	element.SetStyle("pointer-events", "auto")
	element.SetStyle("width", width)
	element.SetStyle("height", height)
	element.AddClass("video-element")

	iframe := c.document.CreateElement("iframe")
	iframe.SetStyle("width", width)
	iframe.SetStyle("height", height)
	iframe.SetStyle("border", "0px")
	element.AppendChild(iframe)

	// The element is sized in pixels from the entity scale, so the node
	// only maps the pixel size back onto the 2x2 plane.
	node := overlay.NewNode(element)
	node.Name = candidate.entity.Name
	node.Position = transform.Position
	node.Rotation = transform.Rotation
	node.Scale = mgl64.Vec3{planeWidth / scale, planeHeight / scale, 1}
	node.Visible = false

	var volumes []triggerVolume
	for _, child := range children {
		if v, ok := newTriggerVolume(child); ok {
			volumes = append(volumes, v)
		}
	}

	return &Screen{
		Entity:   candidate.entity,
		ScreenID: candidate.screenID,
		Node:     node,
		URL:      fmt.Sprintf(c.options.EmbedURL, url.PathEscape(candidate.screenID)),
		iframe:   iframe,
		volumes:  volumes,
	}
}

// Evaluate updates every screen for an observer at position. A failing
// volume query does not prevent the other screens from being updated, the
// errors are joined.
func (c *ScreenController) Evaluate(ctx context.Context, position mgl64.Vec3) error {
	var errs []error
	for _, screen := range c.Screens() {
		inside, err := c.insideAny(ctx, screen, position)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		switch c.tracker.Update(screen.Entity.ID, inside) {
		case EdgeEnter:
			screen.SetVisibility(true)
			if err := c.engine.SetEntityVisibility(ctx, c.player, false); err != nil {
				errs = append(errs, fmt.Errorf("screens: hide player: %w", err))
			}
			logging.Logger().Debug("screen shown", "screen", screen.ScreenID)
			c.events.emit(TriggerEnterEvent{Trigger: screen.Entity.ID, Position: position})
		case EdgeExit:
			screen.SetVisibility(false)
			if err := c.engine.SetEntityVisibility(ctx, c.player, true); err != nil {
				errs = append(errs, fmt.Errorf("screens: show player: %w", err))
			}
			logging.Logger().Debug("screen hidden", "screen", screen.ScreenID)
			c.events.emit(TriggerExitEvent{Trigger: screen.Entity.ID, Position: position})
		}
	}
	return errors.Join(errs...)
}

func (c *ScreenController) insideAny(ctx context.Context, screen *Screen, position mgl64.Vec3) (bool, error) {
	for _, v := range screen.volumes {
		inside, err := containsPosition(ctx, c.engine, v, position)
		if err != nil {
			return false, fmt.Errorf("screens: %q: %w", screen.ScreenID, err)
		}
		if inside {
			return true, nil
		}
	}
	return false, nil
}

// Render draws the overlay for every active viewport with a camera
func (c *ScreenController) Render() {
	for _, viewport := range c.engine.ActiveViewports() {
		if viewport.Camera == nil {
			continue
		}
		if err := c.renderer.Render(c.scene, *viewport.Camera); err != nil {
			logging.Logger().Warn("overlay frame skipped", "viewport", viewport.ID, "error", err)
		}
	}
}

func (c *ScreenController) onFrameRendered(context.Context, engine.FrameRenderedEvent) {
	c.Render()
}

func (c *ScreenController) onCanvasResized(_ context.Context, event engine.CanvasResizedEvent) {
	c.renderer.SetSize(event.Width, event.Height)
}

func (c *ScreenController) onCamerasUpdated(ctx context.Context, event engine.CamerasUpdatedEvent) {
	position, ok := observerPosition(c.engine, event.Viewports)
	if !ok {
		return
	}
	if err := c.Evaluate(ctx, position); err != nil {
		logging.Logger().Error("screen evaluation failed", "error", err)
	}
}

// Close unsubscribes from the engine and removes the overlay from the page
func (c *ScreenController) Close() {
	c.mu.Lock()
	subscriptions := c.subscriptions
	screens := c.screens
	c.subscriptions = nil
	c.screens = nil
	c.mu.Unlock()

	for _, sub := range subscriptions {
		c.engine.Notifier().Unsubscribe(sub)
	}
	for _, screen := range screens {
		c.scene.Remove(screen.Node)
		c.tracker.Forget(screen.Entity.ID)
	}
	dom.Detach(c.renderer.Root())
}
