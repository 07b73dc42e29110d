package lens

import (
	"sync"

	"github.com/ErikKalkoken/go-set"
	"github.com/akmonengine/lens/engine"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	TRIGGER_ENTER EventType = iota
	TRIGGER_EXIT
	TELEPORT
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// TriggerEnterEvent is emitted when the observer enters a screen volume
type TriggerEnterEvent struct {
	Trigger  engine.EntityID
	Position mgl64.Vec3
}

func (e TriggerEnterEvent) Type() EventType { return TRIGGER_ENTER }

// TriggerExitEvent is emitted when the observer leaves every volume of a screen
type TriggerExitEvent struct {
	Trigger  engine.EntityID
	Position mgl64.Vec3
}

func (e TriggerExitEvent) Type() EventType { return TRIGGER_EXIT }

// TeleportEvent is emitted after the player was moved
type TeleportEvent struct {
	Source      engine.EntityID
	Destination engine.EntityID
	Position    mgl64.Vec3
}

func (e TeleportEvent) Type() EventType { return TELEPORT }

// EventListener - callback for events
type EventListener func(event Event)

// Events dispatches trigger events to listeners, synchronously
type Events struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventListener
}

func NewEvents() *Events {
	return &Events{
		listeners: make(map[EventType][]EventListener),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

func (e *Events) emit(event Event) {
	e.mu.RLock()
	listeners := e.listeners[event.Type()]
	e.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Edge is a containment transition
type Edge uint8

const (
	EdgeNone Edge = iota
	// EdgeEnter is the outside -> inside transition
	EdgeEnter
	// EdgeExit is the inside -> outside transition
	EdgeExit
)

func (e Edge) String() string {
	switch e {
	case EdgeEnter:
		return "enter"
	case EdgeExit:
		return "exit"
	default:
		return "none"
	}
}

// EdgeTracker remembers which triggers currently contain the observer.
// Triggers start outside. Update is atomic per call, so overlapping
// evaluations report each transition once.
type EdgeTracker struct {
	mu     sync.Mutex
	inside set.Set[engine.EntityID]
}

// Update records the new containment state of id and returns the transition
func (t *EdgeTracker) Update(id engine.EntityID, inside bool) Edge {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasInside := t.inside.Contains(id)
	switch {
	case inside && !wasInside:
		t.inside.Add(id)
		return EdgeEnter
	case !inside && wasInside:
		t.inside.Delete(id)
		return EdgeExit
	default:
		return EdgeNone
	}
}

// Inside reports the last recorded state of id
func (t *EdgeTracker) Inside(id engine.EntityID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inside.Contains(id)
}

// Forget drops id, which is then considered outside
func (t *EdgeTracker) Forget(id engine.EntityID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inside.Delete(id)
}
