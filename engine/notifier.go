package engine

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/maniartech/signals"
)

// EventName identifies a lifecycle notification
type EventName string

const (
	CamerasUpdated EventName = "OnCamerasUpdated"
	FrameRendered  EventName = "onFramePostRender"
	CanvasResized  EventName = "onCanvasResized"
)

type CamerasUpdatedEvent struct {
	Viewports []Viewport
}

type FrameRenderedEvent struct {
	Frame uint64
}

type CanvasResizedEvent struct {
	Width, Height float64
}

// Subscription identifies one listener, for Unsubscribe
type Subscription struct {
	Event EventName
	key   string
}

// Notifier dispatches lifecycle events synchronously, one listener after the
// other. The order between listeners of the same event is not part of the
// contract. Listeners stay registered until removed with Unsubscribe.
type Notifier struct {
	camerasUpdated signals.Signal[CamerasUpdatedEvent]
	frameRendered  signals.Signal[FrameRenderedEvent]
	canvasResized  signals.Signal[CanvasResizedEvent]

	nextKey atomic.Uint64
}

func NewNotifier() *Notifier {
	return &Notifier{
		camerasUpdated: signals.NewSync[CamerasUpdatedEvent](),
		frameRendered:  signals.NewSync[FrameRenderedEvent](),
		canvasResized:  signals.NewSync[CanvasResizedEvent](),
	}
}

func (n *Notifier) subscription(event EventName) Subscription {
	return Subscription{
		Event: event,
		key:   string(event) + "#" + strconv.FormatUint(n.nextKey.Add(1), 10),
	}
}

func (n *Notifier) OnCamerasUpdated(listener func(ctx context.Context, event CamerasUpdatedEvent)) Subscription {
	sub := n.subscription(CamerasUpdated)
	n.camerasUpdated.AddListener(listener, sub.key)
	return sub
}

func (n *Notifier) OnFrameRendered(listener func(ctx context.Context, event FrameRenderedEvent)) Subscription {
	sub := n.subscription(FrameRendered)
	n.frameRendered.AddListener(listener, sub.key)
	return sub
}

func (n *Notifier) OnCanvasResized(listener func(ctx context.Context, event CanvasResizedEvent)) Subscription {
	sub := n.subscription(CanvasResized)
	n.canvasResized.AddListener(listener, sub.key)
	return sub
}

// Unsubscribe removes a listener. Unknown subscriptions are ignored.
func (n *Notifier) Unsubscribe(sub Subscription) {
	switch sub.Event {
	case CamerasUpdated:
		n.camerasUpdated.RemoveListener(sub.key)
	case FrameRendered:
		n.frameRendered.RemoveListener(sub.key)
	case CanvasResized:
		n.canvasResized.RemoveListener(sub.key)
	}
}

// Listeners counts the listeners registered for an event
func (n *Notifier) Listeners(event EventName) int {
	switch event {
	case CamerasUpdated:
		return n.camerasUpdated.Len()
	case FrameRendered:
		return n.frameRendered.Len()
	case CanvasResized:
		return n.canvasResized.Len()
	default:
		return 0
	}
}

func (n *Notifier) EmitCamerasUpdated(ctx context.Context, event CamerasUpdatedEvent) {
	n.camerasUpdated.Emit(ctx, event)
}

func (n *Notifier) EmitFrameRendered(ctx context.Context, event FrameRenderedEvent) {
	n.frameRendered.Emit(ctx, event)
}

func (n *Notifier) EmitCanvasResized(ctx context.Context, event CanvasResizedEvent) {
	n.canvasResized.Emit(ctx, event)
}
