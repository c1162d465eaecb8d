package willowmap

import (
	"math"
	"time"

	"github.com/paulmach/orb"
)

// BrowserEventType identifies a raw or derived input event.
type BrowserEventType uint8

const (
	PointerDown BrowserEventType = iota
	PointerMove
	PointerUp
	PointerCancel
	Wheel
	KeyDown
	KeyUp

	// Derived by the pointer tracker.
	PointerDrag
	Click
	DblClick
)

// String returns the event name.
func (t BrowserEventType) String() string {
	switch t {
	case PointerDown:
		return "pointerdown"
	case PointerMove:
		return "pointermove"
	case PointerUp:
		return "pointerup"
	case PointerCancel:
		return "pointercancel"
	case Wheel:
		return "wheel"
	case KeyDown:
		return "keydown"
	case KeyUp:
		return "keyup"
	case PointerDrag:
		return "pointerdrag"
	case Click:
		return "click"
	case DblClick:
		return "dblclick"
	default:
		return "unknown"
	}
}

// BrowserEvent is a raw input event forwarded by the host.
type BrowserEvent struct {
	Type      BrowserEventType
	Pixel     Vec2
	Button    MouseButton
	PointerID int
	Modifiers KeyModifiers
	// DeltaX and DeltaY are wheel deltas in pixels, positive down/right.
	DeltaX, DeltaY float64
	Key            string
	// Target is the host object the event was delivered to. It is only
	// compared through the Surface containment predicates.
	Target any
	Time   time.Time
}

// MapBrowserEvent is a BrowserEvent resolved against a Map and its current
// frame.
type MapBrowserEvent struct {
	Type       BrowserEventType
	Map        *Map
	Original   BrowserEvent
	Pixel      Vec2
	Coordinate orb.Point
	// Dragging is true for pointer events while the pointer is dragging.
	Dragging   bool
	FrameState *FrameState

	defaultPrevented   bool
	propagationStopped bool
}

// PreventDefault stops the event from reaching interactions when called by
// a Map browser-event listener.
func (e *MapBrowserEvent) PreventDefault() { e.defaultPrevented = true }

// DefaultPrevented reports whether PreventDefault was called.
func (e *MapBrowserEvent) DefaultPrevented() bool { return e.defaultPrevented }

// StopPropagation stops the event from reaching further interactions.
func (e *MapBrowserEvent) StopPropagation() { e.propagationStopped = true }

// PropagationStopped reports whether StopPropagation was called.
func (e *MapBrowserEvent) PropagationStopped() bool { return e.propagationStopped }

// --- Pointer tracker ---

const (
	defaultMoveTolerance = 1.0
	dblClickWindow       = 250 * time.Millisecond
)

type trackedPointer struct {
	down     bool
	start    Vec2
	dragging bool
	button   MouseButton
}

// pointerTracker derives drag, click and double-click events from raw
// pointer events.
type pointerTracker struct {
	tolerance float64
	pointers  map[int]*trackedPointer
	lastClick time.Time
	lastPixel Vec2
	hasClick  bool
}

func newPointerTracker(tolerance float64) pointerTracker {
	if tolerance <= 0 {
		tolerance = defaultMoveTolerance
	}
	return pointerTracker{tolerance: tolerance, pointers: map[int]*trackedPointer{}}
}

// track returns the event types to dispatch for ev, in order, and whether
// the pointer is dragging.
func (t *pointerTracker) track(ev BrowserEvent) ([]BrowserEventType, bool) {
	switch ev.Type {
	case PointerDown:
		t.pointers[ev.PointerID] = &trackedPointer{down: true, start: ev.Pixel, button: ev.Button}
		return []BrowserEventType{PointerDown}, false

	case PointerMove:
		p := t.pointers[ev.PointerID]
		if p == nil || !p.down {
			return []BrowserEventType{PointerMove}, false
		}
		if !p.dragging {
			dx, dy := ev.Pixel.X-p.start.X, ev.Pixel.Y-p.start.Y
			if math.Sqrt(dx*dx+dy*dy) > t.tolerance {
				p.dragging = true
			}
		}
		if p.dragging {
			return []BrowserEventType{PointerDrag, PointerMove}, true
		}
		return []BrowserEventType{PointerMove}, false

	case PointerUp:
		p := t.pointers[ev.PointerID]
		delete(t.pointers, ev.PointerID)
		if p == nil || p.dragging || p.button != MouseButtonLeft {
			return []BrowserEventType{PointerUp}, p != nil && p.dragging
		}
		out := []BrowserEventType{PointerUp, Click}
		if t.hasClick && ev.Time.Sub(t.lastClick) <= dblClickWindow && withinTolerance(ev.Pixel, t.lastPixel, t.tolerance) {
			out = append(out, DblClick)
			t.hasClick = false
		} else {
			t.hasClick = true
			t.lastClick = ev.Time
			t.lastPixel = ev.Pixel
		}
		return out, false

	case PointerCancel:
		delete(t.pointers, ev.PointerID)
		return []BrowserEventType{PointerCancel}, false
	}
	return []BrowserEventType{ev.Type}, false
}

func withinTolerance(a, b Vec2, tol float64) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return math.Sqrt(dx*dx+dy*dy) <= tol
}

// --- Dispatch ---

// HandleBrowserEvent feeds a raw host event through the pointer tracker and
// dispatches the resulting Map browser events.
func (m *Map) HandleBrowserEvent(ev BrowserEvent) {
	types, dragging := m.tracker.track(ev)
	for _, typ := range types {
		mbe := &MapBrowserEvent{
			Type:     typ,
			Map:      m,
			Original: ev,
			Pixel:    ev.Pixel,
			Dragging: dragging,
		}
		if fs := m.frameState; fs != nil {
			mbe.Coordinate = fs.PixelToCoord(ev.Pixel)
		}
		m.HandleMapBrowserEvent(mbe)
	}
}

// HandleMapBrowserEvent dispatches mbe to Map browser-event listeners and,
// unless one of them prevents the default, to the interactions from the
// most recently added to the first. Dispatch stops at the first interaction
// returning false or stopping propagation.
func (m *Map) HandleMapBrowserEvent(mbe *MapBrowserEvent) {
	if m.frameState == nil {
		// With no frame there are no coordinates to resolve the event with.
		if mbe.Type == PointerUp || mbe.Type == PointerCancel {
			m.cancelGestures()
		}
		return
	}
	switch mbe.Type {
	case PointerDown, Wheel, KeyDown:
		if s := m.Target(); s != nil {
			target := mbe.Original.Target
			if s.StopEventContains(target) || !s.Contains(target) {
				return
			}
		}
	}
	mbe.Map = m
	mbe.FrameState = m.frameState
	m.browserEvent.Emit(mbe)
	if mbe.defaultPrevented {
		return
	}

	interactions := m.interactions.Items()
	for i := len(interactions) - 1; i >= 0; i-- {
		it := interactions[i]
		if it.Map() != m || !it.Active() || m.Target() == nil {
			continue
		}
		cont := it.HandleEvent(mbe)
		if !cont || mbe.propagationStopped {
			break
		}
	}
}

// cancelGestures ends the gestures of attached interactions whose release
// could not be dispatched.
func (m *Map) cancelGestures() {
	m.interactions.ForEach(func(_ int, it Interaction) {
		if g, ok := it.(GestureCanceler); ok && it.Map() == m {
			g.CancelGesture()
		}
	})
}

// OnMapBrowserEvent registers fn for every Map browser event, before
// interactions see it.
func (m *Map) OnMapBrowserEvent(fn func(*MapBrowserEvent)) ListenerKey {
	return m.browserEvent.On(fn)
}
