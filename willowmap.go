package willowmap

import (
	"math"

	"github.com/paulmach/orb"
)

// Size is the size of a render surface in surface units (CSS pixels for a
// browser-like host, logical window pixels for ebiten). The zero Size means
// "no size".
type Size struct {
	Width, Height float64
}

// HasArea reports whether both dimensions are strictly positive.
func (s Size) HasArea() bool {
	return s.Width > 0 && s.Height > 0
}

// Vec2 is a 2D vector used for pixels and deltas.
type Vec2 struct {
	X, Y float64
}

// EmptyExtent returns the empty sentinel extent. It contains no point and
// differs from every extent built from a real view.
func EmptyExtent() orb.Bound {
	inf := math.Inf(1)
	return orb.Bound{Min: orb.Point{inf, inf}, Max: orb.Point{-inf, -inf}}
}

// ExtentIsEmpty reports whether b is the empty sentinel or otherwise inverted.
func ExtentIsEmpty(b orb.Bound) bool {
	return b.Max[0] < b.Min[0] || b.Max[1] < b.Min[1]
}

// ExtentIntersection returns the overlap of a and b. The result is empty
// when they do not overlap.
func ExtentIntersection(a, b orb.Bound) orb.Bound {
	r := orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
	if ExtentIsEmpty(r) {
		return EmptyExtent()
	}
	return r
}

// ViewHint identifies a transient reason the view is in motion.
type ViewHint uint8

const (
	HintAnimating   ViewHint = iota // an animated transition is running
	HintInteracting                 // the user is dragging, pinching or zooming
)

// ViewHints is the per-frame snapshot of view hint flags.
type ViewHints struct {
	Animating   bool
	Interacting bool
}

// Moving reports whether either hint is set.
func (h ViewHints) Moving() bool {
	return h.Animating || h.Interacting
}

// MapEventType identifies a Map lifecycle event.
type MapEventType uint8

const (
	EventMoveStart      MapEventType = iota // visible extent starts changing
	EventMoveEnd                            // visible extent settled
	EventLoadStart                          // tiles or layers started loading
	EventLoadEnd                            // everything visible finished loading
	EventRenderComplete                     // a non-animating frame with nothing pending
	EventPostRender                         // a frame was built and painted
)

// String returns the lowercase event name.
func (t MapEventType) String() string {
	switch t {
	case EventMoveStart:
		return "movestart"
	case EventMoveEnd:
		return "moveend"
	case EventLoadStart:
		return "loadstart"
	case EventLoadEnd:
		return "loadend"
	case EventRenderComplete:
		return "rendercomplete"
	case EventPostRender:
		return "postrender"
	default:
		return "unknown"
	}
}

// MapEvent carries a lifecycle event and the frame it was derived from.
// For EventMoveStart the frame is the one before the extent changed.
type MapEvent struct {
	Type       MapEventType
	Map        *Map
	FrameState *FrameState
}

// MouseButton identifies a mouse button.
type MouseButton uint8

const (
	MouseButtonLeft   MouseButton = iota // primary (left) mouse button
	MouseButtonRight                     // secondary (right) mouse button
	MouseButtonMiddle                    // middle mouse button (scroll wheel click)
)

// KeyModifiers is a bitmask of keyboard modifier keys.
// Values can be combined with bitwise OR (e.g. ModShift | ModCtrl).
type KeyModifiers uint8

const (
	ModShift KeyModifiers = 1 << iota // Shift key
	ModCtrl                           // Control key
	ModAlt                            // Alt / Option key
	ModMeta                           // Meta / Command / Windows key
)
