// Package interaction provides the default map interactions: drag to pan,
// wheel and double-click to zoom, and keyboard panning and zooming.
//
// Each interaction returns false from HandleEvent once it has consumed an
// event, so interactions added before it do not see it.
package interaction

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/phanxgames/willowmap"
	"github.com/tanema/gween/ease"
)

// view returns the Map's view when it supports direct manipulation.
func view(ev *willowmap.MapBrowserEvent) *willowmap.View {
	v, _ := ev.Map.View().(*willowmap.View)
	if v == nil || !v.IsDefined() {
		return nil
	}
	return v
}

// pixelDeltaToCoord converts a pixel delta to a coordinate delta using the
// linear part of the frame's pixel→coordinate transform.
func pixelDeltaToCoord(fs *willowmap.FrameState, dx, dy float64) (float64, float64) {
	m := fs.PixelToCoordinate
	return m[0]*dx + m[2]*dy, m[1]*dx + m[3]*dy
}

// zoomBy changes the resolution by ratio around anchor, animated over
// duration when it is positive.
func zoomBy(v *willowmap.View, ratio float64, anchor orb.Point, duration time.Duration) {
	if duration <= 0 {
		v.AdjustResolution(ratio, anchor)
		return
	}
	c, _ := v.Center()
	min, max := v.ResolutionRange()
	res := math.Max(min, math.Min(v.Resolution()*ratio, max))
	k := res / v.Resolution()
	v.Animate(willowmap.ViewTarget{
		Center:     orb.Point{anchor[0] + (c[0]-anchor[0])*k, anchor[1] + (c[1]-anchor[1])*k},
		Resolution: res,
	}, duration, ease.OutQuad, nil)
}

// --- DragPan ---

// DragPan pans the view while the left pointer button is dragged.
type DragPan struct {
	willowmap.BaseInteraction

	last    willowmap.Vec2
	down    bool
	panning bool
}

// NewDragPan creates a DragPan.
func NewDragPan() *DragPan { return &DragPan{} }

// SetMap implements willowmap.Interaction. A drag in progress ends when
// the pan is moved to another map or removed.
func (d *DragPan) SetMap(m *willowmap.Map) {
	if m != d.Map() {
		d.CancelGesture()
	}
	d.BaseInteraction.SetMap(m)
}

// CancelGesture implements willowmap.GestureCanceler.
func (d *DragPan) CancelGesture() {
	d.down = false
	if !d.panning {
		return
	}
	d.panning = false
	if m := d.Map(); m != nil {
		if v, ok := m.View().(*willowmap.View); ok && v != nil {
			v.EndInteraction()
		}
	}
}

// HandleEvent implements willowmap.Interaction.
func (d *DragPan) HandleEvent(ev *willowmap.MapBrowserEvent) bool {
	switch ev.Type {
	case willowmap.PointerDown:
		if d.panning {
			// The previous release never arrived.
			d.CancelGesture()
		}
		if ev.Original.Button != willowmap.MouseButtonLeft {
			return true
		}
		d.down = true
		d.last = ev.Pixel
		return true

	case willowmap.PointerDrag:
		if !d.down {
			return true
		}
		v := view(ev)
		if v == nil {
			return true
		}
		if !d.panning {
			d.panning = true
			v.CancelAnimations()
			v.BeginInteraction()
		}
		dx, dy := pixelDeltaToCoord(ev.FrameState, ev.Pixel.X-d.last.X, ev.Pixel.Y-d.last.Y)
		d.last = ev.Pixel
		v.Pan(-dx, -dy)
		return false

	case willowmap.PointerUp, willowmap.PointerCancel:
		d.down = false
		if d.panning {
			d.panning = false
			if v := view(ev); v != nil {
				v.EndInteraction()
			}
			return false
		}
	}
	return true
}

// --- MouseWheelZoom ---

// MouseWheelZoom zooms around the pointer on wheel events.
type MouseWheelZoom struct {
	willowmap.BaseInteraction

	// DeltaPerZoom is the wheel delta in pixels that doubles or halves the
	// resolution.
	DeltaPerZoom float64
	// Duration animates each step; zero zooms immediately.
	Duration time.Duration
}

// NewMouseWheelZoom creates a MouseWheelZoom with a 250ms animation.
func NewMouseWheelZoom() *MouseWheelZoom {
	return &MouseWheelZoom{DeltaPerZoom: 300, Duration: 250 * time.Millisecond}
}

// HandleEvent implements willowmap.Interaction.
func (w *MouseWheelZoom) HandleEvent(ev *willowmap.MapBrowserEvent) bool {
	if ev.Type != willowmap.Wheel || ev.Original.DeltaY == 0 {
		return true
	}
	v := view(ev)
	if v == nil {
		return true
	}
	ratio := math.Exp2(ev.Original.DeltaY / w.DeltaPerZoom)
	zoomBy(v, ratio, ev.Coordinate, w.Duration)
	ev.PreventDefault()
	return false
}

// --- DoubleClickZoom ---

// DoubleClickZoom zooms in around the pointer on double click, or out with
// Shift held.
type DoubleClickZoom struct {
	willowmap.BaseInteraction

	Duration time.Duration
}

// NewDoubleClickZoom creates a DoubleClickZoom with a 250ms animation.
func NewDoubleClickZoom() *DoubleClickZoom {
	return &DoubleClickZoom{Duration: 250 * time.Millisecond}
}

// HandleEvent implements willowmap.Interaction.
func (d *DoubleClickZoom) HandleEvent(ev *willowmap.MapBrowserEvent) bool {
	if ev.Type != willowmap.DblClick {
		return true
	}
	v := view(ev)
	if v == nil {
		return true
	}
	ratio := 0.5
	if ev.Original.Modifiers&willowmap.ModShift != 0 {
		ratio = 2
	}
	zoomBy(v, ratio, ev.Coordinate, d.Duration)
	return false
}

// --- Keyboard ---

// Key names accepted by the keyboard interactions.
const (
	KeyLeft  = "ArrowLeft"
	KeyRight = "ArrowRight"
	KeyUp    = "ArrowUp"
	KeyDown  = "ArrowDown"
	KeyPlus  = "+"
	KeyMinus = "-"
)

// KeyboardPan pans the view with the arrow keys.
type KeyboardPan struct {
	willowmap.BaseInteraction

	// PixelDelta is the pan distance per key press in pixels.
	PixelDelta float64
}

// NewKeyboardPan creates a KeyboardPan moving 128 pixels per key press.
func NewKeyboardPan() *KeyboardPan {
	return &KeyboardPan{PixelDelta: 128}
}

// HandleEvent implements willowmap.Interaction.
func (k *KeyboardPan) HandleEvent(ev *willowmap.MapBrowserEvent) bool {
	if ev.Type != willowmap.KeyDown {
		return true
	}
	var px, py float64
	switch ev.Original.Key {
	case KeyLeft:
		px = -k.PixelDelta
	case KeyRight:
		px = k.PixelDelta
	case KeyUp:
		py = -k.PixelDelta
	case KeyDown:
		py = k.PixelDelta
	default:
		return true
	}
	v := view(ev)
	if v == nil {
		return true
	}
	dx, dy := pixelDeltaToCoord(ev.FrameState, px, py)
	v.Pan(dx, dy)
	ev.PreventDefault()
	return false
}

// KeyboardZoom zooms the view with + and -.
type KeyboardZoom struct {
	willowmap.BaseInteraction

	Duration time.Duration
}

// NewKeyboardZoom creates a KeyboardZoom with a 100ms animation.
func NewKeyboardZoom() *KeyboardZoom {
	return &KeyboardZoom{Duration: 100 * time.Millisecond}
}

// HandleEvent implements willowmap.Interaction.
func (k *KeyboardZoom) HandleEvent(ev *willowmap.MapBrowserEvent) bool {
	if ev.Type != willowmap.KeyDown {
		return true
	}
	var ratio float64
	switch ev.Original.Key {
	case KeyPlus:
		ratio = 0.5
	case KeyMinus:
		ratio = 2
	default:
		return true
	}
	v := view(ev)
	if v == nil {
		return true
	}
	c, _ := v.Center()
	zoomBy(v, ratio, c, k.Duration)
	ev.PreventDefault()
	return false
}

// Defaults returns the default interaction set in registration order.
func Defaults() []willowmap.Interaction {
	return []willowmap.Interaction{
		NewDoubleClickZoom(),
		NewDragPan(),
		NewMouseWheelZoom(),
		NewKeyboardPan(),
		NewKeyboardZoom(),
	}
}
