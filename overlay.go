package willowmap

import "github.com/paulmach/orb"

// Overlay is an element anchored to a map coordinate. After every painted
// frame its pixel position is recomputed from the frame's transform.
type Overlay struct {
	id       string
	position *orb.Point
	offset   Vec2

	m       *Map
	key     ListenerKey
	pixel   Vec2
	visible bool
}

// NewOverlay creates an overlay. Numeric ids are formatted by the caller
// (strconv.Itoa) so every id is a string.
func NewOverlay(id string) *Overlay {
	return &Overlay{id: id}
}

// ID returns the overlay id.
func (o *Overlay) ID() string { return o.id }

// Map returns the Map displaying the overlay.
func (o *Overlay) Map() *Map { return o.m }

// Position returns the anchor coordinate and whether one is set.
func (o *Overlay) Position() (orb.Point, bool) {
	if o.position == nil {
		return orb.Point{}, false
	}
	return *o.position, true
}

// SetPosition anchors the overlay at p and requests a render.
func (o *Overlay) SetPosition(p orb.Point) {
	o.position = &p
	if o.m != nil {
		o.m.Render()
	}
}

// ClearPosition hides the overlay.
func (o *Overlay) ClearPosition() {
	o.position = nil
	o.visible = false
}

// SetOffset shifts the overlay by off pixels.
func (o *Overlay) SetOffset(off Vec2) { o.offset = off }

// PixelPosition returns the last computed pixel position and whether the
// overlay is shown.
func (o *Overlay) PixelPosition() (Vec2, bool) {
	return o.pixel, o.visible
}

// SetMap attaches the overlay to m, or detaches it when m is nil.
func (o *Overlay) SetMap(m *Map) {
	o.key.Remove()
	o.key = ListenerKey{}
	o.m = m
	o.visible = false
	if m != nil {
		o.key = m.OnPostRender(o.updatePixelPosition)
	}
}

func (o *Overlay) hide() { o.visible = false }

func (o *Overlay) updatePixelPosition(ev *MapEvent) {
	if o.position == nil || ev.FrameState == nil {
		o.visible = false
		return
	}
	px := ev.FrameState.CoordToPixel(*o.position)
	o.pixel = Vec2{X: px.X + o.offset.X, Y: px.Y + o.offset.Y}
	o.visible = true
}
