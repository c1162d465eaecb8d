package willowmap

import (
	"math"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/paulmach/orb"
)

// Layer property keys.
const (
	PropOpacity       = "opacity"
	PropVisible       = "visible"
	PropZIndex        = "zIndex"
	PropMinResolution = "minResolution"
	PropMaxResolution = "maxResolution"
	PropExtent        = "extent"
	PropSource        = "source"
)

// LayerSource is the data source behind a Layer.
type LayerSource interface {
	// Key identifies the source in tile sets and the tile queue.
	Key() string
	// Loading reports whether the source is still fetching data needed by
	// the last frame.
	Loading() bool
}

// FrameSource is implemented by sources that must register the tiles they
// need with the frame before it is painted.
type FrameSource interface {
	LayerSource
	PrepareFrame(fs *FrameState, state LayerState)
}

// LayerRenderer is the per-layer renderer handle. A layer without one is
// considered ready.
type LayerRenderer interface {
	Ready() bool
}

// LayerBase is implemented by *Layer and *LayerGroup.
type LayerBase interface {
	ID() uint32
	Properties() *Object
	Visible() bool
	SetVisible(bool)
	Opacity() float64
	SetOpacity(float64)

	// appendStates appends the flattened render states of this subtree.
	appendStates(dst []LayerState) []LayerState
	// forEachLayer calls fn for every leaf in the subtree.
	forEachLayer(fn func(*Layer))
}

// LayerEvent is emitted by a LayerGroup when a layer enters or leaves its
// subtree.
type LayerEvent struct {
	Layer LayerBase
}

// layerIDCounter hands out layer ids. Atomic because layers may be built on
// loader goroutines before being handed to the map goroutine.
var layerIDCounter atomic.Uint32

func nextLayerID() uint32 {
	return layerIDCounter.Add(1)
}

// layerMaps associates leaf layer ids with the Map currently displaying
// them. Values are weak so a forgotten Map can be collected.
var (
	layerMapsMu sync.Mutex
	layerMaps   = map[uint32]weak.Pointer[Map]{}
)

func setLayerMap(id uint32, m *Map) {
	layerMapsMu.Lock()
	defer layerMapsMu.Unlock()
	if m == nil {
		delete(layerMaps, id)
		return
	}
	layerMaps[id] = weak.Make(m)
}

// clearLayerMap removes the association only if it still points at m.
func clearLayerMap(id uint32, m *Map) {
	layerMapsMu.Lock()
	defer layerMapsMu.Unlock()
	if p, ok := layerMaps[id]; ok && p.Value() == m {
		delete(layerMaps, id)
	}
}

func layerMap(id uint32) *Map {
	layerMapsMu.Lock()
	defer layerMapsMu.Unlock()
	p, ok := layerMaps[id]
	if !ok {
		return nil
	}
	return p.Value()
}

// layerDefaults stores the common property defaults.
func layerDefaults(o *Object) {
	o.setSilent(PropOpacity, 1.0)
	o.setSilent(PropVisible, true)
	o.setSilent(PropMinResolution, 0.0)
	o.setSilent(PropMaxResolution, math.Inf(1))
}

// --- Layer ---

// Layer is a leaf of the layer tree.
type Layer struct {
	Object

	Name     string
	id       uint32
	renderer LayerRenderer
}

// NewLayer creates a visible, fully opaque layer drawing src.
func NewLayer(name string, src LayerSource) *Layer {
	l := &Layer{Name: name, id: nextLayerID()}
	layerDefaults(&l.Object)
	if src != nil {
		l.setSilent(PropSource, src)
	}
	return l
}

// ID returns the layer's unique id.
func (l *Layer) ID() uint32 { return l.id }

// Properties returns the layer's observable property store.
func (l *Layer) Properties() *Object { return &l.Object }

// Map returns the Map currently displaying this layer, or nil when the layer
// is not reachable from any Map's root group.
func (l *Layer) Map() *Map {
	return layerMap(l.id)
}

// Source returns the layer's source, or nil.
func (l *Layer) Source() LayerSource {
	src, _ := l.Get(PropSource).(LayerSource)
	return src
}

// SetSource replaces the layer's source.
func (l *Layer) SetSource(src LayerSource) {
	l.Set(PropSource, src)
}

// Renderer returns the layer renderer handle, or nil.
func (l *Layer) Renderer() LayerRenderer { return l.renderer }

// SetRenderer attaches a renderer handle and marks the layer changed.
func (l *Layer) SetRenderer(r LayerRenderer) {
	l.renderer = r
	l.Changed()
}

// Loading reports whether the layer's source is loading.
func (l *Layer) Loading() bool {
	src := l.Source()
	return src != nil && src.Loading()
}

// Ready reports whether the layer renderer can paint.
func (l *Layer) Ready() bool {
	return l.renderer == nil || l.renderer.Ready()
}

func (l *Layer) Visible() bool { return getBool(&l.Object, PropVisible, true) }
func (l *Layer) SetVisible(v bool) { l.Set(PropVisible, v) }
func (l *Layer) Opacity() float64 { return getFloat(&l.Object, PropOpacity, 1) }
func (l *Layer) SetOpacity(v float64) { l.Set(PropOpacity, v) }

// ZIndex returns the layer z-index and whether one was set explicitly.
func (l *Layer) ZIndex() (int, bool) {
	z, ok := l.Get(PropZIndex).(int)
	return z, ok
}

// SetZIndex sets the layer z-index.
func (l *Layer) SetZIndex(z int) { l.Set(PropZIndex, z) }

// SetResolutionRange limits the resolutions at which the layer is drawn to
// [min, max).
func (l *Layer) SetResolutionRange(min, max float64) {
	l.Set(PropMinResolution, min)
	l.Set(PropMaxResolution, max)
}

// SetExtent limits rendering to b.
func (l *Layer) SetExtent(b orb.Bound) { l.Set(PropExtent, b) }

func (l *Layer) appendStates(dst []LayerState) []LayerState {
	z, explicit := l.ZIndex()
	s := LayerState{
		Layer:         l,
		Opacity:       clamp01(l.Opacity()),
		Visible:       l.Visible(),
		ZIndex:        z,
		MinResolution: getFloat(&l.Object, PropMinResolution, 0),
		MaxResolution: getFloat(&l.Object, PropMaxResolution, math.Inf(1)),
		explicitZ:     explicit,
	}
	if b, ok := l.Get(PropExtent).(orb.Bound); ok {
		s.Extent = &b
	}
	return append(dst, s)
}

func (l *Layer) forEachLayer(fn func(*Layer)) { fn(l) }

// --- LayerGroup ---

// LayerGroup is an inner node of the layer tree. Structural edits anywhere
// in its subtree are re-emitted as add-layer / remove-layer events, so a
// single subscription on the root sees all of them.
type LayerGroup struct {
	Object

	Name   string
	id     uint32
	layers *Collection[LayerBase]

	collectionKeys []ListenerKey
	childKeys      map[uint32][]ListenerKey

	addLayer    Emitter[LayerEvent]
	removeLayer Emitter[LayerEvent]
}

// NewLayerGroup creates a group holding layers in drawing order.
// Panics on nil or repeated entries.
func NewLayerGroup(name string, layers ...LayerBase) *LayerGroup {
	g := &LayerGroup{Name: name, id: nextLayerID(), childKeys: map[uint32][]ListenerKey{}}
	layerDefaults(&g.Object)
	coll, err := NewUniqueCollection[LayerBase]()
	if err != nil {
		panic("willowmap: " + err.Error())
	}
	g.bindCollection(coll)
	for _, l := range layers {
		g.Add(l)
	}
	return g
}

func (g *LayerGroup) ID() uint32 { return g.id }
func (g *LayerGroup) Properties() *Object { return &g.Object }
func (g *LayerGroup) Visible() bool { return getBool(&g.Object, PropVisible, true) }
func (g *LayerGroup) SetVisible(v bool) { g.Set(PropVisible, v) }
func (g *LayerGroup) Opacity() float64 { return getFloat(&g.Object, PropOpacity, 1) }
func (g *LayerGroup) SetOpacity(v float64) { g.Set(PropOpacity, v) }
func (g *LayerGroup) SetZIndex(z int) { g.Set(PropZIndex, z) }
func (g *LayerGroup) SetExtent(b orb.Bound) { g.Set(PropExtent, b) }
func (g *LayerGroup) Layers() *Collection[LayerBase] { return g.layers }

// SetResolutionRange narrows the resolution range of every layer below g.
func (g *LayerGroup) SetResolutionRange(min, max float64) {
	g.Set(PropMinResolution, min)
	g.Set(PropMaxResolution, max)
}

// Add appends l to the group.
// Panics if l is nil, already a direct child, or an ancestor of g (cycle).
func (g *LayerGroup) Add(l LayerBase) {
	g.checkChild(l)
	if _, err := g.layers.Push(l); err != nil {
		panic("willowmap: layer already in group")
	}
}

// InsertAt inserts l at index. Same checks as Add.
func (g *LayerGroup) InsertAt(index int, l LayerBase) {
	g.checkChild(l)
	if err := g.layers.InsertAt(index, l); err != nil {
		panic("willowmap: layer already in group")
	}
}

// Remove removes l from the group and reports whether it was a child.
func (g *LayerGroup) Remove(l LayerBase) bool {
	return g.layers.Remove(l)
}

// SetLayers replaces the group's children. A remove-layer event is emitted
// for every previous child and an add-layer event for every new one.
func (g *LayerGroup) SetLayers(layers ...LayerBase) {
	for _, l := range layers {
		g.checkChild(l)
	}
	coll, err := NewUniqueCollection(layers...)
	if err != nil {
		panic("willowmap: repeated layer in SetLayers")
	}
	old := g.layers
	Unlisten(g.collectionKeys)
	g.collectionKeys = nil
	for i := old.Len() - 1; i >= 0; i-- {
		l := old.At(i)
		g.unregisterChild(l)
		g.removeLayer.Emit(LayerEvent{Layer: l})
	}
	g.bindCollection(coll)
	for _, l := range coll.Items() {
		g.registerChild(l)
		g.addLayer.Emit(LayerEvent{Layer: l})
	}
	g.Changed()
}

// OnAddLayer registers fn for layers entering the subtree.
func (g *LayerGroup) OnAddLayer(fn func(LayerEvent)) ListenerKey {
	return g.addLayer.On(fn)
}

// OnRemoveLayer registers fn for layers leaving the subtree.
func (g *LayerGroup) OnRemoveLayer(fn func(LayerEvent)) ListenerKey {
	return g.removeLayer.On(fn)
}

// LayerStates returns the flattened render states of the subtree.
func (g *LayerGroup) LayerStates() []LayerState {
	return g.appendStates(nil)
}

func (g *LayerGroup) bindCollection(coll *Collection[LayerBase]) {
	g.layers = coll
	g.collectionKeys = []ListenerKey{
		coll.OnAdd(func(ev CollectionEvent[LayerBase]) {
			g.registerChild(ev.Element)
			g.addLayer.Emit(LayerEvent{Layer: ev.Element})
			g.Changed()
		}),
		coll.OnRemove(func(ev CollectionEvent[LayerBase]) {
			g.unregisterChild(ev.Element)
			g.removeLayer.Emit(LayerEvent{Layer: ev.Element})
			g.Changed()
		}),
	}
}

func (g *LayerGroup) checkChild(l LayerBase) {
	if l == nil {
		panic("willowmap: cannot add nil layer")
	}
	if sub, ok := l.(*LayerGroup); ok && (sub == g || sub.containsGroup(g)) {
		panic("willowmap: adding layer group would create a cycle")
	}
}

// containsGroup reports whether target is g or a descendant of g.
func (g *LayerGroup) containsGroup(target *LayerGroup) bool {
	if g == target {
		return true
	}
	for _, l := range g.layers.items {
		if sub, ok := l.(*LayerGroup); ok && sub.containsGroup(target) {
			return true
		}
	}
	return false
}

// registerChild relays the child's changes to g.
func (g *LayerGroup) registerChild(l LayerBase) {
	props := l.Properties()
	keys := []ListenerKey{
		props.OnPropertyChange(func(PropertyChange) { g.Changed() }),
		props.OnChange(g.Changed),
	}
	if sub, ok := l.(*LayerGroup); ok {
		keys = append(keys,
			sub.OnAddLayer(func(ev LayerEvent) { g.addLayer.Emit(ev) }),
			sub.OnRemoveLayer(func(ev LayerEvent) { g.removeLayer.Emit(ev) }),
		)
	}
	g.childKeys[l.ID()] = keys
}

func (g *LayerGroup) unregisterChild(l LayerBase) {
	Unlisten(g.childKeys[l.ID()])
	delete(g.childKeys, l.ID())
}

// appendStates flattens the subtree depth-first and composes the group's
// own state into each descendant.
func (g *LayerGroup) appendStates(dst []LayerState) []LayerState {
	start := len(dst)
	for _, l := range g.layers.items {
		dst = l.appendStates(dst)
	}

	opacity := clamp01(g.Opacity())
	visible := g.Visible()
	minRes := getFloat(&g.Object, PropMinResolution, 0)
	maxRes := getFloat(&g.Object, PropMaxResolution, math.Inf(1))
	z, hasZ := g.Get(PropZIndex).(int)
	ext, hasExt := g.Get(PropExtent).(orb.Bound)

	for i := start; i < len(dst); i++ {
		s := &dst[i]
		s.Opacity *= opacity
		s.Visible = s.Visible && visible
		s.MinResolution = math.Max(s.MinResolution, minRes)
		s.MaxResolution = math.Min(s.MaxResolution, maxRes)
		if hasExt {
			if s.Extent == nil {
				e := ext
				s.Extent = &e
			} else {
				e := ExtentIntersection(*s.Extent, ext)
				s.Extent = &e
			}
		}
		if hasZ && !s.explicitZ {
			s.ZIndex = z
			s.explicitZ = true
		}
	}
	return dst
}

func (g *LayerGroup) forEachLayer(fn func(*Layer)) {
	for _, l := range g.layers.items {
		l.forEachLayer(fn)
	}
}

// --- LayerState ---

// LayerState is the effective render state of one leaf layer in a frame,
// with the state of every enclosing group composed in.
type LayerState struct {
	Layer         *Layer
	Opacity       float64
	Visible       bool
	ZIndex        int
	MinResolution float64
	MaxResolution float64
	// Extent limits rendering; nil means unbounded.
	Extent *orb.Bound

	explicitZ bool
}

// InView reports whether the layer should be drawn at the given view state.
func (s LayerState) InView(v ViewState) bool {
	return s.Visible && v.Resolution >= s.MinResolution && v.Resolution < s.MaxResolution
}

// SortByZIndex orders states by z-index, preserving tree order for equal
// z-indexes. Stable insertion sort: the input is tree-ordered and usually
// already sorted.
func SortByZIndex(states []LayerState) {
	for i := 1; i < len(states); i++ {
		key := states[i]
		j := i - 1
		for j >= 0 && states[j].ZIndex > key.ZIndex {
			states[j+1] = states[j]
			j--
		}
		states[j+1] = key
	}
}

// --- helpers ---

func getFloat(o *Object, key string, def float64) float64 {
	switch v := o.Get(key).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func getBool(o *Object, key string, def bool) bool {
	if v, ok := o.Get(key).(bool); ok {
		return v
	}
	return def
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
