package willowmap

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// Map property keys.
const (
	PropLayerGroup = "layergroup"
	PropSize       = "size"
	PropTarget     = "target"
	PropView       = "view"
)

// ErrInvalidOptions is wrapped by every configuration error NewMap returns.
var ErrInvalidOptions = errors.New("willowmap: invalid map options")

// Throttle configures tile loading per frame. Zero fields take the defaults
// of DefaultThrottle.
type Throttle struct {
	// MaxTilesLoading bounds concurrent loads while the view is idle.
	MaxTilesLoading int
	// InteractingMaxLoading bounds concurrent loads while the view is
	// animating or interacting and the frame is within budget.
	InteractingMaxLoading int
	// InteractingMaxNew bounds the loads started per frame in that state.
	InteractingMaxNew int
	// FrameBudget is the time after the frame timestamp beyond which no new
	// loads start while the view is moving.
	FrameBudget time.Duration
}

// DefaultThrottle returns the default tile throttle.
func DefaultThrottle() Throttle {
	return Throttle{
		MaxTilesLoading:       16,
		InteractingMaxLoading: 8,
		InteractingMaxNew:     2,
		FrameBudget:           8 * time.Millisecond,
	}
}

// limits returns (maxTotalLoading, maxNewLoads) for a frame.
func (t Throttle) limits(hints ViewHints, elapsed time.Duration) (int, int) {
	if !hints.Moving() {
		return t.MaxTilesLoading, t.MaxTilesLoading
	}
	if elapsed >= t.FrameBudget {
		return 0, 0
	}
	return t.InteractingMaxLoading, t.InteractingMaxNew
}

// Options configures a Map.
type Options struct {
	View   MapView
	Layers *LayerGroup
	// Target is the surface to render into. A Map without a target builds
	// no frames.
	Target Surface
	// Renderer creates the renderer when a target is attached. Defaults to
	// NewNopRenderer.
	Renderer RendererFactory
	// Scheduler defaults to a new Loop.
	Scheduler Scheduler

	Controls     []Control
	Interactions []Interaction
	Overlays     []*Overlay

	// PixelRatio is device pixels per surface unit. Defaults to 1.
	PixelRatio float64
	Throttle   Throttle
	// MoveTolerance is the pointer travel in pixels before a press becomes
	// a drag. Defaults to 1.
	MoveTolerance float64
	// Logger defaults to zerolog.Nop().
	Logger *zerolog.Logger
	// MeterProvider receives the Map's instruments. Defaults to the global
	// OTel meter provider.
	MeterProvider metric.MeterProvider
}

func (o *Options) validate() error {
	for i, c := range o.Controls {
		if c == nil {
			return fmt.Errorf("%w: control %d is nil", ErrInvalidOptions, i)
		}
	}
	for i, it := range o.Interactions {
		if it == nil {
			return fmt.Errorf("%w: interaction %d is nil", ErrInvalidOptions, i)
		}
	}
	seen := make(map[string]bool, len(o.Overlays))
	for i, ov := range o.Overlays {
		if ov == nil {
			return fmt.Errorf("%w: overlay %d is nil", ErrInvalidOptions, i)
		}
		if seen[ov.ID()] {
			return fmt.Errorf("%w: duplicate overlay id %q", ErrInvalidOptions, ov.ID())
		}
		seen[ov.ID()] = true
	}
	t := o.Throttle
	if t.MaxTilesLoading < 0 || t.InteractingMaxLoading < 0 || t.InteractingMaxNew < 0 {
		return fmt.Errorf("%w: negative tile ceiling", ErrInvalidOptions)
	}
	if t.FrameBudget < 0 {
		return fmt.Errorf("%w: negative frame budget %v", ErrInvalidOptions, t.FrameBudget)
	}
	if o.PixelRatio < 0 || math.IsNaN(o.PixelRatio) {
		return fmt.Errorf("%w: pixel ratio %v", ErrInvalidOptions, o.PixelRatio)
	}
	if o.MoveTolerance < 0 {
		return fmt.Errorf("%w: negative move tolerance", ErrInvalidOptions)
	}
	return nil
}

func (o *Options) applyDefaults() {
	def := DefaultThrottle()
	if o.Throttle.MaxTilesLoading == 0 {
		o.Throttle.MaxTilesLoading = def.MaxTilesLoading
	}
	if o.Throttle.InteractingMaxLoading == 0 {
		o.Throttle.InteractingMaxLoading = def.InteractingMaxLoading
	}
	if o.Throttle.InteractingMaxNew == 0 {
		o.Throttle.InteractingMaxNew = def.InteractingMaxNew
	}
	if o.Throttle.FrameBudget == 0 {
		o.Throttle.FrameBudget = def.FrameBudget
	}
	if o.PixelRatio == 0 {
		o.PixelRatio = 1
	}
	if o.Renderer == nil {
		o.Renderer = NewNopRenderer
	}
	if o.Scheduler == nil {
		o.Scheduler = NewLoop()
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// Map ties a view, a layer tree and a target surface together. It decides
// when to render, builds frames, services the tile queue and derives
// lifecycle events from frame history.
//
// A Map is driven by a single goroutine: the one running its Scheduler.
type Map struct {
	Object

	id         uuid.UUID
	logger     zerolog.Logger
	sched      Scheduler
	newRender  RendererFactory
	renderer   Renderer
	throttle   Throttle
	pixelRatio float64
	metrics    *mapMetrics
	debug      bool

	controls     *Collection[Control]
	interactions *Collection[Interaction]
	overlays     *Collection[*Overlay]
	overlayIndex map[string]*Overlay

	viewKeys       []ListenerKey
	layerGroupKeys []ListenerKey
	targetKeys     []ListenerKey

	tileQueue *TileQueue
	tracker   pointerTracker

	frameState        *FrameState
	frameIndex        uint64
	animationFrame    Handle
	postRenderTimeout Handle
	postRenderFuncs   []PostRenderFunc
	previousExtent    *orb.Bound
	loaded            bool
	renderComplete    bool
	disposed          bool

	moveStart    Emitter[*MapEvent]
	moveEnd      Emitter[*MapEvent]
	loadStart    Emitter[*MapEvent]
	loadEnd      Emitter[*MapEvent]
	renderDone   Emitter[*MapEvent]
	postRender   Emitter[*MapEvent]
	browserEvent Emitter[*MapBrowserEvent]
}

// NewMap creates a Map. It returns an error wrapping ErrInvalidOptions when
// opts is inconsistent.
func NewMap(opts Options) (*Map, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	m := &Map{
		id:           uuid.New(),
		sched:        opts.Scheduler,
		newRender:    opts.Renderer,
		throttle:     opts.Throttle,
		pixelRatio:   opts.PixelRatio,
		overlayIndex: make(map[string]*Overlay),
		tracker:      newPointerTracker(opts.MoveTolerance),
		loaded:       true,
	}
	m.logger = opts.Logger.With().Str("map", m.id.String()).Logger()
	m.tileQueue = NewTileQueue(m.TilePriority, TileQueueHooks{
		OnStart: m.handleTileStart,
		OnDone:  m.handleTileDone,
		OnDrop:  m.handleTileDrop,
	})

	metrics, err := newMapMetrics(opts.MeterProvider, m.id.String(), m.tileQueue)
	if err != nil {
		return nil, fmt.Errorf("new map: %w", err)
	}
	m.metrics = metrics

	m.OnPropertyChangeOf(PropLayerGroup, m.handleLayerGroupChanged)
	m.OnPropertyChangeOf(PropView, func(PropertyChange) { m.handleViewChanged() })
	m.OnPropertyChangeOf(PropSize, func(PropertyChange) { m.handleSizeChanged() })
	m.OnPropertyChangeOf(PropTarget, func(PropertyChange) { m.handleTargetChanged() })

	m.controls = NewCollection(opts.Controls...)
	m.controls.OnAdd(func(ev CollectionEvent[Control]) { ev.Element.SetMap(m) })
	m.controls.OnRemove(func(ev CollectionEvent[Control]) { ev.Element.SetMap(nil) })

	m.interactions = NewCollection(opts.Interactions...)
	m.interactions.OnAdd(func(ev CollectionEvent[Interaction]) { ev.Element.SetMap(m) })
	m.interactions.OnRemove(func(ev CollectionEvent[Interaction]) { ev.Element.SetMap(nil) })

	m.overlays = NewCollection(opts.Overlays...)
	m.overlays.OnAdd(func(ev CollectionEvent[*Overlay]) { m.addOverlayInternal(ev.Element) })
	m.overlays.OnRemove(func(ev CollectionEvent[*Overlay]) {
		if m.overlayIndex[ev.Element.ID()] == ev.Element {
			delete(m.overlayIndex, ev.Element.ID())
		}
		ev.Element.SetMap(nil)
	})

	layers := opts.Layers
	if layers == nil {
		layers = NewLayerGroup("root")
	}
	m.Set(PropLayerGroup, layers)
	m.Set(PropTarget, opts.Target)
	if opts.View != nil {
		m.Set(PropView, opts.View)
	} else {
		m.Set(PropView, MapView(NewView()))
	}

	m.controls.ForEach(func(_ int, c Control) { c.SetMap(m) })
	m.interactions.ForEach(func(_ int, it Interaction) { it.SetMap(m) })
	m.overlays.ForEach(func(_ int, o *Overlay) { m.addOverlayInternal(o) })

	return m, nil
}

// ID returns the Map's unique id, also carried by every FrameState.
func (m *Map) ID() uuid.UUID { return m.id }

// Logger returns the Map's logger.
func (m *Map) Logger() *zerolog.Logger { return &m.logger }

// Scheduler returns the scheduler the Map renders on.
func (m *Map) Scheduler() Scheduler { return m.sched }

// --- Accessors ---

// View returns the current view, or nil.
func (m *Map) View() MapView {
	v, _ := m.Get(PropView).(MapView)
	return v
}

// SetView replaces the view.
func (m *Map) SetView(v MapView) { m.Set(PropView, v) }

// LayerGroup returns the root layer group.
func (m *Map) LayerGroup() *LayerGroup {
	g, _ := m.Get(PropLayerGroup).(*LayerGroup)
	return g
}

// SetLayerGroup replaces the root layer group.
func (m *Map) SetLayerGroup(g *LayerGroup) {
	if g == nil {
		panic("willowmap: nil root layer group")
	}
	m.Set(PropLayerGroup, g)
}

// Layers returns the root group's collection.
func (m *Map) Layers() *Collection[LayerBase] {
	if g := m.LayerGroup(); g != nil {
		return g.Layers()
	}
	return nil
}

// SetLayers replaces the root group's children.
func (m *Map) SetLayers(layers ...LayerBase) {
	m.LayerGroup().SetLayers(layers...)
}

// AddLayer appends l to the root group.
func (m *Map) AddLayer(l LayerBase) {
	m.LayerGroup().Add(l)
}

// RemoveLayer removes l from the root group and reports whether it was
// there.
func (m *Map) RemoveLayer(l LayerBase) bool {
	return m.LayerGroup().Remove(l)
}

// AllLayers returns every leaf layer in tree order.
func (m *Map) AllLayers() []*Layer {
	var out []*Layer
	if g := m.LayerGroup(); g != nil {
		g.forEachLayer(func(l *Layer) { out = append(out, l) })
	}
	return out
}

// Size returns the current surface size.
func (m *Map) Size() Size {
	s, _ := m.Get(PropSize).(Size)
	return s
}

// SetSize sets the surface size explicitly.
func (m *Map) SetSize(s Size) { m.Set(PropSize, s) }

// Target returns the target surface, or nil.
func (m *Map) Target() Surface {
	s, _ := m.Get(PropTarget).(Surface)
	return s
}

// SetTarget attaches the Map to a surface, or detaches it when s is nil.
func (m *Map) SetTarget(s Surface) { m.Set(PropTarget, s) }

// UpdateSize re-reads the size from the target surface.
func (m *Map) UpdateSize() {
	var size Size
	if t := m.Target(); t != nil {
		size = t.Size()
	}
	m.SetSize(size)
}

// Controls returns the control collection.
func (m *Map) Controls() *Collection[Control] { return m.controls }

// Interactions returns the interaction collection.
func (m *Map) Interactions() *Collection[Interaction] { return m.interactions }

// Overlays returns the overlay collection.
func (m *Map) Overlays() *Collection[*Overlay] { return m.overlays }

// AddControl adds c.
func (m *Map) AddControl(c Control) { m.controls.Push(c) }

// RemoveControl removes c.
func (m *Map) RemoveControl(c Control) bool { return m.controls.Remove(c) }

// AddInteraction adds it. Interactions added later see events first.
func (m *Map) AddInteraction(it Interaction) { m.interactions.Push(it) }

// RemoveInteraction removes it.
func (m *Map) RemoveInteraction(it Interaction) bool { return m.interactions.Remove(it) }

// AddOverlay adds o.
func (m *Map) AddOverlay(o *Overlay) { m.overlays.Push(o) }

// RemoveOverlay removes o.
func (m *Map) RemoveOverlay(o *Overlay) bool { return m.overlays.Remove(o) }

// OverlayByID returns the overlay registered under id, or nil.
func (m *Map) OverlayByID(id string) *Overlay {
	return m.overlayIndex[id]
}

func (m *Map) addOverlayInternal(o *Overlay) {
	m.overlayIndex[o.ID()] = o
	o.SetMap(m)
}

// FrameState returns the last built frame, or nil.
func (m *Map) FrameState() *FrameState { return m.frameState }

// IsRendered reports whether a frame has been built for the current state.
func (m *Map) IsRendered() bool { return m.frameState != nil }

// TileQueue returns the Map's tile queue.
func (m *Map) TileQueue() *TileQueue { return m.tileQueue }

// CoordinateFromPixel maps a pixel to a view coordinate using the last
// frame. ok is false when there is no frame.
func (m *Map) CoordinateFromPixel(px Vec2) (orb.Point, bool) {
	if m.frameState == nil {
		return orb.Point{}, false
	}
	return m.frameState.PixelToCoord(px), true
}

// PixelFromCoordinate maps a view coordinate to a pixel using the last
// frame. ok is false when there is no frame.
func (m *Map) PixelFromCoordinate(p orb.Point) (Vec2, bool) {
	if m.frameState == nil {
		return Vec2{}, false
	}
	return m.frameState.CoordToPixel(p), true
}

// --- Lifecycle listeners ---

// OnMoveStart registers fn for move-start events.
func (m *Map) OnMoveStart(fn func(*MapEvent)) ListenerKey { return m.moveStart.On(fn) }

// OnMoveEnd registers fn for move-end events.
func (m *Map) OnMoveEnd(fn func(*MapEvent)) ListenerKey { return m.moveEnd.On(fn) }

// OnLoadStart registers fn for load-start events.
func (m *Map) OnLoadStart(fn func(*MapEvent)) ListenerKey { return m.loadStart.On(fn) }

// OnLoadEnd registers fn for load-end events.
func (m *Map) OnLoadEnd(fn func(*MapEvent)) ListenerKey { return m.loadEnd.On(fn) }

// OnRenderComplete registers fn for render-complete events.
func (m *Map) OnRenderComplete(fn func(*MapEvent)) ListenerKey { return m.renderDone.On(fn) }

// OnPostRender registers fn for post-render events.
func (m *Map) OnPostRender(fn func(*MapEvent)) ListenerKey { return m.postRender.On(fn) }

func (m *Map) hasLoadListeners() bool {
	return m.loadStart.Len() > 0 || m.loadEnd.Len() > 0 || m.renderDone.Len() > 0
}

// --- Scheduling ---

// Render requests a frame. Calls before the frame runs coalesce into one.
// It is a no-op without a renderer (no target attached).
func (m *Map) Render() {
	if m.renderer != nil && m.animationFrame == 0 {
		m.animationFrame = m.sched.RequestFrame(m.animationDelay)
	}
}

// RenderSync cancels any pending frame and builds one now.
func (m *Map) RenderSync() {
	if m.animationFrame != 0 {
		m.sched.CancelFrame(m.animationFrame)
	}
	m.animationDelay(m.sched.Now())
}

func (m *Map) animationDelay(now time.Time) {
	m.animationFrame = 0
	m.renderFrame(now)
}

// renderFrame builds, paints and post-processes one frame.
func (m *Map) renderFrame(now time.Time) {
	if m.disposed {
		return
	}
	size := m.Size()
	view := m.View()
	prev := m.frameState

	var fs *FrameState
	var stats debugStats
	buildStart := time.Now()
	if size.HasArea() && view != nil && view.IsDefined() {
		animate := false
		if a, ok := view.(Animator); ok {
			animate = a.Step(now)
		}
		if view.IsDefined() {
			fs = m.buildFrame(now, size, view)
			fs.Animate = animate
		}
	}
	stats.buildTime = time.Since(buildStart)

	m.frameState = fs
	renderStart := time.Now()
	if m.renderer != nil {
		m.renderer.RenderFrame(fs)
	}
	stats.renderTime = time.Since(renderStart)
	m.metrics.frame(fs != nil)

	if fs == nil {
		// No frame means no pixel space to place overlays in.
		m.overlays.ForEach(func(_ int, o *Overlay) { o.hide() })
	}
	if fs != nil {
		if fs.Animate {
			m.Render()
		}
		m.postRenderFuncs = append(m.postRenderFuncs, fs.postRender...)
		fs.postRender = nil

		m.detectMove(prev, fs)
		m.postRender.Emit(&MapEvent{Type: EventPostRender, Map: m, FrameState: fs})

		m.renderComplete = m.hasLoadListeners() &&
			m.tileQueue.TilesLoading() == 0 &&
			m.tileQueue.Count() == 0 &&
			!m.LoadingOrNotReady()

		if m.debug {
			stats.layerCount = len(fs.LayerStates)
			stats.wantedTiles = fs.WantedTiles.Len()
			stats.tilesLoading = m.tileQueue.TilesLoading()
			stats.tilesQueued = m.tileQueue.Count()
			m.debugLog(fs, stats)
		}
	}

	if m.postRenderTimeout == 0 {
		m.postRenderTimeout = m.sched.SetTimeout(func() {
			m.postRenderTimeout = 0
			m.handlePostRender()
		})
	}
}

func (m *Map) buildFrame(now time.Time, size Size, view MapView) *FrameState {
	state := view.State()
	toPixel, toCoord := viewTransforms(state, size)
	m.frameIndex++
	fs := &FrameState{
		Index:             m.frameIndex,
		MapID:             m.id,
		Time:              now,
		PixelRatio:        m.pixelRatio,
		Size:              size,
		ViewState:         state,
		ViewHints:         view.Hints(),
		Extent:            extentForView(state.Center, state.Resolution, state.Rotation, size),
		CoordinateToPixel: toPixel,
		PixelToCoordinate: toCoord,
		TileQueue:         m.tileQueue,
		UsedTiles:         TileSet{},
		WantedTiles:       TileSet{},
	}
	if g := m.LayerGroup(); g != nil {
		fs.LayerStates = g.LayerStates()
	}
	if next := state.Next; next != nil {
		rot := state.Rotation
		if next.HasRotation {
			rot = next.Rotation
		}
		e := extentForView(next.Center, next.Resolution, rot, size)
		fs.NextExtent = &e
	}
	return fs
}

// detectMove emits move-start when the extent starts changing and move-end
// once the view is idle on a new extent.
func (m *Map) detectMove(prev, fs *FrameState) {
	if prev != nil {
		moveStart := m.previousExtent == nil ||
			(!ExtentIsEmpty(*m.previousExtent) && fs.Extent != *m.previousExtent)
		if moveStart {
			m.moveStart.Emit(&MapEvent{Type: EventMoveStart, Map: m, FrameState: prev})
			empty := EmptyExtent()
			m.previousExtent = &empty
		}
	}
	idle := m.previousExtent != nil &&
		!fs.ViewHints.Moving() &&
		fs.Extent != *m.previousExtent
	if idle {
		m.moveEnd.Emit(&MapEvent{Type: EventMoveEnd, Map: m, FrameState: fs})
		committed := fs.Extent
		m.previousExtent = &committed
	}
}

// handlePostRender services the tile queue, emits load and render-complete
// events and flushes the queued post-render functions.
func (m *Map) handlePostRender() {
	if m.disposed {
		return
	}
	fs := m.frameState
	q := m.tileQueue

	if !q.IsEmpty() {
		maxTotal, maxNew := m.throttle.MaxTilesLoading, m.throttle.MaxTilesLoading
		if fs != nil {
			maxTotal, maxNew = m.throttle.limits(fs.ViewHints, m.sched.Now().Sub(fs.Time))
		}
		if q.TilesLoading() < maxTotal {
			q.Reprioritize()
			q.LoadMoreTiles(maxTotal, maxNew)
		}
	}

	if fs != nil && m.renderer != nil && !fs.Animate {
		if m.renderComplete {
			if m.renderDone.Len() > 0 {
				m.renderDone.Emit(&MapEvent{Type: EventRenderComplete, Map: m, FrameState: fs})
			}
			if !m.loaded {
				m.loaded = true
				m.loadEnd.Emit(&MapEvent{Type: EventLoadEnd, Map: m, FrameState: fs})
			}
		} else if m.loaded {
			m.loaded = false
			m.loadStart.Emit(&MapEvent{Type: EventLoadStart, Map: m, FrameState: fs})
		}
	}

	funcs := m.postRenderFuncs
	m.postRenderFuncs = nil
	if fs != nil {
		for _, fn := range funcs {
			fn(m, fs)
		}
	}
}

// LoadingOrNotReady reports whether any visible layer is loading or has a
// renderer that is not ready.
func (m *Map) LoadingOrNotReady() bool {
	g := m.LayerGroup()
	if g == nil {
		return false
	}
	for _, s := range g.LayerStates() {
		if !s.Visible {
			continue
		}
		if !s.Layer.Ready() || s.Layer.Loading() {
			return true
		}
	}
	return false
}

// TilePriority scores a tile request against the last frame. Tiles the
// frame does not want are reported unwanted.
func (m *Map) TilePriority(req TileRequest) (float64, bool) {
	fs := m.frameState
	if fs == nil || !fs.WantedTiles.Has(req.SourceKey, req.Tile) {
		return 0, false
	}
	c := fs.ViewState.Center
	dx, dy := req.Center[0]-c[0], req.Center[1]-c[1]
	return 65536*math.Log(req.Resolution) + math.Sqrt(dx*dx+dy*dy)/req.Resolution + req.TieBreak, true
}

// --- Tile queue hooks ---

func (m *Map) handleTileStart(req TileRequest) {
	m.metrics.tile(m.metrics.tilesStarted, req.SourceKey)
}

func (m *Map) handleTileDone(req TileRequest, err error) {
	if err != nil {
		m.metrics.tile(m.metrics.tilesFailed, req.SourceKey)
		m.logger.Warn().Err(err).Str("source", req.SourceKey).
			Uint32("z", uint32(req.Tile.Z)).Uint32("x", req.Tile.X).Uint32("y", req.Tile.Y).
			Msg("tile load failed")
	}
	m.Render()
}

func (m *Map) handleTileDrop(req TileRequest) {
	m.metrics.tile(m.metrics.tilesDropped, req.SourceKey)
}

// --- Structural listener wiring ---

func (m *Map) handleViewPropertyChanged() {
	m.Render()
}

func (m *Map) handleViewChanged() {
	Unlisten(m.viewKeys)
	m.viewKeys = nil
	if view := m.View(); view != nil {
		view.SetViewportSize(m.Size())
		m.viewKeys = []ListenerKey{
			view.OnPropertyChange(func(PropertyChange) { m.handleViewPropertyChanged() }),
			view.OnChange(m.handleViewPropertyChanged),
		}
		view.ResolveConstraints(0)
	}
	m.logger.Debug().Msg("view replaced")
	m.Render()
}

func (m *Map) handleLayerGroupChanged(ev PropertyChange) {
	if old, ok := ev.OldValue.(*LayerGroup); ok && old != nil {
		old.forEachLayer(func(l *Layer) { clearLayerMap(l.ID(), m) })
	}
	Unlisten(m.layerGroupKeys)
	m.layerGroupKeys = nil

	if g := m.LayerGroup(); g != nil {
		g.forEachLayer(func(l *Layer) { setLayerMap(l.ID(), m) })
		m.layerGroupKeys = []ListenerKey{
			g.OnPropertyChange(func(PropertyChange) { m.Render() }),
			g.OnChange(m.Render),
			g.OnAddLayer(m.handleAddLayer),
			g.OnRemoveLayer(m.handleRemoveLayer),
		}
		m.debugCheckTreeDepth(g)
	}
	m.logger.Debug().Int("layers", len(m.AllLayers())).Msg("layer group replaced")
	m.Render()
}

func (m *Map) handleAddLayer(ev LayerEvent) {
	ev.Layer.forEachLayer(func(l *Layer) { setLayerMap(l.ID(), m) })
}

func (m *Map) handleRemoveLayer(ev LayerEvent) {
	ev.Layer.forEachLayer(func(l *Layer) { clearLayerMap(l.ID(), m) })
}

func (m *Map) handleSizeChanged() {
	view := m.View()
	if view != nil {
		view.SetViewportSize(m.Size())
		if view.IsDefined() && !view.Animating() {
			view.ResolveConstraints(0)
		}
	}
	m.Render()
}

func (m *Map) handleTargetChanged() {
	if m.renderer != nil {
		m.cancelPending()
		m.renderer.Dispose()
		m.renderer = nil
	}
	Unlisten(m.targetKeys)
	m.targetKeys = nil

	if t := m.Target(); t != nil {
		m.renderer = m.newRender(m, t)
		m.targetKeys = []ListenerKey{
			t.OnResize(func(Size) { m.UpdateSize() }),
		}
		m.logger.Debug().Msg("target attached")
	}
	m.UpdateSize()
}

// cancelPending cancels the pending frame and post-render callback and drops
// queued post-render functions.
func (m *Map) cancelPending() {
	if m.animationFrame != 0 {
		m.sched.CancelFrame(m.animationFrame)
		m.animationFrame = 0
	}
	if m.postRenderTimeout != 0 {
		m.sched.ClearTimeout(m.postRenderTimeout)
		m.postRenderTimeout = 0
	}
	m.postRenderFuncs = nil
}

// Dispose detaches the Map from its target, view and layer tree. Tile loads
// in flight may still finish but no longer trigger renders.
func (m *Map) Dispose() {
	if m.disposed {
		return
	}
	m.controls.Clear()
	m.interactions.Clear()
	m.overlays.Clear()
	m.SetTarget(nil)
	m.tileQueue.Detach()
	Unlisten(m.viewKeys)
	m.viewKeys = nil
	Unlisten(m.layerGroupKeys)
	m.layerGroupKeys = nil
	if g := m.LayerGroup(); g != nil {
		g.forEachLayer(func(l *Layer) { clearLayerMap(l.ID(), m) })
	}
	if err := m.metrics.close(); err != nil {
		m.logger.Warn().Err(err).Msg("closing metrics")
	}
	m.disposed = true
	m.logger.Debug().Msg("map disposed")
}
