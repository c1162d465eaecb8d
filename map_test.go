package willowmap

import (
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// recordingRenderer keeps every frame it is handed.
type recordingRenderer struct {
	frames   []*FrameState
	onFrame  func(fs *FrameState)
	disposed bool
}

func (r *recordingRenderer) RenderFrame(fs *FrameState) {
	if fs != nil {
		fs.PrepareLayers()
		if r.onFrame != nil {
			r.onFrame(fs)
		}
	}
	r.frames = append(r.frames, fs)
}

func (r *recordingRenderer) Dispose() { r.disposed = true }

func (r *recordingRenderer) last() *FrameState {
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

// stubSource is a layer source with a settable loading flag.
type stubSource struct {
	key     string
	loading bool
}

func (s *stubSource) Key() string   { return s.key }
func (s *stubSource) Loading() bool { return s.loading }

// gridSource wants every tile of its zoom level inside the frame extent and
// records loads without finishing them.
type gridSource struct {
	key     string
	zoom    maptile.Zoom
	started []maptile.Tile
	done    map[maptile.Tile]func(error)
}

func newGridSource(key string, z maptile.Zoom) *gridSource {
	return &gridSource{key: key, zoom: z, done: make(map[maptile.Tile]func(error))}
}

func (s *gridSource) Key() string   { return s.key }
func (s *gridSource) Loading() bool { return len(s.done) > 0 }

func (s *gridSource) PrepareFrame(fs *FrameState, _ LayerState) {
	for _, t := range TilesInExtent(fs.Extent, s.zoom) {
		fs.WantedTiles.Add(s.key, t)
		if _, loading := s.done[t]; loading {
			continue
		}
		fs.TileQueue.Enqueue(TileRequest{
			SourceKey:  s.key,
			Tile:       t,
			Center:     TileCenter(t),
			Resolution: ResolutionForZoom(s.zoom),
			Loader:     s,
		})
	}
}

func (s *gridSource) LoadTile(t maptile.Tile, done func(error)) {
	s.started = append(s.started, t)
	s.done[t] = done
}

// finishAll completes every load in flight.
func (s *gridSource) finishAll() {
	for t, done := range s.done {
		delete(s.done, t)
		done(nil)
	}
}

type testMap struct {
	m        *Map
	loop     *Loop
	surface  *StaticSurface
	renderer *recordingRenderer
	now      time.Time
	// lag is added to the loop clock to simulate slow frames.
	lag time.Duration
}

func newTestMap(t *testing.T, width, height float64, opts Options) *testMap {
	t.Helper()
	tm := &testMap{
		surface:  NewStaticSurface(width, height),
		renderer: &recordingRenderer{},
		now:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	tm.loop = NewLoop(WithClock(func() time.Time { return tm.now.Add(tm.lag) }))
	opts.Target = tm.surface
	opts.Scheduler = tm.loop
	opts.Renderer = func(*Map, Surface) Renderer { return tm.renderer }
	m, err := NewMap(opts)
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	tm.m = m
	t.Cleanup(m.Dispose)
	return tm
}

// frame runs one loop frame and advances the clock.
func (tm *testMap) frame() int {
	n := tm.loop.RunFrame(tm.now)
	tm.now = tm.now.Add(16 * time.Millisecond)
	return n
}

func definedView() *View {
	return NewView(WithCenter(orb.Point{0, 0}), WithResolution(1))
}

// --- Frame scheduling ---

func TestRenderCoalesces(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	if !tm.loop.FramePending() {
		t.Fatal("construction should request a frame")
	}
	if n := tm.frame(); n != 1 {
		t.Fatalf("first RunFrame ran %d frames, want 1", n)
	}

	tm.m.Render()
	tm.m.Render()
	tm.m.Render()
	if n := tm.frame(); n != 1 {
		t.Errorf("three Render calls ran %d frames, want 1", n)
	}
	if len(tm.renderer.frames) != 2 {
		t.Errorf("renderer saw %d frames, want 2", len(tm.renderer.frames))
	}
	if tm.frame() != 0 {
		t.Error("idle map rendered without a request")
	}
}

func TestFrameIndexIncreases(t *testing.T) {
	v := definedView()
	tm := newTestMap(t, 100, 100, Options{View: v})
	var last uint64
	for i := 0; i < 5; i++ {
		v.Pan(1, 0)
		tm.frame()
		fs := tm.m.FrameState()
		if fs == nil {
			t.Fatalf("frame %d: no frame state", i)
		}
		if fs.Index <= last {
			t.Fatalf("frame %d: index %d not greater than %d", i, fs.Index, last)
		}
		last = fs.Index
		if fs.MapID != tm.m.ID() {
			t.Errorf("frame MapID = %v, want %v", fs.MapID, tm.m.ID())
		}
	}
}

func TestZeroAreaBuildsNoFrame(t *testing.T) {
	tm := newTestMap(t, 0, 0, Options{View: definedView()})
	var events int
	tm.m.OnPostRender(func(*MapEvent) { events++ })
	tm.m.OnMoveStart(func(*MapEvent) { events++ })
	tm.m.OnMoveEnd(func(*MapEvent) { events++ })

	tm.frame()
	if tm.m.FrameState() != nil {
		t.Error("zero-area map built a frame")
	}
	if len(tm.renderer.frames) != 1 || tm.renderer.frames[0] != nil {
		t.Errorf("renderer frames = %v, want [nil]", tm.renderer.frames)
	}
	if events != 0 {
		t.Errorf("events = %d, want 0", events)
	}
	if _, ok := tm.m.CoordinateFromPixel(Vec2{}); ok {
		t.Error("CoordinateFromPixel without a frame should fail")
	}
}

func TestFirstFrameAfterViewDefined(t *testing.T) {
	v := NewView()
	tm := newTestMap(t, 800, 600, Options{View: v})
	tm.frame()
	if tm.m.FrameState() != nil {
		t.Fatal("undefined view built a frame")
	}

	v.SetCenter(orb.Point{0, 0})
	v.SetResolution(1)
	tm.frame()

	fs := tm.m.FrameState()
	if fs == nil {
		t.Fatal("no frame after the view was defined")
	}
	if fs.Index != 1 {
		t.Errorf("Index = %d, want 1", fs.Index)
	}
	assertBound(t, "extent", fs.Extent, orb.Bound{Min: orb.Point{-400, -300}, Max: orb.Point{400, 300}})
	if fs.Size != (Size{Width: 800, Height: 600}) {
		t.Errorf("Size = %v", fs.Size)
	}

	px, ok := tm.m.PixelFromCoordinate(orb.Point{100, 50})
	if !ok {
		t.Fatal("PixelFromCoordinate failed with a frame")
	}
	assertNear(t, "pixel x", px.X, 500)
	assertNear(t, "pixel y", px.Y, 250)
	c, _ := tm.m.CoordinateFromPixel(Vec2{X: 0, Y: 0})
	assertNear(t, "corner x", c[0], -400)
	assertNear(t, "corner y", c[1], 300)
}

func TestSurfaceResizeRenders(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	tm.frame()
	tm.surface.Resize(200, 50)
	if tm.frame() != 1 {
		t.Fatal("resize did not trigger a frame")
	}
	if got := tm.m.FrameState().Size; got != (Size{Width: 200, Height: 50}) {
		t.Errorf("Size = %v, want 200x50", got)
	}
}

func TestRenderSync(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	tm.m.RenderSync()
	if tm.m.FrameState() == nil {
		t.Fatal("RenderSync built no frame")
	}
	if tm.loop.FramePending() {
		t.Error("RenderSync left the pending frame armed")
	}
}

func TestSetViewRewires(t *testing.T) {
	old := NewView()
	tm := newTestMap(t, 800, 600, Options{View: old})
	tm.frame()

	v := definedView()
	tm.m.SetView(v)
	tm.frame()
	fs := tm.m.FrameState()
	if fs == nil {
		t.Fatal("no frame after SetView")
	}
	if fs.Index != 1 {
		t.Errorf("Index = %d, want 1", fs.Index)
	}
	assertBound(t, "extent", fs.Extent, orb.Bound{Min: orb.Point{-400, -300}, Max: orb.Point{400, 300}})

	old.SetCenter(orb.Point{5, 5})
	old.SetResolution(3)
	if n := tm.frame(); n != 0 {
		t.Errorf("replaced view changes ran %d frames, want 0", n)
	}
	v.Pan(10, 0)
	if n := tm.frame(); n != 1 {
		t.Errorf("new view pan ran %d frames, want 1", n)
	}
}

func TestSetViewResolvesConstraints(t *testing.T) {
	tm := newTestMap(t, 800, 600, Options{View: definedView()})
	tm.frame()
	v := NewView(WithCenter(orb.Point{0, 0}), WithResolution(1), WithResolutionRange(2, 10))
	tm.m.SetView(v)
	assertNear(t, "resolution", v.Resolution(), 2)
	if s := v.viewport; s != (Size{Width: 800, Height: 600}) {
		t.Errorf("viewport = %v, want 800x600", s)
	}
}

func TestSetTargetCancelsPending(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	tm.frame()

	var ran bool
	tm.renderer.onFrame = func(fs *FrameState) {
		fs.AddPostRender(func(*Map, *FrameState) { ran = true })
	}
	tm.m.RenderSync()
	tm.m.Render()
	if !tm.loop.FramePending() {
		t.Fatal("Render armed no frame")
	}

	tm.m.SetTarget(nil)
	if tm.loop.Pending() {
		t.Error("detaching the target left work pending")
	}
	if !tm.renderer.disposed {
		t.Error("renderer not disposed")
	}
	tm.frame()
	if ran {
		t.Error("post-render func ran after the target was detached")
	}
}

func TestSetTargetRebuildsRenderer(t *testing.T) {
	var built []*recordingRenderer
	first := NewStaticSurface(100, 100)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loop := NewLoop(WithClock(func() time.Time { return now }))
	m, err := NewMap(Options{
		View:      definedView(),
		Target:    first,
		Scheduler: loop,
		Renderer: func(*Map, Surface) Renderer {
			r := &recordingRenderer{}
			built = append(built, r)
			return r
		},
	})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	t.Cleanup(m.Dispose)
	loop.RunFrame(now)

	second := NewStaticSurface(300, 200)
	m.SetTarget(second)
	if len(built) != 2 {
		t.Fatalf("renderers built = %d, want 2", len(built))
	}
	if !built[0].disposed || built[1].disposed {
		t.Errorf("disposed = %v, %v", built[0].disposed, built[1].disposed)
	}
	loop.RunFrame(now)
	if m.Size() != (Size{Width: 300, Height: 200}) {
		t.Errorf("size = %v, want 300x200", m.Size())
	}
	if fs := built[1].last(); fs == nil || fs.Size != m.Size() {
		t.Errorf("new renderer frame = %+v", fs)
	}

	first.Resize(50, 50)
	if loop.FramePending() {
		t.Error("old surface resize still renders")
	}
}

// --- Move events ---

func TestMoveStartEnd(t *testing.T) {
	v := definedView()
	tm := newTestMap(t, 100, 100, Options{View: v})
	var events []MapEventType
	tm.m.OnMoveStart(func(ev *MapEvent) { events = append(events, ev.Type) })
	tm.m.OnMoveEnd(func(ev *MapEvent) { events = append(events, ev.Type) })

	tm.frame()
	if len(events) != 0 {
		t.Fatalf("first frame events = %v, want none", events)
	}
	tm.m.Render()
	tm.frame()
	want := []MapEventType{EventMoveStart, EventMoveEnd}
	if len(events) != 2 || events[0] != want[0] || events[1] != want[1] {
		t.Fatalf("second frame events = %v, want %v", events, want)
	}

	// An unchanged extent is not a move.
	tm.m.Render()
	tm.frame()
	if len(events) != 2 {
		t.Errorf("unchanged extent events = %v", events)
	}

	v.Pan(10, 0)
	tm.frame()
	if len(events) != 4 {
		t.Errorf("after pan events = %v, want 4", events)
	}
}

func TestMoveDuringInteraction(t *testing.T) {
	v := definedView()
	tm := newTestMap(t, 100, 100, Options{View: v})
	tm.frame()
	tm.m.Render()
	tm.frame()

	var starts, ends int
	var startFrame *FrameState
	tm.m.OnMoveStart(func(ev *MapEvent) {
		starts++
		startFrame = ev.FrameState
	})
	tm.m.OnMoveEnd(func(*MapEvent) { ends++ })

	before := tm.m.FrameState()
	v.BeginInteraction()
	for i := 0; i < 4; i++ {
		v.Pan(5, 0)
		tm.frame()
	}
	if starts != 1 || ends != 0 {
		t.Fatalf("during gesture: starts = %d, ends = %d, want 1, 0", starts, ends)
	}
	if startFrame != before {
		t.Error("move start should carry the frame before the extent changed")
	}
	v.EndInteraction()
	tm.frame()
	if starts != 1 || ends != 1 {
		t.Errorf("after gesture: starts = %d, ends = %d, want 1, 1", starts, ends)
	}
}

// --- Tile throttling ---

func TestThrottleLimits(t *testing.T) {
	th := Throttle{MaxTilesLoading: 16, InteractingMaxLoading: 8, InteractingMaxNew: 2, FrameBudget: 8 * time.Millisecond}
	tests := []struct {
		name           string
		hints          ViewHints
		elapsed        time.Duration
		total, newLoad int
	}{
		{"idle", ViewHints{}, time.Second, 16, 16},
		{"interacting in budget", ViewHints{Interacting: true}, time.Millisecond, 8, 2},
		{"animating in budget", ViewHints{Animating: true}, 0, 8, 2},
		{"over budget", ViewHints{Animating: true}, 8 * time.Millisecond, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, n := th.limits(tt.hints, tt.elapsed)
			if total != tt.total || n != tt.newLoad {
				t.Errorf("limits = (%d, %d), want (%d, %d)", total, n, tt.total, tt.newLoad)
			}
		})
	}
}

func TestTileLoadingThrottled(t *testing.T) {
	v := NewView(WithCenter(orb.Point{0, 0}), WithResolution(ResolutionForZoom(4)))
	tm := newTestMap(t, 1600, 1200, Options{
		View:     v,
		Throttle: Throttle{MaxTilesLoading: 16, InteractingMaxLoading: 8, InteractingMaxNew: 2, FrameBudget: time.Hour},
	})
	src := newGridSource("grid", 4)
	tm.m.AddLayer(NewLayer("grid", src))

	v.BeginInteraction()
	tm.frame()
	if len(src.started) != 2 {
		t.Fatalf("interacting frame started %d loads, want 2", len(src.started))
	}
	tm.m.Render()
	tm.frame()
	if len(src.started) != 4 {
		t.Fatalf("second interacting frame: %d loads, want 4", len(src.started))
	}

	v.EndInteraction()
	tm.frame()
	if got := tm.m.TileQueue().TilesLoading(); got != 16 {
		t.Errorf("idle loading = %d, want 16", got)
	}

	src.finishAll()
	if !tm.loop.FramePending() {
		t.Fatal("tile completion did not request a frame")
	}
	tm.frame()
	if got := tm.m.TileQueue().TilesLoading(); got > 16 {
		t.Errorf("loading = %d exceeds the ceiling", got)
	}
}

func TestTileLoadingStopsOverBudget(t *testing.T) {
	v := NewView(WithCenter(orb.Point{0, 0}), WithResolution(ResolutionForZoom(4)))
	tm := newTestMap(t, 512, 512, Options{
		View:     v,
		Throttle: Throttle{FrameBudget: 5 * time.Millisecond},
	})
	src := newGridSource("grid", 4)
	tm.m.AddLayer(NewLayer("grid", src))

	v.BeginInteraction()
	tm.lag = 10 * time.Millisecond
	tm.frame()
	if len(src.started) != 0 {
		t.Errorf("over-budget frame started %d loads, want 0", len(src.started))
	}
	if tm.m.TileQueue().IsEmpty() {
		t.Error("wanted tiles should stay queued")
	}
}

// --- Load and render-complete events ---

func TestLoadingLayerBlocksRenderComplete(t *testing.T) {
	src := &stubSource{key: "stub", loading: true}
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	tm.m.AddLayer(NewLayer("stub", src))

	var got []MapEventType
	record := func(ev *MapEvent) { got = append(got, ev.Type) }
	tm.m.OnRenderComplete(record)
	tm.m.OnLoadStart(record)
	tm.m.OnLoadEnd(record)

	tm.frame()
	if len(got) != 1 || got[0] != EventLoadStart {
		t.Fatalf("while loading events = %v, want [loadstart]", got)
	}
	if !tm.m.LoadingOrNotReady() {
		t.Error("LoadingOrNotReady = false")
	}

	src.loading = false
	tm.m.Render()
	tm.frame()
	want := []MapEventType{EventLoadStart, EventRenderComplete, EventLoadEnd}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestHiddenLoadingLayerDoesNotBlock(t *testing.T) {
	src := &stubSource{key: "stub", loading: true}
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	l := NewLayer("stub", src)
	l.SetVisible(false)
	tm.m.AddLayer(l)

	var complete int
	tm.m.OnRenderComplete(func(*MapEvent) { complete++ })
	tm.frame()
	if complete != 1 {
		t.Errorf("render-complete = %d, want 1", complete)
	}
}

type notReady struct{}

func (notReady) Ready() bool { return false }

func TestNotReadyRendererBlocksRenderComplete(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	l := NewLayer("slow", &stubSource{key: "slow"})
	l.SetRenderer(notReady{})
	tm.m.AddLayer(l)

	var complete int
	tm.m.OnRenderComplete(func(*MapEvent) { complete++ })
	tm.frame()
	if complete != 0 {
		t.Errorf("render-complete = %d, want 0", complete)
	}
}

// --- Animation ---

func TestAnimatedFramesRerender(t *testing.T) {
	v := definedView()
	tm := newTestMap(t, 100, 100, Options{View: v})
	tm.frame()

	var complete int
	tm.m.OnRenderComplete(func(*MapEvent) { complete++ })
	v.Animate(ViewTarget{Center: orb.Point{100, 0}, Resolution: 1}, 100*time.Millisecond, nil, nil)

	frames := 0
	for tm.loop.FramePending() && frames < 100 {
		tm.frame()
		frames++
		fs := tm.m.FrameState()
		if fs.Animate {
			if fs.NextExtent == nil {
				t.Fatal("animating frame has no NextExtent")
			}
			if complete != 0 {
				t.Fatal("render-complete fired during animation")
			}
		}
	}
	if frames < 3 {
		t.Errorf("animation ran %d frames, want several", frames)
	}
	c, _ := v.Center()
	assertNear(t, "final x", c[0], 100)
	if tm.m.FrameState().Animate {
		t.Error("last frame still animating")
	}
	if complete == 0 {
		t.Error("no render-complete after the animation settled")
	}
}

// --- Post-render functions ---

func TestPostRenderFuncsRunAfterFrame(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	var order []string
	tm.renderer.onFrame = func(fs *FrameState) {
		fs.AddPostRender(func(m *Map, got *FrameState) {
			if got != m.FrameState() {
				t.Error("post-render func got a stale frame")
			}
			order = append(order, "func")
		})
	}
	tm.m.OnPostRender(func(*MapEvent) { order = append(order, "event") })
	tm.frame()
	if len(order) != 2 || order[0] != "event" || order[1] != "func" {
		t.Errorf("order = %v, want [event func]", order)
	}
}

// --- Layer tree wiring ---

func TestLayerMapBackReference(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	l1 := NewLayer("one", nil)
	tm.m.AddLayer(l1)
	if l1.Map() != tm.m {
		t.Fatal("added layer does not point at the map")
	}

	l2 := NewLayer("two", nil)
	l3 := NewLayer("three", nil)
	nested := NewLayerGroup("nested", l3)
	root := NewLayerGroup("root2", l2)
	tm.m.SetLayerGroup(root)

	if l1.Map() != nil {
		t.Error("layer of the replaced root still points at the map")
	}
	if l2.Map() != tm.m {
		t.Error("layer of the new root does not point at the map")
	}

	root.Add(nested)
	if l3.Map() != tm.m {
		t.Error("layer added through a nested group does not point at the map")
	}
	root.Remove(nested)
	if l3.Map() != nil {
		t.Error("removed nested layer still points at the map")
	}
	if got := tm.m.AllLayers(); len(got) != 1 || got[0] != l2 {
		t.Errorf("AllLayers = %v", got)
	}
}

func TestLayerChangesRender(t *testing.T) {
	tm := newTestMap(t, 100, 100, Options{View: definedView()})
	l := NewLayer("l", nil)
	g := NewLayerGroup("g", l)
	tm.m.AddLayer(g)
	tm.frame()

	l.SetOpacity(0.5)
	if tm.frame() != 1 {
		t.Fatal("nested layer change did not render")
	}
	states := tm.m.FrameState().LayerStates
	if len(states) != 1 || states[0].Opacity != 0.5 {
		t.Errorf("states = %+v", states)
	}
}

// --- Dispatch ---

func TestInteractionsReverseOrderShortCircuit(t *testing.T) {
	var calls []string
	mk := func(name string, cont bool) Interaction {
		return NewInteraction(func(*MapBrowserEvent) bool {
			calls = append(calls, name)
			return cont
		})
	}
	a, b, c := mk("a", true), mk("b", false), mk("c", true)
	tm := newTestMap(t, 100, 100, Options{View: definedView(), Interactions: []Interaction{a, b, c}})
	tm.frame()

	tm.m.HandleBrowserEvent(BrowserEvent{Type: KeyDown, Key: "x"})
	if len(calls) != 2 || calls[0] != "c" || calls[1] != "b" {
		t.Errorf("calls = %v, want [c b]", calls)
	}

	calls = nil
	c.(*FuncInteraction).SetActive(false)
	tm.m.HandleBrowserEvent(BrowserEvent{Type: KeyDown, Key: "x"})
	if len(calls) != 1 || calls[0] != "b" {
		t.Errorf("with c inactive calls = %v, want [b]", calls)
	}
}

func TestStopPropagation(t *testing.T) {
	var reached bool
	first := NewInteraction(func(*MapBrowserEvent) bool { reached = true; return true })
	last := NewInteraction(func(ev *MapBrowserEvent) bool { ev.StopPropagation(); return true })
	tm := newTestMap(t, 100, 100, Options{View: definedView(), Interactions: []Interaction{first, last}})
	tm.frame()
	tm.m.HandleBrowserEvent(BrowserEvent{Type: KeyDown})
	if reached {
		t.Error("event passed StopPropagation")
	}
}

func TestPreventDefaultSkipsInteractions(t *testing.T) {
	var reached bool
	it := NewInteraction(func(*MapBrowserEvent) bool { reached = true; return true })
	tm := newTestMap(t, 100, 100, Options{View: definedView(), Interactions: []Interaction{it}})
	tm.frame()
	tm.m.OnMapBrowserEvent(func(ev *MapBrowserEvent) { ev.PreventDefault() })
	tm.m.HandleBrowserEvent(BrowserEvent{Type: KeyDown})
	if reached {
		t.Error("interaction saw a prevented event")
	}
}

func TestDispatchNeedsFrame(t *testing.T) {
	var reached bool
	it := NewInteraction(func(*MapBrowserEvent) bool { reached = true; return true })
	tm := newTestMap(t, 100, 100, Options{Interactions: []Interaction{it}})
	tm.frame()
	tm.m.HandleBrowserEvent(BrowserEvent{Type: KeyDown})
	if reached {
		t.Error("event dispatched without a frame")
	}
}

func TestDispatchTargetFilter(t *testing.T) {
	var got []BrowserEventType
	it := NewInteraction(func(ev *MapBrowserEvent) bool { got = append(got, ev.Type); return true })
	tm := newTestMap(t, 100, 100, Options{View: definedView(), Interactions: []Interaction{it}})
	tm.surface.StopFunc = func(target any) bool { return target == "widget" }
	tm.surface.ContainsFunc = func(target any) bool { return target != "elsewhere" }
	tm.frame()

	tm.m.HandleBrowserEvent(BrowserEvent{Type: Wheel, Target: "widget"})
	tm.m.HandleBrowserEvent(BrowserEvent{Type: KeyDown, Target: "elsewhere"})
	tm.m.HandleBrowserEvent(BrowserEvent{Type: PointerMove, Target: "widget"})
	tm.m.HandleBrowserEvent(BrowserEvent{Type: Wheel, Target: "map"})
	if len(got) != 2 || got[0] != PointerMove || got[1] != Wheel {
		t.Errorf("dispatched = %v, want [pointermove wheel]", got)
	}
}

func TestPointerTrackerDerivesEvents(t *testing.T) {
	var got []BrowserEventType
	var dragging []bool
	it := NewInteraction(func(ev *MapBrowserEvent) bool {
		got = append(got, ev.Type)
		dragging = append(dragging, ev.Dragging)
		return true
	})
	tm := newTestMap(t, 100, 100, Options{View: definedView(), Interactions: []Interaction{it}})
	tm.frame()

	t0 := time.Unix(100, 0)
	send := func(typ BrowserEventType, x float64, at time.Duration) {
		tm.m.HandleBrowserEvent(BrowserEvent{Type: typ, Pixel: Vec2{X: x, Y: 10}, Time: t0.Add(at)})
	}

	// Click, then a second click within the window: dblclick.
	send(PointerDown, 10, 0)
	send(PointerUp, 10, 50*time.Millisecond)
	send(PointerDown, 10, 100*time.Millisecond)
	send(PointerUp, 10, 150*time.Millisecond)
	want := []BrowserEventType{PointerDown, PointerUp, Click, PointerDown, PointerUp, Click, DblClick}
	if !equalEventTypes(got, want) {
		t.Fatalf("clicks = %v, want %v", got, want)
	}

	// Drag: no click at the end.
	got, dragging = nil, nil
	send(PointerDown, 10, time.Second)
	send(PointerMove, 10.5, time.Second)
	send(PointerMove, 30, time.Second)
	send(PointerUp, 30, time.Second)
	want = []BrowserEventType{PointerDown, PointerMove, PointerDrag, PointerMove, PointerUp}
	if !equalEventTypes(got, want) {
		t.Fatalf("drag = %v, want %v", got, want)
	}
	if dragging[1] || !dragging[2] || !dragging[4] {
		t.Errorf("dragging flags = %v", dragging)
	}
}

func equalEventTypes(a, b []BrowserEventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestEventCoordinates(t *testing.T) {
	var coord orb.Point
	it := NewInteraction(func(ev *MapBrowserEvent) bool { coord = ev.Coordinate; return true })
	tm := newTestMap(t, 800, 600, Options{View: definedView(), Interactions: []Interaction{it}})
	tm.frame()
	tm.m.HandleBrowserEvent(BrowserEvent{Type: PointerMove, Pixel: Vec2{X: 500, Y: 250}})
	assertNear(t, "x", coord[0], 100)
	assertNear(t, "y", coord[1], 50)
}

// --- Overlays and controls ---

func TestOverlayPixelPosition(t *testing.T) {
	o := NewOverlay("marker")
	tm := newTestMap(t, 800, 600, Options{View: definedView(), Overlays: []*Overlay{o}})
	if tm.m.OverlayByID("marker") != o || o.Map() != tm.m {
		t.Fatal("overlay not registered")
	}

	o.SetPosition(orb.Point{100, 50})
	o.SetOffset(Vec2{X: 5, Y: -5})
	tm.frame()
	px, ok := o.PixelPosition()
	if !ok {
		t.Fatal("positioned overlay not shown")
	}
	assertNear(t, "overlay x", px.X, 505)
	assertNear(t, "overlay y", px.Y, 245)

	o.ClearPosition()
	if _, ok := o.PixelPosition(); ok {
		t.Error("cleared overlay still shown")
	}

	tm.m.RemoveOverlay(o)
	if o.Map() != nil || tm.m.OverlayByID("marker") != nil {
		t.Error("removed overlay still attached")
	}
}

func TestOverlayHiddenWithoutFrame(t *testing.T) {
	o := NewOverlay("marker")
	tm := newTestMap(t, 800, 600, Options{View: definedView(), Overlays: []*Overlay{o}})
	o.SetPosition(orb.Point{100, 50})
	tm.frame()
	if _, ok := o.PixelPosition(); !ok {
		t.Fatal("positioned overlay not shown")
	}

	tm.surface.Resize(0, 0)
	tm.frame()
	if _, ok := o.PixelPosition(); ok {
		t.Error("overlay shown without a frame")
	}

	tm.surface.Resize(800, 600)
	tm.frame()
	if _, ok := o.PixelPosition(); !ok {
		t.Error("overlay not shown again once the frame is back")
	}
}

func TestControlRender(t *testing.T) {
	var calls int
	c := &BaseControl{Render: func(*MapEvent) { calls++ }}
	tm := newTestMap(t, 100, 100, Options{View: definedView(), Controls: []Control{c}})
	tm.frame()
	if calls != 1 || c.Map() != tm.m {
		t.Fatalf("control calls = %d", calls)
	}
	tm.m.RemoveControl(c)
	tm.m.Render()
	tm.frame()
	if calls != 1 {
		t.Errorf("removed control still called: %d", calls)
	}
}

// --- Options ---

func TestNewMapInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"nil interaction", Options{Interactions: []Interaction{nil}}},
		{"nil control", Options{Controls: []Control{nil}}},
		{"nil overlay", Options{Overlays: []*Overlay{nil}}},
		{"duplicate overlay", Options{Overlays: []*Overlay{NewOverlay("a"), NewOverlay("a")}}},
		{"negative tiles", Options{Throttle: Throttle{MaxTilesLoading: -1}}},
		{"negative budget", Options{Throttle: Throttle{FrameBudget: -time.Millisecond}}},
		{"negative pixel ratio", Options{PixelRatio: -1}},
		{"negative tolerance", Options{MoveTolerance: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMap(tt.opts)
			if !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("err = %v, want ErrInvalidOptions", err)
			}
		})
	}
}

func TestNewMapDefaults(t *testing.T) {
	m, err := NewMap(Options{Throttle: Throttle{MaxTilesLoading: 4}})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Dispose()
	def := DefaultThrottle()
	if m.throttle.MaxTilesLoading != 4 || m.throttle.InteractingMaxNew != def.InteractingMaxNew {
		t.Errorf("throttle = %+v", m.throttle)
	}
	if m.pixelRatio != 1 {
		t.Errorf("pixelRatio = %v, want 1", m.pixelRatio)
	}
	if m.View() == nil || m.View().IsDefined() {
		t.Error("default view should exist and be undefined")
	}
	if m.Target() != nil || m.IsRendered() {
		t.Error("map without target should not render")
	}
}

// --- Dispose ---

func TestDispose(t *testing.T) {
	v := definedView()
	it := NewInteraction(func(*MapBrowserEvent) bool { return true })
	tm := newTestMap(t, 256, 256, Options{View: v, Interactions: []Interaction{it}})
	src := newGridSource("grid", 1)
	tm.m.AddLayer(NewLayer("grid", src))
	tm.frame()

	tm.m.Dispose()
	tm.m.Dispose()
	if !tm.renderer.disposed {
		t.Error("renderer not disposed")
	}
	if it.Map() != nil {
		t.Error("interaction still attached")
	}
	frames := len(tm.renderer.frames)
	src.finishAll()
	v.Pan(1, 0)
	tm.frame()
	if len(tm.renderer.frames) != frames {
		t.Error("disposed map rendered")
	}
}
