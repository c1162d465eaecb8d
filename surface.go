package willowmap

// Surface is the host area a Map renders into.
type Surface interface {
	// Size returns the current size in surface units.
	Size() Size
	// OnResize registers fn for host-driven size changes.
	OnResize(fn func(Size)) ListenerKey
	// Contains reports whether an event target lies inside the surface.
	Contains(target any) bool
	// StopEventContains reports whether an event target lies inside an
	// overlay region that must not forward events to the map.
	StopEventContains(target any) bool
}

// Renderer paints frames for a Map. RenderFrame receives nil when no frame
// can be built.
type Renderer interface {
	RenderFrame(fs *FrameState)
	Dispose()
}

// RendererFactory creates the renderer for a Map when a target surface is
// attached.
type RendererFactory func(m *Map, target Surface) Renderer

// NopRenderer prepares layers but paints nothing.
type NopRenderer struct{}

// NewNopRenderer is a RendererFactory returning NopRenderer.
func NewNopRenderer(*Map, Surface) Renderer { return NopRenderer{} }

// RenderFrame implements Renderer.
func (NopRenderer) RenderFrame(fs *FrameState) {
	if fs != nil {
		fs.PrepareLayers()
	}
}

// Dispose implements Renderer.
func (NopRenderer) Dispose() {}

// StaticSurface is a Surface for headless hosts and tests.
type StaticSurface struct {
	size   Size
	resize Emitter[Size]

	// ContainsFunc overrides Contains; nil contains every target.
	ContainsFunc func(target any) bool
	// StopFunc overrides StopEventContains; nil contains no target.
	StopFunc func(target any) bool
}

// NewStaticSurface creates a surface of the given size.
func NewStaticSurface(width, height float64) *StaticSurface {
	return &StaticSurface{size: Size{Width: width, Height: height}}
}

// Size implements Surface.
func (s *StaticSurface) Size() Size { return s.size }

// Resize changes the size and notifies resize listeners.
func (s *StaticSurface) Resize(width, height float64) {
	next := Size{Width: width, Height: height}
	if next == s.size {
		return
	}
	s.size = next
	s.resize.Emit(next)
}

// OnResize implements Surface.
func (s *StaticSurface) OnResize(fn func(Size)) ListenerKey {
	return s.resize.On(fn)
}

// Contains implements Surface.
func (s *StaticSurface) Contains(target any) bool {
	if s.ContainsFunc == nil {
		return true
	}
	return s.ContainsFunc(target)
}

// StopEventContains implements Surface.
func (s *StaticSurface) StopEventContains(target any) bool {
	if s.StopFunc == nil {
		return false
	}
	return s.StopFunc(target)
}
