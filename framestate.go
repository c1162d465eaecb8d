package willowmap

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// TileSet records tiles per source key.
type TileSet map[string]map[maptile.Tile]struct{}

// Add records tile t for source key.
func (s TileSet) Add(key string, t maptile.Tile) {
	m := s[key]
	if m == nil {
		m = make(map[maptile.Tile]struct{})
		s[key] = m
	}
	m[t] = struct{}{}
}

// Has reports whether tile t is recorded for source key.
func (s TileSet) Has(key string, t maptile.Tile) bool {
	_, ok := s[key][t]
	return ok
}

// Len returns the number of recorded tiles across all sources.
func (s TileSet) Len() int {
	n := 0
	for _, m := range s {
		n += len(m)
	}
	return n
}

// PostRenderFunc runs after a frame has been painted and its bookkeeping
// is done.
type PostRenderFunc func(m *Map, fs *FrameState)

// FrameState is the snapshot of everything needed to paint one frame. It is
// not modified after it is handed to the renderer, except for UsedTiles,
// WantedTiles, Animate and the post-render list, which the renderer fills in
// during the same frame.
type FrameState struct {
	Index      uint64
	MapID      uuid.UUID
	Time       time.Time
	Animate    bool
	PixelRatio float64
	Size       Size

	ViewState  ViewState
	ViewHints  ViewHints
	Extent     orb.Bound
	NextExtent *orb.Bound

	CoordinateToPixel Transform
	PixelToCoordinate Transform

	LayerStates []LayerState
	TileQueue   *TileQueue

	UsedTiles   TileSet
	WantedTiles TileSet

	postRender []PostRenderFunc
}

// AddPostRender queues fn to run in the deferred post-render callback.
func (fs *FrameState) AddPostRender(fn PostRenderFunc) {
	fs.postRender = append(fs.postRender, fn)
}

// VisibleLayerStates returns the states of layers drawn at this frame's
// resolution, ordered by z-index.
func (fs *FrameState) VisibleLayerStates() []LayerState {
	out := make([]LayerState, 0, len(fs.LayerStates))
	for _, s := range fs.LayerStates {
		if s.InView(fs.ViewState) {
			out = append(out, s)
		}
	}
	SortByZIndex(out)
	return out
}

// PrepareLayers lets every visible layer whose source is a FrameSource
// register the tiles it needs. Renderers call it before painting.
func (fs *FrameState) PrepareLayers() {
	for _, s := range fs.VisibleLayerStates() {
		if src, ok := s.Layer.Source().(FrameSource); ok {
			src.PrepareFrame(fs, s)
		}
	}
}

// PixelToCoord maps a pixel to a view coordinate using this frame.
func (fs *FrameState) PixelToCoord(px Vec2) orb.Point {
	x, y := fs.PixelToCoordinate.Apply(px.X, px.Y)
	return orb.Point{x, y}
}

// CoordToPixel maps a view coordinate to a pixel using this frame.
func (fs *FrameState) CoordToPixel(p orb.Point) Vec2 {
	x, y := fs.CoordinateToPixel.Apply(p[0], p[1])
	return Vec2{X: x, Y: y}
}
