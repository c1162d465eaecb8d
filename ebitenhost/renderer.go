package ebitenhost

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/paulmach/orb"
	"github.com/phanxgames/willowmap"
	"github.com/phanxgames/willowmap/tilelayer"
)

// tileProvider is a layer source whose loaded tiles can be painted.
type tileProvider interface {
	TilesFor(b orb.Bound, resolution float64) []*tilelayer.Tile
}

// Background is the clear color of the map area.
var Background = color.RGBA{R: 237, G: 237, B: 230, A: 255}

// Renderer keeps the latest frame state and paints it on ebiten's Draw.
// Tile images are uploaded once and released when no frame uses them.
type Renderer struct {
	m     *willowmap.Map
	frame *willowmap.FrameState
	cache map[*tilelayer.Tile]*ebiten.Image
	drawn int
}

// NewRenderer is a willowmap.RendererFactory.
func NewRenderer(m *willowmap.Map, _ willowmap.Surface) willowmap.Renderer {
	return &Renderer{m: m, cache: make(map[*tilelayer.Tile]*ebiten.Image)}
}

// Ready implements willowmap.LayerRenderer.
func (r *Renderer) Ready() bool { return true }

// RenderFrame implements willowmap.Renderer. Painting is deferred to Draw.
func (r *Renderer) RenderFrame(fs *willowmap.FrameState) {
	if fs != nil {
		fs.PrepareLayers()
	}
	r.frame = fs
}

// TilesDrawn returns the number of tiles painted by the last Draw.
func (r *Renderer) TilesDrawn() int { return r.drawn }

// Draw paints the last frame state onto screen.
func (r *Renderer) Draw(screen *ebiten.Image) {
	screen.Fill(Background)
	fs := r.frame
	r.drawn = 0
	if fs == nil || fs.Size.Width <= 0 {
		return
	}
	scale := float64(screen.Bounds().Dx()) / fs.Size.Width

	seen := make(map[*tilelayer.Tile]bool, len(r.cache))
	for _, ls := range fs.VisibleLayerStates() {
		if ls.Opacity <= 0 {
			continue
		}
		src, ok := ls.Layer.Source().(tileProvider)
		if !ok {
			continue
		}
		extent := fs.Extent
		if ls.Extent != nil {
			extent = willowmap.ExtentIntersection(extent, *ls.Extent)
		}
		for _, t := range src.TilesFor(extent, fs.ViewState.Resolution) {
			seen[t] = true
			img := r.cache[t]
			if img == nil {
				img = ebiten.NewImageFromImage(t.Image)
				r.cache[t] = img
			}
			var op ebiten.DrawImageOptions
			op.GeoM = tileGeoM(fs, willowmap.TileExtent(t.Coord), img.Bounds().Dx(), img.Bounds().Dy(), scale)
			op.ColorScale.ScaleAlpha(float32(min(ls.Opacity, 1)))
			op.Filter = ebiten.FilterLinear
			screen.DrawImage(img, &op)
			r.drawn++
		}
	}

	for t, img := range r.cache {
		if !seen[t] {
			img.Deallocate()
			delete(r.cache, t)
		}
	}
}

// tileRect places a tile extent in unrotated surface pixels.
func tileRect(fs *willowmap.FrameState, b orb.Bound) Rect {
	res := fs.ViewState.Resolution
	c := fs.ViewState.Center
	return Rect{
		X:      (b.Min[0]-c[0])/res + fs.Size.Width/2,
		Y:      (c[1]-b.Max[1])/res + fs.Size.Height/2,
		Width:  (b.Max[0] - b.Min[0]) / res,
		Height: (b.Max[1] - b.Min[1]) / res,
	}
}

// tileGeoM maps a srcW×srcH tile image onto its place on screen, rotated
// about the surface center and scaled to device pixels.
func tileGeoM(fs *willowmap.FrameState, b orb.Bound, srcW, srcH int, scale float64) ebiten.GeoM {
	rect := tileRect(fs, b)
	var g ebiten.GeoM
	g.Scale(rect.Width/float64(srcW), rect.Height/float64(srcH))
	g.Translate(rect.X, rect.Y)
	if rot := fs.ViewState.Rotation; rot != 0 {
		cx, cy := fs.Size.Width/2, fs.Size.Height/2
		g.Translate(-cx, -cy)
		g.Rotate(rot)
		g.Translate(cx, cy)
	}
	g.Scale(scale, scale)
	return g
}

// Dispose implements willowmap.Renderer.
func (r *Renderer) Dispose() {
	for t, img := range r.cache {
		img.Deallocate()
		delete(r.cache, t)
	}
	r.frame = nil
}
