// Package softrender is a headless willowmap renderer that paints loaded
// tiles into a gg raster context. It backs the scenario runner and tests,
// and can write any rendered frame out as PNG.
package softrender

import (
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
	"github.com/phanxgames/willowmap"
	"github.com/phanxgames/willowmap/tilelayer"
)

// TileProvider is a layer source whose loaded tiles can be painted.
// *tilelayer.Source implements it.
type TileProvider interface {
	TilesFor(b orb.Bound, resolution float64) []*tilelayer.Tile
}

// Background is the clear color of every frame.
var Background = gg.RGB(0.93, 0.93, 0.9)

// Renderer paints frames into an in-memory raster.
type Renderer struct {
	m      *willowmap.Map
	dc     *gg.Context
	frames int
	drawn  int
	cache  map[*tilelayer.Tile]*gg.ImageBuf
}

// New is a willowmap.RendererFactory.
func New(m *willowmap.Map, _ willowmap.Surface) willowmap.Renderer {
	return &Renderer{m: m, cache: make(map[*tilelayer.Tile]*gg.ImageBuf)}
}

// Ready implements willowmap.LayerRenderer so the renderer can be set on
// layers it paints.
func (r *Renderer) Ready() bool { return true }

// RenderFrame implements willowmap.Renderer. A nil frame clears the raster.
func (r *Renderer) RenderFrame(fs *willowmap.FrameState) {
	if fs == nil {
		if r.dc != nil {
			r.dc.ClearWithColor(Background)
		}
		return
	}
	fs.PrepareLayers()

	w := int(math.Round(fs.Size.Width * fs.PixelRatio))
	h := int(math.Round(fs.Size.Height * fs.PixelRatio))
	if w <= 0 || h <= 0 {
		return
	}
	if r.dc == nil {
		r.dc = gg.NewContext(w, h)
	} else if err := r.dc.Resize(w, h); err != nil {
		r.m.Logger().Warn().Err(err).Msg("softrender resize")
		return
	}

	dc := r.dc
	dc.ClearWithColor(Background)
	dc.Push()
	dc.Scale(fs.PixelRatio, fs.PixelRatio)
	if rot := fs.ViewState.Rotation; rot != 0 {
		dc.RotateAbout(rot, fs.Size.Width/2, fs.Size.Height/2)
	}

	seen := make(map[*tilelayer.Tile]bool, len(r.cache))
	r.drawn = 0
	for _, ls := range fs.VisibleLayerStates() {
		if ls.Opacity <= 0 {
			continue
		}
		src, ok := ls.Layer.Source().(TileProvider)
		if !ok {
			continue
		}
		extent := fs.Extent
		if ls.Extent != nil {
			extent = willowmap.ExtentIntersection(extent, *ls.Extent)
		}
		for _, t := range src.TilesFor(extent, fs.ViewState.Resolution) {
			seen[t] = true
			r.drawTile(fs, t, ls.Opacity)
		}
	}
	dc.Pop()

	for t := range r.cache {
		if !seen[t] {
			delete(r.cache, t)
		}
	}
	r.frames++
}

// drawTile paints t in unrotated pixel space; the context carries the view
// rotation.
func (r *Renderer) drawTile(fs *willowmap.FrameState, t *tilelayer.Tile, opacity float64) {
	buf := r.cache[t]
	if buf == nil {
		buf = gg.ImageBufFromImage(t.Image)
		r.cache[t] = buf
	}
	b := willowmap.TileExtent(t.Coord)
	res := fs.ViewState.Resolution
	c := fs.ViewState.Center
	x := (b.Min[0]-c[0])/res + fs.Size.Width/2
	y := (c[1]-b.Max[1])/res + fs.Size.Height/2
	r.dc.DrawImageEx(buf, gg.DrawImageOptions{
		X:         x,
		Y:         y,
		DstWidth:  (b.Max[0] - b.Min[0]) / res,
		DstHeight: (b.Max[1] - b.Min[1]) / res,
		Opacity:   math.Min(opacity, 1),
	})
	r.drawn++
}

// Frames returns the number of frames painted.
func (r *Renderer) Frames() int { return r.frames }

// TilesDrawn returns the number of tiles painted in the last frame.
func (r *Renderer) TilesDrawn() int { return r.drawn }

// Image returns the last painted frame, or nil before the first one.
func (r *Renderer) Image() image.Image {
	if r.dc == nil {
		return nil
	}
	return r.dc.Image()
}

// EncodePNG writes the last painted frame to w.
func (r *Renderer) EncodePNG(w io.Writer) error {
	if r.dc == nil {
		return fmt.Errorf("softrender: no frame rendered")
	}
	return r.dc.EncodePNG(w)
}

// Snapshot writes the last painted frame to dir as a PNG named after label
// and the current time, and returns the file path.
func (r *Renderer) Snapshot(dir, label string) (string, error) {
	if r.dc == nil {
		return "", fmt.Errorf("softrender: no frame rendered")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot mkdir %s: %w", dir, err)
	}
	stamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", stamp, sanitizeLabel(label)))
	if err := r.dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", path, err)
	}
	return path, nil
}

// Dispose implements willowmap.Renderer.
func (r *Renderer) Dispose() {
	if r.dc != nil {
		if err := r.dc.Close(); err != nil {
			r.m.Logger().Debug().Err(err).Msg("softrender close")
		}
		r.dc = nil
	}
	r.cache = make(map[*tilelayer.Tile]*gg.ImageBuf)
}

// sanitizeLabel replaces characters that are unsafe in file names with
// underscores and falls back to "unlabeled" for empty strings.
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unlabeled"
	}
	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
