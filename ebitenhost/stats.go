package ebitenhost

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/phanxgames/willowmap"
)

// statsRegion is the screen area covered by the stats overlay.
var statsRegion = Rect{X: 0, Y: 0, Width: 150, Height: 64}

// statsOverlay shows FPS, TPS and tile loading counters in the top-left
// corner. The text is refreshed every ~0.5 seconds.
type statsOverlay struct {
	img   *ebiten.Image
	since float64
	text  string
}

// update advances the refresh timer by dt seconds.
func (s *statsOverlay) update(dt float64, m *willowmap.Map) {
	s.since += dt
	if s.since < 0.5 && s.text != "" {
		return
	}
	s.since = 0
	if s.img == nil {
		s.img = ebiten.NewImage(int(statsRegion.Width), int(statsRegion.Height))
	}
	s.text = statsText(ebiten.ActualFPS(), ebiten.ActualTPS(), m.FrameState(), m.TileQueue())

	s.img.Clear()
	s.img.Fill(color.RGBA{0, 0, 0, 128})
	ebitenutil.DebugPrint(s.img, s.text)
}

func (s *statsOverlay) draw(screen *ebiten.Image) {
	if s.img == nil {
		return
	}
	var op ebiten.DrawImageOptions
	op.GeoM.Translate(statsRegion.X, statsRegion.Y)
	screen.DrawImage(s.img, &op)
}

func (s *statsOverlay) dispose() {
	if s.img != nil {
		s.img.Deallocate()
		s.img = nil
	}
}

func statsText(fps, tps float64, fs *willowmap.FrameState, q *willowmap.TileQueue) string {
	text := fmt.Sprintf("FPS: %.1f\nTPS: %.1f", fps, tps)
	if fs != nil {
		text += fmt.Sprintf("\nZoom: %d", willowmap.ZoomForResolution(fs.ViewState.Resolution))
	}
	if q != nil {
		text += fmt.Sprintf("\nTiles: %d/%d", q.TilesLoading(), q.Count())
	}
	return text
}
