// Package ebitenhost runs a willowmap.Map in an ebiten window. It polls
// ebiten input into raw browser events, drives the map's frame loop from
// Update and paints loaded tiles on Draw.
package ebitenhost

import (
	"fmt"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/phanxgames/willowmap"
)

// RunConfig holds optional parameters for Run.
type RunConfig struct {
	// Title sets the window title. Ignored on platforms without a title bar.
	Title string
	// Width and Height set the window size in device-independent pixels.
	// If zero, defaults to 1024x768.
	Width, Height int
	// ShowFPS draws FPS, TPS and tile counters in the top-left corner.
	ShowFPS bool
}

// Host owns the loop, surface and renderer of a windowed Map and implements
// ebiten.Game.
type Host struct {
	Loop    *willowmap.Loop
	Map     *willowmap.Map
	Surface *Surface

	renderer *Renderer
	input    poller
	stats    *statsOverlay
	last     time.Time
}

// New creates a Map from opts hosted on a width×height ebiten surface.
// Target, Scheduler and Renderer in opts are replaced.
func New(opts willowmap.Options, width, height int) (*Host, error) {
	h := &Host{
		Loop:    willowmap.NewLoop(),
		Surface: NewSurface(width, height),
	}
	opts.Target = h.Surface
	opts.Scheduler = h.Loop
	opts.Renderer = func(m *willowmap.Map, s willowmap.Surface) willowmap.Renderer {
		h.renderer = NewRenderer(m, s).(*Renderer)
		return h.renderer
	}
	m, err := willowmap.NewMap(opts)
	if err != nil {
		return nil, fmt.Errorf("ebiten host map: %w", err)
	}
	h.Map = m
	return h, nil
}

// ShowStats toggles the stats overlay. While shown, its corner stops map
// events.
func (h *Host) ShowStats() {
	if h.stats != nil {
		return
	}
	h.stats = &statsOverlay{}
	h.Surface.AddStopRegion(statsRegion)
}

// Update implements ebiten.Game. Input is delivered before the frame runs
// so a drag renders in the same tick.
func (h *Host) Update() error {
	now := time.Now()
	for _, ev := range h.input.poll(now) {
		h.Map.HandleBrowserEvent(ev)
	}
	h.Loop.RunFrame(now)

	if h.stats != nil {
		dt := 0.0
		if !h.last.IsZero() {
			dt = now.Sub(h.last).Seconds()
		}
		h.stats.update(dt, h.Map)
	}
	h.last = now
	return nil
}

// Draw implements ebiten.Game.
func (h *Host) Draw(screen *ebiten.Image) {
	if h.renderer != nil {
		h.renderer.Draw(screen)
	}
	if h.stats != nil {
		h.stats.draw(screen)
	}
}

// Layout implements ebiten.Game. The surface follows the window size.
func (h *Host) Layout(outsideWidth, outsideHeight int) (int, int) {
	h.Surface.Resize(outsideWidth, outsideHeight)
	return outsideWidth, outsideHeight
}

// Close disposes the Map and the overlay.
func (h *Host) Close() {
	h.Map.Dispose()
	if h.stats != nil {
		h.stats.dispose()
	}
}

// Run opens a resizable window and blocks until it is closed.
func Run(h *Host, cfg RunConfig) error {
	w, ht := cfg.Width, cfg.Height
	if w <= 0 {
		w = 1024
	}
	if ht <= 0 {
		ht = 768
	}
	if cfg.Title != "" {
		ebiten.SetWindowTitle(cfg.Title)
	}
	ebiten.SetWindowSize(w, ht)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if cfg.ShowFPS {
		h.ShowStats()
	}
	defer h.Close()

	h.Map.Logger().Info().Int("width", w).Int("height", ht).Msg("window opened")
	return ebiten.RunGame(h)
}
