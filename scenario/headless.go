// Package scenario drives a Map headlessly: a simulated clock, a software
// renderer and a queue of injected input events, sequenced by JSON step
// scripts. It is used for automated visual checks and by the CLI.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/phanxgames/willowmap"
	"github.com/phanxgames/willowmap/softrender"
)

// DefaultFrameInterval is the simulated time between frames.
const DefaultFrameInterval = 16 * time.Millisecond

// Headless hosts a Map on a StaticSurface painted by softrender. Time only
// advances when Frame is called.
type Headless struct {
	Loop    *willowmap.Loop
	Map     *willowmap.Map
	Surface *willowmap.StaticSurface

	// SnapshotDir receives PNG snapshots. Defaults to "snapshots".
	SnapshotDir   string
	FrameInterval time.Duration

	renderer  *softrender.Renderer
	now       time.Time
	inject    []willowmap.BrowserEvent
	snapshots []string
	frames    int
}

// NewHeadless creates a Map from opts on a width×height surface. Target,
// Scheduler and Renderer in opts are replaced.
func NewHeadless(opts willowmap.Options, width, height float64) (*Headless, error) {
	h := &Headless{
		SnapshotDir:   "snapshots",
		FrameInterval: DefaultFrameInterval,
		now:           time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h.Loop = willowmap.NewLoop(willowmap.WithClock(h.Now))
	h.Surface = willowmap.NewStaticSurface(width, height)

	opts.Target = h.Surface
	opts.Scheduler = h.Loop
	opts.Renderer = func(m *willowmap.Map, s willowmap.Surface) willowmap.Renderer {
		h.renderer = softrender.New(m, s).(*softrender.Renderer)
		return h.renderer
	}
	m, err := willowmap.NewMap(opts)
	if err != nil {
		return nil, fmt.Errorf("headless map: %w", err)
	}
	h.Map = m
	return h, nil
}

// Now returns the simulated time.
func (h *Headless) Now() time.Time { return h.now }

// Frames returns the number of frames run.
func (h *Headless) Frames() int { return h.frames }

// Renderer returns the software renderer of the current target.
func (h *Headless) Renderer() *softrender.Renderer { return h.renderer }

// Snapshots returns the paths of the snapshots written so far.
func (h *Headless) Snapshots() []string { return h.snapshots }

// --- Input injection ---

// Inject queues a raw input event. It is delivered on the next Frame, one
// event per frame. A zero Time is set to the frame time.
func (h *Headless) Inject(ev willowmap.BrowserEvent) {
	h.inject = append(h.inject, ev)
}

// InjectPress queues a left button press at pixel (x, y).
func (h *Headless) InjectPress(x, y float64) {
	h.Inject(willowmap.BrowserEvent{
		Type:   willowmap.PointerDown,
		Pixel:  willowmap.Vec2{X: x, Y: y},
		Button: willowmap.MouseButtonLeft,
	})
}

// InjectMove queues a pointer move to pixel (x, y). Between InjectPress and
// InjectRelease it drags.
func (h *Headless) InjectMove(x, y float64) {
	h.Inject(willowmap.BrowserEvent{
		Type:   willowmap.PointerMove,
		Pixel:  willowmap.Vec2{X: x, Y: y},
		Button: willowmap.MouseButtonLeft,
	})
}

// InjectRelease queues a left button release at pixel (x, y).
func (h *Headless) InjectRelease(x, y float64) {
	h.Inject(willowmap.BrowserEvent{
		Type:   willowmap.PointerUp,
		Pixel:  willowmap.Vec2{X: x, Y: y},
		Button: willowmap.MouseButtonLeft,
	})
}

// InjectClick queues a press and a release at (x, y). Consumes two frames.
func (h *Headless) InjectClick(x, y float64) {
	h.InjectPress(x, y)
	h.InjectRelease(x, y)
}

// InjectDrag queues a press at (fromX, fromY), moves linearly interpolated
// over frames-2 intermediate frames and a release at (toX, toY). The
// sequence consumes frames frames, at least 3 so the release follows a
// move.
func (h *Headless) InjectDrag(fromX, fromY, toX, toY float64, frames int) {
	if frames < 3 {
		frames = 3
	}
	h.InjectPress(fromX, fromY)
	steps := frames - 2
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		h.InjectMove(fromX+(toX-fromX)*t, fromY+(toY-fromY)*t)
	}
	h.InjectRelease(toX, toY)
}

// InjectWheel queues a wheel event at (x, y). Positive deltaY zooms out.
func (h *Headless) InjectWheel(x, y, deltaY float64) {
	h.Inject(willowmap.BrowserEvent{
		Type:   willowmap.Wheel,
		Pixel:  willowmap.Vec2{X: x, Y: y},
		DeltaY: deltaY,
	})
}

// InjectKey queues a key press and release.
func (h *Headless) InjectKey(key string) {
	h.Inject(willowmap.BrowserEvent{Type: willowmap.KeyDown, Key: key})
	h.Inject(willowmap.BrowserEvent{Type: willowmap.KeyUp, Key: key})
}

// Injecting reports whether injected events are waiting.
func (h *Headless) Injecting() bool { return len(h.inject) > 0 }

// --- Driving ---

// Frame delivers one injected event, runs one loop frame at the current
// simulated time and advances the clock.
func (h *Headless) Frame() {
	if len(h.inject) > 0 {
		ev := h.inject[0]
		copy(h.inject, h.inject[1:])
		h.inject = h.inject[:len(h.inject)-1]
		if ev.Time.IsZero() {
			ev.Time = h.now
		}
		h.Map.HandleBrowserEvent(ev)
	}
	h.Loop.RunFrame(h.now)
	h.now = h.now.Add(h.FrameInterval)
	h.frames++
}

// Busy reports whether a frame is pending or tiles are queued or loading.
func (h *Headless) Busy() bool {
	q := h.Map.TileQueue()
	return h.Loop.Pending() || q.TilesLoading() > 0 || !q.IsEmpty()
}

// loadsOnly reports whether the only outstanding work is tile fetches on
// other goroutines.
func (h *Headless) loadsOnly() bool {
	return !h.Loop.Pending() && !h.Injecting() && h.Map.TileQueue().TilesLoading() > 0
}

// Settle runs frames until nothing is pending, blocking for tile fetches
// when they are all that is left.
func (h *Headless) Settle(ctx context.Context, maxFrames int) error {
	for i := 0; i < maxFrames; i++ {
		if !h.Busy() && !h.Injecting() {
			return nil
		}
		if h.loadsOnly() {
			if err := h.Loop.Wait(ctx); err != nil {
				return fmt.Errorf("settle: %w", err)
			}
		}
		h.Frame()
	}
	return fmt.Errorf("settle: still busy after %d frames", maxFrames)
}

// Snapshot writes the last painted frame to SnapshotDir.
func (h *Headless) Snapshot(label string) (string, error) {
	if h.renderer == nil {
		return "", fmt.Errorf("snapshot %q: no renderer", label)
	}
	path, err := h.renderer.Snapshot(h.SnapshotDir, label)
	if err != nil {
		return "", err
	}
	h.snapshots = append(h.snapshots, path)
	h.Map.Logger().Info().Str("label", label).Str("path", path).Msg("snapshot written")
	return path, nil
}

// Close disposes the Map.
func (h *Headless) Close() {
	h.Map.Dispose()
}
