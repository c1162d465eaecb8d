// Package willowmap is the render and event scheduling engine of an
// interactive 2D map.
//
// A [Map] owns a view (center, resolution, rotation), a tree of layers and a
// target [Surface]. It turns state changes (pan, zoom, resize, layer edits,
// pointer and keyboard input) into throttled render frames and derived
// lifecycle events: move-start/move-end, load-start/load-end,
// render-complete and post-render.
//
// # Quick start
//
// Headless, with the default [NopRenderer] and a [Loop] driven by hand:
//
//	loop := willowmap.NewLoop()
//	m, err := willowmap.NewMap(willowmap.Options{
//		Target:    willowmap.NewStaticSurface(800, 600),
//		Scheduler: loop,
//		View: willowmap.NewView(
//			willowmap.WithCenter(orb.Point{0, 0}),
//			willowmap.WithResolution(1),
//		),
//	})
//	if err != nil {
//		// err wraps ErrInvalidOptions
//	}
//	m.OnMoveEnd(func(ev *willowmap.MapEvent) { fmt.Println(ev.FrameState.Extent) })
//	loop.RunFrame(time.Now())
//
// For a window, see the ebitenhost package, which drives the loop from
// ebiten's Update and paints tiles with ebiten.
//
// # Frames
//
// [Map.Render] arms at most one pending frame on the [Scheduler]; repeated
// calls before it runs coalesce. [Map.RenderSync] cancels the pending frame
// and builds one immediately. Each built [FrameState] carries an index that
// increases by one per frame, the visible extent, the pixel transforms and
// the flattened [LayerState] list. A zero-area surface or an undefined view
// yields no frame and no lifecycle events.
//
// # Tiles
//
// Sources implementing [FrameSource] mark the tiles they need in
// [FrameState.WantedTiles] and enqueue requests on the [TileQueue]. After
// every frame the Map reprioritizes the queue and starts loads within the
// limits of its [Throttle]: fewer while the view is animating or
// interacting, none when the frame is over budget.
//
// # Input
//
// Hosts forward raw input with [Map.HandleBrowserEvent]. Events are offered
// to Map listeners first, then to interactions from the most recently added
// to the first, stopping at the first one that returns false.
package willowmap
