package willowmap

import "time"

// debugStats holds per-frame timing and queue metrics.
// Only populated when the Map is in debug mode.
type debugStats struct {
	buildTime    time.Duration
	renderTime   time.Duration
	layerCount   int
	tilesLoading int
	tilesQueued  int
	wantedTiles  int
}

// debugLog writes frame stats at debug level.
func (m *Map) debugLog(fs *FrameState, stats debugStats) {
	if !m.debug {
		return
	}
	m.logger.Debug().
		Uint64("frame", fs.Index).
		Dur("build", stats.buildTime).
		Dur("render", stats.renderTime).
		Dur("total", stats.buildTime+stats.renderTime).
		Int("layers", stats.layerCount).
		Int("wanted_tiles", stats.wantedTiles).
		Int("tiles_loading", stats.tilesLoading).
		Int("tiles_queued", stats.tilesQueued).
		Msg("frame")
}

// debugMaxTreeDepth is the layer group nesting depth that triggers a
// warning in debug mode.
const debugMaxTreeDepth = 16

// debugCheckTreeDepth warns if the layer tree is nested deeper than
// debugMaxTreeDepth.
func (m *Map) debugCheckTreeDepth(g *LayerGroup) {
	if !m.debug || g == nil {
		return
	}
	if d := groupDepth(g); d > debugMaxTreeDepth {
		m.logger.Warn().Int("depth", d).Int("threshold", debugMaxTreeDepth).
			Str("group", g.Name).Msg("layer tree depth exceeds threshold")
	}
}

func groupDepth(g *LayerGroup) int {
	deepest := 0
	for _, l := range g.layers.items {
		if sub, ok := l.(*LayerGroup); ok {
			if d := groupDepth(sub); d > deepest {
				deepest = d
			}
		}
	}
	return deepest + 1
}

// SetDebugMode enables or disables per-frame debug logging and tree checks.
func (m *Map) SetDebugMode(enabled bool) {
	m.debug = enabled
}
