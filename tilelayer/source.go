// Package tilelayer provides an XYZ raster tile source for willowmap layers.
//
// A Source registers the tiles each frame needs, queues the missing ones on
// the Map's tile queue and fetches them on background goroutines. Fetch
// results are posted back to the Map's loop so tile state only changes on
// the goroutine driving the Map.
package tilelayer

import (
	"context"
	"image"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/phanxgames/willowmap"
)

// Poster runs functions on the goroutine driving the Map. *willowmap.Loop
// implements it.
type Poster interface {
	Post(fn func())
}

// Tile is one cached tile.
type Tile struct {
	Coord maptile.Tile
	State willowmap.TileState
	Image image.Image
	Err   error
}

// Option configures a Source.
type Option func(*Source)

// WithZoomRange limits the zoom levels the source serves.
func WithZoomRange(min, max maptile.Zoom) Option {
	return func(s *Source) {
		s.minZoom = min
		s.maxZoom = max
	}
}

// WithCacheSize bounds the number of cached tiles kept beyond those the
// current frame needs.
func WithCacheSize(n int) Option {
	return func(s *Source) { s.cacheSize = n }
}

// WithRetry re-queues tiles that failed on later frames.
func WithRetry(retry bool) Option {
	return func(s *Source) { s.retry = retry }
}

// Source is a willowmap.FrameSource and willowmap.TileLoader for an XYZ tile
// grid in EPSG:3857.
type Source struct {
	key     string
	fetcher Fetcher
	poster  Poster

	minZoom   maptile.Zoom
	maxZoom   maptile.Zoom
	cacheSize int
	retry     bool

	ctx    context.Context
	cancel context.CancelFunc

	tiles   map[maptile.Tile]*Tile
	loading int
}

// New creates a source named key.
func New(key string, fetcher Fetcher, poster Poster, opts ...Option) *Source {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		key:       key,
		fetcher:   fetcher,
		poster:    poster,
		maxZoom:   willowmap.MaxZoom,
		cacheSize: 512,
		ctx:       ctx,
		cancel:    cancel,
		tiles:     make(map[maptile.Tile]*Tile),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Key implements willowmap.LayerSource.
func (s *Source) Key() string { return s.key }

// Loading implements willowmap.LayerSource.
func (s *Source) Loading() bool { return s.loading > 0 }

// Tile returns the cached tile for t, or nil.
func (s *Source) Tile(t maptile.Tile) *Tile { return s.tiles[t] }

// CachedTiles returns the number of cached tiles.
func (s *Source) CachedTiles() int { return len(s.tiles) }

// Zoom returns the grid zoom used for resolution.
func (s *Source) Zoom(resolution float64) maptile.Zoom {
	z := willowmap.ZoomForResolution(resolution)
	if z < s.minZoom {
		z = s.minZoom
	}
	if z > s.maxZoom {
		z = s.maxZoom
	}
	return z
}

// PrepareFrame implements willowmap.FrameSource. Every tile covering the
// visible extent is marked wanted; loaded ones are marked used, the rest are
// queued.
func (s *Source) PrepareFrame(fs *willowmap.FrameState, state willowmap.LayerState) {
	extent := fs.Extent
	if state.Extent != nil {
		extent = willowmap.ExtentIntersection(extent, *state.Extent)
	}
	z := s.Zoom(fs.ViewState.Resolution)
	res := willowmap.ResolutionForZoom(z)
	for _, t := range willowmap.TilesInExtent(extent, z) {
		fs.WantedTiles.Add(s.key, t)
		tile := s.tiles[t]
		if tile == nil {
			tile = &Tile{Coord: t, State: willowmap.TileIdle}
			s.tiles[t] = tile
		}
		switch tile.State {
		case willowmap.TileLoaded:
			fs.UsedTiles.Add(s.key, t)
			continue
		case willowmap.TileLoading:
			continue
		case willowmap.TileError:
			if !s.retry {
				continue
			}
			tile.State = willowmap.TileIdle
			tile.Err = nil
		}
		if fs.TileQueue.IsKeyQueued(s.key, t) {
			continue
		}
		fs.TileQueue.Enqueue(willowmap.TileRequest{
			SourceKey:  s.key,
			Tile:       t,
			Center:     willowmap.TileCenter(t),
			Resolution: res,
			Loader:     s,
		})
	}
	s.prune(fs.WantedTiles)
}

// LoadTile implements willowmap.TileLoader.
func (s *Source) LoadTile(t maptile.Tile, done func(error)) {
	tile := s.tiles[t]
	if tile == nil {
		tile = &Tile{Coord: t}
		s.tiles[t] = tile
	}
	tile.State = willowmap.TileLoading
	s.loading++

	ctx := s.ctx
	go func() {
		img, err := s.fetcher.Fetch(ctx, t)
		s.poster.Post(func() {
			s.loading--
			if err != nil {
				tile.State = willowmap.TileError
				tile.Err = err
			} else {
				tile.State = willowmap.TileLoaded
				tile.Image = img
			}
			done(err)
		})
	}()
}

// TilesFor returns the loaded tiles of the frame's zoom covering b, for
// renderers.
func (s *Source) TilesFor(b orb.Bound, resolution float64) []*Tile {
	z := s.Zoom(resolution)
	var out []*Tile
	for _, t := range willowmap.TilesInExtent(b, z) {
		if tile := s.tiles[t]; tile != nil && tile.State == willowmap.TileLoaded {
			out = append(out, tile)
		}
	}
	return out
}

// Refresh drops every cached tile that is not loading.
func (s *Source) Refresh() {
	for k, t := range s.tiles {
		if t.State != willowmap.TileLoading {
			delete(s.tiles, k)
		}
	}
}

// Dispose cancels fetches in flight.
func (s *Source) Dispose() {
	s.cancel()
}

// prune evicts cached tiles the frame does not want once the cache exceeds
// its size. Loading tiles are never evicted.
func (s *Source) prune(wanted willowmap.TileSet) {
	excess := len(s.tiles) - s.cacheSize
	if excess <= 0 {
		return
	}
	for k, t := range s.tiles {
		if excess <= 0 {
			return
		}
		if t.State == willowmap.TileLoading || wanted.Has(s.key, k) {
			continue
		}
		delete(s.tiles, k)
		excess--
	}
}
