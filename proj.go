package willowmap

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/wroge/wgs84"
)

// Web Mercator (EPSG:3857) tile grid constants.
const (
	// MercatorHalfWorld is half the width of the EPSG:3857 world in meters.
	MercatorHalfWorld = 20037508.342789244
	// TileSize is the pixel size of a grid tile.
	TileSize = 256
	// MaxZoom is the deepest zoom level of the tile grid.
	MaxZoom = 22
)

var (
	toMercator = wgs84.EPSG().Transform(4326, 3857)
	toLonLat   = wgs84.EPSG().Transform(3857, 4326)
)

// FromLonLat converts a lon/lat point (EPSG:4326) to view coordinates
// (EPSG:3857).
func FromLonLat(p orb.Point) orb.Point {
	x, y, _ := toMercator(p[0], p[1], 0)
	return orb.Point{x, y}
}

// ToLonLat converts view coordinates (EPSG:3857) to lon/lat (EPSG:4326).
func ToLonLat(p orb.Point) orb.Point {
	lon, lat, _ := toLonLat(p[0], p[1], 0)
	return orb.Point{lon, lat}
}

// ResolutionForZoom returns the meters per pixel of zoom level z.
func ResolutionForZoom(z maptile.Zoom) float64 {
	return 2 * MercatorHalfWorld / TileSize / math.Exp2(float64(z))
}

// ZoomForResolution returns the grid zoom level whose resolution is closest
// to res without being coarser, clamped to [0, MaxZoom].
func ZoomForResolution(res float64) maptile.Zoom {
	if res <= 0 {
		return MaxZoom
	}
	z := math.Ceil(math.Log2(2*MercatorHalfWorld/TileSize/res) - 1e-9)
	if z < 0 {
		z = 0
	}
	if z > MaxZoom {
		z = MaxZoom
	}
	return maptile.Zoom(z)
}

// TileExtent returns the EPSG:3857 bounds of t. Tile rows grow southward.
func TileExtent(t maptile.Tile) orb.Bound {
	size := 2 * MercatorHalfWorld / math.Exp2(float64(t.Z))
	minX := -MercatorHalfWorld + float64(t.X)*size
	maxY := MercatorHalfWorld - float64(t.Y)*size
	return orb.Bound{
		Min: orb.Point{minX, maxY - size},
		Max: orb.Point{minX + size, maxY},
	}
}

// TileCenter returns the EPSG:3857 center of t.
func TileCenter(t maptile.Tile) orb.Point {
	return TileExtent(t).Center()
}

// TilesInExtent returns the tiles of zoom z covering b, row by row.
func TilesInExtent(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	if ExtentIsEmpty(b) {
		return nil
	}
	n := int64(1) << z
	size := 2 * MercatorHalfWorld / float64(n)
	clampIdx := func(v int64) int64 {
		if v < 0 {
			return 0
		}
		if v >= n {
			return n - 1
		}
		return v
	}
	minX := clampIdx(int64(math.Floor((b.Min[0] + MercatorHalfWorld) / size)))
	maxX := clampIdx(int64(math.Floor((b.Max[0] + MercatorHalfWorld) / size)))
	minY := clampIdx(int64(math.Floor((MercatorHalfWorld - b.Max[1]) / size)))
	maxY := clampIdx(int64(math.Floor((MercatorHalfWorld - b.Min[1]) / size)))
	if b.Max[0] <= -MercatorHalfWorld || b.Min[0] >= MercatorHalfWorld ||
		b.Max[1] <= -MercatorHalfWorld || b.Min[1] >= MercatorHalfWorld {
		return nil
	}

	tiles := make([]maptile.Tile, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, maptile.New(uint32(x), uint32(y), z))
		}
	}
	return tiles
}
