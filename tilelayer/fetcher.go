package tilelayer

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for HTTPFetcher
	_ "image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb/maptile"
)

// Fetcher retrieves the image of one tile. Fetch runs on its own goroutine
// and must honour ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, t maptile.Tile) (image.Image, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, t maptile.Tile) (image.Image, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, t maptile.Tile) (image.Image, error) {
	return f(ctx, t)
}

// ErrTileNotFound is returned by fetchers for tiles outside their data.
var ErrTileNotFound = errors.New("tilelayer: tile not found")

// Synthetic draws a checkerboard tile labelled by its zoom level. It needs
// no network and is used by the CLI demo and by tests.
type Synthetic struct {
	// Delay simulates fetch latency.
	Delay time.Duration
	// Fail makes every tile matching it fail with ErrTileNotFound.
	Fail func(maptile.Tile) bool
}

// Fetch implements Fetcher.
func (s Synthetic) Fetch(ctx context.Context, t maptile.Tile) (image.Image, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.Fail != nil && s.Fail(t) {
		return nil, fmt.Errorf("synthetic %d/%d/%d: %w", t.Z, t.X, t.Y, ErrTileNotFound)
	}

	const size = 256
	dc := gg.NewContext(size, size)
	defer dc.Close()

	hue := float64(t.Z%8) / 8
	dc.ClearWithColor(gg.RGB(0.85, 0.88, 0.9))
	if (t.X+t.Y)%2 == 0 {
		dc.SetRGBA(0.3+0.5*hue, 0.5, 0.8-0.5*hue, 0.35)
		dc.DrawRectangle(0, 0, size, size)
		if err := dc.Fill(); err != nil {
			return nil, fmt.Errorf("synthetic fill: %w", err)
		}
	}
	dc.SetRGBA(0.2, 0.2, 0.25, 1)
	dc.SetLineWidth(2)
	dc.DrawRectangle(1, 1, size-2, size-2)
	if err := dc.Stroke(); err != nil {
		return nil, fmt.Errorf("synthetic stroke: %w", err)
	}
	return dc.Image(), nil
}

// HTTPFetcher downloads tiles from an XYZ URL template such as
// "https://tile.example.org/{z}/{x}/{y}.png".
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// TileURL expands the template for t.
func (h HTTPFetcher) TileURL(t maptile.Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.FormatUint(uint64(t.Z), 10),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
	)
	return r.Replace(h.URL)
}

// Fetch implements Fetcher.
func (h HTTPFetcher) Fetch(ctx context.Context, t maptile.Tile) (image.Image, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := h.TileURL(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tile request %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("tile fetch %s: %w", url, ErrTileNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tile fetch %s: status %d", url, resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tile decode %s: %w", url, err)
	}
	return img, nil
}
