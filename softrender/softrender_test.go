package softrender

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/phanxgames/willowmap"
	"github.com/phanxgames/willowmap/tilelayer"
)

func red(context.Context, maptile.Tile) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	return img, nil
}

// newTestMap builds a map rendered by softrender, capturing the renderer
// the factory creates.
func newTestMap(t *testing.T, w, h, res float64) (*willowmap.Map, *willowmap.Loop, **Renderer) {
	t.Helper()
	r := new(*Renderer)
	loop := willowmap.NewLoop()
	m, err := willowmap.NewMap(willowmap.Options{
		Target:    willowmap.NewStaticSurface(w, h),
		Scheduler: loop,
		Renderer: func(m *willowmap.Map, s willowmap.Surface) willowmap.Renderer {
			*r = New(m, s).(*Renderer)
			return *r
		},
		View: willowmap.NewView(
			willowmap.WithCenter(orb.Point{0, 0}),
			willowmap.WithResolution(res),
		),
	})
	if err != nil {
		t.Fatalf("NewMap: %v", err)
	}
	t.Cleanup(m.Dispose)
	return m, loop, r
}

func addRedLayer(m *willowmap.Map, loop *willowmap.Loop) *willowmap.Layer {
	layer := willowmap.NewLayer("base", tilelayer.New("red", tilelayer.FetcherFunc(red), loop))
	m.AddLayer(layer)
	return layer
}

func settle(t *testing.T, m *willowmap.Map, loop *willowmap.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	now := time.Unix(1000, 0)
	q := m.TileQueue()
	for i := 0; i < 1000; i++ {
		now = now.Add(16 * time.Millisecond)
		loop.RunFrame(now)
		if q.TilesLoading() == 0 && q.IsEmpty() && !loop.Pending() {
			return
		}
		if q.TilesLoading() > 0 {
			if err := loop.Wait(ctx); err != nil {
				t.Fatalf("waiting for tiles: %v", err)
			}
		}
	}
	t.Fatal("loop did not settle")
}

func TestRenderPaintsLoadedTiles(t *testing.T) {
	m, loop, rp := newTestMap(t, 256, 256, willowmap.ResolutionForZoom(2))
	addRedLayer(m, loop)
	settle(t, m, loop)
	r := *rp

	if r.Frames() == 0 {
		t.Fatal("no frame painted")
	}
	if got := r.TilesDrawn(); got != 4 {
		t.Errorf("TilesDrawn = %d, want 4", got)
	}
	img := r.Image()
	if b := img.Bounds(); b.Dx() != 256 || b.Dy() != 256 {
		t.Fatalf("bounds = %v, want 256x256", b)
	}
	cr, cg, _, _ := img.At(64, 64).RGBA()
	if cr>>8 < 200 || cg>>8 > 60 {
		t.Errorf("pixel (64,64) = %v, want red", img.At(64, 64))
	}

	var buf bytes.Buffer
	if err := r.EncodePNG(&buf); err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("decode encoded frame: %v", err)
	}
}

func TestRenderSkipsTransparentLayers(t *testing.T) {
	m, loop, rp := newTestMap(t, 256, 256, willowmap.ResolutionForZoom(2))
	layer := addRedLayer(m, loop)
	settle(t, m, loop)
	r := *rp

	layer.SetOpacity(0)
	settle(t, m, loop)
	if got := r.TilesDrawn(); got != 0 {
		t.Errorf("TilesDrawn = %d with opacity 0, want 0", got)
	}
}

func TestRenderBeforeFirstFrame(t *testing.T) {
	r := &Renderer{}
	if r.Image() != nil {
		t.Error("Image before first frame should be nil")
	}
	if err := r.EncodePNG(&bytes.Buffer{}); err == nil {
		t.Error("EncodePNG before first frame should fail")
	}
	if _, err := r.Snapshot(t.TempDir(), "x"); err == nil {
		t.Error("Snapshot before first frame should fail")
	}
	// A nil frame without a raster is a no-op.
	r.RenderFrame(nil)
}

func TestSnapshot(t *testing.T) {
	m, loop, rp := newTestMap(t, 64, 32, 1000)
	settle(t, m, loop)
	r := *rp

	dir := filepath.Join(t.TempDir(), "shots")
	path, err := r.Snapshot(dir, "after pan")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !strings.HasSuffix(path, "_after_pan.png") {
		t.Errorf("path = %q, want suffix _after_pan.png", path)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 32 {
		t.Errorf("snapshot bounds = %v, want 64x32", b)
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"after-pan", "after-pan"},
		{"frame.01", "frame.01"},
		{"has spaces", "has_spaces"},
		{"path/to/thing", "path_to_thing"},
		{"special!@#", "special___"},
		{"", "unlabeled"},
		{"   ", "unlabeled"},
	}
	for _, tt := range tests {
		if got := sanitizeLabel(tt.in); got != tt.want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
