package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/phanxgames/willowmap"
)

// Step is a single action in a scenario script.
//
// Actions:
//
//	size      resize the surface to width×height
//	view      set center ([lon, lat]), zoom or resolution, rotation;
//	          animated when duration (ms) is set
//	pan       move the view center by dx, dy pixels
//	zoom      zoom by delta levels around the center; animated with duration
//	click     click at x, y
//	drag      drag from fromX, fromY to toX, toY over frames
//	wheel     wheel at x, y by delta pixels
//	key       press and release key
//	wait      idle for frames
//	settle    wait until no frame is pending and no tile is loading
//	snapshot  settle, then write a PNG named after label
type Step struct {
	Action     string    `json:"action"`
	Label      string    `json:"label,omitempty"`
	Width      float64   `json:"width,omitempty"`
	Height     float64   `json:"height,omitempty"`
	Center     []float64 `json:"center,omitempty"`
	Zoom       *float64  `json:"zoom,omitempty"`
	Resolution float64   `json:"resolution,omitempty"`
	Rotation   *float64  `json:"rotation,omitempty"`
	Duration   int       `json:"duration,omitempty"`
	X          float64   `json:"x,omitempty"`
	Y          float64   `json:"y,omitempty"`
	FromX      float64   `json:"fromX,omitempty"`
	FromY      float64   `json:"fromY,omitempty"`
	ToX        float64   `json:"toX,omitempty"`
	ToY        float64   `json:"toY,omitempty"`
	DX         float64   `json:"dx,omitempty"`
	DY         float64   `json:"dy,omitempty"`
	Delta      float64   `json:"delta,omitempty"`
	Key        string    `json:"key,omitempty"`
	Frames     int       `json:"frames,omitempty"`
}

// Script is the top-level JSON structure of a scenario.
type Script struct {
	Steps []Step `json:"steps"`
}

var knownActions = map[string]bool{
	"size": true, "view": true, "pan": true, "zoom": true, "click": true,
	"drag": true, "wheel": true, "key": true, "wait": true, "settle": true,
	"snapshot": true,
}

// ErrNoView is returned by view, pan and zoom steps when the Map's view is
// not a *willowmap.View.
var ErrNoView = errors.New("scenario: map view is not a *willowmap.View")

// Runner sequences a script across frames of a Headless host.
type Runner struct {
	steps     []Step
	cursor    int
	waitCount int
	settling  bool
	done      bool
}

// Load parses a JSON scenario script.
func Load(jsonData []byte) (*Runner, error) {
	var script Script
	if err := json.Unmarshal(jsonData, &script); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("parse scenario: no steps")
	}
	for i, st := range script.Steps {
		if !knownActions[st.Action] {
			return nil, fmt.Errorf("parse scenario: step %d: unknown action %q", i, st.Action)
		}
		if st.Action == "view" && st.Center != nil && len(st.Center) != 2 {
			return nil, fmt.Errorf("parse scenario: step %d: center must be [lon, lat]", i)
		}
	}
	return &Runner{steps: script.Steps}, nil
}

// Done reports whether every step has been executed.
func (r *Runner) Done() bool {
	return r.done
}

// Run executes the script on h, one step per frame at most, and settles
// the Map at the end.
func (r *Runner) Run(ctx context.Context, h *Headless, maxFrames int) error {
	for i := 0; i < maxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.done && !h.Busy() && !h.Injecting() {
			return nil
		}
		if err := r.step(h); err != nil {
			return err
		}
		if (r.done || r.settling) && h.loadsOnly() {
			if err := h.Loop.Wait(ctx); err != nil {
				return fmt.Errorf("scenario: %w", err)
			}
		}
		h.Frame()
	}
	return fmt.Errorf("scenario: not finished after %d frames", maxFrames)
}

// step advances the runner by one frame.
func (r *Runner) step(h *Headless) error {
	if r.done {
		return nil
	}
	// Wait for pending injections to drain before advancing.
	if h.Injecting() {
		return nil
	}
	if r.settling {
		if h.Busy() {
			return nil
		}
		r.settling = false
	}
	if r.waitCount > 0 {
		r.waitCount--
		return nil
	}
	if r.cursor >= len(r.steps) {
		r.done = true
		return nil
	}

	st := r.steps[r.cursor]
	r.cursor++
	if err := r.apply(h, st); err != nil {
		return fmt.Errorf("scenario step %d (%s): %w", r.cursor-1, st.Action, err)
	}

	if r.cursor >= len(r.steps) && r.waitCount == 0 && !r.settling && !h.Injecting() {
		r.done = true
	}
	return nil
}

func (r *Runner) apply(h *Headless, st Step) error {
	switch st.Action {
	case "size":
		h.Surface.Resize(st.Width, st.Height)
	case "view":
		return applyView(h, st)
	case "pan":
		v, fs, err := viewAndFrame(h)
		if err != nil {
			return err
		}
		m := fs.PixelToCoordinate
		v.Pan(m[0]*st.DX+m[2]*st.DY, m[1]*st.DX+m[3]*st.DY)
	case "zoom":
		v, _, err := viewAndFrame(h)
		if err != nil {
			return err
		}
		ratio := math.Exp2(-st.Delta)
		c, _ := v.Center()
		if st.Duration > 0 {
			min, max := v.ResolutionRange()
			res := math.Max(min, math.Min(v.Resolution()*ratio, max))
			v.Animate(willowmap.ViewTarget{Center: c, Resolution: res}, ms(st.Duration), nil, nil)
		} else {
			v.AdjustResolution(ratio, c)
		}
	case "click":
		h.InjectClick(st.X, st.Y)
	case "drag":
		h.InjectDrag(st.FromX, st.FromY, st.ToX, st.ToY, st.Frames)
	case "wheel":
		h.InjectWheel(st.X, st.Y, st.Delta)
	case "key":
		h.InjectKey(st.Key)
	case "wait":
		if st.Frames > 0 {
			r.waitCount = st.Frames - 1 // this frame counts as one
		}
	case "settle":
		r.settling = true
	case "snapshot":
		if h.Busy() {
			// Retry on a later frame once the Map has settled.
			r.cursor--
			r.settling = true
			return nil
		}
		if _, err := h.Snapshot(st.Label); err != nil {
			return err
		}
	}
	return nil
}

func applyView(h *Headless, st Step) error {
	v, ok := h.Map.View().(*willowmap.View)
	if !ok {
		return ErrNoView
	}
	target := willowmap.ViewTarget{}
	if c, ok := v.Center(); ok {
		target.Center = c
	}
	target.Resolution = v.Resolution()

	if st.Center != nil {
		target.Center = willowmap.FromLonLat(orb.Point{st.Center[0], st.Center[1]})
	}
	switch {
	case st.Resolution > 0:
		target.Resolution = st.Resolution
	case st.Zoom != nil:
		target.Resolution = willowmap.ResolutionForZoom(0) / math.Exp2(*st.Zoom)
	}
	if st.Rotation != nil {
		target.Rotation = *st.Rotation
		target.HasRotation = true
	}

	if st.Duration > 0 && v.IsDefined() {
		v.Animate(target, ms(st.Duration), nil, nil)
		return nil
	}
	v.SetCenter(target.Center)
	if target.Resolution > 0 {
		v.SetResolution(target.Resolution)
	}
	if target.HasRotation {
		v.SetRotation(target.Rotation)
	}
	return nil
}

func viewAndFrame(h *Headless) (*willowmap.View, *willowmap.FrameState, error) {
	v, ok := h.Map.View().(*willowmap.View)
	if !ok {
		return nil, nil, ErrNoView
	}
	fs := h.Map.FrameState()
	if fs == nil {
		return nil, nil, fmt.Errorf("no frame rendered yet")
	}
	return v, fs, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
