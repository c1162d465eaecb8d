package willowmap

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// View property keys.
const (
	PropCenter     = "center"
	PropResolution = "resolution"
	PropRotation   = "rotation"
)

// ViewState is the view's center, resolution and rotation, plus the target
// of an in-flight animated transition.
type ViewState struct {
	Center     orb.Point
	Resolution float64
	Rotation   float64
	// Next is the transition target, nil when the view is not animating.
	Next *ViewTarget
}

// ViewTarget is the destination of an animated view transition.
type ViewTarget struct {
	Center      orb.Point
	Resolution  float64
	Rotation    float64
	HasRotation bool
}

// MapView is what a Map needs from its view.
type MapView interface {
	// IsDefined reports whether the view has a finite center and a positive
	// resolution.
	IsDefined() bool
	State() ViewState
	// ResolveConstraints snaps the view into its constraints, animating over
	// duration when it is positive.
	ResolveConstraints(duration time.Duration)
	Hints() ViewHints
	Animating() bool
	SetViewportSize(Size)
	OnPropertyChange(fn func(PropertyChange)) ListenerKey
	OnChange(fn func()) ListenerKey
}

// Animator is implemented by views that advance transitions from the frame
// clock. Step returns true while a transition is still running.
type Animator interface {
	Step(now time.Time) bool
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithCenter sets the initial center.
func WithCenter(c orb.Point) ViewOption {
	return func(v *View) { v.setSilent(PropCenter, c) }
}

// WithResolution sets the initial resolution in view units per pixel.
func WithResolution(r float64) ViewOption {
	return func(v *View) { v.setSilent(PropResolution, r) }
}

// WithRotation sets the initial rotation in radians.
func WithRotation(r float64) ViewOption {
	return func(v *View) { v.setSilent(PropRotation, r) }
}

// WithResolutionRange constrains the resolution to [min, max].
func WithResolutionRange(min, max float64) ViewOption {
	return func(v *View) {
		v.minResolution = min
		v.maxResolution = max
	}
}

// WithExtent constrains the center so the visible area stays inside b.
func WithExtent(b orb.Bound) ViewOption {
	return func(v *View) {
		v.extent = &b
	}
}

// viewAnim is an in-flight transition driven by a single 0..1 tween.
type viewAnim struct {
	from     ViewState
	to       ViewTarget
	tween    *gween.Tween
	last     time.Time
	callback func(completed bool)
}

// View is the default MapView: an observable center/resolution/rotation
// with resolution and extent constraints and tweened transitions.
type View struct {
	Object

	minResolution float64
	maxResolution float64
	extent        *orb.Bound
	viewport      Size

	hints [2]int
	anim  *viewAnim
}

// NewView creates a view. Without WithCenter and WithResolution the view is
// undefined and no frame is built for it.
func NewView(opts ...ViewOption) *View {
	v := &View{maxResolution: math.Inf(1)}
	v.setSilent(PropRotation, 0.0)
	for _, o := range opts {
		o(v)
	}
	return v
}

// Center returns the view center and whether one is set.
func (v *View) Center() (orb.Point, bool) {
	c, ok := v.Get(PropCenter).(orb.Point)
	return c, ok
}

// SetCenter sets the view center.
func (v *View) SetCenter(c orb.Point) { v.Set(PropCenter, c) }

// Resolution returns the current resolution, or 0 when unset.
func (v *View) Resolution() float64 { return getFloat(&v.Object, PropResolution, 0) }

// SetResolution sets the resolution.
func (v *View) SetResolution(r float64) { v.Set(PropResolution, r) }

// Rotation returns the rotation in radians.
func (v *View) Rotation() float64 { return getFloat(&v.Object, PropRotation, 0) }

// SetRotation sets the rotation in radians.
func (v *View) SetRotation(r float64) { v.Set(PropRotation, r) }

// ResolutionRange returns the resolution constraint.
func (v *View) ResolutionRange() (min, max float64) {
	return v.minResolution, v.maxResolution
}

// IsDefined implements MapView.
func (v *View) IsDefined() bool {
	c, ok := v.Center()
	if !ok || math.IsNaN(c[0]) || math.IsNaN(c[1]) || math.IsInf(c[0], 0) || math.IsInf(c[1], 0) {
		return false
	}
	r := v.Resolution()
	return r > 0 && !math.IsInf(r, 0)
}

// State implements MapView.
func (v *View) State() ViewState {
	c, _ := v.Center()
	s := ViewState{Center: c, Resolution: v.Resolution(), Rotation: v.Rotation()}
	if v.anim != nil {
		to := v.anim.to
		s.Next = &to
	}
	return s
}

// SetViewportSize implements MapView.
func (v *View) SetViewportSize(s Size) {
	v.viewport = s
}

// Hints implements MapView.
func (v *View) Hints() ViewHints {
	return ViewHints{
		Animating:   v.hints[HintAnimating] > 0,
		Interacting: v.hints[HintInteracting] > 0,
	}
}

// Animating implements MapView.
func (v *View) Animating() bool {
	return v.hints[HintAnimating] > 0
}

// Interacting reports whether a user gesture is in progress.
func (v *View) Interacting() bool {
	return v.hints[HintInteracting] > 0
}

// AdjustHint adds delta to the counter for hint and returns the new value.
func (v *View) AdjustHint(hint ViewHint, delta int) int {
	v.hints[hint] += delta
	if v.hints[hint] < 0 {
		v.hints[hint] = 0
	}
	v.Changed()
	return v.hints[hint]
}

// BeginInteraction marks the start of a user gesture.
func (v *View) BeginInteraction() {
	v.AdjustHint(HintInteracting, 1)
}

// EndInteraction marks the end of a user gesture and snaps the view back
// into its constraints.
func (v *View) EndInteraction() {
	v.AdjustHint(HintInteracting, -1)
	v.ResolveConstraints(0)
}

// Pan moves the center by (dx, dy) view units.
func (v *View) Pan(dx, dy float64) {
	c, ok := v.Center()
	if !ok {
		return
	}
	v.SetCenter(orb.Point{c[0] + dx, c[1] + dy})
}

// AdjustResolution multiplies the resolution by ratio keeping anchor fixed
// on screen. The result is clamped to the resolution range.
func (v *View) AdjustResolution(ratio float64, anchor orb.Point) {
	if !v.IsDefined() || ratio <= 0 {
		return
	}
	c, _ := v.Center()
	res := v.Resolution()
	next := v.clampResolution(res * ratio)
	k := next / res
	v.SetResolution(next)
	v.SetCenter(orb.Point{anchor[0] + (c[0]-anchor[0])*k, anchor[1] + (c[1]-anchor[1])*k})
}

// ResolveConstraints implements MapView.
func (v *View) ResolveConstraints(duration time.Duration) {
	if !v.IsDefined() {
		return
	}
	c, _ := v.Center()
	res := v.clampResolution(v.Resolution())
	center := v.clampCenter(c, res)
	if res == v.Resolution() && center == c {
		return
	}
	if duration > 0 {
		v.Animate(ViewTarget{Center: center, Resolution: res}, duration, ease.OutQuad, nil)
		return
	}
	v.SetResolution(res)
	v.SetCenter(center)
}

func (v *View) clampResolution(r float64) float64 {
	return math.Max(v.minResolution, math.Min(r, v.maxResolution))
}

// clampCenter keeps the visible area inside the extent constraint. If the
// extent is smaller than the visible area the center snaps to its middle.
func (v *View) clampCenter(c orb.Point, res float64) orb.Point {
	if v.extent == nil {
		return c
	}
	b := *v.extent
	halfW := v.viewport.Width * res / 2
	halfH := v.viewport.Height * res / 2

	minX, maxX := b.Min[0]+halfW, b.Max[0]-halfW
	minY, maxY := b.Min[1]+halfH, b.Max[1]-halfH

	if minX > maxX {
		c[0] = (b.Min[0] + b.Max[0]) / 2
	} else {
		c[0] = math.Max(minX, math.Min(c[0], maxX))
	}
	if minY > maxY {
		c[1] = (b.Min[1] + b.Max[1]) / 2
	} else {
		c[1] = math.Max(minY, math.Min(c[1], maxY))
	}
	return c
}

// Animate starts a transition to target over duration. Any running
// transition is cancelled and its callback receives false. callback may be
// nil.
func (v *View) Animate(target ViewTarget, duration time.Duration, fn ease.TweenFunc, callback func(completed bool)) {
	if !v.IsDefined() {
		return
	}
	v.CancelAnimations()
	if fn == nil {
		fn = ease.InOutQuad
	}
	if !target.HasRotation {
		target.Rotation = v.Rotation()
	}
	v.anim = &viewAnim{
		from:     v.State(),
		to:       target,
		tween:    gween.New(0, 1, float32(duration.Seconds()), fn),
		callback: callback,
	}
	v.AdjustHint(HintAnimating, 1)
}

// CancelAnimations stops the running transition, leaving the view where it
// is.
func (v *View) CancelAnimations() {
	if v.anim == nil {
		return
	}
	cb := v.anim.callback
	v.anim = nil
	v.AdjustHint(HintAnimating, -1)
	if cb != nil {
		cb(false)
	}
}

// Step implements Animator. The first Step of a transition anchors its
// clock; later steps advance it by the elapsed wall time.
func (v *View) Step(now time.Time) bool {
	a := v.anim
	if a == nil {
		return false
	}
	var dt float32
	if !a.last.IsZero() {
		dt = float32(now.Sub(a.last).Seconds())
	}
	a.last = now
	p, done := a.tween.Update(dt)
	t := float64(p)
	if done {
		t = 1
	}

	v.SetResolution(lerp(a.from.Resolution, a.to.Resolution, t))
	v.SetCenter(orb.Point{
		lerp(a.from.Center[0], a.to.Center[0], t),
		lerp(a.from.Center[1], a.to.Center[1], t),
	})
	v.SetRotation(lerp(a.from.Rotation, a.to.Rotation, t))

	if !done {
		return true
	}
	v.anim = nil
	v.AdjustHint(HintAnimating, -1)
	if a.callback != nil {
		a.callback(true)
	}
	return false
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
