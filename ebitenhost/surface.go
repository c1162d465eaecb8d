package ebitenhost

import "github.com/phanxgames/willowmap"

// Rect is a screen-space rectangle with its origin at the top-left.
type Rect struct {
	X, Y, Width, Height float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// Points on the edge are considered inside.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width &&
		y >= r.Y && y <= r.Y+r.Height
}

// Surface is the game screen as a willowmap.Surface. Its size follows
// ebiten's Layout. Event targets are the willowmap.Vec2 pixels the input
// poller stamps on each event.
type Surface struct {
	size   willowmap.Size
	resize willowmap.Emitter[willowmap.Size]
	stop   []Rect
}

// NewSurface creates a surface of the given initial size.
func NewSurface(width, height int) *Surface {
	return &Surface{size: willowmap.Size{Width: float64(width), Height: float64(height)}}
}

// Size implements willowmap.Surface.
func (s *Surface) Size() willowmap.Size { return s.size }

// OnResize implements willowmap.Surface.
func (s *Surface) OnResize(fn func(willowmap.Size)) willowmap.ListenerKey {
	return s.resize.On(fn)
}

// Resize updates the size, notifying listeners when it changed.
func (s *Surface) Resize(width, height int) {
	next := willowmap.Size{Width: float64(width), Height: float64(height)}
	if next == s.size {
		return
	}
	s.size = next
	s.resize.Emit(next)
}

// AddStopRegion marks r as covered by a widget: presses, wheel and key
// events there are not offered to the map.
func (s *Surface) AddStopRegion(r Rect) {
	s.stop = append(s.stop, r)
}

// Contains implements willowmap.Surface.
func (s *Surface) Contains(target any) bool {
	p, ok := target.(willowmap.Vec2)
	if !ok {
		return true
	}
	return p.X >= 0 && p.Y >= 0 && p.X < s.size.Width && p.Y < s.size.Height
}

// StopEventContains implements willowmap.Surface.
func (s *Surface) StopEventContains(target any) bool {
	p, ok := target.(willowmap.Vec2)
	if !ok {
		return false
	}
	for _, r := range s.stop {
		if r.Contains(p.X, p.Y) {
			return true
		}
	}
	return false
}
