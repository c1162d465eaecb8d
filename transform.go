package willowmap

import (
	"math"

	"github.com/paulmach/orb"
)

// Transform is a 2D affine matrix [a, b, c, d, tx, ty]:
//
//	| a  c  tx |
//	| b  d  ty |
//	| 0  0   1 |
type Transform [6]float64

// IdentityTransform is the identity affine matrix.
var IdentityTransform = Transform{1, 0, 0, 1, 0, 0}

// Apply transforms the point (x, y).
func (m Transform) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// ApplyPoint transforms p.
func (m Transform) ApplyPoint(p orb.Point) orb.Point {
	x, y := m.Apply(p[0], p[1])
	return orb.Point{x, y}
}

// Multiply returns m * c (c is applied first).
func (m Transform) Multiply(c Transform) Transform {
	return Transform{
		m[0]*c[0] + m[2]*c[1],
		m[1]*c[0] + m[3]*c[1],
		m[0]*c[2] + m[2]*c[3],
		m[1]*c[2] + m[3]*c[3],
		m[0]*c[4] + m[2]*c[5] + m[4],
		m[1]*c[4] + m[3]*c[5] + m[5],
	}
}

// Invert returns the inverse of m.
// Returns the identity matrix if m is singular (determinant ≈ 0).
func (m Transform) Invert() Transform {
	det := m[0]*m[3] - m[2]*m[1]
	if det > -1e-12 && det < 1e-12 {
		return IdentityTransform
	}
	invDet := 1.0 / det
	a := m[3] * invDet
	b := -m[1] * invDet
	c := -m[2] * invDet
	d := m[0] * invDet
	return Transform{
		a, b, c, d,
		-(a*m[4] + c*m[5]),
		-(b*m[4] + d*m[5]),
	}
}

// composeTransform builds
//
//	Translate(dx1, dy1) -> Scale(sx, sy) -> Rotate(angle) -> Translate(dx2, dy2)
//
// read right to left: a point is first translated by (dx2, dy2).
func composeTransform(dx1, dy1, sx, sy, angle, dx2, dy2 float64) Transform {
	sin, cos := math.Sincos(angle)
	return Transform{
		sx * cos,
		sy * sin,
		-sx * sin,
		sy * cos,
		dx2*sx*cos - dy2*sx*sin + dx1,
		dx2*sy*sin + dy2*sy*cos + dy1,
	}
}

// viewTransforms returns the coordinate→pixel transform for a view of the
// given size and its inverse. Pixel y grows downward.
func viewTransforms(v ViewState, size Size) (toPixel, toCoord Transform) {
	toPixel = composeTransform(
		size.Width/2, size.Height/2,
		1/v.Resolution, -1/v.Resolution,
		-v.Rotation,
		-v.Center[0], -v.Center[1],
	)
	return toPixel, toPixel.Invert()
}

// extentForView returns the axis-aligned bounds of a size-sized viewport
// centred on center, at resolution, rotated by rotation.
func extentForView(center orb.Point, resolution, rotation float64, size Size) orb.Bound {
	dx := resolution * size.Width / 2
	dy := resolution * size.Height / 2
	sin, cos := math.Sincos(rotation)
	xCos, xSin := dx*cos, dx*sin
	yCos, ySin := dy*cos, dy*sin
	x, y := center[0], center[1]

	xs := [4]float64{x - xCos + ySin, x - xCos - ySin, x + xCos - ySin, x + xCos + ySin}
	ys := [4]float64{y - xSin - yCos, y - xSin + yCos, y + xSin + yCos, y + xSin - yCos}

	b := orb.Bound{Min: orb.Point{xs[0], ys[0]}, Max: orb.Point{xs[0], ys[0]}}
	for i := 1; i < 4; i++ {
		b.Min[0] = math.Min(b.Min[0], xs[i])
		b.Min[1] = math.Min(b.Min[1], ys[i])
		b.Max[0] = math.Max(b.Max[0], xs[i])
		b.Max[1] = math.Max(b.Max[1], ys[i])
	}
	return b
}
