// Package coords provides the affine transform and rectangle math used by
// content interpretation and layout analysis. PDF matrices are the usual
// [a b c d e f] row form with the origin at the lower left of the page.
package coords

import (
	"errors"
	"math"
)

// Matrix is an affine transform stored as [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m * o, applying m first.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct {
	X, Y float64
}

func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

var ErrSingularMatrix = errors.New("matrix is singular")

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingularMatrix
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate builds a rotation by angle radians, counterclockwise.
func Rotate(angle float64) Matrix {
	c := math.Cos(angle)
	s := math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned bounding box with X0 <= X1 and Y0 <= Y1.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// NewRect normalizes the corner order.
func NewRect(x0, y0, x1, y1 float64) Rect {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

func (r Rect) IsEmpty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Union returns the smallest rect containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Intersects reports whether r and o overlap, touching edges excluded.
func (r Rect) Intersects(o Rect) bool {
	return r.X0 < o.X1 && o.X0 < r.X1 && r.Y0 < o.Y1 && o.Y0 < r.Y1
}

// Contains reports whether p falls inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X0 && p.X <= r.X1 && p.Y >= r.Y0 && p.Y <= r.Y1
}

// OverlapX returns the length of the horizontal overlap between r and o,
// or zero when the projections are disjoint.
func (r Rect) OverlapX(o Rect) float64 {
	v := math.Min(r.X1, o.X1) - math.Max(r.X0, o.X0)
	if v < 0 {
		return 0
	}
	return v
}

// OverlapY returns the length of the vertical overlap between r and o,
// or zero when the projections are disjoint.
func (r Rect) OverlapY(o Rect) float64 {
	v := math.Min(r.Y1, o.Y1) - math.Max(r.Y0, o.Y0)
	if v < 0 {
		return 0
	}
	return v
}

// TransformRect maps the four corners of r through m and returns the
// axis-aligned bounds of the result. Correct for any affine transform,
// including rotation.
func (m Matrix) TransformRect(r Rect) Rect {
	corners := [4]Point{
		{r.X0, r.Y0}, {r.X1, r.Y0}, {r.X0, r.Y1}, {r.X1, r.Y1},
	}
	out := Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for _, c := range corners {
		p := m.Transform(c)
		out.X0 = math.Min(out.X0, p.X)
		out.Y0 = math.Min(out.Y0, p.Y)
		out.X1 = math.Max(out.X1, p.X)
		out.Y1 = math.Max(out.Y1, p.Y)
	}
	return out
}
