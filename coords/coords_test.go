package coords

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMultiplyOrder(t *testing.T) {
	// Scale then translate: the translation must not be scaled.
	m := Scale(2, 2).Multiply(Translate(10, 0))
	p := m.Transform(Point{X: 1, Y: 1})
	if !approx(p.X, 12) || !approx(p.Y, 2) {
		t.Fatalf("got (%g, %g), want (12, 2)", p.X, p.Y)
	}
}

func TestInverseRoundTrip(t *testing.T) {
	m := Translate(3, 4).Multiply(Scale(2, 5))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	p := inv.Transform(m.Transform(Point{X: 7, Y: -2}))
	if !approx(p.X, 7) || !approx(p.Y, -2) {
		t.Fatalf("round trip gave (%g, %g)", p.X, p.Y)
	}
}

func TestInverseSingular(t *testing.T) {
	if _, err := Scale(0, 1).Inverse(); err == nil {
		t.Fatal("expected error for singular matrix")
	}
}

func TestRotateQuarterTurn(t *testing.T) {
	p := Rotate(math.Pi / 2).Transform(Point{X: 1, Y: 0})
	if !approx(p.X, 0) || !approx(p.Y, 1) {
		t.Fatalf("got (%g, %g), want (0, 1)", p.X, p.Y)
	}
}

func TestNewRectNormalizes(t *testing.T) {
	r := NewRect(5, 9, 1, 2)
	if r.X0 != 1 || r.Y0 != 2 || r.X1 != 5 || r.Y1 != 9 {
		t.Fatalf("got %+v", r)
	}
}

func TestRectOverlap(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 8, 20, 30)
	if got := a.OverlapX(b); !approx(got, 5) {
		t.Fatalf("OverlapX = %g, want 5", got)
	}
	if got := a.OverlapY(b); !approx(got, 2) {
		t.Fatalf("OverlapY = %g, want 2", got)
	}
	c := NewRect(50, 50, 60, 60)
	if a.OverlapX(c) != 0 || a.Intersects(c) {
		t.Fatal("disjoint rects reported overlapping")
	}
}

func TestTransformRectWithRotation(t *testing.T) {
	r := NewRect(0, 0, 2, 1)
	got := Rotate(math.Pi / 2).TransformRect(r)
	if !approx(got.X0, -1) || !approx(got.Y0, 0) || !approx(got.X1, 0) || !approx(got.Y1, 2) {
		t.Fatalf("got %+v", got)
	}
}
