package geom

import (
	"math"
	"testing"
)

const eps = 1e-5

func TestIoUIdentical(t *testing.T) {
	r := NewRect(10, 10, 20, 20)
	if got := IoU(r, r); math.Abs(got-1.0) > eps {
		t.Errorf("expected IoU 1.0 for identical rectangles, got %v", got)
	}
}

func TestIoUDisjoint(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(100, 100, 10, 10)
	if got := IoU(a, b); got != 0 {
		t.Errorf("expected IoU 0 for disjoint rectangles, got %v", got)
	}
}

func TestIoUPartialOverlap(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 5, 10, 10)
	// intersection area = 5x5 = 25, union = 100+100-25 = 175
	want := 25.0 / 175.0
	if got := IoU(a, b); math.Abs(got-want) > eps {
		t.Errorf("expected IoU %v, got %v", want, got)
	}
}

func TestTlwhTlbrRoundTrip(t *testing.T) {
	r := NewRect(12, 34, 56, 78)
	x1, y1, x2, y2 := r.Tlbr()
	back := FromTlbr(x1, y1, x2, y2)
	if back != r {
		t.Errorf("expected round-trip to preserve rectangle, got %+v want %+v", back, r)
	}
}

func TestNormalizedRoundTrip(t *testing.T) {
	r := NewRect(100, 100, 50, 50)
	cx, cy, w, h := ToNormalized(r, 640, 480)
	back := FromNormalized(cx, cy, w, h, 640, 480)
	if math.Abs(back.X-r.X) > eps || math.Abs(back.Y-r.Y) > eps ||
		math.Abs(back.Width-r.Width) > eps || math.Abs(back.Height-r.Height) > eps {
		t.Errorf("expected round-trip within tolerance, got %+v want %+v", back, r)
	}
}

func TestClipToFrame(t *testing.T) {
	r := NewRect(-10, -10, 50, 50)
	clipped := Clip(r, 100, 100)
	if clipped.X != 0 || clipped.Y != 0 {
		t.Errorf("expected clip to pull origin to (0,0), got %+v", clipped)
	}
}

func TestIntersects(t *testing.T) {
	a := NewRect(0, 0, 10, 10)
	b := NewRect(5, 5, 10, 10)
	if !a.Intersects(b) {
		t.Errorf("expected rectangles to intersect")
	}
	c := NewRect(100, 100, 10, 10)
	if a.Intersects(c) {
		t.Errorf("expected rectangles not to intersect")
	}
}
