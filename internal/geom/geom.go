// Package geom holds the axis-aligned rectangle type shared by every tracker
// component, along with the tlwh/tlbr/normalised conversions the core's
// wire boundary depends on.
package geom

import "github.com/pkg/errors"

// ErrInvalidFrame is returned by Frame.Validate for a malformed frame buffer.
var ErrInvalidFrame = errors.New("geom: frame has non-positive dimensions or a mismatched byte length")

// Frame is a read-only, externally-owned grayscale image buffer (§6): packed
// 8-bit grayscale, row-major, of size Width x Height.
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Validate reports whether the frame's dimensions and buffer length are
// consistent (§7 InvalidInput).
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return ErrInvalidFrame
	}
	if len(f.Data) != f.Width*f.Height {
		return ErrInvalidFrame
	}
	return nil
}

// Rectangle is a tlwh (top-left, width, height) axis-aligned box in pixel
// space.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Point is a 2-D point in pixel space.
type Point struct {
	X float64
	Y float64
}

// NewRect builds a Rectangle from its tlwh components.
func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// Center returns the rectangle's center point.
func (r Rectangle) Center() Point {
	return Point{X: r.X + r.Width/2.0, Y: r.Y + r.Height/2.0}
}

// Tlbr returns the (x1, y1, x2, y2) representation of the same rectangle.
func (r Rectangle) Tlbr() (x1, y1, x2, y2 float64) {
	return r.X, r.Y, r.X + r.Width, r.Y + r.Height
}

// FromTlbr builds a Rectangle from (x1, y1, x2, y2).
func FromTlbr(x1, y1, x2, y2 float64) Rectangle {
	return Rectangle{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

// Empty reports whether the rectangle has non-positive width or height.
func (r Rectangle) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Intersects reports whether r and other share any area.
func (r Rectangle) Intersects(other Rectangle) bool {
	ax1, ay1, ax2, ay2 := r.Tlbr()
	bx1, by1, bx2, by2 := other.Tlbr()
	ix1, iy1 := maxF(ax1, bx1), maxF(ay1, by1)
	ix2, iy2 := minF(ax2, bx2), minF(ay2, by2)
	return ix2 > ix1 && iy2 > iy1
}

// Clip restricts r to lie within [0, width] x [0, height].
func Clip(r Rectangle, width, height float64) Rectangle {
	x1, y1, x2, y2 := r.Tlbr()
	x1 = clampF(x1, 0, width)
	y1 = clampF(y1, 0, height)
	x2 = clampF(x2, 0, width)
	y2 = clampF(y2, 0, height)
	return FromTlbr(x1, y1, x2, y2)
}

// IoU computes intersection-over-union for two rectangles as specified:
// max(0, min(x2,x2')-max(x1,x1')) * max(0, min(y2,y2')-max(y1,y1')) / (areaA + areaB - inter).
func IoU(a, b Rectangle) float64 {
	ax1, ay1, ax2, ay2 := a.Tlbr()
	bx1, by1, bx2, by2 := b.Tlbr()

	interW := maxF(0, minF(ax2, bx2)-maxF(ax1, bx1))
	interH := maxF(0, minF(ay2, by2)-maxF(ay1, by1))
	inter := interW * interH
	if inter <= 0 {
		return 0
	}

	areaA := a.Width * a.Height
	areaB := b.Width * b.Height
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ToNormalized converts a pixel-space tlwh rectangle plus frame dimensions
// into normalised (cx, cy, w, h) in [0,1], the wire format of §6.
func ToNormalized(r Rectangle, frameWidth, frameHeight float64) (cx, cy, w, h float64) {
	center := r.Center()
	return center.X / frameWidth, center.Y / frameHeight, r.Width / frameWidth, r.Height / frameHeight
}

// FromNormalized converts a normalised (cx, cy, w, h) tuple into a pixel
// space tlwh rectangle.
func FromNormalized(cx, cy, w, h, frameWidth, frameHeight float64) Rectangle {
	pw := w * frameWidth
	ph := h * frameHeight
	px := cx*frameWidth - pw/2.0
	py := cy*frameHeight - ph/2.0
	return Rectangle{X: px, Y: py, Width: pw, Height: ph}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clampF(v, lo, hi float64) float64 {
	return maxF(lo, minF(hi, v))
}
