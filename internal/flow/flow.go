// Package flow implements the optical-flow tracker (§4.D): per-track sparse
// feature points propagated between consecutive non-keyframe frames with
// pyramidal Lucas-Kanade flow, then reduced to a robust median-scale and
// mean-translation box update.
package flow

import (
	"image"
	"log"
	"math"
	"sort"

	"github.com/LdDl/hybtrack/internal/geom"
	"github.com/LdDl/hybtrack/internal/track"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Scale is the downscale factor applied to every frame before feature
// detection and flow; all internal point and box coordinates live in this
// scaled frame.
const Scale = 0.5

const (
	maxCorners   = 20
	qualityLevel = 0.01
	minDistance  = 10.0

	minPointsToTrack     = 4
	minPointsBeforeTopUp = 10

	scaleClampMin = 0.97
	scaleClampMax = 1.03
)

// FeaturePointSet is the per-track state owned by the optical-flow tracker,
// keyed by track id (§3).
type FeaturePointSet struct {
	TrackID       int64
	Class         int
	Score         float64
	Box           geom.Rectangle // scaled-frame coordinates
	Points        []geom.Point   // absolute scaled-frame coordinates
	Valid         bool
	FramesTracked int
}

// Propagated is a single track's optical-flow-propagated state, rescaled
// back to pixel space, as emitted by UpdateTrackers.
type Propagated struct {
	ID    int64
	Class int
	Score float64
	Box   geom.Rectangle
}

// Tracker is the optical-flow tracker, component D.
type Tracker struct {
	prevGray gocv.Mat
	sets     map[int64]*FeaturePointSet
	logger   *log.Logger
}

// New builds an optical-flow tracker with no cached previous frame.
func New() *Tracker {
	return &Tracker{
		prevGray: gocv.NewMat(),
		sets:     make(map[int64]*FeaturePointSet),
	}
}

// SetLogger attaches an optional logger for swallowed per-track failures
// (§7 TransientPerTrack).
func (tr *Tracker) SetLogger(l *log.Logger) {
	tr.logger = l
}

func (tr *Tracker) logf(format string, args ...any) {
	if tr.logger != nil {
		tr.logger.Printf(format, args...)
	}
}

// Close releases the cached grayscale frame's native memory. Safe to call
// more than once.
func (tr *Tracker) Close() {
	tr.prevGray.Close()
}

// InitializeTrackers wholesale-replaces the feature point state from a
// keyframe's authoritative tracks (§4.D initializeTrackers).
func (tr *Tracker) InitializeTrackers(frame geom.Frame, tracks []track.Snapshot) error {
	scaled, err := scaledMatFromFrame(frame)
	if err != nil {
		return err
	}

	newSets := make(map[int64]*FeaturePointSet, len(tracks))
	for _, tk := range tracks {
		box := geom.Clip(scaleRect(tk.Box), float64(scaled.Cols()), float64(scaled.Rows()))
		points := detectCorners(scaled, box)
		if len(points) < minPointsToTrack {
			continue
		}
		newSets[tk.ID] = &FeaturePointSet{
			TrackID: tk.ID,
			Class:   tk.Class,
			Score:   tk.Score,
			Box:     box,
			Points:  points,
			Valid:   true,
		}
	}

	tr.prevGray.Close()
	tr.prevGray = scaled
	tr.sets = newSets
	return nil
}

// UpdateTrackers propagates every valid feature point set by one frame of
// pyramidal Lucas-Kanade flow and returns the still-valid tracks, unscaled
// back to pixel space (§4.D updateTrackers). A nil, nil result means "no-op":
// no previous frame was cached yet, so this frame is only cached. A frame
// that fails validation is reported through the error instead.
func (tr *Tracker) UpdateTrackers(frame geom.Frame) ([]Propagated, error) {
	currGray, err := scaledMatFromFrame(frame)
	if err != nil {
		return nil, err
	}

	if tr.prevGray.Empty() {
		tr.prevGray = currGray
		return nil, nil
	}

	out := make([]Propagated, 0, len(tr.sets))
	for id, set := range tr.sets {
		if !set.Valid {
			continue
		}
		if err := tr.propagate(set, currGray); err != nil {
			tr.logf("flow: track %d invalidated: %v", id, err)
			set.Valid = false
			continue
		}
		if set.Valid {
			out = append(out, Propagated{
				ID:    set.TrackID,
				Class: set.Class,
				Score: set.Score,
				Box:   unscaleRect(set.Box),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	tr.prevGray.Close()
	tr.prevGray = currGray
	return out, nil
}

// propagate runs LK flow for a single feature point set and updates its box
// in place. A return error means the set should be invalidated; it is never
// fatal to the batch (§7 TransientPerTrack).
func (tr *Tracker) propagate(set *FeaturePointSet, currGray gocv.Mat) error {
	prevPts := pointsToMat(set.Points)
	defer prevPts.Close()

	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	lkErr := gocv.NewMat()
	defer lkErr.Close()

	gocv.CalcOpticalFlowPyrLK(tr.prevGray, currGray, prevPts, nextPts, &status, &lkErr)

	var oldGood, newGood []geom.Point
	for i := range set.Points {
		if status.GetUCharAt(i, 0) == 0 {
			continue
		}
		oldGood = append(oldGood, set.Points[i])
		newGood = append(newGood, geom.Point{X: float64(nextPts.GetFloatAt(i, 0)), Y: float64(nextPts.GetFloatAt(i, 1))})
	}

	if len(newGood) < minPointsToTrack {
		set.Valid = false
		return nil
	}

	dx, dy, scale := estimateTransform(oldGood, newGood)
	newBox := applyTransform(set.Box, dx, dy, scale)
	clipped := geom.Clip(newBox, float64(currGray.Cols()), float64(currGray.Rows()))
	if clipped.Empty() || !clipped.Intersects(geom.NewRect(0, 0, float64(currGray.Cols()), float64(currGray.Rows()))) {
		set.Valid = false
		return nil
	}

	set.Box = newBox
	set.Points = newGood
	set.FramesTracked++

	if len(set.Points) < minPointsBeforeTopUp {
		set.Points = append(set.Points, detectCorners(currGray, geom.Clip(newBox, float64(currGray.Cols()), float64(currGray.Rows())))...)
	}
	return nil
}

// estimateTransform computes the mean translation and median scale between
// two matched point sets, per §4.D step 3. Pure math, independent of gocv,
// so it is directly unit-testable.
func estimateTransform(oldPts, newPts []geom.Point) (dx, dy, scale float64) {
	n := len(oldPts)
	if n == 0 {
		return 0, 0, 1
	}

	var sumDX, sumDY float64
	var oldCX, oldCY, newCX, newCY float64
	for i := range oldPts {
		sumDX += newPts[i].X - oldPts[i].X
		sumDY += newPts[i].Y - oldPts[i].Y
		oldCX += oldPts[i].X
		oldCY += oldPts[i].Y
		newCX += newPts[i].X
		newCY += newPts[i].Y
	}
	dx = sumDX / float64(n)
	dy = sumDY / float64(n)
	oldCX /= float64(n)
	oldCY /= float64(n)
	newCX /= float64(n)
	newCY /= float64(n)

	ratios := make([]float64, 0, n)
	for i := range oldPts {
		dOld := dist(oldPts[i].X, oldPts[i].Y, oldCX, oldCY)
		if dOld <= 1e-3 {
			continue
		}
		dNew := dist(newPts[i].X, newPts[i].Y, newCX, newCY)
		ratios = append(ratios, dNew/dOld)
	}
	scale = median(ratios)
	if scale == 0 {
		scale = 1
	}
	if scale < scaleClampMin {
		scale = scaleClampMin
	}
	if scale > scaleClampMax {
		scale = scaleClampMax
	}
	return dx, dy, scale
}

// applyTransform scales box about its own centre by scale, then translates
// by (dx, dy).
func applyTransform(box geom.Rectangle, dx, dy, scale float64) geom.Rectangle {
	center := box.Center()
	w := box.Width * scale
	h := box.Height * scale
	return geom.Rectangle{
		X:      center.X - w/2.0 + dx,
		Y:      center.Y - h/2.0 + dy,
		Width:  w,
		Height: h,
	}
}

func dist(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return math.Sqrt(dx*dx + dy*dy)
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 1
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2.0
}

func scaleRect(r geom.Rectangle) geom.Rectangle {
	return geom.Rectangle{X: r.X * Scale, Y: r.Y * Scale, Width: r.Width * Scale, Height: r.Height * Scale}
}

func unscaleRect(r geom.Rectangle) geom.Rectangle {
	return geom.Rectangle{X: r.X / Scale, Y: r.Y / Scale, Width: r.Width / Scale, Height: r.Height / Scale}
}

// scaledMatFromFrame decodes a packed grayscale buffer and resizes it by
// Scale.
func scaledMatFromFrame(frame geom.Frame) (gocv.Mat, error) {
	if err := frame.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	raw, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC1, frame.Data)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "flow: decode frame")
	}
	defer raw.Close()

	scaled := gocv.NewMat()
	newSize := image.Pt(int(float64(frame.Width)*Scale), int(float64(frame.Height)*Scale))
	gocv.Resize(raw, &scaled, newSize, 0, 0, gocv.InterpolationLinear)
	return scaled, nil
}

// detectCorners runs Shi-Tomasi good-features-to-track inside box (clipped
// to gray's bounds already assumed by the caller) and returns absolute
// scaled-frame coordinates.
func detectCorners(gray gocv.Mat, box geom.Rectangle) []geom.Point {
	if box.Empty() {
		return nil
	}
	rect := image.Rect(int(box.X), int(box.Y), int(box.X+box.Width), int(box.Y+box.Height))
	roi := gray.Region(rect)
	defer roi.Close()

	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(roi, &corners, maxCorners, qualityLevel, minDistance)

	points := make([]geom.Point, 0, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		x := float64(corners.GetFloatAt(i, 0)) + box.X
		y := float64(corners.GetFloatAt(i, 1)) + box.Y
		points = append(points, geom.Point{X: x, Y: y})
	}
	return points
}

func pointsToMat(points []geom.Point) gocv.Mat {
	m := gocv.NewMatWithSize(len(points), 2, gocv.MatTypeCV32F)
	for i, p := range points {
		m.SetFloatAt(i, 0, float32(p.X))
		m.SetFloatAt(i, 1, float32(p.Y))
	}
	return m
}
