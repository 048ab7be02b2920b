// Package track implements the STrack-style track entity (§3, §4.A):
// a constant-velocity Kalman filter over (cx, cy, a, h) wrapped in the
// {new, tracked, lost, removed} lifecycle the detection tracker drives.
package track

import (
	"github.com/LdDl/hybtrack/internal/geom"
	"github.com/LdDl/hybtrack/internal/kalman"
	"github.com/pkg/errors"
)

// State is the track lifecycle tag.
type State int

const (
	// StateNew marks a track that has been constructed but not yet activated.
	StateNew State = iota
	// StateTracked marks a confirmed, currently-matched track.
	StateTracked
	// StateLost marks a confirmed track unmatched on recent frames.
	StateLost
	// StateRemoved is terminal.
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateTracked:
		return "tracked"
	case StateLost:
		return "lost"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ErrInvalidDetection is returned when a detection has non-positive width
// or height.
var ErrInvalidDetection = errors.New("track: detection has non-positive width or height")

// Detection is a single detector observation, already converted to pixel
// tlwh space.
type Detection struct {
	Box   geom.Rectangle
	Class int
	Score float64
}

// Track is a single tracked object owned exclusively by the detection
// tracker (component C). Copies handed to callers must go through Snapshot,
// never a direct struct copy, since Track embeds a *kalman.Filter.
type Track struct {
	ID          int64
	Class       int
	Score       float64
	State       State
	IsActivated bool
	StartFrame  int
	FrameID     int
	TrackletLen int

	kf     *kalman.Filter
	rawBox geom.Rectangle
}

// New constructs an un-activated track from a detection. Call Activate
// before using it for prediction or association.
func New(det Detection) *Track {
	return &Track{
		Class:  det.Class,
		Score:  det.Score,
		State:  StateNew,
		rawBox: det.Box,
	}
}

func toMeasurement(box geom.Rectangle) [4]float64 {
	c := box.Center()
	var a float64
	if box.Height != 0 {
		a = box.Width / box.Height
	}
	return [4]float64{c.X, c.Y, a, box.Height}
}

func fromState(cx, cy, a, h float64) geom.Rectangle {
	w := a * h
	return geom.Rectangle{X: cx - w/2.0, Y: cy - h/2.0, Width: w, Height: h}
}

// Activate assigns id, initialises the Kalman filter from the track's
// original detection box, and sets state=tracked. is_activated becomes true
// immediately on frame 1 or when the triggering detection already cleared
// highThresh; otherwise it is confirmed later by a subsequent Update.
func (t *Track) Activate(id int64, frameID int, highThresh float64) {
	t.ID = id
	t.kf = kalman.New(toMeasurement(t.rawBox))
	t.State = StateTracked
	t.IsActivated = frameID == 1 || t.Score >= highThresh
	t.StartFrame = frameID
	t.FrameID = frameID
	t.TrackletLen = 0
}

// Predict advances the Kalman filter by one time step. Tracks not currently
// in the tracked state have their vertical velocity zeroed first so a lost
// track does not coast off-screen.
func (t *Track) Predict() {
	if t.State != StateTracked {
		t.kf.ZeroVerticalVelocity()
	}
	t.kf.Predict()
}

// MultiPredict runs Predict on every track in the batch, used once per
// frame at the start of association.
func MultiPredict(tracks []*Track) {
	for _, tr := range tracks {
		tr.Predict()
	}
}

// Update corrects the Kalman state against a matched detection. The track
// is marked tracked and activated, its tracklet length is bumped, and score
// and class are refreshed from the detection.
func (t *Track) Update(det Detection, frameID int) error {
	if det.Box.Empty() {
		return ErrInvalidDetection
	}
	if err := t.kf.Update(toMeasurement(det.Box)); err != nil {
		return errors.Wrap(err, "track: update")
	}
	t.State = StateTracked
	t.IsActivated = true
	t.TrackletLen++
	t.Score = det.Score
	t.Class = det.Class
	t.FrameID = frameID
	return nil
}

// ReActivate re-enters a lost track into the tracked pool from a matched
// detection. tracklet length resets to zero. assignNewID lets a caller
// allocate a fresh identity; the hybrid controller and the detection
// tracker always pass assignNewID=false to preserve identity through lost
// intervals.
func (t *Track) ReActivate(det Detection, frameID int, newID int64, assignNewID bool) error {
	if det.Box.Empty() {
		return ErrInvalidDetection
	}
	if err := t.kf.Update(toMeasurement(det.Box)); err != nil {
		return errors.Wrap(err, "track: re_activate")
	}
	if assignNewID {
		t.ID = newID
	}
	t.TrackletLen = 0
	t.State = StateTracked
	t.IsActivated = true
	t.Score = det.Score
	t.Class = det.Class
	t.FrameID = frameID
	return nil
}

// MarkLost transitions the track to the lost state.
func (t *Track) MarkLost() {
	t.State = StateLost
}

// MarkRemoved transitions the track to the terminal removed state.
func (t *Track) MarkRemoved() {
	t.State = StateRemoved
}

// Box returns the track's current tlwh rectangle, derived from the Kalman
// mean once activated and from the seeding detection before that.
func (t *Track) Box() geom.Rectangle {
	if t.kf == nil {
		return t.rawBox
	}
	cx, cy, a, h := t.kf.State()
	return fromState(cx, cy, a, h)
}

// KalmanFilter exposes the underlying filter. The resync path does not use
// it; it goes through Update/ReActivate.
func (t *Track) KalmanFilter() *kalman.Filter {
	return t.kf
}

// Snapshot is an immutable, pointer-free view of a track, safe to hand to
// callers outside the detection tracker's pools.
type Snapshot struct {
	ID          int64
	Class       int
	Score       float64
	Box         geom.Rectangle
	State       State
	IsActivated bool
	StartFrame  int
	FrameID     int
	TrackletLen int
}

// Snapshot captures the track's current observable state by value.
func (t *Track) Snapshot() Snapshot {
	return Snapshot{
		ID:          t.ID,
		Class:       t.Class,
		Score:       t.Score,
		Box:         t.Box(),
		State:       t.State,
		IsActivated: t.IsActivated,
		StartFrame:  t.StartFrame,
		FrameID:     t.FrameID,
		TrackletLen: t.TrackletLen,
	}
}
