// Package detector implements the byte-style two-stage cascade detection
// tracker (§4.C): it associates per-keyframe detections with existing
// tracks via IoU cost over a constant-velocity Kalman filter, maintaining
// tracked/lost/removed pools across the three-state track lifecycle.
package detector

import (
	"log"

	"github.com/LdDl/hybtrack/internal/assoc"
	"github.com/LdDl/hybtrack/internal/geom"
	"github.com/LdDl/hybtrack/internal/idgen"
	"github.com/LdDl/hybtrack/internal/track"
)

// Compile-time constants of the core, per §4.C.
const (
	TrackThresh       = 0.5
	HighThresh        = 0.7
	MatchThresh       = 0.8
	stage2Thresh      = 0.5
	unconfirmedThresh = 0.7
	dedupIoUThreshold = 0.85
)

// Tracker is the byte-style cascade tracker, component C.
type Tracker struct {
	frameRate   int
	trackBuffer int
	maxTimeLost int
	frameID     int

	ids *idgen.Counter

	trackedTracks []*track.Track
	lostTracks    []*track.Track
	removedTracks []*track.Track

	logger *log.Logger
}

// New builds a detection tracker. maxTimeLost is derived as
// frame_rate/30 * track_buffer, per §3.
func New(frameRate, trackBuffer int) *Tracker {
	return &Tracker{
		frameRate:   frameRate,
		trackBuffer: trackBuffer,
		maxTimeLost: int(float64(frameRate) / 30.0 * float64(trackBuffer)),
		ids:         &idgen.Counter{},
	}
}

// SetLogger attaches an optional logger for swallowed per-track errors. A
// nil logger (the default) discards them, matching §7's TransientPerTrack
// policy.
func (tr *Tracker) SetLogger(l *log.Logger) {
	tr.logger = l
}

func (tr *Tracker) logf(format string, args ...any) {
	if tr.logger != nil {
		tr.logger.Printf(format, args...)
	}
}

// FrameID returns the tracker's current internal frame counter.
func (tr *Tracker) FrameID() int {
	return tr.frameID
}

// AdvanceFrameID increments the internal frame counter without running a
// full update cycle. The hybrid controller uses this on intermediate
// frames under the "advance frame_id every frame" policy documented in
// DESIGN.md for §9's open question.
func (tr *Tracker) AdvanceFrameID() {
	tr.frameID++
}

// Reset clears all pools, the frame counter, and the id generator.
func (tr *Tracker) Reset() {
	tr.frameID = 0
	tr.ids = &idgen.Counter{}
	tr.trackedTracks = nil
	tr.lostTracks = nil
	tr.removedTracks = nil
}

// Update runs one full keyframe association cycle against the supplied
// detections and returns a snapshot of every activated tracked track,
// per the ten ordered steps of §4.C.
func (tr *Tracker) Update(dets []track.Detection) []track.Snapshot {
	tr.frameID++

	valid := make([]track.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Box.Empty() {
			continue
		}
		valid = append(valid, d)
	}

	var detsHigh, detsLow []track.Detection
	for _, d := range valid {
		if d.Score >= TrackThresh {
			detsHigh = append(detsHigh, d)
		} else {
			detsLow = append(detsLow, d)
		}
	}

	var unconfirmed, confirmed []*track.Track
	for _, t := range tr.trackedTracks {
		if !t.IsActivated {
			unconfirmed = append(unconfirmed, t)
		} else {
			confirmed = append(confirmed, t)
		}
	}

	strackPool := jointTracks(confirmed, tr.lostTracks)
	track.MultiPredict(strackPool)

	var activated, refound, removedNow, lostNow []*track.Track

	// Stage 1: confirmed+lost vs high-score detections.
	matches, uTrack, uDet := assoc.Associate(boxesOfTracks(strackPool), boxesOfDets(detsHigh), MatchThresh)
	for _, m := range matches {
		tObj := strackPool[m.TrackIndex]
		d := detsHigh[m.DetIndex]
		if tObj.State == track.StateTracked {
			if err := tObj.Update(d, tr.frameID); err != nil {
				tr.logf("detector: stage1 update track %d: %v", tObj.ID, err)
				continue
			}
			activated = append(activated, tObj)
		} else {
			if err := tObj.ReActivate(d, tr.frameID, 0, false); err != nil {
				tr.logf("detector: stage1 re_activate track %d: %v", tObj.ID, err)
				continue
			}
			refound = append(refound, tObj)
		}
	}

	leftoverHigh := make([]track.Detection, 0, len(uDet))
	for _, idx := range uDet {
		leftoverHigh = append(leftoverHigh, detsHigh[idx])
	}

	var rTracked []*track.Track
	for _, idx := range uTrack {
		if strackPool[idx].State == track.StateTracked {
			rTracked = append(rTracked, strackPool[idx])
		}
	}

	// Stage 2: remaining tracked-state tracks vs low-score detections.
	matches2, uTrack2, _ := assoc.Associate(boxesOfTracks(rTracked), boxesOfDets(detsLow), stage2Thresh)
	for _, m := range matches2 {
		tObj := rTracked[m.TrackIndex]
		d := detsLow[m.DetIndex]
		if tObj.State == track.StateTracked {
			if err := tObj.Update(d, tr.frameID); err != nil {
				tr.logf("detector: stage2 update track %d: %v", tObj.ID, err)
				continue
			}
			activated = append(activated, tObj)
		} else {
			if err := tObj.ReActivate(d, tr.frameID, 0, false); err != nil {
				tr.logf("detector: stage2 re_activate track %d: %v", tObj.ID, err)
				continue
			}
			refound = append(refound, tObj)
		}
	}
	for _, idx := range uTrack2 {
		tObj := rTracked[idx]
		if tObj.State != track.StateLost {
			tObj.MarkLost()
			lostNow = append(lostNow, tObj)
		}
	}

	// Unconfirmed stage: unconfirmed tracks vs leftover high-score detections.
	matches3, uUnconfirmed, uDet3 := assoc.Associate(boxesOfTracks(unconfirmed), boxesOfDets(leftoverHigh), unconfirmedThresh)
	for _, m := range matches3 {
		tObj := unconfirmed[m.TrackIndex]
		d := leftoverHigh[m.DetIndex]
		if err := tObj.Update(d, tr.frameID); err != nil {
			tr.logf("detector: unconfirmed update track %d: %v", tObj.ID, err)
			continue
		}
		activated = append(activated, tObj)
	}
	for _, idx := range uUnconfirmed {
		tObj := unconfirmed[idx]
		tObj.MarkRemoved()
		removedNow = append(removedNow, tObj)
	}

	// New tracks: unmatched leftover high-score detections clearing high_thresh.
	for _, idx := range uDet3 {
		d := leftoverHigh[idx]
		if d.Score < HighThresh {
			continue
		}
		newTrack := track.New(d)
		newTrack.Activate(tr.ids.Next(), tr.frameID, HighThresh)
		activated = append(activated, newTrack)
	}

	// Lifecycle sweep.
	for _, t := range tr.lostTracks {
		if tr.frameID-t.FrameID > tr.maxTimeLost {
			t.MarkRemoved()
			removedNow = append(removedNow, t)
		}
	}

	var trackedSwap []*track.Track
	for _, t := range tr.trackedTracks {
		if t.State == track.StateTracked {
			trackedSwap = append(trackedSwap, t)
		}
	}
	tr.trackedTracks = trackedSwap
	tr.trackedTracks = jointTracks(tr.trackedTracks, activated)
	tr.trackedTracks = jointTracks(tr.trackedTracks, refound)

	tr.lostTracks = subTracks(tr.lostTracks, tr.trackedTracks)
	tr.lostTracks = append(tr.lostTracks, lostNow...)
	tr.removedTracks = append(tr.removedTracks, removedNow...)
	tr.lostTracks = subTracks(tr.lostTracks, tr.removedTracks)

	tr.trackedTracks, tr.lostTracks = removeDuplicates(tr.trackedTracks, tr.lostTracks)
	tr.pruneRemoved()

	output := make([]track.Snapshot, 0, len(tr.trackedTracks))
	for _, t := range tr.trackedTracks {
		if t.IsActivated {
			output = append(output, t.Snapshot())
		}
	}
	return output
}

// Resync looks up id in the tracked pool first, then the lost pool, and
// corrects its Kalman state from a propagated optical-flow box (§4.E).
// Unmatched ids are silently dropped (§7 UnknownId in resync) and reported
// via the boolean return so the caller can log it if desired.
func (tr *Tracker) Resync(id int64, det track.Detection, frameID int) (found bool, err error) {
	for _, t := range tr.trackedTracks {
		if t.ID == id {
			return true, t.Update(det, frameID)
		}
	}
	for _, t := range tr.lostTracks {
		if t.ID == id {
			return true, t.ReActivate(det, frameID, 0, false)
		}
	}
	return false, nil
}

// pruneRemoved bounds the removed pool by dropping entries whose last
// update is older than max_time_lost beyond the current frame, per the
// open question in §9.
func (tr *Tracker) pruneRemoved() {
	kept := tr.removedTracks[:0]
	for _, t := range tr.removedTracks {
		if tr.frameID-t.FrameID <= tr.maxTimeLost {
			kept = append(kept, t)
		}
	}
	tr.removedTracks = kept
}

func boxesOfTracks(tracks []*track.Track) []geom.Rectangle {
	boxes := make([]geom.Rectangle, len(tracks))
	for i, t := range tracks {
		boxes[i] = t.Box()
	}
	return boxes
}

func boxesOfDets(dets []track.Detection) []geom.Rectangle {
	boxes := make([]geom.Rectangle, len(dets))
	for i, d := range dets {
		boxes[i] = d.Box
	}
	return boxes
}

// jointTracks returns the union of a and b, deduplicated by track id,
// preferring the entry from a when both contain the same id.
func jointTracks(a, b []*track.Track) []*track.Track {
	seen := make(map[int64]bool, len(a)+len(b))
	res := make([]*track.Track, 0, len(a)+len(b))
	for _, t := range a {
		seen[t.ID] = true
		res = append(res, t)
	}
	for _, t := range b {
		if !seen[t.ID] {
			seen[t.ID] = true
			res = append(res, t)
		}
	}
	return res
}

// subTracks returns the tracks in a whose id does not appear in b.
func subTracks(a, b []*track.Track) []*track.Track {
	excl := make(map[int64]bool, len(b))
	for _, t := range b {
		excl[t.ID] = true
	}
	res := make([]*track.Track, 0, len(a))
	for _, t := range a {
		if !excl[t.ID] {
			res = append(res, t)
		}
	}
	return res
}

// removeDuplicates drops whichever of a tracked/lost pair has the shorter
// tracklet length when their boxes overlap above dedupIoUThreshold,
// breaking ties in favour of the lower id (§4.C step 9).
func removeDuplicates(tracked, lost []*track.Track) ([]*track.Track, []*track.Track) {
	dropTracked := make(map[int]bool)
	dropLost := make(map[int]bool)
	for i, a := range tracked {
		for j, b := range lost {
			if geom.IoU(a.Box(), b.Box()) <= dedupIoUThreshold {
				continue
			}
			if a.TrackletLen > b.TrackletLen || (a.TrackletLen == b.TrackletLen && a.ID < b.ID) {
				dropLost[j] = true
			} else {
				dropTracked[i] = true
			}
		}
	}
	outTracked := make([]*track.Track, 0, len(tracked))
	for i, t := range tracked {
		if !dropTracked[i] {
			outTracked = append(outTracked, t)
		}
	}
	outLost := make([]*track.Track, 0, len(lost))
	for j, t := range lost {
		if !dropLost[j] {
			outLost = append(outLost, t)
		}
	}
	return outTracked, outLost
}
