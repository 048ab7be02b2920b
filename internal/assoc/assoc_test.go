package assoc

import (
	"testing"

	"github.com/LdDl/hybtrack/internal/geom"
)

func TestAssociateEmptyTracks(t *testing.T) {
	dets := []geom.Rectangle{geom.NewRect(0, 0, 10, 10)}
	matches, unmatchedTracks, unmatchedDets := Associate(nil, dets, 0.8)
	if len(matches) != 0 {
		t.Errorf("expected no matches with no tracks")
	}
	if len(unmatchedTracks) != 0 {
		t.Errorf("expected no unmatched tracks with no tracks")
	}
	if len(unmatchedDets) != 1 {
		t.Errorf("expected 1 unmatched detection, got %d", len(unmatchedDets))
	}
}

func TestAssociateEmptyDets(t *testing.T) {
	tracks := []geom.Rectangle{geom.NewRect(0, 0, 10, 10)}
	matches, unmatchedTracks, unmatchedDets := Associate(tracks, nil, 0.8)
	if len(matches) != 0 {
		t.Errorf("expected no matches with no detections")
	}
	if len(unmatchedTracks) != 1 {
		t.Errorf("expected 1 unmatched track, got %d", len(unmatchedTracks))
	}
	if len(unmatchedDets) != 0 {
		t.Errorf("expected no unmatched detections with no detections")
	}
}

func TestAssociatePerfectOverlap(t *testing.T) {
	tracks := []geom.Rectangle{geom.NewRect(0, 0, 10, 10)}
	dets := []geom.Rectangle{geom.NewRect(0, 0, 10, 10)}
	matches, unmatchedTracks, unmatchedDets := Associate(tracks, dets, 0.8)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].TrackIndex != 0 || matches[0].DetIndex != 0 {
		t.Errorf("expected match (0,0), got %+v", matches[0])
	}
	if len(unmatchedTracks) != 0 || len(unmatchedDets) != 0 {
		t.Errorf("expected no unmatched entries for a perfect single match")
	}
}

func TestAssociateRejectsBelowThreshold(t *testing.T) {
	tracks := []geom.Rectangle{geom.NewRect(0, 0, 10, 10)}
	dets := []geom.Rectangle{geom.NewRect(100, 100, 10, 10)}
	// IoU is 0 -> cost is 1, exceeds any reasonable threshold.
	matches, unmatchedTracks, unmatchedDets := Associate(tracks, dets, 0.8)
	if len(matches) != 0 {
		t.Errorf("expected no matches for disjoint boxes, got %d", len(matches))
	}
	if len(unmatchedTracks) != 1 || len(unmatchedDets) != 1 {
		t.Errorf("expected both sides unmatched")
	}
}

func TestAssociateMultipleTracksDeterministicOrder(t *testing.T) {
	tracks := []geom.Rectangle{
		geom.NewRect(0, 0, 10, 10),
		geom.NewRect(50, 50, 10, 10),
	}
	dets := []geom.Rectangle{
		geom.NewRect(0, 0, 10, 10),
		geom.NewRect(50, 50, 10, 10),
	}
	matches, _, _ := Associate(tracks, dets, 0.8)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].TrackIndex != 0 || matches[1].TrackIndex != 1 {
		t.Errorf("expected matches ordered by track index, got %+v", matches)
	}
}
