package track

import (
	"testing"

	"github.com/LdDl/hybtrack/internal/geom"
)

func TestActivateSetsTrackedAndConfirmedOnFrameOne(t *testing.T) {
	tr := New(Detection{Box: geom.NewRect(10, 10, 20, 40), Class: 0, Score: 0.4})
	tr.Activate(1, 1, 0.7)

	if tr.State != StateTracked {
		t.Errorf("expected state tracked after activate, got %v", tr.State)
	}
	if !tr.IsActivated {
		t.Errorf("expected is_activated true on frame 1 regardless of score")
	}
	if tr.ID != 1 {
		t.Errorf("expected id 1, got %d", tr.ID)
	}
}

func TestActivateUnconfirmedBelowHighThresh(t *testing.T) {
	tr := New(Detection{Box: geom.NewRect(10, 10, 20, 40), Class: 0, Score: 0.6})
	tr.Activate(5, 5, 0.7)
	if tr.IsActivated {
		t.Errorf("expected is_activated false when frame_id != 1 and score < high_thresh")
	}
}

func TestActivateConfirmedAboveHighThresh(t *testing.T) {
	tr := New(Detection{Box: geom.NewRect(10, 10, 20, 40), Class: 0, Score: 0.9})
	tr.Activate(5, 5, 0.7)
	if !tr.IsActivated {
		t.Errorf("expected is_activated true when score >= high_thresh")
	}
}

func TestUpdateRejectsInvalidDetection(t *testing.T) {
	tr := New(Detection{Box: geom.NewRect(10, 10, 20, 40), Class: 0, Score: 0.9})
	tr.Activate(1, 1, 0.7)
	err := tr.Update(Detection{Box: geom.NewRect(10, 10, 0, 40), Class: 0, Score: 0.9}, 2)
	if err != ErrInvalidDetection {
		t.Errorf("expected ErrInvalidDetection, got %v", err)
	}
}

func TestUpdateBumpsTrackletLenAndRefreshesClass(t *testing.T) {
	tr := New(Detection{Box: geom.NewRect(10, 10, 20, 40), Class: 0, Score: 0.9})
	tr.Activate(1, 1, 0.7)
	if err := tr.Update(Detection{Box: geom.NewRect(11, 11, 20, 40), Class: 2, Score: 0.8}, 2); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if tr.TrackletLen != 1 {
		t.Errorf("expected tracklet_len 1, got %d", tr.TrackletLen)
	}
	if tr.Class != 2 {
		t.Errorf("expected class refreshed to 2, got %d", tr.Class)
	}
	if tr.State != StateTracked {
		t.Errorf("expected state tracked after update")
	}
}

func TestReActivatePreservesIDByDefault(t *testing.T) {
	tr := New(Detection{Box: geom.NewRect(10, 10, 20, 40), Class: 0, Score: 0.9})
	tr.Activate(7, 1, 0.7)
	tr.MarkLost()
	if err := tr.ReActivate(Detection{Box: geom.NewRect(12, 12, 20, 40), Class: 0, Score: 0.8}, 10, 99, false); err != nil {
		t.Fatalf("re_activate failed: %v", err)
	}
	if tr.ID != 7 {
		t.Errorf("expected id preserved at 7, got %d", tr.ID)
	}
	if tr.TrackletLen != 0 {
		t.Errorf("expected tracklet_len reset to 0, got %d", tr.TrackletLen)
	}
	if tr.State != StateTracked {
		t.Errorf("expected state tracked after re_activate")
	}
}

func TestPredictZeroesVerticalVelocityWhenNotTracked(t *testing.T) {
	tr := New(Detection{Box: geom.NewRect(10, 10, 20, 40), Class: 0, Score: 0.9})
	tr.Activate(1, 1, 0.7)
	tr.kf.Mean.SetVec(7, 5)
	tr.MarkLost()
	tr.Predict()
	if v := tr.kf.Mean.AtVec(7); v != 0 {
		t.Errorf("expected vertical velocity zeroed before predicting a lost track, got %f", v)
	}
}

func TestBoxBeforeActivationReturnsRawBox(t *testing.T) {
	box := geom.NewRect(1, 2, 3, 4)
	tr := New(Detection{Box: box, Class: 0, Score: 0.9})
	if tr.Box() != box {
		t.Errorf("expected raw box before activation, got %+v", tr.Box())
	}
}
