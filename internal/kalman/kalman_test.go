package kalman

import "testing"

func TestNewInitialState(t *testing.T) {
	f := New([4]float64{100, 200, 0.5, 50})
	cx, cy, a, h := f.State()
	if cx != 100 || cy != 200 || a != 0.5 || h != 50 {
		t.Errorf("expected initial state (100,200,0.5,50), got (%f,%f,%f,%f)", cx, cy, a, h)
	}
	if !f.IsSymmetric(1e-9) {
		t.Errorf("expected initial covariance to be symmetric")
	}
}

func TestPredictAdvancesWithVelocity(t *testing.T) {
	f := New([4]float64{0, 0, 1, 50})
	// Seed a velocity with a predict/update cycle against a moving
	// measurement; the predict step couples position and velocity in the
	// covariance so the second update can estimate vx.
	if err := f.Update([4]float64{0, 0, 1, 50}); err != nil {
		t.Fatalf("update 1 failed: %v", err)
	}
	f.Predict()
	if err := f.Update([4]float64{10, 0, 1, 50}); err != nil {
		t.Fatalf("update 2 failed: %v", err)
	}
	cxBefore, _, _, _ := f.State()
	f.Predict()
	cxAfter, _, _, _ := f.State()
	if cxAfter <= cxBefore {
		t.Errorf("expected predicted cx to move forward along estimated velocity, before=%f after=%f", cxBefore, cxAfter)
	}
	if !f.IsSymmetric(1e-6) {
		t.Errorf("expected covariance to remain symmetric after predict")
	}
}

func TestUpdateConvergesTowardMeasurement(t *testing.T) {
	f := New([4]float64{0, 0, 1, 50})
	for i := 0; i < 20; i++ {
		f.Predict()
		if err := f.Update([4]float64{100, 50, 1, 50}); err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}
	cx, cy, _, _ := f.State()
	if diff := cx - 100; diff > 1.0 || diff < -1.0 {
		t.Errorf("expected cx to converge near 100, got %f", cx)
	}
	if diff := cy - 50; diff > 1.0 || diff < -1.0 {
		t.Errorf("expected cy to converge near 50, got %f", cy)
	}
	if !f.IsSymmetric(1e-6) {
		t.Errorf("expected covariance to remain symmetric after repeated update")
	}
}

func TestZeroVerticalVelocity(t *testing.T) {
	f := New([4]float64{0, 0, 1, 50})
	f.Mean.SetVec(7, 3.5)
	f.ZeroVerticalVelocity()
	if v := f.Mean.AtVec(7); v != 0 {
		t.Errorf("expected vh to be zeroed, got %f", v)
	}
}

func TestCovarianceStaysSymmetricAcrossSequence(t *testing.T) {
	f := New([4]float64{10, 10, 0.6, 40})
	measurements := [][4]float64{
		{12, 11, 0.6, 41},
		{14, 12, 0.61, 42},
		{16, 13, 0.6, 40},
	}
	for _, m := range measurements {
		f.Predict()
		if err := f.Update(m); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if !f.IsSymmetric(1e-6) {
			t.Fatalf("covariance not symmetric after update with %v", m)
		}
	}
}
