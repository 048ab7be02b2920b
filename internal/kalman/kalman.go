// Package kalman implements the constant-velocity Kalman filter used by the
// detection tracker to smooth track geometry between detector runs.
//
// The state is the canonical SORT/DeepSORT 8-vector
// (cx, cy, a, h, vx, vy, va, vh) where a = w/h is the bounding box aspect
// ratio. Process and measurement noise are proportional to the box height,
// matching the canonical SORT/DeepSORT formulation.
package kalman

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	stateDim = 8
	measDim  = 4

	stdWeightPosition = 1.0 / 20
	stdWeightVelocity = 1.0 / 160
)

// Filter is an 8-D constant-velocity Kalman filter over (cx, cy, a, h) and
// their first derivatives.
type Filter struct {
	Mean *mat.VecDense
	Cov  *mat.Dense
}

// New initialises a filter from a single (cx, cy, a, h) observation.
func New(measurement [measDim]float64) *Filter {
	mean := mat.NewVecDense(stateDim, []float64{
		measurement[0], measurement[1], measurement[2], measurement[3],
		0, 0, 0, 0,
	})
	h := measurement[3]
	std := []float64{
		2 * stdWeightPosition * h,
		2 * stdWeightPosition * h,
		1e-2,
		2 * stdWeightPosition * h,
		10 * stdWeightVelocity * h,
		10 * stdWeightVelocity * h,
		1e-5,
		10 * stdWeightVelocity * h,
	}
	return &Filter{Mean: mean, Cov: diagSquare(std)}
}

func stateTransition() *mat.Dense {
	f := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		f.Set(i, i, 1)
	}
	for i := 0; i < measDim; i++ {
		f.Set(i, i+measDim, 1)
	}
	return f
}

func measurementMatrix() *mat.Dense {
	h := mat.NewDense(measDim, stateDim, nil)
	for i := 0; i < measDim; i++ {
		h.Set(i, i, 1)
	}
	return h
}

func diagSquare(std []float64) *mat.Dense {
	n := len(std)
	d := mat.NewDense(n, n, nil)
	for i, s := range std {
		d.Set(i, i, s*s)
	}
	return d
}

// ZeroVerticalVelocity zeroes vh, the vertical-height velocity component.
// Called before Predict for tracks that are not in the tracked state, so a
// lost track does not coast off-screen vertically.
func (f *Filter) ZeroVerticalVelocity() {
	f.Mean.SetVec(7, 0)
}

// Predict advances the filter one time step under the constant-velocity
// motion model.
func (f *Filter) Predict() {
	h := f.Mean.AtVec(3)
	stdPos := []float64{stdWeightPosition * h, stdWeightPosition * h, 1e-2, stdWeightPosition * h}
	stdVel := []float64{stdWeightVelocity * h, stdWeightVelocity * h, 1e-5, stdWeightVelocity * h}
	motionCov := diagSquare(append(append([]float64{}, stdPos...), stdVel...))

	transition := stateTransition()

	newMean := mat.NewVecDense(stateDim, nil)
	newMean.MulVec(transition, f.Mean)

	var fp mat.Dense
	fp.Mul(transition, f.Cov)
	var newCov mat.Dense
	newCov.Mul(&fp, transition.T())
	newCov.Add(&newCov, motionCov)

	f.Mean = newMean
	f.Cov = symmetrize(&newCov)
}

// project maps the state distribution into measurement space, adding
// measurement noise proportional to the current height estimate.
func (f *Filter) project() (*mat.VecDense, *mat.Dense) {
	h := f.Mean.AtVec(3)
	std := []float64{stdWeightPosition * h, stdWeightPosition * h, 1e-1, stdWeightPosition * h}
	innovationCov := diagSquare(std)

	measurement := measurementMatrix()

	projectedMean := mat.NewVecDense(measDim, nil)
	projectedMean.MulVec(measurement, f.Mean)

	var hp mat.Dense
	hp.Mul(measurement, f.Cov)
	var projectedCov mat.Dense
	projectedCov.Mul(&hp, measurement.T())
	projectedCov.Add(&projectedCov, innovationCov)

	return projectedMean, &projectedCov
}

// Update corrects the state estimate against a (cx, cy, a, h) measurement.
func (f *Filter) Update(measurement [measDim]float64) error {
	projectedMean, projectedCov := f.project()

	var sInv mat.Dense
	if err := sInv.Inverse(projectedCov); err != nil {
		return errors.Wrap(err, "kalman: singular innovation covariance")
	}

	measurementMat := measurementMatrix()
	var covHt mat.Dense
	covHt.Mul(f.Cov, measurementMat.T())

	var gain mat.Dense
	gain.Mul(&covHt, &sInv)

	innovation := mat.NewVecDense(measDim, []float64{
		measurement[0] - projectedMean.AtVec(0),
		measurement[1] - projectedMean.AtVec(1),
		measurement[2] - projectedMean.AtVec(2),
		measurement[3] - projectedMean.AtVec(3),
	})

	var delta mat.VecDense
	delta.MulVec(&gain, innovation)

	newMean := mat.NewVecDense(stateDim, nil)
	newMean.AddVec(f.Mean, &delta)

	var gs mat.Dense
	gs.Mul(&gain, projectedCov)
	var gsgt mat.Dense
	gsgt.Mul(&gs, gain.T())

	newCov := mat.NewDense(stateDim, stateDim, nil)
	newCov.Sub(f.Cov, &gsgt)

	f.Mean = newMean
	f.Cov = symmetrize(newCov)
	return nil
}

// symmetrize forces exact symmetry, correcting for floating-point round-off
// accumulated across predict/update cycles.
func symmetrize(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, (m.At(i, j)+m.At(j, i))/2)
		}
	}
	return out
}

// State returns the current (cx, cy, a, h) estimate.
func (f *Filter) State() (cx, cy, a, h float64) {
	return f.Mean.AtVec(0), f.Mean.AtVec(1), f.Mean.AtVec(2), f.Mean.AtVec(3)
}

// IsSymmetric reports whether the covariance is symmetric within tol, used
// by tests to check the symmetric-covariance invariant.
func (f *Filter) IsSymmetric(tol float64) bool {
	r, c := f.Cov.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if diff := f.Cov.At(i, j) - f.Cov.At(j, i); diff > tol || diff < -tol {
				return false
			}
		}
	}
	return true
}
